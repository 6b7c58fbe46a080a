// Package config loads the daemon configuration.
//
// Configuration is layered: built-in defaults, then each file added with
// AddLayer (JSON, or YAML for .yaml/.yml files), then ARIANA_* environment
// variables. Nested objects merge key by key, so a layer only needs the keys
// it changes. Durations are strings such as "800ms" or "5s".
//
//	{
//	  "endpoint": "http://localhost:8080",
//	  "roots": ["~/projects/*"],
//	  "discovery_interval": "5s",
//	  "throttle_interval": "800ms",
//	  "reconnect": {"unit": "1ms", "jitter": "100ms", "max_retries": 0},
//	  "nats": {"url": "nats://localhost:4222"},
//	  "metrics": {"port": 9090}
//	}
//
// Environment overrides: ARIANA_ENDPOINT, ARIANA_ROOTS (comma or path-list
// separated), ARIANA_NATS_URL, ARIANA_NATS_SUBJECT_PREFIX,
// ARIANA_METRICS_PORT and ARIANA_MAX_RETRIES.
package config
