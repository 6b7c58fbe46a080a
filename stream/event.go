package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/iammusetouch/ariana/errors"
)

// Event is one opaque trace event record. Payloads are passed through
// untouched.
type Event = json.RawMessage

// DefaultPathTemplate is appended to the endpoint; {id} is replaced by the
// escaped vault identifier.
const DefaultPathTemplate = "/vaults/{id}/events"

// decodeFrame parses a text frame holding either one event object or an
// array of event objects. isBatch reports the array form.
func decodeFrame(data []byte) (events []Event, isBatch bool, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, errors.WrapInvalid(errors.ErrEmptyFrame, "stream", "decodeFrame", "decode frame")
	}

	switch trimmed[0] {
	case '[':
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, false, errors.WrapInvalid(err, "stream", "decodeFrame", "decode event array")
		}
		events = make([]Event, len(batch))
		for i, raw := range batch {
			events[i] = Event(raw)
		}
		return events, true, nil
	case '{':
		if !json.Valid(trimmed) {
			return nil, false, errors.WrapInvalid(errors.ErrParsingFailed, "stream", "decodeFrame", "decode event object")
		}
		record := make([]byte, len(trimmed))
		copy(record, trimmed)
		return []Event{record}, false, nil
	default:
		return nil, false, errors.WrapInvalid(
			fmt.Errorf("%w: frame is neither an object nor an array", errors.ErrInvalidData),
			"stream", "decodeFrame", "decode frame")
	}
}

// Endpoint derives per-vault stream URLs from a base HTTP endpoint.
type Endpoint struct {
	base         *url.URL
	pathTemplate string
}

// NewEndpoint parses base and swaps its scheme for the websocket equivalent
// (http→ws, https→wss). ws and wss bases are accepted as-is.
func NewEndpoint(base, pathTemplate string) (Endpoint, error) {
	if base == "" {
		return Endpoint{}, errors.WrapInvalid(errors.ErrMissingConfig, "stream", "NewEndpoint", "base endpoint")
	}

	u, err := url.Parse(base)
	if err != nil {
		return Endpoint{}, errors.WrapInvalid(err, "stream", "NewEndpoint", "parse base endpoint")
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return Endpoint{}, errors.WrapInvalid(
			fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidConfig, u.Scheme),
			"stream", "NewEndpoint", "derive stream scheme")
	}
	if u.Host == "" {
		return Endpoint{}, errors.WrapInvalid(
			fmt.Errorf("%w: endpoint %q has no host", errors.ErrInvalidConfig, base),
			"stream", "NewEndpoint", "parse base endpoint")
	}

	if pathTemplate == "" {
		pathTemplate = DefaultPathTemplate
	}
	if !strings.Contains(pathTemplate, "{id}") {
		return Endpoint{}, errors.WrapInvalid(
			fmt.Errorf("%w: path template %q lacks {id}", errors.ErrInvalidConfig, pathTemplate),
			"stream", "NewEndpoint", "validate path template")
	}

	u.RawQuery = ""
	u.Fragment = ""
	return Endpoint{base: u, pathTemplate: pathTemplate}, nil
}

// URL returns the stream URL for vault id.
func (e Endpoint) URL(id string) string {
	u := *e.base
	prefix := strings.TrimSuffix(e.base.Path, "/") + "/"
	tmpl := strings.TrimPrefix(e.pathTemplate, "/")
	u.Path = prefix + strings.ReplaceAll(tmpl, "{id}", id)
	u.RawPath = strings.TrimSuffix(e.base.EscapedPath(), "/") + "/" +
		strings.ReplaceAll(tmpl, "{id}", url.PathEscape(id))
	return u.String()
}
