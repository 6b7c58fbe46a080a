// Package publish republishes focused-vault events to NATS so processes
// other than the daemon can follow the stream.
//
// Batches go to "<prefix>.<vault>.events" as a JSON array. Focus changes go
// to "<prefix>.focus" as a JSON object.
package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/iammusetouch/ariana/errors"
	"github.com/iammusetouch/ariana/focus"
	"github.com/iammusetouch/ariana/health"
	"github.com/iammusetouch/ariana/pkg/retry"
	"github.com/iammusetouch/ariana/stream"
)

// DefaultSubjectPrefix is used when Config.SubjectPrefix is empty.
const DefaultSubjectPrefix = "ariana.vaults"

// Config configures a Publisher.
type Config struct {
	URL           string
	SubjectPrefix string
	// ConnectAttempts bounds the initial connect; 0 means 3.
	ConnectAttempts int
	ConnectBackoff  retry.Policy
}

// FocusMessage is the payload published on focus changes.
type FocusMessage struct {
	Vault     string    `json:"vault"`
	Retry     int       `json:"retry"`
	Connected bool      `json:"connected"`
	Time      time.Time `json:"time"`
}

// Source is what a Publisher listens to. *focus.Manager implements it.
type Source interface {
	OnFocusChange(focus.FocusListener) func()
	OnBatchEvents(focus.BatchListener) func()
}

// Publisher forwards focus changes and event batches to NATS.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
	owned  bool

	mu        sync.Mutex
	vault     string
	detach    []func()
	closed    bool
	failed    int
	published int
}

// Connect dials NATS, retrying with cfg.ConnectBackoff, and returns a
// Publisher that owns the connection.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "publish", "Connect", "check nats url")
	}
	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 3
	}
	policy := cfg.ConnectBackoff
	if policy == (retry.Policy{}) {
		policy = retry.Policy{Unit: 50 * time.Millisecond, MaxDelay: 2 * time.Second}
	}

	var nc *nats.Conn
	err := retry.Do(ctx, policy, attempts, func() error {
		conn, err := nats.Connect(cfg.URL,
			nats.Name("ariana-focus"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return err
		}
		nc = conn
		return nil
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "publish", "Connect", "connect to nats")
	}

	p := New(nc, cfg.SubjectPrefix, logger)
	p.owned = true
	return p, nil
}

// New wraps an existing connection. Close does not close nc.
func New(nc *nats.Conn, prefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{
		nc:     nc,
		prefix: prefix,
		logger: logger.With("component", "publish"),
	}
}

// Attach subscribes to src. Focus notifications arrive before the batches
// of the same source, so each batch is published under the vault that was
// focused when it was produced.
func (p *Publisher) Attach(src Source) {
	offFocus := src.OnFocusChange(p.publishFocus)
	offBatch := src.OnBatchEvents(p.publishBatch)

	p.mu.Lock()
	p.detach = append(p.detach, offFocus, offBatch)
	p.mu.Unlock()
}

// EventsSubject returns the subject batches for vault are published on.
func (p *Publisher) EventsSubject(vault string) string {
	return p.prefix + "." + subjectToken(vault) + ".events"
}

// FocusSubject returns the subject focus changes are published on.
func (p *Publisher) FocusSubject() string {
	return p.prefix + ".focus"
}

func (p *Publisher) publishFocus(src *focus.Source) {
	if src == nil {
		return
	}
	p.focusChanged(FocusMessage{
		Vault:     src.ID(),
		Retry:     src.Retry(),
		Connected: src.Connected(),
		Time:      time.Now().UTC(),
	})
}

func (p *Publisher) focusChanged(msg FocusMessage) {
	p.mu.Lock()
	p.vault = msg.Vault
	p.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("Encoding focus message failed", "error", err)
		return
	}
	p.publish(p.FocusSubject(), data)
}

func (p *Publisher) publishBatch(events []stream.Event) {
	p.mu.Lock()
	vault := p.vault
	p.mu.Unlock()

	if vault == "" || len(events) == 0 {
		return
	}
	data, err := json.Marshal(events)
	if err != nil {
		p.logger.Error("Encoding event batch failed", "vault", vault, "error", err)
		return
	}
	p.publish(p.EventsSubject(vault), data)
}

func (p *Publisher) publish(subject string, data []byte) {
	if err := p.nc.Publish(subject, data); err != nil {
		p.mu.Lock()
		p.failed++
		p.mu.Unlock()
		p.logger.Warn("Publishing to NATS failed", "subject", subject,
			"error", errors.WrapTransient(err, "publish", "publish", "publish message"))
		return
	}
	p.mu.Lock()
	p.published++
	p.mu.Unlock()
}

// Stats returns the number of messages handed to NATS and the number that
// failed.
func (p *Publisher) Stats() (published, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.failed
}

// HealthStatus reports the NATS connection state. Error messages are
// sanitized before they reach the status.
func (p *Publisher) HealthStatus() health.Status {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	var s health.Status
	switch {
	case closed:
		s = health.FromError("publish", errors.ErrShuttingDown)
	case p.nc == nil:
		s = health.FromError("publish", errors.ErrNoConnection)
	case p.nc.IsConnected():
		s = health.NewHealthy("publish", "connected")
	case p.nc.IsReconnecting():
		s = health.NewDegraded("publish", "reconnecting")
		if err := p.nc.LastError(); err != nil {
			s = s.WithDetail("last_error", health.Sanitize(err.Error()))
		}
	default:
		err := p.nc.LastError()
		if err == nil {
			err = errors.ErrConnectionLost
		}
		s = health.FromError("publish", err)
	}
	published, failed := p.Stats()
	return s.WithDetail("published", published).WithDetail("failed", failed)
}

// Close detaches from every source and, for a Publisher created by Connect,
// drains the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	detach := p.detach
	p.detach = nil
	alreadyClosed := p.closed
	p.closed = true
	p.mu.Unlock()

	for _, off := range detach {
		off()
	}
	if !p.owned || alreadyClosed {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return errors.WrapTransient(err, "publish", "Close", "drain nats connection")
	}
	return nil
}

// subjectToken makes a vault key safe as one subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
