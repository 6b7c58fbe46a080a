// Package vault finds vaults on the local filesystem.
//
// A root is a directory. It points at a vault when it holds a marker file
// under .ariana/ naming the vault key and its creation time:
//
//	# .ariana/vault.yaml
//	key: 7f1c2e
//	created_at: 1718000000000
//
// created_at is Unix milliseconds or an RFC3339 time.
//
// A marker may also list several vaults, in which case the newest wins:
//
//	{"vaults": [{"key": "a", "created_at": 1}, {"key": "b", "created_at": 2}]}
package vault

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/iammusetouch/ariana/errors"
	"github.com/iammusetouch/ariana/focus"
	"github.com/iammusetouch/ariana/pkg/timestamp"
)

// MarkerDir is the directory inside a root that holds the marker file.
const MarkerDir = ".ariana"

// MarkerFiles are tried in order; the first one present is used.
var MarkerFiles = []string{"vault.json", "vault.yaml", "vault.yml"}

type record struct {
	Key       string `yaml:"key"`
	CreatedAt any    `yaml:"created_at"`
}

type marker struct {
	Key       string   `yaml:"key"`
	CreatedAt any      `yaml:"created_at"`
	Vaults    []record `yaml:"vaults"`
}

// Resolver reads vault markers. It implements focus.Resolver.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil logger uses slog.Default().
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger.With("component", "vault")}
}

// Resolve returns the newest vault named by root's marker, or nil when root
// has no usable marker.
func (r *Resolver) Resolve(ctx context.Context, root string) (*focus.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "vault", "Resolve", "check context")
	}

	path, data, err := readMarker(root)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var m marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		r.logger.Debug("Ignoring unreadable vault marker", "path", path, "error", err)
		return nil, errors.WrapInvalid(err, "vault", "Resolve", "parse marker "+path)
	}

	var best *focus.Candidate
	for _, rec := range append([]record{{Key: m.Key, CreatedAt: m.CreatedAt}}, m.Vaults...) {
		if rec.Key == "" {
			continue
		}
		created, err := timestamp.Parse(rec.CreatedAt)
		if err != nil {
			return nil, errors.WrapInvalid(err, "vault", "Resolve", "parse created_at in "+path)
		}
		if best == nil || created > best.CreatedAt {
			best = &focus.Candidate{ID: rec.Key, CreatedAt: created}
		}
	}
	if best != nil {
		r.logger.Debug("Resolved vault marker", "path", path, "vault", best.ID,
			"created", timestamp.Format(best.CreatedAt))
	}
	return best, nil
}

func readMarker(root string) (string, []byte, error) {
	for _, name := range MarkerFiles {
		path := filepath.Join(root, MarkerDir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			return path, data, nil
		}
		if stderrors.Is(err, fs.ErrNotExist) {
			continue
		}
		return path, nil, errors.WrapTransient(err, "vault", "Resolve", "read marker")
	}
	return "", nil, nil
}
