package focus

import (
	"context"
)

// Candidate is one vault a root currently points at.
type Candidate struct {
	ID        string `json:"key" yaml:"key"`
	CreatedAt int64  `json:"created_at" yaml:"created_at"`
}

// Resolver looks up the most recent vault known to a root. A root with no
// vault returns (nil, nil). Errors are treated the same as absence.
//
// Resolve is called once per root per discovery pass and is bounded only by
// ctx; a resolver that blocks longer than the discovery interval delays the
// next pass.
type Resolver interface {
	Resolve(ctx context.Context, root string) (*Candidate, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, root string) (*Candidate, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, root string) (*Candidate, error) {
	return f(ctx, root)
}

// RootLister enumerates the roots to resolve on each discovery pass.
type RootLister interface {
	Roots(ctx context.Context) ([]string, error)
}

// StaticRoots is a fixed root list.
type StaticRoots []string

// Roots returns a copy of the list.
func (s StaticRoots) Roots(_ context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// newest returns the candidate with the greatest CreatedAt. The earliest
// entry wins ties. nil entries are skipped.
func newest(candidates []*Candidate) *Candidate {
	var best *Candidate
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if best == nil || c.CreatedAt > best.CreatedAt {
			best = c
		}
	}
	return best
}
