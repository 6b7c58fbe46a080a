package focus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewest(t *testing.T) {
	tests := []struct {
		name       string
		candidates []*Candidate
		want       string
	}{
		{name: "empty"},
		{name: "all absent", candidates: []*Candidate{nil, nil}},
		{
			name:       "greatest created_at",
			candidates: []*Candidate{{ID: "a", CreatedAt: 100}, nil, {ID: "b", CreatedAt: 200}, {ID: "c", CreatedAt: 150}},
			want:       "b",
		},
		{
			name:       "first seen wins ties",
			candidates: []*Candidate{{ID: "a", CreatedAt: 200}, {ID: "b", CreatedAt: 200}},
			want:       "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newest(tt.candidates)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestStaticRoots(t *testing.T) {
	roots := StaticRoots{"/a", "/b"}
	got, err := roots.Roots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, got)

	got[0] = "/changed"
	assert.Equal(t, "/a", roots[0])
}

func TestResolverFunc(t *testing.T) {
	var r Resolver = ResolverFunc(func(_ context.Context, root string) (*Candidate, error) {
		return &Candidate{ID: root + "-vault", CreatedAt: 1}, nil
	})
	c, err := r.Resolve(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, &Candidate{ID: "x-vault", CreatedAt: 1}, c)
}
