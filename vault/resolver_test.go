package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammusetouch/ariana/errors"
	"github.com/iammusetouch/ariana/focus"
)

func writeMarker(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, MarkerDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    *focus.Candidate
		wantErr bool
	}{
		{
			name:    "json marker",
			file:    "vault.json",
			content: `{"key": "abc", "created_at": 1718000000000}`,
			want:    &focus.Candidate{ID: "abc", CreatedAt: 1718000000000},
		},
		{
			name:    "yaml marker",
			file:    "vault.yaml",
			content: "key: def\ncreated_at: 42\n",
			want:    &focus.Candidate{ID: "def", CreatedAt: 42},
		},
		{
			name:    "vault list picks newest",
			file:    "vault.json",
			content: `{"vaults": [{"key": "a", "created_at": 1}, {"key": "b", "created_at": 3}, {"key": "c", "created_at": 2}]}`,
			want:    &focus.Candidate{ID: "b", CreatedAt: 3},
		},
		{
			name:    "rfc3339 creation time",
			file:    "vault.yaml",
			content: "key: ghi\ncreated_at: 2024-06-10T08:00:00Z\n",
			want:    &focus.Candidate{ID: "ghi", CreatedAt: 1718006400000},
		},
		{
			name:    "bad creation time",
			file:    "vault.json",
			content: `{"key": "x", "created_at": "last tuesday"}`,
			wantErr: true,
		},
		{
			name:    "marker without key",
			file:    "vault.yml",
			content: "created_at: 5\n",
		},
		{
			name:    "malformed marker",
			file:    "vault.json",
			content: `{"key": [`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeMarker(t, root, tt.file, tt.content)

			got, err := NewResolver(nil).Resolve(context.Background(), root)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_NoMarker(t *testing.T) {
	got, err := NewResolver(nil).Resolve(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = NewResolver(nil).Resolve(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolver_JSONTakesPrecedence(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, "vault.yaml", "key: from-yaml\ncreated_at: 9\n")
	writeMarker(t, root, "vault.json", `{"key": "from-json", "created_at": 1}`)

	got, err := NewResolver(nil).Resolve(context.Background(), root)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "from-json", got.ID)
}

func TestResolver_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver(nil).Resolve(ctx, t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestDirRoots(t *testing.T) {
	base := t.TempDir()
	for _, dir := range []string{"p1", "p2", "p3"} {
		require.NoError(t, os.Mkdir(filepath.Join(base, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(base, "file"), nil, 0o644))

	roots, err := DirRoots{
		filepath.Join(base, "p*"),
		filepath.Join(base, "p1"),
		filepath.Join(base, "file"),
		filepath.Join(base, "absent"),
	}.Roots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(base, "p1"),
		filepath.Join(base, "p2"),
		filepath.Join(base, "p3"),
	}, roots)
}

func TestDirRoots_DefaultsToWorkingDirectory(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	roots, err := DirRoots(nil).Roots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{wd}, roots)
}

func TestDirRoots_InvalidPattern(t *testing.T) {
	_, err := DirRoots{"[unterminated"}.Roots(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestResolver_WithManagerDiscovery(t *testing.T) {
	older := t.TempDir()
	newer := t.TempDir()
	writeMarker(t, older, "vault.json", `{"key": "old", "created_at": 100}`)
	writeMarker(t, newer, "vault.yaml", "key: new\ncreated_at: 200\n")

	var r focus.Resolver = NewResolver(nil)
	var lister focus.RootLister = DirRoots{older, newer}

	roots, err := lister.Roots(context.Background())
	require.NoError(t, err)

	var best *focus.Candidate
	for _, root := range roots {
		c, err := r.Resolve(context.Background(), root)
		require.NoError(t, err)
		if best == nil || c.CreatedAt > best.CreatedAt {
			best = c
		}
	}
	assert.Equal(t, "new", best.ID)
}
