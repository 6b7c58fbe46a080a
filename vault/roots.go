package vault

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/iammusetouch/ariana/errors"
)

// DirRoots lists root directories. Entries may be glob patterns and may start
// with ~ for the home directory. An empty list means the working directory.
// It implements focus.RootLister.
type DirRoots []string

// Roots expands the patterns and returns existing directories, sorted within
// each pattern and without duplicates.
func (d DirRoots) Roots(_ context.Context) ([]string, error) {
	patterns := []string(d)
	if len(patterns) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.WrapTransient(err, "vault", "Roots", "get working directory")
		}
		patterns = []string{wd}
	}

	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		expanded, err := expandHome(pattern)
		if err != nil {
			return nil, err
		}

		matches, err := filepath.Glob(expanded)
		if err != nil {
			return nil, errors.WrapInvalid(err, "vault", "Roots", "expand root "+pattern)
		}
		sort.Strings(matches)

		for _, match := range matches {
			abs, err := filepath.Abs(match)
			if err != nil {
				continue
			}
			info, err := os.Stat(abs)
			if err != nil || !info.IsDir() || seen[abs] {
				continue
			}
			seen[abs] = true
			out = append(out, abs)
		}
	}
	return out, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.WrapInvalid(err, "vault", "Roots", "resolve home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
