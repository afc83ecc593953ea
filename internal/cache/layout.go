package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Layout is the on-disk location of one repository's snapshot and index.
type Layout struct {
	DataDir   string
	SourceDir string
	CacheFile string
}

// ResolveLayout creates the data directory structure for a repository and
// returns its paths. It is idempotent.
func ResolveLayout(dataDir, name string) (Layout, error) {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return Layout{}, fmt.Errorf("invalid repository name %q", name)
	}
	if dataDir == "" {
		return Layout{}, errors.New("data directory not set")
	}
	l := Layout{
		DataDir:   dataDir,
		SourceDir: filepath.Join(dataDir, "repositories", name),
		CacheFile: filepath.Join(dataDir, "databases", name+".idx.zst"),
	}
	for _, dir := range []string{l.DataDir, l.SourceDir, filepath.Dir(l.CacheFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Layout{}, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return l, nil
}
