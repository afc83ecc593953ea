// Package repo resolves a repository argument to a name and fills the
// repository snapshot directory, either by cloning a git URL or by
// mirroring a local directory.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"repochat/internal/classifier"
	"repochat/internal/logging"
)

// Fetcher fills snapshot directories.
type Fetcher struct {
	ignoreMarkers []string
	logger        *zap.Logger
	copyFile      func(src, dst string) error
}

func NewFetcher(ignoreMarkers []string, logger *zap.Logger) *Fetcher {
	return &Fetcher{ignoreMarkers: ignoreMarkers, logger: logging.OrNop(logger), copyFile: copyFile}
}

// IsRemote reports whether input names a git remote rather than a local path.
func IsRemote(input string) bool {
	for _, prefix := range []string{"http://", "https://", "ssh://", "git://", "git@"} {
		if strings.HasPrefix(input, prefix) {
			return true
		}
	}
	return false
}

// Name returns the repository name used for the data layout: the last path
// element of input, without a trailing ".git" for remotes.
func Name(input string) string {
	if IsRemote(input) {
		trimmed := strings.TrimRight(input, "/")
		if i := strings.LastIndex(trimmed, ":"); strings.HasPrefix(trimmed, "git@") && i >= 0 {
			trimmed = trimmed[i+1:]
		}
		return strings.TrimSuffix(path.Base(trimmed), ".git")
	}
	if abs, err := filepath.Abs(input); err == nil {
		input = abs
	}
	return filepath.Base(filepath.Clean(input))
}

// Fetch replaces the contents of sourceDir with the repository at input.
func (f *Fetcher) Fetch(ctx context.Context, input, sourceDir string) error {
	if err := clearDir(sourceDir); err != nil {
		return fmt.Errorf("failed to reset snapshot %s: %w", sourceDir, err)
	}
	if IsRemote(input) {
		return f.clone(ctx, input, sourceDir)
	}
	return f.mirror(ctx, input, sourceDir)
}

func (f *Fetcher) clone(ctx context.Context, url, dest string) error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git is required to clone %s: %w", url, err)
	}
	args := []string{"clone", "--depth", "1", url, dest}
	f.logger.Info("cloning repository", zap.String("url", url), zap.String("dest", dest))
	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone %s failed: %w: %s", url, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (f *Fetcher) mirror(ctx context.Context, src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("repository path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("repository path %s is not a directory", src)
	}
	copied, skipped := 0, 0
	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == src {
				return walkErr
			}
			skipped++
			if d != nil && d.IsDir() {
				f.logger.Warn("skipping unreadable directory", zap.String("path", p), zap.Error(walkErr))
				return filepath.SkipDir
			}
			f.logger.Warn("skipping unreadable file", zap.String("path", p), zap.Error(walkErr))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil || rel == "." {
			return err
		}
		if f.ignored(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := f.copyFile(p, target); err != nil {
			skipped++
			_ = os.Remove(target)
			f.logger.Warn("skipping unreadable file", zap.String("path", rel), zap.Error(err))
			return nil
		}
		copied++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mirror %s: %w", src, err)
	}
	f.logger.Info("repository mirrored", zap.String("src", src), zap.String("dest", dest),
		zap.Int("files", copied), zap.Int("skipped", skipped))
	return nil
}

func (f *Fetcher) ignored(rel string) bool { return classifier.Ignored(rel, f.ignoreMarkers) }

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
