// Package classifier walks a repository tree and turns its files into
// retrievable units tagged with type and code/implementation metadata.
package classifier

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"repochat/internal/domain"
	"repochat/internal/logging"
)

// Classifier produces units from a directory tree.
type Classifier struct {
	codeExts      []string
	docExts       []string
	ignoreMarkers []string
	logger        *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger for skipped files and traversal events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New creates a classifier. Extensions are given without the leading dot;
// a path is ignored when one of its directory or file names matches any of
// ignoreMarkers (see Ignored).
func New(codeExts, docExts, ignoreMarkers []string, opts ...Option) *Classifier {
	c := &Classifier{
		codeExts:      normalizeExts(codeExts),
		docExts:       normalizeExts(docExts),
		ignoreMarkers: ignoreMarkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)
	c.logger.Debug("classifier initialized",
		zap.Strings("code_extensions", c.codeExts),
		zap.Strings("doc_extensions", c.docExts),
		zap.Strings("ignore_markers", c.ignoreMarkers))
	return c
}

// Units returns a lazy sequence over the files under root. All code units
// are yielded before any documentation unit. Each call walks the tree again.
func (c *Classifier) Units(root string) domain.UnitSeq {
	return func(yield func(domain.Unit) bool) {
		included := 0
		defer func() {
			c.logger.Info("traversal complete", zap.String("root", root), zap.Int("files", included))
		}()
		for _, pass := range []struct {
			exts    []string
			exclude []string
			isCode  bool
		}{
			{exts: c.codeExts, isCode: true},
			{exts: c.docExts, exclude: c.codeExts, isCode: false},
		} {
			stopped := false
			err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
				if walkErr != nil {
					c.logger.Warn("walk error", zap.String("path", path), zap.Error(walkErr))
					if d != nil && d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				rel, err := filepath.Rel(root, path)
				if err != nil {
					return nil
				}
				rel = filepath.ToSlash(rel)
				if d.IsDir() {
					if rel != "." && c.ignored(rel) {
						c.logger.Debug("ignored directory", zap.String("path", rel))
						return filepath.SkipDir
					}
					return nil
				}
				ext := extOf(path)
				if !hasExt(pass.exts, ext) || hasExt(pass.exclude, ext) {
					return nil
				}
				if c.ignored(rel) {
					c.logger.Debug("ignored file", zap.String("path", rel))
					return nil
				}
				data, err := os.ReadFile(path)
				if err != nil {
					c.logger.Warn("skipping unreadable file", zap.String("path", rel), zap.Error(err))
					return nil
				}
				if !utf8.Valid(data) {
					c.logger.Warn("skipping non-utf8 file", zap.String("path", rel))
					return nil
				}
				unit := domain.Unit{
					Text:             string(data),
					FilePath:         rel,
					ContentType:      ext,
					IsCode:           pass.isCode,
					IsImplementation: pass.isCode && IsImplementationPath(rel),
					Title:            rel,
				}
				c.logger.Debug("included file", zap.String("path", rel), zap.Bool("is_code", pass.isCode))
				included++
				if !yield(unit) {
					stopped = true
					return filepath.SkipAll
				}
				return nil
			})
			if err != nil {
				c.logger.Warn("walk aborted", zap.String("root", root), zap.Error(err))
			}
			if stopped {
				return
			}
		}
	}
}

// IsImplementationPath reports whether a relative path names implementation
// code rather than a test or app entry file.
func IsImplementationPath(rel string) bool {
	if strings.HasPrefix(rel, "test_") || strings.HasPrefix(rel, "app_") {
		return false
	}
	return !strings.Contains(strings.ToLower(rel), "test")
}

func (c *Classifier) ignored(rel string) bool { return Ignored(rel, c.ignoreMarkers) }

// Ignored reports whether the slash-separated relative path rel has a path
// segment equal to one of markers. A marker containing slashes matches a
// run of whole segments, so ".git" skips ".git/HEAD" but not ".github".
func Ignored(rel string, markers []string) bool {
	padded := "/" + strings.Trim(rel, "/") + "/"
	for _, m := range markers {
		m = strings.Trim(m, "/")
		if m != "" && strings.Contains(padded, "/"+m+"/") {
			return true
		}
	}
	return false
}

func extOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func hasExt(exts []string, ext string) bool {
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
