// Package cache decides whether a repository index can be reused or has to
// be rebuilt, and persists built indexes as zstd-compressed JSON.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"repochat/internal/domain"
	"repochat/internal/logging"
)

const (
	// TransformKey names the registered ingestion pipeline.
	TransformKey = "split_and_embed"
	// SchemaVersion is bumped whenever the persisted Index layout changes.
	SchemaVersion = 1
)

var (
	ErrNotPending = errors.New("cache: no transform pending")
	ErrNotReady   = errors.New("cache: index not ready")
)

// Index is a persisted repository index.
type Index struct {
	SchemaVersion int           `json:"schema_version"`
	Name          string        `json:"name"`
	SourceDir     string        `json:"source_dir"`
	CacheFile     string        `json:"cache_file"`
	TransformKey  string        `json:"transform_key"`
	Embedder      string        `json:"embedder"`
	Dimension     int           `json:"dimension"`
	BuiltAt       time.Time     `json:"built_at"`
	Units         []domain.Unit `json:"units"`
}

// State is the lifecycle position of a Manager.
type State int

const (
	Unloaded State = iota
	Ready
	PendingTransform
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case PendingTransform:
		return "pending_transform"
	default:
		return "unloaded"
	}
}

// Manager owns the reuse-or-rebuild decision for one repository.
type Manager struct {
	name         string
	layout       Layout
	embedder     string
	dimension    int
	pipeline     domain.Transformer
	transformers map[string]domain.Transformer
	state        State
	index        *Index
	logger       *zap.Logger
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// WithDimension sets the vector size the configured embedder produces. A
// cached index with another dimension is rebuilt. Zero disables the check.
func WithDimension(d int) Option {
	return func(m *Manager) { m.dimension = d }
}

// NewManager creates a manager for the named repository. embedderName is
// stored with the index; a cached index built by another embedder is rebuilt.
func NewManager(name string, layout Layout, embedderName string, pipeline domain.Transformer, opts ...Option) *Manager {
	m := &Manager{
		name:         name,
		layout:       layout,
		embedder:     embedderName,
		pipeline:     pipeline,
		transformers: make(map[string]domain.Transformer),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State   { return m.state }
func (m *Manager) Layout() Layout { return m.layout }

// LoadOrPrepare loads the cached index when possible. It returns true when
// the caller has to supply units to Commit. Load failures are logged and
// lead to a rebuild.
func (m *Manager) LoadOrPrepare(ctx context.Context) (bool, error) {
	switch m.state {
	case Ready:
		return false, nil
	case PendingTransform:
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path := m.layout.CacheFile
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		m.logger.Info("index not found, building a new one", zap.String("path", path))
		m.state = PendingTransform
		return true, nil
	}
	idx, err := ReadIndex(path)
	if err == nil {
		err = m.check(idx)
	}
	if err != nil {
		m.logger.Warn("loading index failed, rebuilding", zap.String("path", path), zap.Error(err))
		m.state = PendingTransform
		return true, nil
	}
	m.index = idx
	m.state = Ready
	m.logger.Info("index loaded, skipping transformation",
		zap.String("path", path), zap.Int("units", len(idx.Units)))
	return false, nil
}

func (m *Manager) check(idx *Index) error {
	if idx.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema version %d, want %d", idx.SchemaVersion, SchemaVersion)
	}
	if idx.Embedder != m.embedder {
		return fmt.Errorf("index built with embedder %q, configured %q", idx.Embedder, m.embedder)
	}
	if m.dimension > 0 && idx.Dimension != m.dimension {
		return fmt.Errorf("index dimension %d, embedder produces %d", idx.Dimension, m.dimension)
	}
	return nil
}

// Commit runs the pipeline over units and persists the result. On failure
// nothing is written and the manager stays pending, so Commit may be retried.
func (m *Manager) Commit(ctx context.Context, units []domain.Unit) error {
	if m.state != PendingTransform {
		return ErrNotPending
	}
	m.transformers[TransformKey] = m.pipeline
	m.logger.Info("transformer registered", zap.String("key", TransformKey), zap.String("pipeline", m.pipeline.Name()))

	out, err := m.transform(ctx, TransformKey, units)
	if err != nil {
		return err
	}
	idx := &Index{
		SchemaVersion: SchemaVersion,
		Name:          m.name,
		SourceDir:     m.layout.SourceDir,
		CacheFile:     m.layout.CacheFile,
		TransformKey:  TransformKey,
		Embedder:      m.embedder,
		BuiltAt:       time.Now().UTC(),
		Units:         out,
	}
	if len(out) > 0 {
		idx.Dimension = len(out[0].Vector)
	}
	if err := WriteIndex(m.layout.CacheFile, idx); err != nil {
		return err
	}
	m.index = idx
	m.state = Ready
	m.logger.Info("index saved", zap.String("path", m.layout.CacheFile), zap.Int("units", len(out)))
	return nil
}

func (m *Manager) transform(ctx context.Context, key string, units []domain.Unit) ([]domain.Unit, error) {
	t, ok := m.transformers[key]
	if !ok {
		return nil, fmt.Errorf("no transformer registered under %q", key)
	}
	m.logger.Debug("units loaded", zap.Int("units", len(units)))
	out, err := t.Transform(ctx, units)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", key, err)
	}
	return out, nil
}

// Index returns the ready index.
func (m *Manager) Index() (*Index, error) {
	if m.state != Ready {
		return nil, ErrNotReady
	}
	return m.index, nil
}

// ReadIndex decodes an index file.
func ReadIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open zstd stream: %w", err)
	}
	defer zr.Close()
	var idx Index
	if err := json.NewDecoder(zr).Decode(&idx); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}
	return &idx, nil
}

// WriteIndex writes idx to path atomically: the index is written to a
// temporary file in the same directory, synced, then renamed over path.
func WriteIndex(path string, idx *Index) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		return fmt.Errorf("failed to open zstd writer: %w", err)
	}
	if err = json.NewEncoder(zw).Encode(idx); err != nil {
		_ = zw.Close()
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("failed to flush index: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync index: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename index: %w", err)
	}
	return nil
}
