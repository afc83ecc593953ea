// Package service wires the ingestion pipeline, the index cache and the
// answering engine into a chat session over one repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"repochat/internal/cache"
	"repochat/internal/chunker"
	"repochat/internal/classifier"
	"repochat/internal/config"
	"repochat/internal/construct"
	"repochat/internal/domain"
	"repochat/internal/intent"
	"repochat/internal/logging"
	"repochat/internal/pipeline"
	"repochat/internal/rag"
	"repochat/internal/repo"
	"repochat/internal/summarizer"
	"repochat/internal/vectorstore/memory"
)

var (
	// ErrNoDocuments is returned by Open when the repository contains no
	// classifiable files.
	ErrNoDocuments = errors.New("no documents found in the repository")
	// ErrIndexOnly is returned by Ask on a session opened without a language model.
	ErrIndexOnly = errors.New("session has no language model")
)

// Session is an opened repository ready for questions.
type Session struct {
	name       string
	layout     cache.Layout
	rebuilt    bool
	unitCount  int
	summary    string
	engine     *rag.Engine
	logger     *zap.Logger
	collection string

	mu       sync.Mutex
	messages []domain.Message
}

type options struct {
	logger    *zap.Logger
	embedder  domain.Embedder
	batchSize int
	llm       domain.LLM
	store     domain.VectorStore
	indexOnly bool
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithEmbedder overrides the configured embedder.
func WithEmbedder(e domain.Embedder, batchSize int) Option {
	return func(o *options) { o.embedder, o.batchSize = e, batchSize }
}

// WithLLM overrides the configured language model.
func WithLLM(l domain.LLM) Option { return func(o *options) { o.llm = l } }

// WithVectorStore overrides the configured external vector store.
func WithVectorStore(s domain.VectorStore) Option { return func(o *options) { o.store = s } }

// IndexOnly opens the repository without a language model; Ask then fails.
func IndexOnly() Option { return func(o *options) { o.indexOnly = true } }

// Open prepares the repository at input (a local path or git URL): it reuses
// the cached index when one loads, otherwise fetches a snapshot, classifies
// it and builds the index.
func Open(ctx context.Context, cfg *config.AppConfig, input string, opts ...Option) (*Session, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := logging.OrNop(o.logger)

	if err := cfg.Validate(o.llm == nil && !o.indexOnly); err != nil {
		return nil, err
	}

	emb, batch := o.embedder, o.batchSize
	if emb == nil {
		var err error
		if emb, batch, err = NewEmbedder(cfg.Embedder, logger); err != nil {
			return nil, err
		}
	}
	llm := o.llm
	if llm == nil && !o.indexOnly {
		var err error
		if llm, err = NewLLM(cfg.LLM, logger); err != nil {
			return nil, err
		}
	}
	store, collection := o.store, ""
	if cfg.VectorStore.Qdrant != nil {
		collection = cfg.VectorStore.Qdrant.Collection
	}
	if store == nil {
		var err error
		if store, collection, err = NewVectorStore(cfg.VectorStore, logger); err != nil {
			return nil, err
		}
	}
	if collection == "" {
		collection = "code_chunks"
	}

	name := repo.Name(input)
	layout, err := cache.ResolveLayout(cfg.DataDir, name)
	if err != nil {
		return nil, err
	}
	logger.Info("repository layout resolved",
		zap.String("repository", name),
		zap.String("source_dir", layout.SourceDir),
		zap.String("cache_file", layout.CacheFile))

	stages := pipeline.NewSequential(logger,
		chunker.NewTextSplitter(cfg.Splitter.ChunkSize, cfg.Splitter.ChunkOverlap, logger),
		pipeline.NewToEmbeddings(emb, batch, logger),
	)
	manager := cache.NewManager(name, layout, emb.Name(), stages,
		cache.WithDimension(emb.Dimension()), cache.WithLogger(logger))
	rebuild, err := manager.LoadOrPrepare(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{name: name, layout: layout, rebuilt: rebuild, logger: logger, collection: collection}
	if rebuild {
		if err := s.build(ctx, cfg, input, manager, store, logger); err != nil {
			return nil, err
		}
	} else if store != nil {
		logger.Info("index reused from cache, skipping vector store upload",
			zap.String("collection", collection),
			zap.String("cache_file", layout.CacheFile))
	}

	idx, err := manager.Index()
	if err != nil {
		return nil, err
	}
	retriever := memory.NewStorage()
	if err := retriever.Load(idx.Units); err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	s.unitCount = len(idx.Units)

	summary, err := summarizer.NewFrequencySummarizer().SummarizeUnits(idx.Units, cfg.Summarizer.MaxSentences)
	if err != nil {
		logger.Warn("summary failed", zap.Error(err))
	}
	s.summary = summary

	if llm != nil {
		s.engine = rag.New(emb, retriever, llm,
			rag.WithTopK(cfg.LLM.TopK),
			rag.WithMemoryTurns(cfg.LLM.MemoryTurns),
			rag.WithLogger(logger))
	}
	logger.Info("repository ready", zap.String("repository", name), zap.Int("units", s.unitCount), zap.Bool("rebuilt", rebuild))
	return s, nil
}

func (s *Session) build(ctx context.Context, cfg *config.AppConfig, input string, manager *cache.Manager, store domain.VectorStore, logger *zap.Logger) error {
	fetcher := repo.NewFetcher(cfg.Classifier.IgnoreMarkers, logger)
	if err := fetcher.Fetch(ctx, input, s.layout.SourceDir); err != nil {
		return err
	}
	cls := classifier.New(cfg.Classifier.CodeExtensions, cfg.Classifier.DocExtensions, cfg.Classifier.IgnoreMarkers,
		classifier.WithLogger(logger))
	units := cls.Units(s.layout.SourceDir).Collect()
	if len(units) == 0 {
		logger.Warn("no documents found", zap.String("source_dir", s.layout.SourceDir))
		return fmt.Errorf("%w: %s", ErrNoDocuments, s.layout.SourceDir)
	}
	logger.Info("processing repository files", zap.Int("documents", len(units)))
	if err := manager.Commit(ctx, units); err != nil {
		return fmt.Errorf("failed to transform and save documents: %w", err)
	}
	if store == nil {
		return nil
	}
	idx, err := manager.Index()
	if err != nil {
		return err
	}
	return upload(ctx, store, s.collection, idx)
}

func upload(ctx context.Context, store domain.VectorStore, collection string, idx *cache.Index) error {
	if len(idx.Units) == 0 {
		return nil
	}
	if err := store.EnsureCollection(ctx, collection, idx.Dimension); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	points := make([]domain.Point, len(idx.Units))
	for i, u := range idx.Units {
		points[i] = domain.Point{
			ID:               u.ID,
			Vector:           u.Vector,
			Text:             u.Text,
			FilePath:         u.FilePath,
			ContentType:      u.ContentType,
			IsCode:           u.IsCode,
			IsImplementation: u.IsImplementation,
		}
	}
	if err := store.Upsert(ctx, collection, points); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	return nil
}

func (s *Session) Name() string         { return s.name }
func (s *Session) Layout() cache.Layout { return s.layout }
func (s *Session) Rebuilt() bool        { return s.rebuilt }
func (s *Session) UnitCount() int       { return s.unitCount }
func (s *Session) Summary() string      { return s.summary }

// Ask answers query and appends the user and assistant messages to the
// conversation. The returned assistant message carries the source context:
// the best implementation unit, narrowed to the class the question names
// when that unit is Python.
func (s *Session) Ask(ctx context.Context, query string) (domain.Message, error) {
	if s.engine == nil {
		return domain.Message{}, ErrIndexOnly
	}
	s.logger.Info("user submitted prompt", zap.String("prompt", query))
	s.appendMessage(domain.Message{Role: "user", Content: query})

	answer, docs, err := s.engine.Ask(ctx, query)
	if err != nil {
		s.logger.Error("error generating response", zap.Error(err))
		return domain.Message{}, err
	}
	msg := domain.Message{Role: "assistant", Content: answer}
	if len(docs) > 0 {
		u := PickContext(docs)
		msg.Context = u.Text
		msg.FilePath = u.FilePath
		msg.Language = Language(u.ContentType)
		if name, ok := intent.ExtractClassName(query); ok && u.ContentType == "py" {
			if block, found := construct.ExtractBlock(u.Text, name); found {
				msg.Context = block
				s.logger.Debug("extracted class definition", zap.String("class", name), zap.String("path", u.FilePath))
			}
		}
	}
	s.appendMessage(msg)
	return msg, nil
}

// Messages returns a copy of the conversation so far.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

// Clear empties the conversation and the language model's dialog memory.
func (s *Session) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
	if s.engine != nil {
		s.engine.ClearMemory()
	}
	s.logger.Info("chat messages and conversation history cleared")
}

func (s *Session) appendMessage(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// PickContext returns the first implementation unit among docs, or the
// first unit when none is an implementation. docs must not be empty.
func PickContext(docs []domain.SearchResult) domain.Unit {
	for _, d := range docs {
		if d.Unit.IsImplementation {
			return d.Unit
		}
	}
	return docs[0].Unit
}

var languages = map[string]string{
	"py":   "python",
	"js":   "javascript",
	"ts":   "typescript",
	"java": "java",
	"cpp":  "cpp",
	"c":    "c",
	"go":   "go",
	"rs":   "rust",
	"md":   "markdown",
	"rst":  "rst",
	"json": "json",
	"yaml": "yaml",
	"yml":  "yaml",
	"txt":  "text",
}

// Language maps a content type to a syntax-highlighting language name.
func Language(contentType string) string {
	if l, ok := languages[contentType]; ok {
		return l
	}
	return "text"
}
