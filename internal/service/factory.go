package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"repochat/internal/config"
	"repochat/internal/domain"
	"repochat/internal/embedding/hashing"
	embopenai "repochat/internal/embedding/openai"
	llmopenai "repochat/internal/llm/openai"
	"repochat/internal/vectorstore/qdrant"
)

const defaultEmbedBatch = 500

// NewEmbedder builds the configured embedder and the number of texts the
// embedding stage should hand it per call.
func NewEmbedder(cfg config.EmbedderConfig, logger *zap.Logger) (domain.Embedder, int, error) {
	switch cfg.Type {
	case "hashing":
		dim := 0
		if cfg.Hashing != nil {
			dim = cfg.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), defaultEmbedBatch, nil
	case "openai", "":
		if cfg.OpenAI == nil {
			return nil, 0, errors.New("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			Dimensions:  cfg.OpenAI.Dimensions,
			BatchSize:   cfg.OpenAI.BatchSize,
			Concurrency: cfg.OpenAI.Concurrency,
			Timeout:     time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			Logger:      logger,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, client.RequestSize(), nil
	default:
		return nil, 0, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

// NewLLM builds the answering model client.
func NewLLM(cfg config.LLMConfig, logger *zap.Logger) (domain.LLM, error) {
	client, err := llmopenai.NewClient(llmopenai.Config{
		BaseURL:   cfg.BaseURL,
		APIKeyEnv: cfg.APIKeyEnv,
		Model:     cfg.Model,
		Timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("llm init failed: %w", err)
	}
	return client, nil
}

// NewVectorStore builds the optional external vector store and the
// collection to upload to. It returns a nil store when none is configured.
func NewVectorStore(cfg config.VectorStoreConfig, logger *zap.Logger) (domain.VectorStore, string, error) {
	switch cfg.Type {
	case "none", "":
		return nil, "", nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, "", errors.New("qdrant config missing")
		}
		st := qdrant.NewStorage(qdrant.Config{
			URL:     cfg.Qdrant.URL,
			APIKey:  cfg.Qdrant.APIKey,
			Timeout: time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
			Logger:  logger,
		})
		return st, cfg.Qdrant.Collection, nil
	default:
		return nil, "", fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}
