package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"repochat/internal/logging"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	dimensions  int
	batchSize   int
	concurrency int
	client      *http.Client
	maxRetries  int
	logger      *zap.Logger

	mu        sync.Mutex
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Dimensions  int
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
	Logger      *zap.Logger
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	c := &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      key,
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		client:      &http.Client{Timeout: t},
		maxRetries:  5,
		logger:      logging.OrNop(cfg.Logger),
	}
	c.logger.Debug("openai embedder initialized",
		zap.String("base_url", c.baseURL),
		zap.String("model", c.model),
		zap.Int("dimensions", c.dimensions),
		zap.Int("batch_size", c.batchSize),
		zap.Int("concurrency", c.concurrency))
	return c, nil
}

// Name returns the identifier of this embedder implementation, including the
// model and any requested dimensions so that indexes built with another
// model or vector size are not reused.
func (c *Client) Name() string {
	if c.dimensions > 0 {
		return fmt.Sprintf("openai:%s:%d", c.model, c.dimensions)
	}
	return "openai:" + c.model
}

// Dimension returns the configured dimensionality, or the one observed on
// the first response when none was configured.
func (c *Client) Dimension() int {
	if c.dimensions > 0 {
		return c.dimensions
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}

// RequestSize is the number of texts the caller should hand to EmbedBatch
// at once to keep every concurrent request full.
func (c *Client) RequestSize() int { return c.batchSize * c.concurrency }

// EmbedBatch returns one vector per text, in input order. Texts are sent in
// requests of at most BatchSize inputs, Concurrency requests at a time.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := c.embedRequest(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

func (c *Client) embedRequest(ctx context.Context, texts []string) ([][]float64, error) {
	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	data, err := json.Marshal(embeddingRequest{Input: texts, Model: c.model, Dimensions: c.dimensions})
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				c.logger.Warn("embedding request failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
				if err := sleep(ctx, retryDelay(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("openai embeddings failed: %s", resp.Status)
			}
			delay := retryDelay(attempt)
			// Respect Retry-After if provided
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				delay = time.Duration(secs) * time.Second
			}
			c.logger.Warn("embedding request throttled, retrying",
				zap.Int("attempt", attempt), zap.String("status", resp.Status), zap.Duration("delay", delay))
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("openai embeddings failed: %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, err
		}
		vecs, err := decodeEmbeddings(payload, len(texts))
		if err != nil {
			return nil, err
		}
		c.observeDimension(len(vecs[0]))
		return vecs, nil
	}
	return nil, errors.New("no embedding returned")
}

// decodeEmbeddings accepts the OpenAI shape {"data":[{"index":i,"embedding":[...]}]}
// and falls back to the Ollama shape {"embeddings":[[...]]}.
func decodeEmbeddings(payload []byte, want int) ([][]float64, error) {
	var openaiOut struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) > 0 {
		sort.Slice(openaiOut.Data, func(i, j int) bool { return openaiOut.Data[i].Index < openaiOut.Data[j].Index })
		vecs := make([][]float64, len(openaiOut.Data))
		for i, d := range openaiOut.Data {
			vecs[i] = d.Embedding
		}
		return checkEmbeddings(vecs, want)
	}
	var ollamaOut struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embeddings) > 0 {
		return checkEmbeddings(ollamaOut.Embeddings, want)
	}
	return nil, errors.New("no embedding returned")
}

func checkEmbeddings(vecs [][]float64, want int) ([][]float64, error) {
	if len(vecs) != want {
		return nil, fmt.Errorf("expected %d embeddings, got %d", want, len(vecs))
	}
	for _, v := range vecs {
		if len(v) == 0 {
			return nil, errors.New("empty embedding")
		}
	}
	return vecs, nil
}

func (c *Client) observeDimension(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = n
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
