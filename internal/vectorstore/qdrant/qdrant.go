package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repochat/internal/domain"
	"repochat/internal/logging"
)

// upsertBatch bounds the number of points sent in one request.
const upsertBatch = 256

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates collections if missing.
type Storage struct {
	url    string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Logger  *zap.Logger
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	s := &Storage{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
		logger: logging.OrNop(cfg.Logger),
	}
	s.logger.Debug("qdrant store initialized", zap.String("url", s.url), zap.Duration("timeout", timeout))
	return s
}

// PointID derives a stable UUID for a unit id, so re-uploading a repository
// overwrites its previous points.
func PointID(unitID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(unitID)).String()
}

// EnsureCollection creates the collection with the given vector size unless
// it already exists.
func (s *Storage) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	url := fmt.Sprintf("%s/collections/%s", s.url, name)
	resp, err := s.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		s.logger.Debug("qdrant collection exists", zap.String("collection", name))
		return nil
	case resp.StatusCode != http.StatusNotFound:
		return fmt.Errorf("qdrant GET %s failed: %s", url, resp.Status)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.sendJSON(ctx, http.MethodPut, url, body); err != nil {
		return err
	}
	s.logger.Info("qdrant collection created", zap.String("collection", name), zap.Int("dimension", dimension))
	return nil
}

// Upsert writes points to the collection in batches, waiting for each batch
// to be applied.
func (s *Storage) Upsert(ctx context.Context, name string, points []domain.Point) error {
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, name)
	for start := 0; start < len(points); start += upsertBatch {
		end := start + upsertBatch
		if end > len(points) {
			end = len(points)
		}
		batch := make([]map[string]any, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, map[string]any{
				"id":     PointID(p.ID),
				"vector": p.Vector,
				"payload": map[string]any{
					"text":              p.Text,
					"file_path":         p.FilePath,
					"content_type":      p.ContentType,
					"is_code":           p.IsCode,
					"is_implementation": p.IsImplementation,
				},
			})
		}
		if err := s.sendJSON(ctx, http.MethodPut, url, map[string]any{"points": batch}); err != nil {
			return err
		}
	}
	s.logger.Info("qdrant upsert complete", zap.String("collection", name), zap.Int("points", len(points)))
	return nil
}

func (s *Storage) sendJSON(ctx context.Context, method, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := s.do(ctx, method, url, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	return nil
}

func (s *Storage) do(ctx context.Context, method, url string, data []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	return s.client.Do(req)
}
