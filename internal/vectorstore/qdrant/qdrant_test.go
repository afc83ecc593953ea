package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/domain"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

type fakeQdrant struct {
	mu       sync.Mutex
	requests []recorded
	exists   bool
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := recorded{method: r.Method, path: r.URL.Path}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
	}
	f.requests = append(f.requests, rec)
	if r.Header.Get("api-key") != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Method == http.MethodGet && !f.exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method == http.MethodPut && r.URL.Path == "/collections/code_chunks" {
		f.exists = true
	}
	_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
}

func newStore(t *testing.T, h http.Handler) *Storage {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewStorage(Config{URL: srv.URL, APIKey: "secret"})
}

func TestEnsureCollection_CreatesOnce(t *testing.T) {
	fake := &fakeQdrant{}
	s := newStore(t, fake)
	ctx := context.Background()

	require.NoError(t, s.EnsureCollection(ctx, "code_chunks", 8))
	require.NoError(t, s.EnsureCollection(ctx, "code_chunks", 8))

	require.Len(t, fake.requests, 3)
	assert.Equal(t, http.MethodGet, fake.requests[0].method)
	assert.Equal(t, http.MethodPut, fake.requests[1].method)
	vectors := fake.requests[1].body["vectors"].(map[string]any)
	assert.Equal(t, float64(8), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
	assert.Equal(t, http.MethodGet, fake.requests[2].method)
}

func TestEnsureCollection_InvalidDimension(t *testing.T) {
	s := newStore(t, &fakeQdrant{})
	assert.Error(t, s.EnsureCollection(context.Background(), "code_chunks", 0))
}

func TestEnsureCollection_ServerError(t *testing.T) {
	s := newStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	assert.Error(t, s.EnsureCollection(context.Background(), "code_chunks", 4))
}

func TestUpsert_PayloadAndBatching(t *testing.T) {
	fake := &fakeQdrant{exists: true}
	s := newStore(t, fake)

	points := make([]domain.Point, upsertBatch+1)
	for i := range points {
		points[i] = domain.Point{ID: "pkg/a.py#0", Vector: []float64{1, 0}, Text: "x", FilePath: "pkg/a.py", ContentType: "py", IsCode: true, IsImplementation: true}
	}
	require.NoError(t, s.Upsert(context.Background(), "code_chunks", points))

	require.Len(t, fake.requests, 2)
	first := fake.requests[0]
	assert.Equal(t, "/collections/code_chunks/points", first.path)
	batch := first.body["points"].([]any)
	assert.Len(t, batch, upsertBatch)
	assert.Len(t, fake.requests[1].body["points"].([]any), 1)

	p := batch[0].(map[string]any)
	_, err := uuid.Parse(p["id"].(string))
	assert.NoError(t, err)
	payload := p["payload"].(map[string]any)
	assert.Equal(t, "pkg/a.py", payload["file_path"])
	assert.Equal(t, "py", payload["content_type"])
	assert.Equal(t, true, payload["is_code"])
	assert.Equal(t, true, payload["is_implementation"])
}

func TestPointID_Deterministic(t *testing.T) {
	assert.Equal(t, PointID("a.py#0"), PointID("a.py#0"))
	assert.NotEqual(t, PointID("a.py#0"), PointID("a.py#1"))
}
