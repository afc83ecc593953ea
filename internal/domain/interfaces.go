package domain

import "context"

// Unit is one retrievable piece of repository content: a whole classified
// file before splitting, or one chunk of it afterwards.
type Unit struct {
	ID               string    `json:"id,omitempty"`
	Text             string    `json:"text"`
	FilePath         string    `json:"file_path"`
	ContentType      string    `json:"content_type"`
	IsCode           bool      `json:"is_code"`
	IsImplementation bool      `json:"is_implementation"`
	Title            string    `json:"title"`
	ChunkIndex       int       `json:"chunk_index"`
	Vector           []float64 `json:"vector,omitempty"`
}

// UnitSeq is a lazy, restartable sequence of units. Calling it again
// produces the sequence from the start.
type UnitSeq func(yield func(Unit) bool)

// Collect drains the sequence into a slice.
func (s UnitSeq) Collect() []Unit {
	var out []Unit
	s(func(u Unit) bool {
		out = append(out, u)
		return true
	})
	return out
}

// SearchResult represents a matching unit with a relevance score.
type SearchResult struct {
	Unit  Unit
	Score float64
}

// Message is one entry of the conversation shown to the user.
type Message struct {
	Role     string
	Content  string
	Context  string
	FilePath string
	Language string
}

// ChatMessage is one turn sent to the language model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Point is a unit as uploaded to an external vector database.
type Point struct {
	ID               string
	Vector           []float64
	Text             string
	FilePath         string
	ContentType      string
	IsCode           bool
	IsImplementation bool
}

// Transformer is one stage of the ingestion pipeline.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, units []Unit) ([]Unit, error)
}

// Embedder converts text into numeric vectors.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorStore is an optional external vector database.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, name string, points []Point) error
}

// Retriever ranks indexed units against a query vector.
type Retriever interface {
	Load(units []Unit) error
	Search(vector []float64, topK int) ([]SearchResult, error)
}

// LLM produces an answer from a conversation.
type LLM interface {
	Generate(ctx context.Context, messages []ChatMessage) (string, error)
}
