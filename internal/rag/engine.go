// Package rag answers questions about an indexed repository: it retrieves
// the most relevant units for a query and asks the language model with
// those units and the recent dialog as context.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"repochat/internal/domain"
	"repochat/internal/logging"
)

const systemPrompt = `You are a code assistant answering questions about a software repository.
Use the provided source excerpts as your primary reference. Cite file paths when you refer to code.
If the excerpts do not contain the answer, say so instead of guessing.`

// lexicalSearcher is implemented by retrievers that can rank by token
// overlap when vector scores carry no signal.
type lexicalSearcher interface {
	LexicalSearch(query string, topK int) []domain.SearchResult
}

type turn struct {
	user      string
	assistant string
}

// Engine is a retrieval-augmented answering engine with dialog memory.
type Engine struct {
	embedder    domain.Embedder
	retriever   domain.Retriever
	llm         domain.LLM
	topK        int
	memoryTurns int
	logger      *zap.Logger

	mu    sync.Mutex
	turns []turn
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = logging.OrNop(l) } }

// WithTopK sets how many units are retrieved per question.
func WithTopK(k int) Option { return func(e *Engine) { e.topK = k } }

// WithMemoryTurns bounds how many past question/answer pairs are replayed
// to the language model.
func WithMemoryTurns(n int) Option { return func(e *Engine) { e.memoryTurns = n } }

func New(embedder domain.Embedder, retriever domain.Retriever, llm domain.LLM, opts ...Option) *Engine {
	e := &Engine{
		embedder:    embedder,
		retriever:   retriever,
		llm:         llm,
		topK:        5,
		memoryTurns: 10,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.topK <= 0 {
		e.topK = 5
	}
	if e.memoryTurns < 0 {
		e.memoryTurns = 0
	}
	return e
}

// Retrieve returns the units most relevant to query, best first.
func (e *Engine) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	vecs, err := e.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, errors.New("embed query: no vector returned")
	}
	vec := vecs[0]
	if isZero(vec) {
		return e.lexical(query, "query has no embeddable tokens"), nil
	}
	res, err := e.retriever.Search(vec, e.topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	allZero := true
	for _, r := range res {
		if r.Score > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero && len(res) > 0 {
		return e.lexical(query, "vector scores are all zero"), nil
	}
	return res, nil
}

func (e *Engine) lexical(query, reason string) []domain.SearchResult {
	ls, ok := e.retriever.(lexicalSearcher)
	if !ok {
		return nil
	}
	e.logger.Debug("falling back to lexical search", zap.String("reason", reason))
	return ls.LexicalSearch(query, e.topK)
}

// Ask retrieves context for query, generates an answer, and records the
// exchange in the dialog memory.
func (e *Engine) Ask(ctx context.Context, query string) (string, []domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil, errors.New("empty question")
	}
	docs, err := e.Retrieve(ctx, query)
	if err != nil {
		return "", nil, err
	}
	messages := e.buildMessages(query, docs)
	answer, err := e.llm.Generate(ctx, messages)
	if err != nil {
		return "", nil, fmt.Errorf("generate answer: %w", err)
	}
	e.remember(query, answer)
	e.logger.Debug("answer generated", zap.Int("documents", len(docs)), zap.Int("messages", len(messages)))
	return answer, docs, nil
}

func (e *Engine) buildMessages(query string, docs []domain.SearchResult) []domain.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	messages := make([]domain.ChatMessage, 0, 2+2*len(e.turns))
	messages = append(messages, domain.ChatMessage{Role: "system", Content: systemPrompt})
	for _, t := range e.turns {
		messages = append(messages,
			domain.ChatMessage{Role: "user", Content: t.user},
			domain.ChatMessage{Role: "assistant", Content: t.assistant})
	}
	var b strings.Builder
	if len(docs) > 0 {
		b.WriteString("Relevant source excerpts:\n\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "File: %s\n```%s\n%s\n```\n\n", d.Unit.FilePath, d.Unit.ContentType, strings.TrimRight(d.Unit.Text, "\n"))
		}
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	messages = append(messages, domain.ChatMessage{Role: "user", Content: b.String()})
	return messages
}

func (e *Engine) remember(query, answer string) {
	if e.memoryTurns == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = append(e.turns, turn{user: query, assistant: answer})
	if over := len(e.turns) - e.memoryTurns; over > 0 {
		e.turns = append([]turn(nil), e.turns[over:]...)
	}
}

// ClearMemory forgets all previous dialog turns.
func (e *Engine) ClearMemory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = nil
}

// MemoryLen returns the number of remembered dialog turns.
func (e *Engine) MemoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.turns)
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
