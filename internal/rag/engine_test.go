package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/domain"
	"repochat/internal/embedding/hashing"
	"repochat/internal/vectorstore/memory"
)

type fakeLLM struct {
	calls [][]domain.ChatMessage
	reply string
	err   error
}

func (f *fakeLLM) Generate(_ context.Context, messages []domain.ChatMessage) (string, error) {
	f.calls = append(f.calls, messages)
	return f.reply, f.err
}

func indexed(t *testing.T, emb *hashing.Embedder, units ...domain.Unit) *memory.Storage {
	t.Helper()
	for i := range units {
		units[i].Vector = emb.Embed(units[i].Text)
	}
	store := memory.NewStorage()
	require.NoError(t, store.Load(units))
	return store
}

func corpus() []domain.Unit {
	return []domain.Unit{
		{ID: "retry.py#0", FilePath: "retry.py", ContentType: "py", Text: "class RetryPolicy:\n    def backoff(self, attempt):\n        return 2 ** attempt\n"},
		{ID: "README.md#0", FilePath: "README.md", ContentType: "md", Text: "Install the package with pip and render markdown docs."},
	}
}

func TestAsk_RetrievesAndAnswers(t *testing.T) {
	emb := hashing.NewEmbedder(256)
	llm := &fakeLLM{reply: "It computes exponential backoff."}
	e := New(emb, indexed(t, emb, corpus()...), llm, WithTopK(1))

	answer, docs, err := e.Ask(context.Background(), "how does RetryPolicy backoff work")
	require.NoError(t, err)
	assert.Equal(t, "It computes exponential backoff.", answer)
	require.Len(t, docs, 1)
	assert.Equal(t, "retry.py", docs[0].Unit.FilePath)

	require.Len(t, llm.calls, 1)
	msgs := llm.calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "File: retry.py")
	assert.Contains(t, msgs[1].Content, "Question: how does RetryPolicy backoff work")
}

func TestAsk_ReplaysBoundedMemory(t *testing.T) {
	emb := hashing.NewEmbedder(64)
	llm := &fakeLLM{reply: "ok"}
	e := New(emb, indexed(t, emb, corpus()...), llm, WithMemoryTurns(2))
	ctx := context.Background()

	for _, q := range []string{"first question", "second question", "third question", "fourth question"} {
		_, _, err := e.Ask(ctx, q)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, e.MemoryLen())

	last := llm.calls[len(llm.calls)-1]
	// system + two remembered turns + current question
	require.Len(t, last, 6)
	assert.Equal(t, "second question", last[1].Content)
	assert.Equal(t, "third question", last[3].Content)

	e.ClearMemory()
	assert.Zero(t, e.MemoryLen())
	_, _, err := e.Ask(ctx, "fifth question")
	require.NoError(t, err)
	assert.Len(t, llm.calls[len(llm.calls)-1], 2)
}

func TestAsk_LLMErrorIsNotRemembered(t *testing.T) {
	emb := hashing.NewEmbedder(64)
	e := New(emb, indexed(t, emb, corpus()...), &fakeLLM{err: errors.New("rate limited")})

	_, _, err := e.Ask(context.Background(), "what is RetryPolicy")
	assert.ErrorContains(t, err, "rate limited")
	assert.Zero(t, e.MemoryLen())
}

func TestAsk_EmptyQuestion(t *testing.T) {
	emb := hashing.NewEmbedder(64)
	_, _, err := New(emb, memory.NewStorage(), &fakeLLM{}).Ask(context.Background(), "   ")
	assert.Error(t, err)
}

func TestRetrieve_LexicalFallbackOnZeroQuery(t *testing.T) {
	emb := hashing.NewEmbedder(64)
	e := New(emb, indexed(t, emb, corpus()...), &fakeLLM{}, WithTopK(1))

	// every token is a stop word for the embedder, so the query vector is zero;
	// only the README shares a token ("the") with the query
	docs, err := e.Retrieve(context.Background(), "show me how the ... works")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "README.md", docs[0].Unit.FilePath)
}
