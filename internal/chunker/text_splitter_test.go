package chunker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/domain"
)

func unit(path, text string) domain.Unit {
	return domain.Unit{Text: text, FilePath: path, ContentType: "py", IsCode: true, IsImplementation: true, Title: path}
}

func TestSplit_SingleChunkKeepsFormatting(t *testing.T) {
	s := NewTextSplitter(100, 10, nil)
	src := "class A:\n    def f(self):\n        return 1\n"
	chunks := s.Split(unit("a.py", src))

	require.Len(t, chunks, 1)
	assert.Equal(t, strings.TrimRight(src, "\n"), chunks[0].Text)
	assert.Equal(t, "a.py#0", chunks[0].ID)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.True(t, chunks[0].IsImplementation)
	assert.Equal(t, "py", chunks[0].ContentType)
}

func TestSplit_OverlappingWindows(t *testing.T) {
	s := NewTextSplitter(4, 2, nil)
	chunks := s.Split(unit("w.txt", "one two three four five six seven"))

	var texts []string
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	assert.Equal(t, []string{
		"one two three four",
		"three four five six",
		"five six seven",
	}, texts)
	assert.Equal(t, "w.txt#2", chunks[2].ID)
}

func TestSplit_PreservesIndentationAtChunkStart(t *testing.T) {
	s := NewTextSplitter(2, 0, nil)
	chunks := s.Split(unit("b.py", "class B:\n    x = 1\n"))

	require.Len(t, chunks, 3)
	assert.Equal(t, "class B:", chunks[0].Text)
	assert.Equal(t, "    x =", chunks[1].Text)
	assert.Equal(t, "1", chunks[2].Text)
}

func TestSplit_EmptyUnit(t *testing.T) {
	s := NewTextSplitter(10, 2, nil)
	assert.Empty(t, s.Split(unit("e.py", "  \n\t\n")))
}

func TestNewTextSplitter_ClampsInvalidOverlap(t *testing.T) {
	s := NewTextSplitter(3, 5, nil)
	assert.Equal(t, 0, s.chunkOverlap)
	s = NewTextSplitter(0, 0, nil)
	assert.Equal(t, 400, s.chunkSize)
}

func TestTransform_FlattensAndDropsEmpty(t *testing.T) {
	s := NewTextSplitter(2, 0, nil)
	out, err := s.Transform(context.Background(), []domain.Unit{
		unit("a.py", "a b c"),
		unit("empty.py", ""),
		unit("b.py", "d"),
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "a.py#0", out[0].ID)
	assert.Equal(t, "a.py#1", out[1].ID)
	assert.Equal(t, "b.py#0", out[2].ID)
}

func TestTransform_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTextSplitter(2, 0, nil).Transform(ctx, []domain.Unit{unit("a.py", "a")})
	assert.ErrorIs(t, err, context.Canceled)
}
