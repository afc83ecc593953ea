package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/domain"
)

func unit(id, text string, vec ...float64) domain.Unit {
	return domain.Unit{ID: id, Text: text, FilePath: id, Vector: vec}
}

func TestSearch_RanksByCosine(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Load([]domain.Unit{
		unit("a", "alpha", 1, 0),
		unit("b", "beta", 0, 1),
		unit("c", "gamma", 0.6, 0.8),
	}))
	assert.Equal(t, 3, s.Len())

	res, err := s.Search([]float64{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "b", res[0].Unit.ID)
	assert.Equal(t, "c", res[1].Unit.ID)
	assert.InDelta(t, 0.8, res[1].Score, 1e-9)
}

func TestSearch_TopKDefaultsAndClamps(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Load([]domain.Unit{unit("a", "x", 1), unit("b", "y", 0.5)}))

	res, err := s.Search([]float64{1}, 0)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Load([]domain.Unit{unit("a", "x", 1, 0)}))

	_, err := s.Search([]float64{1, 0, 0}, 1)
	assert.Error(t, err)
}

func TestLoad_RejectsBadVectors(t *testing.T) {
	s := NewStorage()
	assert.Error(t, s.Load([]domain.Unit{unit("a", "x")}))
	assert.Error(t, s.Load([]domain.Unit{unit("a", "x", 1, 0), unit("b", "y", 1)}))
}

func TestLoad_Replaces(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Load([]domain.Unit{unit("a", "x", 1), unit("b", "y", 1)}))
	require.NoError(t, s.Load([]domain.Unit{unit("c", "z", 1)}))
	assert.Equal(t, 1, s.Len())
}

func TestLexicalSearch(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Load([]domain.Unit{
		unit("docs.md", "how to install the package", 1),
		unit("retry.py", "class RetryPolicy:\n    max_retries = 3", 1),
	}))

	res := s.LexicalSearch("max_retries in RetryPolicy", 1)
	require.Len(t, res, 1)
	assert.Equal(t, "retry.py", res[0].Unit.ID)
	assert.Greater(t, res[0].Score, 0.0)
}
