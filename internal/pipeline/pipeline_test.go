package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/domain"
)

type funcStage struct {
	name string
	fn   func([]domain.Unit) ([]domain.Unit, error)
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Transform(_ context.Context, units []domain.Unit) ([]domain.Unit, error) {
	return s.fn(units)
}

type fakeEmbedder struct {
	calls [][]string
	err   error
	short bool
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return 2 }

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{float64(len(texts[i])), 1}
	}
	return out, nil
}

func TestSequential_FoldsInOrder(t *testing.T) {
	upper := funcStage{"upper", func(us []domain.Unit) ([]domain.Unit, error) {
		for i := range us {
			us[i].Text = strings.ToUpper(us[i].Text)
		}
		return us, nil
	}}
	dup := funcStage{"dup", func(us []domain.Unit) ([]domain.Unit, error) {
		return append(us, us...), nil
	}}

	p := NewSequential(nil, upper, dup)
	out, err := p.Transform(context.Background(), []domain.Unit{{Text: "a"}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[1].Text)
	assert.Equal(t, "sequential(upper,dup)", p.Name())
}

func TestSequential_StopsAtFailingStage(t *testing.T) {
	ran := false
	fail := funcStage{"fail", func([]domain.Unit) ([]domain.Unit, error) { return nil, errors.New("boom") }}
	after := funcStage{"after", func(us []domain.Unit) ([]domain.Unit, error) { ran = true; return us, nil }}

	_, err := NewSequential(nil, fail, after).Transform(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage fail")
	assert.False(t, ran)
}

func TestToEmbeddings_Batches(t *testing.T) {
	emb := &fakeEmbedder{}
	units := []domain.Unit{{ID: "a", Text: "a"}, {ID: "b", Text: "bb"}, {ID: "c", Text: "ccc"}}

	out, err := NewToEmbeddings(emb, 2, nil).Transform(context.Background(), units)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, emb.calls)
	assert.Equal(t, []float64{3, 1}, out[2].Vector)
	assert.Nil(t, units[0].Vector, "input units are not mutated")
}

func TestToEmbeddings_Errors(t *testing.T) {
	units := []domain.Unit{{ID: "a", Text: "a"}}

	_, err := NewToEmbeddings(&fakeEmbedder{err: errors.New("down")}, 1, nil).Transform(context.Background(), units)
	assert.Error(t, err)

	_, err = NewToEmbeddings(&fakeEmbedder{short: true}, 1, nil).Transform(context.Background(), units)
	assert.Error(t, err)
}
