package chunker

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"repochat/internal/domain"
	"repochat/internal/logging"
)

// TextSplitter splits units into overlapping word windows. Chunk text is
// sliced from the original so indentation and line breaks survive.
type TextSplitter struct {
	chunkSize    int
	chunkOverlap int
	words        *regexp.Regexp
	logger       *zap.Logger
}

// NewTextSplitter creates a splitter emitting chunkSize words per chunk with
// chunkOverlap words shared between neighbours.
func NewTextSplitter(chunkSize, chunkOverlap int, logger *zap.Logger) *TextSplitter {
	if chunkSize <= 0 {
		chunkSize = 400
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	s := &TextSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		words:        regexp.MustCompile(`\S+`),
		logger:       logging.OrNop(logger),
	}
	s.logger.Debug("text splitter initialized",
		zap.Int("chunk_size", chunkSize), zap.Int("chunk_overlap", chunkOverlap))
	return s
}

// Name identifies the stage in logs.
func (s *TextSplitter) Name() string { return "text_splitter" }

// Transform replaces each unit with its chunks. Whitespace-only units are dropped.
func (s *TextSplitter) Transform(ctx context.Context, units []domain.Unit) ([]domain.Unit, error) {
	var out []domain.Unit
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks := s.Split(u)
		if len(chunks) == 0 {
			s.logger.Debug("dropping empty unit", zap.String("path", u.FilePath))
			continue
		}
		out = append(out, chunks...)
	}
	s.logger.Info("split units", zap.Int("units", len(units)), zap.Int("chunks", len(out)))
	return out, nil
}

// Split cuts one unit into chunks carrying the unit's metadata.
func (s *TextSplitter) Split(u domain.Unit) []domain.Unit {
	spans := s.words.FindAllStringIndex(u.Text, -1)
	if len(spans) == 0 {
		return nil
	}
	step := s.chunkSize - s.chunkOverlap
	var chunks []domain.Unit
	idx := 0
	for i := 0; i < len(spans); i += step {
		end := i + s.chunkSize
		if end > len(spans) {
			end = len(spans)
		}
		start := lineIndentStart(u.Text, spans[i][0])
		chunk := u
		chunk.Text = u.Text[start:spans[end-1][1]]
		chunk.ChunkIndex = idx
		chunk.ID = u.FilePath + "#" + strconv.Itoa(idx)
		chunk.Vector = nil
		if chunk.Title == "" {
			chunk.Title = u.FilePath
		}
		chunks = append(chunks, chunk)
		if end == len(spans) {
			break
		}
		idx++
	}
	return chunks
}

// lineIndentStart moves pos back over the indentation of its line when only
// whitespace precedes it on that line.
func lineIndentStart(text string, pos int) int {
	lineStart := strings.LastIndexByte(text[:pos], '\n') + 1
	if strings.TrimLeft(text[lineStart:pos], " \t") == "" {
		return lineStart
	}
	return pos
}
