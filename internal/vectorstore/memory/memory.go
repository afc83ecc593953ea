package memory

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"repochat/internal/domain"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// It serves retrieval over a loaded repository index.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	units     []domain.Unit
}

func NewStorage() *Storage { return &Storage{} }

// Load replaces the stored units. Every unit must carry a vector, and all
// vectors must share one dimension.
func (s *Storage) Load(units []domain.Unit) error {
	dimension := 0
	vectors := make([][]float64, len(units))
	for i, u := range units {
		if len(u.Vector) == 0 {
			return fmt.Errorf("unit %s has no vector", u.ID)
		}
		if dimension == 0 {
			dimension = len(u.Vector)
		}
		if len(u.Vector) != dimension {
			return errors.New("vector dimension mismatch")
		}
		vectors[i] = u.Vector
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = vectors
	s.units = append([]domain.Unit(nil), units...)
	return nil
}

// Len returns the number of loaded units.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units)
}

func (s *Storage) Search(vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.units) > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}
	// compute cosine similarity (vectors are assumed L2-normalized)
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = dot(s.vectors[i], vector)
	}
	return s.top(scores, topK), nil
}

// LexicalSearch ranks units by token overlap with query. It is used when the
// query embeds to a zero vector or every vector score is zero.
func (s *Storage) LexicalSearch(query string, topK int) []domain.SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	qset := toTokenSet(query)
	scores := make([]float64, len(s.units))
	for i, u := range s.units {
		scores[i] = overlapOchiai(qset, u.Text)
	}
	return s.top(scores, topK)
}

func (s *Storage) top(scores []float64, topK int) []domain.SearchResult {
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		results = append(results, domain.SearchResult{Unit: s.units[j], Score: scores[j]})
	}
	return results
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// argsortDesc orders indexes by descending score; ties keep index order so
// results are stable across runs.
func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}

var identRe = regexp.MustCompile(`[\p{L}_][\p{L}\p{N}_]*`)

func toTokenSet(s string) map[string]struct{} {
	tokens := identRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func overlapOchiai(qset map[string]struct{}, text string) float64 {
	stoks := identRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(stoks))
	inter := 0
	for _, t := range stoks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	// Ochiai coefficient: |A∩B| / sqrt(|A||B|)
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
