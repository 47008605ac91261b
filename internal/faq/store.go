package faq

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/wolfman30/trial-booking/internal/llm"
)

// DefaultTopK is how many sections a query returns by default.
const DefaultTopK = 4

// Store keeps section embeddings in memory and retrieves by cosine similarity.
type Store struct {
	embedder llm.Embedder

	mu       sync.RWMutex
	sections []indexedSection
}

type indexedSection struct {
	text      string
	embedding []float32
}

func NewStore(embedder llm.Embedder) *Store {
	if embedder == nil {
		panic("faq: embedder cannot be nil")
	}
	return &Store{embedder: embedder}
}

// AddSections embeds and indexes the sections.
func (s *Store) AddSections(ctx context.Context, sections []Section) error {
	if len(sections) == 0 {
		return nil
	}
	texts := make([]string, len(sections))
	for i, sec := range sections {
		texts[i] = sec.Text()
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(texts) {
		return errors.New("faq: embedding response size mismatch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range texts {
		s.sections = append(s.sections, indexedSection{text: texts[i], embedding: vectors[i]})
	}
	return nil
}

// Len returns the number of indexed sections.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sections)
}

// Query returns the topK most similar section texts.
func (s *Store) Query(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if s.Len() == 0 {
		return nil, nil
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	queryVec := vectors[0]

	type scored struct {
		score float64
		text  string
	}
	s.mu.RLock()
	results := make([]scored, 0, len(s.sections))
	for _, sec := range s.sections {
		results = append(results, scored{score: cosineSimilarity(queryVec, sec.embedding), text: sec.text})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.text
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
