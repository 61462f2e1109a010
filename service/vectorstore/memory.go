package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

var (
	ErrSealed            = errors.New("vector store is sealed")
	ErrMissingEmbedder   = errors.New("vector store requires an embedder")
	ErrEmbeddingMismatch = errors.New("number of vectors does not match number of documents")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// MemoryStore 进程内向量索引，暴力计算余弦相似度。
// Seal 之后不再接受写入，只读查询可并发执行。
type MemoryStore struct {
	embedder embeddings.Embedder

	mu      sync.RWMutex
	docs    []schema.Document
	vectors [][]float32
	sealed  bool
}

var _ vectorstores.VectorStore = &MemoryStore{}

func NewMemoryStore(embedder embeddings.Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
	}
}

func (s *MemoryStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := s.getOptions(options...)
	embedder := s.embedderFor(opts)
	if embedder == nil {
		return nil, ErrMissingEmbedder
	}

	s.mu.RLock()
	sealed := s.sealed
	s.mu.RUnlock()
	if sealed {
		return nil, ErrSealed
	}

	filtered := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		if opts.Deduplicater != nil && opts.Deduplicater(ctx, doc) {
			continue
		}
		filtered = append(filtered, doc)
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, len(filtered))
	for _, doc := range filtered {
		texts = append(texts, doc.PageContent)
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(filtered) {
		return nil, ErrEmbeddingMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return nil, ErrSealed
	}
	for _, v := range vectors {
		if len(s.vectors) > 0 && len(v) != len(s.vectors[0]) {
			return nil, ErrDimensionMismatch
		}
	}

	ids := make([]string, 0, len(filtered))
	for i, doc := range filtered {
		ids = append(ids, strconv.Itoa(len(s.docs)))
		s.docs = append(s.docs, doc)
		s.vectors = append(s.vectors, vectors[i])
	}

	return ids, nil
}

// Seal 冻结索引
func (s *MemoryStore) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// SimilaritySearch 按相似度降序返回至多 numDocuments 个文档，Score 为余弦相似度
func (s *MemoryStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return []schema.Document{}, nil
	}

	s.mu.RLock()
	empty := len(s.docs) == 0
	s.mu.RUnlock()
	if empty {
		return []schema.Document{}, nil
	}

	opts := s.getOptions(options...)
	embedder := s.embedderFor(opts)
	if embedder == nil {
		return nil, ErrMissingEmbedder
	}

	queryVector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		idx   int
		score float32
	}
	candidates := make([]scored, 0, len(s.docs))
	for i, v := range s.vectors {
		score := cosineSimilarity(queryVector, v)
		if opts.ScoreThreshold > 0 && score < opts.ScoreThreshold {
			continue
		}
		candidates = append(candidates, scored{idx: i, score: score})
	}

	// 分数相同时保持文档原有顺序
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if numDocuments > len(candidates) {
		numDocuments = len(candidates)
	}

	results := make([]schema.Document, 0, numDocuments)
	for _, c := range candidates[:numDocuments] {
		doc := s.docs[c.idx]
		results = append(results, schema.Document{
			PageContent: doc.PageContent,
			Metadata:    maps.Clone(doc.Metadata),
			Score:       c.score,
		})
	}

	return results, nil
}

func (s *MemoryStore) getOptions(options ...vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

func (s *MemoryStore) embedderFor(opts vectorstores.Options) embeddings.Embedder {
	if opts.Embedder != nil {
		return opts.Embedder
	}
	return s.embedder
}

func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
