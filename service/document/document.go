package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"pdf-chat-backend/config"
	"pdf-chat-backend/model"
	"pdf-chat-backend/service/vectorstore"
	"pdf-chat-backend/utils"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

const (
	defaultEmbedAttempts = 3
	defaultRetryDelay    = 500 * time.Millisecond
	defaultMaxBytes      = 32 << 20
)

var (
	ErrInvalidDocument = errors.New("invalid document")
	ErrIndexing        = errors.New("failed to index document")
)

// Registrar 保存会话的文档索引
type Registrar interface {
	Put(sessionID string, index vectorstores.VectorStore) error
}

// Service 处理上传的文档：解析、切分、向量化，并以新会话ID注册索引
type Service struct {
	embedder      embeddings.Embedder
	registry      Registrar
	processors    []Processor
	embedAttempts uint
	retryDelay    time.Duration
	maxBytes      int64
}

type Option func(*Service)

func WithProcessors(processors ...Processor) Option {
	return func(s *Service) {
		s.processors = processors
	}
}

func WithEmbedAttempts(attempts uint) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.embedAttempts = attempts
		}
	}
}

func WithRetryDelay(delay time.Duration) Option {
	return func(s *Service) {
		s.retryDelay = delay
	}
}

func WithMaxBytes(maxBytes int64) Option {
	return func(s *Service) {
		if maxBytes > 0 {
			s.maxBytes = maxBytes
		}
	}
}

func NewService(embedder embeddings.Embedder, registry Registrar, opts ...Option) *Service {
	s := &Service{
		embedder:      embedder,
		registry:      registry,
		processors:    DefaultProcessors(defaultChunkSize, defaultChunkOverlap),
		embedAttempts: defaultEmbedAttempts,
		retryDelay:    defaultRetryDelay,
		maxBytes:      defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewEmbedder 创建 OpenAI 兼容的批量向量化客户端
func NewEmbedder(modelCfg config.ModelConfig, batchSize int) (embeddings.Embedder, error) {
	client, err := openai.New(
		openai.WithEmbeddingModel(modelCfg.EmbeddingModel),
		openai.WithToken(modelCfg.APIKey),
		openai.WithBaseURL(modelCfg.BaseURL),
		openai.WithHTTPClient(utils.NewHTTPClient(
			utils.WithTimeout(modelCfg.Timeout),
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder client: %v", err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(batchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %v", err)
	}

	return embedder, nil
}

// Upload 处理一个上传文件，成功时返回新生成的会话ID
func (s *Service) Upload(ctx context.Context, fileName string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: file is empty", ErrInvalidDocument)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidDocument, s.maxBytes)
	}

	fileType := model.FileTypeOf(fileName)
	processor := s.findProcessor(fileType)
	if processor == nil {
		return "", fmt.Errorf("%w: unsupported file type %q", ErrInvalidDocument, fileType)
	}

	docs, err := processor.Process(ctx, data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	docs = dropBlankChunks(docs)
	if len(docs) == 0 {
		return "", fmt.Errorf("%w: no text could be extracted", ErrInvalidDocument)
	}

	slog.Debug("split document successfully",
		"file_name", fileName,
		"chunks_num", len(docs),
	)

	index, err := s.buildIndex(ctx, docs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIndexing, err)
	}

	sessionID := uuid.New().String()
	if err := s.registry.Put(sessionID, index); err != nil {
		return "", fmt.Errorf("failed to register session index: %w", err)
	}

	slog.Info("document indexed",
		"file_name", fileName,
		"session_id", sessionID,
		"chunks_num", index.Len(),
	)

	return sessionID, nil
}

func (s *Service) findProcessor(fileType model.FileType) Processor {
	for _, processor := range s.processors {
		if processor.CanProcess(fileType) {
			return processor
		}
	}
	return nil
}

// buildIndex 向量化全部片段并冻结索引，向量化失败时按退避策略重试
func (s *Service) buildIndex(ctx context.Context, docs []schema.Document) (*vectorstore.MemoryStore, error) {
	var index *vectorstore.MemoryStore

	err := retry.Do(
		func() error {
			index = vectorstore.NewMemoryStore(s.embedder)
			_, err := index.AddDocuments(ctx, docs)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.embedAttempts),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, vectorstore.ErrMissingEmbedder) &&
				!errors.Is(err, vectorstore.ErrEmbeddingMismatch) &&
				!errors.Is(err, vectorstore.ErrDimensionMismatch)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying to embed document",
				"attempt", n+1,
				"chunks_num", len(docs),
				"err", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	index.Seal()
	return index, nil
}

func dropBlankChunks(docs []schema.Document) []schema.Document {
	result := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.PageContent) == "" {
			continue
		}
		result = append(result, doc)
	}
	return result
}
