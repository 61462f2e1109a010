package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"pdf-chat-backend/config"
	"pdf-chat-backend/model"
	"pdf-chat-backend/service/document"
	"pdf-chat-backend/service/retrieval"
	"time"
)

// 本地预览文档切分结果，便于调整 chunk_size 与 chunk_overlap
type chunk struct {
	Index   int    `json:"index"`
	Source  string `json:"source"`
	Length  int    `json:"length"`
	Content string `json:"content"`
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	filePath := flag.String("file", "", "document to split")
	flag.Parse()

	if *filePath == "" {
		slog.Error("-file is required")
		os.Exit(1)
	}
	if err := config.Init(*configPath); err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		slog.Error("Failed to read file", "file", *filePath, "err", err)
		os.Exit(1)
	}

	fileType := model.FileTypeOf(filepath.Base(*filePath))
	var processor document.Processor
	for _, p := range document.DefaultProcessors(config.Cfg.Document.ChunkSize, config.Cfg.Document.ChunkOverlap) {
		if p.CanProcess(fileType) {
			processor = p
			break
		}
	}
	if processor == nil {
		slog.Error("Unsupported file type", "file_type", fileType)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	docs, err := processor.Process(ctx, data)
	if err != nil {
		slog.Error("Failed to split document", "err", err)
		os.Exit(1)
	}

	chunks := make([]chunk, 0, len(docs))
	for i, doc := range docs {
		chunks = append(chunks, chunk{
			Index:   i,
			Source:  retrieval.FormatSource(doc.Metadata),
			Length:  len(doc.PageContent),
			Content: doc.PageContent,
		})
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(chunks); err != nil {
		slog.Error("Failed to write chunks", "err", err)
		os.Exit(1)
	}

	slog.Info("Split document successfully", "chunks_num", len(chunks))
}
