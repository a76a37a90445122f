package vectordb

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Writer accepts chunks for storage.
type Writer interface {
	Upsert(ctx context.Context, chunks []Chunk) error
}

// Splitter breaks a document into chunk texts.
type Splitter interface {
	Chunk(text string) []string
}

// Ingest splits a document and writes its chunks. Metadata is copied onto
// every chunk. It returns the number of chunks written.
func Ingest(ctx context.Context, w Writer, splitter Splitter, documentID, text string, metadata map[string]interface{}, logger *zap.Logger) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, fmt.Errorf("document id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	parts := splitter.Chunk(text)
	if len(parts) == 0 {
		logger.Warn("Skipping empty document", zap.String("document_id", documentID))
		return 0, nil
	}
	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		meta := make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
		chunks[i] = Chunk{DocumentID: documentID, ChunkIndex: i, Content: p, Metadata: meta}
	}
	if err := w.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("ingest %s: %w", documentID, err)
	}
	logger.Info("Ingested document",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// IngestSeed loads every document of a seed file into w.
func IngestSeed(ctx context.Context, w Writer, splitter Splitter, path string, logger *zap.Logger) (int, error) {
	docs, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, d := range docs {
		n, err := Ingest(ctx, w, splitter, d.ID, d.Content, d.Metadata, logger)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
