package domain

import "context"

// VectorEncoder generates embeddings via the external embedding service.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
}
