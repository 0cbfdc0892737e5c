package storage

import "context"

// Store is the object-storage contract the document pipeline depends on.
type Store interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}
