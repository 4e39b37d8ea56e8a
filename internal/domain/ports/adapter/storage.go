package adapter

import "context"

// BlobStorage persists generated media and returns a publicly resolvable
// URI. Used by provider adapters for fresh artifacts and by the cache for
// evicting stored ones.
type BlobStorage interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, paths ...string) error
}
