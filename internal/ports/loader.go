package ports

import "context"

// DocumentLoader fetches schema and register documents by location,
// which may be a local file path or an http(s) URL. Implementations are
// injected into the reference resolver so tests can intercept remote
// locations without touching process-global state.
type DocumentLoader interface {
	Load(ctx context.Context, location string) ([]byte, error)
	Exists(ctx context.Context, location string) bool
}
