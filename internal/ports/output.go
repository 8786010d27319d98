package ports

import "context"

// OutputWriterPort persists annotated and composed schema documents.
type OutputWriterPort interface {
	WriteYAML(ctx context.Context, path string, doc any) error
	WriteJSON(ctx context.Context, path string, doc any) error
}
