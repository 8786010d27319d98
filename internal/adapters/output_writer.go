package adapters

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"bblocks-register/internal/ports"
)

// FileOutputWriter writes produced documents, creating parent
// directories on demand.
type FileOutputWriter struct{}

var _ ports.OutputWriterPort = (*FileOutputWriter)(nil)

func NewFileOutputWriter() *FileOutputWriter { return &FileOutputWriter{} }

func (w *FileOutputWriter) WriteYAML(ctx context.Context, path string, doc any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode " + path).
			WithCause(err)
	}
	return w.write(ctx, path, data)
}

func (w *FileOutputWriter) WriteJSON(ctx context.Context, path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode " + path).
			WithCause(err)
	}
	return w.write(ctx, path, append(data, '\n'))
}

func (w *FileOutputWriter) write(ctx context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create output directory for " + path).
			WithCause(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write " + path).
			WithCause(err)
	}
	log.Ctx(ctx).Debug().Str("path", path).Msg("document written")
	return nil
}
