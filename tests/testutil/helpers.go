// Package testutil provides shared test helpers used across unit and
// integration test packages.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// MemLoader serves documents from an in-memory map keyed by canonical
// location, so resolver and graph tests need no filesystem.
type MemLoader map[string]string

func (l MemLoader) Load(_ context.Context, location string) ([]byte, error) {
	content, ok := l[location]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", location)
	}
	return []byte(content), nil
}

func (l MemLoader) Exists(_ context.Context, location string) bool {
	_, ok := l[location]
	return ok
}

// CountingLoader wraps a MemLoader and counts Load calls per location.
type CountingLoader struct {
	MemLoader
	Loads map[string]int
}

func NewCountingLoader(docs MemLoader) *CountingLoader {
	return &CountingLoader{MemLoader: docs, Loads: map[string]int{}}
}

func (l *CountingLoader) Load(ctx context.Context, location string) ([]byte, error) {
	l.Loads[location]++
	return l.MemLoader.Load(ctx, location)
}

// WriteFile writes content at path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
