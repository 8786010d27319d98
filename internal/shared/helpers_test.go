package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsURL(t *testing.T) {
	require.True(t, IsURL("https://example.com/schema.yaml"))
	require.True(t, IsURL("http://example.com"))
	require.False(t, IsURL("bblocks://ex.a"))
	require.False(t, IsURL("../a/schema.yaml"))
	require.False(t, IsURL("/abs/path.yaml"))
}

func TestSplitFragment(t *testing.T) {
	tests := []struct {
		ref      string
		location string
		fragment string
	}{
		{"doc.yaml#/a/b", "doc.yaml", "/a/b"},
		{"doc.yaml", "doc.yaml", ""},
		{"#/a", "", "/a"},
		{"doc.yaml#", "doc.yaml", ""},
	}
	for _, tc := range tests {
		location, fragment := SplitFragment(tc.ref)
		require.Equal(t, tc.location, location, tc.ref)
		require.Equal(t, tc.fragment, fragment, tc.ref)
	}
}

func TestResolveReference(t *testing.T) {
	tests := []struct {
		name string
		from string
		ref  string
		want string
	}{
		{"relative path", "/docs/a/schema.yaml", "../b/schema.yaml", "/docs/b/schema.yaml"},
		{"sibling path", "/docs/a/schema.yaml", "./other.yaml", "/docs/a/other.yaml"},
		{"absolute ref", "/docs/a/schema.yaml", "/elsewhere/x.yaml", "/elsewhere/x.yaml"},
		{"url ref wins", "/docs/a/schema.yaml", "https://example.com/x.yaml", "https://example.com/x.yaml"},
		{"url base", "https://example.com/a/schema.yaml", "../b/schema.yaml", "https://example.com/b/schema.yaml"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ResolveReference(tc.from, tc.ref))
		})
	}
}

func TestRelativePath(t *testing.T) {
	require.Equal(t, "../a/schema.yaml", RelativePath("/out/a/schema.yaml", "/out/b"))
	require.Equal(t, "schema.yaml", RelativePath("/out/b/schema.yaml", "/out/b"))
	require.Equal(t, "https://example.com/x.yaml", RelativePath("https://example.com/x.yaml", "/out/b"))
}

func TestJoinURL(t *testing.T) {
	require.Equal(t, "https://example.com/r/a/schema.yaml",
		JoinURL("https://example.com/r/", "a/schema.yaml"))
	require.Equal(t, "https://example.com/r/a/schema.yaml",
		JoinURL("https://example.com/r", "/a/schema.yaml"))
}
