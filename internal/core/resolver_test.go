package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"bblocks-register/internal/types"
	"bblocks-register/tests/testutil"
)

func TestResolveBlockURIPrefersAnnotatedSchema(t *testing.T) {
	a := testBlock("ex.a", "a")
	register, err := NewRegister([]*types.Block{a}, nil, testOptions())
	require.NoError(t, err)

	loader := testutil.MemLoader{
		"/src/items/a/schema.yaml": "type: object\ntitle: raw\n",
		"/out/a/schema.yaml":       "type: object\ntitle: annotated\n",
	}
	resolver := NewSchemaReferenceResolver(register, loader)

	resolved, err := resolver.Resolve(context.Background(), "bblocks://ex.a", nil)
	require.NoError(t, err)
	require.Equal(t, "/out/a/schema.yaml", resolved.Location)
	require.Equal(t, "annotated", resolved.Subschema["title"])
}

func TestResolveBlockURIFallsBackToRawSchema(t *testing.T) {
	a := testBlock("ex.a", "a")
	register, err := NewRegister([]*types.Block{a}, nil, testOptions())
	require.NoError(t, err)

	loader := testutil.MemLoader{
		"/src/items/a/schema.yaml": "type: object\ntitle: raw\n",
	}
	resolver := NewSchemaReferenceResolver(register, loader)

	resolved, err := resolver.Resolve(context.Background(), "bblocks://ex.a", nil)
	require.NoError(t, err)
	require.Equal(t, "/src/items/a/schema.yaml", resolved.Location)
	require.Equal(t, "raw", resolved.Subschema["title"])
}

func TestResolveImportedBlockSchema(t *testing.T) {
	imported := map[string]*types.ImportedBlockSummary{
		"ext.b": {
			ItemIdentifier: "ext.b",
			Schema: map[string]string{
				types.MediaTypeYAML: "https://example.com/ext/b/schema.yaml",
			},
		},
	}
	register, err := NewRegister(nil, imported, testOptions())
	require.NoError(t, err)

	loader := testutil.MemLoader{
		"https://example.com/ext/b/schema.yaml": "type: string\n",
	}
	resolver := NewSchemaReferenceResolver(register, loader)

	resolved, err := resolver.Resolve(context.Background(), "bblocks://ext.b", nil)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/ext/b/schema.yaml", resolved.Location)
	require.Equal(t, "string", resolved.Subschema["type"])
}

func TestResolveFragmentNavigation(t *testing.T) {
	a := testBlock("ex.a", "a")
	register, err := NewRegister([]*types.Block{a}, nil, testOptions())
	require.NoError(t, err)

	loader := testutil.MemLoader{
		"/src/items/a/schema.yaml": "$defs:\n  Point:\n    type: object\n",
	}
	resolver := NewSchemaReferenceResolver(register, loader)

	resolved, err := resolver.Resolve(context.Background(), "bblocks://ex.a#/$defs/Point", nil)
	require.NoError(t, err)
	require.Equal(t, "/$defs/Point", resolved.Fragment)
	require.Equal(t, "object", resolved.Subschema["type"])
	require.Equal(t, "/src/items/a/schema.yaml#/$defs/Point", resolved.FullRef())
}

func TestResolveFragmentOnlyUsesOriginDocument(t *testing.T) {
	register, err := NewRegister(nil, nil, testOptions())
	require.NoError(t, err)
	resolver := NewSchemaReferenceResolver(register, testutil.MemLoader{})

	from := &ReferencedSchema{
		Location: "/docs/schema.yaml",
		Contents: map[string]any{
			"$defs": map[string]any{"Inner": map[string]any{"type": "number"}},
		},
	}
	resolved, err := resolver.Resolve(context.Background(), "#/$defs/Inner", from)
	require.NoError(t, err)
	require.Equal(t, "/docs/schema.yaml", resolved.Location)
	require.Equal(t, "number", resolved.Subschema["type"])

	_, err = resolver.Resolve(context.Background(), "#/$defs/Inner", nil)
	require.Error(t, err)
}

func TestResolveRelativeAgainstOriginAndCache(t *testing.T) {
	register, err := NewRegister(nil, nil, testOptions())
	require.NoError(t, err)

	loader := testutil.NewCountingLoader(testutil.MemLoader{
		"/docs/a.yaml": "type: object\n",
		"/docs/b.yaml": "allOf:\n  - $ref: ./a.yaml\n",
	})
	resolver := NewSchemaReferenceResolver(register, loader)

	from, err := resolver.Resolve(context.Background(), "/docs/b.yaml", nil)
	require.NoError(t, err)

	first, err := resolver.Resolve(context.Background(), "./a.yaml", from)
	require.NoError(t, err)
	require.Equal(t, "/docs/a.yaml", first.Location)

	second, err := resolver.Resolve(context.Background(), "./a.yaml", from)
	require.NoError(t, err)
	require.Equal(t, first.Contents, second.Contents)
	require.Equal(t, 1, loader.Loads["/docs/a.yaml"])
}

func TestResolveMissingLocalDocument(t *testing.T) {
	register, err := NewRegister(nil, nil, testOptions())
	require.NoError(t, err)
	resolver := NewSchemaReferenceResolver(register, testutil.MemLoader{})

	from := &ReferencedSchema{Location: "/docs/schema.yaml"}
	_, err = resolver.Resolve(context.Background(), "./missing.yaml", from)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unresolved reference")
	require.Contains(t, err.Error(), "/docs/schema.yaml")
}
