package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"bblocks-register/internal/app"
	"bblocks-register/internal/types"
	"bblocks-register/tests/testutil"
)

const stableMetadata = `{
  "name": "Block",
  "status": "stable",
  "itemClass": "schema",
  "version": "1.0"
}`

func writeBlock(t *testing.T, items, dir, metadata, schema string) {
	t.Helper()
	testutil.WriteFile(t, filepath.Join(items, dir, "bblock.json"), metadata)
	if schema != "" {
		testutil.WriteFile(t, filepath.Join(items, dir, "schema.yaml"), schema)
	}
}

func readYAML(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	return doc
}

func TestBuildEndToEnd(t *testing.T) {
	root := t.TempDir()
	items := filepath.Join(root, "items")
	annotated := filepath.Join(root, "annotated")

	writeBlock(t, items, "point", stableMetadata, "type: object\n")
	writeBlock(t, items, "polygon", stableMetadata, "type: object\n")
	writeBlock(t, items, "feature", stableMetadata, ""+
		"type: object\n"+
		"properties:\n"+
		"  geometry:\n"+
		"    $ref: bblocks://ex.point\n")
	writeBlock(t, items, "special-feature", `{
	  "name": "Special Feature",
	  "status": "stable",
	  "itemClass": "schema",
	  "version": "1.0",
	  "dependsOn": ["ex.polygon"],
	  "extends": {
	    "itemIdentifier": "ex.feature",
	    "extensionPoints": {"ex.point": "ex.polygon"}
	  }
	}`, "type: object\n")

	service, err := app.NewService(types.BuildOptions{
		ItemsPath:     items,
		AnnotatedPath: annotated,
		Prefix:        "ex.",
		FailOnError:   true,
	})
	require.NoError(t, err)

	result, err := service.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, result.Processed)
	require.Zero(t, result.Skipped)

	// Every block gets a YAML and a JSON rendition.
	for _, dir := range []string{"point", "polygon", "feature", "special-feature"} {
		require.FileExists(t, filepath.Join(annotated, dir, "schema.yaml"))
		require.FileExists(t, filepath.Join(annotated, dir, "schema.json"))
	}

	feature := readYAML(t, filepath.Join(annotated, "feature", "schema.yaml"))
	geometry := feature["properties"].(map[string]any)["geometry"].(map[string]any)
	require.Equal(t, "../point/schema.yaml", geometry["$ref"])

	special := readYAML(t, filepath.Join(annotated, "special-feature", "schema.yaml"))
	require.Equal(t, "ex.feature", special["x-extends"])
	require.Equal(t, map[string]any{"ex.point": "ex.polygon"}, special["x-extensions"])

	entries := special["allOf"].([]any)
	require.Equal(t, "../feature/schema.yaml", entries[0].(map[string]any)["$ref"])

	branch := entries[1].(map[string]any)
	spliced := branch["properties"].(map[string]any)["geometry"].(map[string]any)
	require.Equal(t, "../polygon/schema.yaml", spliced["$ref"])
	require.Equal(t, "ex.point", spliced["x-extension-source"])
	require.Equal(t, "ex.polygon", spliced["x-extension-target"])

	// The register document lists every block.
	registerDoc := filepath.Join(annotated, "register.json")
	require.FileExists(t, registerDoc)
	data, err := os.ReadFile(registerDoc)
	require.NoError(t, err)
	var document map[string]any
	require.NoError(t, yaml.Unmarshal(data, &document))
	require.Len(t, document["bblocks"], 4)
}

func TestBuildDetectsCycles(t *testing.T) {
	root := t.TempDir()
	items := filepath.Join(root, "items")

	writeBlock(t, items, "a", `{
	  "name": "A", "status": "stable", "itemClass": "schema", "version": "1.0",
	  "dependsOn": ["ex.b"]
	}`, "type: object\n")
	writeBlock(t, items, "b", stableMetadata, "allOf:\n  - $ref: bblocks://ex.a\n")

	service, err := app.NewService(types.BuildOptions{
		ItemsPath:     items,
		AnnotatedPath: filepath.Join(root, "annotated"),
		Prefix:        "ex.",
		FailOnError:   true,
	})
	require.NoError(t, err)

	_, err = service.Build(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "circular dependencies found")
	require.Contains(t, err.Error(), "ex.a -> ex.b -> ex.a")
}

func TestBuildSkipsBrokenBlocksWhenLenient(t *testing.T) {
	root := t.TempDir()
	items := filepath.Join(root, "items")

	writeBlock(t, items, "point", stableMetadata, "type: object\n")
	writeBlock(t, items, "noschema", stableMetadata, "")
	writeBlock(t, items, "feature", stableMetadata, ""+
		"type: object\n"+
		"properties:\n"+
		"  geometry:\n"+
		"    $ref: bblocks://ex.point\n")
	// Substituting a schemaless block in is a per-block error, so the
	// build carries on without this block in lenient mode.
	writeBlock(t, items, "special-feature", `{
	  "name": "Special Feature",
	  "status": "stable",
	  "itemClass": "schema",
	  "version": "1.0",
	  "extends": {
	    "itemIdentifier": "ex.feature",
	    "extensionPoints": {"ex.point": "ex.noschema"}
	  }
	}`, "type: object\n")

	service, err := app.NewService(types.BuildOptions{
		ItemsPath:     items,
		AnnotatedPath: filepath.Join(root, "annotated"),
		Prefix:        "ex.",
		FailOnError:   false,
	})
	require.NoError(t, err)

	result, err := service.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, result.Processed)
	require.Equal(t, 1, result.Skipped)
}
