package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"bblocks-register/tests/testutil"
)

func TestLoadAllFlattensTransitiveImports(t *testing.T) {
	loader := testutil.NewCountingLoader(testutil.MemLoader{
		"https://example.com/register.json": `{
		  "bblocks": [
		    {"itemIdentifier": "ext.a", "name": "A", "dependsOn": ["ext.b"]}
		  ],
		  "imports": ["https://example.com/other/register.json"]
		}`,
		"https://example.com/other/register.json": `{
		  "bblocks": [
		    {"itemIdentifier": "ext.b", "name": "B"}
		  ],
		  "imports": ["https://example.com/register.json"]
		}`,
	})
	index := NewImportIndexAdapter(loader)

	imported, err := index.LoadAll(context.Background(), []string{"https://example.com/register.json"})
	require.NoError(t, err)
	require.Len(t, imported, 2)
	require.Equal(t, []string{"ext.b"}, imported["ext.a"].DependsOn)
	require.Equal(t, "B", imported["ext.b"].Name)

	// Mutually importing registers are fetched once each.
	require.Equal(t, 1, loader.Loads["https://example.com/register.json"])
	require.Equal(t, 1, loader.Loads["https://example.com/other/register.json"])
}

func TestLoadAllAcceptsBareArrayDocuments(t *testing.T) {
	loader := testutil.MemLoader{
		"https://example.com/register.json": `[
		  {"itemIdentifier": "ext.a", "schema": {"application/yaml": "https://example.com/a/schema.yaml"}}
		]`,
	}
	index := NewImportIndexAdapter(loader)

	imported, err := index.LoadAll(context.Background(), []string{"https://example.com/register.json"})
	require.NoError(t, err)
	require.Len(t, imported, 1)
	require.Equal(t, "https://example.com/a/schema.yaml", imported["ext.a"].PreferredSchema())
}

func TestLoadAllFirstSummaryWins(t *testing.T) {
	loader := testutil.MemLoader{
		"https://one.example.com/register.json": `{
		  "bblocks": [{"itemIdentifier": "ext.a", "name": "first"}],
		  "imports": ["https://two.example.com/register.json"]
		}`,
		"https://two.example.com/register.json": `{
		  "bblocks": [{"itemIdentifier": "ext.a", "name": "second"}]
		}`,
	}
	index := NewImportIndexAdapter(loader)

	imported, err := index.LoadAll(context.Background(), []string{"https://one.example.com/register.json"})
	require.NoError(t, err)
	require.Equal(t, "first", imported["ext.a"].Name)
}

func TestLoadAllRejectsMalformedDocuments(t *testing.T) {
	loader := testutil.MemLoader{
		"https://example.com/register.json": "not json",
	}
	index := NewImportIndexAdapter(loader)

	_, err := index.LoadAll(context.Background(), []string{"https://example.com/register.json"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed register document")
}
