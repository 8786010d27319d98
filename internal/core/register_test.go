package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bblocks-register/internal/types"
)

func testBlock(id, segment string) *types.Block {
	filesPath := filepath.Join("/src/items", segment)
	annotatedPath := filepath.Join("/out", segment)
	return &types.Block{
		Identifier:      id,
		MetadataFile:    filepath.Join(filesPath, types.MetadataFileName),
		FilesPath:       filesPath,
		Subdirs:         segment,
		SchemaRef:       filepath.Join(filesPath, "schema.yaml"),
		AnnotatedPath:   annotatedPath,
		AnnotatedSchema: filepath.Join(annotatedPath, "schema.yaml"),
		DependsOn:       map[string]struct{}{},
	}
}

func testOptions() types.BuildOptions {
	return types.BuildOptions{ItemsPath: "/src/items", AnnotatedPath: "/out"}
}

func TestNewRegisterIndexesBlockFiles(t *testing.T) {
	a := testBlock("ex.a", "a")
	register, err := NewRegister([]*types.Block{a}, nil, testOptions())
	require.NoError(t, err)

	for _, location := range []string{
		"/src/items/a/schema.yaml",
		"/out/a/schema.yaml",
		"/out/a/schema.json",
	} {
		require.Equal(t, "ex.a", register.LocalBlockFiles[location], location)
	}
	require.Equal(t, "/src", register.RootPath)
}

func TestNewRegisterRejectsDuplicateIdentifiers(t *testing.T) {
	blocks := []*types.Block{testBlock("ex.a", "a"), testBlock("ex.a", "other")}
	_, err := NewRegister(blocks, nil, testOptions())
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")
}

func TestRegisterURLForWithBaseURL(t *testing.T) {
	a := testBlock("ex.a", "a")
	opts := testOptions()
	opts.BaseURL = "https://example.com/register/"
	register, err := NewRegister([]*types.Block{a}, nil, opts)
	require.NoError(t, err)

	require.Equal(t, "https://example.com/register/items/a/schema.yaml",
		register.URLFor("/src/items/a/schema.yaml"))
	// URL variants participate in lookups too.
	require.Equal(t, "ex.a",
		register.LocalBlockFiles["https://example.com/register/items/a/schema.yaml"])
}

func TestFindDependenciesReturnsClosure(t *testing.T) {
	a := testBlock("ex.a", "a")
	b := testBlock("ex.b", "b")
	c := testBlock("ex.c", "c")
	c.AddDependency("ex.b")
	b.AddDependency("ex.a")
	register, err := NewRegister([]*types.Block{a, b, c}, nil, testOptions())
	require.NoError(t, err)

	require.Equal(t, []string{"ex.c", "ex.b", "ex.a"}, register.FindDependencies("ex.c"))
	require.Equal(t, []string{"ex.a"}, register.FindDependencies("ex.a"))
	require.Nil(t, register.FindDependencies("ex.unknown"))
}

func TestInheritedShaclRules(t *testing.T) {
	a := testBlock("ex.a", "a")
	a.ShaclRules = []string{"/src/items/a/rules.shacl"}
	b := testBlock("ex.b", "b")
	b.AddDependency("ex.a")
	b.AddDependency("ext.c")
	imported := map[string]*types.ImportedBlockSummary{
		"ext.c": {
			ItemIdentifier: "ext.c",
			ShaclRules:     types.ShaclRuleSet{"ext.c": {"https://example.com/c.shacl"}},
		},
	}
	register, err := NewRegister([]*types.Block{a, b}, imported, testOptions())
	require.NoError(t, err)

	rules := register.InheritedShaclRules("ex.b")
	require.Equal(t, map[string][]string{
		"ex.a":  {"/src/items/a/rules.shacl"},
		"ext.c": {"https://example.com/c.shacl"},
	}, rules)
}

func TestLookupPrefersLocalBlocks(t *testing.T) {
	a := testBlock("ex.a", "a")
	imported := map[string]*types.ImportedBlockSummary{
		"ex.a":  {ItemIdentifier: "ex.a"},
		"ext.b": {ItemIdentifier: "ext.b"},
	}
	register, err := NewRegister([]*types.Block{a}, imported, testOptions())
	require.NoError(t, err)

	block, summary := register.Lookup("ex.a")
	require.NotNil(t, block)
	require.Nil(t, summary)

	block, summary = register.Lookup("ext.b")
	require.Nil(t, block)
	require.NotNil(t, summary)
	require.True(t, register.Has("ext.b"))
	require.False(t, register.Has("ext.missing"))
}
