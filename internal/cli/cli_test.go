package cli

import (
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	names := make([]string, 0, len(root.Commands()))
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, name := range []string{"build", "validate", "graph"} {
		assert.Contains(t, names, name, "missing subcommand: %s", name)
	}
}

func TestRootCommandVersion(t *testing.T) {
	root := newRootCommand()
	assert.Equal(t, "dev", root.Version)
}

func TestBuildCommandFlags(t *testing.T) {
	cmd := newBuildCommand()
	flags := []string{
		"items", "annotated", "prefix", "base-url",
		"import", "fail-on-error",
	}
	for _, name := range flags {
		flag := cmd.Flags().Lookup(name)
		assert.NotNil(t, flag, "missing flag: %s", name)
	}
}

func TestValidateAndGraphCommandFlags(t *testing.T) {
	validate := newValidateCommand()
	graph := newGraphCommand()
	assert.NotNil(t, validate.Flags().Lookup("items"))
	assert.NotNil(t, validate.Flags().Lookup("import"))
	assert.NotNil(t, graph.Flags().Lookup("items"))
	assert.NotNil(t, graph.Flags().Lookup("prefix"))
}

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "invalid argument",
			err:  errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg("bad metadata"),
			want: 2,
		},
		{
			name: "duplicate identifier",
			err:  errbuilder.New().WithCode(errbuilder.CodeAlreadyExists).WithMsg("duplicate"),
			want: 2,
		},
		{
			name: "circular dependencies",
			err:  errbuilder.New().WithCode(errbuilder.CodeFailedPrecondition).WithMsg("circular dependencies found"),
			want: 3,
		},
		{
			name: "missing reference",
			err:  errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg("unresolved reference"),
			want: 4,
		},
		{
			name: "internal",
			err:  errbuilder.New().WithCode(errbuilder.CodeInternal).WithMsg("boom"),
			want: 5,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, exitCodeForError(tc.err))
		})
	}
}
