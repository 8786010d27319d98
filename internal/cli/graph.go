package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bblocks-register/internal/app"
)

func newGraphCommand() *cobra.Command {
	opts := buildOptions{}
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph in topological order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraph(cmd.Context(), cmd, opts)
		},
	}
	addBuildFlags(cmd, &opts)
	return cmd
}

func runGraph(ctx context.Context, cmd *cobra.Command, opts buildOptions) error {
	service, err := app.NewService(buildOptionsFrom(cmd, opts))
	if err != nil {
		return err
	}
	lines, err := service.GraphInfo(ctx)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}
