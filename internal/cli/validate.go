package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bblocks-register/internal/app"
)

func newValidateCommand() *cobra.Command {
	opts := buildOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Scan, resolve imports and check the dependency graph without writing output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd.Context(), cmd, opts)
		},
	}
	addBuildFlags(cmd, &opts)
	return cmd
}

func runValidate(ctx context.Context, cmd *cobra.Command, opts buildOptions) error {
	options := buildOptionsFrom(cmd, opts)
	options.FailOnError = true
	service, err := app.NewService(options)
	if err != nil {
		return err
	}
	register, err := service.Validate(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("valid: %d local blocks, %d imported\n", len(register.Blocks), len(register.Imported))
	return nil
}
