package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bblocks-register/internal/app"
	"bblocks-register/internal/types"
)

type buildOptions struct {
	Items       string
	Annotated   string
	Prefix      string
	BaseURL     string
	Imports     []string
	FailOnError bool
}

func newBuildCommand() *cobra.Command {
	opts := buildOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the register: annotate, compose and publish every building block",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), cmd, opts)
		},
	}
	addBuildFlags(cmd, &opts)
	return cmd
}

func addBuildFlags(cmd *cobra.Command, opts *buildOptions) {
	cmd.Flags().StringVar(&opts.Items, "items", "_sources", "Building block items directory")
	cmd.Flags().StringVar(&opts.Annotated, "annotated", "build/annotated", "Annotated output directory")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "Identifier prefix")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "Base URL for published documents")
	cmd.Flags().StringSliceVar(&opts.Imports, "import", nil, "Remote register document URLs")
	cmd.Flags().BoolVar(&opts.FailOnError, "fail-on-error", false, "Abort on the first broken building block")

	_ = viper.BindPFlag("items", cmd.Flags().Lookup("items"))
	_ = viper.BindPFlag("annotated", cmd.Flags().Lookup("annotated"))
	_ = viper.BindPFlag("prefix", cmd.Flags().Lookup("prefix"))
	_ = viper.BindPFlag("base_url", cmd.Flags().Lookup("base-url"))
	_ = viper.BindPFlag("imports", cmd.Flags().Lookup("import"))
	_ = viper.BindPFlag("fail_on_error", cmd.Flags().Lookup("fail-on-error"))
}

func buildOptionsFrom(cmd *cobra.Command, opts buildOptions) types.BuildOptions {
	return types.BuildOptions{
		ItemsPath:     resolveString(cmd, opts.Items, "items", "items"),
		AnnotatedPath: resolveString(cmd, opts.Annotated, "annotated", "annotated"),
		Prefix:        resolveString(cmd, opts.Prefix, "prefix", "prefix"),
		BaseURL:       resolveString(cmd, opts.BaseURL, "base_url", "base-url"),
		ImportURLs:    resolveStrings(cmd, opts.Imports, "imports", "import"),
		FailOnError:   resolveBool(cmd, opts.FailOnError, "fail_on_error", "fail-on-error"),
	}
}

func runBuild(ctx context.Context, cmd *cobra.Command, opts buildOptions) error {
	service, err := app.NewService(buildOptionsFrom(cmd, opts))
	if err != nil {
		return err
	}
	result, err := service.Build(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("built: %d blocks processed, %d skipped, %d files written\n",
		result.Processed, result.Skipped, len(result.Written))
	return nil
}

func resolveString(cmd *cobra.Command, value string, key string, flagName string) string {
	if cmd == nil {
		if value != "" {
			return value
		}
		return viper.GetString(key)
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetString(key)
}

func resolveStrings(cmd *cobra.Command, values []string, key string, flagName string) []string {
	if cmd == nil {
		if len(values) > 0 {
			return values
		}
		return viper.GetStringSlice(key)
	}
	if flagChanged(cmd, flagName) {
		return values
	}
	return viper.GetStringSlice(key)
}

func resolveBool(cmd *cobra.Command, value bool, key string, flagName string) bool {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetBool(key)
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil || strings.TrimSpace(name) == "" {
		return false
	}
	flag := cmd.Flags().Lookup(name)
	return flag != nil && flag.Changed
}
