package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/pulse/pkg/cli"
	"mercator-hq/pulse/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a configuration file",
	Long: `Parse a configuration file, apply defaults and report every invalid field.

The file defaults to the --config flag. Environment overrides are not applied.

Examples:
  pulse validate config.yaml
  pulse validate --config /etc/pulse/config.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return cli.NewConfigError("", "no configuration file given")
		}
		return validateFile(cmd.OutOrStdout(), path)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateFile(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cli.WrapConfigError("failed to read config", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return cli.WrapConfigError(fmt.Sprintf("failed to parse %s", path), err)
	}

	err = config.Validate(cfg)
	var verr config.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintf(w, "✗ %s: %d invalid fields\n", path, len(verr.Errors))
		for _, fe := range verr.Errors {
			fmt.Fprintf(w, "  - %s: %s\n", fe.Field, fe.Message)
		}
		return cli.WrapConfigError("invalid configuration", err)
	}
	if err != nil {
		return cli.WrapConfigError("invalid configuration", err)
	}

	fmt.Fprintf(w, "✓ %s is valid (mode %s)\n", path, cfg.Collector.Mode)
	return nil
}
