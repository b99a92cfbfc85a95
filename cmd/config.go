package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/conneroisu/livetex/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the livetex configuration",
	Long: `Inspect the configuration livetex resolves from flags, LIVETEX_* environment
variables, .env and the config file.

Examples:
  livetex config show -- latexmk -pdf
  livetex config show --format json
  livetex config validate --config ci.livetex.yml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show [-- <build command...>]",
	Short: "Print the resolved configuration",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindCommandFlags(cmd, buildFlagBindings, serveFlagBindings)
	},
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [-- <build command...>]",
	Short: "Check that the configuration is complete and valid",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindCommandFlags(cmd, buildFlagBindings, serveFlagBindings)
	},
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	addBuildFlags(configShowCmd.Flags())
	addServeFlags(configShowCmd.Flags())
	addBuildFlags(configValidateCmd.Flags())
	addServeFlags(configValidateCmd.Flags())
	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "Output format (yaml, json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	return writeConfig(cmd.OutOrStdout(), configFormat, cfg)
}

func writeConfig(w io.Writer, format string, cfg *config.Config) error {
	switch format {
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		return encoder.Close()
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", format)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(args); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
	return nil
}
