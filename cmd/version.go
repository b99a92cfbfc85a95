package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/conneroisu/livetex/internal/version"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	versionFormat string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the livetex version, git commit, build time, Go version and platform.

Examples:
  livetex version
  livetex version --short
  livetex version --format json`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json, yaml)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	return writeVersion(cmd.OutOrStdout(), versionFormat, versionShort)
}

func writeVersion(w io.Writer, format string, short bool) error {
	info := version.Get()

	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "yaml":
		return yaml.NewEncoder(w).Encode(info)
	case "text":
		if short {
			_, err := fmt.Fprintln(w, version.Short())
			return err
		}
		_, err := fmt.Fprintln(w, info.String())
		return err
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
	}
}
