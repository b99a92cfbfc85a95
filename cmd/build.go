package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/conneroisu/livetex/internal/build"
	"github.com/conneroisu/livetex/internal/config"
	"github.com/conneroisu/livetex/internal/watcher"
	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var buildFormat string

var buildCmd = &cobra.Command{
	Use:     "build [flags] -- <build command...>",
	Aliases: []string{"b"},
	Short:   "Build every source once without serving",
	Long: `Build every TeX source directly inside the root directory once, in
parallel, and publish the PDFs to the output directory. Exits non-zero if
any build fails.

Examples:
  livetex build -- latexmk -pdf
  livetex build --format json -- pdflatex -interaction=nonstopmode
  livetex build --intermediate-dir .build -- xelatex   # keep the logs`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindCommandFlags(cmd, buildFlagBindings)
	},
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	addBuildFlags(buildCmd.Flags())
	buildCmd.Flags().StringVarP(&buildFormat, "format", "f", "text", "Output format (text, json)")
}

// buildReport is one row of the build summary.
type buildReport struct {
	Source    string `json:"source"`
	Success   bool   `json:"success"`
	ExitCode  int    `json:"exit_code"`
	TimedOut  bool   `json:"timed_out,omitempty"`
	Published bool   `json:"published"`
	Duration  string `json:"duration"`
	Error     string `json:"error,omitempty"`
}

func runBuild(cmd *cobra.Command, args []string) error {
	if buildFormat != "text" && buildFormat != "json" {
		return fmt.Errorf("unsupported format: %s (supported: text, json)", buildFormat)
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	cfg, cleanup, err := config.PrepareDirectories(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	sources, err := watcher.Discover(cfg.Build.Root, cfg.Build.SourceExtensions)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources matching %v in %s", cfg.Build.SourceExtensions, cfg.Build.Root)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	invoker := build.NewInvoker(cfg, afero.NewOsFs(), logger)
	reports := buildAll(ctx, invoker, cfg.Build.OutputDir, sources)

	if err := writeBuildReports(cmd.OutOrStdout(), buildFormat, reports); err != nil {
		return err
	}

	failed := 0
	for _, report := range reports {
		if !report.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d builds failed", failed, len(reports))
	}

	return nil
}

// buildAll builds the sources concurrently and returns one report per source
// in input order.
func buildAll(ctx context.Context, builder watcher.Builder, outputDir string, sources []string) []buildReport {
	return iter.Map(sources, func(source *string) buildReport {
		start := time.Now()
		report := buildReport{Source: build.Identifier(*source)}

		result, err := builder.Invoke(ctx, *source, outputDir)
		if err != nil {
			report.Error = err.Error()
			report.Duration = time.Since(start).Round(time.Millisecond).String()
			return report
		}

		report.Success = result.Success
		report.ExitCode = result.ExitCode
		report.TimedOut = result.TimedOut
		report.Published = result.ArtifactCopied
		report.Duration = result.Duration.Round(time.Millisecond).String()

		return report
	})
}

func writeBuildReports(w io.Writer, format string, reports []buildReport) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(reports)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATUS\tEXIT\tPDF\tDURATION")
	for _, report := range reports {
		status := "ok"
		switch {
		case report.Error != "":
			status = "error: " + report.Error
		case report.TimedOut:
			status = "timed out"
		case !report.Success:
			status = "failed"
		}
		published := "-"
		if report.Published {
			published = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", report.Source, status, report.ExitCode, published, report.Duration)
	}

	return tw.Flush()
}
