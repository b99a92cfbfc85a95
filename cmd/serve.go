package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/livetex/internal/build"
	"github.com/conneroisu/livetex/internal/config"
	"github.com/conneroisu/livetex/internal/server"
	"github.com/conneroisu/livetex/internal/state"
	"github.com/conneroisu/livetex/internal/watcher"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve [flags] -- <build command...>",
	Aliases: []string{"s"},
	Short:   "Watch the sources, rebuild on change and serve the previews",
	Long: `Discover the TeX sources directly inside the root directory, build each
once, then rebuild a source whenever its modification time changes. The
HTTP server exposes:

  GET    /<name>.tex       preview page that reloads after each rebuild
  GET    /state/<name>     {"update":bool,"error":bool} or null
  DELETE /update/<name>    mark the latest rebuild as seen
  GET    /pdf/<name>       compiled PDF
  GET    /log/<name>       compiler log
  GET    /events/<name>    websocket stream of state changes

Examples:
  livetex serve -- latexmk -pdf
  livetex serve --port 9000 --watch-mode notify -- pdflatex -interaction=nonstopmode
  livetex serve -r docs -o public -- xelatex`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindCommandFlags(cmd, buildFlagBindings, serveFlagBindings)
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addBuildFlags(serveCmd.Flags())
	addServeFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
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
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn(context.Background(), err, "Failed to remove intermediate directory")
		}
	}()

	sources, err := watcher.Discover(cfg.Build.Root, cfg.Build.SourceExtensions)
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(signalCtx)
	defer cancel()

	if len(sources) == 0 {
		logger.Warn(ctx, nil, "No sources found, serving anyway",
			"root", cfg.Build.Root,
			"extensions", cfg.Build.SourceExtensions)
	}

	fs := afero.NewOsFs()
	hub := server.NewEventHub(cfg.Server.AllowedOrigins, logger)
	memory := state.NewMemoryStore()
	store := state.Observe(memory, hub.Publish)

	var triggers watcher.TriggerFactory
	if cfg.Watch.Mode == config.WatchModeNotify {
		triggers = watcher.NotifyTriggers(logger)
	}

	supervisor := watcher.NewSupervisor(watcher.WorkerConfig{
		OutputDir: cfg.Build.OutputDir,
		Interval:  cfg.Watch.Interval,
		Builder:   build.NewInvoker(cfg, fs, logger),
		Store:     store,
		Fs:        fs,
		Logger:    logger,
	}, triggers)

	srv := server.New(cfg, server.NewHandler(server.Dependencies{
		Config:  cfg,
		Store:   store,
		Fs:      fs,
		Events:  hub,
		Workers: supervisor.Status,
		Logger:  logger,
	}), hub, logger)

	// Bind first so a busy port fails before any build starts
	addr, err := srv.Listen()
	if err != nil {
		return err
	}

	if err := supervisor.Start(ctx, sources); err != nil {
		_ = srv.Shutdown(context.Background())
		return err
	}

	printPreviewURLs(cmd.OutOrStdout(), addr, sources)

	err = srv.Start(ctx)
	cancel()
	supervisor.Wait()
	logger.Info(context.Background(), "Stopped", "sources", len(sources), "built", memory.Len())

	return err
}

func printPreviewURLs(w io.Writer, addr net.Addr, sources []string) {
	base := "http://" + displayAddr(addr)

	fmt.Fprintf(w, "Serving %d source(s) at %s\n", len(sources), base)
	for _, source := range sources {
		fmt.Fprintf(w, "  %s/%s\n", base, build.Identifier(source))
	}
}

// displayAddr replaces wildcard hosts with localhost.
func displayAddr(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}

	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}

	return net.JoinHostPort(host, port)
}
