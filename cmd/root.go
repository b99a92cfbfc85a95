// Package cmd provides the livetex command-line interface.
//
// Configuration sources, highest priority first:
//
//  1. Command-line flags (--port, --root, ...)
//  2. LIVETEX_* environment variables (LIVETEX_SERVER_PORT, LIVETEX_BUILD_COMMAND, ...)
//  3. A .env file in the working directory, loaded into the environment
//  4. The config file: --config, else LIVETEX_CONFIG_FILE, else .livetex.yml
//
// The build command is everything after "--":
//
//	livetex serve -- latexmk -pdf -interaction=nonstopmode
package cmd

import (
	"fmt"
	"os"

	"github.com/conneroisu/livetex/internal/config"
	"github.com/conneroisu/livetex/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "livetex",
	Short: "Rebuild TeX documents on change and preview them in the browser",
	Long: `livetex watches the TeX sources in a directory, recompiles each one with
your build command whenever it changes, and serves the resulting PDF together
with a preview page that reloads itself after every rebuild.

Quick Start:
  livetex serve -- latexmk -pdf        Watch the current directory
  livetex build -- pdflatex            Build every source once
  livetex config show -- latexmk       Print the resolved configuration

Open http://localhost:8080/<name>.tex to preview a document.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .livetex.yml, can also use LIVETEX_CONFIG_FILE env var)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
}

// initConfig picks the config file and enables environment overrides.
func initConfig() {
	// A missing .env file is the common case
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("LIVETEX_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".livetex")
	}

	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Warning: cannot read config file %s: %v\n", viper.ConfigFileUsed(), err)
	}
}

// loadConfig resolves the configuration, taking the build command from the
// positional arguments when any are given.
func loadConfig(args []string) (*config.Config, error) {
	if len(args) > 0 {
		viper.Set("build.command", args)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	}), nil
}
