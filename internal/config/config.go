// Package config provides configuration management for livetex using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration is resolved once at startup into an immutable *Config
// that is handed to the build invoker, the watch workers and the router.
// Environment variables use the LIVETEX_ prefix (LIVETEX_SERVER_PORT,
// LIVETEX_BUILD_OUTPUT_DIR, ...).
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values applied when a key is not set by any source.
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 8080
	DefaultOutputFlag        = "-output-directory"
	DefaultOutputDirName     = "live-compiled"
	DefaultArtifactExtension = ".pdf"
	DefaultLogExtension      = ".log"
	DefaultInterval          = 500 * time.Millisecond

	WatchModePoll   = "poll"
	WatchModeNotify = "notify"
)

// DefaultSourceExtensions lists the extensions discovered when none are configured.
var DefaultSourceExtensions = []string{".tex"}

type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
	Build  BuildConfig  `mapstructure:"build" yaml:"build" json:"build"`
	Watch  WatchConfig  `mapstructure:"watch" yaml:"watch" json:"watch"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" json:"log"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host" json:"host"`
	Port           int      `mapstructure:"port" yaml:"port" json:"port"`
	MaxConnections int      `mapstructure:"max_connections" yaml:"max_connections" json:"max_connections"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// BuildConfig describes the external compiler and the directories it works in.
type BuildConfig struct {
	Root              string        `mapstructure:"root" yaml:"root" json:"root"`
	Command           []string      `mapstructure:"command" yaml:"command" json:"command"`
	OutputFlag        string        `mapstructure:"output_flag" yaml:"output_flag" json:"output_flag"`
	OutputDir         string        `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	IntermediateDir   string        `mapstructure:"intermediate_dir" yaml:"intermediate_dir" json:"intermediate_dir"`
	SourceExtensions  []string      `mapstructure:"source_extensions" yaml:"source_extensions" json:"source_extensions"`
	ArtifactExtension string        `mapstructure:"artifact_extension" yaml:"artifact_extension" json:"artifact_extension"`
	LogExtension      string        `mapstructure:"log_extension" yaml:"log_extension" json:"log_extension"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	Mode     string        `mapstructure:"mode" yaml:"mode" json:"mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.max_connections", 0)
	v.SetDefault("build.root", ".")
	v.SetDefault("build.output_flag", DefaultOutputFlag)
	v.SetDefault("build.source_extensions", DefaultSourceExtensions)
	v.SetDefault("build.artifact_extension", DefaultArtifactExtension)
	v.SetDefault("build.log_extension", DefaultLogExtension)
	v.SetDefault("build.timeout", time.Duration(0))
	v.SetDefault("watch.interval", DefaultInterval)
	v.SetDefault("watch.mode", WatchModePoll)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load resolves the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom resolves the configuration from v, applies defaults, makes the
// directory paths absolute and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// An env var arrives as one string and must be split on whitespace,
	// whether or not the config file also sets a command
	if raw, ok := v.Get("build.command").(string); ok {
		config.Build.Command = strings.Fields(raw)
	}
	if len(config.Build.SourceExtensions) == 0 {
		config.Build.SourceExtensions = append([]string(nil), DefaultSourceExtensions...)
	}

	if err := resolvePaths(&config.Build); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func resolvePaths(build *BuildConfig) error {
	root, err := filepath.Abs(build.Root)
	if err != nil {
		return fmt.Errorf("resolving root %q: %w", build.Root, err)
	}
	build.Root = root

	if build.OutputDir == "" {
		build.OutputDir = filepath.Join(root, DefaultOutputDirName)
	} else if !filepath.IsAbs(build.OutputDir) {
		build.OutputDir = filepath.Join(root, build.OutputDir)
	}

	if build.IntermediateDir != "" && !filepath.IsAbs(build.IntermediateDir) {
		build.IntermediateDir = filepath.Join(root, build.IntermediateDir)
	}

	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

var replacer = strings.NewReplacer(".", "_")

// BindEnv enables LIVETEX_ prefixed environment variable overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("LIVETEX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(replacer)
}
