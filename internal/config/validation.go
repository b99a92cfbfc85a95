package config

import (
	"fmt"
	"strings"
)

var dangerousHostChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "/"}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateBuildConfig(&config.Build); err != nil {
		return fmt.Errorf("build config: %w", err)
	}

	if err := validateWatchConfig(&config.Watch); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	return nil
}

func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	for _, char := range dangerousHostChars {
		if strings.Contains(config.Host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}

	if config.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative")
	}

	return nil
}

func validateBuildConfig(config *BuildConfig) error {
	if len(config.Command) == 0 || strings.TrimSpace(config.Command[0]) == "" {
		return fmt.Errorf("build command must name a program")
	}

	if len(config.SourceExtensions) == 0 {
		return fmt.Errorf("at least one source extension is required")
	}
	for _, ext := range config.SourceExtensions {
		if err := validateExtension(ext); err != nil {
			return fmt.Errorf("source extension: %w", err)
		}
	}

	if err := validateExtension(config.ArtifactExtension); err != nil {
		return fmt.Errorf("artifact extension: %w", err)
	}
	if err := validateExtension(config.LogExtension); err != nil {
		return fmt.Errorf("log extension: %w", err)
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}

	return nil
}

func validateExtension(ext string) error {
	if len(ext) < 2 || !strings.HasPrefix(ext, ".") {
		return fmt.Errorf("%q must start with a dot", ext)
	}
	if strings.ContainsAny(ext[1:], `./\`) {
		return fmt.Errorf("%q must be a single extension", ext)
	}

	return nil
}

func validateWatchConfig(config *WatchConfig) error {
	if config.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", config.Interval)
	}

	switch config.Mode {
	case WatchModePoll, WatchModeNotify:
	default:
		return fmt.Errorf("unknown watch mode %q (supported: %s, %s)", config.Mode, WatchModePoll, WatchModeNotify)
	}

	return nil
}

func validateLogConfig(config *LogConfig) error {
	switch strings.ToLower(config.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", config.Level)
	}

	switch config.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (supported: text, json)", config.Format)
	}

	return nil
}
