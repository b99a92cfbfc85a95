package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagBinding ties a command-line flag to the configuration key it overrides.
type flagBinding struct {
	flag string
	key  string
}

var buildFlagBindings = []flagBinding{
	{flag: "root", key: "build.root"},
	{flag: "output-flag", key: "build.output_flag"},
	{flag: "output-dir", key: "build.output_dir"},
	{flag: "intermediate-dir", key: "build.intermediate_dir"},
	{flag: "ext", key: "build.source_extensions"},
	{flag: "timeout", key: "build.timeout"},
}

var serveFlagBindings = []flagBinding{
	{flag: "host", key: "server.host"},
	{flag: "port", key: "server.port"},
	{flag: "max-connections", key: "server.max_connections"},
	{flag: "allowed-origin", key: "server.allowed_origins"},
	{flag: "interval", key: "watch.interval"},
	{flag: "watch-mode", key: "watch.mode"},
}

// addBuildFlags registers the flags shared by every command that runs builds.
// Defaults are left empty so config files and env vars are not shadowed.
func addBuildFlags(fs *pflag.FlagSet) {
	fs.StringP("root", "r", "", "directory holding the TeX sources (default \".\")")
	fs.String("output-flag", "", "flag that points the compiler at its output directory (default \"-output-directory\")")
	fs.StringP("output-dir", "o", "", "public directory for compiled PDFs (default \"<root>/live-compiled\")")
	fs.String("intermediate-dir", "", "scratch directory for compiler output and logs (default: temporary)")
	fs.StringSlice("ext", nil, "recognized source extensions (default \".tex\")")
	fs.Duration("timeout", 0, "per-build timeout, 0 for none")
}

func addServeFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "host to bind to (default \"0.0.0.0\")")
	fs.IntP("port", "p", 0, "port to serve on (default 8080)")
	fs.Int("max-connections", 0, "maximum concurrent connections, 0 for unlimited")
	fs.StringSlice("allowed-origin", nil, "extra origin patterns accepted by the event stream")
	fs.Duration("interval", 0, "polling interval (default 500ms)")
	fs.String("watch-mode", "", "poll, or notify to add filesystem notifications (default \"poll\")")
}

// bindChangedFlags copies explicitly set flags into v. Flags left at their
// defaults are skipped so lower-priority sources still apply.
func bindChangedFlags(v *viper.Viper, fs *pflag.FlagSet, bindings []flagBinding) error {
	for _, b := range bindings {
		flag := fs.Lookup(b.flag)
		if flag == nil {
			return fmt.Errorf("flag --%s is not defined", b.flag)
		}
		if !flag.Changed {
			continue
		}
		if err := v.BindPFlag(b.key, flag); err != nil {
			return fmt.Errorf("binding --%s: %w", b.flag, err)
		}
	}

	return nil
}

func bindCommandFlags(cmd *cobra.Command, groups ...[]flagBinding) error {
	for _, bindings := range groups {
		if err := bindChangedFlags(viper.GetViper(), cmd.Flags(), bindings); err != nil {
			return err
		}
	}

	return nil
}
