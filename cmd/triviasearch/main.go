package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/saltyorg/triviasearch/internal/config"
	"github.com/saltyorg/triviasearch/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// DefaultSnapshot is the snapshot location used when none is configured.
const DefaultSnapshot = "db.sqlite3"

// Global CLI flags
var (
	configFile string
	verbosity  int

	// settings is populated in PersistentPreRunE
	settings *config.Loader
)

// flagKeys maps CLI flags onto setting keys so a flag, a TRIVIA_* variable
// and the config file all feed the same value.
var flagKeys = map[string]string{
	"snapshot":           config.KeySnapshotSource,
	"publish":            config.KeySnapshotPublish,
	"blake2b":            config.KeySnapshotDigest,
	"engine-dir":         config.KeyEngineDir,
	"retry-max-attempts": config.KeyRetryMaxAttempts,
	"retry-base-delay":   config.KeyRetryBaseDelay,
	"retry-max-delay":    config.KeyRetryMaxDelay,
	"fetch-timeout":      config.KeyTimeoutFetch,
	"log-file":           config.KeyLogFile,
	"port":               config.KeyServerPort,
	"bind":               config.KeyServerBind,
	"allow-subnet":       config.KeyServerAllowSubnet,
	"cors-origin":        config.KeyServerCORSOrigins,
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "triviasearch",
		Short: "Trivia question search server",
		Long: `triviasearch loads a read-only SQLite snapshot of trivia questions and
serves substring search over HTTP, SSE and websockets.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	addServeFlags(rootCmd.Flags())

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (yaml, toml or json)")
	pf.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	pf.StringP("snapshot", "s", DefaultSnapshot, "Snapshot location: http(s) URL, file: URL or path")
	pf.String("engine-dir", "", "Directory for the working copy of the snapshot (default $TMPDIR/triviasearch)")
	pf.String("blake2b", "", "Expected BLAKE2b-256 hex digest of the snapshot")
	pf.Int("retry-max-attempts", 10, "Load attempts before giving up (0 retries forever)")
	pf.Duration("retry-base-delay", 500*time.Millisecond, "Delay after the first failed attempt")
	pf.Duration("retry-max-delay", 30*time.Second, "Upper bound on the delay between attempts")
	pf.Duration("fetch-timeout", 30*time.Second, "Timeout for one snapshot download")
	pf.String("log-file", "", "Also write logs to this file, rotated by size")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loader, err := loadSettings(cmd.Flags())
		if err != nil {
			return err
		}
		settings = loader

		if cmd.Name() == "search" || cmd.Name() == "build" {
			logging.ApplyTo(os.Stderr, verbosity, settings)
		} else {
			logging.Apply(verbosity, settings)
		}
		config.SetGlobalTimeouts(config.LoadTimeouts(settings))
		return nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	addServeFlags(serveCmd.Flags())

	rootCmd.AddCommand(
		serveCmd,
		newSearchCmd(),
		newBuildCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("triviasearch %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)

	return rootCmd
}

func addServeFlags(fs *pflag.FlagSet) {
	fs.IntP("port", "p", 0, "HTTP server port (required, or set PORT env var)")
	fs.StringP("bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	fs.StringP("allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	fs.String("cors-origin", "", "Comma-separated browser origins allowed to call the API (* for any)")
	fs.Bool("publish", false, "Serve the local snapshot file at /db.sqlite3")
}

// loadSettings builds the settings loader from the config file, TRIVIA_*
// environment variables and the flags of the running command.
func loadSettings(fs *pflag.FlagSet) (*config.Loader, error) {
	v, err := config.NewViper(configFile)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}
	// PORT is honoured for container platforms that inject it
	if err := v.BindEnv(config.KeyServerPort, config.EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}
	return config.NewLoader(config.NewViperSettings(v)), nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}
