package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/config"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfg      *config.Config
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:     "reflex",
	Short:   "REFLEX mobility-diversity pipeline",
	Long:    "Expands monthly device-panel visits into county flows, merges them by year, and computes the REFLEX diversity index of inbound non-routine travel per county.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.LoadFile(cfgFile)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("config loaded", zap.String("command", cmd.CommandPath()), zap.String("file", cfgFile))
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "reflex:", err)
		os.Exit(1)
	}
}
