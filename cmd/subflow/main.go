// Command subflow executes substep statements against a signature store,
// serves the store to other processes, and manages recorded signatures.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/subflow-io/subflow/internal/config"
)

const version = "0.1.0"

var (
	cfgFile   string
	verbosity int

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:     "subflow",
	Short:   "substep execution engine",
	Long:    `subflow runs workflow substeps on a pool of workers, skipping work whose signatures show it has already been done.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		setupLogging(cfg.Verbosity)
		return nil
	},
}

func loadConfig() (config.Config, error) {
	c := config.Default()
	if cfgFile != "" {
		var err error
		c, err = config.Load(cfgFile)
		if err != nil {
			return c, fmt.Errorf("load config: %w", err)
		}
	}
	if verbosity >= 0 {
		c.Verbosity = verbosity
	}
	return c, nil
}

func setupLogging(verbosity int) {
	level := slog.LevelInfo
	switch {
	case verbosity <= 0:
		level = slog.LevelWarn
	case verbosity >= 2:
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", -1, "log verbosity (0 quiet, 2 debug)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
