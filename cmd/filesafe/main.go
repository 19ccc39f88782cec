package main

import (
	"fmt"
	"os"

	"filesafe/internal/config"
	"filesafe/internal/logging"
	"filesafe/internal/manager"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger = logging.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "filesafe",
	Short: "Safe, transactional file edits",
	Long: `filesafe applies file edits atomically, detects conflicting on-disk changes,
keeps bounded backups of overwritten content and commits batches of edits
all or nothing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		logger, err = logging.NewLogger(cfg.LogLevel, cfg.LogDevelopment)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a JSON config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(writeCmd, readCmd, deleteCmd, backupCmd, applyCmd, diffCmd, watchCmd, txCmd, auditCmd)
}

func openManager() (*manager.FileManager, error) {
	fm, err := manager.New(cfg, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("initializing file manager: %w", err)
	}
	return fm, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
