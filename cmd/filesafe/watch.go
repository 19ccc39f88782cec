package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"filesafe/internal/backup"
	"filesafe/internal/change"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Back up files as they change outside filesafe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fm, err := openManager()
		if err != nil {
			return err
		}
		defer fm.Close()

		out := cmd.OutOrStdout()
		changed := color.New(color.FgYellow).SprintFunc()

		tracker, err := change.New(fm.Backups(), change.Options{
			OnBackup: func(path string, h *backup.Handle) {
				fmt.Fprintf(out, "%s %s (backup %s)\n", changed("changed"), path, h.ID)
			},
		}, logger.Logger)
		if err != nil {
			return err
		}
		defer tracker.Close()

		if err := tracker.Add(args[0]); err != nil {
			return err
		}

		fmt.Fprintf(out, "Watching %s, press Ctrl+C to stop\n", args[0])

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}
