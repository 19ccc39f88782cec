package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var restoreYes bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Inspect and restore backups",
}

var backupListCmd = &cobra.Command{
	Use:   "list <path>",
	Short: "List retained backups of path, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fm, err := openManager()
		if err != nil {
			return err
		}
		defer fm.Close()

		handles, err := fm.ListBackups(args[0])
		if err != nil {
			return err
		}
		if len(handles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No backups")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tSIZE\tDIGEST")
		for _, h := range handles {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				h.ID,
				humanize.Time(h.CreatedAt),
				humanize.IBytes(uint64(h.Size)),
				h.Digest[:12])
		}
		return tw.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Write a backup back over its original path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fm, err := openManager()
		if err != nil {
			return err
		}
		defer fm.Close()

		h, err := fm.Backups().Get(args[0])
		if err != nil {
			return err
		}

		if !restoreYes {
			confirmed := false
			prompt := &survey.Confirm{
				Message: fmt.Sprintf("Restore %s to its content from %s?", h.Path, h.CreatedAt.Format(time.RFC3339)),
				Default: false,
			}
			if err := survey.AskOne(prompt, &confirmed); err != nil {
				return fmt.Errorf("prompt failed: %w", err)
			}
			if !confirmed {
				fmt.Fprintln(cmd.OutOrStdout(), "Restore cancelled")
				return nil
			}
		}

		if _, err := fm.RestoreBackup(h.ID); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Restored %s\n", h.Path)
		return nil
	},
}

func init() {
	backupRestoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "restore without asking")
	backupCmd.AddCommand(backupListCmd, backupRestoreCmd)
}
