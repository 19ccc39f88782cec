package main

import (
	"fmt"
	"io"
	"os"

	"filesafe/internal/diff"
	"filesafe/shared/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	writeStrategy string
	writeFrom     string
)

var writeCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Write content from --file or stdin to path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolution, err := shared.ParseResolution(writeStrategy)
		if err != nil {
			return err
		}

		var data []byte
		if writeFrom != "" {
			data, err = os.ReadFile(writeFrom)
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		fm, err := openManager()
		if err != nil {
			return err
		}
		defer fm.Close()

		op, err := fm.WriteFileWithStrategy(args[0], data, resolution)
		if err != nil {
			return err
		}
		printOperation(cmd.OutOrStdout(), op)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print the content of path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fm, err := openManager()
		if err != nil {
			return err
		}
		defer fm.Close()

		data, err := fm.ReadFile(args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <path>",
	Short: "Delete path, keeping a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fm, err := openManager()
		if err != nil {
			return err
		}
		defer fm.Close()

		op, err := fm.DeleteFile(args[0])
		if err != nil {
			return err
		}
		printOperation(cmd.OutOrStdout(), op)
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Show a line diff between two files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldContent, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		newContent, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}

		result, err := diff.NewEngine(3).Diff(oldContent, newContent)
		if err != nil {
			return fmt.Errorf("generating diff: %w", err)
		}
		if result.Empty() {
			fmt.Fprintln(cmd.OutOrStdout(), "No differences")
			return nil
		}

		printColoredDiff(cmd.OutOrStdout(), result)
		fmt.Fprintf(cmd.OutOrStdout(), "%d addition(s), %d deletion(s)\n",
			result.Stats.Additions, result.Stats.Deletions)
		return nil
	},
}

func init() {
	writeCmd.Flags().StringVarP(&writeStrategy, "strategy", "s", string(shared.Overwrite), "conflict resolution: overwrite, skip or merge")
	writeCmd.Flags().StringVarP(&writeFrom, "file", "f", "", "read content from this file instead of stdin")
}

func printOperation(w io.Writer, op *shared.FileOperation) {
	kind := color.New(color.FgGreen, color.Bold).SprintFunc()
	dim := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s %s\n", kind(op.Kind), op.Path)
	if op.Digest != "" {
		fmt.Fprintf(w, "  digest  %s\n", dim(op.Digest))
	}
	if op.BackupID != "" {
		fmt.Fprintf(w, "  backup  %s\n", dim(op.BackupID))
	}
}

func printColoredDiff(w io.Writer, result *diff.DiffResult) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, hunk := range result.Hunks {
		header.Fprintf(w, "@@ -%d,%d +%d,%d @@\n", hunk.OldStart, hunk.OldLines, hunk.NewStart, hunk.NewLines)
		for _, line := range hunk.Lines {
			switch line.Type {
			case diff.Addition:
				added.Fprintln(w, "+ "+line.Content)
			case diff.Deletion:
				removed.Fprintln(w, "- "+line.Content)
			default:
				fmt.Fprintln(w, "  "+line.Content)
			}
		}
	}
}
