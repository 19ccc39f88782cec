package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"filesafe/internal/audit"
	"filesafe/internal/transaction"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	auditSince time.Duration
	auditLimit int
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Inspect journaled transactions",
}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled transactions, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fm, err := openManager()
		if err != nil {
			return err
		}
		defer fm.Close()

		txs, err := fm.ListTransactions()
		if err != nil {
			return err
		}
		if len(txs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No transactions")
			return nil
		}

		stateColor := map[transaction.State]*color.Color{
			transaction.Pending:    color.New(color.FgYellow),
			transaction.Committed:  color.New(color.FgGreen),
			transaction.RolledBack: color.New(color.FgRed),
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATE\tOPS\tCREATED\tERROR")
		for _, tx := range txs {
			state := string(tx.State)
			if c, ok := stateColor[tx.State]; ok {
				state = c.Sprint(state)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				tx.ID, state, len(tx.Operations), humanize.Time(tx.CreatedAt), tx.Error)
		}
		return tw.Flush()
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit [path]",
	Short: "Show recorded file operations, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fm, err := openManager()
		if err != nil {
			return err
		}
		defer fm.Close()

		log := fm.Audit()
		if log == nil {
			return fmt.Errorf("no audit backend configured (set audit_backend)")
		}

		filter := audit.Filter{Limit: auditLimit}
		if len(args) == 1 {
			filter.Path = args[0]
		}
		if auditSince > 0 {
			filter.Since = time.Now().Add(-auditSince)
		}

		events, err := log.Retrieve(context.Background(), filter)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tKIND\tPATH\tSIZE\tTRANSACTION")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				humanize.Time(e.Timestamp), e.Kind, e.Path, humanize.IBytes(uint64(e.Size)), e.TransactionID)
		}
		return tw.Flush()
	},
}

func init() {
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "only events newer than this")
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 50, "maximum number of events")
	txCmd.AddCommand(txListCmd)
}
