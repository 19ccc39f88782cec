package main

import (
	"context"

	"filesafe/internal/logging"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var applyCmd = &cobra.Command{
	Use:   "apply <plan.yaml>",
	Short: "Apply every operation in a plan, or none of them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, err := loadPlan(args[0])
		if err != nil {
			return err
		}

		fm, err := openManager()
		if err != nil {
			return err
		}
		defer fm.Close()

		id := fm.BeginTransaction(ops...)
		ctx := logging.ContextWithTransactionID(context.Background(), id)
		log := logger.WithTransactionID(ctx)
		log.Debug("applying plan", zap.String("plan", args[0]), zap.Int("operations", len(ops)))

		applied, err := fm.CommitTransaction(id)
		if err != nil {
			log.Error("plan rolled back", zap.Error(err))
			color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "Transaction %s rolled back\n", id)
			return err
		}

		for i := range applied {
			printOperation(cmd.OutOrStdout(), &applied[i])
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Committed %d operation(s) in transaction %s\n", len(applied), id)
		return nil
	},
}
