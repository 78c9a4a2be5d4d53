package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spoolhq/spool/internal/ui"
)

var txnMessage string

var txnCmd = &cobra.Command{
	Use:     "txn",
	GroupID: "advanced",
	Short:   "Batch record mutations into an atomic transaction",
	Long: `Transactions batch record mutations on an ephemeral branch. Commit merges
them into the record branch as one unit; abort discards them entirely. Only
one transaction may be active at a time.`,
}

var txnBeginCmd = &cobra.Command{
	Use:   "begin <name>",
	Short: "Begin a transaction",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		if err := e.mgr.Begin(ctx, e.wt, args[0]); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Transaction %s begun\n", ui.RenderPass("✓"), args[0])
	},
}

var txnCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit the active transaction",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		if err := e.mgr.CommitTxn(ctx, e.wt, txnMessage); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Transaction committed\n", ui.RenderPass("✓"))
	},
}

var txnAbortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Abort the active transaction, discarding its changes",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		if err := e.mgr.Abort(ctx, e.wt); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Transaction aborted\n", ui.RenderPass("✓"))
	},
}

func init() {
	txnCommitCmd.Flags().StringVarP(&txnMessage, "message", "m", "", "commit message")
	txnCmd.AddCommand(txnBeginCmd, txnCommitCmd, txnAbortCmd)
	rootCmd.AddCommand(txnCmd)
}
