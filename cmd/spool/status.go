package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spoolhq/spool/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show record branch and worktree state",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		fmt.Printf("record branch: %s\n", e.mgr.Branch())
		fmt.Printf("worktree:      %s\n", e.mgr.Path())

		if err := e.mgr.Health(ctx, e.wt); err != nil {
			fmt.Printf("%s %v\n", ui.RenderFail("✗"), err)
		} else {
			fmt.Printf("%s worktree healthy\n", ui.RenderPass("✓"))
		}

		if txn, err := e.mgr.ActiveTxn(ctx, e.wt); err == nil && txn != "" {
			fmt.Printf("%s transaction %q active\n", ui.RenderAccent("●"), txn)
		}

		ids, err := e.store.IDs()
		if err == nil {
			fmt.Printf("records:       %d\n", len(ids))
		}

		remote := e.mgr.Remote()
		if remote == "" {
			fmt.Println("remote:        none (local-only)")
			return
		}
		fmt.Printf("remote:        %s\n", remote)
		if !e.wt.RemoteBranchExists(ctx, remote, e.mgr.Branch()) {
			fmt.Println("               branch not on remote yet")
			return
		}
		ahead, behind, err := e.wt.RevListCounts(ctx, "HEAD", remote+"/"+e.mgr.Branch())
		if err != nil {
			fmt.Printf("%s %v\n", ui.RenderWarn("⚠"), err)
			return
		}
		switch {
		case ahead == 0 && behind == 0:
			fmt.Printf("%s in sync with %s\n", ui.RenderPass("✓"), remote)
		case behind == 0:
			fmt.Printf("%s %d commit(s) ahead of %s\n", ui.RenderAccent("↑"), ahead, remote)
		case ahead == 0:
			fmt.Printf("%s %d commit(s) behind %s\n", ui.RenderAccent("↓"), behind, remote)
		default:
			fmt.Printf("%s diverged: %d ahead, %d behind; run spool sync\n",
				ui.RenderWarn("⚠"), ahead, behind)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
