package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spoolhq/spool/internal/syncer"
	"github.com/spoolhq/spool/internal/tracker"
	"github.com/spoolhq/spool/internal/ui"
	"github.com/spoolhq/spool/internal/vcs"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Synchronize records with the remote and external tracker",
	Long: `Run the full sync sequence:

  1. Pull linked external tracker state into local records
  2. Secondary metadata sync
  3. Reconcile the record branch with the remote (fetch, merge, push)
  4. Push local record state out to the external tracker

Conflicting edits resolve last-write-wins; losing versions are archived to
the attic, never discarded silently.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv(cmd.Context(), true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), e.cfg.Sync.Timeout)
		defer cancel()

		engine := &syncer.Engine{
			Manager:    e.mgr,
			WT:         e.wt,
			Store:      e.store,
			State:      e.state,
			MaxRetries: e.cfg.Sync.MaxRetries,
		}
		if e.cfg.Tracker.Enabled {
			cap := tracker.Detect()
			engine.Capability = cap
			if cap.Available {
				engine.Tracker = tracker.NewGH(e.main.Root())
			} else {
				fmt.Printf("%s Tracker sync skipped: %s\n", ui.RenderWarn("⚠"), cap.Reason)
			}
		}

		sum, err := engine.Sync(ctx)
		printWarnings(sum.Warnings)
		fmt.Printf("%s %s\n", statusIcon(err == nil), sum.Render())

		if err != nil {
			var pushErr *vcs.PushError
			if errors.As(err, &pushErr) && pushErr.Class == vcs.ClassPermanent {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				fmt.Fprintf(os.Stderr, "The remote rejected the push permanently. Stage your work with:\n")
				fmt.Fprintf(os.Stderr, "  spool save outbox --updates-only\n")
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				fmt.Fprintf(os.Stderr, "This looks temporary; retry with: spool sync\n")
			}
			os.Exit(1)
		}
	},
}

func statusIcon(ok bool) string {
	if ok {
		return ui.RenderPass("✓")
	}
	return ui.RenderFail("✗")
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
