package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/spoolhq/spool/internal/record"
	"github.com/spoolhq/spool/internal/snapshot"
	"github.com/spoolhq/spool/internal/store"
	"github.com/spoolhq/spool/internal/ui"
	"github.com/spoolhq/spool/internal/vcs"
)

var (
	saveUpdatesOnly bool
	importClear     bool
	deleteYes       bool
)

var saveCmd = &cobra.Command{
	Use:     "save [name]",
	GroupID: "snapshot",
	Short:   "Stage the record set into a named snapshot",
	Long: `Save records into a named snapshot (default "outbox"), independent of the
normal sync path. With --updates-only, only records substantively changed
since the last successful sync are staged, computed against the cached
last-synced revision so it works offline.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		name := "outbox"
		if len(args) == 1 {
			name = args[0]
		}

		opts := snapshot.SaveOptions{UpdatesOnly: saveUpdatesOnly}
		if saveUpdatesOnly {
			baseline, err := syncBaseline(cmd, e)
			if err != nil {
				fatal(err)
			}
			opts.Baseline = baseline
		}

		res, err := e.snaps.Save(e.store, name, opts)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s Saved %d record(s) to %s", ui.RenderPass("✓"), res.Saved, name)
		if res.Unchanged > 0 {
			fmt.Printf(" (%d unchanged)", res.Unchanged)
		}
		fmt.Println()
		if len(res.Conflicts) > 0 {
			fmt.Printf("%s %d conflict(s) archived to the snapshot attic\n",
				ui.RenderWarn("⚠"), len(res.Conflicts))
		}
		for _, le := range res.Skipped {
			fmt.Printf("%s %v\n", ui.RenderWarn("⚠"), le)
		}
	},
}

// syncBaseline builds the updates-only baseline from the cached last-synced
// revision. A live fetch is never attempted here: incremental save must work
// exactly when the network does not.
func syncBaseline(cmd *cobra.Command, e *env) (snapshot.BaselineFunc, error) {
	ctx := cmd.Context()
	commit, err := e.state.LastSyncedCommit(e.cfg.Sync.Remote, e.cfg.Sync.Branch)
	if err != nil {
		return nil, err
	}
	if commit == "" {
		return nil, fmt.Errorf("no cached sync baseline yet; run spool sync once, or save without --updates-only")
	}
	return func(id string) (*record.Record, error) {
		data, err := e.wt.ReadAtRevision(ctx, commit, store.RelPath(id))
		if errors.Is(err, vcs.ErrAbsent) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return record.Unmarshal(data)
	}, nil
}

var importCmd = &cobra.Command{
	Use:     "import <name>",
	GroupID: "snapshot",
	Short:   "Merge a named snapshot into the main store",
	Long: `Merge the named snapshot's records into the main store and commit. With
--clear, the snapshot is deleted afterward, but only once the commit has
succeeded.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		res, err := e.snaps.Import(e.store, args[0], func() (string, error) {
			return e.commit(ctx, "spool: import snapshot "+args[0])
		}, importClear)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s Imported %d record(s) from %s", ui.RenderPass("✓"), res.Imported, res.Name)
		if res.Unchanged > 0 {
			fmt.Printf(" (%d unchanged)", res.Unchanged)
		}
		fmt.Println()
		if len(res.Conflicts) > 0 {
			fmt.Printf("%s %d conflict(s) archived to the attic\n", ui.RenderWarn("⚠"), len(res.Conflicts))
		}
		if res.Cleared {
			fmt.Printf("%s Snapshot %s cleared\n", ui.RenderPass("✓"), res.Name)
		}
	},
}

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	GroupID: "snapshot",
	Short:   "Manage named snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List named snapshots",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		names, err := e.snaps.List()
		if err != nil {
			fatal(err)
		}
		if len(names) == 0 {
			fmt.Println("no snapshots")
			return
		}
		for _, n := range names {
			ids, _ := e.snaps.Store(n).IDs()
			fmt.Printf("%-20s %d record(s)\n", n, len(ids))
		}
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a named snapshot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv(cmd.Context(), true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		if !deleteYes {
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Delete snapshot %q? Its records and attic are removed.", args[0])).
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				fatal(err)
			}
			if !confirmed {
				fmt.Println("aborted")
				return
			}
		}
		if err := e.snaps.Delete(args[0]); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Deleted snapshot %s\n", ui.RenderPass("✓"), args[0])
	},
}

func init() {
	saveCmd.Flags().BoolVar(&saveUpdatesOnly, "updates-only", false, "stage only records changed since the last sync")
	importCmd.Flags().BoolVar(&importClear, "clear", false, "delete the snapshot after a successful commit")
	snapshotDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip confirmation")

	snapshotCmd.AddCommand(snapshotListCmd, snapshotDeleteCmd)
	rootCmd.AddCommand(saveCmd, importCmd, snapshotCmd)
}
