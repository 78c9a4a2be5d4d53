package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spoolhq/spool/internal/config"
	"github.com/spoolhq/spool/internal/debug"
	"github.com/spoolhq/spool/internal/snapshot"
	"github.com/spoolhq/spool/internal/store"
	"github.com/spoolhq/spool/internal/syncstate"
	"github.com/spoolhq/spool/internal/ui"
	"github.com/spoolhq/spool/internal/vcs/git"
	"github.com/spoolhq/spool/internal/worktree"
)

var rootCmd = &cobra.Command{
	Use:   "spool",
	Short: "Git-backed distributed issue tracking",
	Long: `Spool stores issue records as files on a dedicated git branch, kept in a
hidden worktree so your working branch never sees them. Independent clones
converge through ordinary fetch/merge/push cycles; no server, no daemon.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var noColor bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddGroup(
		&cobra.Group{ID: "record", Title: "Record Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "snapshot", Title: "Snapshot Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
}

// env bundles the per-invocation handles most commands need.
type env struct {
	cfg    *config.Config
	main   *git.Repo
	mgr    *worktree.Manager
	wt     *git.Repo
	store  *store.Store
	state  *syncstate.DB
	snaps  *snapshot.Manager
	unlock func()
}

// openEnv discovers the repository, loads config, and initializes the record
// worktree. When lock is true the worktree mutual-exclusion lock is taken;
// every mutating command must pass true.
func openEnv(ctx context.Context, lock bool) (*env, error) {
	main, err := git.New(".")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(main.Root())
	if err != nil {
		return nil, err
	}
	if noColor || !cfg.Color {
		ui.DisableColor()
	}
	debug.Init(main.StateDir())

	remote := cfg.Sync.Remote
	if !main.HasRemote(ctx, remote) {
		remote = ""
	}
	mgr := worktree.NewManager(main, cfg.Sync.Branch, remote)

	e := &env{cfg: cfg, main: main, mgr: mgr}
	if lock {
		unlock, err := mgr.Lock()
		if err != nil {
			return nil, err
		}
		e.unlock = unlock
	}

	wt, err := mgr.Init(ctx)
	if err != nil {
		e.close()
		return nil, err
	}
	e.wt = wt
	e.store = store.New(wt.Root())

	state, err := syncstate.Open(filepath.Join(main.StateDir(), "state.db"))
	if err != nil {
		e.close()
		return nil, err
	}
	e.state = state
	e.snaps = snapshot.New(filepath.Join(main.StateDir(), "snapshots"), nil)
	return e, nil
}

func (e *env) close() {
	if e.state != nil {
		e.state.Close()
	}
	if e.unlock != nil {
		e.unlock()
	}
}

// commit records pending worktree changes with a standard message.
func (e *env) commit(ctx context.Context, message string) (string, error) {
	return e.mgr.Commit(ctx, e.wt, message)
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), w)
	}
}
