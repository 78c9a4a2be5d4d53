package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spoolhq/spool/internal/ui"
	"github.com/spoolhq/spool/internal/watcher"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "advanced",
	Short:   "Watch the record store and commit changes as they happen",
	Long: `Watch the record directory and commit each debounced batch of changes to
the record branch. Useful while editing record files directly or when an
external tool writes them. Stop with Ctrl-C.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		w, err := watcher.New(watchDebounce)
		if err != nil {
			fatal(err)
		}
		if err := w.Start(e.store.Dir()); err != nil {
			fatal(err)
		}
		defer w.Stop()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

		fmt.Printf("%s Watching %s\n", ui.RenderAccent("●"), e.store.Dir())
		for {
			select {
			case <-sig:
				fmt.Println("\nstopping")
				return
			case ev, ok := <-w.Events():
				if !ok {
					return
				}
				hash, err := e.commit(ctx, fmt.Sprintf("spool: %s %s", ev.Op, ev.RecordID))
				if err != nil {
					fmt.Printf("%s commit failed: %v\n", ui.RenderWarn("⚠"), err)
					continue
				}
				if hash != "" {
					fmt.Printf("%s %s %s (%s)\n", ui.RenderPass("✓"), ev.Op, ev.RecordID, hash[:12])
				}
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				fmt.Printf("%s watcher: %v\n", ui.RenderWarn("⚠"), err)
			}
		}
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "event debounce window")
	rootCmd.AddCommand(watchCmd)
}
