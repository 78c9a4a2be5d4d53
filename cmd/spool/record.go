package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/spoolhq/spool/internal/record"
	"github.com/spoolhq/spool/internal/ui"
)

var (
	createPriority   int
	createKind       string
	createLabels     []string
	createParent     string
	createBody       string
	createDeferUntil string

	updateTitle      string
	updateStatus     string
	updatePriority   int
	updateBody       string
	updateDeferUntil string
	updateTracker    string

	closeReason string

	labelRemove bool
)

// newID returns a fresh stable identifier. Random rather than sequential:
// independent clones create records concurrently and must not collide.
func newID() string {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the platform is broken; fall back to time.
		return fmt.Sprintf("sp-%x", time.Now().UnixNano())
	}
	return "sp-" + hex.EncodeToString(b[:])
}

// parseWhen parses a natural-language time expression like "tomorrow" or
// "next friday", or an RFC 3339 timestamp.
func parseWhen(expr string) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return &t, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	res, err := w.Parse(expr, time.Now())
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("could not parse %q as a time", expr)
	}
	return &res.Time, nil
}

var createCmd = &cobra.Command{
	Use:     "create <title>",
	GroupID: "record",
	Short:   "Create a new record",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		now := time.Now().UTC()
		rec := &record.Record{
			ID:        newID(),
			Title:     args[0],
			Priority:  createPriority,
			Kind:      record.Kind(createKind),
			Labels:    createLabels,
			Parent:    createParent,
			Body:      createBody,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		rec.Display = rec.ID
		if createDeferUntil != "" {
			t, err := parseWhen(createDeferUntil)
			if err != nil {
				fatal(err)
			}
			rec.DeferUntil = t
			rec.Status = record.StatusDeferred
		}
		rec.Normalize()
		if err := e.store.Put(rec); err != nil {
			fatal(err)
		}
		if _, err := e.commit(ctx, "spool: create "+rec.ID); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Created %s: %s\n", ui.RenderPass("✓"), rec.ID, rec.Title)
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	GroupID: "record",
	Short:   "Update fields of a record",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		rec, err := e.store.Get(args[0])
		if err != nil {
			fatal(err)
		}
		if updateTitle != "" {
			rec.Title = updateTitle
		}
		if updateStatus != "" {
			s := record.Status(updateStatus)
			if !s.IsValid() {
				fatal(fmt.Errorf("invalid status %q", updateStatus))
			}
			rec.Status = s
			if s != record.StatusClosed {
				rec.ClosedAt = nil
				rec.CloseReason = ""
			}
		}
		if cmd.Flags().Changed("priority") {
			rec.Priority = updatePriority
		}
		if updateBody != "" {
			rec.Body = updateBody
		}
		if updateDeferUntil != "" {
			t, err := parseWhen(updateDeferUntil)
			if err != nil {
				fatal(err)
			}
			rec.DeferUntil = t
			rec.Status = record.StatusDeferred
		}
		if cmd.Flags().Changed("tracker") {
			rec.Tracker = updateTracker
		}
		rec.Version++
		rec.UpdatedAt = time.Now().UTC()
		rec.Normalize()
		if err := e.store.Put(rec); err != nil {
			fatal(err)
		}
		if _, err := e.commit(ctx, "spool: update "+rec.ID); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), rec.ID)
	},
}

var closeCmd = &cobra.Command{
	Use:     "close <id>",
	GroupID: "record",
	Short:   "Close a record",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		rec, err := e.store.Get(args[0])
		if err != nil {
			fatal(err)
		}
		now := time.Now().UTC()
		rec.Status = record.StatusClosed
		rec.ClosedAt = &now
		rec.CloseReason = closeReason
		rec.Version++
		rec.UpdatedAt = now
		if err := e.store.Put(rec); err != nil {
			fatal(err)
		}
		if _, err := e.commit(ctx, "spool: close "+rec.ID); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Closed %s\n", ui.RenderPass("✓"), rec.ID)
	},
}

var labelCmd = &cobra.Command{
	Use:     "label <id> <label>...",
	GroupID: "record",
	Short:   "Add or remove labels on a record",
	Args:    cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		rec, err := e.store.Get(args[0])
		if err != nil {
			fatal(err)
		}
		if labelRemove {
			drop := make(map[string]bool, len(args)-1)
			for _, l := range args[1:] {
				drop[l] = true
			}
			kept := rec.Labels[:0]
			for _, l := range rec.Labels {
				if !drop[l] {
					kept = append(kept, l)
				}
			}
			rec.Labels = kept
		} else {
			rec.Labels = append(rec.Labels, args[1:]...)
		}
		rec.Version++
		rec.UpdatedAt = time.Now().UTC()
		rec.Normalize()
		if err := e.store.Put(rec); err != nil {
			fatal(err)
		}
		if _, err := e.commit(ctx, "spool: label "+rec.ID); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Labels on %s: %s\n", ui.RenderPass("✓"), rec.ID, strings.Join(rec.Labels, ", "))
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "record",
	Short:   "List records",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer e.close()

		recs, bad, err := e.store.List()
		if err != nil {
			fatal(err)
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
		for _, r := range recs {
			line := fmt.Sprintf("%-14s p%d %-12s %s", r.ID, r.Priority, r.Status, r.Title)
			if r.Status == record.StatusClosed {
				line = ui.RenderMuted(line)
			}
			fmt.Println(line)
		}
		for _, le := range bad {
			fmt.Printf("%s %v\n", ui.RenderWarn("⚠"), le)
		}
	},
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func init() {
	createCmd.Flags().IntVarP(&createPriority, "priority", "p", 2, "priority 0 (most urgent) to 4")
	createCmd.Flags().StringVarP(&createKind, "kind", "k", "task", "record kind (task, bug, feature, epic, chore)")
	createCmd.Flags().StringSliceVarP(&createLabels, "label", "l", nil, "labels to attach")
	createCmd.Flags().StringVar(&createParent, "parent", "", "parent record id")
	createCmd.Flags().StringVarP(&createBody, "body", "b", "", "free-text description")
	createCmd.Flags().StringVar(&createDeferUntil, "defer-until", "", "defer until a time, e.g. 'next friday'")

	updateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "new status")
	updateCmd.Flags().IntVarP(&updatePriority, "priority", "p", 2, "new priority")
	updateCmd.Flags().StringVarP(&updateBody, "body", "b", "", "new description")
	updateCmd.Flags().StringVar(&updateDeferUntil, "defer-until", "", "defer until a time")
	updateCmd.Flags().StringVar(&updateTracker, "tracker", "", "external tracker link, e.g. gh-42")

	closeCmd.Flags().StringVar(&closeReason, "reason", "", "close reason")

	labelCmd.Flags().BoolVar(&labelRemove, "remove", false, "remove the labels instead of adding")

	rootCmd.AddCommand(createCmd, updateCmd, closeCmd, labelCmd, listCmd)
}
