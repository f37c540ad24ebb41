package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskbeads/tbd/internal/types"
	"github.com/taskbeads/tbd/internal/ui"
)

var (
	updateTitle       string
	updateDescription string
	updateStatus      string
	updatePriority    int
	updateAssignee    string
	updateParent      string
	updateAddLabels   []string
	updateNotes       string
	updateAppendNote  string
	updateDue         string
	updateDefer       string
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields on a record",
	Long: `Update one or more fields on a record. Every update bumps the
record's version and modification time, which is what last-writer-wins
merging keys on.

  tbd update tbd-a4x --status in_progress --assignee alice
  tbd update tbd-a4x --append-note "blocked on infra ticket"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustWorkspace()
		id := a.resolveID(args[0])

		rec, err := a.store.Read(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		changed := false
		if cmd.Flags().Changed("title") {
			rec.Title = updateTitle
			changed = true
		}
		if cmd.Flags().Changed("description") {
			rec.Description = updateDescription
			changed = true
		}
		if cmd.Flags().Changed("status") {
			st, err := statusFromString(updateStatus)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			applyStatus(rec, st)
			changed = true
		}
		if cmd.Flags().Changed("priority") {
			rec.Priority = updatePriority
			changed = true
		}
		if cmd.Flags().Changed("assignee") {
			rec.Assignee = updateAssignee
			changed = true
		}
		if cmd.Flags().Changed("parent") {
			rec.ParentID = a.resolveID(updateParent)
			changed = true
		}
		if len(updateAddLabels) > 0 {
			rec.Labels = mergeLabels(rec.Labels, updateAddLabels)
			changed = true
		}
		if cmd.Flags().Changed("notes") {
			rec.Notes = updateNotes
			changed = true
		}
		if updateAppendNote != "" {
			if rec.Notes != "" {
				rec.Notes += "\n\n"
			}
			rec.Notes += updateAppendNote
			changed = true
		}
		if updateDue != "" {
			t, err := parseDate(updateDue)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			rec.DueDate = &t
			changed = true
		}
		if updateDefer != "" {
			t, err := parseDate(updateDefer)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			rec.DeferredUntil = &t
			applyStatus(rec, types.StatusDeferred)
			changed = true
		}

		if !changed {
			fmt.Printf("%s Nothing to update\n", ui.RenderWarn("⚠"))
			return
		}

		rec.Touch()
		if err := rec.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := a.store.Write(rec); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing record: %v\n", err)
			os.Exit(1)
		}

		if jsonFlag {
			out, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Println(string(out))
			return
		}
		fmt.Printf("%s Updated %s (v%d)\n", ui.RenderPass("✓"), ui.RenderAccent(a.displayID(rec.ID)), rec.Version)
	},
}

// applyStatus transitions the record's status, maintaining closed_at.
func applyStatus(rec *types.Record, st types.Status) {
	rec.Status = st
	if st == types.StatusClosed {
		if rec.ClosedAt == nil {
			now := time.Now().UTC()
			rec.ClosedAt = &now
		}
	} else {
		rec.ClosedAt = nil
		rec.CloseReason = ""
	}
	if st != types.StatusDeferred {
		rec.DeferredUntil = nil
	}
}

// mergeLabels appends new labels, skipping duplicates, keeping order.
func mergeLabels(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, l := range existing {
		seen[l] = true
	}
	for _, l := range added {
		if !seen[l] {
			existing = append(existing, l)
			seen[l] = true
		}
	}
	return existing
}

func init() {
	updateCmd.Flags().StringVar(&updateTitle, "title", "", "New title")
	updateCmd.Flags().StringVarP(&updateDescription, "description", "d", "", "New description")
	updateCmd.Flags().StringVarP(&updateStatus, "status", "s", "", "New status")
	updateCmd.Flags().IntVarP(&updatePriority, "priority", "p", 0, "New priority 0-4")
	updateCmd.Flags().StringVarP(&updateAssignee, "assignee", "a", "", "New assignee")
	updateCmd.Flags().StringVar(&updateParent, "parent", "", "New parent record id")
	updateCmd.Flags().StringSliceVarP(&updateAddLabels, "label", "l", nil, "Add labels")
	updateCmd.Flags().StringVar(&updateNotes, "notes", "", "Replace notes body")
	updateCmd.Flags().StringVar(&updateAppendNote, "append-note", "", "Append a paragraph to the notes body")
	updateCmd.Flags().StringVar(&updateDue, "due", "", "Due date (ISO or natural language)")
	updateCmd.Flags().StringVar(&updateDefer, "defer", "", "Defer until date; sets status to deferred")
	rootCmd.AddCommand(updateCmd)
}
