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
	createKind        string
	createPriority    int
	createDescription string
	createNotes       string
	createAssignee    string
	createParent      string
	createLabels      []string
	createDue         string
	createDefer       string
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new record",
	Long: `Create a new record with a permanent internal id and a short id
for everyday use.

Due and defer dates accept ISO dates or natural language:
  tbd create "Fix login flow" --due "next friday"
  tbd create "Upgrade runners" --defer "in 2 weeks" --kind chore`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustWorkspace()

		id, err := types.NewInternalID()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		now := time.Now().UTC()
		rec := &types.Record{
			ID:          id,
			Version:     1,
			Kind:        createKind,
			Title:       args[0],
			Description: createDescription,
			Notes:       createNotes,
			Status:      types.StatusOpen,
			Priority:    createPriority,
			Assignee:    createAssignee,
			Labels:      createLabels,
			CreatedAt:   now,
			CreatedBy:   a.author(),
			UpdatedAt:   now,
		}

		if createParent != "" {
			rec.ParentID = a.resolveID(createParent)
		}
		if createDue != "" {
			t, err := parseDate(createDue)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			rec.DueDate = &t
		}
		if createDefer != "" {
			t, err := parseDate(createDefer)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			rec.DeferredUntil = &t
			rec.Status = types.StatusDeferred
		}

		if err := rec.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := a.store.Write(rec); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing record: %v\n", err)
			os.Exit(1)
		}

		short, err := a.ids.Assign(rec.ID)
		if err != nil {
			// The record exists; a missing short id is recoverable.
			a.log.Warn("failed to assign short id", "id", rec.ID, "error", err)
			short = rec.ID
		}

		if jsonFlag {
			out, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Println(string(out))
			return
		}
		fmt.Printf("%s Created %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(short), rec.Title)
		fmt.Printf("   %s\n", ui.RenderDim(rec.ID))
	},
}

func init() {
	createCmd.Flags().StringVarP(&createKind, "kind", "k", "task", "Record kind (bug, feature, task, epic, chore)")
	createCmd.Flags().IntVarP(&createPriority, "priority", "p", 2, "Priority 0-4 (0=critical)")
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "Longer description")
	createCmd.Flags().StringVar(&createNotes, "notes", "", "Free-text notes (stored as the file body)")
	createCmd.Flags().StringVarP(&createAssignee, "assignee", "a", "", "Assignee")
	createCmd.Flags().StringVar(&createParent, "parent", "", "Parent record id")
	createCmd.Flags().StringSliceVarP(&createLabels, "labels", "l", nil, "Labels (repeatable or comma-separated)")
	createCmd.Flags().StringVar(&createDue, "due", "", "Due date (ISO or natural language)")
	createCmd.Flags().StringVar(&createDefer, "defer", "", "Defer until date; sets status to deferred")
	rootCmd.AddCommand(createCmd)
}
