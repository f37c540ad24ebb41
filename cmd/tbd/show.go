package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskbeads/tbd/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one record in full",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustWorkspace()
		id := a.resolveID(args[0])

		rec, err := a.store.Read(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonFlag {
			out, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Println(string(out))
			return
		}

		fmt.Printf("%s %s\n", ui.RenderAccent(a.displayID(rec.ID)), rec.Title)
		fmt.Printf("%s\n\n", ui.RenderDim(rec.ID))
		fmt.Printf("Kind:     %s\n", rec.Kind)
		fmt.Printf("Status:   %s\n", rec.Status)
		fmt.Printf("Priority: P%d\n", rec.Priority)
		if rec.Assignee != "" {
			fmt.Printf("Assignee: %s\n", rec.Assignee)
		}
		if rec.ParentID != "" {
			fmt.Printf("Parent:   %s\n", a.displayID(rec.ParentID))
		}
		if len(rec.Labels) > 0 {
			fmt.Printf("Labels:   %v\n", rec.Labels)
		}
		if rec.DueDate != nil {
			fmt.Printf("Due:      %s\n", rec.DueDate.Format("2006-01-02"))
		}
		if rec.DeferredUntil != nil {
			fmt.Printf("Deferred: until %s\n", rec.DeferredUntil.Format("2006-01-02"))
		}
		fmt.Printf("Created:  %s", rec.CreatedAt.Format("2006-01-02 15:04"))
		if rec.CreatedBy != "" {
			fmt.Printf(" by %s", rec.CreatedBy)
		}
		fmt.Println()
		fmt.Printf("Updated:  %s (v%d)\n", rec.UpdatedAt.Format("2006-01-02 15:04"), rec.Version)
		if rec.ClosedAt != nil {
			fmt.Printf("Closed:   %s", rec.ClosedAt.Format("2006-01-02 15:04"))
			if rec.CloseReason != "" {
				fmt.Printf(" (%s)", rec.CloseReason)
			}
			fmt.Println()
		}

		if len(rec.Dependencies) > 0 {
			fmt.Println("\nDependencies:")
			for _, dep := range rec.Dependencies {
				fmt.Printf("  %s %s\n", dep.Type, a.displayID(dep.On))
			}
		}
		if rec.Description != "" {
			fmt.Printf("\n%s\n", rec.Description)
		}
		if rec.Notes != "" {
			fmt.Printf("\n%s\n%s\n", ui.RenderDim("--- notes ---"), rec.Notes)
		}
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
