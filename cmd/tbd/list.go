package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskbeads/tbd/internal/types"
	"github.com/taskbeads/tbd/internal/ui"
)

var (
	listStatus   string
	listKind     string
	listAssignee string
	listLabel    string
	listAll      bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List records",
	Long: `List records, open by default. Filters combine with AND.

  tbd list --status blocked
  tbd list --assignee alice --label backend
  tbd list --all --json`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustWorkspace()

		records, err := a.store.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var filtered []*types.Record
		for _, rec := range records {
			if !listAll && listStatus == "" && rec.Status == types.StatusClosed {
				continue
			}
			if listStatus != "" && string(rec.Status) != listStatus {
				continue
			}
			if listKind != "" && rec.Kind != listKind {
				continue
			}
			if listAssignee != "" && rec.Assignee != listAssignee {
				continue
			}
			if listLabel != "" && !hasLabel(rec, listLabel) {
				continue
			}
			filtered = append(filtered, rec)
		}

		// Priority first, then recency.
		sort.SliceStable(filtered, func(i, j int) bool {
			if filtered[i].Priority != filtered[j].Priority {
				return filtered[i].Priority < filtered[j].Priority
			}
			return filtered[i].UpdatedAt.After(filtered[j].UpdatedAt)
		})

		if jsonFlag {
			out, _ := json.MarshalIndent(filtered, "", "  ")
			fmt.Println(string(out))
			return
		}

		if len(filtered) == 0 {
			fmt.Println(ui.RenderDim("No matching records."))
			return
		}
		for _, rec := range filtered {
			fmt.Println(formatLine(a, rec))
		}
		fmt.Printf("\n%s\n", ui.RenderDim(fmt.Sprintf("%d records", len(filtered))))
	},
}

func hasLabel(rec *types.Record, label string) bool {
	for _, l := range rec.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func formatLine(a *app, rec *types.Record) string {
	id := fmt.Sprintf("%-10s", a.displayID(rec.ID))
	pri := fmt.Sprintf("P%d", rec.Priority)
	status := string(rec.Status)
	switch rec.Status {
	case types.StatusClosed:
		status = ui.RenderDim(status)
	case types.StatusBlocked:
		status = ui.RenderFail(status)
	case types.StatusInProgress:
		status = ui.RenderPass(status)
	}

	line := fmt.Sprintf("%s %s %-12s %s", ui.RenderAccent(id), pri, status, rec.Title)
	if rec.DueDate != nil && rec.Status != types.StatusClosed {
		due := rec.DueDate.Format("2006-01-02")
		if rec.DueDate.Before(time.Now()) {
			due = ui.RenderFail("overdue " + due)
		}
		line += " " + ui.RenderDim("["+due+"]")
	}
	return line
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Filter by status")
	listCmd.Flags().StringVarP(&listKind, "kind", "k", "", "Filter by kind")
	listCmd.Flags().StringVarP(&listAssignee, "assignee", "a", "", "Filter by assignee")
	listCmd.Flags().StringVarP(&listLabel, "label", "l", "", "Filter by label")
	listCmd.Flags().BoolVar(&listAll, "all", false, "Include closed records")
	rootCmd.AddCommand(listCmd)
}
