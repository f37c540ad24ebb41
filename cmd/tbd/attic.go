package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskbeads/tbd/internal/attic"
	"github.com/taskbeads/tbd/internal/ui"
)

var atticCmd = &cobra.Command{
	Use:   "attic [record-id]",
	Short: "Show archived conflict losers",
	Long: `Show values that lost a merge conflict. Every value a sync had to
discard is appended here with the winner it lost to, so nothing is ever
silently destroyed. With a record id, only that record's entries show.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustWorkspace()

		entries, err := a.archiver.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading attic: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 1 {
			id := a.resolveID(args[0])
			var filtered []attic.Entry
			for _, e := range entries {
				if e.RecordID == id {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}

		if jsonFlag {
			out, _ := json.MarshalIndent(entries, "", "  ")
			fmt.Println(string(out))
			return
		}

		if len(entries) == 0 {
			fmt.Println(ui.RenderDim("Attic is empty."))
			return
		}
		for _, e := range entries {
			field := e.Field
			if field == "" {
				field = "(whole record)"
			}
			fmt.Printf("%s %s %s %s\n",
				ui.RenderDim(e.Timestamp.Format("2006-01-02 15:04:05")),
				ui.RenderAccent(a.displayID(e.RecordID)),
				field,
				ui.RenderDim("resolution: "+e.Resolution))
			lost, _ := json.Marshal(e.LostValue)
			fmt.Printf("   lost: %s\n", string(lost))
		}
		fmt.Printf("\n%s\n", ui.RenderDim(fmt.Sprintf("%d entries", len(entries))))
	},
}

func init() {
	rootCmd.AddCommand(atticCmd)
}
