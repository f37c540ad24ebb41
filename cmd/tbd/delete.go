package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskbeads/tbd/internal/ui"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Permanently delete a record",
	Long: `Delete a record's file. Prefer 'tbd close': a deletion only
propagates to machines that have not touched the record since; anyone
with newer local edits keeps their copy on the next sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustWorkspace()
		id := a.resolveID(args[0])

		if !deleteForce {
			rec, err := a.store.Read(id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Refusing to delete %q (%s) without --force\n", rec.Title, a.displayID(id))
			os.Exit(1)
		}

		if err := a.store.Delete(id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), ui.RenderAccent(a.displayID(id)))
	},
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Actually delete")
	rootCmd.AddCommand(deleteCmd)
}
