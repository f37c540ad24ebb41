package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskbeads/tbd/internal/types"
	"github.com/taskbeads/tbd/internal/ui"
)

var closeReason string

var closeCmd = &cobra.Command{
	Use:   "close <id>...",
	Short: "Close one or more records",
	Long: `Close records. Closing is a status transition: the record file
stays in place and keeps syncing, so other machines see the closure
instead of a vanished file.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustWorkspace()

		for _, arg := range args {
			id := a.resolveID(arg)
			rec, err := a.store.Read(id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if rec.Status == types.StatusClosed {
				fmt.Printf("%s %s is already closed\n", ui.RenderWarn("⚠"), a.displayID(id))
				continue
			}

			applyStatus(rec, types.StatusClosed)
			rec.CloseReason = closeReason
			rec.Touch()
			if err := a.store.Write(rec); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing record: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Closed %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(a.displayID(id)), rec.Title)
		}
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "Reopen a closed record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustWorkspace()
		id := a.resolveID(args[0])

		rec, err := a.store.Read(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if rec.Status != types.StatusClosed {
			fmt.Printf("%s %s is not closed\n", ui.RenderWarn("⚠"), a.displayID(id))
			return
		}

		applyStatus(rec, types.StatusOpen)
		rec.Touch()
		if err := a.store.Write(rec); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing record: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Reopened %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(a.displayID(id)), rec.Title)
	},
}

func init() {
	closeCmd.Flags().StringVarP(&closeReason, "reason", "r", "", "Why the record is being closed")
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(reopenCmd)
}
