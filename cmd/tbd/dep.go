package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskbeads/tbd/internal/types"
	"github.com/taskbeads/tbd/internal/ui"
)

var depType string

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependencies between records",
}

var depAddCmd = &cobra.Command{
	Use:   "add <from> <to>",
	Short: "Add a dependency from one record to another",
	Long: `Add a typed dependency edge. Dependency lists merge by union, so
edges added on different machines all survive a sync.

  tbd dep add tbd-a4x tbd-b7k --type blocks`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustWorkspace()
		from := a.resolveID(args[0])
		to := a.resolveID(args[1])

		if from == to {
			fmt.Fprintf(os.Stderr, "Error: a record cannot depend on itself\n")
			os.Exit(1)
		}
		if _, err := a.store.Read(to); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		rec, err := a.store.Read(from)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		dep := types.Dependency{On: to, Type: depType}
		for _, existing := range rec.Dependencies {
			if existing == dep {
				fmt.Printf("%s Dependency already exists\n", ui.RenderWarn("⚠"))
				return
			}
		}

		rec.Dependencies = append(rec.Dependencies, dep)
		rec.Touch()
		if err := a.store.Write(rec); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing record: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s %s %s %s\n", ui.RenderPass("✓"),
			ui.RenderAccent(a.displayID(from)), depType, ui.RenderAccent(a.displayID(to)))
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <from> <to>",
	Short: "Remove a dependency between two records",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustWorkspace()
		from := a.resolveID(args[0])
		to := a.resolveID(args[1])

		rec, err := a.store.Read(from)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		kept := rec.Dependencies[:0]
		removed := false
		for _, dep := range rec.Dependencies {
			if dep.On == to {
				removed = true
				continue
			}
			kept = append(kept, dep)
		}
		if !removed {
			fmt.Printf("%s No such dependency\n", ui.RenderWarn("⚠"))
			return
		}

		rec.Dependencies = kept
		rec.Touch()
		if err := a.store.Write(rec); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing record: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Removed dependency %s -> %s\n", ui.RenderPass("✓"),
			ui.RenderAccent(a.displayID(from)), ui.RenderAccent(a.displayID(to)))
	},
}

func init() {
	depAddCmd.Flags().StringVarP(&depType, "type", "t", "blocks", "Dependency type (blocks, related, discovered-from)")
	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRemoveCmd)
	rootCmd.AddCommand(depCmd)
}
