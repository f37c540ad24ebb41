package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/taskbeads/tbd/internal/gitx"
	"github.com/taskbeads/tbd/internal/merge"
	"github.com/taskbeads/tbd/internal/syncer"
	"github.com/taskbeads/tbd/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize records with the remote",
	Long: `Push local records to the sync branch on the remote, merging in
remote changes when both sides moved.

The outcome is always explicit: success means the remote provably has your
commits. A failed push (auth, network, rejection after retries) is reported
as a failure, never as "already in sync".`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustWorkspace()

		repo, err := gitx.Open(a.cfg.Root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if !repo.HasRemote(ctx, a.cfg.SyncRemote) {
			fmt.Fprintf(os.Stderr, "Error: remote %q is not configured\n", a.cfg.SyncRemote)
			os.Exit(1)
		}

		merger := merge.New(a.archiver)
		coordinator := syncer.New(repo, merger, a.cfg, a.log)
		result := coordinator.Sync(ctx)

		if jsonFlag {
			out, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(out))
			if !result.Success {
				os.Exit(1)
			}
			return
		}

		if !result.Success {
			fmt.Printf("%s Sync failed after %d attempt(s): %s\n",
				ui.RenderFail("✗"), result.Attempts, result.Error)
			os.Exit(1)
		}

		sent := result.Summary.Sent
		received := result.Summary.Received
		fmt.Printf("%s Synced in %d attempt(s)\n", ui.RenderPass("✓"), result.Attempts)
		if sent.Total() == 0 && received.Total() == 0 {
			fmt.Printf("   %s\n", ui.RenderDim("Nothing to send or receive."))
		}
		if sent.Total() > 0 {
			fmt.Printf("   Sent:     %d new, %d updated, %d deleted\n", sent.New, sent.Updated, sent.Deleted)
		}
		if received.Total() > 0 {
			fmt.Printf("   Received: %d new, %d updated, %d deleted\n", received.New, received.Updated, received.Deleted)
		}
		if len(result.Conflicts) > 0 {
			fmt.Printf("   %s %d conflicting values archived (see 'tbd attic')\n",
				ui.RenderWarn("⚠"), len(result.Conflicts))
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
