package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskbeads/tbd/internal/config"
	"github.com/taskbeads/tbd/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a tbd workspace in the current repository",
	Long: `Initialize a .tbd workspace at the repository root.

Creates:
  .tbd/records/     record files, one per issue
  .tbd/config.yml   project configuration
  .tbd/.gitignore   keeps local-only files (log, lock, attic) out of git`,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		root := cwd
		if out, err := exec.Command("git", "-C", cwd, "rev-parse", "--show-toplevel").Output(); err == nil {
			root = strings.TrimSpace(string(out))
		}

		dir := filepath.Join(root, config.DirName)
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("%s Workspace already exists at %s\n", ui.RenderWarn("⚠"), dir)
			return
		}

		if err := os.MkdirAll(filepath.Join(dir, "records"), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating workspace: %v\n", err)
			os.Exit(1)
		}

		configBody := fmt.Sprintf(`sync:
  branch: %s
  remote: %s
  max_retries: %d
user:
  name: ""
`, config.DefaultSyncBranch, config.DefaultSyncRemote, config.DefaultMaxRetries)
		if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte(configBody), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			os.Exit(1)
		}

		// The attic, log, and lock never leave this machine.
		ignoreBody := "tbd.log*\nsync.lock\nattic/\n"
		if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(ignoreBody), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing .gitignore: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Initialized tbd workspace at %s\n", ui.RenderPass("✓"), dir)
		fmt.Printf("   Sync branch: %s\n", config.DefaultSyncBranch)
	},
}

// gitUserName reads user.name from git config, empty if unset.
func gitUserName(dir string) string {
	out, err := exec.Command("git", "-C", dir, "config", "user.name").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func init() {
	rootCmd.AddCommand(initCmd)
}
