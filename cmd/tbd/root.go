package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/taskbeads/tbd/internal/attic"
	"github.com/taskbeads/tbd/internal/config"
	"github.com/taskbeads/tbd/internal/idmap"
	"github.com/taskbeads/tbd/internal/logx"
	"github.com/taskbeads/tbd/internal/store"
	"github.com/taskbeads/tbd/internal/types"
)

var (
	verboseFlag bool
	jsonFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "tbd",
	Short: "Git-native issue tracker",
	Long: `tbd is a serverless issue tracker that stores records as files and
synchronizes them through a dedicated git branch. No server, no database;
the git remote you already have is the only shared infrastructure.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Mirror log output to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable JSON output")
}

// app bundles the per-invocation handles every command needs.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *store.Store
	ids      *idmap.Store
	archiver *attic.Archiver
}

// mustWorkspace locates the enclosing .tbd workspace and opens it, exiting
// with a hint when there is none.
func mustWorkspace() *app {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	root := config.FindRoot(cwd)
	if root == "" {
		fmt.Fprintf(os.Stderr, "Error: no %s workspace found (run 'tbd init' first)\n", config.DirName)
		os.Exit(1)
	}
	return openWorkspace(root)
}

func openWorkspace(root string) *app {
	cfg, err := config.Load(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := logx.New(cfg.LogPath(), verboseFlag)

	ids, err := idmap.Load(cfg.IdmapPath(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading id mappings: %v\n", err)
		os.Exit(1)
	}

	return &app{
		cfg:      cfg,
		log:      logger,
		store:    store.New(cfg.RecordsDir(), logger),
		ids:      ids,
		archiver: attic.New(cfg.AtticPath()),
	}
}

// resolveID maps a user-supplied id (short or internal) to the internal id.
func (a *app) resolveID(arg string) string {
	id, err := a.ids.Resolve(arg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return id
}

// displayID prefers the short id when one has been assigned.
func (a *app) displayID(internal string) string {
	if short, ok := a.ids.ShortFor(internal); ok {
		return short
	}
	return internal
}

// parseDate accepts natural language ("next friday", "in 2 weeks") as well
// as ISO dates.
func parseDate(text string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return t.UTC(), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, time.Now())
	if err == nil && r != nil {
		return r.Time.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("could not parse date %q", text)
}

// author returns the created_by value: explicit config, then git identity.
func (a *app) author() string {
	if a.cfg.UserName != "" {
		return a.cfg.UserName
	}
	if name := gitUserName(a.cfg.Root); name != "" {
		return name
	}
	return os.Getenv("USER")
}

func statusFromString(s string) (types.Status, error) {
	st := types.Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q (valid: open, in_progress, blocked, deferred, closed)", s)
	}
	return st, nil
}
