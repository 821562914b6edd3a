// Package cli implements the ngwsync command line: inspect the remote delta
// of a container, list its conflicts and resolve them headlessly.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/ngw-sync-kit/config"
	"github.com/c0deZ3R0/ngw-sync-kit/delta"
	"github.com/c0deZ3R0/ngw-sync-kit/logging"
	"github.com/c0deZ3R0/ngw-sync-kit/storage/sqlite"
	"github.com/c0deZ3R0/ngw-sync-kit/synckit"
)

// NewRootCommand assembles the ngwsync command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ngwsync",
		Short: "Synchronize detached NextGIS Web layer containers",
		Long: `ngwsync downloads the changes made on a NextGIS Web layer since a
detached container was last synchronized, detects conflicts with the local
edits and resolves them.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(NewFetchCommand())
	rootCmd.AddCommand(NewConflictsCommand())
	rootCmd.AddCommand(NewResolveCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

func loadConfig() (*config.Config, error) {
	if globalFlags.ConfigFile != "" {
		return config.LoadFromFile(globalFlags.ConfigFile)
	}
	return config.LoadDefault()
}

func newLogger(cfg *config.Config, out io.Writer) *logging.Logger {
	lc := cfg.LoggingConfig()
	switch {
	case globalFlags.Verbose:
		lc.Level = "debug"
	case globalFlags.Quiet:
		lc.Level = "error"
	}
	lc.Output = out
	return logging.NewLogger(lc)
}

// workspace is an open container with a running session.
type workspace struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *sqlite.Store
	session *synckit.Session
	stats   *synckit.StatsCollector
	errOut  io.Writer
}

func (w *workspace) Close() {
	if w.session != nil {
		w.session.Close()
	}
	w.store.Close()

	if globalFlags.Stats {
		enc := json.NewEncoder(w.errOut)
		enc.SetIndent("", "  ")
		enc.Encode(w.stats.Snapshot())
	}
}

// openWorkspace opens the container at path and starts a session against
// the connection it is bound to.
func openWorkspace(ctx context.Context, cmd *cobra.Command, path string) (*workspace, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("container %s does not exist", path)
		}
		return nil, fmt.Errorf("failed to access container: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	storeConfig := sqlite.DefaultConfig(path)
	storeConfig.Logger = logger.WithComponent("storage/sqlite")
	store, err := sqlite.New(storeConfig)
	if err != nil {
		return nil, err
	}
	w := &workspace{
		cfg:    cfg,
		logger: logger,
		store:  store,
		stats:  synckit.NewStatsCollector(),
		errOut: cmd.ErrOrStderr(),
	}

	meta, err := store.Metadata(ctx)
	if err != nil {
		w.Close()
		return nil, err
	}

	client, err := cfg.Client(meta.ConnectionID, logger.WithComponent("transport"))
	if err != nil {
		w.Close()
		return nil, err
	}

	var hooks delta.Hooks
	if !globalFlags.Quiet {
		out := cmd.ErrOrStderr()
		hooks.OnPage = func(_ context.Context, page int, changes int) {
			fmt.Fprintf(out, "page %d: %d changes\n", page, changes)
		}
	}

	mgr, err := synckit.NewManager(
		synckit.WithGetter(client),
		synckit.WithLogger(logger.WithComponent("synckit")),
		synckit.WithHooks(hooks),
		synckit.WithMetrics(w.stats),
		synckit.WithMaxPages(cfg.Sync.MaxPages),
	)
	if err != nil {
		w.Close()
		return nil, err
	}

	if w.session, err = mgr.Open(ctx, store); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
