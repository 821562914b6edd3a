package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
)

// NewFetchCommand creates the fetch command
func NewFetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <container>",
		Short: "Show the remote changes waiting for a container",
		Long: `Download the changes made on the server since the last synchronization
and print a summary. The container is not modified.`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	w, err := openWorkspace(commandContext(cmd), cmd, args[0])
	if err != nil {
		return err
	}
	defer w.Close()

	s := w.session
	result := s.Result()
	out := cmd.OutOrStdout()

	counts := make(map[actions.ActionType]int)
	for _, a := range result.Delta {
		counts[a.Type()]++
	}

	fmt.Fprintf(out, "Layer %s\n", s.Metadata())
	if result.Empty() {
		fmt.Fprintln(out, "Up to date")
	} else {
		fmt.Fprintf(out, "Remote version: %d (%s)\n", result.Target, result.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(out, "Changes: %d in %d pages (create %d, update %d, delete %d)\n",
			len(result.Delta), result.Pages,
			counts[actions.ActionCreate], counts[actions.ActionDataChange], counts[actions.ActionDelete])
	}
	fmt.Fprintf(out, "Pending local edits: %d\n", len(s.PendingActions()))
	fmt.Fprintf(out, "Conflicts: %d\n", len(s.Conflicts()))
	return nil
}
