package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// NewConflictsCommand creates the conflicts command
func NewConflictsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts <container>",
		Short: "List conflicts between local edits and remote changes",
		Args:  cobra.ExactArgs(1),
		RunE:  runConflicts,
	}
}

func runConflicts(cmd *cobra.Command, args []string) error {
	w, err := openWorkspace(commandContext(cmd), cmd, args[0])
	if err != nil {
		return err
	}
	defer w.Close()

	out := cmd.OutOrStdout()
	list := w.session.Conflicts()
	if len(list) == 0 {
		fmt.Fprintln(out, "No conflicts")
		return nil
	}

	fields := w.session.Metadata().Fields
	fmt.Fprintf(out, "%-10s %-14s %-8s %s\n", "FID", "SHAPE", "GEOMETRY", "FIELDS")
	for _, c := range list {
		geom := "-"
		if c.HasGeometryConflict() {
			geom = "yes"
		}
		fmt.Fprintf(out, "%-10d %-14s %-8s %s\n", c.FID(), c.Shape(), geom, fieldNames(fields, c.ConflictingFields()))
	}
	fmt.Fprintf(out, "\n%d conflicts\n", len(list))
	return nil
}

func fieldNames(fields schema.Fields, ids []schema.FieldID) string {
	if len(ids) == 0 {
		return "-"
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		if f, ok := fields.ByID(id); ok {
			names[i] = f.Keyname
		} else {
			names[i] = fmt.Sprintf("#%d", id)
		}
	}
	return strings.Join(names, ", ")
}
