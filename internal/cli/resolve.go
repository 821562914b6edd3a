package cli

import (
	"fmt"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/ngw-sync-kit/resolution"
)

// ResolveFlags holds resolve command flags
type ResolveFlags struct {
	Prefer string
	DryRun bool
}

const progressTemplate = `{{string . "prefix"}} {{counters . }} {{bar . }} {{percent . }}`

// NewResolveCommand creates the resolve command
func NewResolveCommand() *cobra.Command {
	var flags ResolveFlags

	cmd := &cobra.Command{
		Use:   "resolve <container>",
		Short: "Resolve every conflict in favor of one side and commit",
		Long: `Resolve all conflicts of a container by taking either the local or the
remote version of each feature, then apply the remote changes and record
the outcome. With --dry-run nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Prefer, "prefer", "", "side that wins every conflict: local, remote (required)")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "show the resolutions without committing")
	cmd.MarkFlagRequired("prefer")

	return cmd
}

func runResolve(cmd *cobra.Command, args []string, flags ResolveFlags) error {
	side, err := resolution.ParseResolutionType(flags.Prefer)
	if err != nil {
		return err
	}
	if side != resolution.Local && side != resolution.Remote {
		return fmt.Errorf("--prefer must be local or remote, got %q", flags.Prefer)
	}

	ctx := commandContext(cmd)
	w, err := openWorkspace(ctx, cmd, args[0])
	if err != nil {
		return err
	}
	defer w.Close()

	out := cmd.OutOrStdout()
	model := w.session.Model()

	var bar *pb.ProgressBar
	if !globalFlags.Quiet && model.Len() > 0 {
		bar = pb.ProgressBarTemplate(progressTemplate).New(model.Len())
		bar.SetWriter(cmd.ErrOrStderr())
		bar.Set("prefix", "resolving")
		bar.Start()
	}

	for i := 0; i < model.Len(); i++ {
		if side == resolution.Local {
			err = model.ResolveAsLocal(i)
		} else {
			err = model.ResolveAsRemote(i)
		}
		if err != nil {
			if bar != nil {
				bar.Finish()
			}
			return err
		}
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if flags.DryRun {
		for _, item := range model.Items() {
			fmt.Fprintf(out, "%d %s -> %s\n", item.FID(), item.Shape(), item.Type)
		}
		fmt.Fprintf(out, "Dry run: %d conflicts would be resolved as %s\n", model.Len(), side)
		return nil
	}

	if err := w.session.Commit(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Resolved %d conflicts as %s; container at version %d\n",
		model.Len(), side, w.session.Result().Target)
	return nil
}
