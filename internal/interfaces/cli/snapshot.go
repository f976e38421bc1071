package cli

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-FPIndex/pkg/client"
)

// NewSnapshotCmd creates the snapshot command.
func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Archive the local index to object storage and restore it",
	}

	save := &cobra.Command{
		Use:   "save [name]",
		Short: "Archive the index; the name defaults to one derived from the time and generation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd, args, Backend.Snapshot)
		},
	}
	restore := &cobra.Command{
		Use:   "restore [name]",
		Short: "Replace the index with a snapshot; the newest one without a name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd, args, Backend.Restore)
		},
	}
	cmd.AddCommand(save, restore)
	return cmd
}

func runSnapshot(cmd *cobra.Command, args []string, op func(Backend, context.Context, string) (*client.Snapshot, error)) error {
	var name string
	if len(args) == 1 {
		name = args[0]
	}
	return withBackend(cmd, func(ctx context.Context, cc *CLIContext, b Backend) error {
		snap, err := op(b, ctx, name)
		if err != nil {
			return err
		}
		return PrintResult(cmd, snap, func(w io.Writer) {
			renderTable(w, []string{"Field", "Value"}, [][]string{
				{"Name", snap.Name},
				{"Key", snap.Key},
				{"Size", strconv.FormatInt(snap.Size, 10)},
				{"Generation", strconv.FormatUint(snap.Generation, 10)},
				{"Documents", strconv.Itoa(snap.Docs)},
				{"Created", snap.CreatedAt.Format(time.RFC3339)},
			})
		})
	})
}

//Personal.AI order the ending
