package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-FPIndex/pkg/client"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// NewIndexCmd creates the index command and its maintenance subcommands.
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain the fingerprint index",
	}
	cmd.AddCommand(
		newIndexAddCmd(),
		newIndexDeleteCmd(),
		newIndexRebuildCmd(),
		newIndexStatsCmd(),
	)
	return cmd
}

func newIndexAddCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Index the molecules of a file",
		Long: "Index every molecule of a file. Formats: jsonl (one {\"id\",\"structure\"} object\n" +
			"per line), json (an array of such objects) and smi (\"<smiles> <id>\" per line).\n" +
			"Use - to read stdin. Molecules that cannot be parsed are skipped and listed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			molecules, err := loadMolecules(args[0], format, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(molecules) == 0 {
				return errors.InvalidParam("the molecule file is empty")
			}
			return withBackend(cmd, func(ctx context.Context, cc *CLIContext, b Backend) error {
				res, err := b.IndexBatch(ctx, molecules)
				if res != nil {
					if perr := PrintResult(cmd, res, func(w io.Writer) { printBatchResult(w, res, cc.Verbose) }); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "file format: jsonl|json|smi (default: from extension)")
	return cmd
}

func printBatchResult(w io.Writer, res *client.BatchResult, verbose bool) {
	PrintSuccess(w, "indexed %d molecules in %d of %d chunks (%s)",
		res.Indexed, res.ChunksCommitted, res.ChunksTotal, res.Duration)
	if res.ChunksSkipped > 0 {
		fmt.Fprintf(w, "%d chunks had nothing to index\n", res.ChunksSkipped)
	}
	if len(res.Skipped) == 0 {
		return
	}
	fmt.Fprintln(w, color.YellowString("Skipped %d molecules", len(res.Skipped)))
	if !verbose && len(res.Skipped) > 10 {
		fmt.Fprintln(w, "(showing the first 10; use --verbose for all)")
		res.Skipped = res.Skipped[:10]
	}
	rows := make([][]string, len(res.Skipped))
	for i, s := range res.Skipped {
		rows[i] = []string{s.ID, truncateString(s.Reason, 60)}
	}
	renderTable(w, []string{"ID", "Reason"}, rows)
}

func newIndexDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Remove molecules from the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, cc *CLIContext, b Backend) error {
				if err := b.Delete(ctx, args...); err != nil {
					return err
				}
				return PrintResult(cmd, map[string]interface{}{"deleted": args}, func(w io.Writer) {
					PrintSuccess(w, "deleted %d molecules", len(args))
				})
			})
		},
	}
}

func newIndexRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Re-index every molecule of the configured source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, cc *CLIContext, b Backend) error {
				res, err := b.Rebuild(ctx)
				if err != nil {
					return err
				}
				return PrintResult(cmd, res, func(w io.Writer) {
					PrintSuccess(w, "rebuilt from %d pages: %d indexed, %d skipped (%s)",
						res.Pages, res.Indexed, res.Skipped, res.Duration)
				})
			})
		},
	}
}

func newIndexStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Describe the live index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, cc *CLIContext, b Backend) error {
				st, err := b.Stats(ctx)
				if err != nil {
					return err
				}
				return PrintResult(cmd, st, func(w io.Writer) {
					renderTable(w, []string{"Field", "Value"}, [][]string{
						{"Backend", st.Backend},
						{"Settings", st.Settings},
						{"Documents", strconv.Itoa(st.Docs)},
						{"Segments", strconv.Itoa(st.Segments)},
						{"Generation", strconv.FormatUint(st.Generation, 10)},
						{"Deleted", strconv.Itoa(st.Deleted)},
					})
				})
			})
		},
	}
}

//Personal.AI order the ending
