package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/client"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// NewFingerprintCmd creates the fingerprint command.
func NewFingerprintCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "fingerprint <smiles>",
		Short: "Compute the fingerprint of a molecule",
		Long: "Compute the structure or query fingerprint of a molecule and print its set\n" +
			"bits together with the encoded query terms.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, cc *CLIContext, b Backend) error {
				res, err := b.Fingerprint(ctx, args[0], kind)
				if err != nil {
					return err
				}
				return PrintResult(cmd, res, func(w io.Writer) { printFingerprint(w, res, cc.Verbose) })
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", client.KindStructure, "fingerprint kind: structure|query")
	return cmd
}

func printFingerprint(w io.Writer, res *client.FingerprintResult, verbose bool) {
	renderTable(w, []string{"Field", "Value"}, [][]string{
		{"Kind", res.Kind},
		{"Settings", res.Settings},
		{"Canonical", res.Canonical},
		{"Bits set", fmt.Sprintf("%d / %d", len(res.Positions), res.NumBits)},
		{"Query terms", strconv.Itoa(res.Query.Count)},
	})
	if verbose {
		fmt.Fprintf(w, "\nTokens: %s\n", res.Query.Tokens)
	}
}

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	req := &client.SearchRequest{}
	cmd := &cobra.Command{
		Use:   "search <smiles>",
		Short: "Screen the index for molecules that may contain a substructure",
		Long: "Run a substructure screen: every indexed molecule whose fingerprint contains\n" +
			"all bits of the query fingerprint is a candidate. --verify re-checks the\n" +
			"candidates against the molecule source.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = args[0]
			if req.MaxHits < 0 {
				return errors.InvalidParam("max-hits must not be negative")
			}
			return withBackend(cmd, func(ctx context.Context, cc *CLIContext, b Backend) error {
				cc.Logger.Debug("starting substructure screen",
					logging.String("query", req.Query),
					logging.Int("max_hits", req.MaxHits),
					logging.Bool("verify", req.Verify))

				res, err := b.Search(ctx, req)
				if err != nil {
					return err
				}
				return PrintResult(cmd, res, func(w io.Writer) { printSearchResult(w, req.Query, res) })
			})
		},
	}
	cmd.Flags().IntVarP(&req.MaxHits, "max-hits", "n", 0, "maximum number of hits (0 uses the server default)")
	cmd.Flags().BoolVar(&req.Verify, "verify", false, "verify candidates against the molecule source")
	return cmd
}

func printSearchResult(w io.Writer, query string, res *client.SearchResult) {
	if len(res.Hits) == 0 {
		fmt.Fprintf(w, "No candidates contain %s.\n", query)
		return
	}

	rows := make([][]string, len(res.Hits))
	for i, h := range res.Hits {
		rows[i] = []string{strconv.Itoa(i + 1), truncateString(h.ID, 40), fmt.Sprintf("%.2f", h.Score)}
	}
	renderTable(w, []string{"Rank", "ID", "Score"}, rows)

	summary := fmt.Sprintf("%d of %d candidates", len(res.Hits), res.TotalHits)
	if res.TotalHits > len(res.Hits) {
		summary = color.YellowString(summary + " (truncated)")
	}
	var notes []string
	if res.Verified {
		notes = append(notes, color.GreenString("verified"))
	}
	notes = append(notes, fmt.Sprintf("%d query terms", res.Query.Count))
	fmt.Fprintf(w, "\n%s, %s\n", summary, strings.Join(notes, ", "))
}

//Personal.AI order the ending
