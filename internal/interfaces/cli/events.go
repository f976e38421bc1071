package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-FPIndex/internal/config"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/molecule"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

const eventSource = "fpindex-cli"

// eventPublisher is the part of kafka.Producer the events command needs.
type eventPublisher interface {
	PublishBatch(ctx context.Context, msgs []*kafka.ProducerMessage) (*kafka.BatchPublishResult, error)
	Close() error
}

// newEventPublisher is swapped in tests.
var newEventPublisher = func(cfg *config.Config, logger logging.Logger) (eventPublisher, error) {
	return kafka.NewProducer(cfg.Kafka.Producer, logger)
}

// NewEventsCmd creates the events command.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Feed molecule change events to the indexing worker",
	}
	cmd.AddCommand(newEventsPublishCmd())
	return cmd
}

type publishOptions struct {
	format string
	delete bool
}

func newEventsPublishCmd() *cobra.Command {
	opts := &publishOptions{}
	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Publish an upsert (or delete) event for every molecule of a file",
		Long: "Publish molecule events to the " + kafka.TopicMoleculeEvents + " topic. The file\n" +
			"formats are those of 'index add'. With --delete only the IDs are used.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			molecules, err := loadMolecules(args[0], opts.format, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(molecules) == 0 {
				return errors.InvalidParam("the molecule file is empty")
			}

			msgs := make([]*kafka.ProducerMessage, 0, len(molecules))
			for i, m := range molecules {
				var ev molecule.Event
				if opts.delete {
					ev = molecule.NewDeletedEvent(m.ID)
				} else {
					ev = molecule.NewUpsertedEvent(molecule.Record{ID: m.ID, Structure: m.Structure, Properties: m.Properties})
				}
				msg, err := kafka.MoleculeEventMessage(ev, eventSource)
				if err != nil {
					return errors.Wrapf(err, errors.CodeInvalidParam, "molecule %d (%q)", i+1, m.ID)
				}
				msgs = append(msgs, msg)
			}

			producer, err := newEventPublisher(cc.Config, cc.Logger)
			if err != nil {
				return err
			}
			defer producer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cc.Timeout)
			defer cancel()
			res, err := producer.PublishBatch(ctx, msgs)
			if res != nil {
				out := newPublishSummary(res)
				if perr := PrintResult(cmd, out, func(w io.Writer) { printPublishSummary(w, out) }); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "file format: jsonl|json|smi (default: from extension)")
	cmd.Flags().BoolVar(&opts.delete, "delete", false, "publish delete events instead of upserts")
	return cmd
}

type publishFailure struct {
	Index int    `json:"index"`
	Topic string `json:"topic"`
	Error string `json:"error"`
}

type publishSummary struct {
	Published int              `json:"published"`
	Failed    int              `json:"failed"`
	Failures  []publishFailure `json:"failures,omitempty"`
}

func newPublishSummary(res *kafka.BatchPublishResult) *publishSummary {
	out := &publishSummary{Published: res.Succeeded, Failed: res.Failed}
	for _, e := range res.Errors {
		f := publishFailure{Index: e.Index, Topic: e.Topic}
		if e.Error != nil {
			f.Error = e.Error.Error()
		}
		out.Failures = append(out.Failures, f)
	}
	return out
}

func printPublishSummary(w io.Writer, s *publishSummary) {
	PrintSuccess(w, "published %d events", s.Published)
	if s.Failed == 0 {
		return
	}
	fmt.Fprintln(w, color.RedString("%d events failed", s.Failed))
	rows := make([][]string, len(s.Failures))
	for i, f := range s.Failures {
		rows[i] = []string{strconv.Itoa(f.Index), f.Topic, truncateString(f.Error, 60)}
	}
	renderTable(w, []string{"Index", "Topic", "Error"}, rows)
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skip config and logger initialization.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fpindex %s\n  commit: %s\n  built:  %s\n", Version, GitCommit, BuildDate)
		},
	}
}

//Personal.AI order the ending
