package indexing

import (
	"context"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/molecule"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/search"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// SourceVerifier re-reads every candidate from the system of record,
// recomputes its structure fingerprint and keeps the candidates that still
// contain every query bit. It drops hits whose indexed document is stale.
// Records are parsed with the same sanitize flag the service indexes with.
type SourceVerifier struct {
	source   molecule.Source
	factory  *fingerprint.Factory
	sanitize bool
	logger   logging.Logger
}

func NewSourceVerifier(source molecule.Source, factory *fingerprint.Factory, sanitize bool, logger logging.Logger) *SourceVerifier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SourceVerifier{source: source, factory: factory, sanitize: sanitize, logger: logger.Named("verifier")}
}

// Verify preserves the order of hits. A query fingerprint whose length
// differs from the structure settings is rejected.
func (v *SourceVerifier) Verify(ctx context.Context, query *fingerprint.Fingerprint, hits []search.ScoreDoc) ([]search.ScoreDoc, error) {
	if n := v.factory.StructureSettings().NumBits(); query != nil && query.NumBits() != n {
		return nil, errors.New(errors.CodeIncompatibleSettings, "query fingerprint does not match the structure settings").
			WithDetailf("query_bits=%d structure_bits=%d", query.NumBits(), n)
	}
	out := make([]search.ScoreDoc, 0, len(hits))
	for _, h := range hits {
		record, err := v.source.Get(ctx, h.ID)
		if errors.IsNotFound(err) {
			v.logger.Debug("candidate no longer exists", logging.String("id", h.ID))
			continue
		}
		if err != nil {
			return nil, err
		}
		fp, err := v.factory.CreateStructureFingerprint(record.Structure, v.sanitize)
		if err != nil {
			if skippable(err) {
				continue
			}
			return nil, err
		}
		if fp.Contains(query) {
			out = append(out, h)
		}
	}
	return out, nil
}

var _ Verifier = (*SourceVerifier)(nil)

//Personal.AI order the ending
