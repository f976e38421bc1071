package indexing

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/molecule"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/search"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// skippable reports whether a record-level failure leaves the rest of the
// chunk indexable.
func skippable(err error) bool {
	return errors.IsValidation(err) || errors.IsCode(err, errors.CodeAbsentFingerprint)
}

// IndexBatch indexes records in chunks of the configured batch size. Each
// chunk is fingerprinted concurrently and committed as one transaction.
// Records that cannot be fingerprinted are skipped; any other failure rolls
// the chunk back and aborts the batch, leaving earlier chunks committed. A
// chunk whose records were all skipped is never committed and is counted in
// ChunksSkipped.
func (s *serviceImpl) IndexBatch(ctx context.Context, records []molecule.Record) (*BatchResult, error) {
	start := time.Now()
	size := s.opts.batchSize
	res := &BatchResult{ChunksTotal: (len(records) + size - 1) / size}

	for lo := 0; lo < len(records); lo += size {
		hi := min(lo+size, len(records))
		indexed, skipped, err := s.indexChunk(ctx, records[lo:hi])
		s.opts.metrics.RecordBatchChunk(err)
		if err != nil {
			res.Duration = time.Since(start)
			s.logger.Error("batch indexing aborted",
				logging.Int("chunk", res.ChunksCommitted+res.ChunksSkipped),
				logging.Int("chunks", res.ChunksTotal),
				logging.Err(err))
			return res, errors.Wrap(err, errors.CodeBatchAborted, "batch indexing aborted").
				WithDetailf("committed_chunks=%d total_chunks=%d", res.ChunksCommitted, res.ChunksTotal)
		}
		res.Indexed += indexed
		res.Skipped = append(res.Skipped, skipped...)
		if indexed == 0 {
			res.ChunksSkipped++
			continue
		}
		res.ChunksCommitted++
	}

	res.Duration = time.Since(start)
	s.logger.Info("batch indexed",
		logging.Int("indexed", res.Indexed),
		logging.Int("skipped", len(res.Skipped)),
		logging.Int("chunks", res.ChunksTotal),
		logging.Int("empty_chunks", res.ChunksSkipped),
		logging.Duration("duration", res.Duration))
	return res, nil
}

func (s *serviceImpl) indexChunk(ctx context.Context, chunk []molecule.Record) (int, []SkippedRecord, error) {
	docs := make([]search.Document, len(chunk))
	failures := make([]error, len(chunk))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.workers)
	for i := range chunk {
		i := i
		g.Go(func() error {
			doc, err := s.document(gctx, chunk[i])
			switch {
			case err == nil:
				docs[i] = doc
			case skippable(err):
				failures[i] = err
			default:
				return errors.Wrapf(err, errors.CodeUnknown, "fingerprinting molecule %q", chunk[i].ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	kept := docs[:0]
	var skipped []SkippedRecord
	for i, err := range failures {
		if err != nil {
			skipped = append(skipped, SkippedRecord{ID: chunk[i].ID, Reason: err.Error()})
			s.logger.Debug("molecule skipped", logging.String("id", chunk[i].ID), logging.Err(err))
			continue
		}
		kept = append(kept, docs[i])
	}
	if len(kept) == 0 {
		return 0, skipped, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.commit(ctx, func() error { return s.writer.AddDocuments(ctx, kept) }); err != nil {
		return 0, nil, err
	}
	s.opts.metrics.RecordDocuments("add", len(kept))
	return len(kept), skipped, nil
}

// Rebuild re-indexes every record of source under the rebuild lease. Records
// are upserted page by page; documents absent from source are left in place.
func (s *serviceImpl) Rebuild(ctx context.Context, source molecule.Source) (*RebuildResult, error) {
	if source == nil {
		return nil, errors.InvalidParam("molecule source is required")
	}
	if s.opts.lease != nil {
		if err := s.opts.lease.Acquire(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if err := s.opts.lease.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release rebuild lease", logging.Err(err))
			}
		}()
	}

	total, err := source.Count(ctx)
	if err != nil {
		s.logger.Warn("molecule count unavailable", logging.Err(err))
		total = -1
	}
	s.logger.Info("rebuild started", logging.Int64("records", total), logging.Int("page_size", s.opts.pageSize))

	start := time.Now()
	res := &RebuildResult{}
	err = source.Scan(ctx, s.opts.pageSize, func(page []molecule.Record) error {
		br, err := s.IndexBatch(ctx, page)
		res.Pages++
		if br != nil {
			res.Indexed += br.Indexed
			res.Skipped += len(br.Skipped)
		}
		if err != nil {
			return err
		}
		s.logger.Debug("rebuild progress",
			logging.Int("pages", res.Pages),
			logging.Int("indexed", res.Indexed),
			logging.Int64("records", total))
		return nil
	})
	res.Duration = time.Since(start)
	s.opts.metrics.RecordRebuild(res.Duration, res.Indexed, res.Skipped, err)
	if err != nil {
		return res, err
	}

	s.logger.Info("rebuild finished",
		logging.Int("pages", res.Pages),
		logging.Int("indexed", res.Indexed),
		logging.Int("skipped", res.Skipped),
		logging.Duration("duration", res.Duration))
	return res, nil
}

//Personal.AI order the ending
