package indexing

import (
	"context"

	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

var errSnapshotsDisabled = errors.New(errors.CodeUnavailable, "index snapshots are not configured")

// Snapshot uploads the committed state of the local index and prunes old
// snapshots. An empty name selects a timestamped one.
func (s *serviceImpl) Snapshot(ctx context.Context, name string) (*minio.Snapshot, error) {
	if s.opts.snapshots == nil {
		return nil, errSnapshotsDisabled
	}
	idx := s.opts.localIndex
	key := idx.Settings().Key()

	snap, err := s.opts.snapshots.Save(ctx, idx, name)
	if err != nil {
		s.opts.metrics.RecordSnapshot("save", key, 0, err)
		return nil, err
	}
	s.opts.metrics.RecordSnapshot("save", key, snap.Size, nil)

	removed, err := s.opts.snapshots.Prune(ctx, idx.Settings(), s.opts.snapshotKeep)
	if err != nil {
		s.logger.Warn("snapshot pruning failed", logging.Err(err))
	}
	s.logger.Info("index snapshot saved",
		logging.String("name", snap.Name),
		logging.Int64("bytes", snap.Size),
		logging.Int("docs", snap.Docs),
		logging.Int("pruned", removed))
	return snap, nil
}

// Restore replaces the local index with a snapshot. An empty name selects
// the newest snapshot for the index settings.
func (s *serviceImpl) Restore(ctx context.Context, name string) (*minio.Snapshot, error) {
	if s.opts.snapshots == nil {
		return nil, errSnapshotsDisabled
	}
	idx := s.opts.localIndex
	key := idx.Settings().Key()

	if name == "" {
		latest, err := s.opts.snapshots.Latest(ctx, idx.Settings())
		if err != nil {
			return nil, err
		}
		name = latest.Name
	}

	s.writeMu.Lock()
	snap, err := s.opts.snapshots.Restore(ctx, idx, name)
	s.writeMu.Unlock()
	if err != nil {
		s.opts.metrics.RecordSnapshot("restore", key, 0, err)
		return nil, err
	}
	s.opts.metrics.RecordSnapshot("restore", key, snap.Size, nil)

	if _, err := s.Stats(ctx); err != nil {
		s.logger.Warn("index stats unavailable after restore", logging.Err(err))
	}
	s.logger.Info("index snapshot restored",
		logging.String("name", snap.Name),
		logging.Uint64("generation", snap.Generation),
		logging.Int("docs", snap.Docs))
	return snap, nil
}

//Personal.AI order the ending
