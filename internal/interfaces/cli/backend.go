package cli

import (
	"context"
	"encoding/json"

	"github.com/turtacn/KeyIP-FPIndex/internal/application/indexing"
	"github.com/turtacn/KeyIP-FPIndex/internal/bootstrap"
	"github.com/turtacn/KeyIP-FPIndex/internal/config"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/molecule"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/client"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Backend is what the commands run against: the API server or the index
// opened in-process. Both speak the SDK's wire types.
type Backend interface {
	Fingerprint(ctx context.Context, structure, kind string) (*client.FingerprintResult, error)
	Search(ctx context.Context, req *client.SearchRequest) (*client.SearchResult, error)
	IndexBatch(ctx context.Context, molecules []client.Molecule) (*client.BatchResult, error)
	Delete(ctx context.Context, ids ...string) error
	Rebuild(ctx context.Context) (*client.RebuildResult, error)
	Stats(ctx context.Context) (*client.IndexStats, error)
	Snapshot(ctx context.Context, name string) (*client.Snapshot, error)
	Restore(ctx context.Context, name string) (*client.Snapshot, error)
	Close() error
}

// ── Remote ──

type remoteBackend struct {
	client *client.Client
}

func (b *remoteBackend) Fingerprint(ctx context.Context, structure, kind string) (*client.FingerprintResult, error) {
	return b.client.Search().Fingerprint(ctx, structure, kind)
}

func (b *remoteBackend) Search(ctx context.Context, req *client.SearchRequest) (*client.SearchResult, error) {
	return b.client.Search().Substructure(ctx, req)
}

func (b *remoteBackend) IndexBatch(ctx context.Context, molecules []client.Molecule) (*client.BatchResult, error) {
	return b.client.Index().Batch(ctx, molecules)
}

func (b *remoteBackend) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if err := b.client.Index().Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (b *remoteBackend) Rebuild(ctx context.Context) (*client.RebuildResult, error) {
	return b.client.Index().Rebuild(ctx)
}

func (b *remoteBackend) Stats(ctx context.Context) (*client.IndexStats, error) {
	return b.client.Index().Stats(ctx)
}

func (b *remoteBackend) Snapshot(ctx context.Context, name string) (*client.Snapshot, error) {
	return b.client.Index().Snapshot(ctx, name)
}

func (b *remoteBackend) Restore(ctx context.Context, name string) (*client.Snapshot, error) {
	return b.client.Index().Restore(ctx, name)
}

func (b *remoteBackend) Close() error { return nil }

// ── Local ──

type localBackend struct {
	rt *bootstrap.Runtime
}

func openLocalBackend(ctx context.Context, cfg *config.Config, logger logging.Logger) (Backend, error) {
	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &localBackend{rt: rt}, nil
}

// convert re-decodes v into the SDK type with the same JSON shape.
func convert[T any](v interface{}) (*T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "encoding result")
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "decoding result")
	}
	return &out, nil
}

func (b *localBackend) Fingerprint(ctx context.Context, structure, kind string) (*client.FingerprintResult, error) {
	k, err := fingerprint.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	res, err := b.rt.Service.Fingerprint(ctx, &indexing.FingerprintInput{Structure: structure, Kind: k})
	if err != nil {
		return nil, err
	}
	return convert[client.FingerprintResult](res)
}

func (b *localBackend) Search(ctx context.Context, req *client.SearchRequest) (*client.SearchResult, error) {
	res, err := b.rt.Service.Search(ctx, &indexing.SearchInput{
		Query:   req.Query,
		MaxHits: req.MaxHits,
		Verify:  req.Verify,
	})
	if err != nil {
		return nil, err
	}
	return convert[client.SearchResult](res)
}

func (b *localBackend) IndexBatch(ctx context.Context, molecules []client.Molecule) (*client.BatchResult, error) {
	records := make([]molecule.Record, len(molecules))
	for i, m := range molecules {
		records[i] = molecule.Record{ID: m.ID, Structure: m.Structure, Properties: m.Properties}
	}
	res, err := b.rt.Service.IndexBatch(ctx, records)
	if res == nil {
		return nil, err
	}
	out, convErr := convert[client.BatchResult](res)
	if convErr != nil {
		return nil, convErr
	}
	return out, err
}

func (b *localBackend) Delete(ctx context.Context, ids ...string) error {
	return b.rt.Service.DeleteMolecules(ctx, ids...)
}

func (b *localBackend) Rebuild(ctx context.Context) (*client.RebuildResult, error) {
	if b.rt.Source == nil {
		return nil, errors.New(errors.CodeUnavailable, "no molecule source is configured").
			WithDetail("set neo4j.enabled or postgres.enabled to rebuild from a molecule source")
	}
	res, err := b.rt.Service.Rebuild(ctx, b.rt.Source)
	if err != nil {
		return nil, err
	}
	return convert[client.RebuildResult](res)
}

func (b *localBackend) Stats(ctx context.Context) (*client.IndexStats, error) {
	res, err := b.rt.Service.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return convert[client.IndexStats](res)
}

func (b *localBackend) Snapshot(ctx context.Context, name string) (*client.Snapshot, error) {
	res, err := b.rt.Service.Snapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	return convert[client.Snapshot](res)
}

func (b *localBackend) Restore(ctx context.Context, name string) (*client.Snapshot, error) {
	res, err := b.rt.Service.Restore(ctx, name)
	if err != nil {
		return nil, err
	}
	return convert[client.Snapshot](res)
}

func (b *localBackend) Close() error { return b.rt.Close() }

//Personal.AI order the ending
