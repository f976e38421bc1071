package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/url"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// IndexClient maintains the index. Every call except Stats needs an API key
// when the server is configured with one.
type IndexClient struct {
	client *Client
}

// Add indexes one molecule, replacing any document with the same ID.
func (ic *IndexClient) Add(ctx context.Context, m Molecule) error {
	if m.ID == "" || m.Structure == "" {
		return errors.InvalidParam("client: molecule id and structure are required")
	}
	return ic.client.post(ctx, "/api/v1/index/molecules", m, nil)
}

// Delete removes the molecule with the given ID.
func (ic *IndexClient) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.InvalidParam("client: molecule id is required")
	}
	return ic.client.delete(ctx, "/api/v1/index/molecules/"+url.PathEscape(id))
}

// Batch indexes molecules in committed chunks. When the server aborts the
// batch, the error is returned together with the partial result.
func (ic *IndexClient) Batch(ctx context.Context, molecules []Molecule) (*BatchResult, error) {
	if len(molecules) == 0 {
		return nil, errors.InvalidParam("client: molecules must not be empty")
	}
	var out BatchResult
	req := struct {
		Molecules []Molecule `json:"molecules"`
	}{molecules}
	err := ic.client.post(ctx, "/api/v1/index/batch", req, &out)
	if err == nil {
		return &out, nil
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) && len(apiErr.body) > 0 {
		var partial struct {
			Result *BatchResult `json:"result"`
		}
		if json.Unmarshal(apiErr.body, &partial) == nil && partial.Result != nil {
			return partial.Result, err
		}
	}
	return nil, err
}

// Rebuild re-indexes every molecule of the server's configured source.
func (ic *IndexClient) Rebuild(ctx context.Context) (*RebuildResult, error) {
	var out RebuildResult
	if err := ic.client.post(ctx, "/api/v1/index/rebuild", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats describes the live index.
func (ic *IndexClient) Stats(ctx context.Context) (*IndexStats, error) {
	var out IndexStats
	if err := ic.client.get(ctx, "/api/v1/index/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Snapshot archives the index. An empty name lets the server pick one.
func (ic *IndexClient) Snapshot(ctx context.Context, name string) (*Snapshot, error) {
	var out Snapshot
	if err := ic.client.post(ctx, "/api/v1/index/snapshots", snapshotBody(name), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Restore replaces the index with a snapshot. An empty name restores the
// newest snapshot.
func (ic *IndexClient) Restore(ctx context.Context, name string) (*Snapshot, error) {
	var out Snapshot
	if err := ic.client.post(ctx, "/api/v1/index/snapshots/restore", snapshotBody(name), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func snapshotBody(name string) interface{} {
	if name == "" {
		return nil
	}
	return map[string]string{"name": name}
}

//Personal.AI order the ending
