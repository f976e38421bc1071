package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/search"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Index field names. The domain's reserved field names start with an
// underscore, which OpenSearch keeps for metadata fields.
const (
	fieldID     = "molecule_id"
	fieldBits   = "fp_bits"
	fieldCount  = "fp_count"
	fieldStored = "stored"
	metaKey     = "fp_settings"
)

var (
	ErrIndexNotFound   = errors.New(errors.ErrCodeNotFound, "fingerprint index not found")
	ErrBulkItemsFailed = errors.New(errors.CodeSearchBackend, "bulk request had failed items")
)

// IndexConfig holds configuration for a fingerprint index.
type IndexConfig struct {
	Name             string `mapstructure:"index_name"`
	Shards           int    `mapstructure:"shards"`
	Replicas         int    `mapstructure:"replicas"`
	BulkBatchSize    int    `mapstructure:"bulk_batch_size"`
	RefreshOnCommit  string `mapstructure:"refresh_on_commit"`
	DefaultFetchSize int    `mapstructure:"default_fetch_size"`
}

func (cfg *IndexConfig) applyDefaults() {
	if cfg.Name == "" {
		cfg.Name = "fp-index"
	}
	if cfg.Shards == 0 {
		cfg.Shards = 1
	}
	if cfg.BulkBatchSize == 0 {
		cfg.BulkBatchSize = 1000
	}
	if cfg.RefreshOnCommit == "" {
		cfg.RefreshOnCommit = "wait_for"
	}
	if cfg.DefaultFetchSize == 0 {
		cfg.DefaultFetchSize = 100
	}
}

// source is the stored document body.
type source struct {
	ID     string            `json:"molecule_id"`
	Bits   []string          `json:"fp_bits"`
	Count  int               `json:"fp_count"`
	Stored map[string]string `json:"stored,omitempty"`
}

type bulkOp struct {
	id  string
	doc *source // nil for delete
}

// Index is a fingerprint index stored in OpenSearch. It implements
// search.Writer and search.Searcher. Writes are buffered and sent as bulk
// requests on Commit.
type Index struct {
	client   *Client
	config   IndexConfig
	settings fingerprint.Settings
	logger   logging.Logger

	mu      sync.Mutex
	pending []bulkOp
}

var (
	_ search.Writer   = (*Index)(nil)
	_ search.Searcher = (*Index)(nil)
)

// NewIndex returns an Index for the settings. Call EnsureIndex before use.
func NewIndex(client *Client, cfg IndexConfig, settings fingerprint.Settings, logger logging.Logger) *Index {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Index{
		client:   client,
		config:   cfg,
		settings: settings,
		logger:   logger.With(logging.String("index", cfg.Name)),
	}
}

// Name returns the OpenSearch index name.
func (x *Index) Name() string { return x.config.Name }

// Mapping returns the index body used on creation. Bits are unanalyzed
// keywords without norms; the count is only used for sorting.
func (x *Index) Mapping() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   x.config.Shards,
			"number_of_replicas": x.config.Replicas,
		},
		"mappings": map[string]interface{}{
			"_meta":   map[string]interface{}{metaKey: x.settings.Key()},
			"dynamic": "strict",
			"properties": map[string]interface{}{
				fieldID:     map[string]interface{}{"type": "keyword"},
				fieldBits:   map[string]interface{}{"type": "keyword", "norms": false, "index_options": "docs"},
				fieldCount:  map[string]interface{}{"type": "integer"},
				fieldStored: map[string]interface{}{"type": "object", "enabled": false},
			},
		},
	}
}

// EnsureIndex creates the index when missing. An existing index whose
// recorded settings differ is rejected with IncompatibleSettings.
func (x *Index) EnsureIndex(ctx context.Context) error {
	exists, err := x.exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return x.create(ctx)
	}
	recorded, err := x.recordedSettings(ctx)
	if err != nil {
		return err
	}
	if recorded != x.settings.Key() {
		return errors.New(errors.CodeIncompatibleSettings, "index was built with different fingerprint settings").
			WithDetailf("index=%s requested=%s", recorded, x.settings.Key())
	}
	return nil
}

func (x *Index) exists(ctx context.Context) (bool, error) {
	resp, err := opensearchapi.IndicesExistsRequest{Index: []string{x.config.Name}}.Do(ctx, x.client.GetClient())
	if err != nil {
		return false, errors.Wrap(err, errors.CodeSearchBackend, "failed to check index existence")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, handleErrorResponse(resp, "check index existence failed")
	}
}

func (x *Index) create(ctx context.Context) error {
	body, err := json.Marshal(x.Mapping())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}
	resp, err := opensearchapi.IndicesCreateRequest{
		Index: x.config.Name,
		Body:  bytes.NewReader(body),
	}.Do(ctx, x.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.CodeSearchBackend, "failed to create index")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return handleErrorResponse(resp, "index creation failed")
	}
	x.logger.Info("fingerprint index created", logging.String("settings", x.settings.Key()))
	return nil
}

func (x *Index) recordedSettings(ctx context.Context) (string, error) {
	resp, err := opensearchapi.IndicesGetMappingRequest{Index: []string{x.config.Name}}.Do(ctx, x.client.GetClient())
	if err != nil {
		return "", errors.Wrap(err, errors.CodeSearchBackend, "failed to read index mapping")
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return "", ErrIndexNotFound
	}
	if resp.IsError() {
		return "", handleErrorResponse(resp, "read mapping failed")
	}

	var body map[string]struct {
		Mappings struct {
			Meta map[string]string `json:"_meta"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode mapping response")
	}
	for _, m := range body {
		return m.Mappings.Meta[metaKey], nil
	}
	return "", ErrIndexNotFound
}

// DeleteIndex drops the index and everything in it.
func (x *Index) DeleteIndex(ctx context.Context) error {
	resp, err := opensearchapi.IndicesDeleteRequest{Index: []string{x.config.Name}}.Do(ctx, x.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.CodeSearchBackend, "failed to delete index")
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return ErrIndexNotFound
	}
	if resp.IsError() {
		return handleErrorResponse(resp, "delete index failed")
	}
	x.logger.Warn("fingerprint index deleted")
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Writer
// ─────────────────────────────────────────────────────────────────────────────

// AddDocument buffers doc. OpenSearch replaces a document with the same ID.
func (x *Index) AddDocument(ctx context.Context, doc search.Document) error {
	return x.AddDocuments(ctx, []search.Document{doc})
}

// AddDocuments buffers docs, rejecting the whole batch if any is invalid.
func (x *Index) AddDocuments(ctx context.Context, docs []search.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ops := make([]bulkOp, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return errors.InvalidParam("document id is required")
		}
		if d.Fingerprint == nil {
			return errors.New(errors.CodeAbsentFingerprint, "cannot index an absent fingerprint").WithDetailf("id=%s", d.ID)
		}
		if d.Fingerprint.NumBits() != x.settings.NumBits() {
			return errors.New(errors.CodeIncompatibleSettings, "fingerprint length does not match the index").
				WithDetailf("id=%s numBits=%d index=%d", d.ID, d.Fingerprint.NumBits(), x.settings.NumBits())
		}
		ops = append(ops, bulkOp{id: d.ID, doc: &source{ID: d.ID, Bits: d.Terms(), Count: d.BitCount(), Stored: d.Stored}})
	}
	x.mu.Lock()
	x.pending = append(x.pending, ops...)
	x.mu.Unlock()
	return nil
}

// Delete buffers deletions. Unknown IDs are ignored on Commit.
func (x *Index) Delete(ctx context.Context, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	for _, id := range ids {
		x.pending = append(x.pending, bulkOp{id: id})
	}
	x.mu.Unlock()
	return nil
}

// Commit sends buffered operations in bulk batches and refreshes the index
// so they are searchable. On failure the buffer is kept; batches already
// sent stay applied.
func (x *Index) Commit(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.pending) == 0 {
		return nil
	}

	added, deleted := 0, 0
	for start := 0; start < len(x.pending); start += x.config.BulkBatchSize {
		end := start + x.config.BulkBatchSize
		if end > len(x.pending) {
			end = len(x.pending)
		}
		a, d, err := x.bulk(ctx, x.pending[start:end])
		added += a
		deleted += d
		if err != nil {
			x.pending = x.pending[start:]
			return err
		}
	}
	x.logger.Info("fingerprint index committed",
		logging.Int("added", added),
		logging.Int("deleted", deleted))
	x.pending = nil
	return nil
}

func (x *Index) bulk(ctx context.Context, ops []bulkOp) (int, int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, op := range ops {
		action := "index"
		if op.doc == nil {
			action = "delete"
		}
		meta := map[string]map[string]string{action: {"_index": x.config.Name, "_id": op.id}}
		if err := enc.Encode(meta); err != nil {
			return 0, 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode bulk action")
		}
		if op.doc != nil {
			if err := enc.Encode(op.doc); err != nil {
				return 0, 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode document")
			}
		}
	}

	resp, err := opensearchapi.BulkRequest{
		Body:    bytes.NewReader(buf.Bytes()),
		Refresh: x.config.RefreshOnCommit,
	}.Do(ctx, x.client.GetClient())
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.CodeSearchBackend, "bulk request failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return 0, 0, handleErrorResponse(resp, "bulk request failed")
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return 0, 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}

	added, deleted := 0, 0
	var failed []string
	for _, item := range bulkResp.Items {
		for action, info := range item {
			switch {
			case action == "delete" && info.Status == 404:
				// unknown id
			case info.Status >= 200 && info.Status < 300:
				if action == "delete" {
					deleted++
				} else {
					added++
				}
			default:
				failed = append(failed, info.ID+": "+info.Error.Type+" "+info.Error.Reason)
			}
		}
	}
	if len(failed) > 0 {
		return added, deleted, ErrBulkItemsFailed.WithDetail(strings.Join(failed, "; "))
	}
	return added, deleted, nil
}

// Rollback discards buffered operations.
func (x *Index) Rollback(context.Context) error {
	x.mu.Lock()
	x.pending = nil
	x.mu.Unlock()
	return nil
}

// Close discards buffered operations. The client is owned by the caller.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.pending) > 0 {
		x.logger.Warn("closing index with uncommitted changes", logging.Int("discarded", len(x.pending)))
	}
	x.pending = nil
	return nil
}

func handleErrorResponse(resp *opensearchapi.Response, message string) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	bodyBytes, _ := io.ReadAll(resp.Body)
	err := errors.New(errors.CodeSearchBackend, message)
	if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error.Reason != "" {
		return err.WithDetailf("status=%d %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Reason)
	}
	return err.WithDetailf("status=%d", resp.StatusCode)
}
