package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/search"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// buildQueryDSL turns the boolean query into a non-scoring filter of term
// queries. Hits come back ordered by ascending bit count, which is
// descending Tanimoto similarity for a subset query, so the first size hits
// are the best ones.
func buildQueryDSL(q *search.BooleanQuery, size int) (map[string]interface{}, error) {
	filters := make([]interface{}, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		if c.Field != search.FingerprintField || c.Occur != search.Must {
			return nil, errors.InvalidParam("unsupported query clause").WithDetailf("field=%s", c.Field)
		}
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{fieldBits: c.Term},
		})
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(filters) > 0 {
		query = map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		}
	}
	return map[string]interface{}{
		"query":            query,
		"size":             size,
		"track_total_hits": true,
		"_source":          []string{fieldID, fieldCount},
		"sort": []interface{}{
			map[string]interface{}{fieldCount: "asc"},
			map[string]interface{}{fieldID: "asc"},
		},
	}, nil
}

// Search fetches up to the collector's capacity of candidates and offers
// them in the order OpenSearch returned them. Doc numbers are hit ordinals,
// so ties keep that order. Matches beyond the fetched page still count
// towards the collector's total.
func (x *Index) Search(ctx context.Context, q *search.BooleanQuery, collector *search.TopK) error {
	if q == nil || collector == nil {
		return errors.InvalidParam("query and collector are required")
	}
	size := collector.Cap()
	if size <= 0 {
		size = x.config.DefaultFetchSize
	}
	dsl, err := buildQueryDSL(q, size)
	if err != nil {
		return err
	}
	body, err := json.Marshal(dsl)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal query DSL")
	}

	start := time.Now()
	resp, err := opensearchapi.SearchRequest{
		Index: []string{x.config.Name},
		Body:  bytes.NewReader(body),
	}.Do(ctx, x.client.GetClient())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.New(errors.ErrCodeTimeout, "search request timed out")
		}
		return errors.Wrap(err, errors.CodeSearchBackend, "search request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return errors.New(errors.CodeIndexUnavailable, "fingerprint index does not exist").WithDetailf("index=%s", x.config.Name)
	}
	if resp.IsError() {
		return handleErrorResponse(resp, "search failed")
	}

	var result struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string `json:"_id"`
				Source source `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	for i, h := range result.Hits.Hits {
		collector.CollectScoreDoc(search.ScoreDoc{Doc: i, ID: h.ID, Score: q.Score(h.Source.Count)})
	}
	collector.AddTotalHits(int(result.Hits.Total.Value) - len(result.Hits.Hits))
	x.logger.Debug("fingerprint search executed",
		logging.Int("clauses", q.Len()),
		logging.Int64("total", result.Hits.Total.Value),
		logging.Int("returned", len(result.Hits.Hits)),
		logging.Int64("took_ms", result.Took),
		logging.Duration("elapsed", time.Since(start)))
	return nil
}

// NumDocs returns the document count of the index.
func (x *Index) NumDocs(ctx context.Context) (int, error) {
	resp, err := opensearchapi.CountRequest{Index: []string{x.config.Name}}.Do(ctx, x.client.GetClient())
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeSearchBackend, "count request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return 0, errors.New(errors.CodeIndexUnavailable, "fingerprint index does not exist").WithDetailf("index=%s", x.config.Name)
	}
	if resp.IsError() {
		return 0, handleErrorResponse(resp, "count failed")
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode count response")
	}
	return body.Count, nil
}
