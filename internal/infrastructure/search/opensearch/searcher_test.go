package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/search"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

func TestBuildQueryDSL(t *testing.T) {
	q := search.NewSubstructureQuery(fingerprint.MustFromPositions(64, 3, 7, 19))
	dsl, err := buildQueryDSL(q, 10)
	require.NoError(t, err)

	raw, err := json.Marshal(dsl)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"query": {"bool": {"filter": [
			{"term": {"fp_bits": "3"}},
			{"term": {"fp_bits": "7"}},
			{"term": {"fp_bits": "19"}}
		]}},
		"size": 10,
		"track_total_hits": true,
		"_source": ["molecule_id", "fp_count"],
		"sort": [{"fp_count": "asc"}, {"molecule_id": "asc"}]
	}`, string(raw))

	empty, err := buildQueryDSL(search.NewSubstructureQuery(fingerprint.New(64)), 5)
	require.NoError(t, err)
	assert.Contains(t, empty["query"], "match_all")

	_, err = buildQueryDSL(&search.BooleanQuery{Clauses: []search.TermClause{{Field: "name", Term: "x"}}}, 5)
	assert.True(t, errors.IsValidation(err))
}

func TestSearch_CollectsHits(t *testing.T) {
	x := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/fp-test/_search"))
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 2, body["size"])
		w.Write([]byte(`{"took":3,"hits":{"total":{"value":3},"hits":[
			{"_id":"exact","_source":{"molecule_id":"exact","fp_count":3}},
			{"_id":"bigger","_source":{"molecule_id":"bigger","fp_count":6}}
		]}}`))
	})

	res, err := search.Search(context.Background(), x, fingerprint.MustFromPositions(64, 3, 7, 19), 2)
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "exact", res.Hits[0].ID)
	assert.InDelta(t, 1.0, res.Hits[0].Score, 1e-9)
	assert.Equal(t, "bigger", res.Hits[1].ID)
	assert.InDelta(t, 0.5, res.Hits[1].Score, 1e-9)
	assert.Equal(t, 3, res.TotalHits)
}

func TestSearch_TotalHitsBeyondPage(t *testing.T) {
	tests := []struct {
		name  string
		total int
		want  int
	}{
		{"more matches than fetched", 500, 500},
		{"all matches fetched", 2, 2},
		{"total missing", 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"took":1,"hits":{"total":{"value":%d},"hits":[
					{"_id":"a","_source":{"molecule_id":"a","fp_count":3}},
					{"_id":"b","_source":{"molecule_id":"b","fp_count":4}}
				]}}`, tt.total)
			})

			res, err := search.Search(context.Background(), x, fingerprint.MustFromPositions(64, 3, 7, 19), 2)
			require.NoError(t, err)
			assert.Len(t, res.Hits, 2)
			assert.Equal(t, tt.want, res.TotalHits)
		})
	}
}

func TestSearch_MissingIndex(t *testing.T) {
	x := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"index_not_found_exception","reason":"no such index"}}`))
	})
	err := x.Search(context.Background(), search.NewSubstructureQuery(fingerprint.New(64)), search.NewTopK(1))
	assert.True(t, errors.IsCode(err, errors.CodeIndexUnavailable))

	_, err = x.NumDocs(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeIndexUnavailable))
}

func TestSearch_BackendError(t *testing.T) {
	x := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"search_phase_execution_exception","reason":"boom"}}`))
	})
	err := x.Search(context.Background(), search.NewSubstructureQuery(fingerprint.New(64)), search.NewTopK(1))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeSearchBackend))
	assert.Contains(t, err.Error(), "search_phase_execution_exception")
}

func TestNumDocs(t *testing.T) {
	x := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/_count"))
		w.Write([]byte(`{"count":42}`))
	})
	n, err := x.NumDocs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}
