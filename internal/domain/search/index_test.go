package search

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// scanSearcher evaluates queries by scanning every document.
type scanSearcher struct {
	docs []Document
	err  error
}

func (s *scanSearcher) Search(_ context.Context, q *BooleanQuery, c *TopK) error {
	if s.err != nil {
		return s.err
	}
	for i, d := range s.docs {
		terms := map[string]bool{}
		for _, f := range d.Fields() {
			terms[f.Term] = true
		}
		match := true
		for _, cl := range q.Clauses {
			if cl.Field != FingerprintField || !terms[cl.Term] {
				match = false
				break
			}
		}
		if match {
			c.CollectScoreDoc(ScoreDoc{Doc: i, ID: d.ID, Score: q.Score(d.BitCount())})
		}
	}
	return nil
}

func (s *scanSearcher) NumDocs(context.Context) (int, error) { return len(s.docs), nil }

func mustDoc(t *testing.T, id string, positions ...int) Document {
	t.Helper()
	d, err := NewDocument(id, fingerprint.MustFromPositions(64, positions...))
	require.NoError(t, err)
	return d
}

func TestNewDocument(t *testing.T) {
	d := mustDoc(t, "m1", 19, 3, 7)
	assert.Equal(t, []string{"3", "7", "19"}, d.Terms())
	assert.Equal(t, []Field{
		{Name: FingerprintField, Term: "3"},
		{Name: FingerprintField, Term: "7"},
		{Name: FingerprintField, Term: "19"},
	}, d.Fields())
	assert.Equal(t, 3, d.BitCount())

	_, err := NewDocument("", fingerprint.New(8))
	assert.True(t, errors.IsValidation(err))

	_, err = NewDocument("m2", nil)
	assert.True(t, errors.IsCode(err, errors.CodeAbsentFingerprint))
}

func TestDocument_WithStoredCopies(t *testing.T) {
	payload := map[string]string{"smiles": "CCO"}
	d := mustDoc(t, "m1", 1).WithStored(payload)
	payload["smiles"] = "changed"
	assert.Equal(t, "CCO", d.Stored["smiles"])
}

func TestNewSubstructureQuery(t *testing.T) {
	assert.Nil(t, NewSubstructureQuery(nil))

	q := NewSubstructureQuery(fingerprint.MustFromPositions(64, 19, 3, 7))
	require.NotNil(t, q)
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"3", "7", "19"}, q.Terms())
	assert.Equal(t, "+_fp_bits:3 +_fp_bits:7 +_fp_bits:19", q.String())
	for _, c := range q.Clauses {
		assert.Equal(t, Must, c.Occur)
	}

	empty := NewSubstructureQuery(fingerprint.New(64))
	assert.Equal(t, 0, empty.Len())

	var nilQuery *BooleanQuery
	assert.Equal(t, "", nilQuery.String())
	assert.Nil(t, nilQuery.Terms())
}

func TestBooleanQuery_Score(t *testing.T) {
	q := NewSubstructureQuery(fingerprint.MustFromPositions(64, 1, 2))
	assert.InDelta(t, 1.0, q.Score(2), 1e-9)
	assert.InDelta(t, 0.5, q.Score(4), 1e-9)
	assert.Zero(t, q.Score(0))

	empty := NewSubstructureQuery(fingerprint.New(64))
	assert.Equal(t, 1.0, empty.Score(0))
}

func TestSearch_AllQueryBitsRequired(t *testing.T) {
	s := &scanSearcher{docs: []Document{
		mustDoc(t, "exact", 3, 7, 19),
		mustDoc(t, "superset", 1, 3, 7, 19, 40),
		mustDoc(t, "missing-19", 3, 7, 20),
		mustDoc(t, "unrelated", 0, 1),
	}}

	res, err := Search(context.Background(), s, fingerprint.MustFromPositions(64, 3, 7, 19), 10)
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, 2, res.TotalHits)
	assert.Equal(t, "exact", res.Hits[0].ID)
	assert.Equal(t, "superset", res.Hits[1].ID)
	assert.Greater(t, res.Hits[0].Score, res.Hits[1].Score)
}

func TestSearch_UnavailableInputsYieldEmpty(t *testing.T) {
	res, err := Search(context.Background(), nil, fingerprint.New(8), 10)
	assert.NoError(t, err)
	assert.Empty(t, res.Hits)

	res, err = Search(context.Background(), &scanSearcher{}, nil, 10)
	assert.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestSearch_Errors(t *testing.T) {
	_, err := Search(context.Background(), &scanSearcher{}, fingerprint.New(8), 0)
	assert.True(t, errors.IsValidation(err))

	boom := stderrors.New("boom")
	_, err = Search(context.Background(), &scanSearcher{err: boom}, fingerprint.New(8), 5)
	assert.ErrorIs(t, err, boom)
}
