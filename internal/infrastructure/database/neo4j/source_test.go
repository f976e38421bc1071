package neo4j

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/molecule"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

var rowKeys = []string{"id", "structure", "props"}

func row(id, smiles string, props map[string]any) *neo4j.Record {
	return record(rowKeys, id, smiles, props)
}

func TestNewMoleculeSource_Queries(t *testing.T) {
	d, _, _ := newMockDriver(t)
	src, err := NewMoleculeSource(d, SourceConfig{}, nil)
	require.NoError(t, err)

	assert.Equal(t,
		"MATCH (c:Chemical) WHERE c.id > $after AND c.smiles IS NOT NULL RETURN c.id AS id, c.smiles AS structure, properties(c) AS props ORDER BY c.id LIMIT $limit",
		src.pageQuery)
	assert.Equal(t, "MATCH (c:Chemical) WHERE c.smiles IS NOT NULL RETURN count(c) AS n", src.countQuery)
}

func TestNewMoleculeSource_RejectsUnsafeIdentifiers(t *testing.T) {
	d, _, _ := newMockDriver(t)
	tests := []SourceConfig{
		{Label: "Chemical) DETACH DELETE (c"},
		{IDProperty: "id`"},
		{StoredProperties: []string{"name", "1bad"}},
	}
	for _, cfg := range tests {
		_, err := NewMoleculeSource(d, cfg, nil)
		assert.True(t, errors.IsValidation(err), "config %+v", cfg)
	}
}

func TestMoleculeSource_ScanPages(t *testing.T) {
	d, _, tx := newMockDriver(t)
	src, err := NewMoleculeSource(d, SourceConfig{StoredProperties: []string{"name", "mw"}}, nil)
	require.NoError(t, err)

	tx.On("Run", src.pageQuery, map[string]any{"after": "", "limit": int64(2)}).Return(&sliceResult{records: []*neo4j.Record{
		row("m1", "CCO", map[string]any{"name": "ethanol", "mw": 46.07, "other": "x"}),
		row("m2", "c1ccccc1", map[string]any{}),
	}}, nil).Once()
	tx.On("Run", src.pageQuery, map[string]any{"after": "m2", "limit": int64(2)}).Return(&sliceResult{records: []*neo4j.Record{
		row("m3", "CC(=O)O", nil),
	}}, nil).Once()

	var got []molecule.Record
	err = src.Scan(context.Background(), 2, func(page []molecule.Record) error {
		got = append(got, page...)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, molecule.Record{ID: "m1", Structure: "CCO", Properties: map[string]string{"name": "ethanol", "mw": "46.07"}}, got[0])
	assert.Nil(t, got[1].Properties)
	assert.Equal(t, "m3", got[2].ID)
	tx.AssertExpectations(t)
}

func TestMoleculeSource_ScanStopsOnCallbackError(t *testing.T) {
	d, _, tx := newMockDriver(t)
	src, err := NewMoleculeSource(d, SourceConfig{}, nil)
	require.NoError(t, err)

	tx.On("Run", src.pageQuery, mock.Anything).Return(&sliceResult{records: []*neo4j.Record{
		row("m1", "C", nil),
	}}, nil).Once()

	stop := stderrors.New("stop")
	err = src.Scan(context.Background(), 1, func([]molecule.Record) error { return stop })
	assert.ErrorIs(t, err, stop)
	tx.AssertExpectations(t)
}

func TestMoleculeSource_ScanEmptyAndInvalid(t *testing.T) {
	d, _, tx := newMockDriver(t)
	src, err := NewMoleculeSource(d, SourceConfig{}, nil)
	require.NoError(t, err)

	tx.On("Run", src.pageQuery, mock.Anything).Return(&sliceResult{}, nil).Once()
	calls := 0
	require.NoError(t, src.Scan(context.Background(), 10, func([]molecule.Record) error { calls++; return nil }))
	assert.Zero(t, calls)

	assert.True(t, errors.IsValidation(src.Scan(context.Background(), 0, nil)))
}

func TestMoleculeSource_Get(t *testing.T) {
	d, _, tx := newMockDriver(t)
	src, err := NewMoleculeSource(d, SourceConfig{}, nil)
	require.NoError(t, err)

	tx.On("Run", src.getQuery, map[string]any{"id": "m1"}).
		Return(&sliceResult{records: []*neo4j.Record{row("m1", "CCO", nil)}}, nil)
	tx.On("Run", src.getQuery, map[string]any{"id": "nope"}).Return(&sliceResult{}, nil)

	rec, err := src.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "CCO", rec.Structure)

	_, err = src.Get(context.Background(), "nope")
	assert.True(t, errors.IsNotFound(err))
}

func TestMoleculeSource_Count(t *testing.T) {
	d, _, tx := newMockDriver(t)
	src, err := NewMoleculeSource(d, SourceConfig{}, nil)
	require.NoError(t, err)

	tx.On("Run", src.countQuery, map[string]any(nil)).
		Return(&sliceResult{records: []*neo4j.Record{record([]string{"n"}, int64(1234))}}, nil)

	n, err := src.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n)
}

func TestMoleculeSource_BadRow(t *testing.T) {
	d, _, tx := newMockDriver(t)
	src, err := NewMoleculeSource(d, SourceConfig{}, nil)
	require.NoError(t, err)

	tx.On("Run", src.getQuery, mock.Anything).
		Return(&sliceResult{records: []*neo4j.Record{record(rowKeys, int64(5), "C", nil)}}, nil)
	_, err = src.Get(context.Background(), "5")
	assert.Error(t, err)
}

//Personal.AI order the ending
