package fingerprint

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

func newTestFactory(t *testing.T, tk Toolkit, structure, query Settings) *Factory {
	t.Helper()
	f, err := NewFactory(tk, NewRegistry(), structure, query)
	require.NoError(t, err)
	return f
}

func TestNewFactory_ValidatesUpFront(t *testing.T) {
	tk := &fakeToolkit{}
	good := DefaultSettings(AlgorithmPattern)

	_, err := NewFactory(nil, nil, good, good)
	assert.Error(t, err)

	_, err = NewFactory(tk, nil, good.WithNumBits(0), good)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidSettings))

	_, err = NewFactory(tk, nil, good, DefaultSettings(AlgorithmMorgan).WithRadius(0))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidSettings))

	_, err = NewFactory(tk, nil, DefaultSettings("unknown"), good)
	assert.True(t, errors.IsCode(err, errors.CodeUnresolvedAlgorithm))
	assert.Zero(t, tk.callCount())
}

func TestFactory_StructureAndQueryUseOwnSettings(t *testing.T) {
	tk := &fakeToolkit{}
	structure := DefaultSettings(AlgorithmTopological).WithNumBits(1024)
	query := structure.WithMaxPath(4)
	f := newTestFactory(t, tk, structure, query)

	s, err := f.CreateStructureFingerprint("CCO", true)
	require.NoError(t, err)
	assert.Equal(t, 1024, s.NumBits())
	assert.Equal(t, []int{1024, DefaultMinPath, DefaultMaxPath}, tk.lastCall().args)

	q, err := f.CreateQueryFingerprint("CCO", true)
	require.NoError(t, err)
	assert.Equal(t, 1024, q.NumBits())
	assert.Equal(t, []int{1024, DefaultMinPath, 4}, tk.lastCall().args)

	assert.True(t, f.StructureSettings().Equal(structure))
	assert.True(t, f.QuerySettings().Equal(query))
	assert.True(t, f.Settings(KindQuery).Equal(query))
}

func TestNewFactory_RejectsQueryOutsideStructureBitSpace(t *testing.T) {
	structure := DefaultSettings(AlgorithmPattern)

	tests := []struct {
		name  string
		query Settings
	}{
		{"shorter query", structure.WithNumBits(1024)},
		{"longer query", structure.WithNumBits(4096)},
		{"other algorithm", DefaultSettings(AlgorithmMorgan)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := &fakeToolkit{}
			f, err := NewFactory(tk, NewRegistry(), structure, tt.query)
			require.Error(t, err)
			assert.Nil(t, f)
			assert.True(t, errors.IsCode(err, errors.CodeIncompatibleSettings))
			assert.Zero(t, tk.callCount())
		})
	}
}

func TestFactory_CheaperQueryStaysWithinStructureBits(t *testing.T) {
	tk := &fakeToolkit{}
	structure := DefaultSettings(AlgorithmPattern).WithNumBits(256)
	f := newTestFactory(t, tk, structure, structure.WithMaxPath(3))

	target, err := f.CreateStructureFingerprint("CCCNO", true)
	require.NoError(t, err)
	q, err := f.CreateQueryFingerprint("CNO", true)
	require.NoError(t, err)

	assert.Equal(t, target.NumBits(), q.NumBits())
	assert.True(t, target.Contains(q))
}

func TestFactory_Deterministic(t *testing.T) {
	f := newTestFactory(t, &fakeToolkit{}, DefaultSettings(AlgorithmPattern).WithNumBits(1024), DefaultSettings(AlgorithmPattern).WithNumBits(1024))

	first, err := f.CreateStructureFingerprint("c1ccccc1O", true)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		_, _ = f.CreateStructureFingerprint("CCN", true)
		again, err := f.CreateStructureFingerprint("c1ccccc1O", true)
		require.NoError(t, err)
		assert.True(t, first.Equal(again))
	}
}

func TestFactory_EquivalentNotationsAgree(t *testing.T) {
	s := NewSettings(AlgorithmPattern, 1024, Unset, Unset, Unset, Unset, Unset)
	f := newTestFactory(t, &fakeToolkit{}, s, s)

	a, err := f.CreateStructureFingerprint("CCO", true)
	require.NoError(t, err)
	b, err := f.CreateStructureFingerprint("OCC", true)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, Encode(a, DefaultDelimiter), Encode(b, DefaultDelimiter))
}

func TestFactory_MoleculeOverloadSkipsParsing(t *testing.T) {
	tk := &fakeToolkit{}
	f := newTestFactory(t, tk, DefaultSettings(AlgorithmTorsion), DefaultSettings(AlgorithmTorsion))

	mol, err := tk.Parse("CCCC", true)
	require.NoError(t, err)
	tk.parseErr = stderrors.New("parse must not be called")

	fromMol, err := f.StructureFingerprintOf(mol)
	require.NoError(t, err)
	queryMol, err := f.QueryFingerprintOf(mol)
	require.NoError(t, err)
	assert.True(t, fromMol.Equal(queryMol))

	_, err = f.Of(KindStructure, nil)
	assert.Error(t, err)
}

func TestFactory_AbsentFingerprint(t *testing.T) {
	tk := &fakeToolkit{absent: true}
	f := newTestFactory(t, tk, DefaultSettings(AlgorithmPattern), DefaultSettings(AlgorithmPattern))

	fp, err := f.CreateStructureFingerprint("CCO", true)
	assert.Nil(t, fp)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAbsentFingerprint)
	assert.True(t, errors.IsCode(err, errors.CodeAbsentFingerprint))
}

func TestFactory_ParseErrorPropagatedUnmodified(t *testing.T) {
	parseErr := stderrors.New("unbalanced ring closure")
	tk := &fakeToolkit{parseErr: parseErr}
	f := newTestFactory(t, tk, DefaultSettings(AlgorithmPattern), DefaultSettings(AlgorithmPattern))

	_, err := f.CreateQueryFingerprint("C1CC", false)
	assert.Same(t, parseErr, err)
}

func TestFactory_ConcurrentUse(t *testing.T) {
	f := newTestFactory(t, &fakeToolkit{}, DefaultSettings(AlgorithmMorgan), DefaultSettings(AlgorithmMorgan))
	want, err := f.CreateStructureFingerprint("CCNCCO", true)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.CreateStructureFingerprint("CCNCCO", true)
			assert.NoError(t, err)
			assert.True(t, want.Equal(got))
		}()
	}
	wg.Wait()
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("query")
	require.NoError(t, err)
	assert.Equal(t, KindQuery, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindStructure, k)

	_, err = ParseKind("both")
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, "query", KindQuery.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
