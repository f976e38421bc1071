package fingerprint

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

func TestRegistry_Parse(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		input string
		want  AlgorithmID
		found bool
	}{
		{"pattern", AlgorithmPattern, true},
		{"morgan", AlgorithmMorgan, true},
		{"MORGAN", AlgorithmMorgan, true},
		{"Torsion", AlgorithmTorsion, true},
		{"topological", AlgorithmTopological, true},
		{"ecfp", "", false},
		{"", "", false},
		{" morgan", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			a := r.Parse(tt.input)
			if !tt.found {
				assert.Nil(t, a)
				return
			}
			require.NotNil(t, a)
			assert.Equal(t, tt.want, a.ID())
		})
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	_, err := NewRegistry().Resolve("maccs")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnresolvedAlgorithm))
}

func TestRegistry_AllIsCopy(t *testing.T) {
	r := NewRegistry()
	all := r.All()
	require.Len(t, all, 4)
	all[0] = nil
	assert.NotNil(t, r.All()[0])
}

func TestAlgorithm_Specification(t *testing.T) {
	r := NewRegistry()
	raw := RawParameters{NumBits: 1024, Radius: 3, TorsionPathLength: 6, MinPath: 2, MaxPath: 5, LayerFlags: 7}

	tests := []struct {
		alg  AlgorithmID
		want Settings
	}{
		{AlgorithmPattern, NewSettings(AlgorithmPattern, 1024, Unset, Unset, 2, 5, 7)},
		{AlgorithmMorgan, NewSettings(AlgorithmMorgan, 1024, 3, Unset, Unset, Unset, Unset)},
		{AlgorithmTorsion, NewSettings(AlgorithmTorsion, 1024, Unset, 6, Unset, Unset, Unset)},
		{AlgorithmTopological, NewSettings(AlgorithmTopological, 1024, Unset, Unset, 2, 5, Unset)},
	}
	for _, tt := range tests {
		t.Run(string(tt.alg), func(t *testing.T) {
			a, ok := r.Get(tt.alg)
			require.True(t, ok)
			got := a.Specification(raw)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.NoError(t, a.Validate(&got))
		})
	}
}

func TestAlgorithm_SpecificationInjectsDefaults(t *testing.T) {
	r := NewRegistry()
	for _, a := range r.All() {
		s := a.Specification(NoParameters())
		assert.Equal(t, DefaultNumBits, s.NumBits(), a.ID())
		assert.NoError(t, a.Validate(&s), a.ID())
	}
}

func TestAlgorithm_Validate(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name    string
		alg     AlgorithmID
		s       *Settings
		wantErr bool
	}{
		{"nil settings", AlgorithmMorgan, nil, true},
		{"pattern zero bits", AlgorithmPattern, ptr(NewSettings(AlgorithmPattern, 0, Unset, Unset, Unset, Unset, Unset)), true},
		{"pattern negative bits", AlgorithmPattern, ptr(NewSettings(AlgorithmPattern, -8, Unset, Unset, Unset, Unset, Unset)), true},
		{"morgan zero bits", AlgorithmMorgan, ptr(NewSettings(AlgorithmMorgan, 0, 2, Unset, Unset, Unset, Unset)), true},
		{"torsion zero bits", AlgorithmTorsion, ptr(NewSettings(AlgorithmTorsion, 0, Unset, 4, Unset, Unset, Unset)), true},
		{"topological zero bits", AlgorithmTopological, ptr(NewSettings(AlgorithmTopological, 0, Unset, Unset, 1, 7, Unset)), true},
		{"morgan zero radius", AlgorithmMorgan, ptr(NewSettings(AlgorithmMorgan, 1024, 0, Unset, Unset, Unset, Unset)), true},
		{"morgan missing radius", AlgorithmMorgan, ptr(NewSettings(AlgorithmMorgan, 1024, Unset, Unset, Unset, Unset, Unset)), true},
		{"morgan ok", AlgorithmMorgan, ptr(NewSettings(AlgorithmMorgan, 1024, 1, Unset, Unset, Unset, Unset)), false},
		{"torsion zero path", AlgorithmTorsion, ptr(NewSettings(AlgorithmTorsion, 1024, Unset, 0, Unset, Unset, Unset)), true},
		{"torsion omitted path", AlgorithmTorsion, ptr(NewSettings(AlgorithmTorsion, 1024, Unset, Unset, Unset, Unset, Unset)), false},
		{"torsion with radius", AlgorithmTorsion, ptr(NewSettings(AlgorithmTorsion, 1024, 2, 4, Unset, Unset, Unset)), true},
		{"pattern inverted paths", AlgorithmPattern, ptr(NewSettings(AlgorithmPattern, 1024, Unset, Unset, 5, 2, Unset)), true},
		{"pattern negative flags", AlgorithmPattern, ptr(NewSettings(AlgorithmPattern, 1024, Unset, Unset, Unset, Unset, -3)), true},
		{"topological zero min", AlgorithmTopological, ptr(NewSettings(AlgorithmTopological, 1024, Unset, Unset, 0, 7, Unset)), true},
		{"wrong algorithm", AlgorithmMorgan, ptr(DefaultSettings(AlgorithmPattern)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := r.Get(tt.alg)
			err := a.Validate(tt.s)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeInvalidSettings))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAlgorithm_CalculateRejectsBeforeToolkit(t *testing.T) {
	tk := &fakeToolkit{}
	a, _ := NewRegistry().Get(AlgorithmMorgan)
	mol, err := tk.Parse("CCO", true)
	require.NoError(t, err)

	_, err = a.Calculate(tk, mol, DefaultSettings(AlgorithmMorgan).WithRadius(0))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidSettings))
	assert.Zero(t, tk.callCount())
}

func TestAlgorithm_CalculatePassesRelevantParameters(t *testing.T) {
	tk := &fakeToolkit{}
	r := NewRegistry()
	mol, _ := tk.Parse("CCN", true)

	tests := []struct {
		alg    AlgorithmID
		s      Settings
		method string
		args   []int
	}{
		{AlgorithmPattern, DefaultSettings(AlgorithmPattern).WithNumBits(1024), "pattern", []int{1024, Unset, Unset, Unset}},
		{AlgorithmMorgan, DefaultSettings(AlgorithmMorgan).WithRadius(3), "morgan", []int{DefaultNumBits, 3}},
		{AlgorithmTorsion, NewSettings(AlgorithmTorsion, 256, Unset, Unset, Unset, Unset, Unset), "torsion", []int{256, DefaultTorsionPathLength}},
		{AlgorithmTopological, DefaultSettings(AlgorithmTopological), "topological", []int{DefaultNumBits, DefaultMinPath, DefaultMaxPath}},
	}
	for _, tt := range tests {
		t.Run(string(tt.alg), func(t *testing.T) {
			a, _ := r.Get(tt.alg)
			v, err := a.Calculate(tk, mol, tt.s)
			require.NoError(t, err)
			require.NotNil(t, v)
			call := tk.lastCall()
			assert.Equal(t, tt.method, call.method)
			assert.Equal(t, tt.args, call.args)
		})
	}
}

func TestRegistry_PerAlgorithmLocks(t *testing.T) {
	run := func(reg *Registry, alg AlgorithmID) int32 {
		tk := &fakeToolkit{slowdown: func() { time.Sleep(2 * time.Millisecond) }}
		a, _ := reg.Get(alg)
		mol, _ := tk.Parse("CCCC", true)
		s := a.Specification(NoParameters())

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = a.Calculate(tk, mol, s)
			}()
		}
		wg.Wait()
		return tk.overlaps
	}

	var mu sync.Mutex
	locked := NewRegistry(WithoutLocks(), WithLock(AlgorithmMorgan, &mu))
	assert.Zero(t, run(locked, AlgorithmMorgan), "locked algorithm must not overlap")
	assert.Zero(t, run(NewRegistry(), AlgorithmPattern))
	assert.Zero(t, run(NewRegistry(), AlgorithmTopological))
}

func TestRegistry_Specify(t *testing.T) {
	r := NewRegistry()

	s, err := r.Specify("Morgan", RawParameters{NumBits: 512, Radius: Unset, TorsionPathLength: 9, MinPath: Unset, MaxPath: Unset, LayerFlags: Unset})
	require.NoError(t, err)
	assert.Equal(t, 512, s.NumBits())
	assert.Equal(t, DefaultMorganRadius, s.Radius())
	assert.Equal(t, Unset, s.TorsionPathLength(), "irrelevant parameters are dropped")

	_, err = r.Specify("morgan", RawParameters{NumBits: 0, Radius: 2, TorsionPathLength: Unset, MinPath: Unset, MaxPath: Unset, LayerFlags: Unset})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidSettings))

	_, err = r.Specify("nope", NoParameters())
	assert.True(t, errors.IsCode(err, errors.CodeUnresolvedAlgorithm))
}

func TestRegistry_ValidateUnknownAlgorithm(t *testing.T) {
	r := NewRegistry()
	s := DefaultSettings("maccs")
	assert.True(t, errors.IsCode(r.Validate(&s), errors.CodeUnresolvedAlgorithm))
	assert.True(t, errors.IsCode(r.Validate(nil), errors.CodeInvalidSettings))
}

func TestDefaultRegistry_Shared(t *testing.T) {
	assert.Same(t, DefaultRegistry(), DefaultRegistry())
}

func ptr(s Settings) *Settings { return &s }
