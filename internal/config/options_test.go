package config

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extcode/internal/core"
)

func TestBaseDefaults(t *testing.T) {
	o, err := NewOptions()
	require.NoError(t, err)

	assert.Equal(t, []string{
		OptCommand, OptEnvVars, OptTimeout, OptPollDelay,
		OptAllowedReturnCodes, OptFailHard, OptExternalInputFiles, OptExternalOutputFiles,
	}, o.Keys())
	assert.Empty(t, o.Strings(OptCommand))
	assert.Empty(t, o.StringMap(OptEnvVars))
	assert.Equal(t, 0.0, o.Float(OptTimeout))
	assert.Equal(t, DefaultPollDelay, o.Float(OptPollDelay))
	assert.Equal(t, []int{0}, o.Ints(OptAllowedReturnCodes))
	assert.True(t, o.Bool(OptFailHard))
}

func TestSetRejectsUnknownAndBadValues(t *testing.T) {
	o, err := NewOptions()
	require.NoError(t, err)

	cases := []struct {
		name  string
		key   string
		value any
	}{
		{name: "unknown", key: "comand", value: []string{"x"}},
		{name: "negative timeout", key: OptTimeout, value: -1.0},
		{name: "negative poll", key: OptPollDelay, value: -0.5},
		{name: "string timeout", key: OptTimeout, value: "1s"},
		{name: "fractional code", key: OptAllowedReturnCodes, value: []any{1.5}},
		{name: "non-string env", key: OptEnvVars, value: map[string]any{"A": 1}},
		{name: "non-bool fail_hard", key: OptFailHard, value: "yes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := o.Set(tc.key, tc.value)
			var cfgErr *core.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tc.key)
		})
	}

	assert.Equal(t, 0.0, o.Float(OptTimeout), "rejected values must not be stored")
}

func TestSetCoercesJSONValues(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"command": ["solver", "--in", "a.dat"],
		"env_vars": {"OMP_NUM_THREADS": "2"},
		"timeout": 5,
		"poll_delay": 0,
		"allowed_return_codes": [0, 1, 2],
		"fail_hard": false
	}`), &raw))

	o, err := NewOptions()
	require.NoError(t, err)
	require.NoError(t, o.Apply(raw))

	assert.Equal(t, []string{"solver", "--in", "a.dat"}, o.Strings(OptCommand))
	assert.Equal(t, map[string]string{"OMP_NUM_THREADS": "2"}, o.StringMap(OptEnvVars))
	assert.Equal(t, 5.0, o.Float(OptTimeout))
	assert.Equal(t, 0.0, o.Float(OptPollDelay))
	assert.Equal(t, []int{0, 1, 2}, o.Ints(OptAllowedReturnCodes))
	assert.False(t, o.Bool(OptFailHard))
}

func TestSetAcceptsIntSet(t *testing.T) {
	o, err := NewOptions()
	require.NoError(t, err)
	require.NoError(t, o.Set(OptAllowedReturnCodes, map[int]struct{}{4: {}, 0: {}, 2: {}}))
	assert.Equal(t, []int{0, 2, 4}, o.Ints(OptAllowedReturnCodes))
}

func TestDerivedDeclarations(t *testing.T) {
	o, err := NewOptions(func(o *Options) error {
		return o.Declare(Option{Name: "R", Default: 1, Kind: KindFloat, Desc: "Resistance in Ohms"})
	}, func(o *Options) error {
		return o.Declare(Option{Name: "n_in", Default: 1, Kind: KindInt})
	})
	require.NoError(t, err)

	assert.True(t, o.Has("R"))
	assert.Equal(t, 1.0, o.Float("R"))
	assert.Equal(t, 1, o.Int("n_in"))
	require.NoError(t, o.Set("R", 10000))
	assert.Equal(t, 10000.0, o.Float("R"))

	opt, ok := o.Describe("R")
	require.True(t, ok)
	assert.Equal(t, "Resistance in Ohms", opt.Desc)

	_, err = NewOptions(func(o *Options) error {
		return o.Declare(Option{Name: OptCommand, Kind: KindStrings})
	})
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestGetReturnsCopies(t *testing.T) {
	o, err := NewOptions()
	require.NoError(t, err)
	require.NoError(t, o.Set(OptCommand, []string{"a", "b"}))

	v, err := o.Get(OptCommand)
	require.NoError(t, err)
	v.([]string)[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, o.Strings(OptCommand))

	_, err = o.Get("missing")
	assert.Error(t, err)
}

func TestSpecSnapshot(t *testing.T) {
	o, err := NewOptions()
	require.NoError(t, err)
	require.NoError(t, o.Apply(map[string]any{
		OptCommand:             []string{"solver"},
		OptTimeout:             1.5,
		OptPollDelay:           0.25,
		OptExternalInputFiles:  []string{"in.dat"},
		OptExternalOutputFiles: []string{"out.dat"},
	}))

	spec := o.Spec("/work", "out.log", core.StreamMergeStdout)
	require.NoError(t, o.Set(OptCommand, []string{"other"}))

	assert.Equal(t, []string{"solver"}, spec.Command)
	assert.Equal(t, 1500*time.Millisecond, spec.Timeout)
	assert.Equal(t, 250*time.Millisecond, spec.PollDelay)
	assert.Equal(t, "/work", spec.Dir)
	assert.Equal(t, core.StreamTarget("out.log"), spec.Stdout)
	assert.Equal(t, []string{"in.dat"}, spec.Manifest.Inputs)
	assert.Equal(t, []string{"out.dat"}, spec.Manifest.Outputs)
	assert.True(t, spec.FailHard)
	assert.True(t, spec.Accepts(0))
	assert.False(t, spec.Accepts(1))
}

func TestSecondsSaturates(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Seconds(1.5))
	assert.Equal(t, time.Duration(math.MaxInt64), Seconds(1e11))
	assert.Equal(t, time.Duration(math.MaxInt64), Seconds(math.Inf(1)))

	o, err := NewOptions()
	require.NoError(t, err)
	require.NoError(t, o.Apply(map[string]any{
		OptCommand: []string{"solver"},
		OptTimeout: 1e11,
	}))
	spec := o.Spec("", "", "")
	require.NoError(t, spec.Validate())
	assert.Equal(t, 1e11, spec.TimeoutSeconds)
}
