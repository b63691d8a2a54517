package cpu

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIterations(t *testing.T) {
	k := New()
	info, err := k.Init()
	require.NoError(t, err)
	assert.Equal(t, 8, info.TSDSize)
	assert.Equal(t, int64(1000), k.Iterations)
}

func TestRegisterFlagsOverridesIterations(t *testing.T) {
	k := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	k.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-n", "5"}))
	assert.Equal(t, int64(5), k.Iterations)
}

func TestRunCountsBatchSizeAndLeavesASink(t *testing.T) {
	k := New()
	k.Iterations = 10
	res := k.Run(nil, 7)
	assert.Equal(t, int64(7), res.Count)
	assert.Equal(t, int64(0), res.Errors)
	// XOR of 1..10 is 11; applied an odd number of times (7) it leaves 11.
	assert.Equal(t, int64(11), k.sink)
}

func TestResultLineReportsIterations(t *testing.T) {
	k := New()
	k.Iterations = 42
	assert.Equal(t, "iterations=42", k.ResultLine())
}
