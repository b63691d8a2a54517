package options

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microharness/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	c := Default()
	assert.Equal(t, 1, c.NumProcs)
	assert.Equal(t, 1, c.NumThreads)
	assert.Equal(t, int64(1000), c.NsPerOpHint)
}

func TestFinalizeRequiresMinSamplesOrDuration(t *testing.T) {
	c := Default()
	_, err := c.Finalize()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfig)
}

func TestFinalizeSingleProcOverridesNumProcsWithWarning(t *testing.T) {
	c := Default()
	c.MinSamples = 100
	c.SingleProc = true
	c.NumProcs = 8

	warning, err := c.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "-1 overrides -P", warning)
	assert.Equal(t, 1, c.NumProcs)
}

func TestFinalizeRejectsNonPositiveProcsOrThreads(t *testing.T) {
	c := Default()
	c.MinSamples = 100
	c.NumProcs = 0
	_, err := c.Finalize()
	assert.ErrorIs(t, err, errors.ErrConfig)

	c2 := Default()
	c2.MinSamples = 100
	c2.NumThreads = 0
	_, err = c2.Finalize()
	assert.ErrorIs(t, err, errors.ErrConfig)
}

func TestFinalizeWarningsImpliesDetailedStats(t *testing.T) {
	c := Default()
	c.MinSamples = 100
	c.Warnings = true
	_, err := c.Finalize()
	require.NoError(t, err)
	assert.True(t, c.DetailedStats)
}

func TestFinalizeAutoBatchSizeFromMinSamples(t *testing.T) {
	c := Default()
	c.MinSamples = 1000
	c.NsPerOpHint = 1000
	_, err := c.Finalize()
	require.NoError(t, err)
	// sample_ns = round(10e9/1000) = 1e7; batch = 1e7/1000 = 10000
	assert.Equal(t, int64(10000), c.BatchSize)
}

func TestFinalizeAutoBatchSizeFromDuration(t *testing.T) {
	c := Default()
	c.DurationMS = 1000
	c.NsPerOpHint = 1000
	_, err := c.Finalize()
	require.NoError(t, err)
	// sample_ns = round(1000*1e6/100) = 1e7; batch = 1e7/1000 = 10000
	assert.Equal(t, int64(10000), c.BatchSize)
}

func TestFinalizeBatchSizeNeverBelowOne(t *testing.T) {
	c := Default()
	c.MinSamples = 1
	c.NsPerOpHint = 1 << 40
	_, err := c.Finalize()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, c.BatchSize, int64(1))
}

func TestRegisterParsesShorthandFlags(t *testing.T) {
	c := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.Register(fs)

	err := fs.Parse([]string{"-P", "4", "-T", "2", "-C", "500", "-S", "-W"})
	require.NoError(t, err)

	assert.Equal(t, 4, c.NumProcs)
	assert.Equal(t, 2, c.NumThreads)
	assert.Equal(t, int64(500), c.MinSamples)
	assert.True(t, c.DetailedStats)
	assert.True(t, c.Warnings)
}

func TestSizeFlagSuffixes(t *testing.T) {
	c := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.Register(fs)

	require.NoError(t, fs.Parse([]string{"-B", "2k"}))
	assert.Equal(t, int64(2*1024), c.BatchSize)
}
