package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microharness/internal/errors"
)

func TestNowNanosIsMonotonicallyNondecreasing(t *testing.T) {
	a := NowNanos()
	b := NowNanos()
	assert.GreaterOrEqual(t, b, a)
}

func TestNowMicrosIsCloseToNowNanosScaled(t *testing.T) {
	ns := NowNanos()
	us := NowMicros()
	assert.InDelta(t, ns/1000, us, 1000, "both reads happen within a millisecond of each other")
}

func TestCalibrateOverheadIsNonNegative(t *testing.T) {
	overhead := CalibrateOverhead()
	assert.GreaterOrEqual(t, overhead, int64(0))
}

func TestCalibrateResolutionIsPositive(t *testing.T) {
	res := CalibrateResolution()
	assert.Greater(t, res, int64(0))
}

func TestValidateHzEnvEmptyIsOK(t *testing.T) {
	require.NoError(t, ValidateHzEnv(""))
}

func TestValidateHzEnvRejectsGarbage(t *testing.T) {
	err := ValidateHzEnv("not-a-number")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfig)
}

func TestValidateHzEnvRejectsNonPositive(t *testing.T) {
	err := ValidateHzEnv("0")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfig)
}

func TestValidateHzEnvAcceptsPositive(t *testing.T) {
	require.NoError(t, ValidateHzEnv("1000000000"))
}
