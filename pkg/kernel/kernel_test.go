package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseDefaultsAreNoOps(t *testing.T) {
	var b Base

	assert.NoError(t, b.OptSwitch('x', "arg"))
	assert.NoError(t, b.InitRun())
	assert.Equal(t, int64(0), b.InitWorker(nil))
	assert.Equal(t, int64(0), b.InitBatch(nil))
	assert.Equal(t, int64(0), b.FiniBatch(nil))
	assert.Equal(t, "", b.ResultLine())

	assert.NotPanics(t, func() { b.FiniWorker(nil) })
	assert.NotPanics(t, func() { b.FiniRun() })
	assert.NotPanics(t, func() { b.Fini() })
}
