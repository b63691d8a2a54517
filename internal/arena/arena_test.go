package arena

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundUp128(t *testing.T) {
	assert.Equal(t, 128, RoundUp128(0))
	assert.Equal(t, 128, RoundUp128(1))
	assert.Equal(t, 128, RoundUp128(128))
	assert.Equal(t, 256, RoundUp128(129))
}

func TestCreateThenOpenShareTheSameBackingRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")

	parent, err := Create(path, 64, 2, 2, 32)
	require.NoError(t, err)
	defer parent.Close()

	copy(parent.BarrierBytes()[:8], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, parent.Sync())

	child, err := Open(path, 64, 2, 2, 32)
	require.NoError(t, err)
	defer child.Close()

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, child.BarrierBytes()[:8])
}

func TestTSDForIsDisjointPerWorker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")
	a, err := Create(path, 8, 2, 2, 16)
	require.NoError(t, err)
	defer a.Close()

	tsd00 := a.TSDFor(0, 0)
	tsd01 := a.TSDFor(0, 1)
	tsd10 := a.TSDFor(1, 0)
	require.NotNil(t, tsd00)
	require.NotNil(t, tsd01)
	require.NotNil(t, tsd10)

	tsd00[0] = 0xAB
	assert.NotEqual(t, byte(0xAB), tsd01[0])
	assert.NotEqual(t, byte(0xAB), tsd10[0])
}

func TestTSDForOutOfRangeIsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")
	a, err := Create(path, 8, 1, 1, 16)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.TSDFor(-1, 0))
	assert.Nil(t, a.TSDFor(0, 1))
	assert.Nil(t, a.TSDFor(1, 0))
}

func TestRemoveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")
	a, err := Create(path, 8, 1, 1, 16)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path), "removing an already-removed file is not an error")
}
