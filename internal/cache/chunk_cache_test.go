package cache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/blockverse/internal/vec"
)

func blocksFor(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		// Слои как в настоящем чанке: хорошо сжимаются
		b[i] = byte(i/256) % 4
	}
	b[n/2] = seed
	return b
}

func newTestCache(t *testing.T) *MemoryChunkCache {
	t.Helper()
	c, err := NewChunkCache(Config{MaxBytes: 8 << 20})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestChunkCachePutGetDelete(t *testing.T) {
	c := newTestCache(t)
	coord := vec.Vec2{X: -3, Z: 7}
	blocks := blocksFor(16*256*16, 9)

	require.True(t, c.Put(coord, 42, blocks))

	got, ok := c.Get(coord, 42)
	require.True(t, ok)
	assert.True(t, bytes.Equal(blocks, got))

	_, ok = c.Get(coord, 43)
	assert.False(t, ok, "другой сид - другой мир")
	_, ok = c.Get(vec.Vec2{X: 7, Z: -3}, 42)
	assert.False(t, ok)

	c.Delete(coord, 42)
	_, ok = c.Get(coord, 42)
	assert.False(t, ok)

	m := c.Metrics()
	assert.Equal(t, uint64(1), m.Puts)
	assert.Equal(t, uint64(1), m.Hits)
	assert.Equal(t, uint64(3), m.Misses)
	assert.Less(t, m.StoredBytes, m.RawBytes, "данные сжаты")
}

func TestChunkCacheStoresCopy(t *testing.T) {
	c := newTestCache(t)
	blocks := blocksFor(4096, 1)
	require.True(t, c.Put(vec.Vec2{}, 1, blocks))

	blocks[0] = 200
	got, ok := c.Get(vec.Vec2{}, 1)
	require.True(t, ok)
	assert.NotEqual(t, byte(200), got[0])
}

func TestKeyDependsOnAllParts(t *testing.T) {
	base := Key(vec.Vec2{X: 1, Z: 2}, 3)
	assert.Equal(t, base, Key(vec.Vec2{X: 1, Z: 2}, 3))
	assert.NotEqual(t, base, Key(vec.Vec2{X: 2, Z: 1}, 3))
	assert.NotEqual(t, base, Key(vec.Vec2{X: 1, Z: 2}, 4))
	assert.NotEqual(t, base, Key(vec.Vec2{X: -1, Z: 2}, 3))
}

func TestDisabledCache(t *testing.T) {
	_, err := NewChunkCache(Config{})
	assert.ErrorIs(t, err, ErrCacheDisabled)
}
