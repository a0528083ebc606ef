package render

import (
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world"
	"github.com/annel0/blockverse/internal/world/block"
)

var testDims = world.Dims{Size: 8, Height: 80}

// inlineGen генерирует чанки синхронно при Drain
type inlineGen struct {
	queue []world.GenRequest
}

func (g *inlineGen) Offer(c vec.Vec2, seed uint32) world.OfferResult {
	g.queue = append(g.queue, world.GenRequest{Coord: c, Seed: seed})
	return world.Queued
}

func (g *inlineGen) Drain() []world.GenResult {
	var out []world.GenResult
	for _, req := range g.queue {
		chunk := world.NewTerrainGenerator(req.Seed, testDims).GenerateChunk(req.Coord)
		out = append(out, world.GenResult{Coord: req.Coord, Seed: req.Seed, Chunk: chunk})
	}
	g.queue = nil
	return out
}

func (g *inlineGen) IsPending(vec.Vec2) bool { return false }
func (g *inlineGen) PendingCount() int       { return len(g.queue) }

func newMirroredStore(t *testing.T, cull bool) (*world.Store, *InstanceMirror) {
	t.Helper()
	s := world.NewStore(&inlineGen{}, world.StoreOptions{
		Dims:             testDims,
		Seed:             42,
		Radius:           1,
		CullChunkBorders: cull,
		Logger:           logging.NewWriterLogger("world", io.Discard, logging.ERROR),
	})
	m := NewInstanceMirror(s)
	s.SetFeed(m)
	return s, m
}

func settle(t *testing.T, s *world.Store, center vec.Vec2) {
	t.Helper()
	require.NoError(t, s.SetCenter(center))
	_, err := s.IngestReady()
	require.NoError(t, err)
	require.Equal(t, 9, s.Len())
}

func TestMirrorTracksLoadsAndEdits(t *testing.T) {
	for _, cull := range []bool{false, true} {
		s, m := newMirroredStore(t, cull)
		settle(t, s, vec.Vec2{})
		require.NoError(t, m.Verify(s.Coords()))

		rng := rand.New(rand.NewSource(3))
		kinds := []block.ID{block.Empty, block.Stone, block.Dirt, block.BirchLog}
		for i := 0; i < 300; i++ {
			p := vec.Vec3{X: rng.Intn(24) - 8, Y: 55 + rng.Intn(20), Z: rng.Intn(24) - 8}
			require.NoError(t, s.Place(p, kinds[rng.Intn(len(kinds))]))
			require.NoError(t, m.Verify(s.Coords()), "правка %d (cull=%v)", i, cull)
		}

		settle(t, s, vec.Vec2{X: 1})
		require.NoError(t, m.Verify(s.Coords()))

		st := m.Stats()
		assert.Equal(t, 9, st.Chunks)
		assert.Greater(t, st.RangeUploads, uint64(0))
		assert.Equal(t, uint64(12), st.FullUploads, "9 чанков и 3 новых после сдвига")
	}
}

func TestRangeUploadsAreSmallerThanFullReupload(t *testing.T) {
	s, m := newMirroredStore(t, false)
	settle(t, s, vec.Vec2{})
	before := m.Stats().UploadedBytes

	top, ok := s.SurfaceY(3, 3)
	require.True(t, ok)
	require.NoError(t, s.Remove(vec.Vec3{X: 3, Y: top, Z: 3}))

	chunk, _ := s.Chunk(vec.Vec2{})
	delta := m.Stats().UploadedBytes - before
	assert.Greater(t, delta, uint64(0))
	assert.Less(t, delta, uint64(chunk.InstanceTop()*InstanceStride))
}

func TestUnloadDropsBuffer(t *testing.T) {
	s, m := newMirroredStore(t, false)
	settle(t, s, vec.Vec2{})

	_, ok := m.Buffer(vec.Vec2{X: -1})
	require.True(t, ok)

	settle(t, s, vec.Vec2{X: 5})
	_, ok = m.Buffer(vec.Vec2{X: -1})
	assert.False(t, ok)
	assert.Equal(t, 9, m.Stats().Chunks)
}
