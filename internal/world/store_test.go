package world

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world/block"
)

// syncGen - синхронный генератор: чанки создаются при Drain
type syncGen struct {
	dims     Dims
	capacity int // 0 - без ограничения
	closed   bool
	queue    []GenRequest
	pending  map[vec.Vec2]struct{}
	failOnce map[vec.Vec2]bool
	dupes    map[vec.Vec2]bool
	offered  []vec.Vec2
	build    func(coord vec.Vec2, dims Dims) *Chunk
}

func newSyncGen(dims Dims) *syncGen {
	return &syncGen{
		dims:     dims,
		pending:  make(map[vec.Vec2]struct{}),
		failOnce: make(map[vec.Vec2]bool),
		dupes:    make(map[vec.Vec2]bool),
	}
}

func (g *syncGen) Offer(coord vec.Vec2, seed uint32) OfferResult {
	if g.closed {
		return PoolClosed
	}
	if _, ok := g.pending[coord]; ok {
		return AlreadyPending
	}
	if g.capacity > 0 && len(g.queue) >= g.capacity {
		return QueueFull
	}
	g.pending[coord] = struct{}{}
	g.queue = append(g.queue, GenRequest{Coord: coord, Seed: seed})
	g.offered = append(g.offered, coord)
	return Queued
}

func (g *syncGen) Drain() []GenResult {
	var out []GenResult
	for _, req := range g.queue {
		delete(g.pending, req.Coord)
		if g.failOnce[req.Coord] {
			delete(g.failOnce, req.Coord)
			out = append(out, GenResult{Coord: req.Coord, Seed: req.Seed, Err: ErrGeneration})
			continue
		}
		var c *Chunk
		if g.build != nil {
			c = g.build(req.Coord, g.dims)
		} else {
			c = NewTerrainGenerator(req.Seed, g.dims).GenerateChunk(req.Coord)
		}
		out = append(out, GenResult{Coord: req.Coord, Seed: req.Seed, Chunk: c})
		if g.dupes[req.Coord] {
			delete(g.dupes, req.Coord)
			out = append(out, GenResult{Coord: req.Coord, Seed: req.Seed, Chunk: solidChunk(req.Coord, g.dims, block.TestBlock)})
		}
	}
	g.queue = g.queue[:0]
	return out
}

func (g *syncGen) IsPending(coord vec.Vec2) bool {
	_, ok := g.pending[coord]
	return ok
}

func (g *syncGen) PendingCount() int { return len(g.pending) }

// recorder запоминает события рендер-фида
type recorder struct {
	events []Event
}

func (r *recorder) Notify(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.GetType() == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() { r.events = nil }

// mapCache - EditCache в памяти для тестов
type mapCache map[vec.Vec2][]byte

func (m mapCache) Put(c vec.Vec2, seed uint32, b []byte) bool {
	m[c] = append([]byte(nil), b...)
	return true
}

func (m mapCache) Get(c vec.Vec2, seed uint32) ([]byte, bool) {
	b, ok := m[c]
	return b, ok
}

func (m mapCache) Delete(c vec.Vec2, seed uint32) { delete(m, c) }

func newTestStore(gen ChunkGenerator, radius int, feed RenderFeed) *Store {
	return NewStore(gen, StoreOptions{
		Dims:   smallDims,
		Seed:   42,
		Radius: radius,
		Feed:   feed,
		Logger: quietLogger(),
	})
}

func window(center vec.Vec2, r int) []vec.Vec2 {
	var out []vec.Vec2
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			out = append(out, center.Add(vec.Vec2{X: dx, Z: dz}))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func ingestAll(t *testing.T, s *Store) {
	t.Helper()
	for i := 0; i < 100 && (s.Stats().Inflight > 0 || s.Stats().Backlog > 0); i++ {
		_, err := s.IngestReady()
		require.NoError(t, err)
	}
}

func TestAbsoluteBlockToChunk(t *testing.T) {
	s := NewStore(newSyncGen(DefaultDims), StoreOptions{Logger: quietLogger()})
	cases := []struct {
		in    vec.Vec3
		coord vec.Vec2
		local vec.Vec3
	}{
		{vec.Vec3{X: 0, Y: 5, Z: 0}, vec.Vec2{}, vec.Vec3{Y: 5}},
		{vec.Vec3{X: 15, Y: 0, Z: 16}, vec.Vec2{X: 0, Z: 1}, vec.Vec3{X: 15}},
		{vec.Vec3{X: -1, Y: 5, Z: -17}, vec.Vec2{X: -1, Z: -2}, vec.Vec3{X: 15, Y: 5, Z: 15}},
		{vec.Vec3{X: -16, Y: 1, Z: -32}, vec.Vec2{X: -1, Z: -2}, vec.Vec3{Y: 1}},
	}
	for _, tc := range cases {
		coord, local := s.AbsoluteBlockToChunk(tc.in)
		assert.Equal(t, tc.coord, coord, "позиция %s", tc.in)
		assert.Equal(t, tc.local, local, "позиция %s", tc.in)
	}
}

func TestResidencyWindowMoves(t *testing.T) {
	gen := newSyncGen(smallDims)
	rec := &recorder{}
	s := newTestStore(gen, 2, rec)

	require.NoError(t, s.SetCenter(vec.Vec2{}))
	ingestAll(t, s)
	assert.Equal(t, 25, s.Len())
	assert.Equal(t, window(vec.Vec2{}, 2), s.Coords())
	assert.Len(t, rec.ofType(EventTypeChunkLoaded), 25)
	require.NoError(t, s.CheckInvariants())

	rec.reset()
	require.NoError(t, s.SetCenter(vec.Vec2{X: 1}))
	assert.Equal(t, 20, s.Len(), "чанки x=-2 выгружаются сразу")
	unloaded := rec.ofType(EventTypeChunkUnloaded)
	require.Len(t, unloaded, 5)
	for _, ev := range unloaded {
		assert.Equal(t, -2, ev.ChunkCoord().X)
	}

	ingestAll(t, s)
	assert.Equal(t, 25, s.Len())
	assert.Equal(t, window(vec.Vec2{X: 1}, 2), s.Coords())
	for z := -2; z <= 2; z++ {
		assert.True(t, s.IsResident(vec.Vec2{X: 3, Z: z}))
		assert.False(t, s.IsResident(vec.Vec2{X: -2, Z: z}))
	}
}

func TestSetCenterIsIdempotent(t *testing.T) {
	gen := newSyncGen(smallDims)
	s := newTestStore(gen, 1, nil)

	require.NoError(t, s.SetCenter(vec.Vec2{X: 4, Z: 4}))
	require.NoError(t, s.SetCenter(vec.Vec2{X: 4, Z: 4}))
	assert.Len(t, gen.offered, 9, "повторный центр не порождает запросов")

	ingestAll(t, s)
	require.NoError(t, s.SetCenter(vec.Vec2{X: 4, Z: 4}))
	assert.Len(t, gen.offered, 9)
}

func TestBacklogIsNearestFirstAndRespectsQueueCapacity(t *testing.T) {
	gen := newSyncGen(smallDims)
	gen.capacity = 3
	s := newTestStore(gen, 2, nil)

	require.NoError(t, s.SetCenter(vec.Vec2{}))
	require.Len(t, gen.offered, 3)
	assert.Equal(t, vec.Vec2{}, gen.offered[0], "первым запрашивается центр")
	for _, c := range gen.offered[1:] {
		assert.Equal(t, 1, c.DistanceSq(vec.Vec2{}))
	}
	assert.Equal(t, 22, s.Stats().Backlog)

	ingestAll(t, s)
	assert.Equal(t, 25, s.Len())
	assert.Equal(t, 0, s.Stats().Backlog)
}

func TestIngestDropsResponsesOutsideWindow(t *testing.T) {
	gen := newSyncGen(smallDims)
	s := newTestStore(gen, 0, nil)

	require.NoError(t, s.SetCenter(vec.Vec2{}))
	require.NoError(t, s.SetCenter(vec.Vec2{X: 10, Z: 10}))

	ingestAll(t, s)
	assert.Equal(t, []vec.Vec2{{X: 10, Z: 10}}, s.Coords())
	assert.Equal(t, 1, s.Stats().Dropped)
}

func TestDuplicateResponseReplacesChunk(t *testing.T) {
	gen := newSyncGen(smallDims)
	gen.dupes[vec.Vec2{}] = true
	rec := &recorder{}
	s := newTestStore(gen, 0, rec)

	require.NoError(t, s.SetCenter(vec.Vec2{}))
	n, err := s.IngestReady()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Len())

	c, ok := s.Chunk(vec.Vec2{})
	require.True(t, ok)
	assert.Equal(t, block.TestBlock, c.Get(0, 0, 0), "побеждает последний ответ")

	types := make([]EventType, 0, len(rec.events))
	for _, ev := range rec.events {
		types = append(types, ev.GetType())
	}
	assert.Equal(t, []EventType{EventTypeChunkLoaded, EventTypeChunkUnloaded, EventTypeChunkLoaded}, types)
}

func TestFailedGenerationIsRetried(t *testing.T) {
	gen := newSyncGen(smallDims)
	gen.failOnce[vec.Vec2{}] = true
	s := newTestStore(gen, 0, nil)

	require.NoError(t, s.SetCenter(vec.Vec2{}))
	n, err := s.IngestReady()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, gen.IsPending(vec.Vec2{}), "координата запрошена повторно")

	ingestAll(t, s)
	assert.True(t, s.IsResident(vec.Vec2{}))
}

func TestClosedGeneratorSurfacesChannelClosed(t *testing.T) {
	gen := newSyncGen(smallDims)
	gen.closed = true
	s := newTestStore(gen, 1, nil)

	err := s.SetCenter(vec.Vec2{})
	assert.True(t, errors.Is(err, ErrChannelClosed))
}

func TestBlockAtAndSurface(t *testing.T) {
	gen := newSyncGen(smallDims)
	s := newTestStore(gen, 0, nil)

	assert.Equal(t, block.Empty, s.BlockAt(vec.Vec3{X: 1, Y: 1, Z: 1}), "незагруженный чанк читается как Empty")
	_, ok := s.SurfaceY(1, 1)
	assert.False(t, ok)

	require.NoError(t, s.SetCenter(vec.Vec2{}))
	ingestAll(t, s)

	assert.Equal(t, block.UnderStone, s.BlockAt(vec.Vec3{X: 1, Y: 0, Z: 1}))
	assert.Equal(t, block.Empty, s.BlockAt(vec.Vec3{X: 1, Y: -1, Z: 1}))
	assert.Equal(t, block.Empty, s.BlockAt(vec.Vec3{X: 1, Y: smallDims.Height, Z: 1}))

	y, ok := s.SurfaceY(1, 1)
	require.True(t, ok)
	assert.True(t, s.IsSolidAt(vec.Vec3{X: 1, Y: y, Z: 1}))
	assert.False(t, s.IsSolidAt(vec.Vec3{X: 1, Y: y + 1, Z: 1}))
}

func TestEditedChunkRestoredFromCache(t *testing.T) {
	gen := newSyncGen(smallDims)
	cache := mapCache{}
	s := NewStore(gen, StoreOptions{Dims: smallDims, Seed: 42, Radius: 0, Cache: cache, Logger: quietLogger()})

	require.NoError(t, s.SetCenter(vec.Vec2{}))
	ingestAll(t, s)

	p := vec.Vec3{X: 2, Y: 75, Z: 2}
	require.NoError(t, s.Place(p, block.BirchPlank))

	require.NoError(t, s.SetCenter(vec.Vec2{X: 5}))
	assert.Contains(t, cache, vec.Vec2{}, "отредактированный чанк сохранён при выгрузке")
	ingestAll(t, s)
	assert.NotContains(t, cache, vec.Vec2{X: 5}, "нетронутые чанки в кеш не попадают")

	offeredBefore := len(gen.offered)
	require.NoError(t, s.SetCenter(vec.Vec2{}))
	assert.Equal(t, offeredBefore, len(gen.offered), "чанк восстановлен без генерации")
	assert.Equal(t, block.BirchPlank, s.BlockAt(p))
	assert.Equal(t, 1, s.Stats().Restored)
	assert.NotContains(t, cache, vec.Vec2{})
	require.NoError(t, s.CheckInvariants())
}

func TestStoreWithRealPool(t *testing.T) {
	p := newTestPool(t, 3, 16)
	s := NewStore(p, StoreOptions{Dims: smallDims, Seed: 42, Radius: 2, Logger: quietLogger()})

	require.NoError(t, s.SetCenter(vec.Vec2{}))
	require.Eventually(t, func() bool {
		if _, err := s.IngestReady(); err != nil {
			return false
		}
		return s.Len() == 25
	}, 20*time.Second, 2*time.Millisecond)
	assert.Equal(t, window(vec.Vec2{}, 2), s.Coords())

	require.NoError(t, s.SetCenter(vec.Vec2{X: 1}))
	require.Eventually(t, func() bool {
		if _, err := s.IngestReady(); err != nil {
			return false
		}
		return s.Len() == 25 && s.Stats().Inflight == 0
	}, 20*time.Second, 2*time.Millisecond)
	assert.Equal(t, window(vec.Vec2{X: 1}, 2), s.Coords())
	require.NoError(t, s.CheckInvariants())
}

func TestCullChunkBordersHidesSharedFaces(t *testing.T) {
	d := Dims{Size: 4, Height: 4}
	gen := newSyncGen(d)
	gen.build = func(coord vec.Vec2, dims Dims) *Chunk { return solidChunk(coord, dims, block.Stone) }
	rec := &recorder{}
	s := NewStore(gen, StoreOptions{Dims: d, Radius: 1, CullChunkBorders: true, Feed: rec, Logger: quietLogger()})

	require.NoError(t, s.SetCenter(vec.Vec2{}))
	ingestAll(t, s)
	require.Equal(t, 9, s.Len())
	require.NoError(t, s.CheckInvariants())

	center, _ := s.Chunk(vec.Vec2{})
	// У центрального чанка все боковые соседи загружены: видны только верх и низ
	assert.Equal(t, 2*16, center.InstanceTop())

	// Выгрузка соседа открывает грань
	require.NoError(t, s.SetCenter(vec.Vec2{X: 1}))
	require.NoError(t, s.CheckInvariants())
	assert.NotEmpty(t, rec.ofType(EventTypeInstancesChanged))
}
