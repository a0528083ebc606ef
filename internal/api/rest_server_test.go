package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/blockverse/internal/game"
	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/player"
	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world"
	"github.com/annel0/blockverse/internal/world/block"
)

var testDims = world.Dims{Size: 8, Height: 32}

// flatGen синхронно выдаёт плоские чанки из камня до y=10
type flatGen struct {
	queue []world.GenRequest
}

func (g *flatGen) Offer(c vec.Vec2, seed uint32) world.OfferResult {
	g.queue = append(g.queue, world.GenRequest{Coord: c, Seed: seed})
	return world.Queued
}

func (g *flatGen) Drain() []world.GenResult {
	var out []world.GenResult
	for _, req := range g.queue {
		c := world.NewChunk(req.Coord, testDims)
		for x := 0; x < testDims.Size; x++ {
			for z := 0; z < testDims.Size; z++ {
				for y := 0; y <= 10; y++ {
					c.Set(x, y, z, block.Stone)
				}
			}
		}
		c.BuildVisibleInstances()
		out = append(out, world.GenResult{Coord: req.Coord, Seed: req.Seed, Chunk: c})
	}
	g.queue = nil
	return out
}

func (g *flatGen) IsPending(vec.Vec2) bool { return false }
func (g *flatGen) PendingCount() int       { return len(g.queue) }
func (g *flatGen) Close()                  {}

// directWorld выполняет запросы сразу, без главного цикла
type directWorld struct {
	st  *game.State
	err error
}

func (d *directWorld) Do(_ context.Context, fn func(st *game.State)) error {
	if d.err != nil {
		return d.err
	}
	fn(d.st)
	return nil
}

func quiet(component string) *logging.Logger {
	return logging.NewWriterLogger(component, io.Discard, logging.ERROR)
}

func newFlatStore(t *testing.T) *world.Store {
	t.Helper()
	store := world.NewStore(&flatGen{}, world.StoreOptions{
		Dims:   testDims,
		Seed:   7,
		Radius: 1,
		Logger: quiet("world"),
	})
	require.NoError(t, store.SetCenter(vec.Vec2{}))
	n, err := store.IngestReady()
	require.NoError(t, err)
	require.Equal(t, 9, n)
	return store
}

func newTestServer(t *testing.T, w WorldAccess) *RestServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	rs, err := NewRestServer(Config{
		World:    w,
		Registry: reg,
		Gatherer: reg,
		Logger:   quiet("api"),
	})
	require.NoError(t, err)
	return rs
}

func newDirectServer(t *testing.T) (*RestServer, *directWorld) {
	t.Helper()
	st := &game.State{
		Store:  newFlatStore(t),
		Player: player.NewController(mgl32.Vec3{0.5, 11, 0.5}, player.Config{}),
	}
	w := &directWorld{st: st}
	return newTestServer(t, w), w
}

func doRequest(t *testing.T, rs *RestServer, method, target string, body interface{}) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	rs.Router().ServeHTTP(rec, req)

	var resp GenericResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func dataMap(t *testing.T, resp GenericResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data должен быть объектом: %#v", resp.Data)
	return m
}

func TestHealth(t *testing.T) {
	rs, _ := newDirectServer(t)

	rec, resp := doRequest(t, rs, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestWorldInfo(t *testing.T) {
	rs, _ := newDirectServer(t)

	rec, resp := doRequest(t, rs, http.MethodGet, "/api/world", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, resp)
	assert.EqualValues(t, 7, data["seed"])
	assert.EqualValues(t, 8, data["chunk_size"])
	assert.EqualValues(t, 32, data["height"])
	assert.Equal(t, false, data["cull_chunk_borders"])

	store, ok := data["store"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 9, store["resident"])
	assert.EqualValues(t, 1, store["radius"])
}

func TestGetBlock(t *testing.T) {
	rs, _ := newDirectServer(t)

	_, resp := doRequest(t, rs, http.MethodGet, "/api/world/block?x=1&y=10&z=-3", nil)
	data := dataMap(t, resp)
	assert.Equal(t, "stone", data["block"])
	assert.Equal(t, true, data["solid"])
	assert.Equal(t, true, data["resident"])

	_, resp = doRequest(t, rs, http.MethodGet, "/api/world/block?x=1&y=11&z=-3", nil)
	assert.Equal(t, "empty", dataMap(t, resp)["block"])

	_, resp = doRequest(t, rs, http.MethodGet, "/api/world/block?x=100&y=5&z=0", nil)
	data = dataMap(t, resp)
	assert.Equal(t, "empty", data["block"])
	assert.Equal(t, false, data["resident"])

	rec, _ := doRequest(t, rs, http.MethodGet, "/api/world/block?x=1&y=abc&z=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetBlock(t *testing.T) {
	rs, w := newDirectServer(t)

	rec, resp := doRequest(t, rs, http.MethodPost, "/api/world/block",
		SetBlockRequest{X: 2, Y: 11, Z: 2, Block: "birch_plank"})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	assert.Equal(t, block.BirchPlank, w.st.Store.BlockAt(vec.Vec3{X: 2, Y: 11, Z: 2}))

	chunk, ok := w.st.Store.Chunk(vec.Vec2{})
	require.True(t, ok)
	assert.EqualValues(t, chunk.InstanceTop(), dataMap(t, resp)["instance_top"])

	_, resp = doRequest(t, rs, http.MethodGet, "/api/world/chunk?cx=0&cz=0", nil)
	data := dataMap(t, resp)
	assert.Equal(t, true, data["edited"])
	assert.EqualValues(t, 1, data["change_counter"])

	rec, _ = doRequest(t, rs, http.MethodPost, "/api/world/block",
		SetBlockRequest{X: 2, Y: 11, Z: 2, Block: "empty"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, block.Empty, w.st.Store.BlockAt(vec.Vec3{X: 2, Y: 11, Z: 2}))

	rec, _ = doRequest(t, rs, http.MethodGet, "/api/world/verify", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetBlockErrors(t *testing.T) {
	rs, _ := newDirectServer(t)

	cases := []struct {
		name string
		req  SetBlockRequest
		code int
	}{
		{"неизвестный блок", SetBlockRequest{X: 0, Y: 11, Z: 0, Block: "lava"}, http.StatusBadRequest},
		{"ниже мира", SetBlockRequest{X: 0, Y: -1, Z: 0, Block: "dirt"}, http.StatusBadRequest},
		{"выше мира", SetBlockRequest{X: 0, Y: 32, Z: 0, Block: "dirt"}, http.StatusBadRequest},
		{"чанк не загружен", SetBlockRequest{X: 500, Y: 11, Z: 0, Block: "dirt"}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := doRequest(t, rs, http.MethodPost, "/api/world/block", tc.req)
			assert.Equal(t, tc.code, rec.Code)
			assert.False(t, resp.Success)
		})
	}

	rec, _ := doRequest(t, rs, http.MethodPost, "/api/world/block", map[string]int{"x": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChunkInfo(t *testing.T) {
	rs, w := newDirectServer(t)

	rec, resp := doRequest(t, rs, http.MethodGet, "/api/world/chunk?cx=-1&cz=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, resp)

	chunk, ok := w.st.Store.Chunk(vec.Vec2{X: -1, Z: 1})
	require.True(t, ok)
	assert.EqualValues(t, chunk.InstanceTop(), data["instance_top"])
	assert.Equal(t, false, data["edited"])
	assert.NotEmpty(t, data["hash"])

	rec, _ = doRequest(t, rs, http.MethodGet, "/api/world/chunk?cx=5&cz=5", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoppedLoopIsUnavailable(t *testing.T) {
	rs, w := newDirectServer(t)
	w.err = game.ErrLoopStopped

	rec, _ := doRequest(t, rs, http.MethodGet, "/api/world", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	w.err = context.DeadlineExceeded
	rec, _ = doRequest(t, rs, http.MethodGet, "/api/world", nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rs, _ := newDirectServer(t)
	doRequest(t, rs, http.MethodGet, "/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	rs.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}

func TestStats(t *testing.T) {
	rs, _ := newDirectServer(t)

	rec, resp := doRequest(t, rs, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, resp)
	assert.Contains(t, data, "uptime")
	assert.Contains(t, data, "memory")
}

func TestServerWithRunningLoop(t *testing.T) {
	store := world.NewStore(&flatGen{}, world.StoreOptions{
		Dims:   testDims,
		Radius: 1,
		Logger: quiet("world"),
	})
	loop := game.NewLoop(game.Options{Store: store, Logger: quiet("game")})
	rs := newTestServer(t, loop)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx, time.Millisecond, func() player.Input { return player.Input{} }, nil)
	}()
	defer func() {
		cancel()
		<-done
		loop.Stop()
	}()

	spawned := false
	for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline); time.Sleep(10 * time.Millisecond) {
		rec, resp := doRequest(t, rs, http.MethodGet, "/api/world", nil)
		if rec.Code != http.StatusOK {
			continue
		}
		if data, ok := resp.Data.(map[string]interface{}); ok && data["spawned"] == true {
			spawned = true
			break
		}
	}
	require.True(t, spawned, "игрок должен появиться")

	rec, _ := doRequest(t, rs, http.MethodPost, "/api/world/block",
		SetBlockRequest{X: 3, Y: 11, Z: 3, Block: "dirt"})
	assert.Equal(t, http.StatusOK, rec.Code)
}
