package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/blockverse/internal/game"
	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/middleware"
	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world"
	"github.com/annel0/blockverse/internal/world/block"
)

// WorldAccess выполняет функцию на горутине главного цикла
type WorldAccess interface {
	Do(ctx context.Context, fn func(st *game.State)) error
}

// RestServer - отладочный HTTP API клиента
type RestServer struct {
	router  *gin.Engine
	world   WorldAccess
	addr    string
	metrics *ServerMetrics
	logger  *logging.Logger
	srv     *http.Server
}

// Config содержит конфигурацию отладочного сервера
type Config struct {
	Addr        string                // адрес для запуска сервера
	World       WorldAccess           // доступ к главному циклу
	Registry    prometheus.Registerer // реестр метрик HTTP
	Gatherer    prometheus.Gatherer   // источник для /metrics
	Logger      *logging.Logger
	LoopTimeout time.Duration // ожидание ответа главного цикла
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый отладочный сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Addr == "" {
		config.Addr = "127.0.0.1:8088"
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}
	if config.LoopTimeout <= 0 {
		config.LoopTimeout = 2 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())
	router.Use(otelgin.Middleware("debug_api"))

	promMw, err := middleware.NewPrometheusMiddleware("debug_api", config.Registry)
	if err != nil {
		return nil, err
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	rs := &RestServer{
		router:  router,
		world:   config.World,
		addr:    config.Addr,
		metrics: NewServerMetrics(),
		logger:  config.Logger,
	}
	rs.setupRoutes(config.LoopTimeout)
	return rs, nil
}

func (rs *RestServer) setupRoutes(loopWait time.Duration) {
	rs.router.Use(corsMiddleware())

	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.GET("/stats", rs.handleStats)

	w := api.Group("/world")
	w.Use(loopTimeout(loopWait))
	{
		w.GET("", rs.handleWorld)
		w.GET("/block", rs.handleGetBlock)
		w.POST("/block", rs.handleSetBlock)
		w.GET("/chunk", rs.handleChunk)
		w.GET("/verify", rs.handleVerify)
	}
}

// Router возвращает gin.Engine (используется в тестах)
func (rs *RestServer) Router() *gin.Engine {
	return rs.router
}

// Start запускает HTTP сервер и блокируется до его остановки
func (rs *RestServer) Start() error {
	rs.srv = &http.Server{
		Addr:              rs.addr,
		Handler:           rs.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	rs.logger.Info("🌐 Отладочный API слушает %s", rs.addr)
	if err := rs.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown останавливает сервер
func (rs *RestServer) Shutdown(ctx context.Context) error {
	if rs.srv == nil {
		return nil
	}
	return rs.srv.Shutdown(ctx)
}

// do выполняет fn в главном цикле и пишет ошибку ожидания в ответ
func (rs *RestServer) do(c *gin.Context, fn func(st *game.State)) bool {
	if rs.world == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: "Мир не подключен"})
		return false
	}
	err := rs.world.Do(c.Request.Context(), fn)
	switch {
	case err == nil:
		return true
	case errors.Is(err, game.ErrLoopStopped):
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: err.Error()})
	default:
		c.JSON(http.StatusGatewayTimeout, GenericResponse{Message: "Главный цикл не ответил: " + err.Error()})
	}
	return false
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "ok",
		Data:    gin.H{"uptime": rs.metrics.GetUptime()},
	})
}

// handleStats возвращает статистику процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := gin.H{
		"uptime":    rs.metrics.GetUptime(),
		"memory_mb": rs.metrics.GetMemoryUsage(),
		"memory":    rs.metrics.GetDetailedMemoryStats(),
	}
	if cpu, err := rs.metrics.GetCPUUsage(); err == nil {
		stats["cpu_percent"] = cpu
	}
	if used, total, err := rs.metrics.GetSystemMemory(); err == nil {
		stats["system_memory_mb"] = gin.H{"used": used, "total": total}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// WorldInfo - сводка по миру и игроку
type WorldInfo struct {
	Seed             uint32           `json:"seed"`
	ChunkSize        int              `json:"chunk_size"`
	Height           int              `json:"height"`
	CullChunkBorders bool             `json:"cull_chunk_borders"`
	Store            world.StoreStats `json:"store"`
	Tick             uint64           `json:"tick"`
	Spawned          bool             `json:"spawned"`
	Feet             [3]float32       `json:"feet"`
	Grounded         bool             `json:"grounded"`
	Target           *vec.Vec3        `json:"target,omitempty"`
}

func (rs *RestServer) handleWorld(c *gin.Context) {
	var info WorldInfo
	if !rs.do(c, func(st *game.State) {
		d := st.Store.Dims()
		info = WorldInfo{
			Seed:             st.Store.Seed(),
			ChunkSize:        d.Size,
			Height:           d.Height,
			CullChunkBorders: st.Store.CullChunkBorders(),
			Store:            st.Store.Stats(),
			Tick:             st.Tick,
			Spawned:          st.Spawned,
			Feet:             st.Player.Feet(),
			Grounded:         st.Player.Body.Grounded,
		}
		if st.LastPick != nil {
			hit := st.LastPick.Hit
			info.Target = &hit
		}
	}) {
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Состояние мира", Data: info})
}

func intQuery(c *gin.Context, names ...string) ([]int, bool) {
	out := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(c.Query(name))
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный параметр " + name})
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// BlockInfo описывает блок по мировой позиции
type BlockInfo struct {
	Pos      vec.Vec3 `json:"pos"`
	Block    string   `json:"block"`
	ID       block.ID `json:"id"`
	Solid    bool     `json:"solid"`
	Resident bool     `json:"resident"`
}

func (rs *RestServer) handleGetBlock(c *gin.Context) {
	q, ok := intQuery(c, "x", "y", "z")
	if !ok {
		return
	}
	p := vec.Vec3{X: q[0], Y: q[1], Z: q[2]}

	var info BlockInfo
	if !rs.do(c, func(st *game.State) {
		coord, _ := st.Store.AbsoluteBlockToChunk(p)
		id := st.Store.BlockAt(p)
		info = BlockInfo{
			Pos:      p,
			Block:    id.String(),
			ID:       id,
			Solid:    st.Store.Catalog().IsSolid(id),
			Resident: st.Store.IsResident(coord),
		}
	}) {
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Блок получен", Data: info})
}

// SetBlockRequest - запрос на установку блока. Block "empty" удаляет блок.
type SetBlockRequest struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Block string `json:"block" binding:"required"`
}

func (rs *RestServer) handleSetBlock(c *gin.Context) {
	var req SetBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный формат запроса: " + err.Error()})
		return
	}
	id, ok := block.ParseID(req.Block)
	if !ok {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неизвестный блок: " + req.Block})
		return
	}
	p := vec.Vec3{X: req.X, Y: req.Y, Z: req.Z}

	var editErr error
	var top int
	if !rs.do(c, func(st *game.State) {
		if id == block.Empty {
			editErr = st.Store.Remove(p)
		} else {
			editErr = st.Store.Place(p, id)
		}
		coord, _ := st.Store.AbsoluteBlockToChunk(p)
		if chunk, ok := st.Store.Chunk(coord); ok {
			top = chunk.InstanceTop()
		}
	}) {
		return
	}

	switch {
	case editErr == nil:
	case errors.Is(editErr, world.ErrNotResident):
		c.JSON(http.StatusConflict, GenericResponse{Message: editErr.Error()})
		return
	case errors.Is(editErr, world.ErrOutOfWorld), errors.Is(editErr, world.ErrUnknownBlock):
		c.JSON(http.StatusBadRequest, GenericResponse{Message: editErr.Error()})
		return
	default:
		c.JSON(http.StatusInternalServerError, GenericResponse{Message: editErr.Error()})
		return
	}

	rs.logger.Debug("Блок %s установлен в %s через API", id, p)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Блок установлен",
		Data:    gin.H{"pos": p, "block": id.String(), "instance_top": top},
	})
}

// ChunkInfo описывает резидентный чанк
type ChunkInfo struct {
	Coord         vec.Vec2 `json:"coord"`
	Hash          string   `json:"hash"`
	InstanceTop   int      `json:"instance_top"`
	Edited        bool     `json:"edited"`
	ChangeCounter int      `json:"change_counter"`
}

func (rs *RestServer) handleChunk(c *gin.Context) {
	q, ok := intQuery(c, "cx", "cz")
	if !ok {
		return
	}
	coord := vec.Vec2{X: q[0], Z: q[1]}

	var info *ChunkInfo
	if !rs.do(c, func(st *game.State) {
		chunk, ok := st.Store.Chunk(coord)
		if !ok {
			return
		}
		info = &ChunkInfo{
			Coord:         coord,
			Hash:          strconv.FormatUint(chunk.Hash64(), 16),
			InstanceTop:   chunk.InstanceTop(),
			Edited:        chunk.Edited(),
			ChangeCounter: chunk.ChangeCounter,
		}
	}) {
		return
	}
	if info == nil {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "Чанк " + coord.String() + " не загружен"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Чанк получен", Data: info})
}

// handleVerify проверяет инварианты всех резидентных чанков
func (rs *RestServer) handleVerify(c *gin.Context) {
	var err error
	var resident int
	if !rs.do(c, func(st *game.State) {
		resident = st.Store.Len()
		err = st.Store.CheckInvariants()
	}) {
		return
	}
	if err != nil {
		rs.logger.Error("Нарушены инварианты мира: %v", err)
		c.JSON(http.StatusInternalServerError, GenericResponse{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Инварианты выполнены",
		Data:    gin.H{"resident": resident},
	})
}
