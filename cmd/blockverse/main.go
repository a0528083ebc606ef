package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/blockverse/internal/api"
	"github.com/annel0/blockverse/internal/cache"
	"github.com/annel0/blockverse/internal/config"
	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/game"
	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/observability"
	"github.com/annel0/blockverse/internal/physics"
	"github.com/annel0/blockverse/internal/player"
	"github.com/annel0/blockverse/internal/render"
	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world"
	"github.com/annel0/blockverse/internal/world/block"
)

const (
	frameStep = time.Second / 60
	// каждые reportEvery кадров пишем сводку и сверяем зеркало рендера
	reportEvery = 300
)

func main() {
	var (
		configPath = flag.String("config", "", "Путь к YAML конфигу (или BLOCKVERSE_CONFIG)")
		walk       = flag.Bool("walk", false, "Скриптовая прогулка: идти вперёд, медленно поворачивая")
		duration   = flag.Duration("duration", 0, "Остановиться через заданное время (0 - до сигнала)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.SetLogDir(cfg.Logging.Dir)
	if err := logging.InitDefaultLogger("blockverse"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logging.Warn("⚠️ %v, используется INFO", err)
	}
	for _, component := range []string{"world", "generator", "game", "api", "render", "cache", "eventbus"} {
		logging.GetComponentLogger(component)
	}
	logging.GetLoggerManager().SetAllLevels(level)
	logging.Default().SetLevel(level)

	logging.Info("🎮 Запуск Blockverse: seed=%d, радиус=%d, чанк %dx%d",
		cfg.World.GetSeed(), cfg.World.GetRenderRadius(), cfg.World.ChunkSize, cfg.World.ChunkHeight)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	// === ТЕЛЕМЕТРИЯ ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			logging.Error("❌ Ошибка инициализации OpenTelemetry: %v", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logging.Warn("Ошибка остановки OpenTelemetry: %v", err)
				}
			}()
		}
	}

	reg := prometheus.DefaultRegisterer
	for name, register := range map[string]func(prometheus.Registerer) error{
		"world":  world.RegisterMetrics,
		"render": render.RegisterMetrics,
		"game":   game.RegisterMetrics,
	} {
		if err := register(reg); err != nil {
			log.Fatalf("❌ Ошибка регистрации метрик %s: %v", name, err)
		}
	}

	// === КАТАЛОГ БЛОКОВ ===
	catalog := block.Default()
	if cfg.World.CatalogFile != "" {
		catalog, err = block.LoadCatalogFile(cfg.World.CatalogFile)
		if err != nil {
			log.Fatalf("❌ Ошибка загрузки каталога блоков: %v", err)
		}
		logging.Info("📦 Каталог блоков загружен из %s", cfg.World.CatalogFile)
	}

	// === ШИНА СОБЫТИЙ ===
	bus := eventbus.NewMemoryBus(1024)
	eventbus.Init(bus)
	defer bus.Close()

	if _, err := eventbus.StartLoggingListener(bus, eventbus.Filter{Sources: []string{world.FeedSource}}); err != nil {
		logging.Warn("Не удалось запустить логирование событий: %v", err)
	}
	exporter, err := eventbus.NewMetricsExporter(bus, reg)
	if err != nil {
		log.Fatalf("❌ Ошибка создания экспортера метрик шины: %v", err)
	}
	exporter.Start(5 * time.Second)
	defer exporter.Stop()

	// === КЕШ ОТРЕДАКТИРОВАННЫХ ЧАНКОВ ===
	var editCache world.EditCache
	chunkCache, err := cache.NewChunkCache(cache.Config{MaxBytes: cfg.Cache.EditedChunksMaxBytes})
	switch {
	case err == nil:
		editCache = chunkCache
		defer chunkCache.Close()
	case errors.Is(err, cache.ErrCacheDisabled):
		logging.Info("Кеш отредактированных чанков отключен: правки теряются при выгрузке")
	default:
		log.Fatalf("❌ Ошибка создания кеша чанков: %v", err)
	}

	// === МИР ===
	dims := world.Dims{Size: cfg.World.ChunkSize, Height: cfg.World.ChunkHeight}
	pool := world.NewGeneratorPool(world.PoolOptions{
		Workers:          cfg.World.GetWorkerCount(),
		RequestCapacity:  cfg.World.RequestCapacity,
		ResponseCapacity: cfg.World.ResponseCapacity,
		Dims:             dims,
	})

	store := world.NewStore(pool, world.StoreOptions{
		Dims:             dims,
		Seed:             cfg.World.GetSeed(),
		Radius:           cfg.World.GetRenderRadius(),
		MaxPickDistance:  cfg.World.MaxPickDistance,
		CullChunkBorders: cfg.World.CullChunkBorders,
		Catalog:          catalog,
		Cache:            editCache,
	})
	mirror := render.NewInstanceMirror(store)
	store.SetFeed(world.MultiFeed{mirror, world.NewBusFeed(bus)})

	controller := player.NewController(mgl32.Vec3{}, player.Config{
		WalkSpeed: cfg.Physics.WalkSpeed,
		JumpSpeed: cfg.Physics.JumpSpeed,
	})
	loop := game.NewLoop(game.Options{
		Store:  store,
		Player: controller,
		Physics: physics.Params{
			Gravity:          cfg.Physics.Gravity,
			TerminalVelocity: cfg.Physics.TerminalVelocity,
		},
		DeadZone:  cfg.World.CenterDeadZone,
		Spawn:     vec.Vec2{},
		Generator: pool,
	})
	defer loop.Stop()

	// === ОТЛАДОЧНЫЙ API ===
	if addr := cfg.Debug.GetHTTPAddr(); addr != "" {
		server, err := api.NewRestServer(api.Config{Addr: addr, World: loop, Registry: reg})
		if err != nil {
			log.Fatalf("❌ Ошибка создания отладочного API: %v", err)
		}
		go func() {
			if err := server.Start(); err != nil {
				logging.Error("❌ Отладочный API остановлен: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logging.Warn("Ошибка остановки отладочного API: %v", err)
			}
		}()
	}

	input := func() player.Input { return player.Input{} }
	if *walk {
		input = scriptedWalk()
		logging.Info("🚶 Включена скриптовая прогулка")
	}

	logging.Info("✅ Игровой цикл запущен (%s на кадр)", frameStep)
	err = loop.Run(ctx, frameStep, input, func(r game.FrameReport) {
		if r.Err != nil {
			logging.Warn("Кадр %d: %v", r.Tick, r.Err)
		}
		if r.Tick%reportEvery != 0 {
			return
		}
		st := store.Stats()
		ms := mirror.Stats()
		logging.Info("📊 Кадр %d: ноги=(%.1f, %.1f, %.1f) центр=%s чанков=%d ожидают=%d инстансов=%d",
			r.Tick, r.Feet.X(), r.Feet.Y(), r.Feet.Z(), r.Center, st.Resident, st.Pending, ms.Instances)
		if err := mirror.Verify(store.Coords()); err != nil {
			logging.Error("❌ Зеркало рендера разошлось с миром: %v", err)
		}
	})
	if err != nil {
		logging.Error("❌ Игровой цикл завершился с ошибкой: %v", err)
	}
	logging.Info("👋 Blockverse остановлен")
}

// scriptedWalk идёт вперёд, описывая большую окружность, и прыгает каждые две секунды
func scriptedWalk() func() player.Input {
	frame := 0
	turn := float32(2 * math.Pi / (60 * 40) / player.MouseSensitivity)
	return func() player.Input {
		frame++
		return player.Input{
			Forward: true,
			Jump:    frame%120 == 0,
			LookDX:  turn,
		}
	}
}
