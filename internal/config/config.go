package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/v3/cpu"
	"gopkg.in/yaml.v3"
)

// Значения по умолчанию
const (
	DefaultChunkSize       = 16
	DefaultChunkHeight     = 256
	DefaultRenderRadius    = 4
	DefaultSeed            = 42
	DefaultMaxPickDistance = 8
	DefaultQueueCapacity   = 1000
	DefaultCacheBytes      = 64 << 20
)

// Config корневая структура конфигурации клиента
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Physics   PhysicsConfig   `yaml:"physics"`
	Cache     CacheConfig     `yaml:"cache"`
	Debug     DebugConfig     `yaml:"debug"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type WorldConfig struct {
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkHeight      int    `yaml:"chunk_height"`
	RenderRadius     int    `yaml:"render_radius"`
	WorkerCount      int    `yaml:"worker_count"`
	Seed             uint32 `yaml:"seed"`
	MaxPickDistance  int    `yaml:"max_pick_distance"`
	CenterDeadZone   int    `yaml:"center_dead_zone"`
	CullChunkBorders bool   `yaml:"cull_chunk_borders"`
	RequestCapacity  int    `yaml:"request_capacity"`
	ResponseCapacity int    `yaml:"response_capacity"`
	CatalogFile      string `yaml:"catalog_file"`
}

type PhysicsConfig struct {
	Gravity          float32 `yaml:"gravity"`
	TerminalVelocity float32 `yaml:"terminal_velocity"`
	JumpSpeed        float32 `yaml:"jump_speed"`
	WalkSpeed        float32 `yaml:"walk_speed"`
}

type CacheConfig struct {
	EditedChunksMaxBytes int64 `yaml:"edited_chunks_max_bytes"`
}

type DebugConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	Metrics  bool   `yaml:"metrics"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		World: WorldConfig{
			ChunkSize:        DefaultChunkSize,
			ChunkHeight:      DefaultChunkHeight,
			MaxPickDistance:  DefaultMaxPickDistance,
			RequestCapacity:  DefaultQueueCapacity,
			ResponseCapacity: DefaultQueueCapacity,
		},
		Physics: PhysicsConfig{
			Gravity:          32,
			TerminalVelocity: 78.4,
			JumpSpeed:        9,
			WalkSpeed:        4.3,
		},
		Cache:     CacheConfig{EditedChunksMaxBytes: DefaultCacheBytes},
		Debug:     DebugConfig{Metrics: true},
		Telemetry: TelemetryConfig{ServiceName: "blockverse"},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// GetSeed возвращает сид мира с приоритетом: config -> env -> default
func (w *WorldConfig) GetSeed() uint32 {
	return uint32(getIntWithEnvFallback(int(w.Seed), "BLOCKVERSE_SEED", DefaultSeed))
}

// GetRenderRadius возвращает радиус окна резидентности в чанках
func (w *WorldConfig) GetRenderRadius() int {
	return getIntWithEnvFallback(w.RenderRadius, "BLOCKVERSE_RENDER_RADIUS", DefaultRenderRadius)
}

// GetWorkerCount возвращает число воркеров генерации; 0 - по числу логических CPU
func (w *WorldConfig) GetWorkerCount() int {
	if w.WorkerCount > 0 {
		return w.WorkerCount
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// GetHTTPAddr возвращает адрес отладочного API; пустая строка отключает его
func (d *DebugConfig) GetHTTPAddr() string {
	if d.HTTPAddr != "" {
		return d.HTTPAddr
	}
	return os.Getenv("BLOCKVERSE_DEBUG_ADDR")
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configVal int, envVar string, defaultVal int) int {
	// Если значение задано в конфиге и больше 0, используем его
	if configVal > 0 {
		return configVal
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v >= 0 {
			return v
		}
	}

	return defaultVal
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	w := c.World
	var errs []error
	if w.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("world.chunk_size должен быть > 0, получено %d", w.ChunkSize))
	}
	if w.ChunkHeight <= 0 {
		errs = append(errs, fmt.Errorf("world.chunk_height должен быть > 0, получено %d", w.ChunkHeight))
	}
	if w.RenderRadius < 0 {
		errs = append(errs, fmt.Errorf("world.render_radius не может быть отрицательным"))
	}
	if w.MaxPickDistance <= 0 {
		errs = append(errs, fmt.Errorf("world.max_pick_distance должен быть > 0"))
	}
	if w.CenterDeadZone < 0 || w.CenterDeadZone > w.GetRenderRadius() {
		errs = append(errs, fmt.Errorf("world.center_dead_zone должен быть в [0, render_radius], получено %d", w.CenterDeadZone))
	}
	if w.RequestCapacity <= 0 || w.ResponseCapacity <= 0 {
		errs = append(errs, fmt.Errorf("ёмкости очередей генерации должны быть > 0"))
	}
	if c.Physics.Gravity < 0 || c.Physics.TerminalVelocity <= 0 {
		errs = append(errs, fmt.Errorf("physics: gravity >= 0 и terminal_velocity > 0"))
	}
	if c.Cache.EditedChunksMaxBytes < 0 {
		errs = append(errs, fmt.Errorf("cache.edited_chunks_max_bytes не может быть отрицательным"))
	}
	return errors.Join(errs...)
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV BLOCKVERSE_CONFIG; если и он
// не задан, возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("BLOCKVERSE_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан - использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения конфига %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфига %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("некорректный конфиг %s: %w", path, err)
	}
	return cfg, nil
}
