package cache

import (
	"time"

	"github.com/annel0/blockverse/internal/vec"
)

// ChunkCache хранит массивы блоков отредактированных чанков, выгруженных из окна
// резидентности. Реализует world.EditCache.
//
// Использование:
//
//	c, err := cache.NewChunkCache(cache.Config{MaxBytes: 64 << 20})
//	c.Put(coord, seed, chunk.BlocksSnapshot())
//	blocks, ok := c.Get(coord, seed)
type ChunkCache interface {
	// Put сохраняет копию массива блоков. Возвращает false, если кеш отклонил запись.
	Put(coord vec.Vec2, seed uint32, blocks []byte) bool

	// Get возвращает массив блоков чанка
	Get(coord vec.Vec2, seed uint32) ([]byte, bool)

	// Delete удаляет запись
	Delete(coord vec.Vec2, seed uint32)

	// Metrics возвращает метрики кеша
	Metrics() CacheMetrics

	// Close освобождает ресурсы кеша
	Close()
}

// CacheMetrics содержит метрики кеша
type CacheMetrics struct {
	Puts        uint64  `json:"puts"`
	Rejected    uint64  `json:"rejected"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRatio    float64 `json:"hit_ratio"`
	RawBytes    uint64  `json:"raw_bytes"`
	StoredBytes uint64  `json:"stored_bytes"`

	LastUpdate time.Time `json:"last_update"`
}

// Config - настройки кеша
type Config struct {
	// MaxBytes - бюджет на сжатые данные; 0 отключает кеш
	MaxBytes int64 `yaml:"edited_chunks_max_bytes"`
}

// CacheError представляет ошибку кеша
type CacheError struct {
	Message string
}

func (e *CacheError) Error() string {
	return e.Message
}

// NewCacheError создаёт ошибку кеша
func NewCacheError(message string) *CacheError {
	return &CacheError{Message: message}
}

// ErrCacheDisabled возвращается конструктором при нулевом бюджете
var ErrCacheDisabled = NewCacheError("кеш правок отключён")
