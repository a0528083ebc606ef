package cache

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/vec"
)

// entry - сжатый массив блоков и его адрес (для отсева коллизий хеша ключа)
type entry struct {
	coord vec.Vec2
	seed  uint32
	data  []byte
}

// MemoryChunkCache - ChunkCache поверх ristretto со сжатием zstd.
// Стоимость записи - длина сжатых данных, вытеснение по политике TinyLFU.
type MemoryChunkCache struct {
	cache        *ristretto.Cache
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
	logger       *logging.Logger

	puts, rejected, hits, misses atomic.Uint64
	rawBytes, storedBytes        atomic.Uint64
}

// NewChunkCache создаёт кеш с бюджетом cfg.MaxBytes
func NewChunkCache(cfg Config) (*MemoryChunkCache, error) {
	if cfg.MaxBytes <= 0 {
		return nil, ErrCacheDisabled
	}

	counters := cfg.MaxBytes / 256
	if counters < 10000 {
		counters = 10000
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания ristretto: %w", err)
	}

	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("ошибка создания zstd encoder: %w", err)
	}
	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		rc.Close()
		compressor.Close()
		return nil, fmt.Errorf("ошибка создания zstd decoder: %w", err)
	}

	return &MemoryChunkCache{
		cache:        rc,
		compressor:   compressor,
		decompressor: decompressor,
		logger:       logging.GetComponentLogger("cache"),
	}, nil
}

// Key возвращает ключ записи: xxhash от сида и координат
func Key(coord vec.Vec2, seed uint32) uint64 {
	var buf [20]byte
	binary.LittleEndian.PutUint32(buf[0:], seed)
	binary.LittleEndian.PutUint64(buf[4:], uint64(int64(coord.X)))
	binary.LittleEndian.PutUint64(buf[12:], uint64(int64(coord.Z)))
	return xxhash.Sum64(buf[:])
}

// Put сжимает и сохраняет массив блоков
func (c *MemoryChunkCache) Put(coord vec.Vec2, seed uint32, blocks []byte) bool {
	data := c.compressor.EncodeAll(blocks, make([]byte, 0, len(blocks)/8))
	e := &entry{coord: coord, seed: seed, data: data}

	if !c.cache.Set(Key(coord, seed), e, int64(len(data))) {
		c.rejected.Add(1)
		c.logger.Warn("Кеш отклонил чанк %s (%d байт)", coord, len(data))
		return false
	}
	// Запись в ristretto асинхронна; ждём, чтобы Get сразу её видел
	c.cache.Wait()

	c.puts.Add(1)
	c.rawBytes.Add(uint64(len(blocks)))
	c.storedBytes.Add(uint64(len(data)))
	c.logger.Debug("Чанк %s сохранён: %d -> %d байт", coord, len(blocks), len(data))
	return true
}

// Get возвращает распакованный массив блоков
func (c *MemoryChunkCache) Get(coord vec.Vec2, seed uint32) ([]byte, bool) {
	v, ok := c.cache.Get(Key(coord, seed))
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	e, ok := v.(*entry)
	if !ok || e.coord != coord || e.seed != seed {
		c.misses.Add(1)
		return nil, false
	}

	blocks, err := c.decompressor.DecodeAll(e.data, nil)
	if err != nil {
		c.logger.Error("Ошибка распаковки чанка %s: %v", coord, err)
		c.Delete(coord, seed)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return blocks, true
}

// Delete удаляет запись
func (c *MemoryChunkCache) Delete(coord vec.Vec2, seed uint32) {
	c.cache.Del(Key(coord, seed))
}

// Metrics возвращает метрики кеша
func (c *MemoryChunkCache) Metrics() CacheMetrics {
	m := CacheMetrics{
		Puts:        c.puts.Load(),
		Rejected:    c.rejected.Load(),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		RawBytes:    c.rawBytes.Load(),
		StoredBytes: c.storedBytes.Load(),
		LastUpdate:  time.Now(),
	}
	if total := m.Hits + m.Misses; total > 0 {
		m.HitRatio = float64(m.Hits) / float64(total)
	}
	return m
}

// Close освобождает кеш и кодеки
func (c *MemoryChunkCache) Close() {
	c.cache.Close()
	_ = c.compressor.Close()
	c.decompressor.Close()
}
