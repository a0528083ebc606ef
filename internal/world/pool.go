package world

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/vec"
)

// DefaultQueueCapacity - ёмкость каналов запросов и ответов по умолчанию
const DefaultQueueCapacity = 1000

// GenRequest - запрос на генерацию чанка
type GenRequest struct {
	Coord vec.Vec2
	Seed  uint32
}

// GenResult - ответ воркера. При панике Chunk == nil, Err оборачивает ErrGeneration.
type GenResult struct {
	Coord    vec.Vec2
	Seed     uint32
	Chunk    *Chunk
	Err      error
	Duration time.Duration
}

// OfferResult - итог неблокирующей постановки в очередь
type OfferResult int

const (
	Queued OfferResult = iota
	AlreadyPending
	QueueFull
	PoolClosed
)

func (r OfferResult) String() string {
	switch r {
	case Queued:
		return "queued"
	case AlreadyPending:
		return "already_pending"
	case QueueFull:
		return "queue_full"
	case PoolClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PoolOptions настраивает пул генерации
type PoolOptions struct {
	Workers          int
	RequestCapacity  int
	ResponseCapacity int
	Dims             Dims
	Logger           *logging.Logger
	Tracer           trace.Tracer
}

// GeneratorPool - фиксированное число воркеров, общие ограниченные каналы запросов и ответов
// и множество pending, отсекающее повторные запросы.
type GeneratorPool struct {
	dims      Dims
	requests  chan GenRequest
	responses chan GenResult

	mu      sync.Mutex
	pending map[vec.Vec2]struct{}

	closeMu   sync.RWMutex
	closed    bool
	quit      chan struct{}
	closeOnce sync.Once

	wg       sync.WaitGroup
	restarts int
	logger   *logging.Logger
	tracer   trace.Tracer

	// generate подменяется в тестах для проверки обработки паник
	generate func(g *TerrainGenerator, coord vec.Vec2) *Chunk
}

// NewGeneratorPool создаёт пул и запускает воркеры
func NewGeneratorPool(opts PoolOptions) *GeneratorPool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.RequestCapacity <= 0 {
		opts.RequestCapacity = DefaultQueueCapacity
	}
	if opts.ResponseCapacity <= 0 {
		opts.ResponseCapacity = DefaultQueueCapacity
	}
	if opts.Dims == (Dims{}) {
		opts.Dims = DefaultDims
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetGeneratorLogger()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/annel0/blockverse/internal/world")
	}

	p := &GeneratorPool{
		dims:      opts.Dims,
		requests:  make(chan GenRequest, opts.RequestCapacity),
		responses: make(chan GenResult, opts.ResponseCapacity),
		pending:   make(map[vec.Vec2]struct{}),
		quit:      make(chan struct{}),
		logger:    opts.Logger,
		tracer:    opts.Tracer,
		generate: func(g *TerrainGenerator, coord vec.Vec2) *Chunk {
			return g.GenerateChunk(coord)
		},
	}

	p.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go p.worker(i)
	}
	p.logger.Info("Пул генерации запущен: воркеров=%d, очередь=%d/%d", opts.Workers, opts.RequestCapacity, opts.ResponseCapacity)
	return p
}

// reserve добавляет координату в pending, если её там нет
func (p *GeneratorPool) reserve(coord vec.Vec2) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[coord]; ok {
		return false
	}
	p.pending[coord] = struct{}{}
	pendingGauge.Set(float64(len(p.pending)))
	return true
}

func (p *GeneratorPool) release(coord vec.Vec2) {
	p.mu.Lock()
	delete(p.pending, coord)
	pendingGauge.Set(float64(len(p.pending)))
	p.mu.Unlock()
}

// Request ставит координату в очередь. Возвращает false, если она уже ожидает генерации
// или пул закрыт. Блокируется, пока в очереди нет места; Close прерывает ожидание.
func (p *GeneratorPool) Request(coord vec.Vec2, seed uint32) bool {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return false
	}
	if !p.reserve(coord) {
		return false
	}
	// Канал запросов закрывается только под closeMu.Lock, поэтому отправка под RLock безопасна
	select {
	case p.requests <- GenRequest{Coord: coord, Seed: seed}:
		return true
	case <-p.quit:
		p.release(coord)
		return false
	}
}

// Offer - неблокирующий вариант Request. При заполненной очереди координата
// не остаётся в pending.
func (p *GeneratorPool) Offer(coord vec.Vec2, seed uint32) OfferResult {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return PoolClosed
	}
	if !p.reserve(coord) {
		return AlreadyPending
	}
	select {
	case p.requests <- GenRequest{Coord: coord, Seed: seed}:
		return Queued
	default:
		p.release(coord)
		return QueueFull
	}
}

// Drain забирает все готовые ответы без блокировки
func (p *GeneratorPool) Drain() []GenResult {
	var out []GenResult
	for {
		select {
		case res := <-p.responses:
			out = append(out, res)
		default:
			return out
		}
	}
}

// IsPending сообщает, ожидает ли координата генерации
func (p *GeneratorPool) IsPending(coord vec.Vec2) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[coord]
	return ok
}

// PendingCount возвращает размер множества pending
func (p *GeneratorPool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Restarts возвращает число перезапущенных после паники воркеров
func (p *GeneratorPool) Restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

// Close закрывает канал запросов, дожидается завершения воркеров и отбрасывает
// оставшиеся ответы. Повторный вызов ничего не делает.
func (p *GeneratorPool) Close() {
	// Сначала будим Request, ждущие места в очереди: они держат closeMu.RLock
	p.closeOnce.Do(func() { close(p.quit) })

	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.requests)
	p.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	// Воркеры могут быть заблокированы на полном канале ответов, поэтому читаем его до конца
	dropped := 0
	for {
		select {
		case <-p.responses:
			dropped++
		case <-done:
			dropped += len(p.Drain())
			p.logger.Info("Пул генерации остановлен, отброшено ответов: %d", dropped)
			return
		}
	}
}

func (p *GeneratorPool) worker(id int) {
	defer p.wg.Done()
	generators := make(map[uint32]*TerrainGenerator)

	for req := range p.requests {
		gen, ok := generators[req.Seed]
		if !ok {
			gen = NewTerrainGenerator(req.Seed, p.dims)
			generators[req.Seed] = gen
		}

		if !p.process(id, gen, req) {
			// Упавший воркер завершается, его место занимает новый
			p.mu.Lock()
			p.restarts++
			p.mu.Unlock()
			p.wg.Add(1)
			go p.worker(id)
			return
		}
	}
	p.logger.Debug("Воркер %d завершён: канал запросов закрыт", id)
}

// process генерирует один чанк. Возвращает false, если генерация завершилась паникой.
func (p *GeneratorPool) process(id int, gen *TerrainGenerator, req GenRequest) (ok bool) {
	_, span := p.tracer.Start(context.Background(), "world.generate_chunk",
		trace.WithAttributes(
			attribute.Int("chunk.x", req.Coord.X),
			attribute.Int("chunk.z", req.Coord.Z),
			attribute.Int64("world.seed", int64(req.Seed)),
			attribute.Int("worker.id", id),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("%w: чанк %s: %v", ErrGeneration, req.Coord, r)
		span.RecordError(err)
		span.SetStatus(codes.Error, "panic")
		generationFailures.Inc()
		p.logger.Error("Воркер %d упал при генерации %s: %v\n%s", id, req.Coord, r, debug.Stack())

		p.release(req.Coord)
		p.responses <- GenResult{Coord: req.Coord, Seed: req.Seed, Err: err, Duration: time.Since(start)}
		ok = false
	}()

	chunk := p.generate(gen, req.Coord)
	elapsed := time.Since(start)
	generationSeconds.Observe(elapsed.Seconds())
	chunksGenerated.Inc()
	span.SetAttributes(attribute.Int("chunk.instances", chunk.InstanceTop()))

	p.release(req.Coord)
	p.responses <- GenResult{Coord: req.Coord, Seed: req.Seed, Chunk: chunk, Duration: elapsed}
	return true
}
