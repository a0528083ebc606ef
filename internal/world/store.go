package world

import (
	"fmt"
	"sort"

	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world/block"
)

// DefaultMaxRetries - сколько раз перезапрашивается чанк после паники воркера
const DefaultMaxRetries = 3

// ChunkGenerator - фоновый источник чанков. Реализуется GeneratorPool.
type ChunkGenerator interface {
	Offer(coord vec.Vec2, seed uint32) OfferResult
	Drain() []GenResult
	IsPending(coord vec.Vec2) bool
	PendingCount() int
}

// EditCache хранит массивы блоков выгруженных отредактированных чанков
type EditCache interface {
	Put(coord vec.Vec2, seed uint32, blocks []byte) bool
	Get(coord vec.Vec2, seed uint32) ([]byte, bool)
	Delete(coord vec.Vec2, seed uint32)
}

// StoreOptions настраивает хранилище мира
type StoreOptions struct {
	Dims            Dims
	Seed            uint32
	Radius          int
	MaxPickDistance int
	MaxRetries      int
	// CullChunkBorders включает учёт соседних загруженных чанков при расчёте видимости
	// граничных клеток. По умолчанию соседи за границей чанка считаются пустыми.
	CullChunkBorders bool
	Catalog          *block.Catalog
	Feed             RenderFeed
	Cache            EditCache
	Logger           *logging.Logger
}

// StoreStats - снимок состояния хранилища для отладки
type StoreStats struct {
	Center   vec.Vec2 `json:"center"`
	Radius   int      `json:"radius"`
	Resident int      `json:"resident"`
	Inflight int      `json:"inflight"`
	Backlog  int      `json:"backlog"`
	Pending  int      `json:"pending"`
	Restored int      `json:"restored"`
	Dropped  int      `json:"dropped"`
}

// Store - отображение координат чанков в загруженные чанки и окно резидентности
// вокруг наблюдателя. Принадлежит главному циклу и не синхронизируется.
type Store struct {
	dims    Dims
	seed    uint32
	radius  int
	opts    StoreOptions
	catalog *block.Catalog
	gen     ChunkGenerator
	feed    RenderFeed
	cache   EditCache
	logger  *logging.Logger

	chunks   map[vec.Vec2]*Chunk
	center   vec.Vec2
	centered bool

	inflight map[vec.Vec2]struct{}
	backlog  []vec.Vec2
	retries  map[vec.Vec2]int

	restored int
	dropped  int
}

// NewStore создаёт хранилище поверх генератора
func NewStore(gen ChunkGenerator, opts StoreOptions) *Store {
	if opts.Dims == (Dims{}) {
		opts.Dims = DefaultDims
	}
	if opts.Radius < 0 {
		opts.Radius = 0
	}
	if opts.MaxPickDistance <= 0 {
		opts.MaxPickDistance = DefaultMaxPickDistance
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Catalog == nil {
		opts.Catalog = block.Default()
	}
	if opts.Feed == nil {
		opts.Feed = NopFeed{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetWorldLogger()
	}

	return &Store{
		dims:     opts.Dims,
		seed:     opts.Seed,
		radius:   opts.Radius,
		opts:     opts,
		catalog:  opts.Catalog,
		gen:      gen,
		feed:     opts.Feed,
		cache:    opts.Cache,
		logger:   opts.Logger,
		chunks:   make(map[vec.Vec2]*Chunk),
		inflight: make(map[vec.Vec2]struct{}),
		retries:  make(map[vec.Vec2]int),
	}
}

// SetFeed заменяет получателя событий рендера
func (s *Store) SetFeed(feed RenderFeed) {
	if feed == nil {
		feed = NopFeed{}
	}
	s.feed = feed
}

func (s *Store) Dims() Dims              { return s.dims }
func (s *Store) Seed() uint32            { return s.seed }
func (s *Store) Radius() int             { return s.radius }
func (s *Store) Catalog() *block.Catalog { return s.catalog }
func (s *Store) Center() vec.Vec2        { return s.center }
func (s *Store) Len() int                { return len(s.chunks) }
func (s *Store) CullChunkBorders() bool  { return s.opts.CullChunkBorders }
func (s *Store) MaxPickDistance() int    { return s.opts.MaxPickDistance }

// IsResident сообщает, загружен ли чанк
func (s *Store) IsResident(c vec.Vec2) bool {
	_, ok := s.chunks[c]
	return ok
}

// Chunk возвращает загруженный чанк
func (s *Store) Chunk(c vec.Vec2) (*Chunk, bool) {
	chunk, ok := s.chunks[c]
	return chunk, ok
}

// Coords возвращает координаты загруженных чанков в детерминированном порядке
func (s *Store) Coords() []vec.Vec2 {
	out := make([]vec.Vec2, 0, len(s.chunks))
	for c := range s.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// InWindow проверяет, что координата входит в окно резидентности
func (s *Store) InWindow(c vec.Vec2) bool {
	return s.centered && c.ChebyshevDistance(s.center) <= s.radius
}

// Stats возвращает снимок состояния
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Center:   s.center,
		Radius:   s.radius,
		Resident: len(s.chunks),
		Inflight: len(s.inflight),
		Backlog:  len(s.backlog),
		Pending:  s.gen.PendingCount(),
		Restored: s.restored,
		Dropped:  s.dropped,
	}
}

// AbsoluteBlockToChunk переводит мировую позицию в координаты чанка и локальную клетку
// (деление с округлением вниз, локальные x и z в [0,S))
func (s *Store) AbsoluteBlockToChunk(p vec.Vec3) (vec.Vec2, vec.Vec3) {
	cx, lx := floorDivMod(p.X, s.dims.Size)
	cz, lz := floorDivMod(p.Z, s.dims.Size)
	return vec.Vec2{X: cx, Z: cz}, vec.Vec3{X: lx, Y: p.Y, Z: lz}
}

func floorDivMod(a, b int) (q, r int) {
	q = a / b
	r = a % b
	if r < 0 {
		r += b
		q--
	}
	return q, r
}

// BlockAt возвращает блок по мировой позиции. Незагруженные чанки и позиции
// выше или ниже мира читаются как Empty.
func (s *Store) BlockAt(p vec.Vec3) block.ID {
	if p.Y < 0 || p.Y >= s.dims.Height {
		return block.Empty
	}
	coord, local := s.AbsoluteBlockToChunk(p)
	chunk, ok := s.chunks[coord]
	if !ok {
		return block.Empty
	}
	return chunk.Get(local.X, local.Y, local.Z)
}

// IsSolidAt сообщает, твёрдый ли блок в позиции
func (s *Store) IsSolidAt(p vec.Vec3) bool {
	return s.catalog.IsSolid(s.BlockAt(p))
}

// SurfaceY возвращает высоту верхнего твёрдого блока загруженной колонны
func (s *Store) SurfaceY(x, z int) (int, bool) {
	coord, local := s.AbsoluteBlockToChunk(vec.Vec3{X: x, Z: z})
	chunk, ok := s.chunks[coord]
	if !ok {
		return 0, false
	}
	for y := s.dims.Height - 1; y >= 0; y-- {
		if s.catalog.IsSolid(chunk.Get(local.X, y, local.Z)) {
			return y, true
		}
	}
	return -1, true
}

// SetCenter сдвигает окно резидентности. Первый вызов всегда выполняет согласование.
func (s *Store) SetCenter(c vec.Vec2) error {
	if s.centered && c == s.center {
		return nil
	}
	old := s.center
	s.center = c
	s.centered = true
	s.reconcile()
	s.logger.Debug("Центр мира %s -> %s: загружено=%d, в очереди=%d", old, c, len(s.chunks), len(s.backlog))
	return s.pump()
}

// reconcile выгружает чанки вне окна и строит очередь недостающих координат (ближние первыми)
func (s *Store) reconcile() {
	for _, c := range s.Coords() {
		if !s.InWindow(c) {
			s.evict(c)
		}
	}
	for c := range s.retries {
		if !s.InWindow(c) {
			delete(s.retries, c)
		}
	}

	s.backlog = s.backlog[:0]
	for dx := -s.radius; dx <= s.radius; dx++ {
		for dz := -s.radius; dz <= s.radius; dz++ {
			c := s.center.Add(vec.Vec2{X: dx, Z: dz})
			if _, ok := s.chunks[c]; ok {
				continue
			}
			if _, ok := s.inflight[c]; ok {
				continue
			}
			if s.restore(c) {
				continue
			}
			s.backlog = append(s.backlog, c)
		}
	}
	s.sortBacklog()
	residentGauge.Set(float64(len(s.chunks)))
}

func (s *Store) sortBacklog() {
	center := s.center
	sort.SliceStable(s.backlog, func(i, j int) bool {
		di, dj := s.backlog[i].DistanceSq(center), s.backlog[j].DistanceSq(center)
		if di != dj {
			return di < dj
		}
		return s.backlog[i].Less(s.backlog[j])
	})
}

// pump отправляет очередь генератору, пока он принимает запросы. Не блокируется.
func (s *Store) pump() error {
	sent := 0
	for sent < len(s.backlog) {
		c := s.backlog[sent]
		switch s.gen.Offer(c, s.seed) {
		case Queued, AlreadyPending:
			s.inflight[c] = struct{}{}
			sent++
		case QueueFull:
			s.backlog = s.backlog[sent:]
			return nil
		case PoolClosed:
			s.backlog = s.backlog[sent:]
			return fmt.Errorf("запрос чанка %s: %w", c, ErrChannelClosed)
		}
	}
	s.backlog = s.backlog[:0]
	return nil
}

// IngestReady забирает готовые чанки генератора. Ответы для координат вне окна
// отбрасываются, повторный ответ для загруженной координаты заменяет чанк.
func (s *Store) IngestReady() (int, error) {
	inserted := 0
	requeue := false

	for _, res := range s.gen.Drain() {
		delete(s.inflight, res.Coord)

		if res.Err != nil {
			if s.InWindow(res.Coord) && s.retries[res.Coord] < s.opts.MaxRetries {
				s.retries[res.Coord]++
				s.backlog = append(s.backlog, res.Coord)
				requeue = true
				s.logger.Warn("Повторная генерация %s (попытка %d): %v", res.Coord, s.retries[res.Coord], res.Err)
			} else {
				s.logger.Error("Чанк %s не сгенерирован: %v", res.Coord, res.Err)
			}
			continue
		}

		if !s.InWindow(res.Coord) || res.Seed != s.seed {
			s.dropped++
			chunkEvents.WithLabelValues("dropped").Inc()
			continue
		}

		if _, dup := s.chunks[res.Coord]; dup {
			s.logger.Warn("Повторный ответ для загруженного чанка %s, заменяем", res.Coord)
			s.evict(res.Coord)
		}
		s.insert(res.Chunk)
		inserted++
	}

	if requeue {
		s.sortBacklog()
	}
	residentGauge.Set(float64(len(s.chunks)))
	return inserted, s.pump()
}

func (s *Store) insert(chunk *Chunk) {
	c := chunk.Coord()
	delete(s.retries, c)
	s.chunks[c] = chunk

	if s.opts.CullChunkBorders {
		for _, dir := range borderDirs {
			if n, ok := s.chunks[c.Add(dir)]; ok {
				s.repairBoundary(chunk, dir, false)
				s.repairBoundary(n, vec.Vec2{X: -dir.X, Z: -dir.Z}, true)
			}
		}
	}

	chunkEvents.WithLabelValues("loaded").Inc()
	s.feed.Notify(ChunkLoaded{Coord: c, InstanceTop: chunk.InstanceTop()})
}

func (s *Store) evict(c vec.Vec2) {
	chunk, ok := s.chunks[c]
	if !ok {
		return
	}

	s.feed.Notify(ChunkUnloaded{Coord: c})
	delete(s.chunks, c)
	chunkEvents.WithLabelValues("unloaded").Inc()

	if chunk.Edited() && s.cache != nil {
		if s.cache.Put(c, s.seed, chunk.BlocksSnapshot()) {
			s.logger.Debug("Отредактированный чанк %s сохранён в кеше", c)
		}
	}

	if s.opts.CullChunkBorders {
		for _, dir := range borderDirs {
			if n, ok := s.chunks[c.Add(dir)]; ok {
				s.repairBoundary(n, vec.Vec2{X: -dir.X, Z: -dir.Z}, true)
			}
		}
	}
}

// restore загружает отредактированный чанк из кеша вместо генерации
func (s *Store) restore(c vec.Vec2) bool {
	if s.cache == nil {
		return false
	}
	data, ok := s.cache.Get(c, s.seed)
	if !ok {
		return false
	}

	chunk := NewChunk(c, s.dims)
	if err := chunk.LoadBlocks(data); err != nil {
		s.logger.Warn("Кеш чанка %s повреждён: %v", c, err)
		s.cache.Delete(c, s.seed)
		return false
	}
	chunk.edited = true
	s.cache.Delete(c, s.seed)
	s.restored++
	s.insert(chunk)
	s.logger.Debug("Чанк %s восстановлен из кеша правок", c)
	return true
}

var borderDirs = [4]vec.Vec2{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}

// outside возвращает функцию поиска соседей за границей чанка для текущей политики видимости
func (s *Store) outside() outsideLookup {
	if !s.opts.CullChunkBorders {
		return nil
	}
	return s.BlockAt
}

// repairBoundary пересчитывает слой клеток чанка, обращённый в сторону dir
func (s *Store) repairBoundary(chunk *Chunk, dir vec.Vec2, notify bool) {
	size, height := s.dims.Size, s.dims.Height
	lookup := s.outside()
	minTouched := -1

	for i := 0; i < size; i++ {
		for y := 0; y < height; y++ {
			var x, z int
			switch {
			case dir.X > 0:
				x, z = size-1, i
			case dir.X < 0:
				x, z = 0, i
			case dir.Z > 0:
				x, z = i, size-1
			default:
				x, z = i, 0
			}
			if slot, changed := chunk.repairCell(x, y, z, lookup); changed {
				if minTouched < 0 || slot < minTouched {
					minTouched = slot
				}
			}
		}
	}

	if notify && minTouched >= 0 {
		s.feed.Notify(InstancesChanged{Coord: chunk.Coord(), Range: SlotRange{Start: minTouched, End: chunk.InstanceTop()}})
	}
}

// CheckInvariants проверяет инварианты видимости и упаковки всех загруженных чанков
func (s *Store) CheckInvariants() error {
	for _, c := range s.Coords() {
		var lookup func(p vec.Vec3) block.ID
		if s.opts.CullChunkBorders {
			lookup = s.BlockAt
		}
		if err := s.chunks[c].CheckInvariants(lookup); err != nil {
			return err
		}
	}
	return nil
}
