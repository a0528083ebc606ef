package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/physics"
	"github.com/annel0/blockverse/internal/player"
	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world"
	"github.com/annel0/blockverse/internal/world/block"
)

var (
	// ErrLoopStopped - цикл остановлен, запрос не будет выполнен
	ErrLoopStopped = errors.New("игровой цикл остановлен")
	// ErrBlockedByPlayer - блок нельзя поставить в клетку, которую занимает игрок
	ErrBlockedByPlayer = errors.New("клетка занята игроком")
)

var frameSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "blockverse",
	Subsystem: "game",
	Name:      "frame_duration_seconds",
	Help:      "Время обработки одного кадра главного цикла.",
	Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
})

// RegisterMetrics регистрирует метрики главного цикла
func RegisterMetrics(reg prometheus.Registerer) error {
	if err := reg.Register(frameSeconds); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}
	return nil
}

// State - то, что главный цикл отдаёт запросам Do
type State struct {
	Store    *world.Store
	Player   *player.Controller
	Tick     uint64
	Spawned  bool
	LastPick *world.PickResult
}

// FrameReport - итоги одного кадра
type FrameReport struct {
	Tick      uint64
	Feet      mgl32.Vec3
	Grounded  bool
	Center    vec.Vec2
	Resident  int
	Ingested  int
	Simulated bool
	Spawned   bool
	Pick      *world.PickResult
	EditErr   error
	Err       error
	Requests  int
}

// Options настраивает главный цикл
type Options struct {
	Store   *world.Store
	Player  *player.Controller
	Physics physics.Params
	// DeadZone - мёртвая зона переноса центра окна в чанках
	DeadZone int
	// Spawn - мировая колонна (x, z), над которой появляется игрок
	Spawn vec.Vec2
	// Generator закрывается в Stop
	Generator interface{ Close() }
	Logger    *logging.Logger
}

type request struct {
	fn   func(st *State)
	done chan struct{}
}

// Loop - главный цикл клиента. Единственный владелец хранилища мира: все
// обращения из других горутин идут через Do.
type Loop struct {
	state    State
	physics  physics.Params
	deadZone int
	spawn    vec.Vec2
	gen      interface{ Close() }
	logger   *logging.Logger

	requests chan request
	stopped  chan struct{}
}

// NewLoop создаёт цикл; игрок ждёт над точкой появления, пока её чанк не загрузится
func NewLoop(opts Options) *Loop {
	if opts.Logger == nil {
		opts.Logger = logging.GetGameLogger()
	}
	if opts.Physics == (physics.Params{}) {
		opts.Physics = physics.DefaultParams
	}
	if opts.Player == nil {
		opts.Player = player.NewController(mgl32.Vec3{}, player.Config{})
	}

	h := float32(opts.Store.Dims().Height)
	opts.Player.Teleport(mgl32.Vec3{float32(opts.Spawn.X) + 0.5, h, float32(opts.Spawn.Z) + 0.5})

	return &Loop{
		state:    State{Store: opts.Store, Player: opts.Player},
		physics:  opts.Physics,
		deadZone: opts.DeadZone,
		spawn:    opts.Spawn,
		gen:      opts.Generator,
		logger:   opts.Logger,
		requests: make(chan request, 64),
		stopped:  make(chan struct{}),
	}
}

// Store возвращает хранилище. Вне горутины цикла пользоваться им нельзя.
func (l *Loop) Store() *world.Store { return l.state.Store }

// Player возвращает контроллер игрока
func (l *Loop) Player() *player.Controller { return l.state.Player }

// Tick выполняет один кадр: ввод, физика, выбор блока, окно резидентности,
// приём готовых чанков, правки и отложенные запросы.
func (l *Loop) Tick(in player.Input, dt float32) FrameReport {
	start := time.Now()
	defer func() { frameSeconds.Observe(time.Since(start).Seconds()) }()

	st := &l.state
	st.Tick++
	store, p := st.Store, st.Player
	size := store.Dims().Size
	report := FrameReport{Tick: st.Tick}

	// 1. Ввод
	if st.Spawned {
		p.ApplyInput(in)
	}

	// 2. Физика только когда чанк под игроком загружен
	if st.Spawned && store.IsResident(p.ChunkCoord(size)) {
		p.Step(store, dt, l.physics)
		report.Simulated = true
	}

	// 3. Выбор блока
	st.LastPick = nil
	if st.Spawned {
		if res, ok := store.Pick(p.Eye(), p.Forward()); ok {
			st.LastPick = &res
		}
	}
	report.Pick = st.LastPick

	// 4. Окно резидентности
	target, move := p.WantsCenter(store.Center(), size, l.deadZone)
	if st.Tick == 1 {
		target, move = p.ChunkCoord(size), true
	}
	if move {
		if err := store.SetCenter(target); err != nil {
			report.Err = err
		}
	}

	// 5. Готовые чанки
	n, err := store.IngestReady()
	report.Ingested = n
	if err != nil && report.Err == nil {
		report.Err = err
	}

	if !st.Spawned {
		l.trySpawn()
	}

	// 6. Правки
	if st.Spawned && st.LastPick != nil {
		report.EditErr = l.applyEdits(in, *st.LastPick)
	}

	// 7. Запросы других горутин
	report.Requests = l.serveRequests()

	report.Feet = p.Feet()
	report.Grounded = p.Body.Grounded
	report.Center = store.Center()
	report.Resident = store.Len()
	report.Spawned = st.Spawned
	return report
}

// trySpawn ставит игрока на поверхность, как только загружен чанк точки появления
func (l *Loop) trySpawn() {
	store := l.state.Store
	y, ok := store.SurfaceY(l.spawn.X, l.spawn.Z)
	if !ok {
		return
	}
	feet := mgl32.Vec3{float32(l.spawn.X) + 0.5, float32(y + 1), float32(l.spawn.Z) + 0.5}
	l.state.Player.Teleport(feet)
	l.state.Spawned = true
	l.logger.Info("Игрок появился в %v (поверхность y=%d)", feet, y)
}

func (l *Loop) applyEdits(in player.Input, pick world.PickResult) error {
	store := l.state.Store
	switch {
	case in.Break:
		if err := store.Remove(pick.Hit); err != nil {
			l.logger.Warn("Не удалось сломать блок %s: %v", pick.Hit, err)
			return err
		}
		l.logger.Debug("Блок %s сломан", pick.Hit)

	case in.Place && in.Selected != block.Empty:
		if physics.Overlaps(&l.state.Player.Body, pick.Prev) {
			return fmt.Errorf("блок %s: %w", pick.Prev, ErrBlockedByPlayer)
		}
		if err := store.Place(pick.Prev, in.Selected); err != nil {
			l.logger.Warn("Не удалось поставить %s в %s: %v", in.Selected, pick.Prev, err)
			return err
		}
		l.logger.Debug("Блок %s поставлен в %s", in.Selected, pick.Prev)
	}
	return nil
}

func (l *Loop) serveRequests() int {
	served := 0
	for {
		select {
		case req := <-l.requests:
			req.fn(&l.state)
			close(req.done)
			served++
		default:
			return served
		}
	}
}

// Do выполняет fn в горутине цикла в конце ближайшего кадра и ждёт завершения.
// При отмене ctx ожидание прекращается, но уже поставленный запрос будет выполнен.
func (l *Loop) Do(ctx context.Context, fn func(st *State)) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	case l.requests <- req:
	}

	select {
	case <-req.done:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run крутит кадры с фиксированным шагом, пока не отменён ctx. input вызывается
// перед каждым кадром, onFrame (если задан) получает отчёт.
func (l *Loop) Run(ctx context.Context, step time.Duration, input func() player.Input, onFrame func(FrameReport)) error {
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	dt := float32(step.Seconds())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report := l.Tick(input(), dt)
			if onFrame != nil {
				onFrame(report)
			}
			if errors.Is(report.Err, world.ErrChannelClosed) {
				return report.Err
			}
		}
	}
}

// Stop завершает обслуживание запросов и закрывает генератор. Повторный вызов безопасен.
func (l *Loop) Stop() {
	select {
	case <-l.stopped:
		return
	default:
	}
	close(l.stopped)
	if l.gen != nil {
		l.gen.Close()
	}
	l.logger.Info("Игровой цикл остановлен на кадре %d", l.state.Tick)
}
