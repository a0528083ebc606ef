package world

import (
	"github.com/annel0/blockverse/internal/vec"
)

// EventType определяет тип события рендер-фида
type EventType uint8

const (
	EventTypeChunkLoaded      EventType = iota // Чанк вставлен в хранилище
	EventTypeChunkUnloaded                     // Чанк будет выгружен
	EventTypeInstancesChanged                  // Изменился диапазон слотов инстансов
)

func (t EventType) String() string {
	switch t {
	case EventTypeChunkLoaded:
		return "chunk_loaded"
	case EventTypeChunkUnloaded:
		return "chunk_unloaded"
	case EventTypeInstancesChanged:
		return "instances_changed"
	default:
		return "unknown"
	}
}

// Event представляет собой интерфейс для всех событий
type Event interface {
	GetType() EventType
	ChunkCoord() vec.Vec2
}

// SlotRange - полуинтервал слотов [Start, End)
type SlotRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len возвращает длину диапазона
func (r SlotRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// ChunkLoaded отправляется после вставки чанка
type ChunkLoaded struct {
	Coord       vec.Vec2
	InstanceTop int
}

func (e ChunkLoaded) GetType() EventType   { return EventTypeChunkLoaded }
func (e ChunkLoaded) ChunkCoord() vec.Vec2 { return e.Coord }

// ChunkUnloaded отправляется перед удалением чанка
type ChunkUnloaded struct {
	Coord vec.Vec2
}

func (e ChunkUnloaded) GetType() EventType   { return EventTypeChunkUnloaded }
func (e ChunkUnloaded) ChunkCoord() vec.Vec2 { return e.Coord }

// InstancesChanged - после правки рендер перезаливает слоты [Range.Start, Range.End),
// где Range.End - новый instance_top
type InstancesChanged struct {
	Coord vec.Vec2
	Range SlotRange
}

func (e InstancesChanged) GetType() EventType   { return EventTypeInstancesChanged }
func (e InstancesChanged) ChunkCoord() vec.Vec2 { return e.Coord }

// RenderFeed получает уведомления хранилища мира. Вызывается только из главного цикла.
type RenderFeed interface {
	Notify(ev Event)
}

// FeedFunc адаптирует функцию к RenderFeed
type FeedFunc func(ev Event)

// Notify вызывает функцию
func (f FeedFunc) Notify(ev Event) { f(ev) }

// MultiFeed рассылает события нескольким подписчикам по порядку
type MultiFeed []RenderFeed

// Notify передаёт событие всем подписчикам
func (m MultiFeed) Notify(ev Event) {
	for _, f := range m {
		if f != nil {
			f.Notify(ev)
		}
	}
}

// NopFeed игнорирует события
type NopFeed struct{}

func (NopFeed) Notify(Event) {}
