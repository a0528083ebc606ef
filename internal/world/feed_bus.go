package world

import (
	"context"

	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/logging"
)

// FeedSource - источник конвертов событий мира в шине
const FeedSource = "world"

// feedPayload - JSON-представление события рендер-фида
type feedPayload struct {
	X           int        `json:"x"`
	Z           int        `json:"z"`
	InstanceTop int        `json:"instance_top,omitempty"`
	Range       *SlotRange `json:"range,omitempty"`
}

// BusFeed публикует события рендер-фида в шину событий для наблюдателей
// (логирование, отладочные инструменты). Публикация не блокирует главный цикл:
// при заполненном буфере события отбрасываются.
type BusFeed struct {
	bus    eventbus.EventBus
	logger *logging.Logger
}

// NewBusFeed создаёт фид поверх шины
func NewBusFeed(bus eventbus.EventBus) *BusFeed {
	return &BusFeed{bus: bus, logger: logging.GetWorldLogger()}
}

// Notify публикует событие
func (f *BusFeed) Notify(ev Event) {
	c := ev.ChunkCoord()
	p := feedPayload{X: c.X, Z: c.Z}
	switch e := ev.(type) {
	case ChunkLoaded:
		p.InstanceTop = e.InstanceTop
	case InstancesChanged:
		r := e.Range
		p.Range = &r
		p.InstanceTop = r.End
	}

	env, err := eventbus.NewEnvelope(FeedSource, ev.GetType().String(), p)
	if err != nil {
		f.logger.Warn("Не удалось упаковать событие %s: %v", ev.GetType(), err)
		return
	}
	if err := f.bus.Publish(context.Background(), env); err != nil {
		f.logger.Debug("Событие %s не опубликовано: %v", ev.GetType(), err)
	}
}
