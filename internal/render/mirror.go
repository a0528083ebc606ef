// Package render держит CPU-копию буферов инстансов, которые клиент загружает на GPU.
// Зеркало применяет события рендер-фида так же, как это делал бы GPU-бэкенд:
// полная заливка при загрузке чанка и частичная при изменении диапазона слотов.
package render

import (
	"errors"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world"
)

// InstanceStride - размер одного инстанса в буфере: i32×3 позиции и u32 вида
const InstanceStride = 16

var uploadBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "blockverse",
	Subsystem: "render",
	Name:      "upload_bytes_total",
	Help:      "Байты инстансов, отправленные в буферы рендера.",
}, []string{"kind"})

// RegisterMetrics регистрирует метрики рендера
func RegisterMetrics(reg prometheus.Registerer) error {
	if err := reg.Register(uploadBytes); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}
	return nil
}

// ChunkSource - откуда зеркало читает инстансы при уведомлении
type ChunkSource interface {
	Chunk(c vec.Vec2) (*world.Chunk, bool)
}

// Stats - счётчики зеркала
type Stats struct {
	Chunks        int    `json:"chunks"`
	Instances     int    `json:"instances"`
	FullUploads   uint64 `json:"full_uploads"`
	RangeUploads  uint64 `json:"range_uploads"`
	UploadedBytes uint64 `json:"uploaded_bytes"`
}

// InstanceMirror реализует world.RenderFeed
type InstanceMirror struct {
	src     ChunkSource
	buffers map[vec.Vec2][]world.Instance
	stats   Stats
	logger  *logging.Logger
}

// NewInstanceMirror создаёт пустое зеркало поверх источника чанков
func NewInstanceMirror(src ChunkSource) *InstanceMirror {
	return &InstanceMirror{
		src:     src,
		buffers: make(map[vec.Vec2][]world.Instance),
		logger:  logging.GetComponentLogger("render"),
	}
}

// Notify применяет событие рендер-фида
func (m *InstanceMirror) Notify(ev world.Event) {
	coord := ev.ChunkCoord()

	switch e := ev.(type) {
	case world.ChunkLoaded:
		chunk, ok := m.src.Chunk(coord)
		if !ok {
			m.logger.Warn("ChunkLoaded для отсутствующего чанка %s", coord)
			return
		}
		buf := append([]world.Instance(nil), chunk.Instances()...)
		m.buffers[coord] = buf
		m.stats.FullUploads++
		m.account("full", len(buf))

	case world.ChunkUnloaded:
		delete(m.buffers, coord)

	case world.InstancesChanged:
		buf, ok := m.buffers[coord]
		if !ok {
			m.logger.Warn("Изменение инстансов незагруженного в рендер чанка %s", coord)
			return
		}
		chunk, ok := m.src.Chunk(coord)
		if !ok {
			return
		}
		src := chunk.Instances()
		r := e.Range
		if r.End != len(src) || r.Start > r.End {
			m.logger.Error("Диапазон %d..%d не согласован с чанком %s (top=%d)", r.Start, r.End, coord, len(src))
			return
		}

		if cap(buf) >= r.End {
			buf = buf[:r.End]
		} else {
			grown := make([]world.Instance, r.End, r.End*2)
			copy(grown, buf)
			buf = grown
		}
		copy(buf[r.Start:r.End], src[r.Start:r.End])
		m.buffers[coord] = buf
		m.stats.RangeUploads++
		m.account("range", r.Len())
	}
}

func (m *InstanceMirror) account(kind string, instances int) {
	n := uint64(instances) * InstanceStride
	m.stats.UploadedBytes += n
	uploadBytes.WithLabelValues(kind).Add(float64(n))
}

// Buffer возвращает буфер инстансов чанка
func (m *InstanceMirror) Buffer(c vec.Vec2) ([]world.Instance, bool) {
	buf, ok := m.buffers[c]
	return buf, ok
}

// Stats возвращает счётчики зеркала
func (m *InstanceMirror) Stats() Stats {
	s := m.stats
	s.Chunks = len(m.buffers)
	for _, buf := range m.buffers {
		s.Instances += len(buf)
	}
	return s
}

// Verify сравнивает буферы зеркала с инстансами загруженных чанков
func (m *InstanceMirror) Verify(coords []vec.Vec2) error {
	if len(coords) != len(m.buffers) {
		return fmt.Errorf("в зеркале %d чанков, загружено %d", len(m.buffers), len(coords))
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })

	for _, c := range coords {
		chunk, ok := m.src.Chunk(c)
		if !ok {
			return fmt.Errorf("чанк %s не загружен", c)
		}
		buf, ok := m.buffers[c]
		if !ok {
			return fmt.Errorf("чанк %s отсутствует в зеркале", c)
		}
		want := chunk.Instances()
		if len(buf) != len(want) {
			return fmt.Errorf("чанк %s: %d инстансов в зеркале, %d в чанке", c, len(buf), len(want))
		}
		for i := range want {
			if buf[i] != want[i] {
				return fmt.Errorf("чанк %s: слот %d расходится: %+v != %+v", c, i, buf[i], want[i])
			}
		}
	}
	return nil
}
