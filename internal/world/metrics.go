package world

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Метрики мира. Коллекторы создаются на уровне пакета и работают без регистрации;
// RegisterMetrics подключает их к конкретному регистру.
var (
	chunksGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockverse",
		Subsystem: "generator",
		Name:      "chunks_generated_total",
		Help:      "Число успешно сгенерированных чанков.",
	})
	generationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockverse",
		Subsystem: "generator",
		Name:      "failures_total",
		Help:      "Число паник воркеров при генерации.",
	})
	generationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "blockverse",
		Subsystem: "generator",
		Name:      "chunk_duration_seconds",
		Help:      "Время генерации одного чанка.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blockverse",
		Subsystem: "generator",
		Name:      "pending",
		Help:      "Координаты в очереди генерации.",
	})
	residentGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blockverse",
		Subsystem: "world",
		Name:      "resident_chunks",
		Help:      "Число загруженных чанков.",
	})
	chunkEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockverse",
		Subsystem: "world",
		Name:      "chunk_events_total",
		Help:      "Загрузки, выгрузки и отброшенные ответы генератора.",
	}, []string{"event"})
	blockEdits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockverse",
		Subsystem: "world",
		Name:      "block_edits_total",
		Help:      "Правки блоков по результату.",
	}, []string{"result"})
	instanceSlotsTouched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockverse",
		Subsystem: "world",
		Name:      "instance_slots_touched_total",
		Help:      "Сумма длин диапазонов слотов, отправленных рендеру после правок.",
	})
)

// RegisterMetrics регистрирует метрики мира. Повторная регистрация не считается ошибкой.
func RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		chunksGenerated, generationFailures, generationSeconds, pendingGauge,
		residentGauge, chunkEvents, blockEdits, instanceSlotsTouched,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
