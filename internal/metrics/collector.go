package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/climate-coil/internal/spread"
)

// Collector собирает метрики движков всех регуляторов.
// Метки regulator различают источники.
type Collector struct {
	fills       *prometheus.CounterVec
	claimed     *prometheus.CounterVec
	repairs     *prometheus.CounterVec
	invalidated *prometheus.CounterVec
	excised     *prometheus.CounterVec
	restored    *prometheus.CounterVec
	resets      *prometheus.CounterVec
	violations  *prometheus.CounterVec
	regionSize  *prometheus.GaugeVec
	edgeSize    *prometheus.GaugeVec
	tickSeconds *prometheus.HistogramVec
}

// NewCollector создаёт коллектор и регистрирует метрики в reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "spread",
			Name:      "fills_total",
			Help:      "Проходы заливки по типу (full или partial).",
		}, []string{"regulator", "kind"}),
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "spread",
			Name:      "claimed_total",
			Help:      "Позиций, добавленных в область.",
		}, []string{"regulator"}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "spread",
			Name:      "repairs_total",
			Help:      "Циклов починки с непустой очередью.",
		}, []string{"regulator"}),
		invalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "spread",
			Name:      "invalidated_total",
			Help:      "Элементов, прошедших через очередь инвалидации.",
		}, []string{"regulator"}),
		excised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "spread",
			Name:      "excised_total",
			Help:      "Позиций, вырезанных при починке.",
		}, []string{"regulator"}),
		restored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "spread",
			Name:      "restored_total",
			Help:      "Позиций, восстановленных после вырезания.",
		}, []string{"regulator"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "spread",
			Name:      "resets_total",
			Help:      "Полных сбросов области.",
		}, []string{"regulator"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate",
			Subsystem: "spread",
			Name:      "invariant_violations_total",
			Help:      "Нарушений инвариантов, обнаруженных после починки.",
		}, []string{"regulator"}),
		regionSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "climate",
			Subsystem: "spread",
			Name:      "region_size",
			Help:      "Текущий размер области.",
		}, []string{"regulator"}),
		edgeSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "climate",
			Subsystem: "spread",
			Name:      "edge_size",
			Help:      "Текущий размер границы.",
		}, []string{"regulator"}),
		tickSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "climate",
			Subsystem: "regulator",
			Name:      "tick_duration_seconds",
			Help:      "Длительность тика регулятора.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		}, []string{"regulator"}),
	}

	reg.MustRegister(
		c.fills, c.claimed, c.repairs, c.invalidated, c.excised,
		c.restored, c.resets, c.violations, c.regionSize, c.edgeSize, c.tickSeconds,
	)
	return c
}

// Observer возвращает наблюдатель движка для регулятора id
func (c *Collector) Observer(id string) spread.Observer {
	return &engineObserver{c: c, id: id}
}

// SetRegionSize обновляет размеры области и границы
func (c *Collector) SetRegionSize(id string, size, edges int) {
	c.regionSize.WithLabelValues(id).Set(float64(size))
	c.edgeSize.WithLabelValues(id).Set(float64(edges))
}

// InvariantViolation учитывает нарушение инварианта
func (c *Collector) InvariantViolation(id string) {
	c.violations.WithLabelValues(id).Inc()
}

// ObserveTick записывает длительность тика
func (c *Collector) ObserveTick(id string, d time.Duration) {
	c.tickSeconds.WithLabelValues(id).Observe(d.Seconds())
}

// Forget удаляет серии снятого регулятора
func (c *Collector) Forget(id string) {
	for _, vec := range []*prometheus.CounterVec{c.claimed, c.repairs, c.invalidated, c.excised, c.restored, c.resets, c.violations} {
		vec.DeleteLabelValues(id)
	}
	c.fills.DeleteLabelValues(id, "full")
	c.fills.DeleteLabelValues(id, "partial")
	c.regionSize.DeleteLabelValues(id)
	c.edgeSize.DeleteLabelValues(id)
	c.tickSeconds.DeleteLabelValues(id)
}

type engineObserver struct {
	c  *Collector
	id string
}

func (o *engineObserver) FillCompleted(stats spread.FillStats) {
	kind := "partial"
	if stats.Full {
		kind = "full"
	}
	o.c.fills.WithLabelValues(o.id, kind).Inc()
	o.c.claimed.WithLabelValues(o.id).Add(float64(stats.Claimed))
}

// RepairCompleted вызывается только после непустого цикла. Заливка внутри
// починки отдельно приходит в FillCompleted.
func (o *engineObserver) RepairCompleted(stats spread.RepairStats) {
	o.c.repairs.WithLabelValues(o.id).Inc()
	o.c.invalidated.WithLabelValues(o.id).Add(float64(stats.Invalidated))
	o.c.excised.WithLabelValues(o.id).Add(float64(stats.Excised))
	o.c.restored.WithLabelValues(o.id).Add(float64(stats.Restored))
}

func (o *engineObserver) RegionReset(cleared int) {
	o.c.resets.WithLabelValues(o.id).Inc()
	o.c.regionSize.WithLabelValues(o.id).Set(0)
	o.c.edgeSize.WithLabelValues(o.id).Set(0)
}
