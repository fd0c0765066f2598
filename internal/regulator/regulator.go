package regulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/climate-coil/internal/config"
	"github.com/annel0/climate-coil/internal/eventbus"
	"github.com/annel0/climate-coil/internal/logging"
	"github.com/annel0/climate-coil/internal/metrics"
	"github.com/annel0/climate-coil/internal/spread"
	"github.com/annel0/climate-coil/internal/vec"
	"github.com/annel0/climate-coil/internal/world"
	"github.com/annel0/climate-coil/internal/world/block"
)

// SourceState сообщает, запитан ли источник
type SourceState interface {
	Active() bool
}

// SourceFunc адаптер функции к SourceState
type SourceFunc func() bool

func (f SourceFunc) Active() bool { return f() }

// AlwaysOn источник без питания от внешней сети
var AlwaysOn SourceState = SourceFunc(func() bool { return true })

// AgentLocator ищет агентов в боксе
type AgentLocator interface {
	AgentsWithin(min, max vec.Vec3) []world.Agent
}

// EffectApplier применяет модификатор к агенту
type EffectApplier interface {
	ApplyModifier(agentID uint64, mod world.Modifier)
}

// Options зависимости регулятора. Обязательны Source, Config и Oracle.
type Options struct {
	ID      string
	Source  vec.Vec3
	Config  config.RegulatorConfig
	Oracle  spread.Oracle
	Power   SourceState        // nil означает AlwaysOn
	Agents  AgentLocator       // nil отключает эффекты
	Effects EffectApplier      // nil отключает эффекты
	Bus     eventbus.EventBus  // nil означает глобальную шину
	Metrics *metrics.Collector // может быть nil
	Logger  *logging.Logger    // nil означает логгер компонента regulator
	Tracer  trace.Tracer       // nil означает глобальный провайдер
}

// Regulator ведёт область одного источника по тикам.
// Все обращения к движку идут под мьютексом: отладочный API читает снимки
// из своих горутин.
type Regulator struct {
	mu sync.Mutex

	id       string
	cfg      config.RegulatorConfig
	modifier world.Modifier
	engine   *spread.Engine
	power    SourceState
	agents   AgentLocator
	effects  EffectApplier
	publish  func(ctx context.Context, ev *eventbus.Envelope) error
	metrics  *metrics.Collector
	logger   *logging.Logger
	tracer   trace.Tracer

	ticks       uint64
	active      bool
	forceRefill bool
	stats       Stats

	// События тика публикуются после снятия мьютекса: шина может блокироваться
	outbox []*eventbus.Envelope
}

// Stats счётчики регулятора для отладочного API
type Stats struct {
	Ticks       uint64    `json:"ticks"`
	Active      bool      `json:"active"`
	Fills       int       `json:"fills"`
	Repairs     int       `json:"repairs"`
	Resets      int       `json:"resets"`
	Violations  int       `json:"violations"`
	Climatized  int       `json:"climatized"`
	Size        int       `json:"size"`
	Edges       int       `json:"edges"`
	Pending     int       `json:"pending"`
	LastRepair  time.Time `json:"last_repair,omitempty"`
	LastFill    time.Time `json:"last_fill,omitempty"`
	LastProblem string    `json:"last_problem,omitempty"`
}

// ID строит идентификатор регулятора по позиции источника
func ID(source vec.Vec3) string {
	return fmt.Sprintf("coil_%d_%d_%d", source.X, source.Y, source.Z)
}

// New создаёт регулятор с пустой областью
func New(opts Options) (*Regulator, error) {
	mode, err := opts.Config.Mode()
	if err != nil {
		return nil, err
	}
	if opts.ID == "" {
		opts.ID = ID(opts.Source)
	}
	if opts.Power == nil {
		opts.Power = AlwaysOn
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetRegulatorLogger()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("climate-coil/regulator")
	}

	r := &Regulator{
		id:      opts.ID,
		cfg:     opts.Config,
		power:   opts.Power,
		agents:  opts.Agents,
		effects: opts.Effects,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		modifier: world.Modifier{
			Name:          opts.Config.Modifier.Name,
			Amount:        opts.Config.Modifier.Amount,
			Rate:          opts.Config.Modifier.Rate,
			DurationTicks: opts.Config.Modifier.DurationTicks,
		},
	}
	if opts.Bus != nil {
		r.publish = opts.Bus.Publish
	} else {
		r.publish = eventbus.Publish
	}

	observers := spread.MultiObserver{NewLogObserver(r.id, r.logger)}
	if r.metrics != nil {
		observers = append(observers, r.metrics.Observer(r.id))
	}

	r.engine, err = spread.New(spread.Config{
		Source:      opts.Source,
		MaxDistance: opts.Config.MaxDistance,
		Mode:        mode,
		Observer:    observers,
	}, opts.Oracle)
	if err != nil {
		return nil, fmt.Errorf("regulator %s: %w", r.id, err)
	}
	return r, nil
}

// ID возвращает идентификатор регулятора
func (r *Regulator) ID() string { return r.id }

// Source возвращает позицию источника
func (r *Regulator) Source() vec.Vec3 { return r.engine.Source() }

// Modifier возвращает модификатор, который получают агенты в области
func (r *Regulator) Modifier() world.Modifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modifier
}

// Contains проверяет, регулируется ли позиция
func (r *Regulator) Contains(pos vec.Vec3) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Contains(pos)
}

// StrengthAt возвращает силу области в позиции
func (r *Regulator) StrengthAt(pos vec.Vec3) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.StrengthAt(pos)
}

// Snapshot возвращает копию области и границы
func (r *Regulator) Snapshot() spread.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Snapshot()
}

// Stats возвращает текущие счётчики
func (r *Regulator) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Ticks = r.ticks
	s.Active = r.active
	s.Size = r.engine.Len()
	s.Edges = r.engine.EdgeLen()
	s.Pending = r.engine.Pending()
	return s
}

// NotifyBlockChange передаёт смену блока движку. Починка пройдёт на ближайшем
// тике проверки границы.
func (r *Regulator) NotifyBlockChange(pos vec.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engine.NotifyChanged(pos)
}

// BlockChanged реализует world.ChangeListener
func (r *Regulator) BlockChanged(pos vec.Vec3, _, _ block.BlockID) {
	r.NotifyBlockChange(pos)
}

// RequestRefill заставляет регулятор залить область заново на ближайшем тике заливки
func (r *Regulator) RequestRefill() {
	r.mu.Lock()
	r.forceRefill = true
	r.mu.Unlock()
}

// Tick выполняет один тик. Периодичности считаются от первого тика:
// заливка пустой области и эффекты каждые FillInterval/EffectInterval тиков,
// проверка границы каждые EdgeInterval, проверка всей области каждые SpreadInterval.
func (r *Regulator) Tick(ctx context.Context) {
	start := time.Now()
	r.mu.Lock()
	defer func() {
		events := r.takeOutbox()
		r.mu.Unlock()
		r.flush(ctx, events)
		if r.metrics != nil {
			r.metrics.ObserveTick(r.id, time.Since(start))
		}
	}()

	r.ticks++
	r.updatePower(ctx)
	if !r.active {
		// Без питания область сбрасывается каждый тик
		cleared := r.engine.Len()
		r.engine.Reset()
		if cleared > 0 {
			r.stats.Resets++
			r.emit(ctx, eventbus.TypeRegionReset, 3, eventbus.RegionResetPayload{
				Source: r.engine.Source(), Cleared: cleared, Reason: "unpowered",
			})
		}
		return
	}

	if r.due(r.cfg.FillInterval) && (r.engine.Empty() || r.forceRefill) {
		r.fill(ctx)
	}

	reconcile := false
	if r.due(r.cfg.EdgeInterval) {
		r.engine.ReconcileEdges()
		reconcile = true
	}
	if r.due(r.cfg.SpreadInterval) {
		r.engine.ReconcileSpread()
		reconcile = true
	}
	if reconcile {
		r.repair(ctx)
	}

	if r.due(r.cfg.EffectInterval) {
		r.applyEffects(ctx)
	}

	if r.metrics != nil {
		r.metrics.SetRegionSize(r.id, r.engine.Len(), r.engine.EdgeLen())
	}
}

func (r *Regulator) due(interval int) bool {
	return interval > 0 && r.ticks%uint64(interval) == 0
}

func (r *Regulator) updatePower(ctx context.Context) {
	active := r.power.Active()
	if active != r.active {
		r.logger.Info("🔌 Регулятор %s: питание %v", r.id, active)
		r.emit(ctx, eventbus.TypeRegulatorPowered, 5, eventbus.RegulatorPoweredPayload{
			Source: r.engine.Source(), Active: active,
		})
	}
	r.active = active
}

func (r *Regulator) fill(ctx context.Context) {
	_, span := r.tracer.Start(ctx, "regulator.fill", trace.WithAttributes(
		attribute.String("regulator.id", r.id),
	))
	defer span.End()

	stats := r.engine.Fill()
	r.forceRefill = false
	r.stats.Fills++
	r.stats.LastFill = time.Now()
	span.SetAttributes(
		attribute.Int("spread.claimed", stats.Claimed),
		attribute.Int("spread.size", r.engine.Len()),
	)

	r.emit(ctx, eventbus.TypeRegionFilled, 3, eventbus.RegionFilledPayload{
		Source: r.engine.Source(), Size: r.engine.Len(), Edges: r.engine.EdgeLen(), Claimed: stats.Claimed,
	})
}

func (r *Regulator) repair(ctx context.Context) {
	if r.engine.Pending() == 0 {
		return
	}
	_, span := r.tracer.Start(ctx, "regulator.repair", trace.WithAttributes(
		attribute.String("regulator.id", r.id),
		attribute.Int("spread.pending", r.engine.Pending()),
	))
	defer span.End()

	stats, err := r.engine.Repair()
	r.stats.Repairs++
	r.stats.LastRepair = time.Now()
	span.SetAttributes(
		attribute.Int("spread.excised", stats.Excised),
		attribute.Int("spread.claimed", stats.Fill.Claimed),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.violation(ctx, err)
		return
	}

	r.emit(ctx, eventbus.TypeRegionRepaired, 2, eventbus.RegionRepairedPayload{
		Source:      r.engine.Source(),
		Invalidated: stats.Invalidated,
		Excised:     stats.Excised,
		Restored:    stats.Restored,
		Claimed:     stats.Fill.Claimed,
		Size:        r.engine.Len(),
	})
}

// violation записывает нарушение инварианта и назначает полную перезаливку
func (r *Regulator) violation(ctx context.Context, err error) {
	r.logger.Error("❌ Регулятор %s: %v", r.id, err)
	r.stats.Violations++
	r.stats.LastProblem = err.Error()
	r.forceRefill = true
	if r.metrics != nil {
		r.metrics.InvariantViolation(r.id)
	}
	r.emit(ctx, eventbus.TypeInvariantViolated, 9, eventbus.InvariantViolatedPayload{
		Source: r.engine.Source(), Error: err.Error(),
	})
}

// CheckInvariants проверяет состояние движка вне тика
func (r *Regulator) CheckInvariants(ctx context.Context) error {
	r.mu.Lock()
	err := r.engine.CheckInvariants()
	if err != nil && errors.Is(err, spread.ErrInvariantViolation) {
		r.violation(ctx, err)
	}
	events := r.takeOutbox()
	r.mu.Unlock()

	r.flush(ctx, events)
	return err
}

func (r *Regulator) applyEffects(ctx context.Context) {
	if r.agents == nil || r.effects == nil || r.engine.Empty() {
		return
	}
	min, max := r.engine.Source().Box(r.engine.Max())
	for _, a := range r.agents.AgentsWithin(min, max) {
		if !r.engine.Contains(a.Pos) {
			continue
		}
		s, _ := r.engine.StrengthAt(a.Pos)
		r.logger.Debug("🌡️ Агент %d климатизирован регулятором %s (сила %d)", a.ID, r.id, s)
		r.effects.ApplyModifier(a.ID, r.modifier)
		r.stats.Climatized++
		r.emit(ctx, eventbus.TypeAgentClimatized, 1, eventbus.AgentClimatizedPayload{
			Source: r.engine.Source(), AgentID: a.ID, Position: a.Pos, Modifier: r.modifier.Name,
		})
	}
}

// emit откладывает событие до конца тика. Вызывается под r.mu.
func (r *Regulator) emit(_ context.Context, eventType string, priority int, payload interface{}) {
	ev, err := eventbus.NewEnvelope(eventType, r.id, priority, payload)
	if err != nil {
		r.logger.Warn("Регулятор %s: %v", r.id, err)
		return
	}
	ev.CorrelationID = fmt.Sprintf("%s#%d", r.id, r.ticks)
	r.outbox = append(r.outbox, ev)
}

// takeOutbox забирает накопленные события. Вызывается под r.mu.
func (r *Regulator) takeOutbox() []*eventbus.Envelope {
	events := r.outbox
	r.outbox = nil
	return events
}

// flush публикует события без мьютекса. Ошибки шины не прерывают тик.
func (r *Regulator) flush(ctx context.Context, events []*eventbus.Envelope) {
	for _, ev := range events {
		if err := r.publish(ctx, ev); err != nil {
			r.logger.Warn("Регулятор %s: не удалось опубликовать %s: %v", r.id, ev.EventType, err)
		}
	}
}
