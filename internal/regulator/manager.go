package regulator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/annel0/climate-coil/internal/config"
	"github.com/annel0/climate-coil/internal/eventbus"
	"github.com/annel0/climate-coil/internal/logging"
	"github.com/annel0/climate-coil/internal/metrics"
	"github.com/annel0/climate-coil/internal/storage"
	"github.com/annel0/climate-coil/internal/vec"
	"github.com/annel0/climate-coil/internal/world"
	"github.com/annel0/climate-coil/internal/world/block"
)

// ManagerOptions зависимости менеджера. World и Config обязательны.
type ManagerOptions struct {
	Config  config.RegulatorConfig
	World   *world.World
	Agents  *world.AgentRegistry  // может быть nil
	Store   storage.SnapshotStore // nil отключает сохранение
	Bus     eventbus.EventBus     // nil означает глобальную шину
	Metrics *metrics.Collector    // может быть nil
	Logger  *logging.Logger
}

// Manager держит регуляторы всех катушек мира и тикает их с одного тикера.
// Катушка, поставленная в мир, сразу получает регулятор; снятая - теряет его
// вместе с сохранённым состоянием.
type Manager struct {
	mu         sync.RWMutex
	opts       ManagerOptions
	regulators map[vec.Vec3]*Regulator
	powered    map[vec.Vec3]bool
	logger     *logging.Logger
	ticks      uint64
	lastTick   time.Time
}

// NewManager создаёт менеджер и подписывает его на изменения мира
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.World == nil {
		return nil, errors.New("regulator manager: world is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetRegulatorLogger()
	}
	m := &Manager{
		opts:       opts,
		regulators: make(map[vec.Vec3]*Regulator),
		powered:    make(map[vec.Vec3]bool),
		logger:     opts.Logger,
	}
	opts.World.AddListener(m)
	return m, nil
}

// BlockChanged реализует world.ChangeListener: заводит и снимает регуляторы
// для катушек и рассылает изменение всем остальным.
func (m *Manager) BlockChanged(pos vec.Vec3, old, new block.BlockID) {
	ctx := context.Background()
	if old == block.CoilBlockID && new != block.CoilBlockID {
		if err := m.Remove(ctx, pos); err != nil {
			m.logger.Warn("Не удалось снять регулятор в %s: %v", pos, err)
		}
	}
	if new == block.CoilBlockID && old != block.CoilBlockID {
		if _, err := m.Add(ctx, pos); err != nil {
			m.logger.Warn("Не удалось создать регулятор в %s: %v", pos, err)
		}
	}

	for _, r := range m.List() {
		r.NotifyBlockChange(pos)
	}
}

// Add создаёт регулятор для источника. Сохранённое состояние загружается, если есть.
func (m *Manager) Add(ctx context.Context, source vec.Vec3) (*Regulator, error) {
	m.mu.Lock()
	if r, ok := m.regulators[source]; ok {
		m.mu.Unlock()
		return r, nil
	}
	m.powered[source] = true
	m.mu.Unlock()

	r, err := New(Options{
		Source:  source,
		Config:  m.opts.Config,
		Oracle:  m.opts.World,
		Power:   SourceFunc(func() bool { return m.IsPowered(source) }),
		Agents:  m.agentLocator(),
		Effects: m.effectApplier(),
		Bus:     m.opts.Bus,
		Metrics: m.opts.Metrics,
		Logger:  m.logger,
	})
	if err != nil {
		m.mu.Lock()
		delete(m.powered, source)
		m.mu.Unlock()
		return nil, err
	}

	if m.opts.Store != nil {
		if _, err := r.Load(ctx, m.opts.Store); err != nil {
			m.logger.Warn("Регулятор %s: сохранённое состояние не загружено: %v", r.ID(), err)
		}
	}

	m.mu.Lock()
	m.regulators[source] = r
	m.mu.Unlock()
	m.logger.Info("🌀 Регулятор %s создан", r.ID())
	return r, nil
}

// agentLocator и effectApplier не должны возвращать типизированный nil
func (m *Manager) agentLocator() AgentLocator {
	if m.opts.Agents == nil {
		return nil
	}
	return m.opts.Agents
}

func (m *Manager) effectApplier() EffectApplier {
	if m.opts.Agents == nil {
		return nil
	}
	return m.opts.Agents
}

// Remove снимает регулятор и удаляет его сохранённое состояние
func (m *Manager) Remove(ctx context.Context, source vec.Vec3) error {
	m.mu.Lock()
	r, ok := m.regulators[source]
	delete(m.regulators, source)
	delete(m.powered, source)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if m.opts.Metrics != nil {
		m.opts.Metrics.Forget(r.ID())
	}
	m.logger.Info("🗑️ Регулятор %s снят", r.ID())
	if m.opts.Store != nil {
		return r.Forget(ctx, m.opts.Store)
	}
	return nil
}

// SetPowered меняет питание катушки
func (m *Manager) SetPowered(source vec.Vec3, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regulators[source]; !ok {
		return fmt.Errorf("no regulator at %s", source)
	}
	m.powered[source] = on
	return nil
}

// IsPowered сообщает, запитана ли катушка
func (m *Manager) IsPowered(source vec.Vec3) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.powered[source]
}

// Get возвращает регулятор по ID
func (m *Manager) Get(id string) (*Regulator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.regulators {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// At возвращает регулятор источника
func (m *Manager) At(source vec.Vec3) (*Regulator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regulators[source]
	return r, ok
}

// List возвращает регуляторы, отсортированные по ID
func (m *Manager) List() []*Regulator {
	m.mu.RLock()
	out := make([]*Regulator, 0, len(m.regulators))
	for _, r := range m.regulators {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Regulated проверяет, попадает ли позиция в область хотя бы одного регулятора
func (m *Manager) Regulated(pos vec.Vec3) bool {
	for _, r := range m.List() {
		if r.Contains(pos) {
			return true
		}
	}
	return false
}

// TickAll выполняет один тик всех регуляторов и истекание модификаторов агентов
func (m *Manager) TickAll(ctx context.Context) {
	m.mu.Lock()
	m.ticks++
	m.lastTick = time.Now()
	m.mu.Unlock()

	for _, r := range m.List() {
		r.Tick(ctx)
	}
	if m.opts.Agents != nil {
		m.opts.Agents.Tick()
	}
}

// SaveAll сохраняет все регуляторы. Ошибки отдельных регуляторов собираются вместе.
func (m *Manager) SaveAll(ctx context.Context) error {
	if m.opts.Store == nil {
		return nil
	}
	var errs []error
	for _, r := range m.List() {
		if err := r.Save(ctx, m.opts.Store); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run тикает регуляторы с частотой TickRate до отмены контекста.
// Перед выходом состояние сохраняется.
func (m *Manager) Run(ctx context.Context) error {
	rate := m.opts.Config.TickRate
	if rate <= 0 {
		rate = 20
	}
	interval := time.Second / time.Duration(rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var autosave <-chan time.Time
	if m.opts.Store != nil && m.opts.Config.AutosaveEvery > 0 {
		t := time.NewTicker(time.Duration(m.opts.Config.AutosaveEvery) * time.Second)
		defer t.Stop()
		autosave = t.C
	}

	m.logger.Info("🚀 Менеджер регуляторов запущен: %d тиков/с, регуляторов %d", rate, len(m.List()))
	for {
		select {
		case <-ctx.Done():
			// Контекст уже отменён, сохраняем с отдельным таймаутом
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := m.SaveAll(saveCtx)
			cancel()
			m.logger.Info("🛑 Менеджер регуляторов остановлен")
			return err
		case <-ticker.C:
			m.TickAll(ctx)
		case <-autosave:
			if err := m.SaveAll(ctx); err != nil {
				m.logger.Error("❌ Автосохранение регуляторов: %v", err)
			} else {
				m.logger.Debug("💾 Автосохранение регуляторов завершено")
			}
		}
	}
}

// Ticks возвращает число выполненных тиков
func (m *Manager) Ticks() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ticks
}

// Healthy сообщает, что тики идут: последний был не раньше десяти периодов назад
func (m *Manager) Healthy() bool {
	rate := m.opts.Config.TickRate
	if rate <= 0 {
		rate = 20
	}
	stale := 10 * time.Second / time.Duration(rate)
	if stale < time.Second {
		stale = time.Second
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.lastTick.IsZero() && time.Since(m.lastTick) <= stale
}
