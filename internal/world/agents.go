package world

import (
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/climate-coil/internal/vec"
)

// Agent - существо в мире, на которое действуют модификаторы
type Agent struct {
	ID  uint64   `json:"id"`
	Pos vec.Vec3 `json:"pos"`
}

// Modifier - временный модификатор температуры
type Modifier struct {
	Name          string  `json:"name"`
	Amount        float64 `json:"amount"`         // смещение температуры
	Rate          float64 `json:"rate"`           // модификатор скорости изменения температуры
	DurationTicks int     `json:"duration_ticks"` // время действия
}

type activeModifier struct {
	Modifier
	remaining int
}

type agentState struct {
	Agent
	modifiers map[string]*activeModifier
}

// cellKey ячейка горизонтальной сетки индекса
type cellKey struct {
	x, z int
}

// agentCellSize размер ячейки индекса по X и Z
const agentCellSize = 16

func cellOf(p vec.Vec3) cellKey {
	return cellKey{x: floorDiv(p.X, agentCellSize), z: floorDiv(p.Z, agentCellSize)}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// AgentRegistry хранит агентов и их активные модификаторы.
// Поиск по боксу идёт через сетку ячеек, а не перебором всех агентов.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[uint64]*agentState
	cells  map[cellKey]map[uint64]struct{}
	nextID uint64
}

// NewAgentRegistry создаёт пустой реестр
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[uint64]*agentState),
		cells:  make(map[cellKey]map[uint64]struct{}),
		nextID: 1000, // Начинаем с 1000, чтобы избежать конфликтов с малыми ID
	}
}

func (r *AgentRegistry) index(id uint64, p vec.Vec3) {
	c := cellOf(p)
	set, ok := r.cells[c]
	if !ok {
		set = make(map[uint64]struct{})
		r.cells[c] = set
	}
	set[id] = struct{}{}
}

func (r *AgentRegistry) unindex(id uint64, p vec.Vec3) {
	c := cellOf(p)
	if set, ok := r.cells[c]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.cells, c)
		}
	}
}

// Spawn добавляет агента и возвращает его ID
func (r *AgentRegistry) Spawn(pos vec.Vec3) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.agents[id] = &agentState{
		Agent:     Agent{ID: id, Pos: pos},
		modifiers: make(map[string]*activeModifier),
	}
	r.index(id, pos)
	return id
}

// Move перемещает агента
func (r *AgentRegistry) Move(id uint64, pos vec.Vec3) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("agent %d not found", id)
	}
	r.unindex(id, a.Pos)
	a.Pos = pos
	r.index(id, pos)
	return nil
}

// Remove удаляет агента
func (r *AgentRegistry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		r.unindex(id, a.Pos)
		delete(r.agents, id)
	}
}

// AgentsWithin возвращает агентов внутри бокса [min, max], отсортированных по ID
func (r *AgentRegistry) AgentsWithin(min, max vec.Vec3) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Agent
	lo, hi := cellOf(min), cellOf(max)
	for cx := lo.x; cx <= hi.x; cx++ {
		for cz := lo.z; cz <= hi.z; cz++ {
			for id := range r.cells[cellKey{x: cx, z: cz}] {
				if a := r.agents[id]; a.Pos.Within(min, max) {
					out = append(out, a.Agent)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyModifier применяет модификатор. Модификатор с тем же именем
// перезапускается с полной длительностью.
func (r *AgentRegistry) ApplyModifier(id uint64, mod Modifier) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok || mod.DurationTicks <= 0 {
		return
	}
	a.modifiers[mod.Name] = &activeModifier{Modifier: mod, remaining: mod.DurationTicks}
}

// Modifiers возвращает активные модификаторы агента
func (r *AgentRegistry) Modifiers(id uint64) []Modifier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil
	}
	out := make([]Modifier, 0, len(a.modifiers))
	for _, m := range a.modifiers {
		out = append(out, m.Modifier)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Temperature возвращает температуру агента с учётом модификаторов
func (r *AgentRegistry) Temperature(id uint64, ambient float64) float64 {
	t := ambient
	for _, m := range r.Modifiers(id) {
		t += m.Amount
	}
	return t
}

// Tick уменьшает оставшееся время модификаторов и снимает истёкшие.
// Возвращает число снятых модификаторов.
func (r *AgentRegistry) Tick() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := 0
	for _, a := range r.agents {
		for name, m := range a.modifiers {
			m.remaining--
			if m.remaining <= 0 {
				delete(a.modifiers, name)
				expired++
			}
		}
	}
	return expired
}
