package spread

import "github.com/annel0/climate-coil/internal/vec"

// SpreadMap хранит позиции области и их оставшуюся силу.
// Источник в карту никогда не попадает.
type SpreadMap struct {
	m map[vec.Vec3]int
}

// NewSpreadMap создаёт пустую карту области с заданной начальной ёмкостью
func NewSpreadMap(capacity int) *SpreadMap {
	return &SpreadMap{m: make(map[vec.Vec3]int, capacity)}
}

// Get возвращает силу в позиции
func (sm *SpreadMap) Get(pos vec.Vec3) (int, bool) {
	s, ok := sm.m[pos]
	return s, ok
}

// Has проверяет принадлежность позиции области
func (sm *SpreadMap) Has(pos vec.Vec3) bool {
	_, ok := sm.m[pos]
	return ok
}

// Set записывает силу в позиции
func (sm *SpreadMap) Set(pos vec.Vec3, strength int) {
	sm.m[pos] = strength
}

// Delete удаляет позицию, возвращает true если она была в карте
func (sm *SpreadMap) Delete(pos vec.Vec3) bool {
	if _, ok := sm.m[pos]; !ok {
		return false
	}
	delete(sm.m, pos)
	return true
}

// Len возвращает количество позиций
func (sm *SpreadMap) Len() int {
	return len(sm.m)
}

// Keys возвращает снимок ключей; карту можно менять во время обхода снимка
func (sm *SpreadMap) Keys() []vec.Vec3 {
	keys := make([]vec.Vec3, 0, len(sm.m))
	for p := range sm.m {
		keys = append(keys, p)
	}
	return keys
}

// Clear очищает карту и возвращает число удалённых позиций
func (sm *SpreadMap) Clear() int {
	n := len(sm.m)
	clear(sm.m)
	return n
}

func (sm *SpreadMap) copyMap() map[vec.Vec3]int {
	out := make(map[vec.Vec3]int, len(sm.m))
	for p, s := range sm.m {
		out[p] = s
	}
	return out
}

// EdgeMap хранит заблокированные позиции на границе области.
// Сила ребра - максимальная из когда-либо предложенных, она никогда не уменьшается.
type EdgeMap struct {
	m map[vec.Vec3]int
}

// NewEdgeMap создаёт пустую карту границы
func NewEdgeMap(capacity int) *EdgeMap {
	return &EdgeMap{m: make(map[vec.Vec3]int, capacity)}
}

// Add записывает max(текущая, strength). Возвращает true если значение изменилось.
func (em *EdgeMap) Add(pos vec.Vec3, strength int) bool {
	if cur, ok := em.m[pos]; ok && cur >= strength {
		return false
	}
	em.m[pos] = strength
	return true
}

// Get возвращает силу ребра
func (em *EdgeMap) Get(pos vec.Vec3) (int, bool) {
	s, ok := em.m[pos]
	return s, ok
}

// Has проверяет наличие ребра
func (em *EdgeMap) Has(pos vec.Vec3) bool {
	_, ok := em.m[pos]
	return ok
}

// Delete удаляет ребро
func (em *EdgeMap) Delete(pos vec.Vec3) bool {
	if _, ok := em.m[pos]; !ok {
		return false
	}
	delete(em.m, pos)
	return true
}

// Len возвращает количество рёбер
func (em *EdgeMap) Len() int {
	return len(em.m)
}

// Keys возвращает снимок ключей
func (em *EdgeMap) Keys() []vec.Vec3 {
	keys := make([]vec.Vec3, 0, len(em.m))
	for p := range em.m {
		keys = append(keys, p)
	}
	return keys
}

// Clear очищает карту и возвращает число удалённых рёбер
func (em *EdgeMap) Clear() int {
	n := len(em.m)
	clear(em.m)
	return n
}

func (em *EdgeMap) copyMap() map[vec.Vec3]int {
	out := make(map[vec.Vec3]int, len(em.m))
	for p, s := range em.m {
		out[p] = s
	}
	return out
}
