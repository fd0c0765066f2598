package spread

import (
	"fmt"

	"github.com/annel0/climate-coil/internal/vec"
)

// Snapshot - независимая копия состояния движка
type Snapshot struct {
	Source      vec.Vec3
	MaxDistance int
	Spread      map[vec.Vec3]int
	Edges       map[vec.Vec3]int
}

// Snapshot копирует обе карты. Очередь инвалидации не сохраняется.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Source:      e.source,
		MaxDistance: e.max,
		Spread:      e.spread.copyMap(),
		Edges:       e.edges.copyMap(),
	}
}

// Restore заменяет карты содержимым снимка.
// Источник и бюджет снимка должны совпадать с движком.
func (e *Engine) Restore(snap Snapshot) error {
	if snap.Source != e.source || snap.MaxDistance != e.max {
		return fmt.Errorf("%w: snapshot for %s/%d does not match engine %s/%d",
			ErrConfiguration, snap.Source, snap.MaxDistance, e.source, e.max)
	}
	// В обеих картах сила не достигает бюджета: заявки делаются с силой max-1 и ниже
	for p, s := range snap.Spread {
		if p == e.source {
			return fmt.Errorf("%w: snapshot contains source %s", ErrConfiguration, p)
		}
		if _, err := NewNode(p, s, e.max-1); err != nil {
			return fmt.Errorf("snapshot spread: %w", err)
		}
	}
	for p, s := range snap.Edges {
		if _, err := NewNode(p, s, e.max-1); err != nil {
			return fmt.Errorf("snapshot edge: %w", err)
		}
	}

	e.spread.Clear()
	e.edges.Clear()
	e.invalid = e.invalid[:0]
	for p, s := range snap.Spread {
		e.spread.Set(p, s)
	}
	for p, s := range snap.Edges {
		e.edges.Add(p, s)
	}
	return nil
}
