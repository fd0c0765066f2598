package spread

import (
	"fmt"

	"github.com/annel0/climate-coil/internal/vec"
)

// Oracle отвечает, можно ли заполнить позицию: не полный куб и не видит неба.
// Ответы могут меняться между вызовами, движок их не кэширует.
type Oracle interface {
	IsOpen(pos vec.Vec3) bool
}

// OracleFunc адаптер функции к Oracle
type OracleFunc func(pos vec.Vec3) bool

func (f OracleFunc) IsOpen(pos vec.Vec3) bool { return f(pos) }

// Config параметры движка
type Config struct {
	Source      vec.Vec3         // позиция источника тепла
	MaxDistance int              // бюджет силы, 0 означает DefaultMaxSpreadDistance
	Mode        vec.NeighborMode // 6 или 4 направления
	Observer    Observer         // nil означает NopObserver
}

// Engine поддерживает область распространения от источника и чинит её
// инкрементально при изменениях мира.
//
// Движок однопоточный: все методы должны вызываться из одного тика.
type Engine struct {
	source   vec.Vec3
	max      int
	mode     vec.NeighborMode
	oracle   Oracle
	observer Observer

	spread  *SpreadMap
	edges   *EdgeMap
	invalid []Node     // очередь инвалидации в порядке поступления
	dropped []vec.Vec3 // рёбра, снятые последней очисткой
}

// New создаёт движок с пустыми картами
func New(cfg Config, oracle Oracle) (*Engine, error) {
	if oracle == nil {
		return nil, fmt.Errorf("%w: oracle is required", ErrConfiguration)
	}
	if cfg.MaxDistance == 0 {
		cfg.MaxDistance = DefaultMaxSpreadDistance
	}
	if cfg.MaxDistance < 0 {
		return nil, fmt.Errorf("%w: max distance %d must be positive", ErrConfiguration, cfg.MaxDistance)
	}
	if cfg.Mode != vec.AllAxes && cfg.Mode != vec.Horizontal {
		return nil, fmt.Errorf("%w: unknown neighbor mode %d", ErrConfiguration, cfg.Mode)
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}

	return &Engine{
		source:   cfg.Source,
		max:      cfg.MaxDistance,
		mode:     cfg.Mode,
		oracle:   oracle,
		observer: cfg.Observer,
		spread:   NewSpreadMap(initialCapacity(cfg.MaxDistance)),
		edges:    NewEdgeMap(256),
	}, nil
}

// initialCapacity оценивает размер области, не резервируя весь октаэдр:
// редко заполняется больше малой доли доступного объёма.
func initialCapacity(max int) int {
	switch {
	case max >= 40:
		return 1 << 16
	case max >= 20:
		return 1 << 12
	default:
		return 64
	}
}

// Source возвращает позицию источника
func (e *Engine) Source() vec.Vec3 { return e.source }

// Max возвращает бюджет силы
func (e *Engine) Max() int { return e.max }

// Mode возвращает режим соседства
func (e *Engine) Mode() vec.NeighborMode { return e.mode }

// Len возвращает размер области
func (e *Engine) Len() int { return e.spread.Len() }

// EdgeLen возвращает размер границы
func (e *Engine) EdgeLen() int { return e.edges.Len() }

// Pending возвращает длину очереди инвалидации
func (e *Engine) Pending() int { return len(e.invalid) }

// Empty true, если область пуста
func (e *Engine) Empty() bool { return e.spread.Len() == 0 }

// Contains проверяет, находится ли позиция внутри области
func (e *Engine) Contains(pos vec.Vec3) bool { return e.spread.Has(pos) }

// StrengthAt возвращает силу в позиции области
func (e *Engine) StrengthAt(pos vec.Vec3) (int, bool) { return e.spread.Get(pos) }

// EdgeAt возвращает силу ребра границы
func (e *Engine) EdgeAt(pos vec.Vec3) (int, bool) { return e.edges.Get(pos) }

// Reset очищает обе карты и очередь инвалидации. Повторный вызов ничего не меняет.
func (e *Engine) Reset() {
	cleared := e.spread.Clear() + e.edges.Clear() + len(e.invalid)
	e.invalid = e.invalid[:0]
	if cleared > 0 {
		e.observer.RegionReset(cleared)
	}
}

// Fill выполняет полную заливку от источника.
// Накопленная очередь инвалидации теряет смысл и очищается.
func (e *Engine) Fill() FillStats {
	e.Reset()
	// Бюджет проверен в New, затравка источника всегда допустима
	stats := e.propagate([]Node{{Pos: e.source, Strength: e.max}}, true)
	e.invalid = e.invalid[:0]
	return stats
}

// Propagate расширяет область в ширину от переданных затравок.
// Пустая очередь ничего не делает.
func (e *Engine) Propagate(seeds []Node) FillStats {
	if len(seeds) == 0 {
		return FillStats{}
	}
	return e.propagate(seeds, false)
}

func (e *Engine) propagate(seeds []Node, full bool) FillStats {
	stats := FillStats{Full: full, Seeds: len(seeds)}
	q := newNodeQueue(len(seeds) * 8)
	for _, n := range seeds {
		q.push(n)
	}

	dirs := e.mode.Directions()
	for q.len() > 0 {
		cur, _ := q.pop()
		if cur.Strength <= 0 {
			stats.Discarded++
			continue
		}
		next := cur.Strength - 1
		if next <= 0 {
			continue
		}

		for _, d := range dirs {
			p := cur.Pos.Offset(d)
			if p == e.source {
				continue
			}

			// Уже занята не слабее - позиция не пересматривается
			stored, present := e.spread.Get(p)
			if present && stored >= next {
				continue
			}

			if !e.oracle.IsOpen(p) {
				if present {
					// Позиция области закрылась: её разберёт ближайшая очистка
					e.invalid = append(e.invalid, Node{Pos: p, Strength: stored})
					continue
				}
				if e.edges.Add(p, next) {
					stats.Edges++
				}
				continue
			}

			// Записываем сразу, чтобы не поставить позицию в очередь повторно
			e.spread.Set(p, next)
			e.edges.Delete(p)
			if present {
				stats.Improved++
			} else {
				stats.Claimed++
			}
			q.push(Node{Pos: p, Strength: next})
		}
	}

	e.observer.FillCompleted(stats)
	return stats
}
