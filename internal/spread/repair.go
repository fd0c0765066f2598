package spread

import (
	"fmt"
	"sort"

	"github.com/annel0/climate-coil/internal/vec"
)

var notifyDirections = vec.AllAxes.Directions()

// NotifyChanged ставит в очередь инвалидации позицию и её соседей,
// если они входят в область. Вызывается миром при изменении блока.
func (e *Engine) NotifyChanged(pos vec.Vec3) int {
	queued := e.queueMember(pos)
	for _, d := range notifyDirections {
		queued += e.queueMember(pos.Offset(d))
	}
	return queued
}

// ReconcileEdges перепроверяет границу: открывшиеся рёбра инвалидируют
// соседние позиции области. Сами рёбра здесь не удаляются.
func (e *Engine) ReconcileEdges() int {
	queued := 0
	for _, p := range e.edges.Keys() {
		if e.oracle.IsOpen(p) {
			queued += e.invalidateAround(p)
		}
	}
	return queued
}

// ReconcileSpread перепроверяет всю область: закрывшиеся позиции инвалидируются
// вместе с соседями.
func (e *Engine) ReconcileSpread() int {
	queued := 0
	for _, p := range e.spread.Keys() {
		if !e.oracle.IsOpen(p) {
			queued += e.invalidateAround(p)
		}
	}
	return queued
}

func (e *Engine) invalidateAround(pos vec.Vec3) int {
	queued := e.queueMember(pos)
	for _, d := range e.mode.Directions() {
		queued += e.queueMember(pos.Offset(d))
	}
	return queued
}

func (e *Engine) queueMember(pos vec.Vec3) int {
	if pos == e.source {
		// Источник не входит в область, но его предложение самое сильное
		e.invalid = append(e.invalid, Node{Pos: pos, Strength: e.max})
		return 1
	}
	s, ok := e.spread.Get(pos)
	if !ok {
		return 0
	}
	e.invalid = append(e.invalid, Node{Pos: pos, Strength: s})
	return 1
}

// Cleanup разбирает очередь инвалидации и возвращает затравки для повторной заливки.
//
// Заявки обрабатываются от сильных к слабым, чтобы слабая заявка не вырезала
// позицию, которую держит более сильный путь. Для каждой заявки область вырезается
// от позиции: соседи слабее заявки удаляются каскадом, равные и более сильные
// остаются на месте и становятся затравками. Если позиция всё ещё открыта,
// она восстанавливается со своей исходной силой.
func (e *Engine) Cleanup() ([]Node, RepairStats) {
	var stats RepairStats
	if len(e.invalid) == 0 {
		return nil, stats
	}

	claims := e.invalid
	e.invalid = nil
	e.dropped = e.dropped[:0]
	stats.Invalidated = len(claims)

	for i := range claims {
		// Устаревшая заявка: позиция уже держится сильнее, заявляем текущую силу
		if s, ok := e.spread.Get(claims[i].Pos); ok && s > claims[i].Strength {
			claims[i].Strength = s
			stats.Superseded++
		}
	}
	sort.SliceStable(claims, func(i, j int) bool {
		return claims[i].Strength > claims[j].Strength
	})

	seen := make(map[vec.Vec3]struct{}, len(claims))
	refill := make([]Node, 0, len(claims)*2)
	for _, c := range claims {
		if _, dup := seen[c.Pos]; dup {
			continue
		}
		seen[c.Pos] = struct{}{}

		if c.Pos == e.source {
			refill = append(refill, Node{Pos: e.source, Strength: e.max})
			continue
		}

		stored, present := e.spread.Get(c.Pos)
		stillValid := present && stored <= c.Strength && e.oracle.IsOpen(c.Pos)

		stats.Excised += e.excise(c.Pos, c.Strength, &refill)

		if stillValid {
			e.spread.Set(c.Pos, stored)
			refill = append(refill, Node{Pos: c.Pos, Strength: stored})
			stats.Restored++
		}
	}

	refill = e.liveSeeds(refill)
	stats.Refilled = len(refill)
	return refill, stats
}

// excise удаляет origin и каскадом всех соседей слабее claim.
// Соседи с силой не меньше claim остаются и попадают в refill. Возвращает число удалённых позиций.
func (e *Engine) excise(origin vec.Vec3, claim int, refill *[]Node) int {
	removed := 0
	if e.spread.Delete(origin) {
		removed++
	}

	dirs := e.mode.Directions()
	stack := []vec.Vec3{origin}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, d := range dirs {
			n := p.Offset(d)
			// Границу вокруг вырезанной позиции перестроит заливка
			if e.edges.Delete(n) {
				e.dropped = append(e.dropped, n)
			}

			s, ok := e.spread.Get(n)
			if !ok {
				continue
			}
			switch {
			case s > claim:
				// Держится независимым более сильным путём и не вырезается.
				// Повторный проход восстановит рёбра, снятые вокруг неё.
				*refill = append(*refill, Node{Pos: n, Strength: s})
			case s == claim:
				*refill = append(*refill, Node{Pos: n, Strength: s})
			default:
				e.spread.Delete(n)
				removed++
				stack = append(stack, n)
			}
		}
	}
	return removed
}

// liveSeeds оставляет только затравки, которые всё ещё в области,
// с их текущей силой и без повторов.
func (e *Engine) liveSeeds(seeds []Node) []Node {
	seen := make(map[vec.Vec3]struct{}, len(seeds))
	out := seeds[:0]
	for _, n := range seeds {
		if _, dup := seen[n.Pos]; dup {
			continue
		}
		s, ok := e.spread.Get(n.Pos)
		if n.Pos == e.source {
			s, ok = e.max, true
		}
		if !ok {
			continue
		}
		seen[n.Pos] = struct{}{}
		out = append(out, Node{Pos: n.Pos, Strength: s})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strength > out[j].Strength
	})
	return out
}

// Repair выполняет полный цикл: очистку, повторную заливку и проверку инвариантов.
// При пустой очереди ничего не делает.
func (e *Engine) Repair() (RepairStats, error) {
	if len(e.invalid) == 0 {
		return RepairStats{}, nil
	}

	refill, stats := e.Cleanup()
	stats.Fill = e.Propagate(refill)
	e.reattachEdges()
	e.observer.RepairCompleted(stats)

	if err := e.checkOverlap(); err != nil {
		return stats, err
	}
	return stats, nil
}

// reattachEdges возвращает в границу снятые рёбра, которые заливка не посетила,
// но рядом с которыми осталась достаточно сильная позиция области.
func (e *Engine) reattachEdges() {
	dirs := e.mode.Directions()
	for _, p := range e.dropped {
		if e.edges.Has(p) || e.spread.Has(p) || p == e.source {
			continue
		}
		best := 0
		for _, d := range dirs {
			n := p.Offset(d)
			if n == e.source {
				best = e.max
				break
			}
			if s, ok := e.spread.Get(n); ok && s > best {
				best = s
			}
		}
		if best-1 > 0 {
			e.edges.Add(p, best-1)
		}
	}
	e.dropped = e.dropped[:0]
}

// CheckInvariants проверяет, что область и граница не пересекаются,
// источник не входит в область и все силы в пределах [0, max).
func (e *Engine) CheckInvariants() error {
	if err := e.checkOverlap(); err != nil {
		return err
	}
	if e.spread.Has(e.source) {
		return fmt.Errorf("%w: source %s is a member of the region", ErrInvariantViolation, e.source)
	}
	for p, s := range e.spread.m {
		if s < 0 || s >= e.max {
			return fmt.Errorf("%w: strength %d at %s outside [0, %d)", ErrInvariantViolation, s, p, e.max)
		}
	}
	return nil
}

func (e *Engine) checkOverlap() error {
	small, large := e.edges.m, e.spread.m
	if len(small) > len(large) {
		small, large = large, small
	}
	for p := range small {
		if _, ok := large[p]; ok {
			return fmt.Errorf("%w: %s is both a region member and an edge", ErrInvariantViolation, p)
		}
	}
	return nil
}
