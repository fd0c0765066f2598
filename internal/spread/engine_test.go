package spread

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/climate-coil/internal/vec"
)

// grid - тестовый мир: бокс открытых позиций с набором заблокированных
type grid struct {
	min, max vec.Vec3
	blocked  map[vec.Vec3]bool
}

func newGrid(r int) *grid {
	return &grid{
		min:     vec.Vec3{X: -r, Y: -r, Z: -r},
		max:     vec.Vec3{X: r, Y: r, Z: r},
		blocked: make(map[vec.Vec3]bool),
	}
}

func (g *grid) IsOpen(p vec.Vec3) bool {
	return p.Within(g.min, g.max) && !g.blocked[p]
}

func (g *grid) toggle(p vec.Vec3) {
	g.blocked[p] = !g.blocked[p]
}

// countingObserver считает события движка
type countingObserver struct {
	fills   []FillStats
	repairs []RepairStats
	resets  []int
}

func (o *countingObserver) FillCompleted(s FillStats)     { o.fills = append(o.fills, s) }
func (o *countingObserver) RepairCompleted(s RepairStats) { o.repairs = append(o.repairs, s) }
func (o *countingObserver) RegionReset(n int)             { o.resets = append(o.resets, n) }

// referenceFill считает ожидаемую область обычным BFS по расстояниям
func referenceFill(src vec.Vec3, max int, mode vec.NeighborMode, open func(vec.Vec3) bool) map[vec.Vec3]int {
	type item struct {
		p vec.Vec3
		d int
	}
	out := make(map[vec.Vec3]int)
	visited := map[vec.Vec3]bool{src: true}
	queue := []item{{p: src}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next := max - cur.d - 1
		if next <= 0 {
			continue
		}
		for _, d := range mode.Directions() {
			n := cur.p.Offset(d)
			if visited[n] || !open(n) {
				continue
			}
			visited[n] = true
			out[n] = next
			queue = append(queue, item{p: n, d: cur.d + 1})
		}
	}
	return out
}

func newPlaneEngine(t *testing.T, g *grid, obs Observer) *Engine {
	t.Helper()
	e, err := New(Config{MaxDistance: 3, Mode: vec.Horizontal, Observer: obs}, g)
	require.NoError(t, err)
	return e
}

func at(x, z int) vec.Vec3 { return vec.Vec3{X: x, Z: z} }

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.True(t, errors.Is(err, ErrConfiguration), "без оракула движок не создаётся")

	_, err = New(Config{MaxDistance: -1}, newGrid(2))
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = New(Config{Mode: vec.NeighborMode(7)}, newGrid(2))
	assert.True(t, errors.Is(err, ErrConfiguration))

	e, err := New(Config{}, newGrid(2))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSpreadDistance, e.Max(), "0 означает бюджет по умолчанию")
}

func TestNewNode_ValidatesStrength(t *testing.T) {
	_, err := NewNode(vec.Vec3{}, -1, 5)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = NewNode(vec.Vec3{}, 6, 5)
	assert.True(t, errors.Is(err, ErrConfiguration))

	n, err := NewNode(vec.Vec3{X: 1}, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n.Strength)
}

func TestFill_OpenPlane(t *testing.T) {
	g := newGrid(10)
	e := newPlaneEngine(t, g, nil)

	stats := e.Fill()

	assert.Equal(t, 12, e.Len(), "бюджет 3 в четырёх направлениях даёт 12 позиций")
	assert.Equal(t, 12, stats.Claimed)
	assert.Equal(t, 0, e.EdgeLen(), "в открытом мире граница пуста")
	assert.False(t, e.Contains(vec.Vec3{}), "источник не входит в область")

	s, ok := e.StrengthAt(at(1, 0))
	assert.True(t, ok)
	assert.Equal(t, 2, s)
	s, _ = e.StrengthAt(at(1, 1))
	assert.Equal(t, 1, s)
	s, _ = e.StrengthAt(at(0, -2))
	assert.Equal(t, 1, s)
	assert.False(t, e.Contains(at(3, 0)), "позиции с нулевой силой не занимаются")
}

func TestFill_WallBecomesEdge(t *testing.T) {
	g := newGrid(10)
	g.blocked[at(1, 0)] = true
	e := newPlaneEngine(t, g, nil)

	e.Fill()

	edge, ok := e.EdgeAt(at(1, 0))
	assert.True(t, ok, "закрытый сосед источника записывается в границу")
	assert.Equal(t, 2, edge)
	assert.False(t, e.Contains(at(1, 0)))
	assert.False(t, e.Contains(at(2, 0)), "за стеной бюджета не хватает")
	assert.Equal(t, 10, e.Len())
	assert.NoError(t, e.CheckInvariants())
}

func TestRepair_OpenedWallJoinsRegion(t *testing.T) {
	g := newGrid(10)
	g.blocked[at(1, 0)] = true
	e := newPlaneEngine(t, g, nil)
	e.Fill()

	g.toggle(at(1, 0))
	queued := e.ReconcileEdges()
	assert.Greater(t, queued, 0, "открывшееся ребро должно поставить соседей в очередь")

	_, err := e.Repair()
	require.NoError(t, err)

	s, _ := e.StrengthAt(at(1, 0))
	assert.Equal(t, 2, s)
	s, _ = e.StrengthAt(at(2, 0))
	assert.Equal(t, 1, s)
	assert.Equal(t, 12, e.Len())
	assert.Equal(t, 0, e.Pending())
	assert.NoError(t, e.CheckInvariants())
}

func TestRepair_BlockedMemberIsExcised(t *testing.T) {
	g := newGrid(10)
	e := newPlaneEngine(t, g, nil)
	e.Fill()

	g.toggle(at(1, 0))
	assert.Greater(t, e.ReconcileSpread(), 0)
	stats, err := e.Repair()
	require.NoError(t, err)

	assert.False(t, e.Contains(at(1, 0)))
	assert.False(t, e.Contains(at(2, 0)), "позиция держалась только через закрытую")
	assert.True(t, e.Contains(at(1, 1)), "диагональ остаётся через боковой путь")
	edge, ok := e.EdgeAt(at(1, 0))
	assert.True(t, ok)
	assert.Equal(t, 2, edge)
	assert.Equal(t, 10, e.Len())
	assert.Greater(t, stats.Excised, 0)

	assert.Equal(t, referenceFill(e.Source(), e.Max(), e.Mode(), g.IsOpen), e.Snapshot().Spread)
}

func TestFill_StrengthsFollowDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	g := newGrid(6)
	for i := 0; i < 300; i++ {
		p := vec.Vec3{X: rng.Intn(13) - 6, Y: rng.Intn(13) - 6, Z: rng.Intn(13) - 6}
		if p != (vec.Vec3{}) {
			g.blocked[p] = true
		}
	}
	e, err := New(Config{MaxDistance: 8}, g)
	require.NoError(t, err)

	stats := e.Fill()

	snap := e.Snapshot()
	for p, s := range snap.Spread {
		assert.True(t, s >= 1 && s < e.Max(), "сила %d в %s вне диапазона", s, p)
		if p.ManhattanTo(e.Source()) == 1 {
			assert.Equal(t, e.Max()-1, s)
			continue
		}
		supported := false
		for _, d := range vec.AllAxes.Directions() {
			if ns, ok := snap.Spread[p.Offset(d)]; ok && ns == s+1 {
				supported = true
			}
		}
		assert.True(t, supported, "у %s нет соседа с силой %d", p, s+1)
	}
	assert.Equal(t, referenceFill(e.Source(), e.Max(), e.Mode(), g.IsOpen), snap.Spread)

	assert.Equal(t, 0, stats.Improved, "полная заливка не пересматривает позиции")
	assert.Equal(t, e.Len(), stats.Claimed, "каждая позиция занимается ровно один раз")
	assert.NoError(t, e.CheckInvariants())
}

func TestReset_Idempotent(t *testing.T) {
	obs := &countingObserver{}
	e := newPlaneEngine(t, newGrid(10), obs)
	e.Fill()
	e.NotifyChanged(at(1, 0))

	e.Reset()
	e.Reset()

	assert.True(t, e.Empty())
	assert.Equal(t, 0, e.EdgeLen())
	assert.Equal(t, 0, e.Pending())
	assert.Len(t, obs.resets, 1, "повторный сброс ничего не меняет")
}

func TestRepair_EmptyQueueIsNoop(t *testing.T) {
	obs := &countingObserver{}
	e := newPlaneEngine(t, newGrid(10), obs)
	e.Fill()

	stats, err := e.Repair()
	require.NoError(t, err)
	assert.Equal(t, RepairStats{}, stats)
	assert.Empty(t, obs.repairs)

	assert.Equal(t, FillStats{}, e.Propagate(nil))
}

func TestRepair_EqualStrengthNeighborsSurvive(t *testing.T) {
	g := newGrid(10)
	e := newPlaneEngine(t, g, nil)
	e.Fill()

	// Соседи (1,0) с силой 1 не держатся через неё: (1,1) и (1,-1) питаются сбоку
	g.toggle(at(1, 0))
	e.NotifyChanged(at(1, 0))
	_, err := e.Repair()
	require.NoError(t, err)

	s, ok := e.StrengthAt(at(0, 1))
	assert.True(t, ok)
	assert.Equal(t, 2, s, "сосед источника не должен терять силу")
	assert.True(t, e.Contains(at(1, 1)))
	assert.True(t, e.Contains(at(1, -1)))
}

func TestCleanup_StrongerNeighborStaysAndSeeds(t *testing.T) {
	g := newGrid(10)
	e := newPlaneEngine(t, g, nil)
	e.Fill()

	// (2,0) держится силой 1 от (1,0) с силой 2
	g.toggle(at(2, 0))
	e.invalid = append(e.invalid, Node{Pos: at(2, 0), Strength: 1})
	seeds, stats := e.Cleanup()

	s, ok := e.StrengthAt(at(1, 0))
	require.True(t, ok, "более сильный сосед не вырезается")
	assert.Equal(t, 2, s)
	assert.Contains(t, seeds, Node{Pos: at(1, 0), Strength: 2}, "сосед становится затравкой")
	assert.Equal(t, 1, stats.Excised)

	e.Propagate(seeds)
	fresh := newPlaneEngine(t, g, nil)
	fresh.Fill()
	assert.Equal(t, fresh.Snapshot(), e.Snapshot(), "затравка восстанавливает ребро на месте вырезанной позиции")
}

func TestRepair_ConvergesAfterSingleChange(t *testing.T) {
	for seed := int64(1); seed <= 40; seed++ {
		rng := rand.New(rand.NewSource(seed))
		g := newGrid(6)
		for i := 0; i < 500; i++ {
			p := vec.Vec3{X: rng.Intn(13) - 6, Y: rng.Intn(13) - 6, Z: rng.Intn(13) - 6}
			if p != (vec.Vec3{}) {
				g.blocked[p] = true
			}
		}
		mode := vec.AllAxes
		if seed%4 == 0 {
			mode = vec.Horizontal
		}
		e, err := New(Config{MaxDistance: 7, Mode: mode}, g)
		require.NoError(t, err)
		e.Fill()

		// Несколько последовательных изменений, каждое со своим циклом починки
		for step := 0; step < 6; step++ {
			p := vec.Vec3{X: rng.Intn(9) - 4, Y: rng.Intn(9) - 4, Z: rng.Intn(9) - 4}
			if mode == vec.Horizontal {
				p.Y = 0
			}
			if p == e.Source() {
				continue
			}
			g.toggle(p)

			e.ReconcileEdges()
			e.ReconcileSpread()
			_, err := e.Repair()
			require.NoError(t, err, "seed %d step %d", seed, step)

			want := referenceFill(e.Source(), e.Max(), mode, g.IsOpen)
			require.Equal(t, want, e.Snapshot().Spread, "seed %d step %d: изменение %s", seed, step, p)
			require.NoError(t, e.CheckInvariants())
		}
	}
}

func TestRepair_NotifyChangedMatchesFreshFill(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	g := newGrid(5)
	for i := 0; i < 200; i++ {
		p := vec.Vec3{X: rng.Intn(11) - 5, Y: rng.Intn(11) - 5, Z: rng.Intn(11) - 5}
		if p != (vec.Vec3{}) {
			g.blocked[p] = true
		}
	}
	e, err := New(Config{MaxDistance: 6}, g)
	require.NoError(t, err)
	e.Fill()

	for step := 0; step < 30; step++ {
		p := vec.Vec3{X: rng.Intn(7) - 3, Y: rng.Intn(7) - 3, Z: rng.Intn(7) - 3}
		if p == e.Source() {
			continue
		}
		g.toggle(p)
		e.NotifyChanged(p)
		_, err := e.Repair()
		require.NoError(t, err)
		require.Equal(t, referenceFill(e.Source(), e.Max(), e.Mode(), g.IsOpen), e.Snapshot().Spread, "шаг %d", step)
	}
}

func TestRepair_EnclosedSourceOpens(t *testing.T) {
	g := newGrid(10)
	for _, d := range vec.Horizontal.Directions() {
		g.blocked[vec.Vec3{}.Offset(d)] = true
	}
	e := newPlaneEngine(t, g, nil)
	e.Fill()
	require.True(t, e.Empty())
	require.Equal(t, 4, e.EdgeLen())

	g.toggle(at(0, 1))
	e.ReconcileEdges()
	_, err := e.Repair()
	require.NoError(t, err)

	assert.Equal(t, referenceFill(e.Source(), e.Max(), e.Mode(), g.IsOpen), e.Snapshot().Spread)
	assert.Equal(t, 3, e.Len())
}

func TestCleanup_StaleClaimIsLifted(t *testing.T) {
	e := newPlaneEngine(t, newGrid(10), nil)
	e.Fill()

	e.invalid = append(e.invalid, Node{Pos: at(1, 0), Strength: 1})
	refill, stats := e.Cleanup()

	assert.Equal(t, 1, stats.Superseded)
	assert.Equal(t, 1, stats.Restored)
	require.NotEmpty(t, refill)
	assert.Equal(t, 2, refill[0].Strength, "затравки идут от сильных к слабым")
	for i := 1; i < len(refill); i++ {
		assert.GreaterOrEqual(t, refill[i-1].Strength, refill[i].Strength)
	}

	e.Propagate(refill)
	assert.Equal(t, 12, e.Len())
}

func TestEdgeMap_KeepsMaximum(t *testing.T) {
	em := NewEdgeMap(4)
	p := at(3, 3)

	assert.True(t, em.Add(p, 2))
	assert.False(t, em.Add(p, 1), "более слабое ребро не перезаписывает")
	s, _ := em.Get(p)
	assert.Equal(t, 2, s)

	assert.True(t, em.Add(p, 5))
	s, _ = em.Get(p)
	assert.Equal(t, 5, s)

	assert.True(t, em.Delete(p))
	assert.False(t, em.Delete(p))
}

func TestNodeQueue_GrowKeepsOrder(t *testing.T) {
	q := newNodeQueue(0)
	for i := 0; i < 5; i++ {
		q.push(Node{Strength: i})
	}
	// Сдвигаем голову, чтобы рост прошёл через перенос кольца
	q.pop()
	q.pop()
	for i := 5; i < 40; i++ {
		q.push(Node{Strength: i})
	}

	for want := 2; want < 40; want++ {
		n, ok := q.pop()
		require.True(t, ok)
		assert.Equal(t, want, n.Strength)
	}
	_, ok := q.pop()
	assert.False(t, ok)
}

func TestMultiObserver_Broadcasts(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	e := newPlaneEngine(t, newGrid(10), MultiObserver{a, b})

	e.Fill()
	e.Reset()

	assert.Len(t, a.fills, 1)
	assert.Len(t, b.fills, 1)
	assert.Equal(t, []int{12}, a.resets)
	assert.Equal(t, a.resets, b.resets)
}

func TestRestore_RejectsForeignSnapshot(t *testing.T) {
	e := newPlaneEngine(t, newGrid(10), nil)
	e.Fill()
	snap := e.Snapshot()

	other, err := New(Config{Source: at(5, 5), MaxDistance: 3, Mode: vec.Horizontal}, newGrid(10))
	require.NoError(t, err)
	assert.True(t, errors.Is(other.Restore(snap), ErrConfiguration))

	snap.Spread[at(0, 0)] = 1
	fresh := newPlaneEngine(t, newGrid(10), nil)
	assert.True(t, errors.Is(fresh.Restore(snap), ErrConfiguration), "источник не может быть в области")

	delete(snap.Spread, at(0, 0))
	require.NoError(t, fresh.Restore(snap))
	assert.Equal(t, e.Len(), fresh.Len())
}

func TestRestore_ValidatesStrengths(t *testing.T) {
	e := newPlaneEngine(t, newGrid(10), nil)
	e.Fill()
	good := e.Snapshot()

	bad := e.Snapshot()
	bad.Spread[at(1, 0)] = 3
	assert.True(t, errors.Is(e.Restore(bad), ErrConfiguration), "сила в области не достигает бюджета")

	bad = e.Snapshot()
	bad.Edges[at(7, 7)] = 3
	assert.True(t, errors.Is(e.Restore(bad), ErrConfiguration), "сила ребра не достигает бюджета")

	bad = e.Snapshot()
	bad.Edges[at(7, 7)] = -1
	assert.True(t, errors.Is(e.Restore(bad), ErrConfiguration))

	assert.Equal(t, len(good.Spread), e.Len(), "отклонённый снимок не трогает карты")
}
