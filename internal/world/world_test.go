package world

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/climate-coil/internal/spread"
	"github.com/annel0/climate-coil/internal/vec"
	"github.com/annel0/climate-coil/internal/world/block"
	// Импортируем реализации блоков для регистрации в init()
	_ "github.com/annel0/climate-coil/internal/world/block/implementations"
)

// roofedRoom - воздушный бокс 7x7x7 с каменной крышей на верхнем слое
func roofedRoom(t *testing.T) *World {
	t.Helper()
	w := NewWorld(vec.Vec3{X: -3, Y: -3, Z: -3}, vec.Vec3{X: 3, Y: 3, Z: 3}, block.AirBlockID)
	for x := -3; x <= 3; x++ {
		for z := -3; z <= 3; z++ {
			w.SetBlock(vec.Vec3{X: x, Y: 3, Z: z}, block.StoneBlockID)
		}
	}
	return w
}

func TestWorld_IsOpenRespectsShapeAndSky(t *testing.T) {
	w := roofedRoom(t)
	center := vec.Vec3{}

	assert.True(t, w.IsOpen(center), "воздух под крышей открыт")

	w.SetBlock(center, block.GlassBlockID)
	assert.False(t, w.IsOpen(center), "стекло - полный куб")

	slab := vec.Vec3{X: 1}
	w.SetBlock(slab, block.SlabBlockID)
	assert.True(t, w.IsOpen(slab), "плита не полный куб")

	hole := vec.Vec3{X: 2, Y: 0, Z: 2}
	w.SetBlock(vec.Vec3{X: 2, Y: 3, Z: 2}, block.AirBlockID)
	assert.True(t, w.CanSeeSky(hole))
	assert.False(t, w.IsOpen(hole), "позиция под открытым небом не заполняется")

	w.SetBlock(vec.Vec3{X: 2, Y: 3, Z: 2}, block.GlassBlockID)
	assert.False(t, w.IsOpen(hole), "стекло пропускает небо")

	w.SetBlock(vec.Vec3{X: 2, Y: 3, Z: 2}, block.SlabBlockID)
	assert.True(t, w.IsOpen(hole), "плита закрывает небо")
	assert.True(t, w.IsOpen(vec.Vec3{X: 2, Y: 3, Z: 2}), "позиция с плитой сама накрыта")
}

func TestWorld_OutsideBounds(t *testing.T) {
	w := roofedRoom(t)

	assert.Equal(t, block.StoneBlockID, w.GetBlock(vec.Vec3{X: 9}))
	assert.Equal(t, block.AirBlockID, w.GetBlock(vec.Vec3{Y: 9}))
	assert.False(t, w.IsOpen(vec.Vec3{X: 9}))
	assert.False(t, w.SetBlock(vec.Vec3{X: 9}, block.AirBlockID), "вне бокса блоки не ставятся")
}

func TestWorld_NotifiesListeners(t *testing.T) {
	w := roofedRoom(t)

	type change struct {
		pos      vec.Vec3
		old, new block.BlockID
	}
	var got []change
	w.AddListener(ChangeListenerFunc(func(pos vec.Vec3, old, new block.BlockID) {
		got = append(got, change{pos, old, new})
	}))

	p := vec.Vec3{X: 1, Y: -1, Z: 0}
	assert.True(t, w.SetBlock(p, block.StoneBlockID))
	assert.False(t, w.SetBlock(p, block.StoneBlockID), "тот же блок не считается изменением")

	require.Len(t, got, 1)
	assert.Equal(t, change{p, block.AirBlockID, block.StoneBlockID}, got[0])
}

func TestGenerateCave_Deterministic(t *testing.T) {
	cfg := CaveConfig{Seed: 42, Radius: 8, Depth: 6, Ceiling: 4, Chamber: 2}
	a := GenerateCave(cfg)
	b := GenerateCave(cfg)

	assert.Equal(t, a.Count(block.AirBlockID), b.Count(block.AirBlockID), "один сид - одна пещера")
	assert.Greater(t, a.Count(block.AirBlockID), 0)

	for _, d := range vec.AllAxes.Directions() {
		assert.True(t, a.IsOpen(vec.Vec3{}.Offset(d)), "камера вокруг начала координат пустая")
	}
	for x := -8; x <= 8; x++ {
		assert.False(t, a.CanSeeSky(vec.Vec3{X: x, Y: 0, Z: x}), "без шахт крыша сплошная")
	}
}

func TestGenerateCave_Shafts(t *testing.T) {
	w := GenerateCave(CaveConfig{Seed: 3, Radius: 12, Depth: 4, Ceiling: 4, ShaftThreshold: 0.05})

	open := 0
	for x := -12; x <= 12; x++ {
		for z := -12; z <= 12; z++ {
			if w.CanSeeSky(vec.Vec3{X: x, Y: 1, Z: z}) {
				open++
			}
		}
	}
	assert.Greater(t, open, 0, "шахты должны выходить к небу")
}

func TestAgentRegistry_Modifiers(t *testing.T) {
	r := NewAgentRegistry()
	a := r.Spawn(vec.Vec3{X: 1})
	b := r.Spawn(vec.Vec3{X: 40, Z: -40})
	assert.Equal(t, uint64(1000), a)

	got := r.AgentsWithin(vec.Vec3{X: -5, Y: -5, Z: -5}, vec.Vec3{X: 5, Y: 5, Z: 5})
	require.Len(t, got, 1)
	assert.Equal(t, a, got[0].ID)

	require.NoError(t, r.Move(b, vec.Vec3{X: -2}))
	got = r.AgentsWithin(vec.Vec3{X: -5, Y: -5, Z: -5}, vec.Vec3{X: 5, Y: 5, Z: 5})
	assert.Len(t, got, 2, "после перемещения агент попадает в бокс")
	assert.Error(t, r.Move(9999, vec.Vec3{}))

	mod := Modifier{Name: "Climatisation", Amount: 20, Rate: -500, DurationTicks: 3}
	r.ApplyModifier(a, mod)
	assert.Equal(t, 40.0, r.Temperature(a, 20))

	r.Tick()
	r.Tick()
	r.ApplyModifier(a, mod)
	r.Tick()
	r.Tick()
	assert.Len(t, r.Modifiers(a), 1, "повторное применение продлевает модификатор")
	r.Tick()
	assert.Empty(t, r.Modifiers(a))
	assert.Equal(t, 20.0, r.Temperature(a, 20))

	r.Remove(a)
	assert.Nil(t, r.Modifiers(a))
}

func referenceFill(src vec.Vec3, max int, open func(vec.Vec3) bool) map[vec.Vec3]int {
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
		for _, d := range vec.AllAxes.Directions() {
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

func TestCave_RepairMatchesFreshFill(t *testing.T) {
	for seed := int64(1); seed <= 6; seed++ {
		w := GenerateCave(CaveConfig{Seed: seed, Radius: 8, Depth: 6, Ceiling: 4, Chamber: 2})
		w.SetBlock(vec.Vec3{}, block.CoilBlockID)

		e, err := spread.New(spread.Config{MaxDistance: 9}, w)
		require.NoError(t, err)
		w.AddListener(ChangeListenerFunc(func(pos vec.Vec3, _, _ block.BlockID) {
			e.NotifyChanged(pos)
		}))
		e.Fill()
		require.Equal(t, referenceFill(e.Source(), e.Max(), w.IsOpen), e.Snapshot().Spread)

		rng := rand.New(rand.NewSource(seed))
		for step := 0; step < 40; step++ {
			// Ниже крыши смена блока не меняет видимость неба соседей
			p := vec.Vec3{X: rng.Intn(13) - 6, Y: rng.Intn(9) - 5, Z: rng.Intn(13) - 6}
			if p == e.Source() {
				continue
			}
			if w.GetBlock(p) == block.AirBlockID {
				w.SetBlock(p, block.StoneBlockID)
			} else {
				w.SetBlock(p, block.AirBlockID)
			}

			if step%3 == 0 {
				e.ReconcileEdges()
				e.ReconcileSpread()
			}
			_, err := e.Repair()
			require.NoError(t, err)
			require.Equal(t, referenceFill(e.Source(), e.Max(), w.IsOpen), e.Snapshot().Spread,
				"seed %d шаг %d: изменение в %s", seed, step, p)
		}
	}
}
