package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec3_Offset(t *testing.T) {
	origin := Vec3{X: 1, Y: 2, Z: 3}

	assert.Equal(t, Vec3{X: 1, Y: 1, Z: 3}, origin.Offset(Down))
	assert.Equal(t, Vec3{X: 1, Y: 3, Z: 3}, origin.Offset(Up))
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 2}, origin.Offset(North))
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 4}, origin.Offset(South))
	assert.Equal(t, Vec3{X: 0, Y: 2, Z: 3}, origin.Offset(West))
	assert.Equal(t, Vec3{X: 2, Y: 2, Z: 3}, origin.Offset(East))
}

func TestNeighborMode_Directions(t *testing.T) {
	assert.Len(t, AllAxes.Directions(), 6)
	assert.Len(t, Horizontal.Directions(), 4)

	for _, d := range Horizontal.Directions() {
		assert.Equal(t, 0, d.Delta().Y, "горизонтальный режим не должен менять Y (%s)", d)
	}
}

func TestParseNeighborMode(t *testing.T) {
	m, ok := ParseNeighborMode("horizontal")
	assert.True(t, ok)
	assert.Equal(t, Horizontal, m)

	m, ok = ParseNeighborMode("")
	assert.True(t, ok)
	assert.Equal(t, AllAxes, m)

	_, ok = ParseNeighborMode("diagonal")
	assert.False(t, ok)
}

func TestVec3_ManhattanAndBox(t *testing.T) {
	a := Vec3{X: 0, Y: 0, Z: 0}
	b := Vec3{X: -2, Y: 3, Z: 1}
	assert.Equal(t, 6, a.ManhattanTo(b))

	min, max := a.Box(2)
	assert.True(t, b.Within(Vec3{X: -2, Y: -3, Z: -1}, Vec3{X: 0, Y: 3, Z: 1}))
	assert.False(t, b.Within(min, max), "Y=3 выходит за бокс радиуса 2")
}
