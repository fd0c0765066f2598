package spread

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/climate-coil/internal/vec"
)

func filledSnapshot(t *testing.T) Snapshot {
	t.Helper()
	g := newGrid(6)
	g.blocked[vec.Vec3{X: 1}] = true
	g.blocked[vec.Vec3{Y: 2}] = true
	e, err := New(Config{Source: vec.Vec3{}, MaxDistance: 6}, g)
	require.NoError(t, err)
	e.Fill()
	return e.Snapshot()
}

func TestSnapshotCodec_RoundTrip(t *testing.T) {
	snap := filledSnapshot(t)
	require.NotEmpty(t, snap.Edges)

	data, err := EncodeSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, []byte("CSPR"), data[:4])

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)

	again, err := EncodeSnapshot(decoded)
	require.NoError(t, err)
	assert.Equal(t, data, again, "одинаковые снимки должны давать одинаковые байты")
}

func TestSnapshotCodec_RestoresEngine(t *testing.T) {
	snap := filledSnapshot(t)
	data, err := EncodeSnapshot(snap)
	require.NoError(t, err)
	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)

	e, err := New(Config{MaxDistance: 6}, newGrid(6))
	require.NoError(t, err)
	require.NoError(t, e.Restore(decoded))

	assert.Equal(t, len(snap.Spread), e.Len())
	assert.Equal(t, len(snap.Edges), e.EdgeLen())
	assert.NoError(t, e.CheckInvariants())
}

func TestSnapshotCodec_RejectsCorruptInput(t *testing.T) {
	data, err := EncodeSnapshot(filledSnapshot(t))
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":     nil,
		"magic":     append([]byte("XXXX"), data[4:]...),
		"version":   append(append([]byte{}, data[:4]...), append([]byte{9}, data[5:]...)...),
		"truncated": data[:len(data)/2],
		"trailing":  append(append([]byte{}, data...), 0x01),
	}
	for name, input := range cases {
		_, err := DecodeSnapshot(input)
		assert.True(t, errors.Is(err, ErrCorruptSnapshot), "%s: ожидалась ошибка разбора, получено %v", name, err)
	}
}

func TestEncodeSnapshot_RejectsInvalid(t *testing.T) {
	_, err := EncodeSnapshot(Snapshot{MaxDistance: 0})
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = EncodeSnapshot(Snapshot{MaxDistance: 3, Spread: map[vec.Vec3]int{{X: 1}: 9}})
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestSnapshotCodec_EdgeStrengthWithinBudget(t *testing.T) {
	snap := Snapshot{MaxDistance: 3, Spread: map[vec.Vec3]int{}, Edges: map[vec.Vec3]int{{X: 2}: 1}}
	data, err := EncodeSnapshot(snap)
	require.NoError(t, err)

	// Последний байт - сила единственного ребра
	data[len(data)-1] = 9
	_, err = DecodeSnapshot(data)
	assert.True(t, errors.Is(err, ErrCorruptSnapshot), "ребро сильнее бюджета не читается, получено %v", err)

	snap.Edges[vec.Vec3{X: 2}] = 4
	_, err = EncodeSnapshot(snap)
	assert.True(t, errors.Is(err, ErrConfiguration))
}
