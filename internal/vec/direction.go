package vec

// Direction одно из шести осевых направлений
type Direction uint8

const (
	Down Direction = iota
	Up
	North
	South
	West
	East
)

var deltas = [...]Vec3{
	Down:  {X: 0, Y: -1, Z: 0},
	Up:    {X: 0, Y: 1, Z: 0},
	North: {X: 0, Y: 0, Z: -1},
	South: {X: 0, Y: 0, Z: 1},
	West:  {X: -1, Y: 0, Z: 0},
	East:  {X: 1, Y: 0, Z: 0},
}

var names = [...]string{"down", "up", "north", "south", "west", "east"}

// Delta возвращает единичное смещение направления
func (d Direction) Delta() Vec3 {
	return deltas[d]
}

func (d Direction) String() string {
	if int(d) < len(names) {
		return names[d]
	}
	return "unknown"
}

// NeighborMode определяет, по каким направлениям распространяется заливка
type NeighborMode uint8

const (
	// AllAxes - шесть направлений, включая вертикаль
	AllAxes NeighborMode = iota
	// Horizontal - только четыре горизонтальных направления (X и Z)
	Horizontal
)

var (
	allDirections        = []Direction{Down, Up, North, South, West, East}
	horizontalDirections = []Direction{North, South, West, East}
)

// Directions возвращает список направлений для режима.
// Срез общий, вызывающий не должен его изменять.
func (m NeighborMode) Directions() []Direction {
	if m == Horizontal {
		return horizontalDirections
	}
	return allDirections
}

// String возвращает имя режима как в конфиге
func (m NeighborMode) String() string {
	if m == Horizontal {
		return "horizontal"
	}
	return "all"
}

// ParseNeighborMode разбирает имя режима из конфига.
// Пустая строка означает AllAxes.
func ParseNeighborMode(s string) (NeighborMode, bool) {
	switch s {
	case "", "all", "3d":
		return AllAxes, true
	case "horizontal", "2d":
		return Horizontal, true
	}
	return AllAxes, false
}
