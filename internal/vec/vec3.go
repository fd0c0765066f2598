package vec

import "fmt"

// Vec3 представляет позицию вокселя в мире с целочисленными координатами.
// Ось Y направлена вверх (к небу).
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает другой вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Offset возвращает соседнюю позицию в указанном направлении
func (v Vec3) Offset(d Direction) Vec3 {
	return v.Add(d.Delta())
}

// Up возвращает позицию над текущей
func (v Vec3) Up() Vec3 {
	return Vec3{X: v.X, Y: v.Y + 1, Z: v.Z}
}

// ManhattanTo возвращает манхэттенское расстояние до другой позиции
func (v Vec3) ManhattanTo(other Vec3) int {
	return abs(v.X-other.X) + abs(v.Y-other.Y) + abs(v.Z-other.Z)
}

// Within проверяет, лежит ли позиция внутри бокса [min, max] включительно
func (v Vec3) Within(min, max Vec3) bool {
	return v.X >= min.X && v.X <= max.X &&
		v.Y >= min.Y && v.Y <= max.Y &&
		v.Z >= min.Z && v.Z <= max.Z
}

// Box возвращает куб с центром в v и полуребром r
func (v Vec3) Box(r int) (Vec3, Vec3) {
	return Vec3{X: v.X - r, Y: v.Y - r, Z: v.Z - r}, Vec3{X: v.X + r, Y: v.Y + r, Z: v.Z + r}
}

// String возвращает строку вида (x,y,z)
func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
