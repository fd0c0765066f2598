package world

import (
	"github.com/aquilax/go-perlin"

	"github.com/annel0/climate-coil/internal/vec"
	"github.com/annel0/climate-coil/internal/world/block"
)

// CaveConfig параметры генерации пещеры
type CaveConfig struct {
	Seed    int64
	Radius  int // полуширина по X и Z
	Depth   int // глубина пола под Y=0
	Ceiling int // высота каменной крыши над Y=0

	// Порог 3D шума: чем выше, тем меньше пустот. 0 означает значение по умолчанию.
	Threshold float64
	// Порог 2D шума для шахт к небу. 0 отключает шахты.
	ShaftThreshold float64
	// Радиус камеры вокруг начала координат, которая всегда пустая
	Chamber int
}

const (
	caveScale            = 0.12
	defaultCaveThreshold = 0.08
)

// GenerateCave строит каменный бокс с пустотами по шуму Перлина.
// Крыша на Y=Ceiling сплошная, кроме шахт, где 2D шум выше ShaftThreshold.
func GenerateCave(cfg CaveConfig) *World {
	if cfg.Threshold == 0 {
		cfg.Threshold = defaultCaveThreshold
	}
	min := vec.Vec3{X: -cfg.Radius, Y: -cfg.Depth, Z: -cfg.Radius}
	max := vec.Vec3{X: cfg.Radius, Y: cfg.Ceiling, Z: cfg.Radius}
	w := NewWorld(min, max, block.StoneBlockID)

	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	noise := perlin.NewPerlin(alpha, beta, n, cfg.Seed)

	origin := vec.Vec3{}
	for x := min.X; x <= max.X; x++ {
		for z := min.Z; z <= max.Z; z++ {
			shaft := cfg.ShaftThreshold > 0 &&
				noise.Noise2D(float64(x)*caveScale, float64(z)*caveScale) > cfg.ShaftThreshold

			for y := min.Y; y <= max.Y; y++ {
				p := vec.Vec3{X: x, Y: y, Z: z}
				if y == max.Y && !shaft {
					continue
				}
				carve := p.ManhattanTo(origin) <= cfg.Chamber ||
					noise.Noise3D(float64(x)*caveScale, float64(y)*caveScale, float64(z)*caveScale) > cfg.Threshold
				if shaft && y > 0 {
					carve = true
				}
				if carve {
					w.blocks[p] = block.AirBlockID
				}
			}
			w.updateRoof(x, z)
		}
	}
	return w
}
