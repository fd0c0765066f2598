package world

import (
	"sync"

	"github.com/annel0/climate-coil/internal/vec"
	"github.com/annel0/climate-coil/internal/world/block"
)

// ChangeListener получает уведомление после каждой смены блока
type ChangeListener interface {
	BlockChanged(pos vec.Vec3, old, new block.BlockID)
}

// ChangeListenerFunc адаптер функции к ChangeListener
type ChangeListenerFunc func(pos vec.Vec3, old, new block.BlockID)

func (f ChangeListenerFunc) BlockChanged(pos vec.Vec3, old, new block.BlockID) { f(pos, old, new) }

type column struct{ x, z int }

// World - разреженный воксельный мир в ограниченном боксе.
// Позиции вне бокса считаются сплошным камнем, всё выше бокса - открытым небом.
type World struct {
	mu        sync.RWMutex
	min, max  vec.Vec3
	fill      block.BlockID              // блок для незаписанных позиций
	blocks    map[vec.Vec3]block.BlockID // отличия от fill
	roof      map[column]int             // верхний непрозрачный Y в колонке
	listeners []ChangeListener
}

// NewWorld создаёт мир, заполненный блоком fill
func NewWorld(min, max vec.Vec3, fill block.BlockID) *World {
	w := &World{
		min:    min,
		max:    max,
		fill:   fill,
		blocks: make(map[vec.Vec3]block.BlockID),
		roof:   make(map[column]int),
	}
	if _, opaque := block.Shape(fill); opaque {
		for x := min.X; x <= max.X; x++ {
			for z := min.Z; z <= max.Z; z++ {
				w.roof[column{x, z}] = max.Y
			}
		}
	}
	return w
}

// Bounds возвращает бокс мира
func (w *World) Bounds() (vec.Vec3, vec.Vec3) { return w.min, w.max }

// AddListener регистрирует получателя изменений
func (w *World) AddListener(l ChangeListener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

// GetBlock возвращает блок в позиции
func (w *World) GetBlock(pos vec.Vec3) block.BlockID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.blockAt(pos)
}

func (w *World) blockAt(pos vec.Vec3) block.BlockID {
	if !pos.Within(w.min, w.max) {
		if pos.Y > w.max.Y {
			return block.AirBlockID
		}
		return block.StoneBlockID
	}
	if id, ok := w.blocks[pos]; ok {
		return id
	}
	return w.fill
}

// SetBlock ставит блок и уведомляет слушателей. Позиции вне бокса игнорируются.
func (w *World) SetBlock(pos vec.Vec3, id block.BlockID) bool {
	w.mu.Lock()
	if !pos.Within(w.min, w.max) {
		w.mu.Unlock()
		return false
	}
	old := w.blockAt(pos)
	if old == id {
		w.mu.Unlock()
		return false
	}
	if id == w.fill {
		delete(w.blocks, pos)
	} else {
		w.blocks[pos] = id
	}
	w.updateRoof(pos.X, pos.Z)
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()

	for _, l := range listeners {
		l.BlockChanged(pos, old, id)
	}
	return true
}

// updateRoof пересчитывает верх колонки сверху вниз
func (w *World) updateRoof(x, z int) {
	c := column{x, z}
	for y := w.max.Y; y >= w.min.Y; y-- {
		if _, opaque := block.Shape(w.blockAt(vec.Vec3{X: x, Y: y, Z: z})); opaque {
			w.roof[c] = y
			return
		}
	}
	delete(w.roof, c)
}

// CanSeeSky true, если ни в позиции, ни над ней до верха мира нет непрозрачных блоков
func (w *World) CanSeeSky(pos vec.Vec3) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.canSeeSky(pos)
}

func (w *World) canSeeSky(pos vec.Vec3) bool {
	if pos.Y > w.max.Y {
		return true
	}
	top, ok := w.roof[column{pos.X, pos.Z}]
	if !ok {
		// Колонка вне бокса целиком из камня
		if pos.X < w.min.X || pos.X > w.max.X || pos.Z < w.min.Z || pos.Z > w.max.Z {
			return false
		}
		return true
	}
	return top < pos.Y
}

// IsOpen реализует оракл заполнения: блок не полный куб и позиция не видит неба
func (w *World) IsOpen(pos vec.Vec3) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if full, _ := block.Shape(w.blockAt(pos)); full {
		return false
	}
	return !w.canSeeSky(pos)
}

// Count возвращает число позиций в боксе с указанным блоком
func (w *World) Count(id block.BlockID) int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := 0
	for _, b := range w.blocks {
		if b == id {
			n++
		}
	}
	if id == w.fill {
		size := (w.max.X - w.min.X + 1) * (w.max.Y - w.min.Y + 1) * (w.max.Z - w.min.Z + 1)
		n += size - len(w.blocks)
	}
	return n
}
