package implementations

import "github.com/annel0/climate-coil/internal/world/block"

// StoneBehavior реализует поведение блока камня
type StoneBehavior struct{}

// ID возвращает идентификатор блока
func (b *StoneBehavior) ID() block.BlockID {
	return block.StoneBlockID
}

// Name возвращает имя блока
func (b *StoneBehavior) Name() string {
	return "Stone"
}

// FullCube камень занимает позицию целиком
func (b *StoneBehavior) FullCube() bool {
	return true
}

// Opaque камень не пропускает свет
func (b *StoneBehavior) Opaque() bool {
	return true
}
