package implementations

import "github.com/annel0/climate-coil/internal/world/block"

// Регистрируем все типы блоков при импорте пакета
func init() {
	block.Register(block.AirBlockID, &AirBehavior{})
	block.Register(block.StoneBlockID, &StoneBehavior{})
	block.Register(block.DirtBlockID, &DirtBehavior{})
	block.Register(block.GlassBlockID, &GlassBehavior{})
	block.Register(block.SlabBlockID, &SlabBehavior{})
	block.Register(block.CoilBlockID, &CoilBehavior{})
}
