package implementations

import "github.com/annel0/climate-coil/internal/world/block"

// SlabBehavior - половина блока. Позицию можно заполнить,
// но небо для нижних позиций она закрывает.
type SlabBehavior struct{}

func (b *SlabBehavior) ID() block.BlockID { return block.SlabBlockID }
func (b *SlabBehavior) Name() string      { return "Slab" }
func (b *SlabBehavior) FullCube() bool    { return false }
func (b *SlabBehavior) Opaque() bool      { return true }
