package implementations

import "github.com/annel0/climate-coil/internal/world/block"

// DirtBehavior реализует поведение блока земли
type DirtBehavior struct{}

func (b *DirtBehavior) ID() block.BlockID { return block.DirtBlockID }
func (b *DirtBehavior) Name() string      { return "Dirt" }
func (b *DirtBehavior) FullCube() bool    { return true }
func (b *DirtBehavior) Opaque() bool      { return true }
