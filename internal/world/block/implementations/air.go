package implementations

import "github.com/annel0/climate-coil/internal/world/block"

// AirBehavior реализует поведение пустого блока (воздуха)
type AirBehavior struct{}

func (b *AirBehavior) ID() block.BlockID { return block.AirBlockID }
func (b *AirBehavior) Name() string      { return "Air" }
func (b *AirBehavior) FullCube() bool    { return false }
func (b *AirBehavior) Opaque() bool      { return false }
