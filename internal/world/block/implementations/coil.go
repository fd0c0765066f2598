package implementations

import "github.com/annel0/climate-coil/internal/world/block"

// CoilBehavior - климатическая катушка. Сама является полным кубом,
// область строится вокруг неё.
type CoilBehavior struct{}

func (b *CoilBehavior) ID() block.BlockID { return block.CoilBlockID }
func (b *CoilBehavior) Name() string      { return "Climate Coil" }
func (b *CoilBehavior) FullCube() bool    { return true }
func (b *CoilBehavior) Opaque() bool      { return true }
