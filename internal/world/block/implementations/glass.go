package implementations

import "github.com/annel0/climate-coil/internal/world/block"

// GlassBehavior - полный куб, который пропускает свет.
// Позиция со стеклом закрыта, но позиции под ним видят небо.
type GlassBehavior struct{}

func (b *GlassBehavior) ID() block.BlockID { return block.GlassBlockID }
func (b *GlassBehavior) Name() string      { return "Glass" }
func (b *GlassBehavior) FullCube() bool    { return true }
func (b *GlassBehavior) Opaque() bool      { return false }
