package spread

import (
	"fmt"

	"github.com/annel0/climate-coil/internal/vec"
)

// DefaultMaxSpreadDistance максимальная дистанция распространения по умолчанию
const DefaultMaxSpreadDistance = 50

// Node - элемент очереди распространения: позиция и оставшаяся сила.
// Значимый тип без ссылок на движок, свободно копируется.
type Node struct {
	Pos      vec.Vec3
	Strength int
}

// NewNode создаёт элемент очереди, проверяя силу против бюджета max.
func NewNode(pos vec.Vec3, strength, max int) (Node, error) {
	if strength < 0 || strength > max {
		return Node{}, fmt.Errorf("%w: strength %d at %s outside [0, %d]", ErrConfiguration, strength, pos, max)
	}
	return Node{Pos: pos, Strength: strength}, nil
}

func (n Node) String() string {
	return fmt.Sprintf("%s@%d", n.Pos, n.Strength)
}
