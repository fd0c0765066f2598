package block

import "sync"

var (
	registryMu sync.RWMutex
	registry   = make(map[BlockID]BlockBehavior)
)

// Register добавляет поведение блока в регистр
func Register(id BlockID, behavior BlockBehavior) {
	registryMu.Lock()
	registry[id] = behavior
	registryMu.Unlock()
}

// Get возвращает поведение для указанного ID
func Get(id BlockID) (BlockBehavior, bool) {
	registryMu.RLock()
	behavior, exists := registry[id]
	registryMu.RUnlock()
	return behavior, exists
}

// IsValidBlockID проверяет, является ли ID допустимым идентификатором блока
func IsValidBlockID(id BlockID) bool {
	_, exists := Get(id)
	return exists
}

// BlockID представляет идентификатор блока
type BlockID uint16

// Константы ID блоков
const (
	// Базовые типы блоков
	AirBlockID   BlockID = iota // 0
	StoneBlockID                // 1
	DirtBlockID                 // 2

	// Неполные и прозрачные блоки (начиная с 100)
	GlassBlockID BlockID = 100 // полный куб, пропускает свет
	SlabBlockID  BlockID = 101 // половина блока, не пропускает свет

	// Машины (начиная с 200)
	CoilBlockID BlockID = 200 // климатическая катушка, источник тепла
)
