package eventbus

import "github.com/annel0/climate-coil/internal/vec"

// Типы событий регуляторов
const (
	TypeRegionFilled      = "RegionFilled"
	TypeRegionRepaired    = "RegionRepaired"
	TypeRegionReset       = "RegionReset"
	TypeInvariantViolated = "InvariantViolated"
	TypeAgentClimatized   = "AgentClimatized"
	TypeRegulatorPowered  = "RegulatorPowered"
)

// RegionFilledPayload полная заливка от источника
type RegionFilledPayload struct {
	Source  vec.Vec3 `json:"source"`
	Size    int      `json:"size"`
	Edges   int      `json:"edges"`
	Claimed int      `json:"claimed"`
}

// RegionRepairedPayload итог цикла починки
type RegionRepairedPayload struct {
	Source      vec.Vec3 `json:"source"`
	Invalidated int      `json:"invalidated"`
	Excised     int      `json:"excised"`
	Restored    int      `json:"restored"`
	Claimed     int      `json:"claimed"`
	Size        int      `json:"size"`
}

// RegionResetPayload область очищена
type RegionResetPayload struct {
	Source  vec.Vec3 `json:"source"`
	Cleared int      `json:"cleared"`
	Reason  string   `json:"reason"`
}

// InvariantViolatedPayload логическая ошибка движка
type InvariantViolatedPayload struct {
	Source vec.Vec3 `json:"source"`
	Error  string   `json:"error"`
}

// AgentClimatizedPayload агент получил модификатор температуры
type AgentClimatizedPayload struct {
	Source   vec.Vec3 `json:"source"`
	AgentID  uint64   `json:"agent_id"`
	Position vec.Vec3 `json:"position"`
	Modifier string   `json:"modifier"`
}

// RegulatorPoweredPayload изменилось питание регулятора
type RegulatorPoweredPayload struct {
	Source vec.Vec3 `json:"source"`
	Active bool     `json:"active"`
}
