package regulator

import (
	"github.com/annel0/climate-coil/internal/logging"
	"github.com/annel0/climate-coil/internal/spread"
)

// LogObserver пишет события движка в логгер компонента
type LogObserver struct {
	id     string
	logger *logging.Logger
}

// NewLogObserver создаёт наблюдатель для регулятора id
func NewLogObserver(id string, logger *logging.Logger) *LogObserver {
	return &LogObserver{id: id, logger: logger}
}

func (o *LogObserver) FillCompleted(stats spread.FillStats) {
	if stats.Full {
		o.logger.Info("🔥 Регулятор %s: заливка завершена, занято %d, рёбер %d", o.id, stats.Claimed, stats.Edges)
		return
	}
	o.logger.Debug("Регулятор %s: дозаливка от %d затравок, занято %d, улучшено %d",
		o.id, stats.Seeds, stats.Claimed, stats.Improved)
}

func (o *LogObserver) RepairCompleted(stats spread.RepairStats) {
	o.logger.Debug("🔧 Регулятор %s: починка, в очереди %d, вырезано %d, восстановлено %d",
		o.id, stats.Invalidated, stats.Excised, stats.Restored)
	if stats.Fill.Discarded > 0 {
		o.logger.Trace("Регулятор %s: отброшено %d затравок без силы", o.id, stats.Fill.Discarded)
	}
}

func (o *LogObserver) RegionReset(cleared int) {
	o.logger.Debug("Регулятор %s: область сброшена (%d записей)", o.id, cleared)
}
