package spread

// FillStats итог одного прохода заливки
type FillStats struct {
	Full      bool // полная заливка от источника
	Seeds     int  // элементов в начальной очереди
	Claimed   int  // новых позиций в области
	Improved  int  // позиций, сила которых выросла
	Edges     int  // записей в границе, которые изменились
	Discarded int  // элементов с нулевой силой
}

// RepairStats итог одного цикла очистки
type RepairStats struct {
	Invalidated int // элементов в очереди инвалидации
	Superseded  int // устаревших заявок, поднятых до текущей силы
	Excised     int // удалённых позиций
	Restored    int // позиций, восстановленных после вырезания
	Refilled    int // затравок для повторной заливки
	Fill        FillStats
}

// Observer принимает события движка. Движок сам ничего не логирует.
type Observer interface {
	FillCompleted(stats FillStats)
	RepairCompleted(stats RepairStats)
	RegionReset(cleared int)
}

// NopObserver игнорирует все события
type NopObserver struct{}

func (NopObserver) FillCompleted(FillStats)     {}
func (NopObserver) RepairCompleted(RepairStats) {}
func (NopObserver) RegionReset(int)             {}

// MultiObserver рассылает события нескольким наблюдателям
type MultiObserver []Observer

func (mo MultiObserver) FillCompleted(stats FillStats) {
	for _, o := range mo {
		o.FillCompleted(stats)
	}
}

func (mo MultiObserver) RepairCompleted(stats RepairStats) {
	for _, o := range mo {
		o.RepairCompleted(stats)
	}
}

func (mo MultiObserver) RegionReset(cleared int) {
	for _, o := range mo {
		o.RegionReset(cleared)
	}
}
