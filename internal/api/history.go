package api

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/climate-coil/internal/eventbus"
)

// EventQuery фильтр запроса к истории событий
type EventQuery struct {
	EventTypes []string   `json:"event_types"`
	Source     string     `json:"source,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// EventStats статистика событий в истории
type EventStats struct {
	TotalEvents int64          `json:"total_events"`
	EventTypes  map[string]int `json:"event_types"`
	Oldest      *time.Time     `json:"oldest,omitempty"`
	Newest      *time.Time     `json:"newest,omitempty"`
}

// EventHistory хранит последние события шины в кольцевом буфере
type EventHistory struct {
	mu    sync.RWMutex
	buf   []*eventbus.Envelope
	next  int
	full  bool
	total int64
	sub   eventbus.Subscription
}

// NewEventHistory создаёт историю на capacity событий
func NewEventHistory(capacity int) *EventHistory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &EventHistory{buf: make([]*eventbus.Envelope, capacity)}
}

// Attach подписывает историю на все события шины
func (h *EventHistory) Attach(ctx context.Context, bus eventbus.EventBus) error {
	sub, err := bus.Subscribe(ctx, eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		h.Record(ev)
	})
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.sub = sub
	h.mu.Unlock()
	return nil
}

// Detach отписывает историю от шины
func (h *EventHistory) Detach() {
	h.mu.Lock()
	sub := h.sub
	h.sub = nil
	h.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// Record добавляет событие, вытесняя самое старое
func (h *EventHistory) Record(ev *eventbus.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = ev
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
	h.total++
}

// ordered возвращает события от старых к новым. Вызывается под блокировкой.
func (h *EventHistory) ordered() []*eventbus.Envelope {
	if !h.full {
		return h.buf[:h.next]
	}
	out := make([]*eventbus.Envelope, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}

// Query возвращает последние события, подходящие под фильтр, от новых к старым
func (h *EventHistory) Query(q EventQuery) []*eventbus.Envelope {
	h.mu.RLock()
	defer h.mu.RUnlock()

	types := make(map[string]bool, len(q.EventTypes))
	for _, t := range q.EventTypes {
		types[t] = true
	}

	all := h.ordered()
	var out []*eventbus.Envelope
	for i := len(all) - 1; i >= 0; i-- {
		ev := all[i]
		if len(types) > 0 && !types[ev.EventType] {
			continue
		}
		if q.Source != "" && ev.Source != q.Source {
			continue
		}
		if q.StartTime != nil && ev.Timestamp.Before(*q.StartTime) {
			continue
		}
		out = append(out, ev)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// Stats возвращает распределение событий по типам
func (h *EventHistory) Stats() EventStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := EventStats{TotalEvents: h.total, EventTypes: make(map[string]int)}
	all := h.ordered()
	for _, ev := range all {
		stats.EventTypes[ev.EventType]++
	}
	if len(all) > 0 {
		oldest, newest := all[0].Timestamp, all[len(all)-1].Timestamp
		stats.Oldest, stats.Newest = &oldest, &newest
	}
	return stats
}
