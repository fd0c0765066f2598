package network

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/climate-coil/internal/eventbus"
	"github.com/annel0/climate-coil/internal/logging"
)

// FeedRequest - первая строка, которую клиент присылает после подключения.
// Пустые списки означают все типы и все источники. Дальше клиент шлёт любую
// строку (обычно пустую) не реже KeepaliveInterval, иначе его отключат
// через IdleTimeout.
type FeedRequest struct {
	Types   []string `json:"types,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

// FeedConfig настройки потока событий
type FeedConfig struct {
	Addr        string        // адрес KCP, например ":7778"
	QueueSize   int           // очередь на клиента, при переполнении события теряются
	IdleTimeout time.Duration // отключение клиента без подписки или без пингов
}

// KeepaliveInterval как часто клиенту слать строку-пинг при IdleTimeout по умолчанию
const KeepaliveInterval = 3 * time.Second

// DefaultFeedConfig возвращает настройки по умолчанию
func DefaultFeedConfig(addr string) FeedConfig {
	return FeedConfig{Addr: addr, QueueSize: 256, IdleTimeout: 10 * time.Second}
}

// EventFeed раздаёт события шины подключённым по KCP наблюдателям.
// Каждое событие пишется одной JSON строкой.
type EventFeed struct {
	cfg      FeedConfig
	bus      eventbus.EventBus
	logger   *logging.Logger
	listener *kcp.Listener

	clients   map[string]*feedClient
	clientsMu sync.RWMutex

	sent        atomic.Uint64
	dropped     atomic.Uint64
	handshaking atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type feedClient struct {
	id       string
	conn     net.Conn
	queue    chan []byte
	sub      eventbus.Subscription
	lastSeen atomic.Int64 // unix nano последней строки от клиента
}

func (c *feedClient) touch() { c.lastSeen.Store(time.Now().UnixNano()) }

func (c *feedClient) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastSeen.Load()))
}

// FeedStats статистика потока
type FeedStats struct {
	Clients     int    `json:"clients"`
	Handshaking int    `json:"handshaking"`
	Sent        uint64 `json:"sent"`
	Dropped     uint64 `json:"dropped"`
}

// NewEventFeed создаёт поток событий поверх шины
func NewEventFeed(cfg FeedConfig, bus eventbus.EventBus, logger *logging.Logger) *EventFeed {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.GetNetworkLogger()
	}
	return &EventFeed{
		cfg:     cfg,
		bus:     bus,
		logger:  logger,
		clients: make(map[string]*feedClient),
	}
}

// Start открывает KCP порт и начинает принимать наблюдателей
func (f *EventFeed) Start() error {
	if f.bus == nil {
		return errors.New("event feed: bus is required")
	}
	listener, err := kcp.ListenWithOptions(f.cfg.Addr, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.cfg.Addr, err)
	}
	f.listener = listener
	f.ctx, f.cancel = context.WithCancel(context.Background())

	f.wg.Add(2)
	go f.acceptLoop()
	go f.timeoutLoop()

	f.logger.Info("📡 Поток событий KCP запущен на %s", listener.Addr())
	return nil
}

// Addr возвращает фактический адрес после Start
func (f *EventFeed) Addr() string {
	if f.listener == nil {
		return f.cfg.Addr
	}
	return f.listener.Addr().String()
}

// Stop закрывает порт и отключает всех наблюдателей, включая тех,
// кто ещё не прислал запрос подписки
func (f *EventFeed) Stop() error {
	if f.cancel == nil {
		return nil
	}
	f.cancel()
	err := f.listener.Close()
	f.wg.Wait()
	f.logger.Info("🛑 Поток событий остановлен")
	return err
}

// Stats возвращает статистику потока
func (f *EventFeed) Stats() FeedStats {
	f.clientsMu.RLock()
	n := len(f.clients)
	f.clientsMu.RUnlock()
	return FeedStats{
		Clients:     n,
		Handshaking: int(f.handshaking.Load()),
		Sent:        f.sent.Load(),
		Dropped:     f.dropped.Load(),
	}
}

func (f *EventFeed) acceptLoop() {
	defer f.wg.Done()

	for {
		conn, err := f.listener.AcceptKCP()
		if err != nil {
			select {
			case <-f.ctx.Done():
				return
			default:
				f.logger.Error("Failed to accept connection: %v", err)
				continue
			}
		}

		conn.SetStreamMode(true)
		conn.SetWriteDelay(false)
		conn.SetNoDelay(1, 20, 2, 1)
		conn.SetWindowSize(512, 512)

		f.wg.Add(1)
		go f.serve(conn)
	}
}

// timeoutLoop отключает клиентов, переставших слать пинги
func (f *EventFeed) timeoutLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.checkTimeouts()
		}
	}
}

// checkTimeouts закрывает соединения молчащих клиентов, serve сам уберёт их из списка
func (f *EventFeed) checkTimeouts() {
	now := time.Now()

	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()

	for id, c := range f.clients {
		if c.idleFor(now) > f.cfg.IdleTimeout {
			f.logger.Warn("⏱️ Наблюдатель %s не отвечает, отключаем", id)
			c.conn.Close()
		}
	}
}

// serve читает запрос подписки и пишет события до отключения клиента
func (f *EventFeed) serve(conn *kcp.UDPSession) {
	defer f.wg.Done()
	defer conn.Close()

	// Stop закрывает и соединения, застрявшие в рукопожатии
	stopClose := context.AfterFunc(f.ctx, func() { conn.Close() })
	defer stopClose()

	id := fmt.Sprintf("watcher-%s-%d", conn.RemoteAddr(), time.Now().UnixNano())

	f.handshaking.Add(1)
	req, reader, err := f.handshake(conn)
	f.handshaking.Add(-1)
	if err != nil {
		f.logger.Debug("Наблюдатель %s не подписался: %v", id, err)
		return
	}

	client := &feedClient{id: id, conn: conn, queue: make(chan []byte, f.cfg.QueueSize)}
	client.touch()
	sub, err := f.bus.Subscribe(f.ctx, eventbus.Filter{Types: req.Types, Sources: req.Sources}, func(_ context.Context, ev *eventbus.Envelope) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		select {
		case client.queue <- append(data, '\n'):
		default:
			f.dropped.Add(1)
		}
	})
	if err != nil {
		f.logger.Error("❌ Подписка наблюдателя %s: %v", id, err)
		return
	}
	client.sub = sub
	defer sub.Unsubscribe()

	f.clientsMu.Lock()
	f.clients[id] = client
	f.clientsMu.Unlock()
	defer func() {
		f.clientsMu.Lock()
		delete(f.clients, id)
		f.clientsMu.Unlock()
		f.logger.Info("👋 Наблюдатель отключен: %s", id)
	}()

	f.logger.Info("🔗 Наблюдатель подключен: %s (types=%v sources=%v)", id, req.Types, req.Sources)

	// KCP не сообщает о закрытии соединения: клиент считается ушедшим,
	// если за IdleTimeout от него не пришло ни одной строки
	gone := make(chan struct{})
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer close(gone)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(f.cfg.IdleTimeout))
			if _, err := reader.ReadBytes('\n'); err != nil {
				return
			}
			client.touch()
		}
	}()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-gone:
			return
		case data := <-client.queue:
			_ = conn.SetWriteDeadline(time.Now().Add(f.cfg.IdleTimeout))
			if _, err := conn.Write(data); err != nil {
				f.logger.Debug("Запись наблюдателю %s: %v", id, err)
				return
			}
			f.sent.Add(1)
		}
	}
}

// handshake ждёт первую строку с запросом подписки не дольше IdleTimeout
func (f *EventFeed) handshake(conn *kcp.UDPSession) (FeedRequest, *bufio.Reader, error) {
	var req FeedRequest
	_ = conn.SetReadDeadline(time.Now().Add(f.cfg.IdleTimeout))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return req, nil, err
	}
	if err := json.Unmarshal(line, &req); err != nil {
		f.logger.Warn("⚠️ Неверный запрос подписки: %v", err)
		return req, nil, err
	}
	return req, reader, nil
}
