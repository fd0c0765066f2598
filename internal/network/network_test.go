package network

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtaci/kcp-go/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/annel0/climate-coil/internal/eventbus"
	"github.com/annel0/climate-coil/internal/logging"
)

var quietLogger = logging.NewConsoleLogger("network", io.Discard)

func dialFeed(t *testing.T, addr string, req FeedRequest) (*kcp.UDPSession, *bufio.Reader) {
	t.Helper()
	conn, err := kcp.DialWithOptions(addr, nil, 0, 0)
	require.NoError(t, err)
	conn.SetStreamMode(true)
	conn.SetNoDelay(1, 20, 2, 1)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = conn.Write(append(data, '\n'))
	require.NoError(t, err)
	return conn, bufio.NewReader(conn)
}

func TestEventFeed_StreamsFilteredEvents(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	defer bus.Close()

	feed := NewEventFeed(DefaultFeedConfig("127.0.0.1:0"), bus, quietLogger)
	require.NoError(t, feed.Start())
	defer feed.Stop()

	conn, reader := dialFeed(t, feed.Addr(), FeedRequest{Types: []string{eventbus.TypeRegionFilled}})
	defer conn.Close()

	require.Eventually(t, func() bool { return feed.Stats().Clients == 1 }, 3*time.Second, 10*time.Millisecond,
		"наблюдатель должен подписаться")

	ctx := context.Background()
	skipped, err := eventbus.NewEnvelope(eventbus.TypeRegionReset, "coil_0_0_0", 3, eventbus.RegionResetPayload{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, skipped))

	ev, err := eventbus.NewEnvelope(eventbus.TypeRegionFilled, "coil_0_0_0", 5, eventbus.RegionFilledPayload{Size: 7})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, ev))

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)

	var got eventbus.Envelope
	require.NoError(t, json.Unmarshal(line, &got))
	assert.Equal(t, ev.ID, got.ID, "RegionReset не проходит фильтр")

	var payload eventbus.RegionFilledPayload
	require.NoError(t, got.Decode(&payload))
	assert.Equal(t, 7, payload.Size)

	assert.Eventually(t, func() bool { return feed.Stats().Sent == 1 }, time.Second, 10*time.Millisecond)
}

func TestEventFeed_RequiresBus(t *testing.T) {
	feed := NewEventFeed(DefaultFeedConfig("127.0.0.1:0"), nil, quietLogger)
	assert.Error(t, feed.Start())
	assert.NoError(t, feed.Stop(), "не запущенный поток останавливается без ошибок")
}

func TestEventFeed_ReapsSilentWatcher(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	defer bus.Close()

	cfg := DefaultFeedConfig("127.0.0.1:0")
	cfg.IdleTimeout = 300 * time.Millisecond
	feed := NewEventFeed(cfg, bus, quietLogger)
	require.NoError(t, feed.Start())
	defer feed.Stop()

	conn, _ := dialFeed(t, feed.Addr(), FeedRequest{})
	require.Eventually(t, func() bool { return feed.Stats().Clients == 1 }, 3*time.Second, 10*time.Millisecond)

	// Клиент исчезает без предупреждения, KCP об этом не сообщит
	conn.Close()
	for i := 0; i < 50; i++ {
		ev, err := eventbus.NewEnvelope(eventbus.TypeRegionFilled, "coil_0_0_0", 5, eventbus.RegionFilledPayload{Size: i})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}

	assert.Eventually(t, func() bool { return feed.Stats().Clients == 0 }, 3*time.Second, 20*time.Millisecond,
		"молчащий наблюдатель должен быть отключён после IdleTimeout")
}

func TestEventFeed_KeepaliveHoldsWatcher(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	defer bus.Close()

	cfg := DefaultFeedConfig("127.0.0.1:0")
	cfg.IdleTimeout = 300 * time.Millisecond
	feed := NewEventFeed(cfg, bus, quietLogger)
	require.NoError(t, feed.Start())
	defer feed.Stop()

	conn, _ := dialFeed(t, feed.Addr(), FeedRequest{})
	defer conn.Close()
	require.Eventually(t, func() bool { return feed.Stats().Clients == 1 }, 3*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if _, err := conn.Write([]byte("\n")); err != nil {
					return
				}
			}
		}
	}()

	assert.Never(t, func() bool { return feed.Stats().Clients == 0 }, time.Second, 20*time.Millisecond,
		"наблюдатель с пингами остаётся подключённым")
}

func TestEventFeed_StopClosesPendingHandshake(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	defer bus.Close()

	feed := NewEventFeed(DefaultFeedConfig("127.0.0.1:0"), bus, quietLogger)
	require.NoError(t, feed.Start())

	conn, err := kcp.DialWithOptions(feed.Addr(), nil, 0, 0)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetStreamMode(true)
	// Запрос без перевода строки: сервер ждёт окончания рукопожатия
	_, err = conn.Write([]byte(`{"types":`))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return feed.Stats().Handshaking == 1 }, 3*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, feed.Stop())
	assert.Less(t, time.Since(start), 2*time.Second, "остановка не ждёт IdleTimeout рукопожатия")
	assert.Equal(t, 0, feed.Stats().Handshaking)
}

func healthClient(t *testing.T, hs *HealthServer) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	hs.Serve(lis, 10*time.Millisecond)
	t.Cleanup(hs.Stop)

	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestHealthServer_ReflectsSource(t *testing.T) {
	var healthy atomic.Bool
	hs := NewHealthServer("", StatusFunc(healthy.Load), quietLogger)
	client := healthClient(t, hs)
	ctx := context.Background()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: RegulatorService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	healthy.Store(true)
	assert.Eventually(t, func() bool {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: RegulatorService})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status, "общий статус сервера")
}

func TestHealthServer_NilSourceNotServing(t *testing.T) {
	hs := NewHealthServer("", nil, quietLogger)
	client := healthClient(t, hs)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: RegulatorService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
