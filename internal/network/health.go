package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/annel0/climate-coil/internal/logging"
)

// RegulatorService - имя сервиса в протоколе grpc.health.v1
const RegulatorService = "climate.Regulators"

// StatusSource сообщает, здоров ли движок регуляторов
type StatusSource interface {
	// Healthy возвращает false, если тики остановились или шина закрыта
	Healthy() bool
}

// StatusFunc адаптер функции к StatusSource
type StatusFunc func() bool

// Healthy вызывает f
func (f StatusFunc) Healthy() bool { return f() }

// HealthServer публикует состояние регуляторов по grpc.health.v1
type HealthServer struct {
	addr   string
	source StatusSource
	health *health.Server
	grpc   *grpc.Server
	logger *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthServer создаёт сервер в состоянии NOT_SERVING
func NewHealthServer(addr string, source StatusSource, logger *logging.Logger) *HealthServer {
	if logger == nil {
		logger = logging.GetNetworkLogger()
	}
	hs := &HealthServer{
		addr:   addr,
		source: source,
		health: health.NewServer(),
		grpc:   grpc.NewServer(),
		logger: logger,
	}
	healthpb.RegisterHealthServer(hs.grpc, hs.health)
	hs.health.SetServingStatus(RegulatorService, healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Refresh перечитывает состояние источника
func (hs *HealthServer) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if hs.source != nil && hs.source.Healthy() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.health.SetServingStatus(RegulatorService, status)
	hs.health.SetServingStatus("", status)
}

// Serve обслуживает gRPC на готовом listener и обновляет статус каждые interval
func (hs *HealthServer) Serve(lis net.Listener, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	hs.cancel = cancel
	hs.Refresh()

	hs.wg.Add(2)
	go func() {
		defer hs.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hs.Refresh()
			}
		}
	}()
	go func() {
		defer hs.wg.Done()
		if err := hs.grpc.Serve(lis); err != nil {
			hs.logger.Error("❌ gRPC health: %v", err)
		}
	}()
	hs.logger.Info("💓 gRPC health запущен на %s", lis.Addr())
}

// Start открывает TCP порт и вызывает Serve
func (hs *HealthServer) Start(interval time.Duration) error {
	lis, err := net.Listen("tcp", hs.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", hs.addr, err)
	}
	hs.Serve(lis, interval)
	return nil
}

// Stop переводит сервис в NOT_SERVING и останавливает сервер
func (hs *HealthServer) Stop() {
	hs.health.Shutdown()
	if hs.cancel != nil {
		hs.cancel()
	}
	hs.grpc.GracefulStop()
	hs.wg.Wait()
}
