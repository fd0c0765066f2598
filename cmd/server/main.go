package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/climate-coil/internal/api"
	"github.com/annel0/climate-coil/internal/auth"
	"github.com/annel0/climate-coil/internal/config"
	"github.com/annel0/climate-coil/internal/eventbus"
	"github.com/annel0/climate-coil/internal/logging"
	"github.com/annel0/climate-coil/internal/metrics"
	"github.com/annel0/climate-coil/internal/network"
	"github.com/annel0/climate-coil/internal/observability"
	"github.com/annel0/climate-coil/internal/regulator"
	"github.com/annel0/climate-coil/internal/storage"
	"github.com/annel0/climate-coil/internal/vec"
	"github.com/annel0/climate-coil/internal/world"
	"github.com/annel0/climate-coil/internal/world/block"
	_ "github.com/annel0/climate-coil/internal/world/block/implementations"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $CLIMATE_CONFIG)")
	agentCount := flag.Int("agents", 8, "сколько агентов поставить рядом с катушками")
	hashPassword := flag.String("hash-password", "", "напечатать bcrypt хэш для server.admin_password_hash и выйти")
	genSecret := flag.Bool("gen-jwt-secret", false, "напечатать случайный ключ для server.jwt_secret и выйти")
	flag.Parse()

	if *genSecret {
		secret, err := auth.GenerateSecret()
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		fmt.Println(secret)
		return
	}

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		fmt.Println(hash)
		return
	}

	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if level, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		logging.SetDefaultLevels(level, logging.DEBUG)
		logging.GetLoggerManager().SetAllLevels(level, logging.DEBUG)
	} else {
		logging.Warn("⚠️ Неизвестный уровень логов %q, оставлен INFO", cfg.LogLevel)
	}

	logging.Info("🌡️ Запуск сервера климатических катушек...")
	if err := run(cfg, *agentCount); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config, agentCount int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("⚠️ Остановка телеметрии: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()
	eventbus.Init(bus)

	logSub, err := eventbus.StartLoggingListener(bus)
	if err != nil {
		return fmt.Errorf("event logger: %w", err)
	}
	defer logSub.Unsubscribe()

	busMetrics := eventbus.NewMetricsExporter(bus, registry)
	busMetrics.Start(5 * time.Second)
	defer busMetrics.Stop()

	history := api.NewEventHistory(4096)
	if err := history.Attach(ctx, bus); err != nil {
		return fmt.Errorf("event history: %w", err)
	}
	defer history.Detach()

	// === ХРАНИЛИЩЕ ===
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage %s: %w", cfg.Storage.Backend, err)
	}
	defer store.Close()

	// === МИР И РЕГУЛЯТОРЫ ===
	w := world.GenerateCave(world.CaveConfig{
		Seed:           cfg.World.Seed,
		Radius:         cfg.World.Radius,
		Depth:          cfg.World.Depth,
		Ceiling:        cfg.World.Ceiling,
		ShaftThreshold: 0.35,
		Chamber:        3,
	})
	agents := world.NewAgentRegistry()

	manager, err := regulator.NewManager(regulator.ManagerOptions{
		Config:  cfg.Regulator,
		World:   w,
		Agents:  agents,
		Store:   store,
		Bus:     bus,
		Metrics: metrics.NewCollector(registry),
		Logger:  logging.GetRegulatorLogger(),
	})
	if err != nil {
		return err
	}

	// Катушки ставятся как обычные блоки, менеджер сам создаёт регуляторы
	for _, c := range cfg.World.Coils {
		pos := vec.Vec3{X: c[0], Y: c[1], Z: c[2]}
		w.SetBlock(pos, block.CoilBlockID)
		for i := 0; i < agentCount/max(len(cfg.World.Coils), 1); i++ {
			agents.Spawn(pos.Add(vec.Vec3{X: i%3 - 1, Z: i/3 - 1}))
		}
	}
	logging.Info("🧱 Пещера готова: катушек %d, агентов %d", len(manager.List()), agentCount)

	// === СЕТЬ ===
	issuer, err := auth.NewTokenIssuer(cfg.Server.GetJWTSecret(), 0)
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}
	debugServer, err := api.NewDebugServer(api.Config{
		Port:              fmt.Sprintf(":%d", cfg.Server.GetDebugPort()),
		Manager:           manager,
		World:             w,
		Agents:            agents,
		History:           history,
		Registry:          registry,
		AdminPasswordHash: cfg.Server.AdminPasswordHash,
		Issuer:            issuer,
		Logger:            logging.GetAPILogger(),
	})
	if err != nil {
		return err
	}
	if err := debugServer.Start(); err != nil {
		return err
	}

	feed := network.NewEventFeed(network.DefaultFeedConfig(fmt.Sprintf(":%d", cfg.Server.GetFeedPort())), bus, nil)
	if err := feed.Start(); err != nil {
		return err
	}

	health := network.NewHealthServer(fmt.Sprintf(":%d", cfg.Server.GetGRPCPort()), manager, nil)
	if err := health.Start(time.Second); err != nil {
		return err
	}

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 Отладочный API: http://localhost:%d/api/regulators", cfg.Server.GetDebugPort())
	logging.Info("   📡 Поток событий KCP: %s", feed.Addr())
	logging.Info("   💓 gRPC health: :%d", cfg.Server.GetGRPCPort())

	runErr := manager.Run(ctx)
	logging.Info("📡 Получен сигнал завершения, остановка сервисов...")

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health.Stop()
	if err := feed.Stop(); err != nil {
		logging.Warn("⚠️ Остановка потока событий: %v", err)
	}
	if err := debugServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn("⚠️ Остановка отладочного API: %v", err)
	}
	if runErr != nil {
		return fmt.Errorf("final save: %w", runErr)
	}
	return nil
}

// openBus выбирает JetStream, если задан URL, иначе шину в памяти
func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		return eventbus.NewMemoryBus(1024), nil
	}
	jb, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("jetstream %s: %w", cfg.URL, err)
	}
	logging.Info("📨 Шина событий JetStream: %s (stream %s)", cfg.URL, cfg.Stream)
	return jb, nil
}
