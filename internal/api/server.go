package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/climate-coil/internal/auth"
	"github.com/annel0/climate-coil/internal/logging"
	"github.com/annel0/climate-coil/internal/middleware"
	"github.com/annel0/climate-coil/internal/regulator"
	"github.com/annel0/climate-coil/internal/world"
)

// Config содержит зависимости отладочного сервера
type Config struct {
	Port     string               // адрес, например ":8088"
	Manager  *regulator.Manager   // обязателен
	World    *world.World         // обязателен
	Agents   *world.AgentRegistry // nil отключает /api/agents
	History  *EventHistory        // nil отключает /api/events
	Registry *prometheus.Registry // nil означает новый пустой регистр

	// AdminPasswordHash - bcrypt хэш пароля оператора. Пустой отключает
	// вход и все изменяющие запросы.
	AdminPasswordHash string
	Issuer            *auth.TokenIssuer
	Logger            *logging.Logger
}

// DebugServer отдаёт состояние регуляторов по HTTP и принимает команды оператора
type DebugServer struct {
	router  *gin.Engine
	cfg     Config
	metrics *ServerMetrics
	logger  *logging.Logger
	http    *http.Server
}

// NewDebugServer создаёт сервер и настраивает маршруты
func NewDebugServer(cfg Config) (*DebugServer, error) {
	if cfg.Manager == nil || cfg.World == nil {
		return nil, errors.New("debug server: manager and world are required")
	}
	if cfg.Port == "" {
		cfg.Port = ":8088"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetAPILogger()
	}
	if cfg.AdminPasswordHash != "" && cfg.Issuer == nil {
		issuer, err := auth.NewTokenIssuer("", 0)
		if err != nil {
			return nil, err
		}
		cfg.Issuer = issuer
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("debug_api"))
	router.Use(middleware.NewRequestLogger(cfg.Logger).Handler())
	promMw := middleware.NewPrometheusMiddleware("debug_api", cfg.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, cfg.Registry)

	s := &DebugServer{
		router:  router,
		cfg:     cfg,
		metrics: NewServerMetrics(),
		logger:  cfg.Logger,
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes настраивает маршруты
func (s *DebugServer) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.GET("/server", s.handleServerInfo)
	api.GET("/regulators", s.handleListRegulators)
	api.GET("/regulators/:id", s.handleGetRegulator)
	api.GET("/regulators/:id/region", s.handleGetRegion)
	api.GET("/regulators/:id/slice", s.handleGetSlice)
	api.GET("/regulated", s.handleRegulated)
	api.GET("/events", s.handleEvents)
	api.GET("/events/stats", s.handleEventStats)
	api.POST("/auth/login", s.handleLogin)

	// Изменяющие запросы доступны только с токеном оператора
	protected := api.Group("/")
	if s.cfg.Issuer != nil && s.cfg.AdminPasswordHash != "" {
		protected.Use(middleware.RequireToken(s.cfg.Issuer))
	} else {
		protected.Use(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusForbidden, GenericResponse{
				Success: false, Message: "Изменяющие запросы отключены: пароль оператора не задан",
			})
		})
	}
	protected.POST("/regulators/:id/power", s.handleSetPower)
	protected.POST("/regulators/:id/refill", s.handleRefill)
	protected.POST("/blocks", s.handleSetBlock)
	protected.POST("/agents", s.handleSpawnAgent)
	protected.POST("/save", s.handleSave)
}

// Handler возвращает http.Handler сервера для тестов и встраивания
func (s *DebugServer) Handler() http.Handler { return s.router }

// Start запускает HTTP сервер в отдельной горутине
func (s *DebugServer) Start() error {
	s.http = &http.Server{
		Addr:              s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ошибка привязки порта приходит сразу
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("debug api on %s: %w", s.cfg.Port, err)
		}
	case <-time.After(100 * time.Millisecond):
	}
	s.logger.Info("🌐 Отладочный API запущен на %s", s.cfg.Port)
	return nil
}

// Shutdown останавливает сервер
func (s *DebugServer) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
