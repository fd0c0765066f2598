package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/annel0/climate-coil/internal/spread"
	"github.com/annel0/climate-coil/internal/vec"
)

// Config корневая структура конфигурации приложения
type Config struct {
	Regulator RegulatorConfig `yaml:"regulator"`
	Storage   StorageConfig   `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	World     WorldConfig     `yaml:"world"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LogLevel  string          `yaml:"log_level"`
}

// RegulatorConfig параметры регуляторов и их периодичности в тиках
type RegulatorConfig struct {
	MaxDistance    int            `yaml:"max_distance"`
	NeighborMode   string         `yaml:"neighbor_mode"`
	TickRate       int            `yaml:"tick_rate"`
	FillInterval   int            `yaml:"fill_interval"`
	EdgeInterval   int            `yaml:"edge_interval"`
	SpreadInterval int            `yaml:"spread_interval"`
	EffectInterval int            `yaml:"effect_interval"`
	AutosaveEvery  int            `yaml:"autosave_seconds"`
	Modifier       ModifierConfig `yaml:"modifier"`
}

// ModifierConfig температурный модификатор, который получают агенты внутри области
type ModifierConfig struct {
	Name          string  `yaml:"name"`
	Amount        float64 `yaml:"amount"`
	Rate          float64 `yaml:"rate"`
	DurationTicks int     `yaml:"duration_ticks"`
}

// StorageConfig выбор и параметры хранилища снимков
type StorageConfig struct {
	Backend       string `yaml:"backend"` // memory | badger | redis | mongo | mariadb
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	MariaDSN      string `yaml:"mariadb_dsn"`
	Compress      bool   `yaml:"compress"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type ServerConfig struct {
	DebugPort int `yaml:"debug_port"`
	FeedPort  int `yaml:"feed_port"` // KCP поток событий
	GRPCPort  int `yaml:"grpc_port"` // gRPC health check

	// Изменяющие запросы отладочного API требуют JWT, выданного по паролю администратора.
	// Пустой хэш отключает вход и изменяющие запросы.
	AdminPasswordHash string `yaml:"admin_password_hash"`
	JWTSecret         string `yaml:"jwt_secret"`
}

// WorldConfig параметры демонстрационной пещеры
type WorldConfig struct {
	Seed    int64    `yaml:"seed"`
	Radius  int      `yaml:"radius"`
	Depth   int      `yaml:"depth"`
	Ceiling int      `yaml:"ceiling"`
	Coils   [][3]int `yaml:"coils"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Regulator: RegulatorConfig{
			MaxDistance:    spread.DefaultMaxSpreadDistance,
			NeighborMode:   "all",
			TickRate:       20,
			FillInterval:   20,
			EdgeInterval:   60,
			SpreadInterval: 200,
			EffectInterval: 20,
			AutosaveEvery:  30,
			Modifier: ModifierConfig{
				Name:          "Climatisation",
				Amount:        20,
				Rate:          -500,
				DurationTicks: 60,
			},
		},
		Storage: StorageConfig{
			Backend:   "memory",
			Path:      "data/regions",
			RedisAddr: "localhost:6379",
			KeyPrefix: "climate:",
			Compress:  true,
		},
		EventBus: EventBusConfig{
			Stream:    "CLIMATE",
			Retention: 24,
		},
		World: WorldConfig{
			Seed:    1,
			Radius:  24,
			Depth:   16,
			Ceiling: 8,
			Coils:   [][3]int{{0, 0, 0}},
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "climate-coil",
		},
		LogLevel: "info",
	}
}

// GetDebugPort возвращает порт отладочного API с поддержкой fallback значений
func (s *ServerConfig) GetDebugPort() int {
	return getPortWithEnvFallback(s.DebugPort, "CLIMATE_DEBUG_PORT", 8088)
}

// GetFeedPort возвращает порт KCP потока событий
func (s *ServerConfig) GetFeedPort() int {
	return getPortWithEnvFallback(s.FeedPort, "CLIMATE_FEED_PORT", 7778)
}

// GetGRPCPort возвращает порт gRPC health check
func (s *ServerConfig) GetGRPCPort() int {
	return getPortWithEnvFallback(s.GRPCPort, "CLIMATE_GRPC_PORT", 9090)
}

// GetJWTSecret возвращает секрет подписи токенов: config -> env CLIMATE_JWT_SECRET
func (s *ServerConfig) GetJWTSecret() string {
	if s.JWTSecret != "" {
		return s.JWTSecret
	}
	return os.Getenv("CLIMATE_JWT_SECRET")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Mode возвращает разобранный режим соседства
func (r RegulatorConfig) Mode() (vec.NeighborMode, error) {
	m, ok := vec.ParseNeighborMode(r.NeighborMode)
	if !ok {
		return m, fmt.Errorf("%w: unknown neighbor mode %q", spread.ErrConfiguration, r.NeighborMode)
	}
	return m, nil
}

// Validate проверяет согласованность периодичностей и бюджета
func (c *Config) Validate() error {
	r := c.Regulator
	if r.MaxDistance <= 0 {
		return fmt.Errorf("%w: max_distance must be positive, got %d", spread.ErrConfiguration, r.MaxDistance)
	}
	if _, err := r.Mode(); err != nil {
		return err
	}
	if r.TickRate <= 0 {
		return fmt.Errorf("%w: tick_rate must be positive", spread.ErrConfiguration)
	}
	for name, v := range map[string]int{
		"fill_interval":   r.FillInterval,
		"edge_interval":   r.EdgeInterval,
		"spread_interval": r.SpreadInterval,
		"effect_interval": r.EffectInterval,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", spread.ErrConfiguration, name, v)
		}
	}
	if r.SpreadInterval <= r.EdgeInterval {
		return fmt.Errorf("%w: spread_interval (%d) must exceed edge_interval (%d)",
			spread.ErrConfiguration, r.SpreadInterval, r.EdgeInterval)
	}
	switch c.Storage.Backend {
	case "memory", "badger", "redis", "mongo", "mariadb", "mysql":
	default:
		return fmt.Errorf("%w: unknown storage backend %q", spread.ErrConfiguration, c.Storage.Backend)
	}
	return nil
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV CLIMATE_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CLIMATE_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
