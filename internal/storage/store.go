package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/climate-coil/internal/config"
)

// ErrClosed возвращается при обращении к закрытому хранилищу
var ErrClosed = errors.New("storage: store is closed")

// SnapshotStore хранит сериализованные снимки регуляторов по ключу.
// Отсутствие ключа не ошибка: Load возвращает found == false.
type SnapshotStore interface {
	// Save сохраняет значение по ключу, перезаписывая старое
	Save(ctx context.Context, key string, data []byte) error

	// Load загружает значение. found == false, если ключа нет.
	Load(ctx context.Context, key string) (data []byte, found bool, err error)

	// Delete удаляет ключ. Удаление отсутствующего ключа не ошибка.
	Delete(ctx context.Context, key string) error

	// Keys возвращает отсортированные ключи с указанным префиксом
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// Open создаёт хранилище по конфигурации
func Open(cfg config.StorageConfig) (SnapshotStore, error) {
	var (
		store SnapshotStore
		err   error
	)
	switch cfg.Backend {
	case "", "memory":
		store = NewMemoryStore()
	case "badger":
		store, err = NewBadgerStore(cfg.Path)
	case "redis":
		rc := DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		if cfg.KeyPrefix != "" {
			rc.KeyPrefix = cfg.KeyPrefix
		}
		store, err = NewRedisStore(rc)
	case "mongo":
		store, err = NewMongoStore(MongoConfig{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	case "mariadb", "mysql":
		store, err = NewMariaStore(MariaConfig{DSN: cfg.MariaDSN})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Compress {
		return NewCompressed(store)
	}
	return store, nil
}

// checkCtx проверяет контекст на отмену
func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// opTimeout ограничивает одну операцию с внешним хранилищем
const opTimeout = 5 * time.Second
