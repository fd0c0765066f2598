package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/annel0/climate-coil/internal/logging"
)

// MariaConfig содержит настройки подключения к MariaDB
type MariaConfig struct {
	DSN   string // например, user:pass@tcp(localhost:3306)/climate
	Table string // имя таблицы снимков
}

// MariaStore хранит снимки в таблице (snapshot_key, data, updated_at)
type MariaStore struct {
	db    *sql.DB
	table string
}

// NewMariaStore открывает подключение и создаёт таблицу, если её нет
func NewMariaStore(cfg MariaConfig) (*MariaStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("mariadb: dsn is required")
	}
	if cfg.Table == "" {
		cfg.Table = "climate_snapshots"
	}
	if strings.ContainsAny(cfg.Table, "`; ") {
		return nil, fmt.Errorf("mariadb: invalid table name %q", cfg.Table)
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть подключение к MariaDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	ms := &MariaStore{db: db, table: cfg.Table}
	if err := ms.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	logging.GetStorageLogger().Info("🐬 Connected to MariaDB, table %s", cfg.Table)
	return ms, nil
}

func (ms *MariaStore) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		snapshot_key VARCHAR(255) NOT NULL PRIMARY KEY,
		data LONGBLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`, ms.table)
	_, err := ms.db.ExecContext(ctx, query)
	return err
}

// Save вставляет или заменяет строку
func (ms *MariaStore) Save(ctx context.Context, key string, data []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (snapshot_key, data) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE data = VALUES(data)`, ms.table)
	if _, err := ms.db.ExecContext(ctx, query, key, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Load читает строку, sql.ErrNoRows означает отсутствие ключа
func (ms *MariaStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE snapshot_key = ?`, ms.table)
	var data []byte
	err := ms.db.QueryRowContext(ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return data, true, nil
}

// Delete удаляет строку
func (ms *MariaStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE snapshot_key = ?`, ms.table)
	if _, err := ms.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys возвращает ключи с префиксом. Спецсимволы LIKE экранируются.
func (ms *MariaStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	query := fmt.Sprintf(`SELECT snapshot_key FROM %s WHERE snapshot_key LIKE ? ORDER BY snapshot_key`, ms.table)
	rows, err := ms.db.QueryContext(ctx, query, escaped+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close закрывает пул соединений
func (ms *MariaStore) Close() error {
	return ms.db.Close()
}
