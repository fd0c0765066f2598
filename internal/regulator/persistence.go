package regulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/climate-coil/internal/spread"
	"github.com/annel0/climate-coil/internal/storage"
	"github.com/annel0/climate-coil/internal/vec"
	"github.com/annel0/climate-coil/internal/world"
)

// Префиксы ключей в хранилище снимков
const (
	RegionKeyPrefix = "region:"
	MetaKeyPrefix   = "meta:"
)

// meta сохраняется рядом с областью
type meta struct {
	Source      vec.Vec3       `json:"source"`
	MaxDistance int            `json:"max_distance"`
	Modifier    world.Modifier `json:"modifier"`
	SavedAt     time.Time      `json:"saved_at"`
}

// RegionKey ключ снимка области
func RegionKey(id string) string { return RegionKeyPrefix + id }

// MetaKey ключ метаданных регулятора
func MetaKey(id string) string { return MetaKeyPrefix + id }

// Save сохраняет область, границу и модификатор
func (r *Regulator) Save(ctx context.Context, store storage.SnapshotStore) error {
	r.mu.Lock()
	snap := r.engine.Snapshot()
	m := meta{
		Source:      snap.Source,
		MaxDistance: snap.MaxDistance,
		Modifier:    r.modifier,
		SavedAt:     time.Now().UTC(),
	}
	r.mu.Unlock()

	data, err := spread.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode region %s: %w", r.id, err)
	}
	metaData, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal meta %s: %w", r.id, err)
	}

	if err := store.Save(ctx, RegionKey(r.id), data); err != nil {
		return fmt.Errorf("save region %s: %w", r.id, err)
	}
	if err := store.Save(ctx, MetaKey(r.id), metaData); err != nil {
		return fmt.Errorf("save meta %s: %w", r.id, err)
	}
	r.logger.Debug("💾 Регулятор %s сохранён: %d позиций, %d рёбер", r.id, len(snap.Spread), len(snap.Edges))
	return nil
}

// Load восстанавливает состояние из хранилища. found == false, если снимка нет.
// Очередь инвалидации не сохраняется: мир мог измениться, пока регулятор был выгружен,
// поэтому после загрузки назначается проверка всей области.
func (r *Regulator) Load(ctx context.Context, store storage.SnapshotStore) (bool, error) {
	data, found, err := store.Load(ctx, RegionKey(r.id))
	if err != nil {
		return false, fmt.Errorf("load region %s: %w", r.id, err)
	}
	if !found {
		return false, nil
	}
	snap, err := spread.DecodeSnapshot(data)
	if err != nil {
		return false, fmt.Errorf("decode region %s: %w", r.id, err)
	}

	var m meta
	metaData, metaFound, err := store.Load(ctx, MetaKey(r.id))
	if err != nil {
		return false, fmt.Errorf("load meta %s: %w", r.id, err)
	}
	if metaFound {
		if err := json.Unmarshal(metaData, &m); err != nil {
			return false, fmt.Errorf("decode meta %s: %w", r.id, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.engine.Restore(snap); err != nil {
		return false, fmt.Errorf("restore region %s: %w", r.id, err)
	}
	if metaFound && m.Modifier.Name != "" {
		r.modifier = m.Modifier
	}
	r.engine.ReconcileSpread()
	r.engine.ReconcileEdges()
	r.logger.Info("📂 Регулятор %s загружен: %d позиций", r.id, r.engine.Len())
	return true, nil
}

// Forget удаляет сохранённое состояние регулятора
func (r *Regulator) Forget(ctx context.Context, store storage.SnapshotStore) error {
	if err := store.Delete(ctx, RegionKey(r.id)); err != nil {
		return fmt.Errorf("delete region %s: %w", r.id, err)
	}
	if err := store.Delete(ctx, MetaKey(r.id)); err != nil {
		return fmt.Errorf("delete meta %s: %w", r.id, err)
	}
	return nil
}
