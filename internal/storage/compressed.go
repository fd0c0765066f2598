package storage

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compressed сжимает значения zstd перед записью во вложенное хранилище
type Compressed struct {
	inner   SnapshotStore
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressed оборачивает хранилище
func NewCompressed(inner SnapshotStore) (*Compressed, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Compressed{inner: inner, encoder: encoder, decoder: decoder}, nil
}

// Save сжимает и сохраняет
func (c *Compressed) Save(ctx context.Context, key string, data []byte) error {
	return c.inner.Save(ctx, key, c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)))
}

// Load читает и распаковывает
func (c *Compressed) Load(ctx context.Context, key string) ([]byte, bool, error) {
	raw, found, err := c.inner.Load(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}
	data, err := c.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress %s: %w", key, err)
	}
	return data, true, nil
}

func (c *Compressed) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, key)
}

func (c *Compressed) Keys(ctx context.Context, prefix string) ([]string, error) {
	return c.inner.Keys(ctx, prefix)
}

// Close освобождает кодеки и закрывает вложенное хранилище
func (c *Compressed) Close() error {
	c.encoder.Close()
	c.decoder.Close()
	return c.inner.Close()
}
