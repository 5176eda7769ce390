package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

// MetadataStore persists the cache snapshot to a single file. The snapshot
// is gob-encoded, optionally zstd-compressed, and replaced atomically via a
// temp file rename. Audio bytes never pass through this store.
type MetadataStore struct {
	path    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *log.Logger
}

// NewMetadataStore creates a metadata store writing to path. A
// compressionLevel of 0 disables snapshot compression.
func NewMetadataStore(path string, compressionLevel int) (*MetadataStore, error) {
	ms := &MetadataStore{
		path:   path,
		logger: log.WithPrefix("cache/store"),
	}

	if compressionLevel > 0 {
		var err error
		ms.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		ms.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	return ms, nil
}

// Load reads the latest persisted snapshot. A missing, unreadable or
// corrupt snapshot degrades to an empty cache.
func (ms *MetadataStore) Load() *Snapshot {
	data, err := os.ReadFile(ms.path)
	if err != nil {
		if !os.IsNotExist(err) {
			ms.logger.Warn("unreadable snapshot, starting empty", "path", ms.path, "err", err)
		}
		return NewSnapshot()
	}

	if ms.decoder != nil {
		decompressed, err := ms.decoder.DecodeAll(data, nil)
		if err != nil {
			ms.logger.Warn("corrupt snapshot, starting empty", "path", ms.path, "err", err)
			return NewSnapshot()
		}
		data = decompressed
	}

	snap := NewSnapshot()
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(snap); err != nil {
		ms.logger.Warn("corrupt snapshot, starting empty", "path", ms.path, "err", err)
		return NewSnapshot()
	}
	return snap
}

// Save atomically replaces the durable snapshot.
func (ms *MetadataStore) Save(snap *Snapshot) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	data := buf.Bytes()
	if ms.encoder != nil {
		data = ms.encoder.EncodeAll(data, nil)
	}

	tempPath := ms.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close snapshot: %w", closeErr)
	}

	if err := os.Rename(tempPath, ms.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
