package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// BlobStore reads and writes raw audio buffers as individual files on a
// content-derived path and tracks the aggregate bytes it holds on disk.
// File names are deterministic, so rewriting the same audio is idempotent.
type BlobStore struct {
	dir    string
	size   int64
	mu     sync.Mutex
	logger *log.Logger
}

// NewBlobStore creates the blob directory if needed and scans it to
// initialize the on-disk byte count.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	bs := &BlobStore{
		dir:    dir,
		logger: log.WithPrefix("cache/blob"),
	}
	bs.size = bs.scan()
	return bs, nil
}

// Dir returns the blob directory.
func (bs *BlobStore) Dir() string {
	return bs.dir
}

// PathFor returns the deterministic blob path for a phoneme content hash
// and voice audio description. Same inputs always produce the same path.
func (bs *BlobStore) PathFor(phonemeHash string, vad VoiceAudioDescription) string {
	name := vad.VoiceName + "_" + vad.VoiceVersion + "_" + phonemeHash + vad.Format.Extension()
	return filepath.Join(bs.dir, name)
}

// Write stores data at path via a temp file and atomic rename, replacing
// any previous blob at the same path.
func (bs *BlobStore) Write(path string, data []byte) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	var previous int64
	if info, err := os.Stat(path); err == nil {
		previous = info.Size()
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create blob file: %w", err)
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close blob: %w", closeErr)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace blob: %w", err)
	}

	bs.size += int64(len(data)) - previous
	return nil
}

// Read returns the full contents of the blob at path.
func (bs *BlobStore) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Remove deletes the blob at path. A missing blob is not an error.
func (bs *BlobStore) Remove(path string) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat blob: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	bs.size -= info.Size()
	return nil
}

// DiskUsage returns the tracked number of bytes on disk.
func (bs *BlobStore) DiskUsage() int64 {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.size
}

// PruneOrphans deletes blobs that are not referenced by the given path set,
// including leftover temp files. Returns the number of files removed.
func (bs *BlobStore) PruneOrphans(referenced map[string]struct{}) int {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	entries, err := os.ReadDir(bs.dir)
	if err != nil {
		bs.logger.Warn("cannot scan blob directory", "dir", bs.dir, "err", err)
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(bs.dir, entry.Name())
		if _, ok := referenced[path]; ok && !strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			bs.logger.Warn("cannot remove orphaned blob", "path", path, "err", err)
			continue
		}
		bs.size -= info.Size()
		removed++
	}
	if removed > 0 {
		bs.logger.Info("pruned orphaned audio files", "count", removed)
	}
	return removed
}

// scan sums the sizes of all files in the blob directory.
func (bs *BlobStore) scan() int64 {
	var total int64
	entries, err := os.ReadDir(bs.dir)
	if err != nil {
		bs.logger.Warn("cannot scan blob directory", "dir", bs.dir, "err", err)
		return 0
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}
