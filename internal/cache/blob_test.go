package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestBlobStore_PathForDeterministic(t *testing.T) {
	bs, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	vad := NewAudioDescription(FormatPCM, Rate22kHz, "alfur", "1.0")
	first := bs.PathFor("abc123", vad)
	second := bs.PathFor("abc123", vad)
	if first != second {
		t.Errorf("path not deterministic: %q vs %q", first, second)
	}
	if filepath.Base(first) != "alfur_1.0_abc123.pcm" {
		t.Errorf("unexpected file name: %q", filepath.Base(first))
	}

	vad.Format = FormatMP3
	if bs.PathFor("abc123", vad) == first {
		t.Error("format change did not change the path")
	}
}

func TestBlobStore_WriteReadRemove(t *testing.T) {
	bs, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	path := bs.PathFor("hash", NewAudioDescription(FormatPCM, Rate22kHz, "v", "1"))
	data := []byte("pcm audio bytes")
	if err := bs.Write(path, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if bs.DiskUsage() != int64(len(data)) {
		t.Errorf("disk usage = %d, want %d", bs.DiskUsage(), len(data))
	}

	got, err := bs.Read(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("read mismatch: got %q, want %q", got, data)
	}

	// Idempotent overwrite replaces the bytes and adjusts the usage.
	bigger := []byte("much longer pcm audio bytes")
	if err := bs.Write(path, bigger); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if bs.DiskUsage() != int64(len(bigger)) {
		t.Errorf("disk usage after overwrite = %d, want %d", bs.DiskUsage(), len(bigger))
	}

	if err := bs.Remove(path); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if bs.DiskUsage() != 0 {
		t.Errorf("disk usage after remove = %d, want 0", bs.DiskUsage())
	}
	if err := bs.Remove(path); err != nil {
		t.Errorf("removing a missing blob should not fail: %v", err)
	}
}

func TestBlobStore_ScanOnOpen(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "v_1_hash.pcm"), make([]byte, 64), 0o600); err != nil {
		t.Fatalf("failed to seed blob: %v", err)
	}

	bs, err := NewBlobStore(dir)
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}
	if bs.DiskUsage() != 64 {
		t.Errorf("disk usage = %d, want 64", bs.DiskUsage())
	}
}

func TestBlobStore_PruneOrphans(t *testing.T) {
	dir := t.TempDir()
	bs, err := NewBlobStore(dir)
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	keep := bs.PathFor("keep", NewAudioDescription(FormatPCM, Rate22kHz, "v", "1"))
	orphan := bs.PathFor("orphan", NewAudioDescription(FormatPCM, Rate22kHz, "v", "1"))
	if err := bs.Write(keep, []byte("keep me")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := bs.Write(orphan, []byte("remove me")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "leftover.pcm.tmp"), []byte("x"), 0o600); err != nil {
		t.Fatalf("failed to seed temp file: %v", err)
	}

	removed := bs.PruneOrphans(map[string]struct{}{keep: {}})
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("referenced blob was pruned")
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphaned blob survived pruning")
	}
	if bs.DiskUsage() != int64(len("keep me")) {
		t.Errorf("disk usage after pruning = %d, want %d", bs.DiskUsage(), len("keep me"))
	}
}
