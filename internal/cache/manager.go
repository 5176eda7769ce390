package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Manager orchestrates the metadata store, the lookup index and the blob
// store behind a single exclusive lock. It owns the authoritative
// in-memory snapshot and the running audio byte counter, and enforces the
// watermark bounds on every audio addition.
//
// The index is updated first and a snapshot save is issued afterwards; a
// failed save is surfaced to the caller but the in-memory state is not
// rolled back.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	store  *MetadataStore
	blobs  *BlobStore
	index  *Index
	logger *log.Logger

	audioBytes int64
	closed     bool

	hits      int64
	misses    int64
	evictions int64
}

// NewManager creates a cache manager rooted at cfg.DataDir, loading the
// persisted snapshot (or starting empty), recomputing the audio byte
// counter by full scan and pruning audio files no metadata refers to.
func NewManager(cfg Config) (*Manager, error) {
	def := DefaultConfig()
	if cfg.StoreFile == "" {
		cfg.StoreFile = def.StoreFile
	}
	if cfg.BlobDir == "" {
		cfg.BlobDir = def.BlobDir
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("%w: data directory not set", ErrInvalidConfig)
	}
	if cfg.HighWatermark <= cfg.LowWatermark {
		return nil, fmt.Errorf("%w: high=%d low=%d", ErrInvalidWatermarks, cfg.HighWatermark, cfg.LowWatermark)
	}

	store, err := NewMetadataStore(filepath.Join(cfg.DataDir, cfg.StoreFile), cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata store: %w", err)
	}
	blobs, err := NewBlobStore(filepath.Join(cfg.DataDir, cfg.BlobDir))
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	m := &Manager{
		cfg:    cfg,
		store:  store,
		blobs:  blobs,
		index:  NewIndex(),
		logger: log.WithPrefix("cache"),
	}

	m.index.Rebuild(store.Load())
	m.audioBytes = m.scanAudioSize()
	m.pruneOrphansLocked()

	m.logger.Debug("cache loaded",
		"items", m.index.Len(),
		"audio_bytes", m.audioBytes,
		"low", cfg.LowWatermark,
		"high", cfg.HighWatermark)
	return m, nil
}

// Close persists the snapshot a final time. No method may be called on the
// manager afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	err := m.store.Save(m.index.Snapshot())
	m.closed = true
	return err
}

// checkClosed panics on use after Close. The manager is unusable at that
// point and continuing would silently drop cache state.
func (m *Manager) checkClosed() {
	if m.closed {
		panic("cache: manager used after Close")
	}
}

// persistLocked saves the current snapshot. The in-memory state has
// already been mutated and stays that way even when the save fails.
func (m *Manager) persistLocked() error {
	if err := m.store.Save(m.index.Snapshot()); err != nil {
		m.logger.Error("failed to persist cache snapshot", "err", err)
		return err
	}
	return nil
}

// scanAudioSize sums the descriptor sizes of every indexed item.
func (m *Manager) scanAudioSize() int64 {
	var total int64
	for _, item := range m.index.Items() {
		total += item.AudioSize()
	}
	return total
}

// pruneOrphansLocked deletes blob files no descriptor refers to.
func (m *Manager) pruneOrphansLocked() {
	referenced := make(map[string]struct{})
	for _, item := range m.index.Items() {
		for _, entry := range item.VoiceAudio {
			for _, vad := range entry.Descriptors {
				referenced[vad.Path] = struct{}{}
			}
		}
	}
	m.blobs.PruneOrphans(referenced)
}

// ItemCount returns the number of cache items.
func (m *Manager) ItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	return m.index.Len()
}

// FindByUUID returns a copy of the item with the given uuid.
func (m *Manager) FindByUUID(id string) (*CacheItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	item, ok := m.index.ByUUID(id)
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// FindByText returns a copy of the item whose raw text matches text. The
// raw text is the unique distinction point for a cache item.
func (m *Manager) FindByText(text string) (*CacheItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	item, ok := m.index.ByText(text)
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// FindUtterance looks up a cache item for the given frontend output. Only
// the raw text disambiguates entries.
func (m *Manager) FindUtterance(text, normalized string, phonemes []string) (*CacheItem, bool) {
	return m.FindByText(text)
}

// AddUtterance registers frontend output in the cache. If an item for the
// text already exists it is returned unchanged; otherwise a new item with
// a fresh uuid is created and persisted.
func (m *Manager) AddUtterance(text, normalized string, phonemes []string) (*CacheItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	if item, ok := m.index.ByText(text); ok {
		return item.Clone(), nil
	}
	return m.insertLocked(NewUtterance(text, normalized, phonemes, m.cfg.FrontendVersion))
}

// AddText registers a bare utterance without normalization or phonemes.
func (m *Manager) AddText(text string) (*CacheItem, error) {
	return m.AddUtterance(text, "", nil)
}

// SaveUtterance stores the utterance, updating the existing item for the
// same text or creating a new one.
func (m *Manager) SaveUtterance(u Utterance) (*CacheItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	if u.TextHash == "" {
		u.TextHash = hashString(u.Text)
	}
	if item, ok := m.index.ByText(u.Text); ok {
		return m.updateUtteranceLocked(item, u)
	}
	return m.insertLocked(u)
}

// UpdateUtterance replaces the utterance of the item with the given uuid.
// If the new utterance differs, all attached audio is deleted since the
// phoneme-to-audio alignment would be stale. An identical utterance is a
// no-op.
func (m *Manager) UpdateUtterance(id string, u Utterance) (*CacheItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	item, ok := m.index.ByUUID(id)
	if !ok {
		m.logger.Warn("update: no such item", "uuid", id)
		return nil, ErrNotFound
	}
	if u.TextHash == "" {
		u.TextHash = hashString(u.Text)
	}
	return m.updateUtteranceLocked(item, u)
}

func (m *Manager) insertLocked(u Utterance) (*CacheItem, error) {
	item := &CacheItem{
		UUID:       uuid.NewString(),
		Utterance:  u,
		VoiceAudio: make(map[string]*AudioEntry),
	}
	m.index.Put(item)
	err := m.persistLocked()
	return item.Clone(), err
}

func (m *Manager) updateUtteranceLocked(item *CacheItem, u Utterance) (*CacheItem, error) {
	if item.Utterance.Equal(u) {
		return item.Clone(), nil
	}
	m.dropAudioLocked(item)
	m.index.Remove(item.UUID)
	item.Utterance = u
	m.index.Put(item)
	err := m.persistLocked()
	return item.Clone(), err
}

// AddAudio attaches a synthesized audio buffer for one phoneme of the item
// with the given uuid. The blob is written first; metadata referencing it
// is only persisted after a successful write. Success bumps the item's
// usage count and last access time and may trigger eviction.
func (m *Manager) AddAudio(id string, phoneme PhonemeEntry, vad VoiceAudioDescription, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()

	if len(data) == 0 || vad.VoiceName == "" || vad.VoiceVersion == "" {
		m.logger.Warn("add audio: invalid buffer or voice identity", "uuid", id)
		return ErrInvalidAudio
	}
	item, ok := m.index.ByUUID(id)
	if !ok {
		m.logger.Warn("add audio: no such item", "uuid", id)
		return ErrNotFound
	}
	if phoneme.Hash == "" {
		phoneme = NewPhonemeEntry(phoneme.Symbols)
	}

	return m.attachAudioLocked(item, phoneme, vad, data)
}

// UpdateAudio replaces already attached audio for one phoneme of an item.
// An audio entry for the voice and a descriptor for exactly this phoneme
// must already exist.
func (m *Manager) UpdateAudio(id string, phoneme PhonemeEntry, vad VoiceAudioDescription, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()

	if len(data) == 0 || vad.VoiceName == "" || vad.VoiceVersion == "" {
		m.logger.Warn("update audio: invalid buffer or voice identity", "uuid", id)
		return ErrInvalidAudio
	}
	item, ok := m.index.ByUUID(id)
	if !ok {
		m.logger.Warn("update audio: no such item", "uuid", id)
		return ErrNotFound
	}
	if phoneme.Hash == "" {
		phoneme = NewPhonemeEntry(phoneme.Symbols)
	}

	key := VoiceKey(vad.VoiceName, vad.VoiceVersion)
	entry, ok := item.VoiceAudio[key]
	if !ok {
		m.logger.Warn("update audio: no entry for voice", "uuid", id, "voice", key)
		return ErrNoAudioForVoice
	}
	if _, ok := entry.Descriptors[phoneme.Hash]; !ok {
		m.logger.Warn("update audio: no descriptor for phoneme, add it instead",
			"uuid", id, "voice", key)
		return ErrNoAudio
	}

	return m.attachAudioLocked(item, phoneme, vad, data)
}

func (m *Manager) attachAudioLocked(item *CacheItem, phoneme PhonemeEntry, vad VoiceAudioDescription, data []byte) error {
	path := m.blobs.PathFor(phoneme.Hash, vad)
	if err := m.blobs.Write(path, data); err != nil {
		m.logger.Error("failed to write audio blob", "uuid", item.UUID, "path", path, "err", err)
		return err
	}

	vad.Path = path
	vad.FileSize = int64(len(data))

	key := VoiceKey(vad.VoiceName, vad.VoiceVersion)
	entry, ok := item.VoiceAudio[key]
	if !ok {
		entry = newAudioEntry()
		item.VoiceAudio[key] = entry
	}
	var previous int64
	if old, ok := entry.Descriptors[phoneme.Hash]; ok {
		previous = old.FileSize
	}
	entry.Descriptors[phoneme.Hash] = vad

	item.UsageCount++
	item.LastAccess = time.Now()
	m.audioBytes += vad.FileSize - previous

	err := m.persistLocked()
	m.expireLocked()
	return err
}

// GetAudio returns the audio buffers cached for the utterance and voice,
// ordered by the stored phoneme list. A hit bumps the item's usage count
// and last access time. Unknown utterances yield ErrNotFound, a known
// utterance without audio for the voice yields ErrNoAudioForVoice, and a
// read failure aborts the whole fetch; partial results are never returned.
func (m *Manager) GetAudio(u Utterance, voiceName, voiceVersion string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()

	item, ok := m.index.ByText(u.Text)
	if !ok {
		m.misses++
		m.logger.Warn("get audio: no such utterance", "text", excerpt(u.Text))
		return nil, ErrNotFound
	}

	key := VoiceKey(voiceName, voiceVersion)
	entry, ok := item.VoiceAudio[key]
	if !ok || len(entry.Descriptors) == 0 {
		m.misses++
		return nil, ErrNoAudioForVoice
	}

	buffers := make([][]byte, 0, len(item.Utterance.Phonemes))
	for _, phoneme := range item.Utterance.Phonemes {
		vad, ok := entry.Descriptors[phoneme.Hash]
		if !ok {
			continue
		}
		data, err := m.blobs.Read(vad.Path)
		if err != nil {
			m.misses++
			m.logger.Error("get audio: unreadable blob", "uuid", item.UUID, "path", vad.Path, "err", err)
			return nil, err
		}
		buffers = append(buffers, data)
	}
	if len(buffers) == 0 {
		m.misses++
		return nil, ErrNoAudioForVoice
	}

	m.hits++
	item.UsageCount++
	item.LastAccess = time.Now()
	if err := m.persistLocked(); err != nil {
		m.logger.Warn("get audio: usage bump not persisted", "uuid", item.UUID)
	}
	return buffers, nil
}

// DeleteAudioForVoice removes all audio a voice has stored for the item.
// A voice key without entries is a no-op success. Usage count and last
// access time are preserved; they represent popularity independent of
// whether audio currently exists.
func (m *Manager) DeleteAudioForVoice(id, voiceName, voiceVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()

	item, ok := m.index.ByUUID(id)
	if !ok {
		m.logger.Warn("delete audio: no such item", "uuid", id)
		return ErrNotFound
	}
	key := VoiceKey(voiceName, voiceVersion)
	entry, ok := item.VoiceAudio[key]
	if !ok {
		return nil
	}

	var freed int64
	for _, vad := range entry.Descriptors {
		if err := m.blobs.Remove(vad.Path); err != nil {
			m.logger.Warn("cannot remove audio file", "path", vad.Path, "err", err)
		}
		freed += vad.FileSize
	}
	delete(item.VoiceAudio, key)
	m.audioBytes -= freed
	return m.persistLocked()
}

// DeleteAudioForText removes all audio of the item matching text, across
// every voice.
func (m *Manager) DeleteAudioForText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()

	item, ok := m.index.ByText(text)
	if !ok {
		m.logger.Warn("delete audio: no such text", "text", excerpt(text))
		return ErrNotFound
	}
	m.dropAudioLocked(item)
	return m.persistLocked()
}

// DeleteAudioForItem removes all audio of the item with the given uuid,
// across every voice.
func (m *Manager) DeleteAudioForItem(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()

	item, ok := m.index.ByUUID(id)
	if !ok {
		m.logger.Warn("delete audio: no such item", "uuid", id)
		return ErrNotFound
	}
	m.dropAudioLocked(item)
	return m.persistLocked()
}

// dropAudioLocked deletes every audio file of the item and clears its
// voice audio map, adjusting the running byte counter.
func (m *Manager) dropAudioLocked(item *CacheItem) {
	var freed int64
	for _, entry := range item.VoiceAudio {
		for _, vad := range entry.Descriptors {
			if err := m.blobs.Remove(vad.Path); err != nil {
				m.logger.Warn("cannot remove audio file", "path", vad.Path, "err", err)
			}
			freed += vad.FileSize
		}
	}
	item.VoiceAudio = make(map[string]*AudioEntry)
	m.audioBytes -= freed
}

// DeleteCacheItem removes the item and all its audio files. Returns false
// when the uuid is unknown.
func (m *Manager) DeleteCacheItem(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	return m.deleteItemLocked(id)
}

func (m *Manager) deleteItemLocked(id string) bool {
	item, ok := m.index.ByUUID(id)
	if !ok {
		return false
	}
	m.dropAudioLocked(item)
	m.index.Remove(id)
	if err := m.persistLocked(); err != nil {
		m.logger.Warn("item removal not persisted", "uuid", id)
	}
	return true
}

// Clear deletes every cache item and its audio files.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()

	for _, item := range m.index.Items() {
		m.dropAudioLocked(item)
		m.index.Remove(item.UUID)
	}
	return m.persistLocked()
}

// ExpireCache enforces the watermark bounds: when the total audio size has
// reached the high watermark, the oldest items are deleted until the size
// drops to the low watermark.
func (m *Manager) ExpireCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	m.expireLocked()
}

func (m *Manager) expireLocked() {
	if m.audioBytes < m.cfg.HighWatermark {
		return
	}
	toFree := m.audioBytes - m.cfg.LowWatermark
	if toFree <= 0 {
		return
	}
	victims := collectForSize(toFree, sortByLastAccess(m.index.Items()))
	for _, victim := range victims {
		text := excerpt(victim.Utterance.Text)
		if m.deleteItemLocked(victim.UUID) {
			m.evictions++
			m.logger.Info("expired cache item", "uuid", victim.UUID, "text", text)
		} else {
			m.logger.Error("couldn't delete cache item", "uuid", victim.UUID, "text", text)
		}
	}
}

// DeleteAudioByAge deletes audio starting with the oldest items until at
// least minBytes are freed, always clearing whole items. Returns the
// number of bytes actually freed, which is smaller than minBytes when the
// cache holds less audio and zero when minBytes is not positive. Item
// metadata is kept.
func (m *Manager) DeleteAudioByAge(minBytes int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	return m.deleteAudioLocked(minBytes, sortByLastAccess(m.index.Items()))
}

// DeleteAudioByUsage deletes audio starting with the least used items
// until at least minBytes are freed, always clearing whole items. Returns
// the number of bytes actually freed. Item metadata is kept.
func (m *Manager) DeleteAudioByUsage(minBytes int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	return m.deleteAudioLocked(minBytes, sortByUsage(m.index.Items()))
}

func (m *Manager) deleteAudioLocked(minBytes int64, ordered []*CacheItem) int64 {
	victims := collectForSize(minBytes, ordered)
	var freed int64
	for _, victim := range victims {
		freed += victim.AudioSize()
		m.dropAudioLocked(victim)
	}
	if len(victims) > 0 {
		if err := m.persistLocked(); err != nil {
			m.logger.Warn("bulk audio removal not persisted")
		}
	}
	return freed
}

// UsageCount returns the cumulative usage count of the utterance, or zero
// when the utterance is unknown.
func (m *Manager) UsageCount(u Utterance) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	item, ok := m.index.ByText(u.Text)
	if !ok {
		return 0
	}
	return item.UsageCount
}

// BumpUsage increments the usage count of the utterance. The item must
// have at least one voice audio entry.
func (m *Manager) BumpUsage(u Utterance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	item, err := m.itemWithAudioLocked(u, "bump usage")
	if err != nil {
		return err
	}
	item.UsageCount++
	return m.persistLocked()
}

// Touch updates the last access time of the utterance. The item must have
// at least one voice audio entry.
func (m *Manager) Touch(u Utterance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	item, err := m.itemWithAudioLocked(u, "touch")
	if err != nil {
		return err
	}
	item.LastAccess = time.Now()
	return m.persistLocked()
}

func (m *Manager) itemWithAudioLocked(u Utterance, op string) (*CacheItem, error) {
	item, ok := m.index.ByText(u.Text)
	if !ok {
		m.logger.Warn(op+": no such utterance", "text", excerpt(u.Text))
		return nil, ErrNotFound
	}
	if len(item.VoiceAudio) == 0 {
		m.logger.Warn(op+": no audio for utterance", "text", excerpt(u.Text))
		return nil, ErrNoAudio
	}
	return item, nil
}

// LastAccess returns the last access time of the utterance's item.
func (m *Manager) LastAccess(u Utterance) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	item, ok := m.index.ByText(u.Text)
	if !ok {
		return time.Time{}, false
	}
	return item.LastAccess, true
}

// AudioFileSize returns the running total of audio bytes across all items.
func (m *Manager) AudioFileSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	return m.audioBytes
}

// AudioFileSizeForVoice returns the audio bytes stored for one voice.
func (m *Manager) AudioFileSizeForVoice(voiceName, voiceVersion string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()

	var total int64
	for _, item := range m.index.Items() {
		for _, entry := range item.VoiceAudio {
			for _, vad := range entry.Descriptors {
				if vad.VoiceName == voiceName && vad.VoiceVersion == voiceVersion {
					total += vad.FileSize
				}
			}
		}
	}
	return total
}

// AvailableVoices returns the sorted voice keys that have audio in the
// cache.
func (m *Manager) AvailableVoices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	return m.index.Voices()
}

// UUIDsByTimestamp returns all item uuids ascending by last access time.
func (m *Manager) UUIDsByTimestamp() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	return uuids(sortByLastAccess(m.index.Items()))
}

// UUIDsByUsage returns all item uuids ascending by usage count.
func (m *Manager) UUIDsByUsage() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	return uuids(sortByUsage(m.index.Items()))
}

func uuids(items []*CacheItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.UUID)
	}
	return ids
}

// Stats returns the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkClosed()
	return Stats{
		ItemCount:     m.index.Len(),
		AudioBytes:    m.audioBytes,
		LowWatermark:  m.cfg.LowWatermark,
		HighWatermark: m.cfg.HighWatermark,
		Hits:          m.hits,
		Misses:        m.misses,
		Evictions:     m.evictions,
	}
}

// excerpt shortens utterance text for log output.
func excerpt(text string) string {
	const max = 24
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}
