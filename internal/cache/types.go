package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AudioFormat identifies the encoding of a cached audio buffer.
type AudioFormat int32

const (
	// FormatInvalid marks an unset audio format.
	FormatInvalid AudioFormat = iota

	// FormatPCM represents raw 16-bit PCM audio.
	FormatPCM

	// FormatMP3 represents MP3 compressed audio.
	FormatMP3
)

// Extension returns the file extension used for blobs of this format.
func (f AudioFormat) Extension() string {
	switch f {
	case FormatPCM:
		return ".pcm"
	case FormatMP3:
		return ".mp3"
	default:
		return ".unknown"
	}
}

// String returns the string representation of the audio format.
func (f AudioFormat) String() string {
	switch f {
	case FormatPCM:
		return "pcm"
	case FormatMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// SampleRate is the sample rate of a cached audio buffer in Hz.
type SampleRate int32

const (
	Rate11kHz SampleRate = 11025
	Rate16kHz SampleRate = 16000
	Rate22kHz SampleRate = 22050
	Rate44kHz SampleRate = 44100
	Rate48kHz SampleRate = 48000
)

// hashString returns the hex-encoded SHA-256 digest of s. It is used for
// both utterance text hashes and phoneme content hashes.
func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// PhonemeEntry is one pronunciation unit of an utterance. Hash is derived
// from Symbols and addresses the audio blob for this phoneme.
type PhonemeEntry struct {
	Symbols string
	Hash    string
}

// NewPhonemeEntry builds a phoneme entry with its content hash filled in.
func NewPhonemeEntry(symbols string) PhonemeEntry {
	return PhonemeEntry{
		Symbols: symbols,
		Hash:    hashString(symbols),
	}
}

// Utterance is a raw text together with its normalized form and phonemic
// transcription as produced by the frontend.
type Utterance struct {
	Text            string
	Normalized      string
	TextHash        string
	Phonemes        []PhonemeEntry
	FrontendVersion string
}

// NewUtterance builds an utterance with text hash and phoneme hashes
// computed from the given parameters.
func NewUtterance(text, normalized string, phonemeSymbols []string, frontendVersion string) Utterance {
	phonemes := make([]PhonemeEntry, 0, len(phonemeSymbols))
	for _, symbols := range phonemeSymbols {
		phonemes = append(phonemes, NewPhonemeEntry(symbols))
	}
	return Utterance{
		Text:            text,
		Normalized:      normalized,
		TextHash:        hashString(text),
		Phonemes:        phonemes,
		FrontendVersion: frontendVersion,
	}
}

// Equal reports whether two utterances carry the same text, normalization,
// phonemes and frontend version.
func (u Utterance) Equal(other Utterance) bool {
	if u.Text != other.Text ||
		u.Normalized != other.Normalized ||
		u.FrontendVersion != other.FrontendVersion ||
		len(u.Phonemes) != len(other.Phonemes) {
		return false
	}
	for i, p := range u.Phonemes {
		if p != other.Phonemes[i] {
			return false
		}
	}
	return true
}

// VoiceKey builds the map key distinguishing audio produced by different
// voices and voice versions.
func VoiceKey(voiceName, voiceVersion string) string {
	return voiceName + ":" + voiceVersion
}

// VoiceAudioDescription describes one audio blob attached to a cache item.
type VoiceAudioDescription struct {
	Format       AudioFormat
	Rate         SampleRate
	Path         string
	FileSize     int64
	VoiceName    string
	VoiceVersion string
}

// NewAudioDescription returns a voice audio description for the given
// parameters. Path and FileSize are filled in when the audio is attached.
func NewAudioDescription(format AudioFormat, rate SampleRate, voiceName, voiceVersion string) VoiceAudioDescription {
	return VoiceAudioDescription{
		Format:       format,
		Rate:         rate,
		VoiceName:    voiceName,
		VoiceVersion: voiceVersion,
	}
}

// AudioEntry holds the audio variants stored for one (cache item, voice)
// pair, keyed by phoneme content hash.
type AudioEntry struct {
	Descriptors map[string]VoiceAudioDescription
}

func newAudioEntry() *AudioEntry {
	return &AudioEntry{Descriptors: make(map[string]VoiceAudioDescription)}
}

// Size returns the summed byte size of all descriptors in the entry.
func (e *AudioEntry) Size() int64 {
	var total int64
	for _, vad := range e.Descriptors {
		total += vad.FileSize
	}
	return total
}

func (e *AudioEntry) clone() *AudioEntry {
	c := newAudioEntry()
	for hash, vad := range e.Descriptors {
		c.Descriptors[hash] = vad
	}
	return c
}

// CacheItem unifies one utterance with zero or more voice-specific audio
// entries, keyed by VoiceKey.
type CacheItem struct {
	UUID       string
	Utterance  Utterance
	UsageCount int64
	LastAccess time.Time
	VoiceAudio map[string]*AudioEntry
}

// AudioSize returns the summed byte size of all audio attached to the item.
func (it *CacheItem) AudioSize() int64 {
	var total int64
	for _, entry := range it.VoiceAudio {
		total += entry.Size()
	}
	return total
}

// Clone returns a deep copy of the item. The manager only ever hands out
// clones so callers cannot mutate indexed state.
func (it *CacheItem) Clone() *CacheItem {
	c := &CacheItem{
		UUID:       it.UUID,
		Utterance:  it.Utterance,
		UsageCount: it.UsageCount,
		LastAccess: it.LastAccess,
		VoiceAudio: make(map[string]*AudioEntry, len(it.VoiceAudio)),
	}
	c.Utterance.Phonemes = append([]PhonemeEntry(nil), it.Utterance.Phonemes...)
	for key, entry := range it.VoiceAudio {
		c.VoiceAudio[key] = entry.clone()
	}
	return c
}

// Snapshot is the full persisted form of the cache: all items plus the
// text-hash lookup index.
type Snapshot struct {
	Entries   map[string]*CacheItem
	TextIndex map[string]string
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Entries:   make(map[string]*CacheItem),
		TextIndex: make(map[string]string),
	}
}

// Config holds configuration for the cache manager.
type Config struct {
	// DataDir is the directory holding the metadata store and audio blobs.
	DataDir string

	// StoreFile is the metadata snapshot file name inside DataDir.
	StoreFile string

	// BlobDir is the audio blob directory name inside DataDir.
	BlobDir string

	// LowWatermark is the byte size eviction shrinks the cache down to.
	LowWatermark int64

	// HighWatermark is the byte size that triggers eviction. Must be
	// strictly greater than LowWatermark.
	HighWatermark int64

	// CompressionLevel is the zstd level for the metadata snapshot
	// (0 disables compression).
	CompressionLevel int

	// FrontendVersion tags utterances built by the manager with the
	// version of the normalization/G2P producer.
	FrontendVersion string
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		StoreFile:        "utterances.store",
		BlobDir:          "audio",
		LowWatermark:     192 * 1024 * 1024, // 192MB
		HighWatermark:    256 * 1024 * 1024, // 256MB
		CompressionLevel: 3,
	}
}

// Stats holds cache counters reported by the manager.
type Stats struct {
	ItemCount     int
	AudioBytes    int64
	LowWatermark  int64
	HighWatermark int64

	Hits      int64
	Misses    int64
	Evictions int64
}
