// Package tts defines the interface boundary between the utterance cache
// and its external collaborators: the text frontend (normalization and
// grapheme-to-phoneme conversion) and the speech synthesis engines. Both
// are opaque producers; the cache only consumes their output.
package tts

import (
	"github.com/dgnsrekt/voicecache/internal/cache"
)

// Frontend converts raw text into its normalized form and phonemic
// transcription. Implementations wrap the actual normalization/G2P
// pipeline.
type Frontend interface {
	// Process returns the normalized text and the phoneme symbols for
	// the given raw text.
	Process(text string) (normalized string, phonemes []string, err error)

	// Version identifies the frontend implementation and rule set.
	Version() string
}

// Voice identifies a synthesis voice.
type Voice struct {
	Name     string // Voice name, e.g. "alfur"
	Version  string // Voice model version
	Language string // Language code, e.g. "is-IS"
}

// Key returns the cache voice key for this voice.
func (v Voice) Key() string {
	return cache.VoiceKey(v.Name, v.Version)
}

// Audio is a synthesized audio buffer together with its encoding.
type Audio struct {
	Data   []byte
	Format cache.AudioFormat
	Rate   cache.SampleRate
}

// Engine produces audio for phoneme strings. Implementations wrap actual
// synthesis models or services.
type Engine interface {
	// SynthesizePhoneme converts one phoneme symbol string to audio.
	SynthesizePhoneme(symbols string) (*Audio, error)

	// Voice returns the voice this engine synthesizes with.
	Voice() Voice

	// IsAvailable checks if the engine is ready for use.
	IsAvailable() bool

	// Shutdown cleanly stops the engine and releases resources.
	Shutdown() error
}
