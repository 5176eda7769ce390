package cache

import "errors"

// Common errors for cache operations.
var (
	// ErrInvalidWatermarks is returned when the high watermark is not
	// strictly greater than the low watermark.
	ErrInvalidWatermarks = errors.New("high watermark must be greater than low watermark")

	// ErrInvalidConfig is returned for other unusable configurations.
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrNotFound is returned when no cache item matches the given
	// uuid or text.
	ErrNotFound = errors.New("cache item not found")

	// ErrNoAudioForVoice is returned when a cache item has no audio
	// entry for the requested voice.
	ErrNoAudioForVoice = errors.New("no audio entry for voice")

	// ErrNoAudio is returned when an operation requires already attached
	// audio (a descriptor for a specific phoneme, or any audio at all)
	// and none exists.
	ErrNoAudio = errors.New("no audio attached to cache item")

	// ErrInvalidAudio is returned for empty audio buffers or empty voice
	// identifiers.
	ErrInvalidAudio = errors.New("invalid audio data or voice identity")
)
