package tts

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicecache/internal/cache"
)

// ErrEngineNotAvailable is returned when synthesis is required but the
// engine is not ready.
var ErrEngineNotAvailable = errors.New("TTS engine is not available")

// Synthesizer produces audio for raw text, cache first: text runs through
// the frontend, the resulting utterance is registered in the cache, and
// the engine is only invoked for phonemes whose audio is not cached yet.
type Synthesizer struct {
	frontend Frontend
	engine   Engine
	cache    *cache.Manager
	logger   *log.Logger
}

// NewSynthesizer wires a frontend and an engine to the cache manager.
func NewSynthesizer(frontend Frontend, engine Engine, manager *cache.Manager) *Synthesizer {
	return &Synthesizer{
		frontend: frontend,
		engine:   engine,
		cache:    manager,
		logger:   log.WithPrefix("tts"),
	}
}

// Speak returns one audio buffer per phoneme of the given text, serving
// from the cache when possible and synthesizing (and caching) otherwise.
func (s *Synthesizer) Speak(text string) ([][]byte, error) {
	normalized, phonemes, err := s.frontend.Process(text)
	if err != nil {
		return nil, fmt.Errorf("frontend failed: %w", err)
	}

	item, err := s.cache.AddUtterance(text, normalized, phonemes)
	if err != nil {
		// Registration persists asynchronously of correctness: the item
		// is usable in memory even when the snapshot save failed.
		s.logger.Warn("utterance not persisted", "err", err)
	}
	if item == nil {
		return nil, fmt.Errorf("cannot register utterance: %w", err)
	}

	voice := s.engine.Voice()
	buffers, err := s.cache.GetAudio(item.Utterance, voice.Name, voice.Version)
	if err == nil && len(buffers) == len(item.Utterance.Phonemes) {
		s.logger.Debug("cache hit", "uuid", item.UUID, "voice", voice.Key())
		return buffers, nil
	}
	if err != nil && !errors.Is(err, cache.ErrNoAudioForVoice) && !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}

	return s.synthesize(item, voice)
}

// synthesize generates audio for every phoneme of the item and attaches it
// to the cache.
func (s *Synthesizer) synthesize(item *cache.CacheItem, voice Voice) ([][]byte, error) {
	if !s.engine.IsAvailable() {
		return nil, ErrEngineNotAvailable
	}

	buffers := make([][]byte, 0, len(item.Utterance.Phonemes))
	for _, phoneme := range item.Utterance.Phonemes {
		audio, err := s.engine.SynthesizePhoneme(phoneme.Symbols)
		if err != nil {
			return nil, fmt.Errorf("synthesis failed for %q: %w", phoneme.Symbols, err)
		}

		vad := cache.NewAudioDescription(audio.Format, audio.Rate, voice.Name, voice.Version)
		if err := s.cache.AddAudio(item.UUID, phoneme, vad, audio.Data); err != nil {
			s.logger.Warn("cannot cache synthesized audio",
				"uuid", item.UUID, "voice", voice.Key(), "err", err)
		}
		buffers = append(buffers, audio.Data)
	}
	return buffers, nil
}
