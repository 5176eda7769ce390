package tts

import (
	"strings"

	"github.com/dgnsrekt/voicecache/internal/cache"
)

// MockFrontend is a deterministic frontend for testing. It lowercases the
// text as its "normalization" and emits one phoneme per word.
type MockFrontend struct{}

// Process implements Frontend.
func (MockFrontend) Process(text string) (string, []string, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	return normalized, strings.Fields(normalized), nil
}

// Version implements Frontend.
func (MockFrontend) Version() string {
	return "mock-frontend-1"
}

// MockEngine is a deterministic engine for testing. It derives pseudo
// audio from the phoneme symbols so distinct phonemes get distinct
// buffers.
type MockEngine struct {
	// ShouldFail makes every synthesis call return FailureError.
	ShouldFail   bool
	FailureError error

	// CallCount counts synthesis invocations.
	CallCount int

	voice Voice
	down  bool
}

// NewMockEngine creates a mock engine with a fixed test voice.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		voice: Voice{
			Name:     "mock-voice",
			Version:  "1.0",
			Language: "en-US",
		},
	}
}

// SynthesizePhoneme implements Engine.
func (e *MockEngine) SynthesizePhoneme(symbols string) (*Audio, error) {
	e.CallCount++
	if e.ShouldFail {
		return nil, e.FailureError
	}

	data := make([]byte, 0, len(symbols)*64)
	for i := 0; i < 64; i++ {
		data = append(data, []byte(symbols)...)
	}
	return &Audio{
		Data:   data,
		Format: cache.FormatPCM,
		Rate:   cache.Rate22kHz,
	}, nil
}

// Voice implements Engine.
func (e *MockEngine) Voice() Voice {
	return e.voice
}

// IsAvailable implements Engine.
func (e *MockEngine) IsAvailable() bool {
	return !e.down
}

// Shutdown implements Engine.
func (e *MockEngine) Shutdown() error {
	e.down = true
	return nil
}
