package audio

import "sync"

// MockPlayer records played buffers instead of touching an audio device.
type MockPlayer struct {
	// FailWith makes every Play call return this error.
	FailWith error

	mu     sync.Mutex
	played [][]byte
	closed bool
}

// NewMockPlayer creates an empty mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// Play implements Player.
func (p *MockPlayer) Play(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if p.FailWith != nil {
		return p.FailWith
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	p.played = append(p.played, buf)
	return nil
}

// Close implements Player.
func (p *MockPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Played returns the buffers played so far.
func (p *MockPlayer) Played() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.played))
	copy(out, p.played)
	return out
}
