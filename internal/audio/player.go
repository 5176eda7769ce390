package audio

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/voicecache/internal/cache"
)

// ErrPlayerClosed is returned when playback is requested after Close.
var ErrPlayerClosed = errors.New("audio player is closed")

// Player sends PCM buffers to an audio sink. Synthesis output is mono
// signed 16-bit little endian samples at the voice's sample rate.
type Player interface {
	// Play blocks until the buffer has been played in full.
	Play(data []byte) error
	Close() error
}

type otoPlayer struct {
	ctx *oto.Context

	mu     sync.Mutex
	closed bool
}

// NewPlayer opens the default audio device for the given sample rate.
// The device stays claimed until Close.
func NewPlayer(rate cache.SampleRate) (Player, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(rate),
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open audio device: %w", err)
	}
	<-ready
	return &otoPlayer{ctx: ctx}, nil
}

func (p *otoPlayer) Play(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if len(data) == 0 {
		return nil
	}

	player := p.ctx.NewPlayer(bytes.NewReader(data))
	player.Play()
	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	return player.Close()
}

// Close stops accepting buffers. The oto context itself cannot be torn
// down, so the device handle lives until the process exits.
func (p *otoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
