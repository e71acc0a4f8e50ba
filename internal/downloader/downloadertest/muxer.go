package downloadertest

import (
	"context"
	"os"
	"sync"
)

// Muxer concatenates the video and audio files instead of running ffmpeg.
type Muxer struct {
	Err error

	mu    sync.Mutex
	calls int
}

func (m *Muxer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, outPath, ext string) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	v, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	a, err := os.ReadFile(audioPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, append(v, a...), 0644)
}
