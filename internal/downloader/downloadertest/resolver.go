// Package downloadertest provides an in-memory media resolver for tests.
package downloadertest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"ytdl-relay/internal/downloader"
)

// Resolver serves fixed payloads for a single media.
type Resolver struct {
	// Media is returned by Resolve. Formats select payloads by ID.
	Media    *downloader.Media
	Payloads map[string][]byte

	// ResolveErr fails Resolve.
	ResolveErr error
	// StreamErr, when set, is returned by the stream once FailAfter bytes
	// have been read.
	StreamErr error
	FailAfter int
	// HideSize makes formats and streams report an unknown length.
	HideSize bool
	// Gate, when non-nil, blocks Resolve until it is closed.
	Gate chan struct{}

	mu       sync.Mutex
	resolved int
}

// NewCombined returns a resolver with one 720p mp4 stream carrying audio.
func NewCombined(id string, payload []byte) *Resolver {
	return &Resolver{
		Media: &downloader.Media{
			ID:    id,
			Title: "Test video " + id,
			Formats: []downloader.Format{{
				ID: "22", MimeType: `video/mp4; codecs="avc1.64001F, mp4a.40.2"`,
				QualityLabel: "720p", Height: 720, ContentLength: int64(len(payload)),
				HasVideo: true, HasAudio: true,
			}},
		},
		Payloads: map[string][]byte{"22": payload},
	}
}

// NewAdaptive returns a resolver with separate 1080p video and audio streams.
func NewAdaptive(id string, video, audio []byte) *Resolver {
	return &Resolver{
		Media: &downloader.Media{
			ID:    id,
			Title: "Test video " + id,
			Formats: []downloader.Format{
				{
					ID: "137", MimeType: `video/mp4; codecs="avc1.640028"`,
					QualityLabel: "1080p", Height: 1080, ContentLength: int64(len(video)),
					HasVideo: true,
				},
				{
					ID: "140", MimeType: `audio/mp4; codecs="mp4a.40.2"`,
					ContentLength: int64(len(audio)), HasAudio: true, Bitrate: 128000,
				},
			},
		},
		Payloads: map[string][]byte{"137": video, "140": audio},
	}
}

// Resolved returns how many times Resolve was called.
func (r *Resolver) Resolved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

func (r *Resolver) Resolve(ctx context.Context, url string) (*downloader.Media, error) {
	r.mu.Lock()
	r.resolved++
	r.mu.Unlock()

	if r.Gate != nil {
		select {
		case <-r.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.ResolveErr != nil {
		return nil, r.ResolveErr
	}
	m := *r.Media
	m.Formats = append([]downloader.Format(nil), r.Media.Formats...)
	if r.HideSize {
		for i := range m.Formats {
			m.Formats[i].ContentLength = 0
		}
	}
	return &m, nil
}

func (r *Resolver) Stream(ctx context.Context, media *downloader.Media, f downloader.Format) (io.ReadCloser, int64, error) {
	payload, ok := r.Payloads[f.ID]
	if !ok {
		return nil, 0, downloader.ErrFormatNotFound
	}
	var src io.Reader = bytes.NewReader(payload)
	if r.StreamErr != nil {
		src = &failingReader{r: src, left: r.FailAfter, err: r.StreamErr}
	}
	size := int64(len(payload))
	if r.HideSize {
		size = 0
	}
	return io.NopCloser(src), size, nil
}

type failingReader struct {
	r    io.Reader
	left int
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.left <= 0 {
		return 0, f.err
	}
	if len(p) > f.left {
		p = p[:f.left]
	}
	n, err := f.r.Read(p)
	f.left -= n
	if errors.Is(err, io.EOF) {
		return n, f.err
	}
	return n, err
}

// Payload returns n deterministic bytes.
func Payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}
