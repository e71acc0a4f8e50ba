package downloader

import (
	"context"
	"io"
	"mime"
	"strings"
	"time"
)

// Resolver turns a source URL into stream metadata and opens the streams.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*Media, error)
	// Stream opens one format of a resolved media. The returned size is
	// the payload length in bytes, or 0 when unknown.
	Stream(ctx context.Context, media *Media, format Format) (io.ReadCloser, int64, error)
}

// Media is a resolved video.
type Media struct {
	ID        string
	Title     string
	Channel   string
	Thumbnail string
	Duration  time.Duration
	Views     int
	Formats   []Format

	// Source is the resolver's own handle for the media.
	Source any
}

// Format is one downloadable rendition.
type Format struct {
	ID            string
	MimeType      string
	QualityLabel  string
	Height        int
	Bitrate       int
	ContentLength int64
	HasVideo      bool
	HasAudio      bool
}

// IsCombined reports whether the format carries both video and audio.
func (f Format) IsCombined() bool {
	return f.HasVideo && f.HasAudio
}

// Ext returns the file extension for the format's container.
func (f Format) Ext() string {
	mt, _, err := mime.ParseMediaType(f.MimeType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(f.MimeType, ";", 2)[0])
	}
	switch mt {
	case "video/mp4":
		return "mp4"
	case "audio/mp4":
		return "m4a"
	case "video/webm", "audio/webm":
		return "webm"
	case "video/3gpp":
		return "3gp"
	}
	if i := strings.IndexByte(mt, '/'); i >= 0 && i < len(mt)-1 {
		return mt[i+1:]
	}
	return "mp4"
}

func (f Format) isMP4() bool {
	ext := f.Ext()
	return ext == "mp4" || ext == "m4a"
}
