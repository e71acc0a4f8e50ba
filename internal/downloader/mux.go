package downloader

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Muxer combines a video stream and an audio stream into one container.
type Muxer interface {
	Mux(ctx context.Context, videoPath, audioPath, outPath, ext string) error
}

// FFmpeg muxes with a stream copy through the ffmpeg binary.
type FFmpeg struct {
	path string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path}
}

func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, outPath, ext string) error {
	cmd := exec.CommandContext(ctx, f.path, "-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath, "-i", audioPath, "-c", "copy", "-f", containerFormat(ext), outPath)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func containerFormat(ext string) string {
	switch ext {
	case "mkv":
		return "matroska"
	case "m4a":
		return "ipod"
	}
	return ext
}
