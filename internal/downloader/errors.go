package downloader

import (
	"context"
	"errors"
	"io/fs"
	"strings"
)

var (
	ErrFormatNotFound = errors.New("format not found")
	ErrEmptyOutput    = errors.New("generated file is empty")
)

// Describe turns a download failure into a message that is safe to show
// the user. Known failure classes get a fixed text; file paths are never
// included.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Download timed out. Please try again."
	case errors.Is(err, context.Canceled):
		return "Download was cancelled because the server is shutting down."
	case errors.Is(err, ErrFormatNotFound):
		return "No downloadable format is available for this video."
	case errors.Is(err, ErrEmptyOutput):
		return "The downloaded file is empty."
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "permission denied"):
		return "Storage permission denied. Please contact system administrator."
	case strings.Contains(msg, "no space left"):
		return "Disk space exhausted. Cannot complete download."
	case strings.Contains(msg, "ffmpeg"):
		return "Media processing error (FFmpeg failed). Please try again."
	case strings.Contains(msg, "cipher") || strings.Contains(msg, "signature"):
		return "YouTube restricted access to this video (Cipher/Signature error)."
	case strings.Contains(msg, "403"):
		return "Access forbidden. YouTube might be throttling the server IP."
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Op + ": " + pathErr.Err.Error()
	}
	return msg
}
