package api

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ytdl-relay/internal/downloader"
)

const defaultQuality = "720p"

var (
	youtubeURLRegex = regexp.MustCompile(`^(https?://)?(www\.|m\.)?(youtube\.com/(watch\?v=|embed/|v/|shorts/)|youtu\.be/)[A-Za-z0-9_-]{11}`)
	jobIDRegex      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

	errInvalidURL     = errors.New("invalid YouTube URL")
	errInvalidQuality = errors.New("invalid quality")
	errInvalidID      = errors.New("invalid download id")
)

// downloadRequest is a validated job request.
type downloadRequest struct {
	URL     string
	Quality string
	ID      string
}

func validateURL(url string) error {
	if !youtubeURLRegex.MatchString(strings.TrimSpace(url)) {
		return errInvalidURL
	}
	return nil
}

func newDownloadRequest(url, quality, id string) (downloadRequest, error) {
	url = strings.TrimSpace(url)
	if err := validateURL(url); err != nil {
		return downloadRequest{}, err
	}
	quality = strings.TrimSpace(quality)
	if quality == "" {
		quality = defaultQuality
	}
	if downloader.ParseQuality(quality) <= 0 {
		return downloadRequest{}, errInvalidQuality
	}
	if id != "" && !jobIDRegex.MatchString(id) {
		return downloadRequest{}, errInvalidID
	}
	return downloadRequest{URL: url, Quality: quality, ID: id}, nil
}

// formatDuration renders h:mm:ss, or m:ss under an hour.
func formatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	if secs <= 0 {
		return "Unknown"
	}
	h, rem := secs/3600, secs%3600
	m, s := rem/60, rem%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatViews(views int) string {
	switch {
	case views <= 0:
		return "Unknown"
	case views >= 1_000_000:
		return fmt.Sprintf("%.1fM views", float64(views)/1_000_000)
	case views >= 1_000:
		return fmt.Sprintf("%.1fK views", float64(views)/1_000)
	default:
		return fmt.Sprintf("%d views", views)
	}
}
