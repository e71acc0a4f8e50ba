package downloader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
)

// YouTube resolves videos through the kkdai/youtube client.
type YouTube struct {
	client *youtube.Client
}

// NewYouTube builds a resolver. httpClient may be nil.
func NewYouTube(httpClient *http.Client) *YouTube {
	return &YouTube{client: &youtube.Client{HTTPClient: httpClient}}
}

func (y *YouTube) Resolve(ctx context.Context, videoURL string) (*Media, error) {
	video, err := y.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return nil, err
	}

	media := &Media{
		ID:        video.ID,
		Title:     video.Title,
		Channel:   video.Author,
		Thumbnail: bestThumbnail(video.Thumbnails),
		Duration:  video.Duration,
		Views:     video.Views,
		Source:    video,
	}
	for _, f := range video.Formats {
		height := f.Height
		if height == 0 {
			height = ParseQuality(f.QualityLabel)
		}
		media.Formats = append(media.Formats, Format{
			ID:            strconv.Itoa(f.ItagNo),
			MimeType:      f.MimeType,
			QualityLabel:  f.QualityLabel,
			Height:        height,
			Bitrate:       f.Bitrate,
			ContentLength: f.ContentLength,
			HasVideo:      strings.HasPrefix(f.MimeType, "video/"),
			HasAudio:      f.AudioChannels > 0 || strings.HasPrefix(f.MimeType, "audio/"),
		})
	}
	return media, nil
}

func (y *YouTube) Stream(ctx context.Context, media *Media, format Format) (io.ReadCloser, int64, error) {
	video, ok := media.Source.(*youtube.Video)
	if !ok {
		return nil, 0, errors.New("media was not resolved by the youtube resolver")
	}
	itag, err := strconv.Atoi(format.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("bad format id %q: %w", format.ID, err)
	}
	for i := range video.Formats {
		if video.Formats[i].ItagNo == itag {
			return y.client.GetStreamContext(ctx, video, &video.Formats[i])
		}
	}
	return nil, 0, ErrFormatNotFound
}

func bestThumbnail(thumbs youtube.Thumbnails) string {
	best := ""
	var bestWidth uint
	for _, t := range thumbs {
		if best == "" || t.Width > bestWidth {
			best = t.URL
			bestWidth = t.Width
		}
	}
	return best
}

// LoadCookies reads a Netscape-format cookie file (as exported by browser
// extensions and yt-dlp) into a cookie jar. A missing file yields a nil jar
// and no error.
func LoadCookies(path string) (http.CookieJar, int, error) {
	if path == "" {
		return nil, 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	cookies, err := parseCookies(f)
	if err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", path, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, 0, err
	}
	byHost := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		byHost[host] = append(byHost[host], c)
	}
	for host, cs := range byHost {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, cs)
	}
	return jar, len(cookies), nil
}

func parseCookies(r io.Reader) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	sc := bufio.NewScanner(r)
	now := time.Now()
	for sc.Scan() {
		// a trailing tab is an empty value, so only line endings go
		line := strings.TrimRight(sc.Text(), "\r\n")
		httpOnly := false
		if strings.HasPrefix(line, "#HttpOnly_") {
			line = strings.TrimPrefix(line, "#HttpOnly_")
			httpOnly = true
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		c := &http.Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			c.Expires = time.Unix(exp, 0)
			if c.Expires.Before(now) {
				continue
			}
		}
		cookies = append(cookies, c)
	}
	return cookies, sc.Err()
}
