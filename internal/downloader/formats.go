package downloader

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"ytdl-relay/internal/models"
)

const minListedHeight = 360

// Selection is the set of formats chosen for one download: either a single
// combined stream, or a video stream and an audio stream to be merged.
type Selection struct {
	Combined *Format
	Video    *Format
	Audio    *Format
}

// Merged reports whether the selection needs a mux step.
func (s Selection) Merged() bool {
	return s.Combined == nil
}

// Parts lists the formats to fetch, video first.
func (s Selection) Parts() []Format {
	if s.Combined != nil {
		return []Format{*s.Combined}
	}
	return []Format{*s.Video, *s.Audio}
}

// Ext is the extension of the final artifact.
func (s Selection) Ext() string {
	if s.Combined != nil {
		return s.Combined.Ext()
	}
	v, a := s.Video.Ext(), s.Audio.Ext()
	switch {
	case s.Video.isMP4() && s.Audio.isMP4():
		return "mp4"
	case v == "webm" && a == "webm":
		return "webm"
	default:
		return "mkv"
	}
}

// SelectFormats picks the formats for the requested height. A combined
// stream at exactly that height wins; then the best video at or below the
// height merged with the best audio; then the best combined stream at or
// below the height; finally the best of whatever exists. height <= 0 means
// no constraint.
func SelectFormats(formats []Format, height int) (Selection, error) {
	limit := height
	if limit <= 0 {
		limit = math.MaxInt
	}

	var exact, combinedUnder, combinedAny, videoUnder, videoAny, audio *Format
	for i := range formats {
		f := &formats[i]
		switch {
		case f.IsCombined():
			if height > 0 && f.Height == height {
				exact = betterVideo(exact, f)
			}
			if f.Height <= limit {
				combinedUnder = betterVideo(combinedUnder, f)
			}
			combinedAny = betterVideo(combinedAny, f)
		case f.HasVideo:
			if f.Height <= limit {
				videoUnder = betterVideo(videoUnder, f)
			}
			videoAny = betterVideo(videoAny, f)
		case f.HasAudio:
			audio = betterAudio(audio, f)
		}
	}

	switch {
	case exact != nil:
		return Selection{Combined: exact}, nil
	case videoUnder != nil && audio != nil:
		return Selection{Video: videoUnder, Audio: audio}, nil
	case combinedUnder != nil:
		return Selection{Combined: combinedUnder}, nil
	case combinedAny != nil:
		return Selection{Combined: combinedAny}, nil
	case videoAny != nil && audio != nil:
		return Selection{Video: videoAny, Audio: audio}, nil
	}
	return Selection{}, ErrFormatNotFound
}

func betterVideo(cur, f *Format) *Format {
	if cur == nil {
		return f
	}
	if f.Height != cur.Height {
		if f.Height > cur.Height {
			return f
		}
		return cur
	}
	if f.isMP4() != cur.isMP4() {
		if f.isMP4() {
			return f
		}
		return cur
	}
	if f.Bitrate > cur.Bitrate {
		return f
	}
	return cur
}

func betterAudio(cur, f *Format) *Format {
	if cur == nil {
		return f
	}
	if f.isMP4() != cur.isMP4() {
		if f.isMP4() {
			return f
		}
		return cur
	}
	if f.Bitrate > cur.Bitrate {
		return f
	}
	return cur
}

// ParseQuality turns "720p", "1080p60" or "4k" into a pixel height.
// It returns 0 when no height can be read.
func ParseQuality(q string) int {
	switch strings.ToLower(strings.TrimSpace(q)) {
	case "4k":
		return 2160
	case "8k":
		return 4320
	}
	digits := ""
	for _, c := range q {
		if c >= '0' && c <= '9' {
			digits += string(c)
		} else if digits != "" {
			break
		}
	}
	if digits == "" {
		return 0
	}
	val, _ := strconv.Atoi(digits)
	return val
}

// ListQualities returns the user-facing quality options: one per height of
// at least 360p, highest first, at most four.
func ListQualities(formats []Format) []models.FormatOption {
	type option struct {
		height int
		models.FormatOption
	}

	seen := make(map[int]bool)
	var opts []option
	for _, f := range formats {
		if !f.HasVideo || f.Height < minListedHeight || seen[f.Height] {
			continue
		}
		seen[f.Height] = true

		size := "Unknown"
		if f.ContentLength > 0 {
			size = fmt.Sprintf("%.1f MB", float64(f.ContentLength)/(1024*1024))
		}
		opts = append(opts, option{
			height: f.Height,
			FormatOption: models.FormatOption{
				Quality: fmt.Sprintf("%dp", f.Height),
				Format:  f.Ext(),
				Size:    size,
			},
		})
	}

	sort.SliceStable(opts, func(i, j int) bool { return opts[i].height > opts[j].height })
	if len(opts) > 4 {
		opts = opts[:4]
	}

	out := make([]models.FormatOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.FormatOption)
	}
	return out
}

// SanitizeFilename makes a title safe to use as a download name.
func SanitizeFilename(name string) string {
	safe := strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	return strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`\/:*?"<>|`, r) {
			return -1
		}
		return r
	}, safe)
}
