package downloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func combined(id string, h int, mime string, bitrate int) Format {
	return Format{ID: id, MimeType: mime, Height: h, Bitrate: bitrate, HasVideo: true, HasAudio: true}
}

func videoOnly(id string, h int, mime string) Format {
	return Format{ID: id, MimeType: mime, Height: h, HasVideo: true}
}

func audioOnly(id, mime string, bitrate int) Format {
	return Format{ID: id, MimeType: mime, Bitrate: bitrate, HasAudio: true}
}

func TestSelectFormats(t *testing.T) {
	formats := []Format{
		combined("18", 360, "video/mp4", 500),
		combined("22", 720, "video/mp4", 1500),
		combined("43", 720, "video/webm", 2000),
		videoOnly("137", 1080, "video/mp4"),
		videoOnly("248", 1080, "video/webm"),
		videoOnly("136", 720, "video/mp4"),
		videoOnly("313", 2160, "video/webm"),
		audioOnly("251", "audio/webm", 160000),
		audioOnly("140", "audio/mp4", 128000),
	}

	tests := []struct {
		name         string
		height       int
		wantCombined string
		wantVideo    string
	}{
		{"exact combined prefers mp4", 720, "22", ""},
		{"exact combined at 360", 360, "18", ""},
		{"video below height merged", 1080, "", "137"},
		{"best video under 1440", 1440, "", "137"},
		{"unconstrained picks highest video", 0, "", "313"},
		{"below everything falls back to best combined", 144, "22", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := SelectFormats(formats, tt.height)
			if err != nil {
				t.Fatalf("SelectFormats failed: %v", err)
			}
			if tt.wantCombined != "" {
				if sel.Combined == nil || sel.Combined.ID != tt.wantCombined {
					t.Fatalf("expected combined %s, got %+v", tt.wantCombined, sel)
				}
				if sel.Merged() {
					t.Error("combined selection should not need a merge")
				}
				return
			}
			if sel.Video == nil || sel.Video.ID != tt.wantVideo {
				t.Fatalf("expected video %s, got %+v", tt.wantVideo, sel)
			}
			if sel.Audio == nil || sel.Audio.ID != "140" {
				t.Errorf("expected m4a audio 140, got %+v", sel.Audio)
			}
		})
	}
}

func TestSelectFormats_CombinedUnderHeightWithoutAudio(t *testing.T) {
	formats := []Format{
		combined("18", 360, "video/mp4", 500),
		videoOnly("137", 1080, "video/mp4"),
	}
	sel, err := SelectFormats(formats, 720)
	if err != nil {
		t.Fatalf("SelectFormats failed: %v", err)
	}
	if sel.Combined == nil || sel.Combined.ID != "18" {
		t.Errorf("expected combined 18 when no audio stream exists, got %+v", sel)
	}
}

func TestSelectFormats_NoFormats(t *testing.T) {
	if _, err := SelectFormats(nil, 720); !errors.Is(err, ErrFormatNotFound) {
		t.Errorf("expected ErrFormatNotFound, got %v", err)
	}
	if _, err := SelectFormats([]Format{videoOnly("137", 1080, "video/mp4")}, 720); !errors.Is(err, ErrFormatNotFound) {
		t.Errorf("expected ErrFormatNotFound for video without audio, got %v", err)
	}
}

func TestSelection_Ext(t *testing.T) {
	v := videoOnly("137", 1080, "video/mp4")
	a := audioOnly("140", "audio/mp4", 1)
	vw := videoOnly("248", 1080, "video/webm")
	aw := audioOnly("251", "audio/webm", 1)

	tests := []struct {
		sel  Selection
		want string
	}{
		{Selection{Video: &v, Audio: &a}, "mp4"},
		{Selection{Video: &vw, Audio: &aw}, "webm"},
		{Selection{Video: &vw, Audio: &a}, "mkv"},
		{Selection{Combined: &Format{MimeType: "video/3gpp"}}, "3gp"},
	}
	for _, tt := range tests {
		if got := tt.sel.Ext(); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}

func TestParseQuality(t *testing.T) {
	tests := map[string]int{
		"720p":    720,
		"1080p60": 1080,
		"4k":      2160,
		"4K":      2160,
		"360":     360,
		"":        0,
		"best":    0,
	}
	for in, want := range tests {
		if got := ParseQuality(in); got != want {
			t.Errorf("ParseQuality(%q): expected %d, got %d", in, want, got)
		}
	}
}

func TestListQualities(t *testing.T) {
	formats := []Format{
		{ID: "1", MimeType: "video/mp4", Height: 240, HasVideo: true},
		{ID: "2", MimeType: "video/mp4", Height: 360, HasVideo: true, HasAudio: true, ContentLength: 5 * 1024 * 1024},
		{ID: "3", MimeType: "video/webm", Height: 720, HasVideo: true},
		{ID: "4", MimeType: "video/mp4", Height: 720, HasVideo: true, ContentLength: 1},
		{ID: "5", MimeType: "video/mp4", Height: 1080, HasVideo: true},
		{ID: "6", MimeType: "video/mp4", Height: 1440, HasVideo: true},
		{ID: "7", MimeType: "video/webm", Height: 2160, HasVideo: true},
		{ID: "8", MimeType: "audio/mp4", HasAudio: true},
	}

	opts := ListQualities(formats)
	if len(opts) != 4 {
		t.Fatalf("expected 4 options, got %d: %+v", len(opts), opts)
	}
	want := []string{"2160p", "1440p", "1080p", "720p"}
	for i, q := range want {
		if opts[i].Quality != q {
			t.Errorf("option %d: expected %s, got %s", i, q, opts[i].Quality)
		}
	}
	if opts[3].Format != "webm" || opts[3].Size != "Unknown" {
		t.Errorf("expected first-seen 720p webm with unknown size, got %+v", opts[3])
	}

	small := ListQualities(formats[:2])
	if len(small) != 1 || small[0].Size != "5.0 MB" || small[0].Format != "mp4" {
		t.Errorf("unexpected options: %+v", small)
	}
}

func TestSanitizeFilename(t *testing.T) {
	got := SanitizeFilename(` My "Video": part 1/2 `)
	if got != "My_Video_part_12" {
		t.Errorf("unexpected sanitized name: %q", got)
	}
}

func TestDescribe(t *testing.T) {
	pathErr := &fs.PathError{Op: "open", Path: "/secret/dir/file", Err: fs.ErrExist}

	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "Download timed out. Please try again."},
		{fmt.Errorf("wrap: %w", ErrFormatNotFound), "No downloadable format is available for this video."},
		{errors.New("unexpected status code: 403"), "Access forbidden. YouTube might be throttling the server IP."},
		{errors.New("ffmpeg: exit status 1: broken"), "Media processing error (FFmpeg failed). Please try again."},
		{fmt.Errorf("write: %w", pathErr), "open: file already exists"},
		{errors.New("video is private"), "video is private"},
	}
	for _, tt := range tests {
		got := Describe(tt.err)
		if got != tt.want {
			t.Errorf("Describe(%v): expected %q, got %q", tt.err, tt.want, got)
		}
		if strings.Contains(got, "/secret") {
			t.Errorf("message leaks a path: %q", got)
		}
	}
}

func TestLoadCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	content := strings.Join([]string{
		"# Netscape HTTP Cookie File",
		"",
		".youtube.com\tTRUE\t/\tTRUE\t0\tSID\tabc",
		"#HttpOnly_.youtube.com\tTRUE\t/\tTRUE\t4102444800\tHSID\tdef",
		".youtube.com\tTRUE\t/\tTRUE\t1\tOLD\texpired",
		".youtube.com\tTRUE\t/\tTRUE\t0\tCONSENT\t",
		"malformed line",
	}, "\r\n")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	jar, n, err := LoadCookies(path)
	if err != nil {
		t.Fatalf("LoadCookies failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 cookies, got %d", n)
	}

	u, _ := url.Parse("https://www.youtube.com/watch?v=AAAAAAAAAAA")
	got := map[string]string{}
	for _, c := range jar.Cookies(u) {
		got[c.Name] = c.Value
	}
	if got["SID"] != "abc" || got["HSID"] != "def" {
		t.Errorf("unexpected cookies for %s: %v", u, got)
	}
	if v, ok := got["CONSENT"]; !ok || v != "" {
		t.Errorf("expected empty-valued CONSENT cookie, got %v", got)
	}
	if _, ok := got["OLD"]; ok {
		t.Error("expired cookie should be skipped")
	}
}

func TestLoadCookies_MissingFile(t *testing.T) {
	jar, n, err := LoadCookies(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil || n != 0 || jar != nil {
		t.Fatalf("expected nil jar without error, got %v, %d, %v", jar, n, err)
	}
}
