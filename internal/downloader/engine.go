package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize = 8 * 1024
	partSuffix       = ".part"
)

// Reporter receives progress of a running download.
type Reporter interface {
	// Progress is called after every chunk when the total size is known,
	// with a percentage that never exceeds 99.
	Progress(pct float64)
	// Converting is called once before a mux step starts.
	Converting()
}

// Engine fetches resolved media to local files.
type Engine struct {
	resolver  Resolver
	muxer     Muxer
	tempDir   string
	chunkSize int
	logger    *zap.Logger
}

func NewEngine(resolver Resolver, muxer Muxer, tempDir string, logger *zap.Logger) *Engine {
	return &Engine{
		resolver:  resolver,
		muxer:     muxer,
		tempDir:   tempDir,
		chunkSize: DefaultChunkSize,
		logger:    logger,
	}
}

// Resolve looks up the media behind url.
func (e *Engine) Resolve(ctx context.Context, url string) (*Media, error) {
	media, err := e.resolver.Resolve(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("video info error: %w", err)
	}
	return media, nil
}

type part struct {
	format Format
	stream io.ReadCloser
	size   int64
	path   string
}

// Download fetches the best formats of media for height and writes the
// result to destBase plus the container extension, returning that path.
// On failure no partial file is left behind.
func (e *Engine) Download(ctx context.Context, media *Media, height int, destBase string, r Reporter) (string, error) {
	sel, err := SelectFormats(media.Formats, height)
	if err != nil {
		return "", err
	}

	id := filepath.Base(destBase)
	ext := sel.Ext()
	dest := destBase + "." + ext

	// FILE PATHS
	var parts []*part
	var leftovers []string
	defer func() {
		for _, p := range parts {
			p.stream.Close()
		}
		for _, path := range leftovers {
			os.Remove(path)
		}
	}()

	for _, f := range sel.Parts() {
		stream, size, err := e.resolver.Stream(ctx, media, f)
		if err != nil {
			return "", fmt.Errorf("open stream %s: %w", f.ID, err)
		}
		if size <= 0 {
			size = f.ContentLength
		}
		p := &part{format: f, stream: stream, size: size}
		if sel.Merged() {
			p.path = filepath.Join(e.tempDir, fmt.Sprintf("%s.f%s%s", id, f.ID, partSuffix))
		} else {
			p.path = destBase + partSuffix
		}
		parts = append(parts, p)
		leftovers = append(leftovers, p.path)
	}

	var totalSize int64
	for _, p := range parts {
		if p.size <= 0 {
			totalSize = 0
			break
		}
		totalSize += p.size
	}
	track := newTracker(totalSize, r)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range parts {
		g.Go(func() error {
			return e.fetch(gctx, p, track)
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	out := parts[0].path
	if sel.Merged() {
		// Muxing
		r.Converting()
		out = destBase + ".mux" + partSuffix
		leftovers = append(leftovers, out)
		if err := e.muxer.Mux(ctx, parts[0].path, parts[1].path, out, ext); err != nil {
			return "", err
		}
	}

	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return "", ErrEmptyOutput
	}
	if err := os.Rename(out, dest); err != nil {
		return "", fmt.Errorf("finalize: %w", err)
	}

	e.logger.Debug("Download written",
		zap.String("media_id", media.ID),
		zap.String("path", dest),
		zap.Bool("merged", sel.Merged()),
	)
	return dest, nil
}

// fetch copies one stream to its part file in fixed-size chunks.
func (e *Engine) fetch(ctx context.Context, p *part, track *tracker) error {
	file, err := os.Create(p.path)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, e.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := p.stream.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return err
			}
			track.add(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return fmt.Errorf("read stream %s: %w", p.format.ID, rerr)
		}
	}
	return file.Close()
}

// tracker sums bytes over all parts of a download.
type tracker struct {
	mu      sync.Mutex
	total   int64
	current int64
	r       Reporter
}

func newTracker(total int64, r Reporter) *tracker {
	return &tracker{total: total, r: r}
}

func (t *tracker) add(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current += int64(n)
	if t.total <= 0 {
		return
	}
	pct := float64(t.current) / float64(t.total) * 100
	if pct > 99 {
		pct = 99
	}
	t.r.Progress(pct)
}
