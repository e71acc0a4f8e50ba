package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ytdl-relay/internal/config"
)

var (
	ErrNotFound    = errors.New("artifact not found")
	ErrInvalidName = errors.New("invalid artifact name")
)

const (
	claimSuffix = ".sending"
	partSuffix  = ".part"
)

// PrepareFilesystem creates necessary data and temp directories
func PrepareFilesystem(cfg *config.Config) error {
	dirs := []string{cfg.DownloadDir, cfg.TempDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// Artifacts manages finished downloads on local disk.
type Artifacts struct {
	dir     string
	tempDir string
}

func NewArtifacts(dir, tempDir string) *Artifacts {
	return &Artifacts{dir: dir, tempDir: tempDir}
}

func (a *Artifacts) Dir() string     { return a.dir }
func (a *Artifacts) TempDir() string { return a.tempDir }

// Base returns the path prefix (without extension) for a job's artifact.
func (a *Artifacts) Base(jobID string) string {
	return filepath.Join(a.dir, jobID)
}

// Path resolves a plain artifact name to its location.
func (a *Artifacts) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name ||
		strings.HasSuffix(name, claimSuffix) || strings.HasSuffix(name, partSuffix) {
		return "", ErrInvalidName
	}
	return filepath.Join(a.dir, name), nil
}

// Remove deletes an artifact. A missing file is not an error.
func (a *Artifacts) Remove(name string) error {
	path, err := a.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Claim takes exclusive ownership of an artifact for delivery. The file is
// moved aside so that a second claim for the same name fails with ErrNotFound.
func (a *Artifacts) Claim(name string) (*Claim, error) {
	path, err := a.Path(name)
	if err != nil {
		return nil, err
	}
	claimed := path + claimSuffix
	if err := os.Rename(path, claimed); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("claim %s: %w", name, err)
	}

	f, err := os.Open(claimed)
	if err != nil {
		_ = os.Rename(claimed, path)
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		_ = os.Rename(claimed, path)
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}

	return &Claim{Name: name, Size: info.Size(), file: f, path: path, claimed: claimed}, nil
}

// PurgeOlderThan removes files in the download and temp directories last
// modified before cutoff. It returns how many files were removed and the
// first error met.
func (a *Artifacts) PurgeOlderThan(cutoff time.Time) (int, error) {
	removed := 0
	var firstErr error
	for _, dir := range []string{a.dir, a.tempDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) && firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				if !errors.Is(err, os.ErrNotExist) && firstErr == nil {
					firstErr = err
				}
				continue
			}
			removed++
		}
	}
	return removed, firstErr
}

// Claim is an artifact held for a single delivery.
type Claim struct {
	Name string
	Size int64

	file    *os.File
	path    string
	claimed string
}

func (c *Claim) Read(p []byte) (int, error) { return c.file.Read(p) }

var _ io.Reader = (*Claim)(nil)

// Finish deletes the delivered artifact.
func (c *Claim) Finish() error {
	c.file.Close()
	if err := os.Remove(c.claimed); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Release puts the artifact back after a failed delivery.
func (c *Claim) Release() error {
	c.file.Close()
	return os.Rename(c.claimed, c.path)
}
