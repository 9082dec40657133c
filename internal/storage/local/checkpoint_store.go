// Package local implements the checkpoint store on the local filesystem: one
// results_<unit>.json file per completed unit.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

// Config captures the parameters for the local checkpoint store.
type Config struct {
	// BaseDir is the directory holding the checkpoint files.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// CheckpointStore reads and writes checkpoint files under one directory.
type CheckpointStore struct {
	baseDir string
}

// New creates the directory if needed and verifies it is writable.
func New(cfg Config) (*CheckpointStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe, err := os.CreateTemp(cfg.BaseDir, ".writable_test-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &CheckpointStore{baseDir: cfg.BaseDir}, nil
}

// Dir returns the checkpoint directory.
func (s *CheckpointStore) Dir() string {
	return s.baseDir
}

func (s *CheckpointStore) path(unit crawler.SearchUnit) (string, error) {
	if err := crawler.ValidateUnit(unit); err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.baseDir, crawler.CheckpointName(unit))
	cleanBaseDir := filepath.Clean(s.baseDir)
	if filepath.Dir(filepath.Clean(fullPath)) != cleanBaseDir {
		return "", fmt.Errorf("%w: path traversal detected", crawler.ErrInvalidUnit)
	}
	return fullPath, nil
}

func (s *CheckpointStore) read(ctx context.Context, unit crawler.SearchUnit) ([]crawler.OfficerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(unit)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", crawler.ErrCheckpointNotFound, unit)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return crawler.DecodeCheckpoint(unit, data)
}

// Exists reports whether a well-formed checkpoint is present. A file that does
// not parse yields a *crawler.CorruptCheckpointError.
func (s *CheckpointStore) Exists(ctx context.Context, unit crawler.SearchUnit) (bool, error) {
	_, err := s.read(ctx, unit)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, crawler.ErrCheckpointNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Load returns the unit's records, or ErrCheckpointNotFound.
func (s *CheckpointStore) Load(ctx context.Context, unit crawler.SearchUnit) ([]crawler.OfficerRecord, error) {
	return s.read(ctx, unit)
}

// Save publishes the checkpoint with a hard link from a synced temp file, so the
// final name either does not exist or holds the complete payload. An existing
// checkpoint is never replaced.
func (s *CheckpointStore) Save(ctx context.Context, unit crawler.SearchUnit, records []crawler.OfficerRecord) error {
	final, tmp, err := s.stage(ctx, unit, records)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp) }()

	linkErr := os.Link(tmp, final)
	switch {
	case linkErr == nil:
	case errors.Is(linkErr, fs.ErrExist):
		return fmt.Errorf("%w: %s", crawler.ErrCheckpointExists, unit)
	default:
		// Filesystems without hard links fall back to check-then-rename.
		if _, statErr := os.Stat(final); statErr == nil {
			return fmt.Errorf("%w: %s", crawler.ErrCheckpointExists, unit)
		}
		if err := os.Rename(tmp, final); err != nil {
			return fmt.Errorf("publish checkpoint: %w", err)
		}
	}
	return syncDir(s.baseDir)
}

// Replace atomically overwrites the unit's checkpoint.
func (s *CheckpointStore) Replace(ctx context.Context, unit crawler.SearchUnit, records []crawler.OfficerRecord) error {
	final, tmp, err := s.stage(ctx, unit, records)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return syncDir(s.baseDir)
}

// List returns every unit with a checkpoint file, in file name order.
func (s *CheckpointStore) List(ctx context.Context) ([]crawler.SearchUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	units := make([]crawler.SearchUnit, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if unit, ok := crawler.UnitFromCheckpointName(entry.Name()); ok {
			units = append(units, unit)
		}
	}
	return units, nil
}

// stage writes the encoded checkpoint to a synced temp file next to its final
// path. Temp names never match the checkpoint pattern.
func (s *CheckpointStore) stage(ctx context.Context, unit crawler.SearchUnit, records []crawler.OfficerRecord) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	final, err := s.path(unit)
	if err != nil {
		return "", "", err
	}
	data, err := crawler.EncodeCheckpoint(records)
	if err != nil {
		return "", "", err
	}
	f, err := os.CreateTemp(s.baseDir, ".checkpoint-*.tmp")
	if err != nil {
		return "", "", fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", "", fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", "", fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", "", fmt.Errorf("close temp checkpoint: %w", err)
	}
	return final, tmp, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir) // #nosec G304 -- configured checkpoint directory.
	if err != nil {
		return fmt.Errorf("open checkpoint dir: %w", err)
	}
	defer func() { _ = d.Close() }()
	// Some platforms refuse to fsync directories; the rename is already visible.
	_ = d.Sync()
	return nil
}
