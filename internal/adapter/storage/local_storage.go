// Package storage provides ports.Blob implementations: a local filesystem
// backend (primary) and an optional S3/MinIO-compatible mirror.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/ports"
)

// LocalStorage implements ports.Blob over the local filesystem. Keys are
// slash-separated paths relative to basePath (e.g.
// "raw/sha256=<h>/original.txt"); writes are atomic via temp-file+rename so
// a crash mid-write never leaves a partial artifact visible under the real
// key, matching the "atomic rename" invariant in the evidence store design.
type LocalStorage struct {
	basePath string
	logger   ports.Logger
}

func NewLocalStorage(basePath string, logger ports.Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStorage{basePath: basePath, logger: logger}, nil
}

func (s *LocalStorage) path(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// Put writes r to key atomically: write to a sibling temp file, fsync, then
// rename. A failed write never disturbs an existing artifact at key.
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpPath := tmp.Name()
	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("fsync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename into place %s: %w", key, err)
	}
	s.logger.Debug("blob written", "key", key, "bytes", written)
	return written, nil
}

func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("key %s not found: %w", key, err)
		}
		return nil, err
	}
	return f, nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.path(prefix)
	var out []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Strings(out)
	return out, nil
}

// Stats walks the whole tree (used by StorageStats) excluding temp files.
func (s *LocalStorage) Stats(ctx context.Context) (totalBytes, count int64, err error) {
	err = filepath.Walk(s.basePath, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if info.IsDir() || strings.HasPrefix(filepath.Base(p), ".tmp-") {
			return nil
		}
		totalBytes += info.Size()
		count++
		return nil
	})
	return
}
