package cachestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// ResponseCache keeps named caches of fetched weight responses, one directory
// per cache with one file per entry. Entries must be drained before the cache
// itself is deleted.
type ResponseCache struct {
	dir string
}

func NewResponseCache(dir string) *ResponseCache {
	return &ResponseCache{dir: dir}
}

func (s *ResponseCache) Name() string {
	return "response_cache"
}

func (s *ResponseCache) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list response caches: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// DrainEntries removes every entry inside the named cache and reports how many
// were removed. The cache directory itself stays behind for DeleteKey.
func (s *ResponseCache) DrainEntries(ctx context.Context, cacheName string) (int, error) {
	cacheDir := filepath.Join(s.dir, cacheName)
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list entries of cache %s: %w", cacheName, err)
	}
	removed := 0
	for _, entry := range entries {
		if err := os.Remove(filepath.Join(cacheDir, entry.Name())); err != nil {
			return removed, fmt.Errorf("delete entry %s of cache %s: %w", entry.Name(), cacheName, err)
		}
		removed++
	}
	return removed, nil
}

func (s *ResponseCache) DeleteKey(ctx context.Context, cacheName string) error {
	if err := os.Remove(filepath.Join(s.dir, cacheName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete cache %s: %w", cacheName, err)
	}
	return nil
}

func (s *ResponseCache) Put(ctx context.Context, cacheName, entryKey string, data []byte) error {
	cacheDir := filepath.Join(s.dir, cacheName)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache %s: %w", cacheName, err)
	}
	if err := os.WriteFile(filepath.Join(cacheDir, entryFileName(entryKey)), data, 0o644); err != nil {
		return fmt.Errorf("put entry into cache %s: %w", cacheName, err)
	}
	return nil
}

func (s *ResponseCache) Get(ctx context.Context, cacheName, entryKey string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, cacheName, entryFileName(entryKey)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get entry from cache %s: %w", cacheName, err)
	}
	return data, true, nil
}

func entryFileName(entryKey string) string {
	sum := sha256.Sum256([]byte(entryKey))
	return hex.EncodeToString(sum[:])
}
