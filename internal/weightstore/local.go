package weightstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type localConfig struct {
	Dir string `json:"dir"`
}

type localStore struct {
	dir string
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	config := &localConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("local weight store dir is required")
	}
	return &localStore{dir: config.Dir}, nil
}

func (s *localStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	if strings.Contains(key, "..") {
		return nil, fmt.Errorf("invalid weight key")
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("fetch weight artifact %s: %w", key, err)
	}
	return data, nil
}
