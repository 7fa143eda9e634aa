package weightstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type httpConfig struct {
	BaseURL    string `json:"base_url"`
	TimeoutSec int    `json:"timeout_sec"`
}

type httpStore struct {
	baseURL string
	client  *http.Client
}

func init() {
	Register("http", createHTTPStore)
}

func createHTTPStore(args interface{}) (Store, error) {
	config := &httpConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("http weight store base_url is required")
	}
	timeout := time.Duration(config.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpStore{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (s *httpStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	url := s.baseURL + "/" + strings.TrimPrefix(key, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch weight artifact %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch weight artifact %s: %s: %s", key, resp.Status, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(resp.Body)
}
