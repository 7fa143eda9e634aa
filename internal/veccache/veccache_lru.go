package veccache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/imvec/internal/extractor"
)

// WrapLRUCache memoizes extraction results in memory, keyed by the sha256 of
// the image content (or URL) and the model name. The core extractor stays
// cache-free; this is an opt-in wiring decision.
func WrapLRUCache(next extractor.Extractor, size int, ttl time.Duration) extractor.Extractor {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &lruExtractor{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruExtractor struct {
	next  extractor.Extractor
	cache *expirable.LRU[string, []float32]
}

func (l *lruExtractor) ExtractFeatures(ctx context.Context, r io.Reader) ([]float32, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	key := buildCacheKey(l.next.ModelName(), "blob", hashBytes(data))
	if cached, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("vector cache hit (lru)", zap.String("kind", "blob"))
		return cloneVector(cached), nil
	}
	res, err := l.next.ExtractFeatures(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneVector(res))
	return res, nil
}

func (l *lruExtractor) ExtractFeaturesFromURL(ctx context.Context, url string) ([]float32, error) {
	key := buildCacheKey(l.next.ModelName(), "url", hashBytes([]byte(url)))
	if cached, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("vector cache hit (lru)", zap.String("kind", "url"))
		return cloneVector(cached), nil
	}
	res, err := l.next.ExtractFeaturesFromURL(ctx, url)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneVector(res))
	return res, nil
}

func (l *lruExtractor) ModelName() string {
	return l.next.ModelName()
}

func buildCacheKey(modelName, kind, contentHash string) string {
	if modelName == "" {
		modelName = "unknown"
	}
	return "vec:" + modelName + ":" + kind + ":" + contentHash
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
