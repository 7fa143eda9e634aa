package veccache

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/imvec/internal/extractor"
	"github.com/xxxsen/imvec/internal/model"
	"github.com/xxxsen/imvec/internal/repo"
)

// WrapDBCache persists extraction results in the vector_cache table so they
// survive restarts. Cache write failures are logged, never surfaced.
func WrapDBCache(next extractor.Extractor, cacheRepo *repo.VectorCacheRepo) extractor.Extractor {
	if next == nil || cacheRepo == nil {
		return next
	}
	return &dbExtractor{next: next, repo: cacheRepo}
}

type dbExtractor struct {
	next extractor.Extractor
	repo *repo.VectorCacheRepo
}

func (d *dbExtractor) ExtractFeatures(ctx context.Context, r io.Reader) ([]float32, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	contentHash := hashBytes(data)
	if values, ok, err := d.repo.Get(ctx, d.next.ModelName(), contentHash); err != nil {
		return nil, err
	} else if ok {
		logutil.GetLogger(ctx).Debug("vector cache hit (db)", zap.String("kind", "blob"))
		return values, nil
	}
	res, err := d.next.ExtractFeatures(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	d.save(ctx, contentHash, res)
	return res, nil
}

func (d *dbExtractor) ExtractFeaturesFromURL(ctx context.Context, url string) ([]float32, error) {
	contentHash := hashBytes([]byte(url))
	if values, ok, err := d.repo.Get(ctx, d.next.ModelName(), contentHash); err != nil {
		return nil, err
	} else if ok {
		logutil.GetLogger(ctx).Debug("vector cache hit (db)", zap.String("kind", "url"))
		return values, nil
	}
	res, err := d.next.ExtractFeaturesFromURL(ctx, url)
	if err != nil {
		return nil, err
	}
	d.save(ctx, contentHash, res)
	return res, nil
}

func (d *dbExtractor) save(ctx context.Context, contentHash string, values []float32) {
	err := d.repo.Save(ctx, &model.VectorCache{
		ModelName:   d.next.ModelName(),
		ContentHash: contentHash,
		Vector:      values,
		Ctime:       time.Now().Unix(),
	})
	if err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache vector", zap.Error(err))
	}
}

func (d *dbExtractor) ModelName() string {
	return d.next.ModelName()
}
