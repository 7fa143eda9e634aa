package job

import (
	"context"
	"time"

	"github.com/xxxsen/imvec/internal/repo"
)

type VectorCacheCleanupJob struct {
	repo       *repo.VectorCacheRepo
	maxAgeDays int
}

func NewVectorCacheCleanupJob(repo *repo.VectorCacheRepo, maxAgeDays int) *VectorCacheCleanupJob {
	return &VectorCacheCleanupJob{repo: repo, maxAgeDays: maxAgeDays}
}

func (j *VectorCacheCleanupJob) Name() string {
	return "vector_cache_cleanup"
}

func (j *VectorCacheCleanupJob) Run(ctx context.Context) error {
	if j.repo == nil {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	_, err := j.repo.DeleteBefore(ctx, cutoff)
	return err
}
