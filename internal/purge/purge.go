package purge

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/imvec/internal/cachestore"
)

// modelNamespaces are the substrings that identify keys written by the model
// provider. Any key containing one of them (case-insensitive) is treated as a
// model artifact during a purge.
var modelNamespaces = []string{"imvec", "mobilenet", "tfhub"}

func MatchesModelNamespace(name string) bool {
	lower := strings.ToLower(name)
	for _, ns := range modelNamespaces {
		if strings.Contains(lower, ns) {
			return true
		}
	}
	return false
}

type target struct {
	store    cachestore.CandidateStore
	matchAll bool
}

// Coordinator clears every registered cache store of model artifacts. Each
// deletion step is independently guarded: a failing store or key is logged and
// skipped, never surfaced to the caller.
type Coordinator struct {
	targets []target
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// AddStore registers a store whose keys are purged only when they match the
// model namespace.
func (c *Coordinator) AddStore(s cachestore.CandidateStore) {
	c.targets = append(c.targets, target{store: s})
}

// AddStoreMatchAll registers a store whose keys are all purge candidates
// regardless of name.
func (c *Coordinator) AddStoreMatchAll(s cachestore.CandidateStore) {
	c.targets = append(c.targets, target{store: s, matchAll: true})
}

// PurgeModelCaches runs the purge across every registered store. It never
// fails; best effort is the contract.
func (c *Coordinator) PurgeModelCaches(ctx context.Context) {
	logger := logutil.GetLogger(ctx)
	for _, tgt := range c.targets {
		c.purgeStore(ctx, tgt)
	}
	logger.Info("model cache purge finished", zap.Int("stores", len(c.targets)))
}

func (c *Coordinator) purgeStore(ctx context.Context, tgt target) {
	logger := logutil.GetLogger(ctx).With(zap.String("store", tgt.store.Name()))
	keys, err := tgt.store.Keys(ctx)
	if err != nil {
		logger.Warn("enumerate cache store failed", zap.Error(err))
		return
	}
	removed := 0
	for _, key := range keys {
		if !tgt.matchAll && !MatchesModelNamespace(key) {
			continue
		}
		if drainer, ok := tgt.store.(cachestore.EntryDrainer); ok {
			drained, err := drainer.DrainEntries(ctx, key)
			if err != nil {
				logger.Warn("drain cache entries failed",
					zap.String("key", key),
					zap.Int("drained", drained),
					zap.Error(err))
			} else if drained > 0 {
				logger.Info("cache entries drained",
					zap.String("key", key),
					zap.Int("drained", drained))
			}
		}
		if err := tgt.store.DeleteKey(ctx, key); err != nil {
			logger.Warn("delete cache key failed", zap.String("key", key), zap.Error(err))
			continue
		}
		removed++
	}
	logger.Info("cache store purged", zap.Int("found", len(keys)), zap.Int("removed", removed))
}
