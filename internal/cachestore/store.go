package cachestore

import "context"

// CandidateStore is one persistent scope that can hold model artifacts staged
// by a prior load. Stores are written while staging and enumerated/deleted
// during a purge.
type CandidateStore interface {
	Name() string
	Keys(ctx context.Context) ([]string, error)
	DeleteKey(ctx context.Context, key string) error
}

// EntryDrainer is implemented by stores whose keyed objects hold inner entries
// that must be removed before the object itself, otherwise the space may not
// actually be reclaimed.
type EntryDrainer interface {
	DrainEntries(ctx context.Context, key string) (int, error)
}
