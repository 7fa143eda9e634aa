package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	errs "github.com/xxxsen/imvec/internal/pkg/errors"
	"github.com/xxxsen/imvec/internal/runtime"
)

// Loader produces a ready model handle. It is invoked at most twice per
// manager lifetime: the first load, and one retry after a cache purge.
type Loader func(ctx context.Context) (runtime.Model, error)

// Purger clears every cache scope that could hold corrupted model artifacts.
type Purger interface {
	PurgeModelCaches(ctx context.Context)
}

const (
	StateUnloaded = "unloaded"
	StateReady    = "ready"
	StateFailed   = "failed"
)

// Manager owns the single in-memory model handle. A load failure whose cause
// is a structured-data parse error is treated as cache corruption and
// recovered once by purging and retrying; any other failure, or a failing
// retry, is memoized and re-surfaced to every later caller. A failure caused
// by the calling context being canceled is never memoized.
//
// The mutex serializes concurrent EnsureModel calls, so callers arriving
// during a load wait for the in-flight attempt instead of starting their own.
type Manager struct {
	load        Loader
	purger      Purger
	settleDelay time.Duration

	mu      sync.Mutex
	handle  runtime.Model
	loadErr error
}

func NewManager(load Loader, purger Purger, settleDelay time.Duration) *Manager {
	return &Manager{
		load:        load,
		purger:      purger,
		settleDelay: settleDelay,
	}
}

// EnsureModel returns the ready model handle, loading it on first use.
func (m *Manager) EnsureModel(ctx context.Context) (runtime.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		return m.handle, nil
	}
	if m.loadErr != nil {
		return nil, m.unavailableLocked()
	}
	logger := logutil.GetLogger(ctx)
	logger.Info("loading model")
	handle, err := m.load(ctx)
	if err == nil {
		m.handle = handle
		logger.Info("model ready", zap.String("model", handle.Name()))
		return handle, nil
	}
	if m.purger == nil || !isCorruptionError(err) {
		logger.Error("model load failed", zap.Error(err))
		return nil, m.failLocked(err)
	}

	// Corrupted cached artifacts: purge every cache scope, give the stores a
	// moment to settle, then retry the load exactly once. The recovery runs on
	// behalf of every future caller, so it is detached from the context of the
	// caller that happened to trigger it.
	logger.Warn("cached model artifacts look corrupted, purging caches", zap.Error(err))
	retryCtx := context.WithoutCancel(ctx)
	m.purger.PurgeModelCaches(retryCtx)
	if m.settleDelay > 0 {
		time.Sleep(m.settleDelay)
	}
	logger.Info("retrying model load after purge")
	handle, err = m.load(retryCtx)
	if err != nil {
		logger.Error("model load failed after purge", zap.Error(err))
		return nil, m.failLocked(err)
	}
	m.handle = handle
	logger.Info("model ready after purge", zap.String("model", handle.Name()))
	return handle, nil
}

// State reports the lifecycle state and, when failed, the memoized error text.
func (m *Manager) State() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.handle != nil:
		return StateReady, ""
	case m.loadErr != nil:
		return StateFailed, m.loadErr.Error()
	default:
		return StateUnloaded, ""
	}
}

// failLocked memoizes a load failure and returns the caller-facing error. A
// caller's own cancellation is not a model failure: it is surfaced without
// being memoized, so the next caller re-attempts the load.
func (m *Manager) failLocked(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errs.ErrModelUnavailable, err)
	}
	m.loadErr = err
	return m.unavailableLocked()
}

func (m *Manager) unavailableLocked() error {
	return fmt.Errorf("%w: check your connection or restart the service: %v", errs.ErrModelUnavailable, m.loadErr)
}

// corruptionSignatures are message fragments of structured-data parse
// failures, the signature of a corrupted cached artifact.
var corruptionSignatures = []string{
	"invalid character",
	"unexpected end of JSON input",
	"cannot unmarshal",
}

func isCorruptionError(err error) bool {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return true
	}
	msg := err.Error()
	for _, sig := range corruptionSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
