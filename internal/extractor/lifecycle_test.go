package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	errs "github.com/xxxsen/imvec/internal/pkg/errors"
	"github.com/xxxsen/imvec/internal/runtime"
)

type fakeModel struct {
	name  string
	infer func(ctx context.Context, source string) (runtime.Output, error)
}

func (m *fakeModel) Name() string {
	return m.name
}

func (m *fakeModel) Infer(ctx context.Context, source string) (runtime.Output, error) {
	if m.infer == nil {
		return []float32{1, 2, 3}, nil
	}
	return m.infer(ctx, source)
}

type fakePurger struct {
	calls atomic.Int32
}

func (p *fakePurger) PurgeModelCaches(ctx context.Context) {
	p.calls.Add(1)
}

func corruptionErr() error {
	var dst map[string]interface{}
	err := json.Unmarshal([]byte("{broken"), &dst)
	return fmt.Errorf("parse cached model manifest: %w", err)
}

func TestEnsureModelLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	manager := NewManager(func(ctx context.Context) (runtime.Model, error) {
		loads.Add(1)
		return &fakeModel{name: "m"}, nil
	}, &fakePurger{}, 0)

	first, err := manager.EnsureModel(context.Background())
	require.NoError(t, err)
	second, err := manager.EnsureModel(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, int32(1), loads.Load())
}

func TestEnsureModelSerializesConcurrentLoads(t *testing.T) {
	var loads atomic.Int32
	manager := NewManager(func(ctx context.Context) (runtime.Model, error) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &fakeModel{name: "m"}, nil
	}, &fakePurger{}, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.EnsureModel(context.Background())
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), loads.Load())
}

func TestEnsureModelPurgesAndRetriesOnCorruption(t *testing.T) {
	var loads atomic.Int32
	purger := &fakePurger{}
	manager := NewManager(func(ctx context.Context) (runtime.Model, error) {
		if loads.Add(1) == 1 {
			return nil, corruptionErr()
		}
		return &fakeModel{name: "m"}, nil
	}, purger, time.Millisecond)

	handle, err := manager.EnsureModel(context.Background())
	require.NoError(t, err)
	require.NotNil(t, handle)
	require.Equal(t, int32(2), loads.Load())
	require.Equal(t, int32(1), purger.calls.Load())

	state, _ := manager.State()
	require.Equal(t, StateReady, state)
}

func TestEnsureModelFailsTerminallyAfterSecondCorruption(t *testing.T) {
	var loads atomic.Int32
	purger := &fakePurger{}
	manager := NewManager(func(ctx context.Context) (runtime.Model, error) {
		loads.Add(1)
		return nil, corruptionErr()
	}, purger, time.Millisecond)

	_, err := manager.EnsureModel(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrModelUnavailable)
	require.Equal(t, int32(2), loads.Load())
	require.Equal(t, int32(1), purger.calls.Load())

	// Later callers re-fail from the memo without another load or purge.
	_, err = manager.EnsureModel(context.Background())
	require.ErrorIs(t, err, errs.ErrModelUnavailable)
	require.Equal(t, int32(2), loads.Load())
	require.Equal(t, int32(1), purger.calls.Load())

	state, msg := manager.State()
	require.Equal(t, StateFailed, state)
	require.NotEmpty(t, msg)
}

func TestEnsureModelMemoizesNonCorruptionFailures(t *testing.T) {
	var loads atomic.Int32
	purger := &fakePurger{}
	loadErr := errors.New("dial tcp: connection refused")
	manager := NewManager(func(ctx context.Context) (runtime.Model, error) {
		loads.Add(1)
		return nil, loadErr
	}, purger, time.Millisecond)

	_, err := manager.EnsureModel(context.Background())
	require.ErrorIs(t, err, errs.ErrModelUnavailable)
	require.Contains(t, err.Error(), "connection refused")

	_, err = manager.EnsureModel(context.Background())
	require.ErrorIs(t, err, errs.ErrModelUnavailable)
	require.Equal(t, int32(1), loads.Load())
	require.Equal(t, int32(0), purger.calls.Load())
}

func TestEnsureModelRecoveryOutlivesCallerContext(t *testing.T) {
	var loads atomic.Int32
	purger := &fakePurger{}
	manager := NewManager(func(ctx context.Context) (runtime.Model, error) {
		if loads.Add(1) == 1 {
			return nil, corruptionErr()
		}
		require.NoError(t, ctx.Err(), "retry load must not run on the expired caller context")
		return &fakeModel{name: "m"}, nil
	}, purger, 200*time.Millisecond)

	// The caller's deadline expires inside the settle window; the recovery
	// still completes on its behalf.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	handle, err := manager.EnsureModel(ctx)
	require.NoError(t, err)
	require.NotNil(t, handle)
	require.Equal(t, int32(2), loads.Load())
	require.Equal(t, int32(1), purger.calls.Load())

	again, err := manager.EnsureModel(context.Background())
	require.NoError(t, err)
	require.Same(t, handle, again)

	state, _ := manager.State()
	require.Equal(t, StateReady, state)
}

func TestEnsureModelDoesNotMemoizeCallerCancellation(t *testing.T) {
	var loads atomic.Int32
	manager := NewManager(func(ctx context.Context) (runtime.Model, error) {
		if loads.Add(1) == 1 {
			return nil, fmt.Errorf("fetch model artifacts: %w", context.Canceled)
		}
		return &fakeModel{name: "m"}, nil
	}, &fakePurger{}, 0)

	_, err := manager.EnsureModel(context.Background())
	require.ErrorIs(t, err, errs.ErrModelUnavailable)

	// The cancellation was not recorded as a terminal failure.
	state, msg := manager.State()
	require.Equal(t, StateUnloaded, state)
	require.Empty(t, msg)

	handle, err := manager.EnsureModel(context.Background())
	require.NoError(t, err)
	require.NotNil(t, handle)
	require.Equal(t, int32(2), loads.Load())
}

func TestIsCorruptionError(t *testing.T) {
	require.True(t, isCorruptionError(corruptionErr()))

	var dst struct {
		Dim int `json:"dim"`
	}
	typeErr := json.Unmarshal([]byte(`{"dim":"x"}`), &dst)
	require.True(t, isCorruptionError(fmt.Errorf("parse model manifest: %w", typeErr)))

	require.True(t, isCorruptionError(errors.New("unexpected end of JSON input")))
	require.False(t, isCorruptionError(errors.New("dial tcp: connection refused")))
	require.False(t, isCorruptionError(errors.New("weight matrix size mismatch")))
}

func TestStateUnloadedBeforeFirstCall(t *testing.T) {
	manager := NewManager(func(ctx context.Context) (runtime.Model, error) {
		return &fakeModel{name: "m"}, nil
	}, nil, 0)
	state, msg := manager.State()
	require.Equal(t, StateUnloaded, state)
	require.Empty(t, msg)
}
