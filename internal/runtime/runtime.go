package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xxxsen/imvec/internal/cachestore"
	"github.com/xxxsen/imvec/internal/weightstore"
)

// Output is the model's native output container: a flat numeric slice, or any
// nesting of slices of numeric values. Callers normalize it with Flatten.
type Output interface{}

// Model is a loaded, ready-to-invoke embedding model. The source passed to
// Infer is either a local file path or a http(s) URL of the image.
type Model interface {
	Name() string
	Infer(ctx context.Context, source string) (Output, error)
}

// Env carries the shared plumbing a runtime may need while loading: the model
// identity, the precision flag, the staged-artifact cache scopes and the
// weight origin. Remote runtimes ignore most of it.
type Env struct {
	ModelName  string
	Quantized  bool
	ArtifactDB *cachestore.DBStore
	RespCache  *cachestore.ResponseCache
	LocalKV    *cachestore.LocalKV
	SessionKV  *cachestore.SessionKV
	Weights    weightstore.Store
}

type Factory func(env Env, args interface{}) (Model, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

// New constructs and loads the named runtime. A returned error means the model
// could not reach a usable state.
func New(name string, env Env, args interface{}) (Model, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("model.runtime is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported model runtime: %s", name)
	}
	return factory(env, args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode runtime config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode runtime config: %w", err)
	}
	return nil
}

func isRemoteSource(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
