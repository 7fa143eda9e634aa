package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	errs "github.com/xxxsen/imvec/internal/pkg/errors"
	"github.com/xxxsen/imvec/internal/runtime"
)

// Extractor turns images into feature vectors. Implemented by Service and by
// the veccache decorators.
type Extractor interface {
	ExtractFeatures(ctx context.Context, r io.Reader) ([]float32, error)
	ExtractFeaturesFromURL(ctx context.Context, url string) ([]float32, error)
	ModelName() string
}

// Service drives the lifecycle manager and the model to produce vectors. It
// never caches results; every call runs inference.
type Service struct {
	manager *Manager
	name    string
}

func NewService(manager *Manager, modelName string) *Service {
	return &Service{manager: manager, name: modelName}
}

func (s *Service) ModelName() string {
	return s.name
}

// ExtractFeatures stages the blob to a temporary file and runs inference on
// it. The temporary file is released on every exit path.
func (s *Service) ExtractFeatures(ctx context.Context, r io.Reader) ([]float32, error) {
	model, err := s.manager.EnsureModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	tmp, err := os.CreateTemp("", "imvec-blob-*")
	if err != nil {
		return nil, fmt.Errorf("extract features: stage blob: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)
	_, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("extract features: stage blob: %w", copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("extract features: stage blob: %w", closeErr)
	}
	return s.invoke(ctx, model, path)
}

func (s *Service) ExtractFeaturesFromURL(ctx context.Context, url string) ([]float32, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: image url must be http or https", errs.ErrInvalid)
	}
	model, err := s.manager.EnsureModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	return s.invoke(ctx, model, url)
}

func (s *Service) invoke(ctx context.Context, model runtime.Model, source string) ([]float32, error) {
	out, err := model.Infer(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	vec, err := runtime.Flatten(out)
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	return vec, nil
}
