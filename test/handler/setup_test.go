package handler_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/imvec/internal/extractor"
	"github.com/xxxsen/imvec/internal/handler"
	"github.com/xxxsen/imvec/internal/pkg/jwt"
	"github.com/xxxsen/imvec/internal/runtime"
)

var testJWTSecret = []byte("test-secret")

type stubModel struct{}

func (stubModel) Name() string { return "mobilenet_v2_emb" }

func (stubModel) Infer(ctx context.Context, source string) (runtime.Output, error) {
	return []float32{1}, nil
}

type fakeExtractor struct {
	vec     []float32
	err     error
	lastURL string
}

func (f *fakeExtractor) ExtractFeatures(ctx context.Context, r io.Reader) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeExtractor) ExtractFeaturesFromURL(ctx context.Context, url string) ([]float32, error) {
	f.lastURL = url
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeExtractor) ModelName() string { return "mobilenet_v2_emb" }

func setupRouter(t *testing.T, ext extractor.Extractor, maxUpload int64) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := extractor.NewManager(func(ctx context.Context) (runtime.Model, error) {
		return stubModel{}, nil
	}, nil, 0)

	deps := handler.RouterDeps{
		Extract:   handler.NewExtractHandler(ext, manager, maxUpload),
		JWTSecret: testJWTSecret,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
	)
	require.NoError(t, err)
	return engine
}

func authToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.GenerateToken("tester", testJWTSecret, time.Hour)
	require.NoError(t, err)
	return token
}
