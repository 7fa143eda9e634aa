package runtime

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	manifestArtifactKey = "manifest"
	weightsArtifactKey  = "weights"
)

// manifest describes one weight artifact set published by the model provider.
type manifest struct {
	Name             string  `json:"name"`
	Dim              int     `json:"dim"`
	InputEdge        int     `json:"input_edge"`
	Weights          string  `json:"weights"`
	WeightsQuantized string  `json:"weights_q8"`
	Scale            float32 `json:"scale,omitempty"`
}

type localModel struct {
	name      string
	dim       int
	inputEdge int
	weights   []float32
}

func init() {
	Register("local", createLocalModel)
}

// createLocalModel loads weight artifacts through the cache scopes, falling
// back to the weight origin on a miss, and keeps the parsed projection matrix
// in memory. A corrupted cached manifest surfaces as a JSON parse error.
func createLocalModel(env Env, args interface{}) (Model, error) {
	_ = args
	if env.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	ctx := context.Background()
	recordLoadAttempt(ctx, env)

	m, weightsRaw, err := loadArtifacts(ctx, env)
	if err != nil {
		return nil, err
	}
	if m.Dim <= 0 || m.InputEdge <= 0 {
		return nil, fmt.Errorf("model manifest has invalid dimensions: dim=%d input_edge=%d", m.Dim, m.InputEdge)
	}
	weights, err := parseWeights(m, weightsRaw, env.Quantized)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("local model loaded",
		zap.String("model", env.ModelName),
		zap.Int("dim", m.Dim),
		zap.Bool("quantized", env.Quantized))
	return &localModel{
		name:      env.ModelName,
		dim:       m.Dim,
		inputEdge: m.InputEdge,
		weights:   weights,
	}, nil
}

func artifactDBName(model string) string {
	return "imvec-model-" + model
}

func weightCacheName(model string) string {
	return "imvec-weights-" + model
}

func loadArtifacts(ctx context.Context, env Env) (*manifest, []byte, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("model", env.ModelName))
	dbName := artifactDBName(env.ModelName)

	if env.ArtifactDB != nil {
		rawManifest, ok, err := env.ArtifactDB.Get(ctx, dbName, manifestArtifactKey)
		if err != nil {
			logger.Warn("read cached manifest failed, falling back to origin", zap.Error(err))
		} else if ok {
			m := &manifest{}
			if err := json.Unmarshal(rawManifest, m); err != nil {
				return nil, nil, fmt.Errorf("parse cached model manifest: %w", err)
			}
			weightsRaw, ok, err := env.ArtifactDB.Get(ctx, dbName, weightsArtifactKey)
			if err != nil {
				logger.Warn("read cached weights failed, falling back to origin", zap.Error(err))
			} else if ok {
				logger.Info("model artifacts served from cache")
				return m, weightsRaw, nil
			}
		}
	}

	if env.Weights == nil {
		return nil, nil, fmt.Errorf("weight store not configured")
	}
	logger.Info("fetching model artifacts from origin")
	manifestKey := env.ModelName + "/model.json"
	rawManifest, err := env.Weights.Fetch(ctx, manifestKey)
	if err != nil {
		return nil, nil, err
	}
	m := &manifest{}
	if err := json.Unmarshal(rawManifest, m); err != nil {
		return nil, nil, fmt.Errorf("parse model manifest: %w", err)
	}
	weightsFile := m.Weights
	if env.Quantized && m.WeightsQuantized != "" {
		weightsFile = m.WeightsQuantized
	}
	if weightsFile == "" {
		return nil, nil, fmt.Errorf("model manifest names no weight file")
	}
	weightsKey := env.ModelName + "/" + weightsFile
	weightsRaw, err := env.Weights.Fetch(ctx, weightsKey)
	if err != nil {
		return nil, nil, err
	}
	stageArtifacts(ctx, env, rawManifest, weightsRaw, weightsKey)
	return m, weightsRaw, nil
}

// stageArtifacts writes fetched artifacts into the cache scopes so the next
// load skips the origin. Staging is best effort; a failing scope only costs
// the next load a refetch.
func stageArtifacts(ctx context.Context, env Env, rawManifest, weightsRaw []byte, weightsKey string) {
	logger := logutil.GetLogger(ctx).With(zap.String("model", env.ModelName))
	dbName := artifactDBName(env.ModelName)
	if env.ArtifactDB != nil {
		if err := env.ArtifactDB.Put(ctx, dbName, manifestArtifactKey, rawManifest); err != nil {
			logger.Warn("stage manifest failed", zap.Error(err))
		}
		if err := env.ArtifactDB.Put(ctx, dbName, weightsArtifactKey, weightsRaw); err != nil {
			logger.Warn("stage weights failed", zap.Error(err))
		}
	}
	if env.RespCache != nil {
		if err := env.RespCache.Put(ctx, weightCacheName(env.ModelName), weightsKey, weightsRaw); err != nil {
			logger.Warn("stage weight response failed", zap.Error(err))
		}
	}
	if env.LocalKV != nil {
		stamp := strconv.FormatInt(time.Now().Unix(), 10)
		if err := env.LocalKV.Set(ctx, "imvec/model/"+env.ModelName+"/staged_at", stamp); err != nil {
			logger.Warn("stage kv stamp failed", zap.Error(err))
		}
	}
}

func recordLoadAttempt(ctx context.Context, env Env) {
	if env.SessionKV == nil {
		return
	}
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	_ = env.SessionKV.Set(ctx, "imvec/model/"+env.ModelName+"/last_load", stamp)
}

func parseWeights(m *manifest, data []byte, quantized bool) ([]float32, error) {
	want := m.Dim * m.InputEdge * m.InputEdge
	if quantized {
		if len(data) != want {
			return nil, fmt.Errorf("quantized weight matrix size mismatch: got %d bytes, want %d", len(data), want)
		}
		scale := m.Scale
		if scale == 0 {
			scale = 1.0 / 128
		}
		weights := make([]float32, want)
		for i, b := range data {
			weights[i] = (float32(b) - 128) * scale
		}
		return weights, nil
	}
	if len(data) != want*4 {
		return nil, fmt.Errorf("weight matrix size mismatch: got %d bytes, want %d", len(data), want*4)
	}
	weights := make([]float32, want)
	for i := range weights {
		weights[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return weights, nil
}

func (m *localModel) Name() string {
	return m.name
}

func (m *localModel) Infer(ctx context.Context, source string) (Output, error) {
	img, err := m.readImage(ctx, source)
	if err != nil {
		return nil, err
	}
	features := sampleGray(img, m.inputEdge)
	cols := m.inputEdge * m.inputEdge
	out := make([]float32, m.dim)
	for i := 0; i < m.dim; i++ {
		var sum float64
		row := m.weights[i*cols : (i+1)*cols]
		for j, f := range features {
			sum += float64(row[j]) * float64(f)
		}
		out[i] = float32(sum)
	}
	normalize(out)
	return out, nil
}

func (m *localModel) readImage(ctx context.Context, source string) (image.Image, error) {
	var r io.ReadCloser
	if isRemoteSource(source) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch image: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch image: %s", resp.Status)
		}
		r = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open image: %w", err)
		}
		r = f
	}
	defer r.Close()
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// sampleGray shrinks the image onto an edge×edge grid of luminance values in
// [0,1], the input layout the projection matrix was trained against.
func sampleGray(img image.Image, edge int) []float32 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	features := make([]float32, edge*edge)
	for y := 0; y < edge; y++ {
		srcY := bounds.Min.Y + y*height/edge
		for x := 0; x < edge; x++ {
			srcX := bounds.Min.X + x*width/edge
			r, g, b, _ := img.At(srcX, srcY).RGBA()
			lum := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			features[y*edge+x] = float32(lum / 65535.0)
		}
	}
	return features
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
