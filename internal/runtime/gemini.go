package runtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiModel struct {
	apiKey string
	model  string
}

func init() {
	Register("gemini", createGeminiModel)
}

func createGeminiModel(env Env, args interface{}) (Model, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api_key is required")
	}
	return &geminiModel{
		apiKey: strings.TrimSpace(cfg.APIKey),
		model:  env.ModelName,
	}, nil
}

func (m *geminiModel) Name() string {
	return m.model
}

func (m *geminiModel) Infer(ctx context.Context, source string) (Output, error) {
	data, mime, err := readImageBytes(ctx, source)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  m.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	resp, err := client.Models.EmbedContent(
		ctx,
		m.model,
		[]*genai.Content{{Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: mime, Data: data}}}}},
		nil,
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}

func readImageBytes(ctx context.Context, source string) ([]byte, string, error) {
	var data []byte
	if isRemoteSource(source) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("fetch image: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("fetch image: %s", resp.Status)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", err
		}
	} else {
		var err error
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, "", fmt.Errorf("read image: %w", err)
		}
	}
	return data, http.DetectContentType(data), nil
}
