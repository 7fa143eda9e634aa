package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/imvec/internal/pkg/errcode"
	errs "github.com/xxxsen/imvec/internal/pkg/errors"
)

type envelope struct {
	Code int                    `json:"code"`
	Msg  string                 `json:"message"`
	Data map[string]interface{} `json:"data"`
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.Code)
	var result envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	return result
}

func multipartImage(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile(field, "cat.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestExtractRequiresAuth(t *testing.T) {
	router := setupRouter(t, &fakeExtractor{vec: []float32{1}}, 0)

	body, contentType := multipartImage(t, "image", []byte("bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	result := decodeEnvelope(t, resp)
	require.Equal(t, errcode.ErrUnauthorized, result.Code)
}

func TestExtractMultipart(t *testing.T) {
	router := setupRouter(t, &fakeExtractor{vec: []float32{0.5, 0.25}}, 0)

	body, contentType := multipartImage(t, "image", []byte("fake image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+authToken(t))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	result := decodeEnvelope(t, resp)
	require.Zero(t, result.Code)
	require.Equal(t, "mobilenet_v2_emb", result.Data["model"])
	require.Equal(t, float64(2), result.Data["dim"])
	require.Equal(t, []interface{}{0.5, 0.25}, result.Data["vector"])
}

func TestExtractMissingFile(t *testing.T) {
	router := setupRouter(t, &fakeExtractor{vec: []float32{1}}, 0)

	body, contentType := multipartImage(t, "attachment", []byte("bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+authToken(t))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	result := decodeEnvelope(t, resp)
	require.Equal(t, errcode.ErrInvalidImage, result.Code)
}

func TestExtractRejectsOversizedUpload(t *testing.T) {
	router := setupRouter(t, &fakeExtractor{vec: []float32{1}}, 8)

	body, contentType := multipartImage(t, "image", bytes.Repeat([]byte("x"), 64))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+authToken(t))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	result := decodeEnvelope(t, resp)
	require.Equal(t, errcode.ErrInvalidImage, result.Code)
	require.Contains(t, result.Msg, "too large")
}

func TestExtractErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "model unavailable",
			err:      fmt.Errorf("extract features: %w", errs.ErrModelUnavailable),
			wantCode: errcode.ErrModelUnavailable,
		},
		{
			name:     "invalid input",
			err:      fmt.Errorf("%w: image url must be http or https", errs.ErrInvalid),
			wantCode: errcode.ErrInvalid,
		},
		{
			name:     "inference failure",
			err:      errors.New("inference blew up"),
			wantCode: errcode.ErrExtractFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := setupRouter(t, &fakeExtractor{err: tc.err}, 0)

			body, contentType := multipartImage(t, "image", []byte("bytes"))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("Authorization", "Bearer "+authToken(t))
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			result := decodeEnvelope(t, resp)
			require.Equal(t, tc.wantCode, result.Code)
		})
	}
}

func TestExtractURL(t *testing.T) {
	ext := &fakeExtractor{vec: []float32{1}}
	router := setupRouter(t, ext, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract/url",
		bytes.NewReader([]byte(`{"url":"https://example.com/cat.jpg"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+authToken(t))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	result := decodeEnvelope(t, resp)
	require.Zero(t, result.Code)
	require.Equal(t, "https://example.com/cat.jpg", ext.lastURL)
}

func TestExtractURLRejectsBadBody(t *testing.T) {
	router := setupRouter(t, &fakeExtractor{vec: []float32{1}}, 0)

	for _, payload := range []string{`{broken`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/extract/url", bytes.NewReader([]byte(payload)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+authToken(t))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		result := decodeEnvelope(t, resp)
		require.Equal(t, errcode.ErrInvalid, result.Code)
	}
}

func TestModelStatusIsPublic(t *testing.T) {
	router := setupRouter(t, &fakeExtractor{vec: []float32{1}}, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/model/status", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	result := decodeEnvelope(t, resp)
	require.Zero(t, result.Code)
	require.Equal(t, "mobilenet_v2_emb", result.Data["model"])
	require.Equal(t, "unloaded", result.Data["state"])
}
