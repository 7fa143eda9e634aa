package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/imvec/internal/extractor"
	"github.com/xxxsen/imvec/internal/pkg/errcode"
	"github.com/xxxsen/imvec/internal/pkg/response"
)

const defaultMaxUploadBytes = 20 << 20

type ExtractHandler struct {
	extractor extractor.Extractor
	manager   *extractor.Manager
	maxUpload int64
}

func NewExtractHandler(ext extractor.Extractor, manager *extractor.Manager, maxUpload int64) *ExtractHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &ExtractHandler{extractor: ext, manager: manager, maxUpload: maxUpload}
}

type extractURLRequest struct {
	URL string `json:"url"`
}

func (h *ExtractHandler) Extract(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		response.Error(c, errcode.ErrInvalidImage, "image file is required")
		return
	}
	if file.Size > h.maxUpload {
		response.Error(c, errcode.ErrInvalidImage, "image too large")
		return
	}
	f, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidImage, "cannot read image")
		return
	}
	defer f.Close()
	vec, err := h.extractor.ExtractFeatures(c.Request.Context(), f)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"model":  h.extractor.ModelName(),
		"dim":    len(vec),
		"vector": vec,
	})
}

func (h *ExtractHandler) ExtractURL(c *gin.Context) {
	var req extractURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.URL == "" {
		response.Error(c, errcode.ErrInvalid, "url is required")
		return
	}
	vec, err := h.extractor.ExtractFeaturesFromURL(c.Request.Context(), req.URL)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"model":  h.extractor.ModelName(),
		"dim":    len(vec),
		"vector": vec,
	})
}

func (h *ExtractHandler) ModelStatus(c *gin.Context) {
	state, errMsg := h.manager.State()
	body := gin.H{
		"model": h.extractor.ModelName(),
		"state": state,
	}
	if errMsg != "" {
		body["error"] = errMsg
	}
	response.Success(c, body)
}
