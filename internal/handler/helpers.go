package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/imvec/internal/pkg/errcode"
	errs "github.com/xxxsen/imvec/internal/pkg/errors"
	"github.com/xxxsen/imvec/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errs.IsModelUnavailable(err):
		response.Error(c, errcode.ErrModelUnavailable, "model unavailable, check your connection or retry later")
	case errs.IsInvalid(err):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	default:
		response.Error(c, errcode.ErrExtractFailed, "feature extraction failed")
	}
}
