package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/imvec/internal/middleware"
)

type RouterDeps struct {
	Extract         *ExtractHandler
	JWTSecret       []byte
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/model/status", deps.Extract.ModelStatus)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	if deps.RateLimitWindow > 0 {
		authGroup.Use(middleware.RateLimit(deps.RateLimitWindow))
	}
	authGroup.POST("/extract", deps.Extract.Extract)
	authGroup.POST("/extract/url", deps.Extract.ExtractURL)
}
