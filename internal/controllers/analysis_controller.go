package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portfolio-analytics/internal/dto"
	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/monitoring"
	apperrors "portfolio-analytics/pkg/errors"
)

// AnalysisServiceInterface is the part of the analysis service the HTTP layer uses
type AnalysisServiceInterface interface {
	Analyze(ctx context.Context, input *dto.AnalysisRequestInput) (*models.AnalysisResult, bool, error)
	InvalidateAnalysis(ctx context.Context, input *dto.AnalysisRequestInput) (string, error)
	InvalidateAll(ctx context.Context) (int64, error)
}

type AnalysisController struct {
	logger  *logrus.Logger
	service AnalysisServiceInterface
	health  *monitoring.HealthChecker
}

func NewAnalysisController(logger *logrus.Logger, service AnalysisServiceInterface, health *monitoring.HealthChecker) *AnalysisController {
	return &AnalysisController{
		logger:  logger,
		service: service,
		health:  health,
	}
}

func (c *AnalysisController) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/health", c.Health)
	r.POST("/analysis", c.Analyze)
	r.GET("/analysis", c.AnalyzeQuery)
	r.DELETE("/analysis/cache", c.InvalidateCache)
}

// Health reports component status. A degraded service still answers 200
// because analyses run without the cache store.
func (c *AnalysisController) Health(ctx *gin.Context) {
	if c.health == nil {
		ctx.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()

	ctx.JSON(http.StatusOK, c.health.CheckHealth(checkCtx))
}

// Analyze handles POST /analysis with a JSON body
func (c *AnalysisController) Analyze(ctx *gin.Context) {
	input, err := decodeInput(ctx)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	c.analyze(ctx, input)
}

// AnalyzeQuery handles GET /analysis?tickers=AAPL,MSFT&weights=60,40&...
func (c *AnalysisController) AnalyzeQuery(ctx *gin.Context) {
	input, err := dto.AnalysisRequestFromQuery(ctx.Request.URL.Query())
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	c.analyze(ctx, input)
}

// InvalidateCache handles DELETE /analysis/cache. With ?all=true the whole
// cache is cleared, otherwise the body names the analysis to drop.
func (c *AnalysisController) InvalidateCache(ctx *gin.Context) {
	if all, _ := strconv.ParseBool(ctx.Query("all")); all {
		removed, err := c.service.InvalidateAll(ctx.Request.Context())
		if err != nil {
			c.respondError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"message": "Analysis cache cleared",
			"removed": removed,
		})
		return
	}

	input, err := decodeInput(ctx)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	fingerprint, err := c.service.InvalidateAnalysis(ctx.Request.Context(), input)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message":     "Analysis cache entry invalidated",
		"fingerprint": fingerprint,
	})
}

// decodeInput reads the JSON body without gin's binding validation;
// Normalize owns validation so every rejection gets the same messages
func decodeInput(ctx *gin.Context) (*dto.AnalysisRequestInput, error) {
	var input dto.AnalysisRequestInput
	if err := json.NewDecoder(ctx.Request.Body).Decode(&input); err != nil {
		return nil, apperrors.NewInvalidInput("Invalid request body.", err.Error())
	}
	return &input, nil
}

func (c *AnalysisController) analyze(ctx *gin.Context, input *dto.AnalysisRequestInput) {
	result, cached, err := c.service.Analyze(ctx.Request.Context(), input)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	if cached {
		ctx.Header("X-Cache", "HIT")
	} else {
		ctx.Header("X-Cache", "MISS")
	}
	ctx.JSON(http.StatusOK, dto.NewAnalysisResponse(result, cached))
}

// respondError writes {"error": message, "code": kind}. Internal details are
// logged, never returned.
func (c *AnalysisController) respondError(ctx *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.NewInternalError("Internal server error", err)
	}

	status := apperrors.HTTPStatus(appErr.Kind)
	fields := logrus.Fields{
		"path":       ctx.Request.URL.Path,
		"code":       appErr.Kind,
		"status":     status,
		"request_id": ctx.GetString("request_id"),
		"error":      err,
	}
	if status >= http.StatusInternalServerError {
		c.logger.WithFields(fields).Error("Analysis request failed")
	} else {
		c.logger.WithFields(fields).Debug("Analysis request rejected")
	}

	body := gin.H{
		"error": appErr.Message,
		"code":  appErr.Kind,
	}
	if appErr.Ticker != "" {
		body["ticker"] = appErr.Ticker
	}
	if appErr.Retryable {
		body["retryable"] = true
	}
	if appErr.Kind == apperrors.KindInvalidInput && appErr.Details != "" {
		body["details"] = appErr.Details
	}

	ctx.AbortWithStatusJSON(status, body)
}
