package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/jdsidebottom/foliumai/internal/config"
	apperrors "github.com/jdsidebottom/foliumai/internal/errors"
	"github.com/jdsidebottom/foliumai/internal/logger"
	"github.com/jdsidebottom/foliumai/internal/metrics"
	"github.com/jdsidebottom/foliumai/internal/service"
	"github.com/jdsidebottom/foliumai/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const requestIDKey = "request_id"

// IdentifyPaths are the routes serving the proxy handler.
var IdentifyPaths = []string{"/identify", "/api/identify-plant"}

// StatsProvider exposes running identification totals for the health endpoint.
type StatsProvider interface {
	GetMetrics() map[string]interface{}
}

func NewHandler(svc service.IdentificationService, stats StatsProvider, cfg *config.Config, version string) http.Handler {
	metrics.Register()

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Add middleware
	r.Use(
		recovery(),
		requestID(),
		requestLogger(),
		noCache(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(cfg),
	)

	r.NoMethod(methodNotAllowed)
	r.NoRoute(notFound)

	// Configure routes
	r.GET("/health", healthCheck(svc, stats, version))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := newLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	for _, p := range IdentifyPaths {
		r.POST(p, rateLimiter(limiter), identifyPlant(svc))
		r.OPTIONS(p, preflight)
	}

	return r
}

func identifyPlant(svc service.IdentificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.IdentifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			return
		}

		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"images":     len(req.Images),
			"ip":         c.ClientIP(),
		}).Info("Processing identification request")

		outcome, err := svc.Identify(c.Request.Context(), c.GetString(requestIDKey), req.Images)
		if err != nil {
			_ = c.Error(err)
			return
		}

		// The upstream body is passed through unchanged.
		c.Data(http.StatusOK, "application/json; charset=utf-8", outcome.Body)
	}
}

func preflight(c *gin.Context) {
	c.Status(http.StatusOK)
}

func methodNotAllowed(c *gin.Context) {
	appErr := apperrors.NewValidationError("Only POST requests are accepted on this endpoint.", nil)
	appErr.StatusCode = http.StatusMethodNotAllowed
	appErr.Title = "Method not allowed"
	appErr.PlantName = "Method Not Allowed"
	respondError(c, appErr)
}

func notFound(c *gin.Context) {
	appErr := apperrors.NewValidationError("The requested endpoint does not exist.", nil)
	appErr.StatusCode = http.StatusNotFound
	appErr.Title = "Not found"
	appErr.PlantName = "Not Found"
	respondError(c, appErr)
}

func healthCheck(svc service.IdentificationService, stats StatsProvider, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:           "available",
			Version:          version,
			Time:             time.Now().UTC().Format(time.RFC3339),
			Strategy:         svc.StrategyName(),
			APIKeyConfigured: svc.HasAPIKey(),
		}
		if stats != nil {
			resp.Identifications = stats.GetMetrics()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func noCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache")
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"request_id":  c.GetString(requestIDKey),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}).Info("Request handled")
	}
}

// recovery turns a panic into the internal error envelope so callers always get JSON.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"panic":      recovered,
		}).Error("Handler panicked")
		respondError(c, apperrors.NewInternalError("An unexpected error occurred. Please try again with a different image.", nil))
	})
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func rateLimiter(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow() {
			c.Next()
			return
		}
		metrics.RateLimitedTotal.Inc()
		c.Header("Retry-After", "30")
		respondError(c, apperrors.NewRateLimitedError(nil).WithDetails("proxy rate limit"))
	}
}

func errorHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, toAppError(c.Errors.Last().Err, cfg))
		}
	}
}

// toAppError converts binding and body-size failures into validation errors.
func toAppError(err error, cfg *config.Config) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return apperrors.NewImageTooLargeError(cfg.MaxImageKB).WithDetails("request body too large")
	}
	return apperrors.NewValidationError("Request body must be JSON of the form {\"images\": [\"<base64>\"]}.", err)
}

func respondError(c *gin.Context, appErr *apperrors.AppError) {
	entry := logger.WithFields(logrus.Fields{
		"request_id":  c.GetString(requestIDKey),
		"status_code": appErr.StatusCode,
		"code":        appErr.Type,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if appErr.Cause != nil {
		entry = entry.WithError(appErr.Cause)
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error(appErr.Message)
	} else {
		entry.Warn(appErr.Message)
	}

	c.AbortWithStatusJSON(appErr.StatusCode, appErr.Envelope())
}
