package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
)

// RequestID propagates the caller's X-Request-ID or assigns a new one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// Logger logs one structured entry per request. Slow requests are logged
// at warn level.
func Logger(logger *logrus.Logger, slowThreshold time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		entry := logger.WithFields(logrus.Fields{
			"status_code":   c.Writer.Status(),
			"latency":       latency,
			"client_ip":     c.ClientIP(),
			"method":        c.Request.Method,
			"path":          path,
			"request_id":    c.GetString(RequestIDKey),
			"user_agent":    c.Request.UserAgent(),
			"response_size": c.Writer.Size(),
		})

		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= 500:
			entry.Error("HTTP request failed")
		case slowThreshold > 0 && latency > slowThreshold:
			entry.Warn("Slow HTTP request")
		default:
			entry.Info("HTTP request processed")
		}
	}
}
