package middleware

import (
	"time"

	"huddle/pkg/logger"
	"huddle/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLoggerMiddleware tags every request with an ID and logs the access
// line with whatever identifiers the context carries.
func RequestLoggerMiddleware(zapLogger *zap.Logger) gin.HandlerFunc {
	contextLogger := logger.NewContextLogger(zapLogger)

	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		if session := c.Param("id"); session != "" {
			ctx = logger.WithSessionID(ctx, session)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		contextLogger.LogRequest(ctx, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
