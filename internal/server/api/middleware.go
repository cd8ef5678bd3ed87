package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"

	ctxKeyRequestID = "request_id"
	ctxKeyUserID    = "user_id"
)

// RequestID propagates or assigns a request id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one line per request. The key query parameter is
// redacted.
func RequestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info(c.Request.Context(), "request",
			"request_id", c.GetString(ctxKeyRequestID),
			"method", c.Request.Method,
			"path", redactedURI(c.Request.URL),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func redactedURI(u *url.URL) string {
	q := u.Query()
	if _, ok := q[common.ProxyKeyQueryParam]; ok {
		q.Set(common.ProxyKeyQueryParam, "REDACTED")
	}
	if len(q) == 0 {
		return u.Path
	}
	return u.Path + "?" + q.Encode()
}

// SessionAuth requires a valid session cookie and stores the owner id.
func SessionAuth(sessions SessionManager, log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(common.SessionCookieName)

		userID, err := sessions.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, common.ErrSession) {
				abortUnauthenticated(c)
				return
			}
			log.Error(c.Request.Context(), "session validation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(common.ErrorInternal))
			return
		}

		c.Set(ctxKeyUserID, userID)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(common.ErrSession))
}

func errorBody(err error) gin.H {
	return gin.H{"error_message": err.Error()}
}

func userIDFrom(c *gin.Context) int64 {
	return c.GetInt64(ctxKeyUserID)
}
