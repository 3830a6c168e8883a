package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"auction-settlement/internal/auth"
	"auction-settlement/internal/biddingerrors"
	"auction-settlement/services/bidding/helpers"
	"auction-settlement/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	utils.Info("HTTP Request", map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
		"user_id": c.GetString(helpers.ContextUserID),
	})
}

// AuthMiddleware requires a valid bearer token and stores its subject and role in the context
func AuthMiddleware(tokens auth.TokenMaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, tokenStr, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenStr) == "" {
			utils.JSONError(c, http.StatusUnauthorized, biddingerrors.ErrUnauthorized, "missing bearer token")
			c.Abort()
			return
		}

		claims, err := tokens.ParseToken(strings.TrimSpace(tokenStr))
		if err != nil {
			message := "invalid token"
			if errors.Is(err, biddingerrors.ErrTokenExpired) {
				message = "token expired"
			}
			utils.JSONError(c, http.StatusUnauthorized, err, message)
			utils.Warn("AuthMiddleware: token rejected", map[string]any{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			c.Abort()
			return
		}

		c.Set(helpers.ContextUserID, claims.Subject)
		c.Set(helpers.ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole lets only tokens carrying role through. It must run after AuthMiddleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(helpers.ContextRole) != role {
			utils.JSONError(c, http.StatusForbidden, biddingerrors.ErrForbidden, "forbidden")
			utils.Warn("RequireRole: access denied", map[string]any{
				"path":    c.Request.URL.Path,
				"user_id": c.GetString(helpers.ContextUserID),
				"want":    role,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClientLimiter hands out one token bucket per client IP
type ClientLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewClientLimiter allows each client limit requests per second with the given burst
func NewClientLimiter(limit rate.Limit, burst int) *ClientLimiter {
	return &ClientLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the client may proceed now
func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[client] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RateLimitMiddleware rejects clients that exceed their bucket with 429
func RateLimitMiddleware(l *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			utils.JSONError(c, http.StatusTooManyRequests, errors.New("rate limit exceeded"), "too many requests")
			utils.Warn("RateLimitMiddleware: too many requests", map[string]any{
				"client": c.ClientIP(),
				"path":   c.Request.URL.Path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
