package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"auction-settlement/internal/auth"
	"auction-settlement/internal/biddingerrors"
	"auction-settlement/internal/metrics"
	"auction-settlement/internal/objectstore"
	handler "auction-settlement/services/bidding/handler"
	"auction-settlement/utils"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps collects what SetupRouter wires. Metrics and Health may be nil.
type RouterDeps struct {
	Service handler.SettlementServiceInterface
	Tokens  auth.TokenMaker
	Limiter *ClientLimiter
	Metrics *metrics.Metrics
	Health  Pinger
	// Files serves uploads kept in memory under /files
	Files *objectstore.MemoryStore
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps RouterDeps) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.GET("/healthz", healthHandler(deps.Health))
	if deps.Files != nil {
		router.GET("/files/*key", filesHandler(deps.Files))
	}

	h := handler.NewBiddingHandler(deps.Service)
	authed := AuthMiddleware(deps.Tokens)
	admin := RequireRole(auth.RoleAdmin)
	limited := func(c *gin.Context) { c.Next() }
	if deps.Limiter != nil {
		limited = RateLimitMiddleware(deps.Limiter)
	}

	auctions := router.Group("/auctions")
	{
		auctions.GET("", h.ListAuctionsHandler)
		auctions.GET("/:auction_id", h.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", authed, h.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", authed, h.GetWinningBidHandler)
		auctions.POST("", authed, admin, h.CreateAuctionHandler)
		auctions.PUT("/:auction_id", authed, admin, h.UpdateAuctionHandler)
		auctions.DELETE("/:auction_id", authed, admin, h.DeleteAuctionHandler)
	}

	bids := router.Group("/bids", authed)
	{
		bids.POST("", h.RecordBidHandler)
		bids.GET("/:bid_id", h.GetBidHandler)
		bids.PATCH("/:bid_id", h.AmendBidHandler)
		bids.DELETE("/:bid_id", h.WithdrawBidHandler)
	}

	users := router.Group("/users")
	{
		users.POST("/register", limited, h.RegisterHandler)
		users.PATCH("/verify", limited, h.VerifyEmailHandler)
		users.POST("/resend-otp", limited, h.ResendCodeHandler)
		users.GET("/:user_id", authed, admin, h.GetUserHandler)
		users.PATCH("/:user_id/approve", authed, admin, h.ApproveUserHandler)
		users.DELETE("/:user_id/reject", authed, admin, h.RejectUserHandler)
	}

	authGroup := router.Group("/auth", limited)
	{
		authGroup.POST("/login", h.LoginHandler)
		authGroup.POST("/forgot-password", h.ForgotPasswordHandler)
		authGroup.POST("/reset-password", h.ResetPasswordHandler)
	}

	return router
}

func healthHandler(p Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				utils.JSONError(c, http.StatusServiceUnavailable, err, "storage unavailable")
				utils.Error("healthHandler: ping failed", map[string]any{"error": err.Error()})
				return
			}
		}
		utils.JSONResponse(c, http.StatusOK, gin.H{"time": time.Now().UTC().Format(time.RFC3339)}, "ok")
	}
}

func filesHandler(files *objectstore.MemoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		data, contentType, ok := files.Get(key)
		if !ok {
			utils.JSONError(c, http.StatusNotFound, biddingerrors.ErrNotFound, "file not found")
			return
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Data(http.StatusOK, contentType, data)
	}
}
