package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auction-settlement/internal/auth"
	"auction-settlement/internal/metrics"
	model "auction-settlement/internal/models"
	"auction-settlement/internal/objectstore"
	handler "auction-settlement/services/bidding/handler"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newRouter(t *testing.T, limiter *ClientLimiter, health Pinger) (*gin.Engine, *handler.MockSettlementServiceInterface, *auth.JWTMaker) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := handler.NewMockSettlementServiceInterface(ctrl)
	tokens := auth.NewJWTMaker("router-test-secret", time.Hour)

	router := SetupRouter(RouterDeps{
		Service: svc,
		Tokens:  tokens,
		Limiter: limiter,
		Metrics: metrics.New(),
		Health:  health,
	})
	return router, svc, tokens
}

func serve(router *gin.Engine, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_Access(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		target         string
		role           string
		mockSetup      func(m *handler.MockSettlementServiceInterface)
		expectedStatus int
	}{
		{
			name:   "public_auction_listing",
			method: http.MethodGet,
			target: "/auctions",
			mockSetup: func(m *handler.MockSettlementServiceInterface) {
				m.EXPECT().ListAuctions(gomock.Any(), gomock.Any()).Return(model.NewPage([]model.Auction(nil), 0, 1, 10), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "bids_need_token",
			method:         http.MethodGet,
			target:         "/auctions/AUC1234/bids",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:   "bidder_reads_bids",
			method: http.MethodGet,
			target: "/auctions/AUC1234/bids",
			role:   auth.RoleBidder,
			mockSetup: func(m *handler.MockSettlementServiceInterface) {
				m.EXPECT().ListBids(gomock.Any(), "AUC1234", 0, 0).Return(model.NewPage([]model.BidView(nil), 0, 1, 10), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "bidder_cannot_delete_auction",
			method:         http.MethodDelete,
			target:         "/auctions/AUC1234",
			role:           auth.RoleBidder,
			expectedStatus: http.StatusForbidden,
		},
		{
			name:   "admin_deletes_auction",
			method: http.MethodDelete,
			target: "/auctions/AUC1234",
			role:   auth.RoleAdmin,
			mockSetup: func(m *handler.MockSettlementServiceInterface) {
				m.EXPECT().DeleteAuction(gomock.Any(), "AUC1234").Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "bidder_cannot_approve",
			method:         http.MethodPatch,
			target:         "/users/user1/approve",
			role:           auth.RoleBidder,
			expectedStatus: http.StatusForbidden,
		},
		{
			name:   "admin_approves",
			method: http.MethodPatch,
			target: "/users/user1/approve",
			role:   auth.RoleAdmin,
			mockSetup: func(m *handler.MockSettlementServiceInterface) {
				m.EXPECT().ApproveUser(gomock.Any(), "user1").Return(model.PublicUser{ID: "user1", Active: true}, nil)
			},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, svc, tokens := newRouter(t, nil, nil)
			if tc.mockSetup != nil {
				tc.mockSetup(svc)
			}
			var token string
			if tc.role != "" {
				var err error
				token, err = tokens.GenerateToken("user1", tc.role)
				require.NoError(t, err)
			}

			w := serve(router, tc.method, tc.target, token)
			require.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}

func TestAuthMiddleware_BadTokens(t *testing.T) {
	t.Parallel()

	router, _, _ := newRouter(t, nil, nil)
	other := auth.NewJWTMaker("another-secret", time.Hour)
	foreign, err := other.GenerateToken("user1", auth.RoleAdmin)
	require.NoError(t, err)

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer " + foreign, "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/bids/b1", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	router, svc, _ := newRouter(t, NewClientLimiter(rate.Every(time.Hour), 2), nil)
	svc.EXPECT().ForgotPassword(gomock.Any(), "ada@example.com").Return(nil).Times(2)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password", strings.NewReader(`{"email":"ada@example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestClientLimiter_PerClient(t *testing.T) {
	t.Parallel()

	l := NewClientLimiter(rate.Every(time.Hour), 1)
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.2"))
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		router, _, _ := newRouter(t, nil, pingFunc(func(context.Context) error { return nil }))

		w := serve(router, http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, "ok", resp["message"])
	})

	t.Run("storage_down", func(t *testing.T) {
		t.Parallel()
		router, _, _ := newRouter(t, nil, pingFunc(func(context.Context) error { return errors.New("connection refused") }))

		w := serve(router, http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("metrics_exposed", func(t *testing.T) {
		t.Parallel()
		router, _, _ := newRouter(t, nil, nil)

		serve(router, http.MethodGet, "/healthz", "")
		w := serve(router, http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "go_goroutines")
	})
}

func TestFilesRoute(t *testing.T) {
	t.Parallel()

	files := objectstore.NewMemoryStore("http://localhost:8080/files")
	url, err := files.Put(context.Background(), "auctions/abc/photo.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/files/auctions/abc/photo.png", url)

	router := SetupRouter(RouterDeps{
		Service: handler.NewMockSettlementServiceInterface(gomock.NewController(t)),
		Tokens:  auth.NewJWTMaker("router-test-secret", time.Hour),
		Files:   files,
	})

	w := serve(router, http.MethodGet, "/files/auctions/abc/photo.png", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
	require.Equal(t, "png-bytes", w.Body.String())

	w = serve(router, http.MethodGet, "/files/auctions/abc/missing.png", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}
