package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-settlement/internal/biddingerrors"
	"auction-settlement/utils"

	"github.com/gin-gonic/gin"
)

// Gin context keys set by the auth middleware
const (
	ContextUserID = "auth.user_id"
	ContextRole   = "auth.role"
)

// CurrentUserID returns the authenticated subject set by the auth middleware
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// HandleServiceError maps err, writes the error response and logs it. Server
// side failures log at error level, client mistakes at warning level.
func HandleServiceError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["status"] = status
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	// not found
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"
	case errors.Is(err, biddingerrors.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, biddingerrors.ErrTokenNotFound):
		return http.StatusNotFound, "no pending code, request a new one"
	case errors.Is(err, biddingerrors.ErrNotFound):
		return http.StatusNotFound, "not found"

	// amounts
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrBelowFloor):
		return http.StatusBadRequest, "bid amount below starting amount"
	case errors.Is(err, biddingerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid bid details"

	// state
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return http.StatusConflict, "auction is not open for bidding"
	case errors.Is(err, biddingerrors.ErrAuctionEnded):
		return http.StatusConflict, "auction has already ended"
	case errors.Is(err, biddingerrors.ErrFloorFrozen):
		return http.StatusConflict, "starting amount cannot change once bids exist"
	case errors.Is(err, biddingerrors.ErrCloseInPast):
		return http.StatusBadRequest, "closing time must be in the future"
	case errors.Is(err, biddingerrors.ErrUserAlreadyActive):
		return http.StatusBadRequest, "user is already active"
	case errors.Is(err, biddingerrors.ErrInvalidState):
		return http.StatusConflict, "operation not allowed in the current state"

	// permissions
	case errors.Is(err, biddingerrors.ErrNotBidOwner):
		return http.StatusForbidden, "bid belongs to another user"
	case errors.Is(err, biddingerrors.ErrBidderIneligible):
		return http.StatusForbidden, "user is not approved or email not verified"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"

	// conflicts
	case errors.Is(err, biddingerrors.ErrAlreadyBid):
		return http.StatusConflict, "already placed a bid on this auction"
	case errors.Is(err, biddingerrors.ErrAuctionIDTaken):
		return http.StatusConflict, "auction id already exists"
	case errors.Is(err, biddingerrors.ErrConflict):
		return http.StatusConflict, "resource already exists"

	// credentials and codes
	case errors.Is(err, biddingerrors.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, biddingerrors.ErrTokenMismatch):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, biddingerrors.ErrBadCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, biddingerrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"

	case errors.Is(err, biddingerrors.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, biddingerrors.ErrExhausted):
		return http.StatusServiceUnavailable, "auction id space exhausted, retry later"
	case errors.Is(err, biddingerrors.ErrTimeout):
		return http.StatusServiceUnavailable, "storage busy, retry later"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
