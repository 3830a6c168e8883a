package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"auction-settlement/internal/biddingerrors"
)

func TestJSONError_Kind(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		err      error
		wantKind string
	}{
		{name: "invalid_amount", err: fmt.Errorf("wrap: %w", biddingerrors.ErrBidTooLow), wantKind: "invalid_amount"},
		{name: "not_found", err: biddingerrors.ErrAuctionNotFound, wantKind: "not_found"},
		{name: "nil_error", err: nil, wantKind: "internal"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			JSONError(c, http.StatusTeapot, tc.err, "msg")

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Equal(t, http.StatusTeapot, w.Code)
			require.Equal(t, tc.wantKind, body["kind"])
			require.Equal(t, "msg", body["message"])
		})
	}
}

func TestGenerateID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := GenerateID()
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		require.Equal(t, uuid.Version(7), parsed.Version())
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
