package integrationtests

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"auction-settlement/internal/notify"

	"github.com/stretchr/testify/require"
)

// onboard registers, verifies, approves and logs in a bidder, returning its id and token
func onboard(t *testing.T, app *testApp, n int) (string, string) {
	t.Helper()
	email := fmt.Sprintf("bidder%d@example.com", n)
	password := "correct-horse"

	resp, w := app.ExecuteRequestAndParse(t, http.MethodPost, "/users/register", "", map[string]any{
		"first_name": "Bidder",
		"last_name":  fmt.Sprint(n),
		"phone":      fmt.Sprintf("+23480000000%02d", n),
		"email":      email,
		"password":   password,
	})
	require.Equal(t, http.StatusCreated, w.Code, resp)
	userID := data(t, resp)["id"].(string)

	code := app.inbox.codeFor(t, email, notify.TemplateVerifyEmail)
	_, w = app.ExecuteRequestAndParse(t, http.MethodPatch, "/users/verify", "", map[string]any{"user_id": userID, "code": code})
	require.Equal(t, http.StatusOK, w.Code)

	_, w = app.ExecuteRequestAndParse(t, http.MethodPatch, "/users/"+userID+"/approve", app.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp, w = app.ExecuteRequestAndParse(t, http.MethodPost, "/auth/login", "", map[string]any{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code)
	return userID, data(t, resp)["access_token"].(string)
}

func createAuction(t *testing.T, app *testApp, floor string) string {
	t.Helper()
	resp, w := app.ExecuteRequestAndParse(t, http.MethodPost, "/auctions", app.adminToken, map[string]any{
		"bid_description":  "Warehouse clearance",
		"item_description": "Forklift, 2.5t",
		"starting_amount":  floor,
		"categories":       []string{"machinery"},
		"closes_at":        time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, resp)
	return data(t, resp)["id"].(string)
}

func TestAuctionLifecycle(t *testing.T) {
	app := SetupTestApp(t)
	auctionID := createAuction(t, app, "5000")
	require.Len(t, auctionID, 7)

	resp, w := app.ExecuteRequestAndParse(t, http.MethodGet, "/auctions/"+auctionID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "5000.00", data(t, resp)["starting_amount"])

	resp, w = app.ExecuteRequestAndParse(t, http.MethodGet, "/auctions?search=forklift", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), data(t, resp)["total"])

	resp, w = app.ExecuteRequestAndParse(t, http.MethodPut, "/auctions/"+auctionID, app.adminToken, map[string]any{"starting_amount": "6000"})
	require.Equal(t, http.StatusOK, w.Code, resp)
	require.Equal(t, "6000.00", data(t, resp)["starting_amount"])

	_, w = app.ExecuteRequestAndParse(t, http.MethodDelete, "/auctions/"+auctionID, app.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, w = app.ExecuteRequestAndParse(t, http.MethodGet, "/auctions/"+auctionID, "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestBiddingFlow(t *testing.T) {
	app := SetupTestApp(t)
	auctionID := createAuction(t, app, "5000")
	aliceID, alice := onboard(t, app, 1)
	bobID, bob := onboard(t, app, 2)

	tests := []struct {
		name       string
		token      string
		amount     string
		wantStatus int
	}{
		{name: "Below_Floor", token: alice, amount: "4999.99", wantStatus: http.StatusBadRequest},
		{name: "Alice_Opens", token: alice, amount: "5000", wantStatus: http.StatusCreated},
		{name: "Alice_Twice", token: alice, amount: "7000", wantStatus: http.StatusConflict},
		{name: "Bob_Equal", token: bob, amount: "5000", wantStatus: http.StatusConflict},
		{name: "Bob_Outbids", token: bob, amount: "5000.01", wantStatus: http.StatusCreated},
		{name: "No_Token", token: "", amount: "9000", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		_, w := app.ExecuteRequestAndParse(t, http.MethodPost, "/bids", tt.token, map[string]any{
			"auction_id": auctionID,
			"amount":     tt.amount,
		})
		require.Equal(t, tt.wantStatus, w.Code, tt.name)
	}

	resp, w := app.ExecuteRequestAndParse(t, http.MethodGet, "/auctions/"+auctionID+"/winning", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	winner := data(t, resp)
	require.Equal(t, bobID, winner["user_id"])
	require.Equal(t, "5000.01", winner["amount"])

	// alice raises her own bid above bob's
	resp, w = app.ExecuteRequestAndParse(t, http.MethodGet, "/auctions/"+auctionID+"/bids", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := data(t, resp)["items"].([]any)
	require.Len(t, items, 2)
	aliceBid := items[1].(map[string]any)
	require.Equal(t, aliceID, aliceBid["user_id"])

	bidPath := "/bids/" + aliceBid["bid_id"].(string)
	_, w = app.ExecuteRequestAndParse(t, http.MethodPatch, bidPath, bob, map[string]any{"amount": "9000"})
	require.Equal(t, http.StatusForbidden, w.Code)

	_, w = app.ExecuteRequestAndParse(t, http.MethodPatch, bidPath, alice, map[string]any{"amount": "9000"})
	require.Equal(t, http.StatusOK, w.Code)

	resp, _ = app.ExecuteRequestAndParse(t, http.MethodGet, "/auctions/"+auctionID+"/winning", bob, nil)
	require.Equal(t, aliceID, data(t, resp)["user_id"])

	_, w = app.ExecuteRequestAndParse(t, http.MethodDelete, bidPath, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp, _ = app.ExecuteRequestAndParse(t, http.MethodGet, "/auctions/"+auctionID+"/winning", bob, nil)
	require.Equal(t, bobID, data(t, resp)["user_id"])

	_, w = app.ExecuteRequestAndParse(t, http.MethodPut, "/auctions/"+auctionID, app.adminToken, map[string]any{"starting_amount": "1"})
	require.Equal(t, http.StatusConflict, w.Code, "floor is frozen once bids exist")
}

func TestUnapprovedBidderIsRejected(t *testing.T) {
	app := SetupTestApp(t)
	auctionID := createAuction(t, app, "5000")

	resp, w := app.ExecuteRequestAndParse(t, http.MethodPost, "/users/register", "", map[string]any{
		"first_name": "Pending",
		"last_name":  "User",
		"phone":      "+2348011111111",
		"email":      "pending@example.com",
		"password":   "correct-horse",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, false, data(t, resp)["active"])

	resp, w = app.ExecuteRequestAndParse(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "pending@example.com",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, w.Code)
	token := data(t, resp)["access_token"].(string)

	_, w = app.ExecuteRequestAndParse(t, http.MethodPost, "/bids", token, map[string]any{"auction_id": auctionID, "amount": "6000"})
	require.Equal(t, http.StatusForbidden, w.Code)

	_, w = app.ExecuteRequestAndParse(t, http.MethodDelete, "/auctions/"+auctionID, token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestPasswordReset(t *testing.T) {
	app := SetupTestApp(t)
	_, _ = onboard(t, app, 7)
	email := "bidder7@example.com"

	_, w := app.ExecuteRequestAndParse(t, http.MethodPost, "/auth/forgot-password", "", map[string]any{"email": email})
	require.Equal(t, http.StatusOK, w.Code)
	code := app.inbox.codeFor(t, email, notify.TemplateResetPassword)

	reset := map[string]any{"email": email, "code": code, "new_password": "battery-staple"}
	_, w = app.ExecuteRequestAndParse(t, http.MethodPost, "/auth/reset-password", "", reset)
	require.Equal(t, http.StatusOK, w.Code)

	_, w = app.ExecuteRequestAndParse(t, http.MethodPost, "/auth/reset-password", "", reset)
	require.Equal(t, http.StatusNotFound, w.Code, "a code resets the password once")

	_, w = app.ExecuteRequestAndParse(t, http.MethodPost, "/auth/login", "", map[string]any{"email": email, "password": "correct-horse"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	_, w = app.ExecuteRequestAndParse(t, http.MethodPost, "/auth/login", "", map[string]any{"email": email, "password": "battery-staple"})
	require.Equal(t, http.StatusOK, w.Code)
}
