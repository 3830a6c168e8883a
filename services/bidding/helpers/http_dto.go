package helpers

import (
	"time"

	"auction-settlement/internal/models"
)

// Request/Response DTOs

// CreateAuctionRequest is bound from JSON or a multipart form with an optional "image" file
type CreateAuctionRequest struct {
	BidID           string        `json:"bid_id" form:"bid_id" binding:"omitempty,len=7"`
	BidDescription  string        `json:"bid_description" form:"bid_description" binding:"required,max=1000"`
	ItemDescription string        `json:"item_description" form:"item_description" binding:"required,max=1000"`
	StartingAmount  models.Amount `json:"starting_amount" form:"starting_amount"`
	Requirements    []string      `json:"requirements" form:"requirements"`
	Categories      []string      `json:"categories" form:"categories" binding:"required,min=1,max=3"`
	ClosesAt        time.Time     `json:"closes_at" form:"closes_at" time_format:"2006-01-02T15:04:05Z07:00" binding:"required"`
}

// UpdateAuctionRequest carries the fields to change; absent fields stay as they are
type UpdateAuctionRequest struct {
	BidDescription  *string        `json:"bid_description" form:"bid_description"`
	ItemDescription *string        `json:"item_description" form:"item_description"`
	StartingAmount  *models.Amount `json:"starting_amount" form:"starting_amount"`
	Requirements    []string       `json:"requirements" form:"requirements"`
	Categories      []string       `json:"categories" form:"categories" binding:"omitempty,min=1,max=3"`
	ClosesAt        *time.Time     `json:"closes_at" form:"closes_at" time_format:"2006-01-02T15:04:05Z07:00"`
}

// Patch converts the request into an auction patch
func (r UpdateAuctionRequest) Patch() models.AuctionPatch {
	return models.AuctionPatch{
		BidDescription:  r.BidDescription,
		ItemDescription: r.ItemDescription,
		StartingAmount:  r.StartingAmount,
		Requirements:    r.Requirements,
		Categories:      r.Categories,
		ClosesAt:        r.ClosesAt,
	}
}

// ListAuctionsQuery is bound from the query string
type ListAuctionsQuery struct {
	Page   int        `form:"page" binding:"omitempty,min=1"`
	Limit  int        `form:"limit" binding:"omitempty,min=1,max=100"`
	Search string     `form:"search"`
	From   *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To     *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// PageQuery is bound from the query string
type PageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

type PlaceBidRequest struct {
	AuctionID string        `json:"auction_id" binding:"required"`
	Amount    models.Amount `json:"amount" binding:"required,gt=0"`
}

type AmendBidRequest struct {
	Amount models.Amount `json:"amount" binding:"required,gt=0"`
}

type BidResponse struct {
	BidID     string        `json:"bid_id"`
	AuctionID string        `json:"auction_id"`
	UserID    string        `json:"user_id"`
	Amount    models.Amount `json:"amount"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

// NewBidResponse formats a bid for the API
func NewBidResponse(bid models.Bid) BidResponse {
	return BidResponse{
		BidID:     bid.ID,
		AuctionID: bid.AuctionID,
		UserID:    bid.UserID,
		Amount:    bid.Amount,
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: bid.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// BidViewResponse is a bid with its bidder's public profile
type BidViewResponse struct {
	BidResponse
	Bidder models.PublicUser `json:"bidder"`
}

// NewBidViewResponse formats a listed bid for the API
func NewBidViewResponse(view models.BidView) BidViewResponse {
	return BidViewResponse{BidResponse: NewBidResponse(view.Bid), Bidder: view.Bidder}
}

// RegisterRequest is bound from JSON or a multipart form with an optional "document" file
type RegisterRequest struct {
	FirstName      string `json:"first_name" form:"first_name" binding:"required"`
	LastName       string `json:"last_name" form:"last_name" binding:"required"`
	CompanyName    string `json:"company_name" form:"company_name"`
	CompanyAddress string `json:"company_address" form:"company_address"`
	Phone          string `json:"phone" form:"phone" binding:"required"`
	AlternatePhone string `json:"alternate_phone" form:"alternate_phone"`
	RCNumber       string `json:"rc_number" form:"rc_number"`
	PostalCode     string `json:"postal_code" form:"postal_code"`
	Email          string `json:"email" form:"email" binding:"required,email"`
	Password       string `json:"password" form:"password" binding:"required,min=8"`
}

type VerifyEmailRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Code   string `json:"code" binding:"required,len=6,numeric"`
}

type ResendCodeRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required,len=6,numeric"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}
