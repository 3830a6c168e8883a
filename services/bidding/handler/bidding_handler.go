package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"auction-settlement/internal/auctions"
	model "auction-settlement/internal/models"
	"auction-settlement/internal/settlement"
	"auction-settlement/services/bidding/helpers"
	"auction-settlement/utils"

	"github.com/gin-gonic/gin"
)

// MaxUploadSize caps image and document uploads
const MaxUploadSize = 5 << 20

type SettlementServiceInterface interface {
	CreateAuction(ctx context.Context, req auctions.CreateRequest, image *settlement.Upload) (model.Auction, error)
	UpdateAuction(ctx context.Context, id string, patch model.AuctionPatch, image *settlement.Upload) (model.Auction, error)
	DeleteAuction(ctx context.Context, id string) error
	GetAuction(ctx context.Context, id string) (model.Auction, error)
	ListAuctions(ctx context.Context, query model.AuctionQuery) (model.Page[model.Auction], error)

	PlaceBid(ctx context.Context, auctionID, userID string, amount model.Amount) (model.Bid, error)
	AmendBid(ctx context.Context, bidID, userID string, amount model.Amount) (model.Bid, error)
	WithdrawBid(ctx context.Context, bidID, userID string) error
	GetBid(ctx context.Context, bidID string) (model.Bid, error)
	ListBids(ctx context.Context, auctionID string, page, limit int) (model.Page[model.BidView], error)
	WinningBid(ctx context.Context, auctionID string) (model.BidView, error)

	Register(ctx context.Context, req settlement.RegisterRequest, document *settlement.Upload) (model.PublicUser, error)
	GetUser(ctx context.Context, id string) (model.PublicUser, error)
	ApproveUser(ctx context.Context, id string) (model.PublicUser, error)
	RejectUser(ctx context.Context, id string) error
	VerifyEmail(ctx context.Context, userID, code string) (model.PublicUser, error)
	ResendVerification(ctx context.Context, userID string) error
	Login(ctx context.Context, email, password string) (settlement.LoginResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

type BiddingHandler struct {
	service SettlementServiceInterface
}

func NewBiddingHandler(service SettlementServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// RecordBidHandler handles POST /bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}
	userID := helpers.CurrentUserID(c)

	bid, err := h.service.PlaceBid(c.Request.Context(), req.AuctionID, userID, req.Amount)
	if err != nil {
		helpers.HandleServiceError(c, "RecordBidHandler", err, map[string]any{
			"auction_id": req.AuctionID,
			"user_id":    userID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(bid), "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     bid.ID,
		"auction_id": bid.AuctionID,
		"user_id":    userID,
		"amount":     bid.Amount.String(),
	})
}

// AmendBidHandler handles PATCH /bids/:bid_id
func (h *BiddingHandler) AmendBidHandler(c *gin.Context) {
	var req helpers.AmendBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "AmendBidHandler", err)
		return
	}
	bidID := c.Param("bid_id")
	userID := helpers.CurrentUserID(c)

	bid, err := h.service.AmendBid(c.Request.Context(), bidID, userID, req.Amount)
	if err != nil {
		helpers.HandleServiceError(c, "AmendBidHandler", err, map[string]any{"bid_id": bidID, "user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "bid updated successfully")
	helpers.LogSuccess("AmendBidHandler", "bid updated successfully", map[string]any{
		"bid_id": bid.ID,
		"amount": bid.Amount.String(),
	})
}

// WithdrawBidHandler handles DELETE /bids/:bid_id
func (h *BiddingHandler) WithdrawBidHandler(c *gin.Context) {
	bidID := c.Param("bid_id")
	userID := helpers.CurrentUserID(c)

	if err := h.service.WithdrawBid(c.Request.Context(), bidID, userID); err != nil {
		helpers.HandleServiceError(c, "WithdrawBidHandler", err, map[string]any{"bid_id": bidID, "user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "bid withdrawn successfully")
	helpers.LogSuccess("WithdrawBidHandler", "bid withdrawn successfully", map[string]any{"bid_id": bidID})
}

// GetBidHandler handles GET /bids/:bid_id
func (h *BiddingHandler) GetBidHandler(c *gin.Context) {
	bidID := c.Param("bid_id")
	bid, err := h.service.GetBid(c.Request.Context(), bidID)
	if err != nil {
		helpers.HandleServiceError(c, "GetBidHandler", err, map[string]any{"bid_id": bidID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "bid retrieved successfully")
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	var query helpers.PageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		helpers.HandleBindError(c, "GetBidsByAuctionHandler", err)
		return
	}
	auctionID := c.Param("auction_id")

	page, err := h.service.ListBids(c.Request.Context(), auctionID, query.Page, query.Limit)
	if err != nil {
		helpers.HandleServiceError(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	views := make([]helpers.BidViewResponse, 0, len(page.Items))
	for _, v := range page.Items {
		views = append(views, helpers.NewBidViewResponse(v))
	}
	resp := model.Page[helpers.BidViewResponse]{
		Items:    views,
		Total:    page.Total,
		Page:     page.Page,
		Limit:    page.Limit,
		LastPage: page.LastPage,
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(views),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	view, err := h.service.WinningBid(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidViewResponse(view), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     view.ID,
		"auction_id": view.AuctionID,
		"user_id":    view.UserID,
		"amount":     view.Amount.String(),
	})
}

// formUpload reads an optional multipart file. A missing field yields nil.
func formUpload(c *gin.Context, field string) (*settlement.Upload, error) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil, nil
	}
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if header.Size > MaxUploadSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", field, MaxUploadSize)
	}

	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxUploadSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", field, MaxUploadSize)
	}
	return &settlement.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
