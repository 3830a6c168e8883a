package handler

import (
	"net/http"

	"auction-settlement/internal/auctions"
	model "auction-settlement/internal/models"
	"auction-settlement/services/bidding/helpers"
	"auction-settlement/utils"

	"github.com/gin-gonic/gin"
)

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBind(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}
	image, err := formUpload(c, "image")
	if err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.service.CreateAuction(c.Request.Context(), auctions.CreateRequest{
		ID:              req.BidID,
		BidDescription:  req.BidDescription,
		ItemDescription: req.ItemDescription,
		StartingAmount:  req.StartingAmount,
		Requirements:    req.Requirements,
		Categories:      req.Categories,
		ClosesAt:        req.ClosesAt,
	}, image)
	if err != nil {
		helpers.HandleServiceError(c, "CreateAuctionHandler", err, map[string]any{"bid_id": req.BidID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.ID,
		"closes_at":  auction.ClosesAt,
	})
}

// UpdateAuctionHandler handles PUT /auctions/:auction_id
func (h *BiddingHandler) UpdateAuctionHandler(c *gin.Context) {
	var req helpers.UpdateAuctionRequest
	if err := c.ShouldBind(&req); err != nil {
		helpers.HandleBindError(c, "UpdateAuctionHandler", err)
		return
	}
	image, err := formUpload(c, "image")
	if err != nil {
		helpers.HandleBindError(c, "UpdateAuctionHandler", err)
		return
	}
	auctionID := c.Param("auction_id")

	auction, err := h.service.UpdateAuction(c.Request.Context(), auctionID, req.Patch(), image)
	if err != nil {
		helpers.HandleServiceError(c, "UpdateAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction updated successfully")
	helpers.LogSuccess("UpdateAuctionHandler", "auction updated successfully", map[string]any{"auction_id": auctionID})
}

// DeleteAuctionHandler handles DELETE /auctions/:auction_id
func (h *BiddingHandler) DeleteAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	if err := h.service.DeleteAuction(c.Request.Context(), auctionID); err != nil {
		helpers.HandleServiceError(c, "DeleteAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "auction deleted successfully")
	helpers.LogSuccess("DeleteAuctionHandler", "auction deleted successfully", map[string]any{"auction_id": auctionID})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, auction, "auction retrieved successfully")
}

// ListAuctionsHandler handles GET /auctions
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	var query helpers.ListAuctionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		helpers.HandleBindError(c, "ListAuctionsHandler", err)
		return
	}

	page, err := h.service.ListAuctions(c.Request.Context(), model.AuctionQuery{
		Page:   query.Page,
		Limit:  query.Limit,
		Search: query.Search,
		From:   query.From,
		To:     query.To,
	})
	if err != nil {
		helpers.HandleServiceError(c, "ListAuctionsHandler", err, map[string]any{"search": query.Search})
		return
	}

	utils.JSONResponse(c, http.StatusOK, page, "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"page":  page.Page,
		"count": len(page.Items),
		"total": page.Total,
	})
}
