package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/saleyard/auctions/internal/api/middleware"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/saleyard/auctions/internal/service"
	"github.com/shopspring/decimal"
)

// BidHandler serves bid placement.
type BidHandler struct {
	bidSvc *service.BidService
}

// NewBidHandler creates a BidHandler.
func NewBidHandler(bidSvc *service.BidService) *BidHandler {
	return &BidHandler{bidSvc: bidSvc}
}

// PlaceBid godoc
// POST /api/listings/:id/bids [JWT]
// Body: {"amount":"150"}
func (h *BidHandler) PlaceBid(c *gin.Context) {
	bidderID := middleware.GetUserID(c)

	listingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_LISTING_ID", "invalid listing id")
		return
	}

	var body struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a whole number of pounds")
		return
	}

	result, err := h.bidSvc.PlaceBid(c.Request.Context(), domain.PlaceBidRequest{
		ListingID: listingID,
		BidderID:  bidderID,
		Amount:    amount,
	})
	if err != nil {
		h.respondBidError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, gin.H{
		"bid":         result.Bid,
		"current_bid": result.Listing.CurrentBid,
		"bid_count":   result.Listing.BidCount,
		"next_bid":    result.Listing.NextMinimumBid(),
		"auction_end": result.Listing.AuctionEnd,
		"extended":    result.Extended,
	})
}

// respondBidError maps admission errors to HTTP responses. Rejected bids get
// a distinct code each so the client can render the right prompt; a too-low
// bid carries the minimum acceptable amount.
func (h *BidHandler) respondBidError(c *gin.Context, err error) {
	var tooLow *domain.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success":     false,
			"error":       tooLow.Error(),
			"code":        "ERR_BID_TOO_LOW",
			"minimum_bid": tooLow.Minimum,
		})
	case errors.Is(err, domain.ErrInvalidAmount):
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", err.Error())
	case errors.Is(err, domain.ErrPaymentMethodRequired):
		respondError(c, http.StatusPaymentRequired, "ERR_PAYMENT_METHOD_REQUIRED", err.Error())
	case errors.Is(err, domain.ErrListingNotFound):
		respondError(c, http.StatusNotFound, "ERR_LISTING_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrListingNotLive):
		respondError(c, http.StatusConflict, "ERR_LISTING_NOT_LIVE", err.Error())
	case errors.Is(err, domain.ErrAuctionEnded):
		respondError(c, http.StatusConflict, "ERR_AUCTION_ENDED", err.Error())
	case errors.Is(err, domain.ErrWriteConflict):
		respondError(c, http.StatusServiceUnavailable, "ERR_BUSY", "listing is busy, try again")
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not place bid")
	}
}
