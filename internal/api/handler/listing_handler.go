package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/saleyard/auctions/internal/api/middleware"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/saleyard/auctions/internal/repository"
	"github.com/shopspring/decimal"
)

// ListingHandler serves listing submission and reads.
type ListingHandler struct {
	listings *repository.ListingRepository
	bids     *repository.BidRepository
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings *repository.ListingRepository, bids *repository.BidRepository) *ListingHandler {
	return &ListingHandler{listings: listings, bids: bids}
}

// Create godoc
// POST /api/listings [JWT]
// Body: {"title":"...","starting_price":"100","reserve_price":"150",
//
//	"buy_now_price":"400","relist_until_sold":true}
//
// New listings always enter review; they join an auction window only when an
// admin approves them.
func (h *ListingHandler) Create(c *gin.Context) {
	sellerID := middleware.GetUserID(c)

	var body struct {
		Title           string `json:"title"          binding:"required"`
		StartingPrice   string `json:"starting_price" binding:"required"`
		ReservePrice    string `json:"reserve_price"`
		BuyNowPrice     string `json:"buy_now_price"`
		RelistUntilSold bool   `json:"relist_until_sold"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "title must not be blank")
		return
	}

	starting, err := parsePounds(body.StartingPrice)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "starting_price must be a positive whole number of pounds")
		return
	}
	reserve := decimal.Zero
	if body.ReservePrice != "" {
		if reserve, err = parsePounds(body.ReservePrice); err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "reserve_price must be a positive whole number of pounds")
			return
		}
	}
	var buyNow *decimal.Decimal
	if body.BuyNowPrice != "" {
		bn, err := parsePounds(body.BuyNowPrice)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "buy_now_price must be a positive whole number of pounds")
			return
		}
		buyNow = &bn
	}

	now := time.Now().UTC()
	l := &domain.Listing{
		ID:              uuid.New(),
		SellerID:        sellerID,
		Title:           strings.TrimSpace(body.Title),
		Status:          domain.StatusPendingApproval,
		StartingPrice:   starting,
		ReservePrice:    reserve,
		BuyNowPrice:     buyNow,
		RelistUntilSold: body.RelistUntilSold,
		FlatFee:         decimal.Zero,
		BuyerSurcharge:  decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.listings.Create(c.Request.Context(), l); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not create listing")
		return
	}
	respondSuccess(c, http.StatusCreated, l)
}

// GetByID godoc
// GET /api/listings/:id
func (h *ListingHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_LISTING_ID", "invalid listing id")
		return
	}

	l, err := h.listings.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrListingNotFound) {
			respondError(c, http.StatusNotFound, "ERR_LISTING_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch listing")
		return
	}

	payload := gin.H{"listing": l}
	if l.IsLive() {
		payload["next_bid"] = l.NextMinimumBid()
	}
	respondSuccess(c, http.StatusOK, payload)
}

// ListBids godoc
// GET /api/listings/:id/bids?page=1&limit=20
func (h *ListingHandler) ListBids(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_LISTING_ID", "invalid listing id")
		return
	}
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	bids, err := h.bids.ListByListingPage(c.Request.Context(), id, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch bids")
		return
	}
	respondList(c, bids, len(bids), page, limit)
}

// MyBids godoc
// GET /api/bids/my?page=1&limit=20 [JWT]
func (h *ListingHandler) MyBids(c *gin.Context) {
	bidderID := middleware.GetUserID(c)
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	bids, err := h.bids.ListByBidder(c.Request.Context(), bidderID, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch bids")
		return
	}
	respondList(c, bids, len(bids), page, limit)
}

// parsePounds parses a positive whole-pound amount.
func parsePounds(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() || !d.IsInteger() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return d, nil
}
