package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/saleyard/auctions/internal/repository"
	"github.com/saleyard/auctions/internal/service"
)

// AdminHandler serves the listing review endpoints.
type AdminHandler struct {
	listings  *repository.ListingRepository
	lifecycle *service.LifecycleService
	clock     domain.Clock
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(listings *repository.ListingRepository, lifecycle *service.LifecycleService, clock domain.Clock) *AdminHandler {
	return &AdminHandler{listings: listings, lifecycle: lifecycle, clock: clock}
}

// Approve godoc
// POST /api/admin/listings/:id/approve [JWT, admin]
// Queues a pending listing into the soonest auction window that has not yet
// opened, so approval mid-week never drops an item into a half-finished sale.
func (h *AdminHandler) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_LISTING_ID", "invalid listing id")
		return
	}

	now := h.clock.Now()
	w := h.lifecycle.CurrentWindow(now)
	start, end := w.CurrentStart, w.CurrentEnd
	if !now.Before(start) {
		start, end = w.NextStart, w.NextEnd
	}

	if err := h.listings.Approve(c.Request.Context(), id, start, end); err != nil {
		h.respondReviewError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"listing_id":    id,
		"status":        domain.StatusQueued,
		"auction_start": start,
		"auction_end":   end,
	})
}

// Reject godoc
// POST /api/admin/listings/:id/reject [JWT, admin]
func (h *AdminHandler) Reject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_LISTING_ID", "invalid listing id")
		return
	}

	if err := h.listings.Reject(c.Request.Context(), id); err != nil {
		h.respondReviewError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"listing_id": id,
		"status":     domain.StatusRejected,
	})
}

func (h *AdminHandler) respondReviewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrListingNotPending):
		respondError(c, http.StatusConflict, "ERR_LISTING_NOT_PENDING", err.Error())
	case errors.Is(err, domain.ErrListingNotFound):
		respondError(c, http.StatusNotFound, "ERR_LISTING_NOT_FOUND", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not update listing")
	}
}
