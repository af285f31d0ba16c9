package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saleyard/auctions/internal/config"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/saleyard/auctions/internal/service"
)

// AuctionHandler serves the window read and the lifecycle run trigger.
type AuctionHandler struct {
	lifecycle *service.LifecycleService
	clock     domain.Clock
	cfg       *config.Config
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(lifecycle *service.LifecycleService, clock domain.Clock, cfg *config.Config) *AuctionHandler {
	return &AuctionHandler{lifecycle: lifecycle, clock: clock, cfg: cfg}
}

// GetWindow godoc
// GET /api/auctions/window
// Returns the current and next weekly auction windows.
func (h *AuctionHandler) GetWindow(c *gin.Context) {
	respondSuccess(c, http.StatusOK, h.lifecycle.CurrentWindow(h.clock.Now()))
}

// Run godoc
// POST /internal/auctions/run [X-Run-Secret]
// The external cron trigger. Runs one lifecycle pass synchronously and
// returns the report; safe to call concurrently with the in-process ticker.
func (h *AuctionHandler) Run(c *gin.Context) {
	secret := c.GetHeader("X-Run-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.Scheduler.RunSecret)) != 1 {
		respondError(c, http.StatusUnauthorized, "ERR_RUN_SECRET", domain.ErrRunSecretInvalid.Error())
		return
	}

	report, err := h.lifecycle.Run(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "lifecycle run failed")
		return
	}
	respondSuccess(c, http.StatusOK, report)
}
