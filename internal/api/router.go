package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saleyard/auctions/internal/api/handler"
	"github.com/saleyard/auctions/internal/api/middleware"
	"github.com/saleyard/auctions/internal/config"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/saleyard/auctions/internal/repository"
	"github.com/saleyard/auctions/internal/service"
	"github.com/saleyard/auctions/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	BidSvc       *service.BidService
	LifecycleSvc *service.LifecycleService
	ListingRepo  *repository.ListingRepository
	BidRepo      *repository.BidRepository
	Clock        domain.Clock
	Hub          *ws.Hub
	Cfg          *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	listingH := handler.NewListingHandler(deps.ListingRepo, deps.BidRepo)
	bidH := handler.NewBidHandler(deps.BidSvc)
	auctionH := handler.NewAuctionHandler(deps.LifecycleSvc, deps.Clock, deps.Cfg)
	adminH := handler.NewAdminHandler(deps.ListingRepo, deps.LifecycleSvc, deps.Clock)

	// ── JWT middleware (shared) ───────────────────────────────────────────────
	jwtMW := middleware.JWTMiddleware([]byte(deps.Cfg.JWT.AccessSecret))

	// ── Rate limiters ─────────────────────────────────────────────────────────
	bidRL := middleware.RateLimitMiddleware(10) // 10 bids/s per bidder is plenty

	api := r.Group("/api")
	{
		// ── Auction window (public) ──────────────────────────────────────────
		api.GET("/auctions/window", auctionH.GetWindow)

		// ── Listings (reads public) ──────────────────────────────────────────
		listings := api.Group("/listings")
		{
			listings.GET("/:id", listingH.GetByID)
			listings.GET("/:id/bids", listingH.ListBids)
		}

		// ── Authenticated routes ──────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			authed.POST("/listings", listingH.Create)
			authed.POST("/listings/:id/bids", bidRL, bidH.PlaceBid)
			authed.GET("/bids/my", listingH.MyBids)

			// ── Listing review ────────────────────────────────────────────────
			admin := authed.Group("/admin")
			admin.Use(middleware.AdminMiddleware())
			{
				admin.POST("/listings/:id/approve", adminH.Approve)
				admin.POST("/listings/:id/reject", adminH.Reject)
			}
		}
	}

	// ── Lifecycle run trigger (shared-secret, not JWT) ────────────────────────
	r.POST("/internal/auctions/run", auctionH.Run)

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only the saleyard
// front ends.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := map[string]bool{
				"https://saleyard.co.uk":     true,
				"https://www.saleyard.co.uk": true,
			}
			if allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Run-Secret")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
