// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs exchanged with connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeBidAccepted   MsgType = "bid_accepted"
	MsgTypeListingClosed MsgType = "listing_closed"
	MsgTypeError         MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// Inbound — clients pick which listings they watch
// ──────────────────────────────────────────────────────────────────────────────

// SubscribeRequest is the only inbound message: clients subscribe to (or
// unsubscribe from) one listing's event stream, typically the listing-detail
// page they have open.
type SubscribeRequest struct {
	Action    string `json:"action"` // "subscribe" | "unsubscribe"
	ListingID string `json:"listing_id"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Outbound
// ──────────────────────────────────────────────────────────────────────────────

// BidAcceptedMessage is pushed to a listing's watchers after each accepted
// bid so the page can refresh the current bid and countdown without polling.
type BidAcceptedMessage struct {
	Type       MsgType         `json:"type"`
	ListingID  uuid.UUID       `json:"listing_id"`
	Amount     decimal.Decimal `json:"amount"`
	BidCount   int             `json:"bid_count"`
	NextBid    decimal.Decimal `json:"next_bid"` // minimum for the next bid
	AuctionEnd time.Time       `json:"auction_end"`
	Extended   bool            `json:"extended"` // soft close moved the end time
	Timestamp  time.Time       `json:"timestamp"`
}

// ListingClosedMessage is pushed when the scheduler closes a listing.
type ListingClosedMessage struct {
	Type      MsgType          `json:"type"`
	ListingID uuid.UUID        `json:"listing_id"`
	Status    string           `json:"status"` // completed | not_sold | queued (relisted)
	FinalBid  *decimal.Decimal `json:"final_bid,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ErrorMessage reports a protocol error back to one client.
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
