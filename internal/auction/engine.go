package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/metrics"
)

// Bid is an accepted bid. Sequence is the bid count after applying it.
type Bid struct {
	ID        uuid.UUID       `json:"id"`
	ListingID uuid.UUID       `json:"listingId"`
	BidderID  uuid.UUID       `json:"bidderId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  enums.Currency  `json:"currency"`
	Sequence  int             `json:"sequence"`
	PlacedAt  time.Time       `json:"placedAt"`
}

// MinimumNextBid is the highest bid plus the increment, or the starting
// price when nobody has bid yet.
func MinimumNextBid(terms market.AuctionTerms) decimal.Decimal {
	if terms.HighestBid == nil {
		return terms.StartingPrice
	}
	return terms.HighestBid.Add(terms.MinimumBidIncrement)
}

// IsEnded reports whether bidding has closed at now.
func IsEnded(terms market.AuctionTerms, now time.Time) bool {
	return now.After(terms.EndTime)
}

// IsReserveMet reports whether the reserve is cleared. An auction without a
// reserve always clears it, bids or not; whether anyone bid is up to
// Outcome.
func IsReserveMet(terms market.AuctionTerms) bool {
	if terms.ReservePrice == nil {
		return true
	}
	return terms.HighestBid != nil && terms.HighestBid.GreaterThanOrEqual(*terms.ReservePrice)
}

// Engine validates and applies bids. Callers serialize calls per listing.
type Engine struct {
	metrics *metrics.EngineMetrics
}

func NewEngine(engineMetrics *metrics.EngineMetrics) *Engine {
	return &Engine{metrics: engineMetrics}
}

// PlaceBid returns a copy of the listing with the bid applied. Checks run in
// a fixed order, so a bid failing several reports the first: closed or
// ended, not started, below the minimum next bid, placed by the creator.
func (e *Engine) PlaceBid(listing market.Listing, bidderID uuid.UUID, amount decimal.Decimal, now time.Time) (market.Listing, Bid, error) {
	listing, bid, err := e.placeBid(listing, bidderID, amount, now)
	e.metrics.ObserveBid(outcomeOf(err))
	return listing, bid, err
}

func (e *Engine) placeBid(listing market.Listing, bidderID uuid.UUID, amount decimal.Decimal, now time.Time) (market.Listing, Bid, error) {
	if listing.Type != enums.ListingTypeAuction || listing.Auction == nil {
		return market.Listing{}, Bid{}, pkgerrors.New(pkgerrors.CodeValidation, "listing is not an auction")
	}
	terms := listing.Auction
	if listing.Status.IsClosed() || IsEnded(*terms, now) {
		return market.Listing{}, Bid{}, pkgerrors.New(pkgerrors.CodeAuctionEnded, "auction has ended").
			WithDetails(map[string]any{"listing_id": listing.ID, "end_time": terms.EndTime})
	}
	if listing.Status != enums.ListingStatusActive || now.Before(terms.StartTime) {
		return market.Listing{}, Bid{}, pkgerrors.New(pkgerrors.CodeAuctionNotStarted, "auction has not started").
			WithDetails(map[string]any{"listing_id": listing.ID, "start_time": terms.StartTime})
	}
	minimum := MinimumNextBid(*terms)
	if amount.LessThan(minimum) {
		return market.Listing{}, Bid{}, pkgerrors.New(pkgerrors.CodeBidTooLow, "bid is below the minimum next bid").
			WithDetails(map[string]any{
				"listing_id":   listing.ID,
				"amount":       amount.String(),
				"minimum_next": minimum.String(),
			})
	}
	if bidderID == listing.CreatorID {
		return market.Listing{}, Bid{}, pkgerrors.New(pkgerrors.CodeSelfBid, "cannot bid on your own auction")
	}

	next := listing.Clone()
	highest := amount
	bidder := bidderID
	next.Auction.HighestBid = &highest
	next.Auction.HighestBidderID = &bidder
	next.Auction.BidCount++
	next.UpdatedAt = now

	return next, Bid{
		ID:        uuid.New(),
		ListingID: listing.ID,
		BidderID:  bidderID,
		Amount:    amount,
		Currency:  terms.Currency,
		Sequence:  next.Auction.BidCount,
		PlacedAt:  now,
	}, nil
}

// Result is the close decision for an auction at a point in time.
type Result int

const (
	ResultOpen Result = iota
	ResultNoWinner
	ResultWinner
)

func (r Result) String() string {
	switch r {
	case ResultOpen:
		return "open"
	case ResultNoWinner:
		return "no_winner"
	case ResultWinner:
		return "winner"
	default:
		return "unknown"
	}
}

// Outcome decides how an auction closes without changing it. There is a
// winner only if someone bid and the reserve is met.
func Outcome(listing market.Listing, now time.Time) Result {
	if listing.Auction == nil || !IsEnded(*listing.Auction, now) {
		return ResultOpen
	}
	terms := listing.Auction
	if terms.HighestBid != nil && terms.HighestBidderID != nil && IsReserveMet(*terms) {
		return ResultWinner
	}
	return ResultNoWinner
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return metrics.OutcomeError
	}
	switch typed.Code() {
	case pkgerrors.CodeBidTooLow:
		return metrics.OutcomeBidTooLow
	case pkgerrors.CodeSelfBid:
		return metrics.OutcomeSelfBid
	case pkgerrors.CodeAuctionEnded, pkgerrors.CodeAuctionNotStarted:
		return metrics.OutcomeAuctionClosed
	default:
		return metrics.OutcomeError
	}
}
