package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event kinds, as published to observers and stored in the journal.
const (
	KindMarketCreated  = "market_created"
	KindBetPlaced      = "bet_placed"
	KindMarketResolved = "market_resolved"
	KindFundsClaimed   = "funds_claimed"
	KindFeeRateUpdated = "fee_rate_updated"
	KindFeesWithdrawn  = "fees_withdrawn"
)

// Event is a notification emitted after a successful mutation.
type Event interface {
	Kind() string
	// Market returns the market the event belongs to, or 0 for ledger-wide events.
	Market() uint64
}

// Notifier receives events after they are committed, in commit order.
// Errors are logged by the ledger and never undo the operation.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type MarketCreated struct {
	MarketID   uint64    `json:"market_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	EndsAt     time.Time `json:"ends_at"`
	Confidence uint8     `json:"confidence"`
	Ref        string    `json:"ref,omitempty"` // external market mirrored by this one
}

type BetPlaced struct {
	MarketID uint64         `json:"market_id"`
	Bettor   common.Address `json:"bettor"`
	Side     Side           `json:"side"`
	Amount   *uint256.Int   `json:"amount"`
}

type MarketResolved struct {
	MarketID     uint64       `json:"market_id"`
	Outcome      Side         `json:"outcome"`
	TotalWith    *uint256.Int `json:"total_with"`
	TotalAgainst *uint256.Int `json:"total_against"`
}

type FundsClaimed struct {
	MarketID uint64         `json:"market_id"`
	Claimant common.Address `json:"claimant"`
	Side     Side           `json:"side"`
	Amount   *uint256.Int   `json:"amount"`
}

type FeeRateUpdated struct {
	Previous uint64 `json:"previous_bps"`
	Current  uint64 `json:"current_bps"`
}

type FeesWithdrawn struct {
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

func (MarketCreated) Kind() string  { return KindMarketCreated }
func (BetPlaced) Kind() string      { return KindBetPlaced }
func (MarketResolved) Kind() string { return KindMarketResolved }
func (FundsClaimed) Kind() string   { return KindFundsClaimed }
func (FeeRateUpdated) Kind() string { return KindFeeRateUpdated }
func (FeesWithdrawn) Kind() string  { return KindFeesWithdrawn }

func (e MarketCreated) Market() uint64  { return e.MarketID }
func (e BetPlaced) Market() uint64      { return e.MarketID }
func (e MarketResolved) Market() uint64 { return e.MarketID }
func (e FundsClaimed) Market() uint64   { return e.MarketID }
func (FeeRateUpdated) Market() uint64   { return 0 }
func (FeesWithdrawn) Market() uint64    { return 0 }
