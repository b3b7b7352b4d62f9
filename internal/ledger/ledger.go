package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TransferPort moves the betting asset between participants and the
// ledger's custody. Implementations may fail and may run arbitrary code.
type TransferPort interface {
	PullFrom(ctx context.Context, from common.Address, amount *uint256.Int) error
	PushTo(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// Journal durably records events. Record runs apply, which performs the
// operation's transfer, and persists ev only if apply succeeds; a port that
// shares the journal's storage commits both together. When Record fails the
// operation fails and the ledger is left unchanged.
type Journal interface {
	Record(ctx context.Context, ev Event, apply func(ctx context.Context) error) error
}

// Config holds the authority identity and fee settings of a ledger.
type Config struct {
	Authority     common.Address
	FeeRateBPS    uint64
	MaxFeeRateBPS uint64 // 0 means DefaultMaxFeeRate
}

// Option customises a Ledger at construction.
type Option func(*Ledger)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithJournal sets the durable record every mutation must reach.
func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

// WithNotifier sets the sink that receives events after each mutation.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

// maxDurationSeconds keeps endsAt representable as a time.Duration offset.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// Ledger is the market registry and accounting engine. All operations are
// serialized behind one mutex, which is held across calls into the
// TransferPort and Journal; neither may call back into the same Ledger.
type Ledger struct {
	mu        sync.Mutex
	authority common.Address
	maxFee    uint64
	feeRate   uint64
	count     uint64
	markets   map[uint64]*market
	held      *uint256.Int
	port      TransferPort
	journal   Journal
	notifier  Notifier
	now       func() time.Time
}

// New returns an empty ledger.
func New(cfg Config, port TransferPort, opts ...Option) (*Ledger, error) {
	if cfg.Authority == (common.Address{}) {
		return nil, fmt.Errorf("%w: authority address is required", ErrInvalidArgument)
	}
	if port == nil {
		return nil, fmt.Errorf("%w: transfer port is required", ErrInvalidArgument)
	}
	maxFee := cfg.MaxFeeRateBPS
	if maxFee == 0 {
		maxFee = DefaultMaxFeeRate
	}
	if maxFee > BasisPoints {
		return nil, fmt.Errorf("%w: max fee rate %d bp above %d", ErrInvalidArgument, maxFee, BasisPoints)
	}
	if cfg.FeeRateBPS > maxFee {
		return nil, fmt.Errorf("%w: fee rate %d bp above cap %d", ErrInvalidArgument, cfg.FeeRateBPS, maxFee)
	}

	l := &Ledger{
		authority: cfg.Authority,
		maxFee:    maxFee,
		feeRate:   cfg.FeeRateBPS,
		markets:   make(map[uint64]*market),
		held:      new(uint256.Int),
		port:      port,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Authority returns the address allowed to run privileged operations.
func (l *Ledger) Authority() common.Address { return l.authority }

// CreateMarket opens a new market whose betting window is
// [now, now+durationSeconds) and returns its id. Times are kept to the
// millisecond.
func (l *Ledger) CreateMarket(ctx context.Context, caller common.Address, title string, durationSeconds int64, confidence int) (uint64, error) {
	return l.CreateMarketWithRef(ctx, caller, "", title, durationSeconds, confidence)
}

// CreateMarketWithRef is CreateMarket for a market that mirrors an external
// one. The journal records ref with the market so the pair is stored in the
// same commit.
func (l *Ledger) CreateMarketWithRef(ctx context.Context, caller common.Address, ref, title string, durationSeconds int64, confidence int) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.authority {
		return 0, ErrUnauthorized
	}
	if confidence < 0 || confidence > 100 {
		return 0, fmt.Errorf("%w: confidence %d outside [0,100]", ErrInvalidArgument, confidence)
	}
	if durationSeconds <= 0 || durationSeconds > maxDurationSeconds {
		return 0, fmt.Errorf("%w: duration %ds", ErrInvalidArgument, durationSeconds)
	}

	now := l.now().Truncate(time.Millisecond)
	m := newMarket(l.count+1, title, now, now.Add(time.Duration(durationSeconds)*time.Second), uint8(confidence))
	ev := MarketCreated{
		MarketID:   m.id,
		Title:      m.title,
		CreatedAt:  m.createdAt,
		EndsAt:     m.endsAt,
		Confidence: m.confidence,
		Ref:        ref,
	}
	if err := l.commit(ctx, ev, nil); err != nil {
		return 0, err
	}
	l.count = m.id
	l.markets[m.id] = m

	slog.Info("market created", "market", m.id, "title", title, "ends_at", m.endsAt, "confidence", confidence)
	l.notify(ctx, ev)
	return m.id, nil
}

// PlaceBet pulls amount from the caller and adds it to their stake on side.
// Nothing changes unless the transfer succeeds.
func (l *Ledger) PlaceBet(ctx context.Context, caller common.Address, id uint64, side Side, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.lookup(id)
	if err != nil {
		return err
	}
	if m.expired(l.now()) {
		return fmt.Errorf("market %d: %w", id, ErrMarketExpired)
	}
	if m.resolved {
		return fmt.Errorf("market %d: %w", id, ErrAlreadyResolved)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: bet amount must be positive", ErrInvalidArgument)
	}
	if !side.Valid() {
		return fmt.Errorf("%w: side %d", ErrInvalidArgument, uint8(side))
	}
	if caller == (common.Address{}) {
		return fmt.Errorf("%w: zero bettor address", ErrInvalidArgument)
	}

	total, overflow := new(uint256.Int).AddOverflow(m.totals[side], amount)
	if overflow {
		return fmt.Errorf("%w: side total overflows", ErrInvalidArgument)
	}
	held, overflow := new(uint256.Int).AddOverflow(l.held, amount)
	if overflow {
		return fmt.Errorf("%w: custody balance overflows", ErrInvalidArgument)
	}

	ev := BetPlaced{MarketID: id, Bettor: caller, Side: side, Amount: amount.Clone()}
	pull := func(ctx context.Context) error { return l.port.PullFrom(ctx, caller, amount) }
	if err := l.commit(ctx, ev, pull); err != nil {
		slog.Warn("bet failed", "market", id, "bettor", caller, "amount", amount.Dec(), "error", err)
		return fmt.Errorf("market %d: %w", id, err)
	}

	stake := m.stake(side, caller)
	m.stakes[side][caller] = stake.Add(stake, amount)
	m.totals[side] = total
	l.held = held

	l.notify(ctx, ev)
	return nil
}

// ResolveMarket records the winning side once the deadline has passed.
// Resolution is permanent.
func (l *Ledger) ResolveMarket(ctx context.Context, caller common.Address, id uint64, outcome Side) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.authority {
		return ErrUnauthorized
	}
	m, err := l.lookup(id)
	if err != nil {
		return err
	}
	if !m.expired(l.now()) {
		return fmt.Errorf("market %d: %w", id, ErrNotYetExpired)
	}
	if m.resolved {
		return fmt.Errorf("market %d: %w", id, ErrAlreadyResolved)
	}
	if !outcome.Valid() {
		return fmt.Errorf("%w: outcome %d", ErrInvalidArgument, uint8(outcome))
	}

	ev := MarketResolved{
		MarketID:     id,
		Outcome:      outcome,
		TotalWith:    m.totals[SideWith].Clone(),
		TotalAgainst: m.totals[SideAgainst].Clone(),
	}
	if err := l.commit(ctx, ev, nil); err != nil {
		return fmt.Errorf("market %d: %w", id, err)
	}
	m.resolved = true
	m.outcome = outcome

	slog.Info("market resolved", "market", id, "outcome", outcome,
		"total_with", m.totals[SideWith].Dec(), "total_against", m.totals[SideAgainst].Dec())
	l.notify(ctx, ev)
	return nil
}

// Claim pays the caller's winning stake plus their share of the losing pool
// and returns the amount paid. The stake is cleared before the payout is
// pushed and restored if the push fails.
func (l *Ledger) Claim(ctx context.Context, caller common.Address, id uint64) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.lookup(id)
	if err != nil {
		return nil, err
	}
	if !m.resolved {
		return nil, fmt.Errorf("market %d: %w", id, ErrNotResolved)
	}
	win := m.outcome
	stake, ok := m.stakes[win][caller]
	if !ok || stake.IsZero() {
		return nil, fmt.Errorf("market %d: %w", id, ErrNothingToClaim)
	}

	payout := Payout(stake, m.totals[win], m.totals[win.Opposite()], l.feeRate)
	if payout.Gt(l.held) {
		// Only reachable after WithdrawFees swept funds still owed.
		return nil, fmt.Errorf("market %d: %w: custody holds %s, payout %s", id, ErrTransferFailed, l.held.Dec(), payout.Dec())
	}

	delete(m.stakes[win], caller)
	prevHeld := l.held.Clone()
	l.held.Sub(l.held, payout)

	ev := FundsClaimed{MarketID: id, Claimant: caller, Side: win, Amount: payout.Clone()}
	push := func(ctx context.Context) error { return l.port.PushTo(ctx, caller, payout) }
	if err := l.commit(ctx, ev, push); err != nil {
		m.stakes[win][caller] = stake
		l.held = prevHeld
		slog.Warn("claim failed", "market", id, "claimant", caller, "amount", payout.Dec(), "error", err)
		return nil, fmt.Errorf("market %d: %w", id, err)
	}

	l.notify(ctx, ev)
	return payout, nil
}

// UpdateFeeRate replaces the fee rate applied to subsequent claims.
func (l *Ledger) UpdateFeeRate(ctx context.Context, caller common.Address, rateBPS uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.authority {
		return ErrUnauthorized
	}
	if rateBPS > l.maxFee {
		return fmt.Errorf("%w: fee rate %d bp above cap %d", ErrInvalidArgument, rateBPS, l.maxFee)
	}
	ev := FeeRateUpdated{Previous: l.feeRate, Current: rateBPS}
	if err := l.commit(ctx, ev, nil); err != nil {
		return err
	}
	l.feeRate = rateBPS

	slog.Info("fee rate updated", "previous_bps", ev.Previous, "current_bps", rateBPS)
	l.notify(ctx, ev)
	return nil
}

// WithdrawFees sends the ledger's entire held balance to the given address
// and returns the amount sent. This includes winnings not yet claimed; the
// authority is expected to account for outstanding claims before calling it.
func (l *Ledger) WithdrawFees(ctx context.Context, caller, to common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.authority {
		return nil, ErrUnauthorized
	}
	if to == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero withdrawal address", ErrInvalidArgument)
	}
	if l.held.IsZero() {
		return nil, fmt.Errorf("%w: nothing held", ErrInvalidArgument)
	}

	amount := l.held
	l.held = new(uint256.Int)
	ev := FeesWithdrawn{To: to, Amount: amount.Clone()}
	push := func(ctx context.Context) error { return l.port.PushTo(ctx, to, amount) }
	if err := l.commit(ctx, ev, push); err != nil {
		l.held = amount
		slog.Warn("fee withdrawal failed", "to", to, "amount", amount.Dec(), "error", err)
		return nil, err
	}

	slog.Info("fees withdrawn", "to", to, "amount", amount.Dec())
	l.notify(ctx, ev)
	return amount.Clone(), nil
}

// Market returns a summary of the market with the given id.
func (l *Ledger) Market(id uint64) (Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.lookup(id)
	if err != nil {
		return Summary{}, err
	}
	return m.summary(), nil
}

// Markets returns summaries of every market in id order.
func (l *Ledger) Markets() []Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Summary, 0, len(l.markets))
	for id := uint64(1); id <= l.count; id++ {
		if m, ok := l.markets[id]; ok {
			out = append(out, m.summary())
		}
	}
	return out
}

// Stakes returns a participant's stake on each side of a market. Unknown
// participants have zero stakes.
func (l *Ledger) Stakes(id uint64, who common.Address) (with, against *uint256.Int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	return m.stake(SideWith, who), m.stake(SideAgainst, who), nil
}

// Quote returns what Claim would pay the participant right now.
func (l *Ledger) Quote(id uint64, who common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.lookup(id)
	if err != nil {
		return nil, err
	}
	if !m.resolved {
		return nil, fmt.Errorf("market %d: %w", id, ErrNotResolved)
	}
	win := m.outcome
	stake := m.stake(win, who)
	if stake.IsZero() {
		return stake, nil
	}
	return Payout(stake, m.totals[win], m.totals[win.Opposite()], l.feeRate), nil
}

// FeeRate returns the current fee rate in basis points.
func (l *Ledger) FeeRate() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feeRate
}

// MaxFeeRate returns the configured fee-rate cap in basis points.
func (l *Ledger) MaxFeeRate() uint64 { return l.maxFee }

// MarketCount returns the number of markets created so far.
func (l *Ledger) MarketCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Held returns the balance the ledger holds in custody.
func (l *Ledger) Held() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held.Clone()
}

func (l *Ledger) lookup(id uint64) (*market, error) {
	m, ok := l.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	return m, nil
}

// commit runs transfer, which may be nil, and records ev in the journal.
// The journal ignores the caller's cancellation so that a transfer it has
// started is always recorded or rolled back with it.
func (l *Ledger) commit(ctx context.Context, ev Event, transfer func(context.Context) error) error {
	var transferErr error
	apply := func(ctx context.Context) error {
		if transfer == nil {
			return nil
		}
		transferErr = transfer(ctx)
		return transferErr
	}

	var err error
	if l.journal == nil {
		err = apply(ctx)
	} else {
		err = l.journal.Record(context.WithoutCancel(ctx), ev, apply)
	}
	switch {
	case err == nil:
		return nil
	case transferErr != nil:
		return fmt.Errorf("%w: %w", ErrTransferFailed, transferErr)
	default:
		return fmt.Errorf("%w: %s: %w", ErrNotRecorded, ev.Kind(), err)
	}
}

func (l *Ledger) notify(ctx context.Context, ev Event) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(ctx, ev); err != nil {
		slog.Warn("event notification failed", "kind", ev.Kind(), "market", ev.Market(), "error", err)
	}
}
