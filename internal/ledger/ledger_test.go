package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol     = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	treasury  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

// fakePort keeps balances in memory and can be told to fail.
type fakePort struct {
	balances map[common.Address]*uint256.Int
	custody  *uint256.Int
	failPull bool
	failPush bool
}

func newFakePort() *fakePort {
	return &fakePort{balances: make(map[common.Address]*uint256.Int), custody: new(uint256.Int)}
}

func (p *fakePort) fund(who common.Address, amount uint64) {
	p.balances[who] = uint256.NewInt(amount)
}

func (p *fakePort) balance(who common.Address) uint64 {
	if v, ok := p.balances[who]; ok {
		return v.Uint64()
	}
	return 0
}

func (p *fakePort) PullFrom(_ context.Context, from common.Address, amount *uint256.Int) error {
	if p.failPull {
		return errors.New("pull declined")
	}
	bal, ok := p.balances[from]
	if !ok || bal.Lt(amount) {
		return errors.New("insufficient balance")
	}
	bal.Sub(bal, amount)
	p.custody.Add(p.custody, amount)
	return nil
}

func (p *fakePort) PushTo(_ context.Context, to common.Address, amount *uint256.Int) error {
	if p.failPush {
		return errors.New("push declined")
	}
	if p.custody.Lt(amount) {
		return errors.New("custody short")
	}
	p.custody.Sub(p.custody, amount)
	bal, ok := p.balances[to]
	if !ok {
		bal = new(uint256.Int)
		p.balances[to] = bal
	}
	bal.Add(bal, amount)
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct{ events []Event }

func (r *recorder) Notify(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return nil
}

type testLedger struct {
	*Ledger
	port  *fakePort
	clock *fakeClock
	rec   *recorder
}

func newTestLedger(t *testing.T, feeBPS uint64) *testLedger {
	t.Helper()
	port := newFakePort()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	l, err := New(Config{Authority: authority, FeeRateBPS: feeBPS}, port,
		WithClock(clock.Now), WithNotifier(rec))
	if err != nil {
		t.Fatal(err)
	}
	return &testLedger{Ledger: l, port: port, clock: clock, rec: rec}
}

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }

func (tl *testLedger) mustCreate(t *testing.T, duration int64) uint64 {
	t.Helper()
	id, err := tl.CreateMarket(context.Background(), authority, "Will it rain?", duration, 70)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func (tl *testLedger) mustBet(t *testing.T, who common.Address, id uint64, side Side, amount uint64) {
	t.Helper()
	if tl.port.balance(who) < amount {
		tl.port.fund(who, tl.port.balance(who)+amount)
	}
	if err := tl.PlaceBet(context.Background(), who, id, side, amt(amount)); err != nil {
		t.Fatal(err)
	}
}

func (tl *testLedger) mustResolve(t *testing.T, id uint64, outcome Side) {
	t.Helper()
	if err := tl.ResolveMarket(context.Background(), authority, id, outcome); err != nil {
		t.Fatal(err)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	port := newFakePort()
	cases := []Config{
		{},
		{Authority: authority, FeeRateBPS: 1001},
		{Authority: authority, MaxFeeRateBPS: 20000},
	}
	for _, cfg := range cases {
		if _, err := New(cfg, port); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("config %+v: expected ErrInvalidArgument, got %v", cfg, err)
		}
	}
}

func TestCreateMarket_SequentialIDs(t *testing.T) {
	tl := newTestLedger(t, 200)
	for want := uint64(1); want <= 3; want++ {
		if got := tl.mustCreate(t, 60); got != want {
			t.Errorf("expected id %d, got %d", want, got)
		}
	}
	if tl.MarketCount() != 3 {
		t.Errorf("expected 3 markets, got %d", tl.MarketCount())
	}

	s, err := tl.Market(2)
	if err != nil {
		t.Fatal(err)
	}
	if !s.EndsAt.Equal(s.CreatedAt.Add(60 * time.Second)) {
		t.Errorf("expected 60s window, got %v -> %v", s.CreatedAt, s.EndsAt)
	}
	if s.Resolved || !s.TotalWith.IsZero() || !s.TotalAgainst.IsZero() {
		t.Errorf("expected fresh market, got %+v", s)
	}
	if s.Confidence != 70 {
		t.Errorf("expected confidence 70, got %d", s.Confidence)
	}
}

func TestCreateMarket_Unauthorized(t *testing.T) {
	tl := newTestLedger(t, 200)
	_, err := tl.CreateMarket(context.Background(), alice, "x", 60, 50)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if tl.MarketCount() != 0 {
		t.Error("unauthorized create must not allocate an id")
	}
}

func TestCreateMarket_InvalidArguments(t *testing.T) {
	tl := newTestLedger(t, 200)
	cases := []struct {
		duration   int64
		confidence int
	}{
		{0, 50},
		{-10, 50},
		{60, -1},
		{60, 101},
	}
	for _, c := range cases {
		_, err := tl.CreateMarket(context.Background(), authority, "x", c.duration, c.confidence)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("duration=%d confidence=%d: expected ErrInvalidArgument, got %v", c.duration, c.confidence, err)
		}
	}
	for _, ok := range []int{0, 100} {
		if _, err := tl.CreateMarket(context.Background(), authority, "x", 1, ok); err != nil {
			t.Errorf("confidence %d should be accepted: %v", ok, err)
		}
	}
}

func TestPlaceBet_TotalsMatchStakes(t *testing.T) {
	tl := newTestLedger(t, 200)
	id := tl.mustCreate(t, 1000)

	tl.mustBet(t, alice, id, SideWith, 100)
	tl.mustBet(t, bob, id, SideAgainst, 200)
	tl.mustBet(t, alice, id, SideWith, 50)
	tl.mustBet(t, alice, id, SideAgainst, 25) // both sides at once
	tl.mustBet(t, carol, id, SideWith, 7)

	s, err := tl.Market(id)
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalWith.Uint64() != 157 {
		t.Errorf("expected total with 157, got %s", s.TotalWith.Dec())
	}
	if s.TotalAgainst.Uint64() != 225 {
		t.Errorf("expected total against 225, got %s", s.TotalAgainst.Dec())
	}

	var sumWith, sumAgainst uint64
	for _, who := range []common.Address{alice, bob, carol} {
		w, a, err := tl.Stakes(id, who)
		if err != nil {
			t.Fatal(err)
		}
		sumWith += w.Uint64()
		sumAgainst += a.Uint64()
	}
	if sumWith != s.TotalWith.Uint64() || sumAgainst != s.TotalAgainst.Uint64() {
		t.Errorf("stake sums %d/%d do not match totals %s/%s", sumWith, sumAgainst, s.TotalWith.Dec(), s.TotalAgainst.Dec())
	}
	if tl.Held().Uint64() != 382 || tl.port.custody.Uint64() != 382 {
		t.Errorf("expected 382 held, got ledger=%s port=%s", tl.Held().Dec(), tl.port.custody.Dec())
	}
}

func TestPlaceBet_Rejections(t *testing.T) {
	tl := newTestLedger(t, 200)
	id := tl.mustCreate(t, 1000)
	tl.port.fund(alice, 1000)
	ctx := context.Background()

	if err := tl.PlaceBet(ctx, alice, 99, SideWith, amt(10)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := tl.PlaceBet(ctx, alice, id, SideWith, amt(0)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for zero amount, got %v", err)
	}
	if err := tl.PlaceBet(ctx, alice, id, SideWith, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for nil amount, got %v", err)
	}
	if err := tl.PlaceBet(ctx, alice, id, Side(7), amt(10)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for bad side, got %v", err)
	}

	tl.clock.Advance(999 * time.Second)
	if err := tl.PlaceBet(ctx, alice, id, SideWith, amt(10)); err != nil {
		t.Errorf("bet one second before deadline should succeed: %v", err)
	}
	tl.clock.Advance(time.Second)
	if err := tl.PlaceBet(ctx, alice, id, SideWith, amt(10)); !errors.Is(err, ErrMarketExpired) {
		t.Errorf("expected ErrMarketExpired at deadline, got %v", err)
	}

	tl.mustResolve(t, id, SideWith)
	if err := tl.PlaceBet(ctx, alice, id, SideWith, amt(10)); !errors.Is(err, ErrMarketExpired) {
		t.Errorf("expected ErrMarketExpired after resolution, got %v", err)
	}
}

func TestPlaceBet_TransferFailureChangesNothing(t *testing.T) {
	tl := newTestLedger(t, 200)
	id := tl.mustCreate(t, 1000)
	tl.port.fund(alice, 50)

	err := tl.PlaceBet(context.Background(), alice, id, SideWith, amt(100))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	w, _, _ := tl.Stakes(id, alice)
	s, _ := tl.Market(id)
	if !w.IsZero() || !s.TotalWith.IsZero() || !tl.Held().IsZero() {
		t.Errorf("failed bet mutated state: stake=%s total=%s held=%s", w.Dec(), s.TotalWith.Dec(), tl.Held().Dec())
	}
	if len(tl.rec.events) != 1 {
		t.Errorf("expected only the creation event, got %d events", len(tl.rec.events))
	}
}

func TestPlaceBet_RejectsOverflow(t *testing.T) {
	tl := newTestLedger(t, 200)
	id := tl.mustCreate(t, 1000)
	maxAmt := new(uint256.Int).SetAllOne()
	tl.port.balances[alice] = maxAmt.Clone()
	tl.port.fund(bob, 1)

	if err := tl.PlaceBet(context.Background(), alice, id, SideWith, maxAmt); err != nil {
		t.Fatal(err)
	}
	if err := tl.PlaceBet(context.Background(), bob, id, SideAgainst, amt(1)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument on held overflow, got %v", err)
	}
	if tl.port.balance(bob) != 1 {
		t.Error("overflowing bet must not pull funds")
	}
}

func TestResolveMarket_Lifecycle(t *testing.T) {
	tl := newTestLedger(t, 200)
	id := tl.mustCreate(t, 1000)
	ctx := context.Background()

	if err := tl.ResolveMarket(ctx, alice, id, SideWith); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if err := tl.ResolveMarket(ctx, authority, 42, SideWith); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	tl.clock.Advance(999 * time.Second)
	if err := tl.ResolveMarket(ctx, authority, id, SideWith); !errors.Is(err, ErrNotYetExpired) {
		t.Errorf("expected ErrNotYetExpired, got %v", err)
	}

	tl.clock.Advance(time.Second)
	tl.mustResolve(t, id, SideAgainst)
	if err := tl.ResolveMarket(ctx, authority, id, SideWith); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}

	s, _ := tl.Market(id)
	if !s.Resolved || s.Outcome != SideAgainst {
		t.Errorf("expected resolved against, got resolved=%v outcome=%s", s.Resolved, s.Outcome)
	}
}

func TestClaim_PoolsFollowOutcome(t *testing.T) {
	for _, outcome := range []Side{SideWith, SideAgainst} {
		tl := newTestLedger(t, 0)
		id := tl.mustCreate(t, 10)
		tl.mustBet(t, alice, id, SideWith, 300)
		tl.mustBet(t, bob, id, SideAgainst, 600)
		tl.clock.Advance(10 * time.Second)
		tl.mustResolve(t, id, outcome)

		winner := alice
		want := uint64(900)
		if outcome == SideAgainst {
			winner = bob
		}
		paid, err := tl.Claim(context.Background(), winner, id)
		if err != nil {
			t.Fatalf("outcome %s: %v", outcome, err)
		}
		if paid.Uint64() != want {
			t.Errorf("outcome %s: expected %d, got %s", outcome, want, paid.Dec())
		}
	}
}

func TestClaim_Rejections(t *testing.T) {
	tl := newTestLedger(t, 200)
	id := tl.mustCreate(t, 10)
	tl.mustBet(t, alice, id, SideWith, 100)
	tl.mustBet(t, bob, id, SideAgainst, 200)
	ctx := context.Background()

	if _, err := tl.Claim(ctx, alice, 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := tl.Claim(ctx, alice, id); !errors.Is(err, ErrNotResolved) {
		t.Errorf("expected ErrNotResolved, got %v", err)
	}

	tl.clock.Advance(10 * time.Second)
	tl.mustResolve(t, id, SideWith)

	if _, err := tl.Claim(ctx, bob, id); !errors.Is(err, ErrNothingToClaim) {
		t.Errorf("losing-side bettor: expected ErrNothingToClaim, got %v", err)
	}
	if _, err := tl.Claim(ctx, carol, id); !errors.Is(err, ErrNothingToClaim) {
		t.Errorf("non-bettor: expected ErrNothingToClaim, got %v", err)
	}
	if _, err := tl.Claim(ctx, alice, id); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Claim(ctx, alice, id); !errors.Is(err, ErrNothingToClaim) {
		t.Errorf("second claim: expected ErrNothingToClaim, got %v", err)
	}
}

func TestClaim_TransferFailureRestoresStake(t *testing.T) {
	tl := newTestLedger(t, 200)
	id := tl.mustCreate(t, 10)
	tl.mustBet(t, alice, id, SideWith, 100)
	tl.mustBet(t, bob, id, SideAgainst, 200)
	tl.clock.Advance(10 * time.Second)
	tl.mustResolve(t, id, SideWith)

	tl.port.failPush = true
	if _, err := tl.Claim(context.Background(), alice, id); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	w, _, _ := tl.Stakes(id, alice)
	if w.Uint64() != 100 {
		t.Errorf("expected stake restored to 100, got %s", w.Dec())
	}
	if tl.Held().Uint64() != 300 {
		t.Errorf("expected held restored to 300, got %s", tl.Held().Dec())
	}

	tl.port.failPush = false
	paid, err := tl.Claim(context.Background(), alice, id)
	if err != nil {
		t.Fatal(err)
	}
	if paid.Uint64() != 296 {
		t.Errorf("expected 296 after retry, got %s", paid.Dec())
	}
}

func TestClaim_StakeClearedBeforePush(t *testing.T) {
	tl := newTestLedger(t, 200)
	id := tl.mustCreate(t, 10)
	tl.mustBet(t, alice, id, SideWith, 100)
	tl.clock.Advance(10 * time.Second)
	tl.mustResolve(t, id, SideWith)

	var seen *uint256.Int
	port := &observingPort{fakePort: tl.port, onPush: func() {
		// The lock is held during the push, so inspect the record directly.
		seen = tl.markets[id].stake(SideWith, alice)
	}}
	tl.Ledger.port = port

	if _, err := tl.Claim(context.Background(), alice, id); err != nil {
		t.Fatal(err)
	}
	if seen == nil || !seen.IsZero() {
		t.Errorf("expected zero stake during push, got %v", seen)
	}
}

type observingPort struct {
	*fakePort
	onPush func()
}

func (p *observingPort) PushTo(ctx context.Context, to common.Address, amount *uint256.Int) error {
	p.onPush()
	return p.fakePort.PushTo(ctx, to, amount)
}

func TestUpdateFeeRate(t *testing.T) {
	tl := newTestLedger(t, 200)
	ctx := context.Background()

	if err := tl.UpdateFeeRate(ctx, alice, 100); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if err := tl.UpdateFeeRate(ctx, authority, 1001); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument above cap, got %v", err)
	}
	if tl.FeeRate() != 200 {
		t.Errorf("rejected update changed rate to %d", tl.FeeRate())
	}
	if err := tl.UpdateFeeRate(ctx, authority, 1000); err != nil {
		t.Errorf("rate at cap should be accepted: %v", err)
	}
}

func TestUpdateFeeRate_AppliesToLaterClaimsOnly(t *testing.T) {
	tl := newTestLedger(t, 200)
	id := tl.mustCreate(t, 10)
	tl.mustBet(t, alice, id, SideWith, 100)
	tl.mustBet(t, carol, id, SideWith, 100)
	tl.mustBet(t, bob, id, SideAgainst, 1000)
	tl.clock.Advance(10 * time.Second)
	tl.mustResolve(t, id, SideWith)

	first, err := tl.Claim(context.Background(), alice, id)
	if err != nil {
		t.Fatal(err)
	}
	// fee = 20, net = 980, share = 100*980/200 = 490.
	if first.Uint64() != 590 {
		t.Errorf("expected 590 at 2%%, got %s", first.Dec())
	}

	if err := tl.UpdateFeeRate(context.Background(), authority, 1000); err != nil {
		t.Fatal(err)
	}
	second, err := tl.Claim(context.Background(), carol, id)
	if err != nil {
		t.Fatal(err)
	}
	// fee = 100, net = 900, share = 100*900/200 = 450.
	if second.Uint64() != 550 {
		t.Errorf("expected 550 at 10%%, got %s", second.Dec())
	}
}

func TestEndToEnd_FeeStaysWithLedger(t *testing.T) {
	tl := newTestLedger(t, 200)
	ctx := context.Background()

	id, err := tl.CreateMarket(ctx, authority, "Will the launch happen?", 1000, 70)
	if err != nil {
		t.Fatal(err)
	}
	tl.mustBet(t, alice, id, SideWith, 100)
	tl.mustBet(t, bob, id, SideAgainst, 200)

	tl.clock.Advance(1001 * time.Second)
	tl.mustResolve(t, id, SideWith)

	quote, err := tl.Quote(id, alice)
	if err != nil {
		t.Fatal(err)
	}
	paid, err := tl.Claim(ctx, alice, id)
	if err != nil {
		t.Fatal(err)
	}
	if paid.Uint64() != 296 || quote.Uint64() != 296 {
		t.Errorf("expected payout 296, got paid=%s quote=%s", paid.Dec(), quote.Dec())
	}
	if tl.port.balance(alice) != 296 {
		t.Errorf("expected alice balance 296, got %d", tl.port.balance(alice))
	}
	if tl.Held().Uint64() != 4 || tl.port.custody.Uint64() != 4 {
		t.Errorf("expected the 4 fee left in custody, got ledger=%s port=%s", tl.Held().Dec(), tl.port.custody.Dec())
	}

	swept, err := tl.WithdrawFees(ctx, authority, treasury)
	if err != nil {
		t.Fatal(err)
	}
	if swept.Uint64() != 4 || tl.port.balance(treasury) != 4 || !tl.Held().IsZero() {
		t.Errorf("expected 4 swept to treasury, got swept=%s treasury=%d", swept.Dec(), tl.port.balance(treasury))
	}

	kinds := make([]string, 0, len(tl.rec.events))
	for _, ev := range tl.rec.events {
		kinds = append(kinds, ev.Kind())
	}
	want := []string{KindMarketCreated, KindBetPlaced, KindBetPlaced, KindMarketResolved, KindFundsClaimed, KindFeesWithdrawn}
	if len(kinds) != len(want) {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
	claimed := tl.rec.events[4].(FundsClaimed)
	if claimed.Claimant != alice || claimed.Amount.Uint64() != 296 || claimed.MarketID != id {
		t.Errorf("unexpected claim event %+v", claimed)
	}
}

func TestWithdrawFees_Rejections(t *testing.T) {
	tl := newTestLedger(t, 200)
	ctx := context.Background()

	if _, err := tl.WithdrawFees(ctx, alice, treasury); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := tl.WithdrawFees(ctx, authority, treasury); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument with nothing held, got %v", err)
	}

	id := tl.mustCreate(t, 10)
	tl.mustBet(t, alice, id, SideWith, 10)
	if _, err := tl.WithdrawFees(ctx, authority, common.Address{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for zero address, got %v", err)
	}
	tl.port.failPush = true
	if _, err := tl.WithdrawFees(ctx, authority, treasury); !errors.Is(err, ErrTransferFailed) {
		t.Errorf("expected ErrTransferFailed, got %v", err)
	}
	if tl.Held().Uint64() != 10 {
		t.Errorf("failed withdrawal must keep held balance, got %s", tl.Held().Dec())
	}
}

func TestWithdrawFees_EarlySweepStrandsWinners(t *testing.T) {
	tl := newTestLedger(t, 200)
	id := tl.mustCreate(t, 10)
	tl.mustBet(t, alice, id, SideWith, 100)
	tl.mustBet(t, bob, id, SideAgainst, 200)
	tl.clock.Advance(10 * time.Second)
	tl.mustResolve(t, id, SideWith)

	if _, err := tl.WithdrawFees(context.Background(), authority, treasury); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Claim(context.Background(), alice, id); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed after sweep, got %v", err)
	}
	w, _, _ := tl.Stakes(id, alice)
	if w.Uint64() != 100 {
		t.Errorf("stake must survive the failed claim, got %s", w.Dec())
	}
}

func TestStakes_UnknownParticipantIsZero(t *testing.T) {
	tl := newTestLedger(t, 200)
	id := tl.mustCreate(t, 10)

	w, a, err := tl.Stakes(id, carol)
	if err != nil {
		t.Fatal(err)
	}
	if !w.IsZero() || !a.IsZero() {
		t.Errorf("expected zero stakes, got %s/%s", w.Dec(), a.Dec())
	}
	if _, _, err := tl.Stakes(id+1, carol); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := tl.Market(id + 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	tl := newTestLedger(t, 200)
	open := tl.mustCreate(t, 1000)
	closed := tl.mustCreate(t, 10)
	tl.mustBet(t, alice, open, SideWith, 40)
	tl.mustBet(t, bob, open, SideAgainst, 60)
	tl.mustBet(t, alice, closed, SideWith, 100)
	tl.mustBet(t, bob, closed, SideAgainst, 200)
	tl.clock.Advance(10 * time.Second)
	tl.mustResolve(t, closed, SideWith)
	if _, err := tl.Claim(context.Background(), alice, closed); err != nil {
		t.Fatal(err)
	}

	st := tl.Snapshot()

	restored, err := New(Config{Authority: authority, FeeRateBPS: 0}, tl.port, WithClock(tl.clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	if err := restored.Restore(st); err != nil {
		t.Fatal(err)
	}
	if restored.MarketCount() != 2 || restored.FeeRate() != 200 || restored.Held().Uint64() != 104 {
		t.Errorf("unexpected restored ledger: count=%d fee=%d held=%s",
			restored.MarketCount(), restored.FeeRate(), restored.Held().Dec())
	}
	w, a, _ := restored.Stakes(open, alice)
	if w.Uint64() != 40 || !a.IsZero() {
		t.Errorf("unexpected restored stakes %s/%s", w.Dec(), a.Dec())
	}
	if _, err := restored.Claim(context.Background(), alice, closed); !errors.Is(err, ErrNothingToClaim) {
		t.Errorf("claim must stay spent after restore, got %v", err)
	}
	if id, _ := restored.CreateMarket(context.Background(), authority, "next", 5, 1); id != 3 {
		t.Errorf("expected next id 3, got %d", id)
	}
}

func TestRestore_RejectsInconsistentStakes(t *testing.T) {
	tl := newTestLedger(t, 200)
	st := &State{
		MarketCount: 1,
		Held:        amt(10),
		Markets: []MarketState{{
			Summary:    Summary{ID: 1, TotalWith: amt(10), TotalAgainst: amt(0)},
			StakesWith: map[common.Address]*uint256.Int{alice: amt(9)},
		}},
	}
	if err := tl.Restore(st); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestParseSide(t *testing.T) {
	cases := map[string]Side{"with": SideWith, "true": SideWith, "YES": SideWith, "against": SideAgainst, "NO": SideAgainst}
	for in, want := range cases {
		got, err := ParseSide(in)
		if err != nil || got != want {
			t.Errorf("ParseSide(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseSide("maybe"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
