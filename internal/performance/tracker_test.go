package performance

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"wagerledger/internal/db"
	"wagerledger/internal/ledger"
	"wagerledger/internal/store"
)

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type openPort struct{}

func (openPort) PullFrom(context.Context, common.Address, *uint256.Int) error { return nil }
func (openPort) PushTo(context.Context, common.Address, *uint256.Int) error   { return nil }

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}
	return database
}

func TestGenerate_EmptyDatabase(t *testing.T) {
	r, err := NewTracker(newTestDB(t)).Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Markets != 0 || !r.TotalStaked.IsZero() || !r.Held.IsZero() {
		t.Errorf("expected empty report, got %+v", r)
	}
}

func TestGenerate(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	j := store.NewJournal(database)
	if err := j.Seed(ctx, 200); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	l, err := ledger.New(ledger.Config{Authority: authority, FeeRateBPS: 200}, openPort{},
		ledger.WithJournal(j), ledger.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}

	resolved, _ := l.CreateMarket(ctx, authority, "Resolved", 10, 80)
	open, _ := l.CreateMarket(ctx, authority, "Open", 3600, 20)
	for _, b := range []struct {
		who    common.Address
		id     uint64
		side   ledger.Side
		amount uint64
	}{
		{alice, resolved, ledger.SideWith, 100},
		{bob, resolved, ledger.SideAgainst, 200},
		{bob, open, ledger.SideAgainst, 50},
	} {
		if err := l.PlaceBet(ctx, b.who, b.id, b.side, uint256.NewInt(b.amount)); err != nil {
			t.Fatal(err)
		}
	}
	now = now.Add(10 * time.Second)
	if err := l.ResolveMarket(ctx, authority, resolved, ledger.SideWith); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Claim(ctx, alice, resolved); err != nil {
		t.Fatal(err)
	}

	r, err := NewTracker(database).Generate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.Markets != 2 || r.OpenMarkets != 1 || r.ResolvedMarkets != 1 {
		t.Errorf("unexpected market counts %d/%d/%d", r.Markets, r.OpenMarkets, r.ResolvedMarkets)
	}
	if r.TotalStaked.Uint64() != 350 {
		t.Errorf("expected 350 staked, got %s", r.TotalStaked.Dec())
	}
	if r.Claims != 1 || r.ClaimsPaid.Uint64() != 296 {
		t.Errorf("expected one claim of 296, got %d of %s", r.Claims, r.ClaimsPaid.Dec())
	}
	// 350 staked, 296 paid out.
	if r.Held.Uint64() != 54 {
		t.Errorf("expected 54 held, got %s", r.Held.Dec())
	}
	if r.FeeRateBPS != 200 {
		t.Errorf("expected 200 bp, got %d", r.FeeRateBPS)
	}

	stats, ok := r.OutcomeStats["with"]
	if !ok {
		t.Fatal("expected stats for the with outcome")
	}
	if stats.Markets != 1 || stats.WonPool.Uint64() != 100 || stats.LostPool.Uint64() != 200 || stats.AvgPrior != 80 {
		t.Errorf("unexpected outcome stats %+v", stats)
	}

	// Logging must not panic on a populated report.
	LogReport(r)
}
