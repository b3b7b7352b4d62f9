package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jonnyspicer/mango"

	"wagerledger/internal/config"
	"wagerledger/internal/db"
	"wagerledger/internal/ledger"
	"wagerledger/internal/mirror"
	"wagerledger/internal/performance"
	"wagerledger/internal/store"
)

type countingSource struct {
	mu    sync.Mutex
	calls int
	close time.Time
}

func (c *countingSource) GetMarketByID(id string) (*mango.FullMarket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &mango.FullMarket{
		Question:    "Question " + id,
		OutcomeType: mango.Binary,
		Probability: 0.5,
		CloseTime:   c.close.UnixMilli(),
	}, nil
}

type openPort struct{}

func (openPort) PullFrom(context.Context, common.Address, *uint256.Int) error { return nil }
func (openPort) PushTo(context.Context, common.Address, *uint256.Int) error   { return nil }

func TestRun_MirrorsOnStartAndStopsOnCancel(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}
	j := store.NewJournal(database)
	if err := j.Seed(context.Background(), 200); err != nil {
		t.Fatal(err)
	}
	authority := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	l, err := ledger.New(ledger.Config{Authority: authority, FeeRateBPS: 200}, openPort{}, ledger.WithJournal(j))
	if err != nil {
		t.Fatal(err)
	}

	src := &countingSource{close: time.Now().Add(24 * time.Hour)}
	s := New(mirror.New(src, l, database), []string{"a", "b"}, performance.NewTracker(database), config.ScheduleConfig{
		MirrorInterval: config.Duration{Duration: time.Hour},
		ReportInterval: config.Duration{Duration: time.Hour},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if l.MarketCount() != 2 {
		t.Errorf("expected 2 mirrored markets after the first cycle, got %d", l.MarketCount())
	}
}

func TestRun_WithoutMirror(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	s := New(nil, nil, performance.NewTracker(database), config.ScheduleConfig{
		ReportInterval: config.Duration{Duration: 10 * time.Millisecond},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
