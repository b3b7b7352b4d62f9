// Package mirror copies binary Manifold markets into the ledger and resolves
// them once Manifold has.
package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonnyspicer/mango"

	"wagerledger/internal/ledger"
)

// Source is the slice of the Manifold client the mirror needs.
type Source interface {
	GetMarketByID(id string) (*mango.FullMarket, error)
}

// Mirror links Manifold market ids to ledger markets through mirror_links.
// The ledger must be journaled by a store.Journal on the same database,
// which writes each link with its market.
type Mirror struct {
	source    Source
	ledger    *ledger.Ledger
	db        *sql.DB
	authority common.Address
	now       func() time.Time
}

func New(source Source, l *ledger.Ledger, db *sql.DB) *Mirror {
	return &Mirror{
		source:    source,
		ledger:    l,
		db:        db,
		authority: l.Authority(),
		now:       time.Now,
	}
}

// Link is a mirrored market.
type Link struct {
	SourceID string
	MarketID uint64
}

// Sync creates a ledger market for every id not yet linked. Markets that are
// not binary, already resolved or already closed are skipped. It returns the
// links created in this pass.
func (m *Mirror) Sync(ctx context.Context, ids []string) ([]Link, error) {
	var created []Link
	for _, id := range ids {
		linked, err := m.linked(ctx, id)
		if err != nil {
			return created, err
		}
		if linked {
			continue
		}

		src, err := m.source.GetMarketByID(id)
		if err != nil {
			slog.Warn("failed to fetch market to mirror", "source", id, "error", err)
			continue
		}
		if src == nil {
			continue
		}
		if src.OutcomeType != mango.Binary {
			slog.Info("skipping non-binary market", "source", id, "type", src.OutcomeType)
			continue
		}
		if src.IsResolved {
			continue
		}

		duration := (src.CloseTime - m.now().UnixMilli()) / 1000
		if duration <= 0 {
			slog.Info("skipping closed market", "source", id)
			continue
		}

		// The journal writes the link in the same commit as the market.
		marketID, err := m.ledger.CreateMarketWithRef(ctx, m.authority, id, src.Question, duration, confidence(src.Probability))
		if err != nil {
			return created, fmt.Errorf("mirroring %s: %w", id, err)
		}

		slog.Info("mirrored market", "source", id, "market", marketID, "question", src.Question)
		created = append(created, Link{SourceID: id, MarketID: marketID})
	}
	return created, nil
}

// ResolveDue resolves every expired, unresolved linked market whose source
// resolved YES or NO. It returns the number of markets resolved.
func (m *Mirror) ResolveDue(ctx context.Context) (int, error) {
	links, err := m.Links(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now()
	resolved := 0
	for _, link := range links {
		mkt, err := m.ledger.Market(link.MarketID)
		if err != nil {
			return resolved, err
		}
		if mkt.Resolved || !mkt.Expired(now) {
			continue
		}

		src, err := m.source.GetMarketByID(link.SourceID)
		if err != nil {
			slog.Warn("failed to fetch mirrored market", "source", link.SourceID, "error", err)
			continue
		}
		if src == nil || !src.IsResolved {
			continue
		}

		var outcome ledger.Side
		switch src.Resolution {
		case "YES":
			outcome = ledger.SideWith
		case "NO":
			outcome = ledger.SideAgainst
		default:
			slog.Warn("mirrored market resolved without a binary outcome",
				"source", link.SourceID, "market", link.MarketID, "resolution", src.Resolution)
			continue
		}

		err = m.ledger.ResolveMarket(ctx, m.authority, link.MarketID, outcome)
		if errors.Is(err, ledger.ErrAlreadyResolved) {
			continue
		}
		if err != nil {
			return resolved, fmt.Errorf("resolving market %d: %w", link.MarketID, err)
		}
		slog.Info("resolved mirrored market", "source", link.SourceID, "market", link.MarketID, "outcome", outcome)
		resolved++
	}
	return resolved, nil
}

// Links returns all mirrored markets ordered by ledger id.
func (m *Mirror) Links(ctx context.Context) ([]Link, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT source_id, market_id FROM mirror_links ORDER BY market_id`)
	if err != nil {
		return nil, fmt.Errorf("querying mirror links: %w", err)
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.SourceID, &l.MarketID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (m *Mirror) linked(ctx context.Context, sourceID string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mirror_links WHERE source_id = ?`, sourceID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking mirror link %s: %w", sourceID, err)
	}
	return n > 0, nil
}

// confidence maps a probability to a whole percentage in [0, 100].
func confidence(p float64) int {
	c := int(math.Round(p * 100))
	return max(0, min(100, c))
}
