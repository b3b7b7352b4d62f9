package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"wagerledger/internal/ledger"
	"wagerledger/internal/notify"
)

// Load rebuilds the ledger state recorded by a Journal. It returns nil when
// the database has never been seeded.
func Load(ctx context.Context, db *sql.DB) (*ledger.State, error) {
	st := &ledger.State{}
	var held string
	err := db.QueryRowContext(ctx,
		`SELECT market_count, fee_rate_bps, held FROM ledger_state WHERE id = 1`,
	).Scan(&st.MarketCount, &st.FeeRateBPS, &held)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger state: %w", err)
	}
	if st.Held, err = parseAmount(held); err != nil {
		return nil, err
	}

	markets, err := loadMarkets(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("loading markets: %w", err)
	}
	if err := loadStakes(ctx, db, markets); err != nil {
		return nil, fmt.Errorf("loading stakes: %w", err)
	}

	st.Markets = make([]ledger.MarketState, 0, len(markets))
	for id := uint64(1); id <= st.MarketCount; id++ {
		if m, ok := markets[id]; ok {
			st.Markets = append(st.Markets, *m)
		}
	}
	return st, nil
}

func loadMarkets(ctx context.Context, db *sql.DB) (map[uint64]*ledger.MarketState, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, title, created_at, ends_at, confidence, resolved, outcome, total_with, total_against
		FROM markets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	markets := make(map[uint64]*ledger.MarketState)
	for rows.Next() {
		var (
			m                  ledger.MarketState
			createdAt, endsAt  int64
			resolved           int
			outcome            sql.NullString
			totalWith, totalAg string
		)
		if err := rows.Scan(&m.ID, &m.Title, &createdAt, &endsAt, &m.Confidence, &resolved, &outcome, &totalWith, &totalAg); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		m.EndsAt = time.UnixMilli(endsAt).UTC()
		m.Resolved = resolved == 1
		if outcome.Valid {
			if m.Outcome, err = ledger.ParseSide(outcome.String); err != nil {
				return nil, err
			}
		}
		if m.TotalWith, err = parseAmount(totalWith); err != nil {
			return nil, err
		}
		if m.TotalAgainst, err = parseAmount(totalAg); err != nil {
			return nil, err
		}
		m.StakesWith = make(map[common.Address]*uint256.Int)
		m.StakesAgainst = make(map[common.Address]*uint256.Int)
		markets[m.ID] = &m
	}
	return markets, rows.Err()
}

func loadStakes(ctx context.Context, db *sql.DB, markets map[uint64]*ledger.MarketState) error {
	rows, err := db.QueryContext(ctx, `SELECT market_id, participant, side, amount FROM stakes`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			marketID                 uint64
			participant, side, value string
		)
		if err := rows.Scan(&marketID, &participant, &side, &value); err != nil {
			return err
		}
		m, ok := markets[marketID]
		if !ok {
			return fmt.Errorf("stake for unknown market %d", marketID)
		}
		amount, err := parseAmount(value)
		if err != nil {
			return err
		}
		s, err := ledger.ParseSide(side)
		if err != nil {
			return err
		}
		if s == ledger.SideWith {
			m.StakesWith[common.HexToAddress(participant)] = amount
		} else {
			m.StakesAgainst[common.HexToAddress(participant)] = amount
		}
	}
	return rows.Err()
}

// Events returns up to limit journaled events of a market in commit order
// (limit 0 means all). A zero marketID returns the events of every market
// plus the ledger-wide ones.
func Events(ctx context.Context, db *sql.DB, marketID uint64, limit int) ([]notify.Envelope, error) {
	query := `SELECT id, kind, COALESCE(market_id, 0), payload, occurred_at FROM ledger_events`
	args := []any{}
	if marketID != 0 {
		query += ` WHERE market_id = ?`
		args = append(args, marketID)
	}
	query += ` ORDER BY seq`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []notify.Envelope
	for rows.Next() {
		var (
			env      notify.Envelope
			payload  string
			occurred string
		)
		if err := rows.Scan(&env.ID, &env.Kind, &env.MarketID, &payload, &occurred); err != nil {
			return nil, err
		}
		env.Data = json.RawMessage(payload)
		if env.At, err = time.Parse(time.RFC3339Nano, occurred); err != nil {
			return nil, fmt.Errorf("parsing event time %q: %w", occurred, err)
		}
		out = append(out, env)
	}
	return out, rows.Err()
}
