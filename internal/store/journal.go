package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"wagerledger/internal/db"
	"wagerledger/internal/ledger"
	"wagerledger/internal/notify"
)

// Journal is the ledger's durable record. Each event is appended to
// ledger_events and applied to the markets, stakes, claims and ledger_state
// tables in one transaction, together with the transfer that produced it.
// Load rebuilds a ledger from those tables.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Seed creates the ledger_state row with the given fee rate unless it
// already exists. A persisted rate always wins over the seed.
func (j *Journal) Seed(ctx context.Context, feeRateBPS uint64) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger_state (id, market_count, fee_rate_bps, held) VALUES (1, 0, ?, '0')`,
		feeRateBPS)
	if err != nil {
		return fmt.Errorf("seeding ledger state: %w", err)
	}
	return nil
}

// Record implements ledger.Journal. apply runs inside the journal
// transaction, which it can reach through db.TxFrom; the event is written
// only if apply succeeds and nothing is kept unless the commit does.
func (j *Journal) Record(ctx context.Context, ev ledger.Event, apply func(ctx context.Context) error) error {
	env, err := notify.Wrap(ev, j.now())
	if err != nil {
		return err
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning journal tx: %w", err)
	}
	defer tx.Rollback()

	if apply != nil {
		if err := apply(db.WithTx(ctx, tx)); err != nil {
			return err
		}
	}

	var marketID any
	if env.MarketID != 0 {
		marketID = env.MarketID
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_events (id, seq, kind, market_id, payload, occurred_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM ledger_events), ?, ?, ?, ?)`,
		env.ID, env.Kind, marketID, string(env.Data), env.At.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting %s event: %w", env.Kind, err)
	}

	if err := project(ctx, tx, ev); err != nil {
		return fmt.Errorf("projecting %s event: %w", env.Kind, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s event: %w", env.Kind, err)
	}
	return nil
}

func project(ctx context.Context, tx *sql.Tx, ev ledger.Event) error {
	switch e := ev.(type) {
	case ledger.MarketCreated:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO markets (id, title, created_at, ends_at, confidence)
			VALUES (?, ?, ?, ?, ?)`,
			e.MarketID, e.Title, e.CreatedAt.UnixMilli(), e.EndsAt.UnixMilli(), e.Confidence,
		)
		if err != nil {
			return err
		}
		if e.Ref != "" {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO mirror_links (source_id, market_id) VALUES (?, ?)`, e.Ref, e.MarketID)
			if err != nil {
				return fmt.Errorf("linking %s: %w", e.Ref, err)
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE ledger_state SET market_count = MAX(market_count, ?), updated_at = datetime('now') WHERE id = 1`,
			e.MarketID)
		return err

	case ledger.BetPlaced:
		if err := addStake(ctx, tx, e.MarketID, e.Bettor, e.Side, e.Amount); err != nil {
			return err
		}
		if err := addTotal(ctx, tx, e.MarketID, e.Side, e.Amount); err != nil {
			return err
		}
		return adjustHeld(ctx, tx, e.Amount, true)

	case ledger.MarketResolved:
		_, err := tx.ExecContext(ctx, `
			UPDATE markets SET resolved = 1, outcome = ?, total_with = ?, total_against = ?, resolved_at = datetime('now')
			WHERE id = ?`,
			e.Outcome.String(), e.TotalWith.Dec(), e.TotalAgainst.Dec(), e.MarketID,
		)
		return err

	case ledger.FundsClaimed:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM stakes WHERE market_id = ? AND participant = ? AND side = ?`,
			e.MarketID, e.Claimant.Hex(), e.Side.String())
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO claims (market_id, claimant, side, amount) VALUES (?, ?, ?, ?)`,
			e.MarketID, e.Claimant.Hex(), e.Side.String(), e.Amount.Dec())
		if err != nil {
			return err
		}
		return adjustHeld(ctx, tx, e.Amount, false)

	case ledger.FeeRateUpdated:
		_, err := tx.ExecContext(ctx,
			`UPDATE ledger_state SET fee_rate_bps = ?, updated_at = datetime('now') WHERE id = 1`, e.Current)
		return err

	case ledger.FeesWithdrawn:
		return adjustHeld(ctx, tx, e.Amount, false)
	}
	return fmt.Errorf("unknown event %T", ev)
}

func addStake(ctx context.Context, tx *sql.Tx, marketID uint64, who common.Address, side ledger.Side, amount *uint256.Int) error {
	current := new(uint256.Int)
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT amount FROM stakes WHERE market_id = ? AND participant = ? AND side = ?`,
		marketID, who.Hex(), side.String()).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return err
	default:
		if current, err = parseAmount(raw); err != nil {
			return err
		}
	}

	current.Add(current, amount)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stakes (market_id, participant, side, amount) VALUES (?, ?, ?, ?)
		ON CONFLICT(market_id, participant, side) DO UPDATE SET amount = excluded.amount`,
		marketID, who.Hex(), side.String(), current.Dec())
	return err
}

func addTotal(ctx context.Context, tx *sql.Tx, marketID uint64, side ledger.Side, amount *uint256.Int) error {
	col := totalColumn(side)
	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT `+col+` FROM markets WHERE id = ?`, marketID).Scan(&raw); err != nil {
		return fmt.Errorf("reading market %d total: %w", marketID, err)
	}
	total, err := parseAmount(raw)
	if err != nil {
		return err
	}
	total.Add(total, amount)
	_, err = tx.ExecContext(ctx, `UPDATE markets SET `+col+` = ? WHERE id = ?`, total.Dec(), marketID)
	return err
}

func adjustHeld(ctx context.Context, tx *sql.Tx, amount *uint256.Int, credit bool) error {
	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT held FROM ledger_state WHERE id = 1`).Scan(&raw); err != nil {
		return fmt.Errorf("reading held balance: %w", err)
	}
	held, err := parseAmount(raw)
	if err != nil {
		return err
	}
	if credit {
		held.Add(held, amount)
	} else {
		if held.Lt(amount) {
			return fmt.Errorf("held balance %s below debit %s", held.Dec(), amount.Dec())
		}
		held.Sub(held, amount)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE ledger_state SET held = ?, updated_at = datetime('now') WHERE id = 1`, held.Dec())
	return err
}

func totalColumn(side ledger.Side) string {
	if side == ledger.SideWith {
		return "total_with"
	}
	return "total_against"
}

func parseAmount(raw string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", raw, err)
	}
	return v, nil
}
