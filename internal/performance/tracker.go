package performance

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/holiman/uint256"
)

// Tracker computes ledger activity metrics from the projected tables.
type Tracker struct {
	db *sql.DB
}

func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Report summarises ledger activity.
type Report struct {
	Markets         int
	OpenMarkets     int
	ResolvedMarkets int
	FeeRateBPS      uint64
	TotalStaked     *uint256.Int
	Claims          int
	ClaimsPaid      *uint256.Int
	Held            *uint256.Int
	OutcomeStats    map[string]OutcomeStats
}

// OutcomeStats aggregates resolved markets by winning side.
type OutcomeStats struct {
	Markets  int
	WonPool  *uint256.Int // stakes on the winning side
	LostPool *uint256.Int // stakes on the losing side
	AvgPrior float64      // mean creator confidence
}

// Generate computes the full report.
func (t *Tracker) Generate(ctx context.Context) (*Report, error) {
	r := &Report{
		TotalStaked:  new(uint256.Int),
		ClaimsPaid:   new(uint256.Int),
		Held:         new(uint256.Int),
		OutcomeStats: make(map[string]OutcomeStats),
	}

	if err := t.computeLedger(ctx, r); err != nil {
		return nil, fmt.Errorf("computing ledger stats: %w", err)
	}
	if err := t.computeMarkets(ctx, r); err != nil {
		return nil, fmt.Errorf("computing market stats: %w", err)
	}
	if err := t.computeClaims(ctx, r); err != nil {
		return nil, fmt.Errorf("computing claim stats: %w", err)
	}

	return r, nil
}

func (t *Tracker) computeLedger(ctx context.Context, r *Report) error {
	var held string
	err := t.db.QueryRowContext(ctx, `SELECT fee_rate_bps, held FROM ledger_state WHERE id = 1`).Scan(&r.FeeRateBPS, &held)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	return setDecimal(r.Held, held)
}

// Amounts are TEXT so sums happen here rather than in SQL.
func (t *Tracker) computeMarkets(ctx context.Context, r *Report) error {
	rows, err := t.db.QueryContext(ctx,
		`SELECT resolved, COALESCE(outcome, ''), confidence, total_with, total_against FROM markets`)
	if err != nil {
		return err
	}
	defer rows.Close()

	priors := make(map[string]int)
	for rows.Next() {
		var (
			resolved, confidence int
			outcome              string
			with, against        string
		)
		if err := rows.Scan(&resolved, &outcome, &confidence, &with, &against); err != nil {
			return err
		}
		w, a := new(uint256.Int), new(uint256.Int)
		if err := setDecimal(w, with); err != nil {
			return err
		}
		if err := setDecimal(a, against); err != nil {
			return err
		}

		r.Markets++
		r.TotalStaked.Add(r.TotalStaked, w)
		r.TotalStaked.Add(r.TotalStaked, a)
		if resolved == 0 {
			r.OpenMarkets++
			continue
		}
		r.ResolvedMarkets++

		stats, ok := r.OutcomeStats[outcome]
		if !ok {
			stats = OutcomeStats{WonPool: new(uint256.Int), LostPool: new(uint256.Int)}
		}
		stats.Markets++
		if outcome == "with" {
			stats.WonPool.Add(stats.WonPool, w)
			stats.LostPool.Add(stats.LostPool, a)
		} else {
			stats.WonPool.Add(stats.WonPool, a)
			stats.LostPool.Add(stats.LostPool, w)
		}
		priors[outcome] += confidence
		r.OutcomeStats[outcome] = stats
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for outcome, stats := range r.OutcomeStats {
		stats.AvgPrior = float64(priors[outcome]) / float64(stats.Markets)
		r.OutcomeStats[outcome] = stats
	}
	return nil
}

func (t *Tracker) computeClaims(ctx context.Context, r *Report) error {
	rows, err := t.db.QueryContext(ctx, `SELECT amount FROM claims`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		v := new(uint256.Int)
		if err := setDecimal(v, raw); err != nil {
			return err
		}
		r.Claims++
		r.ClaimsPaid.Add(r.ClaimsPaid, v)
	}
	return rows.Err()
}

func setDecimal(dst *uint256.Int, raw string) error {
	if err := dst.SetFromDecimal(raw); err != nil {
		return fmt.Errorf("parsing amount %q: %w", raw, err)
	}
	return nil
}
