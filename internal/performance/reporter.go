package performance

import (
	"log/slog"
)

// LogReport logs the report as structured JSON.
func LogReport(r *Report) {
	slog.Info("=== LEDGER REPORT ===",
		"markets", r.Markets,
		"open_markets", r.OpenMarkets,
		"resolved_markets", r.ResolvedMarkets,
		"fee_rate_bps", r.FeeRateBPS,
		"total_staked", r.TotalStaked.Dec(),
		"claims", r.Claims,
		"claims_paid", r.ClaimsPaid.Dec(),
		"held", r.Held.Dec(),
	)

	for outcome, stats := range r.OutcomeStats {
		slog.Info("outcome summary",
			"outcome", outcome,
			"markets", stats.Markets,
			"won_pool", stats.WonPool.Dec(),
			"lost_pool", stats.LostPool.Dec(),
			"avg_prior", stats.AvgPrior,
		)
	}
}
