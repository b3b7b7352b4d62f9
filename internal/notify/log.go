package notify

import (
	"context"
	"log/slog"

	"wagerledger/internal/ledger"
)

// Log writes every event to the default slog logger.
type Log struct{}

func (Log) Notify(_ context.Context, ev ledger.Event) error {
	slog.Info("ledger event", "kind", ev.Kind(), "market", ev.Market(), "event", ev)
	return nil
}
