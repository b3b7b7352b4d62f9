package notify

import (
	"context"
	"errors"

	"wagerledger/internal/ledger"
)

// Fanout delivers each event to every sink in order. One failing sink does
// not stop delivery to the rest; their errors are joined.
type Fanout []ledger.Notifier

func (f Fanout) Notify(ctx context.Context, ev ledger.Event) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
