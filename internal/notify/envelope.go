package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wagerledger/internal/ledger"
)

// Envelope is the wire form of a ledger event, shared by every sink.
type Envelope struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	MarketID uint64          `json:"market_id,omitempty"`
	At       time.Time       `json:"at"`
	Data     json.RawMessage `json:"data"`
}

// Wrap builds an envelope with a fresh id for ev.
func Wrap(ev ledger.Event, at time.Time) (Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s event: %w", ev.Kind(), err)
	}
	return Envelope{
		ID:       uuid.NewString(),
		Kind:     ev.Kind(),
		MarketID: ev.Market(),
		At:       at.UTC(),
		Data:     data,
	}, nil
}
