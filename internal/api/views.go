package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"wagerledger/internal/ledger"
)

type marketView struct {
	ID           uint64    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	EndsAt       time.Time `json:"ends_at"`
	Confidence   uint8     `json:"confidence"`
	Expired      bool      `json:"expired"`
	Resolved     bool      `json:"resolved"`
	Outcome      *string   `json:"outcome,omitempty"`
	TotalWith    string    `json:"total_with"`
	TotalAgainst string    `json:"total_against"`
}

func newMarketView(s ledger.Summary, now time.Time) marketView {
	v := marketView{
		ID:           s.ID,
		Title:        s.Title,
		CreatedAt:    s.CreatedAt,
		EndsAt:       s.EndsAt,
		Confidence:   s.Confidence,
		Expired:      s.Expired(now),
		Resolved:     s.Resolved,
		TotalWith:    s.TotalWith.Dec(),
		TotalAgainst: s.TotalAgainst.Dec(),
	}
	if s.Resolved {
		outcome := s.Outcome.String()
		v.Outcome = &outcome
	}
	return v
}

type createMarketRequest struct {
	Title           string `json:"title"`
	DurationSeconds int64  `json:"duration_seconds"`
	Confidence      int    `json:"confidence"`
}

type placeBetRequest struct {
	Side   sideParam `json:"side"`
	Amount string    `json:"amount"`
}

type resolveRequest struct {
	Outcome sideParam `json:"outcome"`
}

// sideParam is a side given as a name ("with", "no", ...) or a JSON bool.
type sideParam string

func (p *sideParam) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*p = sideParam(strconv.FormatBool(b))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("side must be a string or a bool")
	}
	*p = sideParam(s)
	return nil
}

type feeRateRequest struct {
	BPS *uint64 `json:"bps"`
}

type withdrawRequest struct {
	To string `json:"to"`
}

type depositRequest struct {
	Amount string `json:"amount"`
}
