package ledger

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Side is one of the two mutually exclusive outcomes a stake can back.
type Side uint8

const (
	SideWith    Side = 0 // the predicted outcome happens
	SideAgainst Side = 1
)

func (s Side) Valid() bool { return s == SideWith || s == SideAgainst }

// Opposite returns the other side.
func (s Side) Opposite() Side { return 1 - s }

func (s Side) String() string {
	switch s {
	case SideWith:
		return "with"
	case SideAgainst:
		return "against"
	}
	return fmt.Sprintf("side(%d)", uint8(s))
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: side %d", ErrInvalidArgument, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	side, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// ParseSide accepts "with"/"against" and the boolean spellings used by
// resolution feeds ("true" means the with side won).
func ParseSide(v string) (Side, error) {
	switch v {
	case "with", "true", "yes", "YES":
		return SideWith, nil
	case "against", "false", "no", "NO":
		return SideAgainst, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", ErrInvalidArgument, v)
}

// market is the mutable ledger record. Stakes are sparse: an absent
// participant has a zero stake.
type market struct {
	id         uint64
	title      string
	createdAt  time.Time
	endsAt     time.Time
	confidence uint8
	resolved   bool
	outcome    Side
	totals     [2]*uint256.Int
	stakes     [2]map[common.Address]*uint256.Int
}

func newMarket(id uint64, title string, createdAt, endsAt time.Time, confidence uint8) *market {
	return &market{
		id:         id,
		title:      title,
		createdAt:  createdAt,
		endsAt:     endsAt,
		confidence: confidence,
		totals:     [2]*uint256.Int{new(uint256.Int), new(uint256.Int)},
		stakes: [2]map[common.Address]*uint256.Int{
			make(map[common.Address]*uint256.Int),
			make(map[common.Address]*uint256.Int),
		},
	}
}

func (m *market) expired(now time.Time) bool { return !now.Before(m.endsAt) }

func (m *market) stake(side Side, who common.Address) *uint256.Int {
	if v, ok := m.stakes[side][who]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (m *market) summary() Summary {
	return Summary{
		ID:           m.id,
		Title:        m.title,
		CreatedAt:    m.createdAt,
		EndsAt:       m.endsAt,
		Confidence:   m.confidence,
		Resolved:     m.resolved,
		Outcome:      m.outcome,
		TotalWith:    m.totals[SideWith].Clone(),
		TotalAgainst: m.totals[SideAgainst].Clone(),
	}
}

// Summary is a read-only copy of a market.
type Summary struct {
	ID           uint64
	Title        string
	CreatedAt    time.Time
	EndsAt       time.Time
	Confidence   uint8
	Resolved     bool
	Outcome      Side // meaningful only when Resolved
	TotalWith    *uint256.Int
	TotalAgainst *uint256.Int
}

// Expired reports whether betting has closed at the given time.
func (s Summary) Expired(now time.Time) bool { return !now.Before(s.EndsAt) }

// Total returns the recorded stake total of one side.
func (s Summary) Total(side Side) *uint256.Int {
	if side == SideWith {
		return s.TotalWith
	}
	return s.TotalAgainst
}
