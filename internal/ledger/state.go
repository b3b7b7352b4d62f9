package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// State is a complete copy of a ledger's bookkeeping, used to persist and
// restore it.
type State struct {
	MarketCount uint64
	FeeRateBPS  uint64
	Held        *uint256.Int
	Markets     []MarketState
}

// MarketState is one market with its per-participant stakes.
type MarketState struct {
	Summary
	StakesWith    map[common.Address]*uint256.Int
	StakesAgainst map[common.Address]*uint256.Int
}

// Snapshot returns a deep copy of the ledger state.
func (l *Ledger) Snapshot() *State {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := &State{
		MarketCount: l.count,
		FeeRateBPS:  l.feeRate,
		Held:        l.held.Clone(),
		Markets:     make([]MarketState, 0, len(l.markets)),
	}
	for id := uint64(1); id <= l.count; id++ {
		m, ok := l.markets[id]
		if !ok {
			continue
		}
		st.Markets = append(st.Markets, MarketState{
			Summary:       m.summary(),
			StakesWith:    copyStakes(m.stakes[SideWith]),
			StakesAgainst: copyStakes(m.stakes[SideAgainst]),
		})
	}
	return st
}

// Restore replaces the ledger's bookkeeping with st. It is meant to be
// called once at startup, before the ledger serves any operation.
func (l *Ledger) Restore(st *State) error {
	if st == nil {
		return nil
	}
	if st.FeeRateBPS > l.maxFee {
		return fmt.Errorf("%w: restored fee rate %d bp above cap %d", ErrInvalidArgument, st.FeeRateBPS, l.maxFee)
	}

	markets := make(map[uint64]*market, len(st.Markets))
	for _, ms := range st.Markets {
		if ms.ID == 0 || ms.ID > st.MarketCount {
			return fmt.Errorf("%w: market id %d outside counter %d", ErrInvalidArgument, ms.ID, st.MarketCount)
		}
		if _, dup := markets[ms.ID]; dup {
			return fmt.Errorf("%w: duplicate market %d", ErrInvalidArgument, ms.ID)
		}
		m := newMarket(ms.ID, ms.Title, ms.CreatedAt, ms.EndsAt, ms.Confidence)
		m.resolved = ms.Resolved
		m.outcome = ms.Outcome
		m.totals[SideWith] = cloneOrZero(ms.TotalWith)
		m.totals[SideAgainst] = cloneOrZero(ms.TotalAgainst)
		m.stakes[SideWith] = copyStakes(ms.StakesWith)
		m.stakes[SideAgainst] = copyStakes(ms.StakesAgainst)

		// Claims clear winning stakes, so sums only match totals before resolution.
		if !m.resolved {
			for _, side := range []Side{SideWith, SideAgainst} {
				if sum := sumStakes(m.stakes[side]); !sum.Eq(m.totals[side]) {
					return fmt.Errorf("%w: market %d %s stakes sum %s, total %s",
						ErrInvalidArgument, ms.ID, side, sum.Dec(), m.totals[side].Dec())
				}
			}
		}
		markets[ms.ID] = m
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.count = st.MarketCount
	l.feeRate = st.FeeRateBPS
	l.held = cloneOrZero(st.Held)
	l.markets = markets
	return nil
}

func copyStakes(src map[common.Address]*uint256.Int) map[common.Address]*uint256.Int {
	dst := make(map[common.Address]*uint256.Int, len(src))
	for who, v := range src {
		if v == nil || v.IsZero() {
			continue
		}
		dst[who] = v.Clone()
	}
	return dst
}

func sumStakes(stakes map[common.Address]*uint256.Int) *uint256.Int {
	sum := new(uint256.Int)
	for _, v := range stakes {
		sum.Add(sum, v)
	}
	return sum
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
