package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// maxLevels caps the per-side ladder size so a misconfigured tick
// cannot allocate unbounded level storage.
const maxLevels = 1 << 20

// Ladder maps fixed-point prices onto integer ticks.
// Tick t represents price t*TickSize; the ladder spans [MinTick, MaxTick].
type Ladder struct {
	TickSize decimal.Decimal
	MinTick  int64
	MaxTick  int64
}

// NewLadder validates the grid. min and max must themselves be on it.
func NewLadder(tickSize, min, max decimal.Decimal) (Ladder, error) {
	if !tickSize.IsPositive() {
		return Ladder{}, fmt.Errorf("%w: tick size %s must be positive", ErrInvalidLadder, tickSize)
	}
	if !min.IsPositive() || min.GreaterThan(max) {
		return Ladder{}, fmt.Errorf("%w: range [%s, %s]", ErrInvalidLadder, min, max)
	}
	l := Ladder{TickSize: tickSize}
	lo, ok := l.ticksOf(min)
	if !ok {
		return Ladder{}, fmt.Errorf("%w: min %s is not a multiple of %s", ErrInvalidLadder, min, tickSize)
	}
	hi, ok := l.ticksOf(max)
	if !ok {
		return Ladder{}, fmt.Errorf("%w: max %s is not a multiple of %s", ErrInvalidLadder, max, tickSize)
	}
	if hi-lo+1 > maxLevels {
		return Ladder{}, fmt.Errorf("%w: %d levels exceeds %d", ErrInvalidLadder, hi-lo+1, maxLevels)
	}
	l.MinTick, l.MaxTick = lo, hi
	return l, nil
}

// MustLadder is NewLadder for static configuration; it panics on error.
func MustLadder(tickSize, min, max string) Ladder {
	l, err := NewLadder(
		decimal.RequireFromString(tickSize),
		decimal.RequireFromString(min),
		decimal.RequireFromString(max),
	)
	if err != nil {
		panic(err)
	}
	return l
}

func (l Ladder) ticksOf(p decimal.Decimal) (int64, bool) {
	if !p.Mod(l.TickSize).IsZero() {
		return 0, false
	}
	q := p.Div(l.TickSize)
	if !q.IsInteger() {
		return 0, false
	}
	return q.IntPart(), true
}

// ToTicks converts a price to its tick. Prices between ticks or
// outside the ladder fail with ErrInvalidPrice; nothing is rounded.
func (l Ladder) ToTicks(p decimal.Decimal) (int64, error) {
	t, ok := l.ticksOf(p)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a multiple of tick %s", ErrInvalidPrice, p, l.TickSize)
	}
	if !l.Contains(t) {
		return 0, fmt.Errorf("%w: %s outside [%s, %s]", ErrInvalidPrice, p, l.Price(l.MinTick), l.Price(l.MaxTick))
	}
	return t, nil
}

// Price converts a tick back to its price.
func (l Ladder) Price(tick int64) decimal.Decimal {
	return l.TickSize.Mul(decimal.NewFromInt(tick))
}

func (l Ladder) Contains(tick int64) bool {
	return tick >= l.MinTick && tick <= l.MaxTick
}

// Levels is the number of price levels per side.
func (l Ladder) Levels() int {
	return int(l.MaxTick - l.MinTick + 1)
}

func (l Ladder) index(tick int64) int {
	return int(tick - l.MinTick)
}
