package matching

import (
	"errors"

	"matchbook/domain/orderbook"
)

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidSide       = errors.New("invalid side")

	// ErrInvalidPrice is returned for prices off the tick grid or outside
	// the ladder.
	ErrInvalidPrice = orderbook.ErrInvalidPrice
)
