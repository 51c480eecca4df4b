package orderbook

import "errors"

var (
	ErrInvalidPrice  = errors.New("invalid price")
	ErrInvalidLadder = errors.New("invalid price ladder")
)
