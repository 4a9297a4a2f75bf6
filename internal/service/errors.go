package service

import "errors"

var (
	ErrRetriesExhausted = errors.New("cart kept changing, giving up")
	ErrInvalidOrderID   = errors.New("invalid order id")
)
