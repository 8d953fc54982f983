package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrPositionExists      = errors.New("position already exists for market")
	ErrPositionNotOpen     = errors.New("position is not open")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRateLimited         = errors.New("rate limited")
	ErrClientClosed        = errors.New("client closed")
)
