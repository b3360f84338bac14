package domain

import "errors"

var (
	ErrNotConnected    = errors.New("not connected to terminal")
	ErrSymbolNotFound  = errors.New("symbol not found")
	ErrTickUnavailable = errors.New("tick unavailable")
	ErrPositionMissing = errors.New("position not found")
)
