package gateway

import "errors"

var (
	errNoSession    = errors.New("no session joined")
	errEmptyMessage = errors.New("message content must not be empty")
)
