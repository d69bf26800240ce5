package inventory

import "errors"

var (
	ErrNotFound    = errors.New("disk not found")
	ErrUnavailable = errors.New("disk inventory unavailable")
)
