package transport

import (
	"fmt"
	"time"
)

// DropError records an unexpected disconnect of an established connection.
type DropError struct {
	Reason string
}

func (e *DropError) Error() string {
	return fmt.Sprintf("transport: connection dropped: %s", e.Reason)
}

// TimeoutError records a connection attempt that neither completed nor
// failed within the attempt timeout.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transport: connect timed out after %s", e.After)
}
