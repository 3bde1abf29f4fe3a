package piwatch

import (
	"errors"
	"fmt"
)

// SentinelDeleted is the cookie value the appliance sets when it explicitly
// clears a session. It must never be accepted or replayed as a live sid.
const SentinelDeleted = "deleted"

// ErrDomainRequired rejects whitelist requests carrying an empty domain
// before any upstream call is made.
var ErrDomainRequired = errors.New("domain is required")

// TransportError wraps a network-level failure (connection refused, timeout)
// reaching the appliance, as opposed to an HTTP error status that was
// successfully received.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pihole transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError carries a non-2xx appliance response through to the caller.
// Status-code semantics belong to whoever maps it onto a user-facing reply.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("pihole returned status %d: %s", e.Status, e.Message)
}
