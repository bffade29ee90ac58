package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrLockHeld      = errors.New("lock already held")

	// ErrConsensusWithdrawn signals that every input to a consensus estimate
	// has expired. It is a valid terminal state for the outcome, not a
	// failure; the outcome is simply withdrawn from scanning.
	ErrConsensusWithdrawn = errors.New("consensus withdrawn: all inputs stale")
)

// MalformedOddsError reports a venue-native odds value outside its
// convention's valid domain. The offending quote is dropped and the scan loop
// continues.
type MalformedOddsError struct {
	Format string
	Value  string
	Reason string
}

func (e *MalformedOddsError) Error() string {
	return fmt.Sprintf("malformed %s odds %q: %s", e.Format, e.Value, e.Reason)
}

// MalformedQuoteError reports an unparseable upstream quote payload.
type MalformedQuoteError struct {
	Venue  string
	Reason string
}

func (e *MalformedQuoteError) Error() string {
	return fmt.Sprintf("malformed quote from %s: %s", e.Venue, e.Reason)
}

// VenueError wraps a failure from a trade-execution or feed collaborator and
// carries the transient-vs-permanent distinction the lifecycle manager's
// retry policy relies on. Transient failures (timeouts, rate limits, 5xx)
// retry with backoff; permanent ones (auth, malformed request, rejection)
// surface immediately.
type VenueError struct {
	Venue     string
	Op        string
	Code      int
	Msg       string
	Transient bool
	Err       error
}

func (e *VenueError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s: %d %s", e.Venue, e.Op, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Venue, e.Op, e.Msg)
}

func (e *VenueError) Unwrap() error { return e.Err }

// IsTransientVenue reports whether err is a venue failure worth retrying.
func IsTransientVenue(err error) bool {
	var ve *VenueError
	return errors.As(err, &ve) && ve.Transient
}
