package booking

import (
	"errors"
	"strings"

	"github.com/example/accessiride/internal/cabservice"
)

var (
	ErrNoContactMethod         = errors.New("no phone number or email available for this cab")
	ErrContactInitiationFailed = errors.New("contact initiation failed")
	ErrPollUnparseable         = errors.New("status response unparseable")
	ErrCallbackRequestFailed   = errors.New("callback request failed")
	ErrCallbackInFlight        = errors.New("callback request already in flight")
	ErrUnknownProvider         = errors.New("unknown provider")
	ErrUnknownRun              = errors.New("unknown booking run")
	ErrRunClosed               = errors.New("booking run closed")
	ErrNotQuoted               = errors.New("provider has no quoted fare")
	ErrAlreadyHeld             = errors.New("fare already held")
	ErrNoHold                  = errors.New("no fare hold for provider")
	ErrPaymentFailed           = errors.New("payment provider failed")
)

// Resolution is the verdict of the completion predicate over one status.
type Resolution int

const (
	Unresolved Resolution = iota
	ResolvedUnreachable
	ResolvedUnavailable
	ResolvedQuoted
)

func (r Resolution) String() string {
	switch r {
	case ResolvedUnreachable:
		return "unreachable"
	case ResolvedUnavailable:
		return "unavailable"
	case ResolvedQuoted:
		return "quoted"
	}
	return "in_progress"
}

// Evaluate applies the completion predicate. The conversation is over when
// the bot reached the wrong dispatcher, when no taxi is available, or when
// the right dispatcher confirmed a taxi together with pickup time and fare.
// Anything else means the conversation is still running.
func Evaluate(st *cabservice.Status) Resolution {
	if st == nil {
		return ResolvedUnreachable
	}
	if st.CorrectDispatcher != nil && !*st.CorrectDispatcher {
		return ResolvedUnreachable
	}
	if st.TaxiAvailable != nil && !*st.TaxiAvailable {
		return ResolvedUnavailable
	}
	if st.CorrectDispatcher != nil && st.TaxiAvailable != nil &&
		st.EarliestPickupTime != nil && strings.TrimSpace(*st.EarliestPickupTime) != "" &&
		st.EstimatedFare != nil {
		return ResolvedQuoted
	}
	return Unresolved
}
