package domain

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrorKind classifies ledger failures. Kinds are errors themselves so callers can
// match with errors.Is(err, domain.KindRouteNotFound).
type ErrorKind string

const (
	KindAlreadyAssignedElsewhere ErrorKind = "already_assigned_elsewhere"
	KindInvalidPermutation       ErrorKind = "invalid_permutation"
	KindRouteNotFound            ErrorKind = "route_not_found"
	KindPassengerNotFound        ErrorKind = "passenger_not_found"
	KindTripNumberOutOfRange     ErrorKind = "trip_number_out_of_range"
	KindInvalidRoute             ErrorKind = "invalid_route"
	KindInconsistentSnapshot     ErrorKind = "inconsistent_snapshot"
)

func (k ErrorKind) Error() string { return strings.ReplaceAll(string(k), "_", " ") }

// AssignmentError is returned by every failing ledger operation.
type AssignmentError struct {
	Kind       ErrorKind
	RouteID    uuid.UUID
	AttendeeID uuid.UUID
	TripNumber int
	// ConflictingRouteID is set for KindAlreadyAssignedElsewhere.
	ConflictingRouteID uuid.UUID
	Detail             string
}

func (e *AssignmentError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.RouteID != uuid.Nil {
		fmt.Fprintf(&b, " route=%s", e.RouteID)
	}
	if e.AttendeeID != uuid.Nil {
		fmt.Fprintf(&b, " attendee=%s", e.AttendeeID)
	}
	if e.TripNumber != 0 {
		fmt.Fprintf(&b, " trip=%d", e.TripNumber)
	}
	if e.ConflictingRouteID != uuid.Nil {
		fmt.Fprintf(&b, " conflicting_route=%s", e.ConflictingRouteID)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *AssignmentError) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// KindOf extracts the ErrorKind of a ledger error anywhere in the chain.
func KindOf(err error) (ErrorKind, bool) {
	var ae *AssignmentError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// ConflictingRoute returns the route holding the attendee when err is an
// AlreadyAssignedElsewhere failure.
func ConflictingRoute(err error) (uuid.UUID, bool) {
	var ae *AssignmentError
	if errors.As(err, &ae) && ae.Kind == KindAlreadyAssignedElsewhere {
		return ae.ConflictingRouteID, true
	}
	return uuid.Nil, false
}
