package lifecycle

import (
	"errors"
	"fmt"

	"github.com/brioche-erp/brioche/internal/posting"
)

// Status enumerates order lifecycle states.
type Status string

const (
	StatusNewOrder  Status = "new_order"
	StatusInPrep    Status = "in_prep"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCanceled  Status = "canceled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNewOrder, StatusInPrep, StatusReady, StatusDelivered, StatusCanceled:
		return true
	}
	return false
}

// Order combines the posting snapshot with the lifecycle state the caller
// holds. The controller never stores orders; it only drives postings.
type Order struct {
	posting.OrderSnapshot
	Status Status
}

var (
	// ErrInvalidTransition indicates an unsupported status change.
	ErrInvalidTransition = errors.New("lifecycle: invalid status transition")
	// ErrUnknownStatus indicates a status outside the enum.
	ErrUnknownStatus = errors.New("lifecycle: unknown status")
)

// allowedTransitions maps from-status to the set of reachable targets.
// ready is a UI-only intermediate with no ledger effect of its own.
var allowedTransitions = map[Status][]Status{
	StatusNewOrder: {StatusInPrep, StatusCanceled},
	StatusInPrep:   {StatusReady, StatusDelivered, StatusCanceled},
	StatusReady:    {StatusDelivered},
}

// CanTransition reports whether from -> to is a supported transition.
func CanTransition(from, to Status) bool {
	for _, target := range allowedTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

func invalidTransition(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
