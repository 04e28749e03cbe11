package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brioche-erp/brioche/internal/ledger"
	"github.com/brioche-erp/brioche/internal/posting"
)

// PostingPort is the slice of the posting engine the controller drives.
type PostingPort interface {
	PostOrderInPrep(ctx context.Context, order posting.OrderSnapshot) (posting.PostingOutcome, error)
	PostOrderDelivered(ctx context.Context, order posting.OrderSnapshot) (posting.PostingOutcome, error)
	PostOrderCanceled(ctx context.Context, order posting.OrderSnapshot) (posting.PostingOutcome, error)
	PostPayment(ctx context.Context, payment posting.PaymentSnapshot) (ledger.JournalEntry, error)
}

// LockPort serialises transitions per order.
type LockPort interface {
	Acquire(ctx context.Context, orderID int64) (func(), error)
}

// Controller drives posting engine calls from order status transitions and
// payment events. Each transition is idempotent with respect to its
// reference key; re-invoking after success is a safe no-op.
type Controller struct {
	engine PostingPort
	locks  LockPort
	logger *slog.Logger
}

// NewController constructs the lifecycle controller.
func NewController(engine PostingPort, locks LockPort, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{engine: engine, locks: locks, logger: logger}
}

// PostStatusChange applies the ledger effect of moving order to newStatus.
// Transitions for one order run under a per-order lock so two simultaneous
// calls cannot double-consume inventory before either posts its
// idempotency-guarding entry.
func (c *Controller) PostStatusChange(ctx context.Context, order Order, newStatus Status) (posting.PostingOutcome, error) {
	if !newStatus.Valid() {
		return posting.PostingOutcome{}, fmt.Errorf("%w: %q", ErrUnknownStatus, newStatus)
	}
	if !order.Status.Valid() {
		return posting.PostingOutcome{}, fmt.Errorf("%w: %q", ErrUnknownStatus, order.Status)
	}
	release, err := c.acquire(ctx, order.ID)
	if err != nil {
		return posting.PostingOutcome{}, err
	}
	defer release()

	// Re-invocation with the order already in the target state resolves
	// through the engine's idempotency checks rather than erroring.
	if order.Status == newStatus {
		return c.reapply(ctx, order, newStatus)
	}
	if !CanTransition(order.Status, newStatus) {
		return posting.PostingOutcome{}, invalidTransition(order.Status, newStatus)
	}
	var outcome posting.PostingOutcome
	switch newStatus {
	case StatusInPrep:
		outcome, err = c.engine.PostOrderInPrep(ctx, order.OrderSnapshot)
	case StatusDelivered:
		outcome, err = c.engine.PostOrderDelivered(ctx, order.OrderSnapshot)
	case StatusCanceled:
		if order.Status == StatusNewOrder {
			outcome = posting.PostingOutcome{NoLedgerEffect: true}
		} else {
			outcome, err = c.engine.PostOrderCanceled(ctx, order.OrderSnapshot)
		}
	case StatusReady:
		outcome = posting.PostingOutcome{NoLedgerEffect: true}
	}
	if err != nil {
		return posting.PostingOutcome{}, err
	}
	c.logger.Info("status change posted",
		slog.Int64("order_id", order.ID),
		slog.String("from", string(order.Status)),
		slog.String("to", string(newStatus)),
		slog.Bool("already_posted", outcome.AlreadyPosted),
		slog.Bool("no_ledger_effect", outcome.NoLedgerEffect))
	return outcome, nil
}

func (c *Controller) reapply(ctx context.Context, order Order, status Status) (posting.PostingOutcome, error) {
	switch status {
	case StatusInPrep:
		return c.engine.PostOrderInPrep(ctx, order.OrderSnapshot)
	case StatusDelivered:
		return c.engine.PostOrderDelivered(ctx, order.OrderSnapshot)
	case StatusCanceled:
		return c.engine.PostOrderCanceled(ctx, order.OrderSnapshot)
	}
	return posting.PostingOutcome{NoLedgerEffect: true}, nil
}

// PostPayment records a received payment through the posting engine.
func (c *Controller) PostPayment(ctx context.Context, payment posting.PaymentSnapshot) (ledger.JournalEntry, error) {
	release, err := c.acquire(ctx, payment.OrderID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	defer release()
	return c.engine.PostPayment(ctx, payment)
}

func (c *Controller) acquire(ctx context.Context, orderID int64) (func(), error) {
	if c.locks == nil {
		return func() {}, nil
	}
	return c.locks.Acquire(ctx, orderID)
}
