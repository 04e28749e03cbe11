package stock

import (
	"context"
	"fmt"

	"github.com/brioche-erp/brioche/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes standalone stock operations for collaborators that move
// inventory outside a ledger posting, such as location transfers.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Transfer moves stock between locations in its own transaction.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = RecordTransfer(ctx, tx, in)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.record(ctx, "stock.transfer", movement)
	return movement, nil
}

// Adjust records a manual quantity adjustment at the given unit cost.
func (s *Service) Adjust(ctx context.Context, itemCode, locationCode string, qtyDelta, unitCostCents int64) (Movement, error) {
	if qtyDelta == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = RecordAdjustment(ctx, tx, itemCode, locationCode, qtyDelta, unitCostCents)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.record(ctx, "stock.adjust", movement)
	return movement, nil
}

func (s *Service) record(ctx context.Context, action string, m Movement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "inventory_movement",
		EntityID: fmt.Sprintf("%d", m.ID),
		Meta: map[string]any{
			"item_code":        m.ItemCode,
			"qty":              m.Qty,
			"total_cost_cents": m.TotalCostCents,
		},
	})
}
