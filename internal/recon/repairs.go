package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brioche-erp/brioche/internal/ledger"
	"github.com/brioche-erp/brioche/internal/posting"
	"github.com/brioche-erp/brioche/internal/shared"
)

// RunRepair applies the automated repair for one check and reports the
// actions taken. Checks without a safe automated repair return ErrNoRepair;
// those require a manually posted correction.
func (s *Service) RunRepair(ctx context.Context, check CheckName) ([]RepairAction, error) {
	if !knownCheck(check) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCheck, check)
	}
	var actions []RepairAction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		switch check {
		case CheckNoDuplicateEntries:
			actions, err = s.repairDuplicateEntries(ctx, tx)
		case CheckNoDuplicateMovements:
			actions, err = s.repairDuplicateMovements(ctx, tx)
		case CheckQuantityMatchesMovements:
			actions, err = s.repairQuantities(ctx, tx)
		case CheckInventoryMatchesValuation:
			actions, err = s.repairValuationDrift(ctx, tx)
		case CheckWithdrawalAccounts:
			actions, err = s.repairWithdrawals(ctx, tx)
		default:
			return fmt.Errorf("%w: %s", ErrNoRepair, check)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, action := range actions {
		s.recordRepair(ctx, action)
	}
	return actions, nil
}

// repairDuplicateEntries keeps the earliest entry of each duplicate group
// and removes the rest with their lines and links.
func (s *Service) repairDuplicateEntries(ctx context.Context, tx TxRepository) ([]RepairAction, error) {
	groups, err := tx.ListDuplicateEntryGroups(ctx)
	if err != nil {
		return nil, err
	}
	var actions []RepairAction
	for _, g := range groups {
		for _, id := range g.EntryIDs[1:] {
			if err := tx.DeleteEntry(ctx, id); err != nil {
				return nil, err
			}
			actions = append(actions, RepairAction{
				Check:     CheckNoDuplicateEntries,
				Action:    "delete_entry",
				Reference: g.Reference,
				Detail:    fmt.Sprintf("removed duplicate entry %d, kept %d", id, g.EntryIDs[0]),
			})
		}
	}
	return actions, nil
}

// repairDuplicateMovements removes later duplicates, then rebuilds the
// affected positions from the surviving movement log so the quantity check
// converges in the same transaction.
func (s *Service) repairDuplicateMovements(ctx context.Context, tx TxRepository) ([]RepairAction, error) {
	groups, err := tx.ListDuplicateMovementGroups(ctx)
	if err != nil {
		return nil, err
	}
	var actions []RepairAction
	touched := map[string]bool{}
	for _, g := range groups {
		for _, id := range g.MovementIDs[1:] {
			if err := tx.DeleteMovement(ctx, id); err != nil {
				return nil, err
			}
			actions = append(actions, RepairAction{
				Check:     CheckNoDuplicateMovements,
				Action:    "delete_movement",
				Reference: fmt.Sprintf("%s #%d", g.SourceType, g.SourceID),
				Detail:    fmt.Sprintf("removed duplicate %s movement %d of %s", g.MovementType, id, g.ItemCode),
			})
		}
		touched[g.ItemCode] = true
	}
	if len(touched) == 0 {
		return actions, nil
	}
	rebuilt, err := s.repairQuantities(ctx, tx)
	if err != nil {
		return nil, err
	}
	return append(actions, rebuilt...), nil
}

// repairQuantities overwrites each diverged position with the quantity and
// average cost its movement log implies.
func (s *Service) repairQuantities(ctx context.Context, tx TxRepository) ([]RepairAction, error) {
	positions, err := tx.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	var actions []RepairAction
	for _, pos := range positions {
		totals, err := tx.MovementTotals(ctx, pos.ItemCode, pos.LocationCode)
		if err != nil {
			return nil, err
		}
		if totals.NetQty == pos.QtyOnHand {
			continue
		}
		next := pos
		next.QtyOnHand = totals.NetQty
		if totals.NetQty > 0 && totals.NetCost > 0 {
			next.AvgCostCents = roundDiv(totals.NetCost, totals.NetQty)
		}
		if err := tx.OverwritePosition(ctx, next); err != nil {
			return nil, err
		}
		actions = append(actions, RepairAction{
			Check:     CheckQuantityMatchesMovements,
			Action:    "rebuild_position",
			Reference: fmt.Sprintf("%s@%s", pos.ItemCode, pos.LocationCode),
			Detail:    fmt.Sprintf("quantity %d -> %d", pos.QtyOnHand, next.QtyOnHand),
		})
	}
	return actions, nil
}

// repairValuationDrift cleans up duplicates and stale quantities first, then
// writes only the residual difference between the inventory accounts and the
// position valuation off to cost of goods sold. Posting before the cleanup
// would bake a drift the dedupe already explains into the ledger.
func (s *Service) repairValuationDrift(ctx context.Context, tx TxRepository) ([]RepairAction, error) {
	actions, err := s.repairDuplicateEntries(ctx, tx)
	if err != nil {
		return nil, err
	}
	moveActions, err := s.repairDuplicateMovements(ctx, tx)
	if err != nil {
		return nil, err
	}
	actions = append(actions, moveActions...)
	qtyActions, err := s.repairQuantities(ctx, tx)
	if err != nil {
		return nil, err
	}
	actions = append(actions, qtyActions...)

	result, err := s.checkInventoryMatchesValuation(ctx, tx)
	if err != nil {
		return nil, err
	}
	if result.OK {
		return actions, nil
	}
	ingredientsInv, err := s.roles.Resolve(ctx, posting.RoleIngredientsInventory)
	if err != nil {
		return nil, err
	}
	cogs, err := s.roles.Resolve(ctx, posting.RoleIngredientsCOGS)
	if err != nil {
		return nil, err
	}
	invBalance, err := tx.AccountBalance(ctx, ingredientsInv)
	if err != nil {
		return nil, err
	}
	var ledgerTotal int64 = invBalance
	for _, role := range []posting.Role{posting.RolePackingInventory, posting.RoleKitchenInventory} {
		code, err := s.roles.Resolve(ctx, role)
		if err != nil {
			return nil, err
		}
		balance, err := tx.AccountBalance(ctx, code)
		if err != nil {
			return nil, err
		}
		ledgerTotal += balance
	}
	valuation, err := tx.TotalValuation(ctx)
	if err != nil {
		return nil, err
	}
	diff := ledgerTotal - valuation
	if diff == 0 {
		return actions, nil
	}
	lines := []ledger.LineInput{
		{AccountCode: cogs, DebitCents: diff},
		{AccountCode: ingredientsInv, CreditCents: diff},
	}
	if diff < 0 {
		lines = []ledger.LineInput{
			{AccountCode: ingredientsInv, DebitCents: -diff},
			{AccountCode: cogs, CreditCents: -diff},
		}
	}
	reference := fmt.Sprintf("Inventory shrinkage %s", time.Now().UTC().Format("2006-01-02"))
	entry, err := ledger.CreateEntry(ctx, tx, ledger.EntryInput{
		Date:        time.Now().UTC(),
		Description: "Write inventory valuation drift off to cost of goods sold",
		Reference:   reference,
		Type:        ledger.EntryTypeCorrection,
		Lines:       lines,
	})
	if errors.Is(err, ledger.ErrEntryExists) {
		return nil, fmt.Errorf("recon: shrinkage already written off today under %q", reference)
	}
	if err != nil {
		return nil, err
	}
	return append(actions, RepairAction{
		Check:     CheckInventoryMatchesValuation,
		Action:    "post_correction",
		Reference: entry.Reference,
		Detail:    fmt.Sprintf("wrote %s off to cost of goods sold", shared.FormatCents(diff)),
	}), nil
}

// repairWithdrawals posts one reclass correction per withdrawal that debited
// equity directly: debit owner's drawings, credit owner's equity.
func (s *Service) repairWithdrawals(ctx context.Context, tx TxRepository) ([]RepairAction, error) {
	equityCode, err := s.roles.Resolve(ctx, posting.RoleOwnersEquity)
	if err != nil {
		return nil, err
	}
	drawingsCode, err := s.roles.Resolve(ctx, posting.RoleOwnersDrawings)
	if err != nil {
		return nil, err
	}
	entries, err := tx.ListWithdrawalEquityDebits(ctx, equityCode)
	if err != nil {
		return nil, err
	}
	var actions []RepairAction
	for _, bad := range entries {
		reference := fmt.Sprintf("Reclass %s", bad.Reference)
		entry, err := ledger.CreateEntry(ctx, tx, ledger.EntryInput{
			Date:        time.Now().UTC(),
			Description: fmt.Sprintf("Reclass withdrawal %s from owner's equity to owner's drawings", bad.Reference),
			Reference:   reference,
			Type:        ledger.EntryTypeCorrection,
			Lines: []ledger.LineInput{
				{AccountCode: drawingsCode, DebitCents: bad.DebitCents},
				{AccountCode: equityCode, CreditCents: bad.DebitCents},
			},
		})
		if errors.Is(err, ledger.ErrEntryExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		actions = append(actions, RepairAction{
			Check:     CheckWithdrawalAccounts,
			Action:    "post_correction",
			Reference: entry.Reference,
			Detail:    fmt.Sprintf("moved %s from owner's equity to owner's drawings", shared.FormatCents(bad.DebitCents)),
		})
	}
	return actions, nil
}

func (s *Service) recordRepair(ctx context.Context, action RepairAction) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   fmt.Sprintf("recon.repair.%s", action.Action),
		Entity:   string(action.Check),
		EntityID: action.Reference,
		Meta:     map[string]any{"detail": action.Detail},
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("error", err.Error()))
	}
}

func roundDiv(num, den int64) int64 {
	if den == 0 {
		return 0
	}
	return (num + den/2) / den
}
