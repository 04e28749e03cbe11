package recon

import (
	"context"
	"fmt"

	"github.com/brioche-erp/brioche/internal/posting"
	"github.com/brioche-erp/brioche/internal/shared"
)

func (s *Service) checkQuantityMatchesMovements(ctx context.Context, tx TxRepository) (CheckResult, error) {
	positions, err := tx.ListPositions(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	var issues []Issue
	for _, pos := range positions {
		totals, err := tx.MovementTotals(ctx, pos.ItemCode, pos.LocationCode)
		if err != nil {
			return CheckResult{}, err
		}
		if totals.NetQty != pos.QtyOnHand {
			issues = append(issues, Issue{
				Check:     CheckQuantityMatchesMovements,
				Reference: fmt.Sprintf("%s@%s", pos.ItemCode, pos.LocationCode),
				Detail:    fmt.Sprintf("on hand %d, movement log sums to %d", pos.QtyOnHand, totals.NetQty),
			})
		}
	}
	if len(issues) > 0 {
		return dirty(CheckQuantityMatchesMovements,
			fmt.Sprintf("%d positions diverge from their movement logs", len(issues)), issues), nil
	}
	return clean(CheckQuantityMatchesMovements,
		fmt.Sprintf("%d positions match their movement logs", len(positions))), nil
}

func (s *Service) checkWIPMatchesOpenInPrep(ctx context.Context, tx TxRepository) (CheckResult, error) {
	wipCode, err := s.roles.Resolve(ctx, posting.RoleWIPInventory)
	if err != nil {
		return CheckResult{}, err
	}
	balance, err := tx.AccountBalance(ctx, wipCode)
	if err != nil {
		return CheckResult{}, err
	}
	open, err := tx.OpenInPrepWIPTotal(ctx, wipCode)
	if err != nil {
		return CheckResult{}, err
	}
	if balance != open {
		return dirty(CheckWIPMatchesOpenInPrep,
			fmt.Sprintf("WIP balance %s, open in-prep cost %s", shared.FormatCents(balance), shared.FormatCents(open)),
			[]Issue{{
				Check:  CheckWIPMatchesOpenInPrep,
				Detail: fmt.Sprintf("difference of %s", shared.FormatCents(balance-open)),
			}}), nil
	}
	return clean(CheckWIPMatchesOpenInPrep,
		fmt.Sprintf("WIP balance %s matches open in-prep cost", shared.FormatCents(balance))), nil
}

func (s *Service) checkInventoryMatchesValuation(ctx context.Context, tx TxRepository) (CheckResult, error) {
	var ledgerTotal int64
	for _, role := range []posting.Role{
		posting.RoleIngredientsInventory, posting.RolePackingInventory, posting.RoleKitchenInventory,
	} {
		code, err := s.roles.Resolve(ctx, role)
		if err != nil {
			return CheckResult{}, err
		}
		balance, err := tx.AccountBalance(ctx, code)
		if err != nil {
			return CheckResult{}, err
		}
		ledgerTotal += balance
	}
	valuation, err := tx.TotalValuation(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	if ledgerTotal != valuation {
		return dirty(CheckInventoryMatchesValuation,
			fmt.Sprintf("inventory accounts hold %s, positions value %s", shared.FormatCents(ledgerTotal), shared.FormatCents(valuation)),
			[]Issue{{
				Check:  CheckInventoryMatchesValuation,
				Detail: fmt.Sprintf("difference of %s", shared.FormatCents(ledgerTotal-valuation)),
			}}), nil
	}
	return clean(CheckInventoryMatchesValuation,
		fmt.Sprintf("inventory accounts match valuation at %s", shared.FormatCents(valuation))), nil
}

func (s *Service) checkOrderWIPConsistency(ctx context.Context, tx TxRepository) (CheckResult, error) {
	refs, err := tx.ListDeliveredWithoutInPrep(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	var issues []Issue
	for _, ref := range refs {
		issues = append(issues, Issue{
			Check:     CheckOrderWIPConsistency,
			Reference: ref,
			Detail:    "delivered entry without a matching in-prep entry",
		})
	}
	if len(issues) > 0 {
		return dirty(CheckOrderWIPConsistency,
			fmt.Sprintf("%d delivered orders never passed through in-prep", len(issues)), issues), nil
	}
	return clean(CheckOrderWIPConsistency, "every delivered order has an in-prep entry"), nil
}

func (s *Service) checkEntriesBalanced(ctx context.Context, tx TxRepository) (CheckResult, error) {
	entries, err := tx.ListUnbalancedEntries(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	var issues []Issue
	for _, e := range entries {
		issues = append(issues, Issue{
			Check:     CheckEntriesBalanced,
			Reference: e.Reference,
			Detail: fmt.Sprintf("entry %d (%s) debits %s, credits %s",
				e.ID, e.Type, shared.FormatCents(e.DebitCents), shared.FormatCents(e.CreditCents)),
		})
	}
	if len(issues) > 0 {
		return dirty(CheckEntriesBalanced,
			fmt.Sprintf("%d entries are unbalanced or empty", len(issues)), issues), nil
	}
	return clean(CheckEntriesBalanced, "all journal entries balance"), nil
}

func (s *Service) checkNoDuplicateEntries(ctx context.Context, tx TxRepository) (CheckResult, error) {
	groups, err := tx.ListDuplicateEntryGroups(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	var issues []Issue
	for _, g := range groups {
		issues = append(issues, Issue{
			Check:     CheckNoDuplicateEntries,
			Reference: g.Reference,
			Detail:    fmt.Sprintf("%d entries of type %s share this reference", len(g.EntryIDs), g.Type),
		})
	}
	if len(issues) > 0 {
		return dirty(CheckNoDuplicateEntries,
			fmt.Sprintf("%d duplicate entry groups", len(issues)), issues), nil
	}
	return clean(CheckNoDuplicateEntries, "no duplicate journal entries"), nil
}

func (s *Service) checkNoDuplicateMovements(ctx context.Context, tx TxRepository) (CheckResult, error) {
	groups, err := tx.ListDuplicateMovementGroups(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	var issues []Issue
	for _, g := range groups {
		issues = append(issues, Issue{
			Check:     CheckNoDuplicateMovements,
			Reference: fmt.Sprintf("%s #%d", g.SourceType, g.SourceID),
			Detail:    fmt.Sprintf("%d %s movements of %s share this source", len(g.MovementIDs), g.MovementType, g.ItemCode),
		})
	}
	if len(issues) > 0 {
		return dirty(CheckNoDuplicateMovements,
			fmt.Sprintf("%d duplicate movement groups", len(issues)), issues), nil
	}
	return clean(CheckNoDuplicateMovements, "no duplicate inventory movements"), nil
}

func (s *Service) checkWithdrawalAccounts(ctx context.Context, tx TxRepository) (CheckResult, error) {
	equityCode, err := s.roles.Resolve(ctx, posting.RoleOwnersEquity)
	if err != nil {
		return CheckResult{}, err
	}
	entries, err := tx.ListWithdrawalEquityDebits(ctx, equityCode)
	if err != nil {
		return CheckResult{}, err
	}
	var issues []Issue
	for _, e := range entries {
		issues = append(issues, Issue{
			Check:     CheckWithdrawalAccounts,
			Reference: e.Reference,
			Detail: fmt.Sprintf("entry %d debits owner's equity %s instead of owner's drawings",
				e.ID, shared.FormatCents(e.DebitCents)),
		})
	}
	if len(issues) > 0 {
		return dirty(CheckWithdrawalAccounts,
			fmt.Sprintf("%d withdrawals debit equity directly", len(issues)), issues), nil
	}
	return clean(CheckWithdrawalAccounts, "all withdrawals debit owner's drawings"), nil
}

func (s *Service) checkGiftOrdersUseGiftExpense(ctx context.Context, tx TxRepository) (CheckResult, error) {
	if s.gifts == nil {
		return clean(CheckGiftOrdersUseGiftExpense, "no gift order source configured"), nil
	}
	giftIDs, err := s.gifts.ListGiftOrderIDs(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	salesCode, err := s.roles.Resolve(ctx, posting.RoleSales)
	if err != nil {
		return CheckResult{}, err
	}
	entries, err := tx.ListGiftEntriesWithSales(ctx, giftIDs, salesCode)
	if err != nil {
		return CheckResult{}, err
	}
	var issues []Issue
	for _, e := range entries {
		issues = append(issues, Issue{
			Check:     CheckGiftOrdersUseGiftExpense,
			Reference: e.Reference,
			Detail: fmt.Sprintf("gift order credits sales %s instead of expensing to samples and gifts",
				shared.FormatCents(e.CreditCents)),
		})
	}
	if len(issues) > 0 {
		return dirty(CheckGiftOrdersUseGiftExpense,
			fmt.Sprintf("%d gift orders recognised revenue", len(issues)), issues), nil
	}
	return clean(CheckGiftOrdersUseGiftExpense,
		fmt.Sprintf("%d gift orders expensed correctly", len(giftIDs))), nil
}

func (s *Service) checkNoZeroCostUsage(ctx context.Context, tx TxRepository) (CheckResult, error) {
	movements, err := tx.ListZeroCostUsage(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	var issues []Issue
	for _, m := range movements {
		issues = append(issues, Issue{
			Check:     CheckNoZeroCostUsage,
			Reference: fmt.Sprintf("%s #%d", m.SourceType, m.SourceID),
			Detail:    fmt.Sprintf("movement %d consumed %d of %s at zero cost", m.ID, m.Qty, m.ItemCode),
		})
	}
	if len(issues) > 0 {
		return dirty(CheckNoZeroCostUsage,
			fmt.Sprintf("%d usage movements carry zero cost", len(issues)), issues), nil
	}
	return clean(CheckNoZeroCostUsage, "no zero-cost usage movements"), nil
}
