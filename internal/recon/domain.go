package recon

import (
	"errors"

	"github.com/brioche-erp/brioche/internal/ledger"
)

// CheckName identifies one verification check.
type CheckName string

const (
	CheckQuantityMatchesMovements   CheckName = "quantity_matches_movements"
	CheckWIPMatchesOpenInPrep       CheckName = "wip_balance_matches_open_in_prep"
	CheckInventoryMatchesValuation  CheckName = "inventory_balance_matches_valuation"
	CheckOrderWIPConsistency        CheckName = "order_wip_consistency"
	CheckEntriesBalanced            CheckName = "journal_entries_balanced"
	CheckNoDuplicateEntries         CheckName = "no_duplicate_entries"
	CheckNoDuplicateMovements       CheckName = "no_duplicate_movements"
	CheckWithdrawalAccounts         CheckName = "withdrawal_accounts"
	CheckGiftOrdersUseGiftExpense   CheckName = "gift_orders_use_gift_expense"
	CheckNoZeroCostUsage            CheckName = "no_zero_cost_usage"
)

// AllChecks lists every check in a stable order.
var AllChecks = []CheckName{
	CheckQuantityMatchesMovements,
	CheckWIPMatchesOpenInPrep,
	CheckInventoryMatchesValuation,
	CheckOrderWIPConsistency,
	CheckEntriesBalanced,
	CheckNoDuplicateEntries,
	CheckNoDuplicateMovements,
	CheckWithdrawalAccounts,
	CheckGiftOrdersUseGiftExpense,
	CheckNoZeroCostUsage,
}

// Issue describes one detected inconsistency.
type Issue struct {
	Check     CheckName `json:"check"`
	Reference string    `json:"reference"`
	Detail    string    `json:"detail"`
}

// CheckResult is the outcome of one verification check.
type CheckResult struct {
	Check   CheckName `json:"check"`
	OK      bool      `json:"ok"`
	Details string    `json:"details"`
	Issues  []Issue   `json:"issues,omitempty"`
}

// RepairAction describes one applied repair step.
type RepairAction struct {
	Check     CheckName `json:"check"`
	Action    string    `json:"action"`
	Reference string    `json:"reference"`
	Detail    string    `json:"detail"`
}

var (
	// ErrUnknownCheck indicates an unrecognised check name.
	ErrUnknownCheck = errors.New("recon: unknown check")
	// ErrNoRepair indicates the check is report-only.
	ErrNoRepair = errors.New("recon: no automated repair for check")
)

// EntrySummary is a slim entry view used by check queries.
type EntrySummary struct {
	ID          int64
	Type        ledger.EntryType
	Reference   string
	DebitCents  int64
	CreditCents int64
}

// DuplicateEntries groups entry ids sharing one (entry_type, reference)
// idempotency key, earliest first.
type DuplicateEntries struct {
	Type      ledger.EntryType
	Reference string
	EntryIDs  []int64
}

// DuplicateMovements groups movement ids sharing one (movement_type,
// source_type, source_id, item) key, earliest first.
type DuplicateMovements struct {
	MovementType string
	SourceType   string
	SourceID     int64
	ItemCode     string
	MovementIDs  []int64
}

// MovementTotals aggregates the movement log for one position.
type MovementTotals struct {
	NetQty  int64
	NetCost int64
}
