package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brioche-erp/brioche/internal/ledger"
)

// PostExpense records a business expense: debit the expense account, credit
// the paying account.
func (e *Engine) PostExpense(ctx context.Context, ref, description, expenseAccount, paidFromAccount string, amountCents int64, date time.Time) (ledger.JournalEntry, error) {
	return e.postPair(ctx, pairSpec{
		Type: ledger.EntryTypeExpense, Reference: ref, Description: description,
		Debit: expenseAccount, Credit: paidFromAccount, Amount: amountCents, Date: date,
	})
}

// PostInvestment records owner capital coming in: debit the receiving cash
// account, credit owner's equity.
func (e *Engine) PostInvestment(ctx context.Context, ref, description, receivedToAccount string, amountCents int64, date time.Time) (ledger.JournalEntry, error) {
	equity, err := e.roles.Resolve(ctx, RoleOwnersEquity)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return e.postPair(ctx, pairSpec{
		Type: ledger.EntryTypeInvestment, Reference: ref, Description: description,
		Debit: receivedToAccount, Credit: equity, Amount: amountCents, Date: date,
	})
}

// PostWithdrawal records an owner draw: debit owner's drawings, credit the
// paying cash account. Drawings, not equity, per the chart's contra design.
func (e *Engine) PostWithdrawal(ctx context.Context, ref, description, paidFromAccount string, amountCents int64, date time.Time) (ledger.JournalEntry, error) {
	drawings, err := e.roles.Resolve(ctx, RoleOwnersDrawings)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return e.postPair(ctx, pairSpec{
		Type: ledger.EntryTypeWithdrawal, Reference: ref, Description: description,
		Debit: drawings, Credit: paidFromAccount, Amount: amountCents, Date: date,
	})
}

// PostInternalTransfer moves money between two cash accounts.
func (e *Engine) PostInternalTransfer(ctx context.Context, ref, description, fromAccount, toAccount string, amountCents int64, date time.Time) (ledger.JournalEntry, error) {
	return e.postPair(ctx, pairSpec{
		Type: ledger.EntryTypeInternalTransfer, Reference: ref, Description: description,
		Debit: toAccount, Credit: fromAccount, Amount: amountCents, Date: date,
	})
}

type pairSpec struct {
	Type        ledger.EntryType
	Reference   string
	Description string
	Debit       string
	Credit      string
	Amount      int64
	Date        time.Time
}

func (e *Engine) postPair(ctx context.Context, spec pairSpec) (ledger.JournalEntry, error) {
	if spec.Reference == "" {
		return ledger.JournalEntry{}, errors.New("posting: reference required")
	}
	var entry ledger.JournalEntry
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if existing, err := tx.FindEntry(ctx, spec.Type, spec.Reference); err == nil {
			entry = existing
			return nil
		} else if !errors.Is(err, ledger.ErrEntryNotFound) {
			return err
		}
		date := spec.Date
		if date.IsZero() {
			date = e.now()
		}
		var err error
		entry, err = ledger.CreateEntry(ctx, tx, ledger.EntryInput{
			Date:        date,
			Description: spec.Description,
			Reference:   spec.Reference,
			Type:        spec.Type,
			Lines: []ledger.LineInput{
				{AccountCode: spec.Debit, DebitCents: spec.Amount},
				{AccountCode: spec.Credit, CreditCents: spec.Amount},
			},
		})
		return err
	})
	if errors.Is(err, ledger.ErrEntryExists) {
		return e.findByTypeRef(ctx, spec.Type, spec.Reference)
	}
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e.record(ctx, fmt.Sprintf("posting.%s", spec.Type), entry)
	return entry, nil
}

// LedgerEffect reports whether an entry type carries a ledger effect when
// dispatched. The switch is exhaustive over the closed enum so an
// unrecognised event type fails loudly instead of silently no-oping.
func LedgerEffect(t ledger.EntryType) (bool, error) {
	switch t {
	case ledger.EntryTypeOrderCreated:
		return false, nil
	case ledger.EntryTypeSale, ledger.EntryTypeExpense, ledger.EntryTypeInvestment,
		ledger.EntryTypeWithdrawal, ledger.EntryTypeOrderInPrep, ledger.EntryTypeOrderDelivered,
		ledger.EntryTypeInventoryPurchase, ledger.EntryTypeOrderPayment,
		ledger.EntryTypeInternalTransfer, ledger.EntryTypeCorrection, ledger.EntryTypeOther:
		return true, nil
	}
	return false, fmt.Errorf("%w: %q", ledger.ErrInvalidEntryType, t)
}
