package ledger

import (
	"errors"
	"fmt"
	"time"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// NormalBalance enumerates which side an account normally carries.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "debit"
	NormalBalanceCredit NormalBalance = "credit"
)

// EntryType enumerates every posting event the engine understands.
// The set is closed; dispatch over it must be exhaustive.
type EntryType string

const (
	EntryTypeSale              EntryType = "sale"
	EntryTypeExpense           EntryType = "expense"
	EntryTypeInvestment        EntryType = "investment"
	EntryTypeWithdrawal        EntryType = "withdrawal"
	EntryTypeOrderCreated      EntryType = "order_created"
	EntryTypeOrderInPrep       EntryType = "order_in_prep"
	EntryTypeOrderDelivered    EntryType = "order_delivered"
	EntryTypeInventoryPurchase EntryType = "inventory_purchase"
	EntryTypeOrderPayment      EntryType = "order_payment"
	EntryTypeInternalTransfer  EntryType = "internal_transfer"
	EntryTypeCorrection        EntryType = "correction"
	EntryTypeOther             EntryType = "other"
)

// EntryTypes lists all valid entry types in declaration order.
var EntryTypes = []EntryType{
	EntryTypeSale, EntryTypeExpense, EntryTypeInvestment, EntryTypeWithdrawal,
	EntryTypeOrderCreated, EntryTypeOrderInPrep, EntryTypeOrderDelivered,
	EntryTypeInventoryPurchase, EntryTypeOrderPayment, EntryTypeInternalTransfer,
	EntryTypeCorrection, EntryTypeOther,
}

// Valid reports whether t is a member of the closed entry type set.
func (t EntryType) Valid() bool {
	for _, known := range EntryTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Account models a chart of accounts node. Accounts are referenced by code
// throughout the posting engine so the role-to-code mapping stays tenant
// configurable.
type Account struct {
	ID            int64
	Code          string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	IsCash        bool
	IsCOGS        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JournalEntry captures posting metadata. Entries are never mutated after
// creation; corrections are new entries referencing the same business key.
type JournalEntry struct {
	ID          int64
	Date        time.Time
	Description string
	Reference   string
	Type        EntryType
	CreatedAt   time.Time
	Lines       []JournalLine
}

// JournalLine stores a debit or credit amount for one account. Exactly one
// of DebitCents/CreditCents is positive.
type JournalLine struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	AccountCode string
	DebitCents  int64
	CreditCents int64
	CreatedAt   time.Time
}

// LineInput describes a journal line for an entry creation request.
type LineInput struct {
	AccountCode string
	DebitCents  int64
	CreditCents int64
}

// EntryInput groups fields required to create a journal entry.
type EntryInput struct {
	Date        time.Time
	Description string
	Reference   string
	Type        EntryType
	Lines       []LineInput
}

var (
	// ErrUnbalanced indicates total debits != total credits.
	ErrUnbalanced = errors.New("ledger: entry lines must balance")
	// ErrZeroValue indicates a balanced but worthless entry.
	ErrZeroValue = errors.New("ledger: entry total must be greater than zero")
	// ErrInvalidLine indicates a line violating debit/credit exclusivity.
	ErrInvalidLine = errors.New("ledger: line must carry exactly one of debit or credit")
	// ErrAccountNotFound indicates a line referencing an unknown account code.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrInvalidEntryType indicates an entry type outside the closed set.
	ErrInvalidEntryType = errors.New("ledger: unknown entry type")
	// ErrEntryExists indicates the (type, reference) pair is already posted.
	ErrEntryExists = errors.New("ledger: entry already posted for reference")
	// ErrEntryNotFound indicates a missing entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
)

// Validate ensures the input satisfies every entry invariant that can be
// checked without storage access.
func (in EntryInput) Validate() error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEntryType, in.Type)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: entry has no lines", ErrZeroValue)
	}
	var debit, credit int64
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("%w: line %d missing account code", ErrAccountNotFound, idx)
		}
		if line.DebitCents < 0 || line.CreditCents < 0 {
			return fmt.Errorf("%w: line %d has a negative amount", ErrInvalidLine, idx)
		}
		if (line.DebitCents > 0) == (line.CreditCents > 0) {
			return fmt.Errorf("%w: line %d", ErrInvalidLine, idx)
		}
		debit += line.DebitCents
		credit += line.CreditCents
	}
	if debit != credit {
		return fmt.Errorf("%w: debits %d != credits %d", ErrUnbalanced, debit, credit)
	}
	if debit == 0 {
		return ErrZeroValue
	}
	return nil
}

// Total returns the entry's debit total, which equals its credit total for
// any posted entry.
func (e JournalEntry) Total() int64 {
	var total int64
	for _, line := range e.Lines {
		total += line.DebitCents
	}
	return total
}

// DebitTo returns the debit amount posted against the given account code.
func (e JournalEntry) DebitTo(accountCode string) int64 {
	var total int64
	for _, line := range e.Lines {
		if line.AccountCode == accountCode {
			total += line.DebitCents
		}
	}
	return total
}

// CreditTo returns the credit amount posted against the given account code.
func (e JournalEntry) CreditTo(accountCode string) int64 {
	var total int64
	for _, line := range e.Lines {
		if line.AccountCode == accountCode {
			total += line.CreditCents
		}
	}
	return total
}

// ReverseLines swaps every line's debit and credit, producing the input for
// a reversing entry.
func ReverseLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountCode: line.AccountCode,
			DebitCents:  line.CreditCents,
			CreditCents: line.DebitCents,
		})
	}
	return out
}
