package ledger

import (
	"context"
	"errors"
)

// CreateEntry validates the input and writes the entry plus all of its lines
// through the supplied transaction. No partial writes: an invalid entry
// produces zero rows because the surrounding transaction rolls back.
func CreateEntry(ctx context.Context, tx TxRepository, in EntryInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	lines := make([]JournalLine, 0, len(in.Lines))
	for _, line := range in.Lines {
		account, err := tx.GetAccountByCode(ctx, line.AccountCode)
		if err != nil {
			return JournalEntry{}, err
		}
		lines = append(lines, JournalLine{
			AccountID:   account.ID,
			AccountCode: account.Code,
			DebitCents:  line.DebitCents,
			CreditCents: line.CreditCents,
		})
	}
	entry, err := tx.InsertEntry(ctx, in)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertLines(ctx, entry.ID, lines); err != nil {
		return JournalEntry{}, err
	}
	for i := range lines {
		lines[i].EntryID = entry.ID
	}
	entry.Lines = lines
	return entry, nil
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service exposes standalone entry creation for collaborators that post
// outside an order lifecycle transaction.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateEntry posts a standalone journal entry in its own transaction.
func (s *Service) CreateEntry(ctx context.Context, in EntryInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = CreateEntry(ctx, tx, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// FindEntry loads an entry by its idempotency key.
func (s *Service) FindEntry(ctx context.Context, entryType EntryType, reference string) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.FindEntry(ctx, entryType, reference)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// IsValidationError reports whether err is one of the entry validation
// failures that callers should surface rather than retry.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnbalanced) ||
		errors.Is(err, ErrZeroValue) ||
		errors.Is(err, ErrInvalidLine) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInvalidEntryType)
}
