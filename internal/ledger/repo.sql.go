package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche/internal/platform/db"
)

// Repository persists ledger entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional ledger operations.
type TxRepository interface {
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	InsertEntry(ctx context.Context, in EntryInput) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []JournalLine) error
	FindEntry(ctx context.Context, entryType EntryType, reference string) (JournalEntry, error)
	GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	ListEntriesByReference(ctx context.Context, reference string) ([]JournalEntry, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction. The posting engine uses this to
// share one transaction across ledger and stock mutations.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	var a Account
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, type, normal_balance, is_cash, is_cogs, created_at, updated_at
FROM accounts WHERE code=$1`, code).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.IsCash, &a.IsCOGS, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, in EntryInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (date, description, reference, entry_type)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`, in.Date, in.Description, in.Reference, string(in.Type))
	entry := JournalEntry{
		Date:        in.Date,
		Description: in.Description,
		Reference:   in.Reference,
		Type:        in.Type,
	}
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_journal_entries_type_reference" {
			return JournalEntry{}, ErrEntryExists
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit_cents, credit_cents)
VALUES ($1,$2,$3,$4)`, entryID, line.AccountID, line.DebitCents, line.CreditCents); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) FindEntry(ctx context.Context, entryType EntryType, reference string) (JournalEntry, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM journal_entries WHERE entry_type=$1 AND reference=$2 ORDER BY id ASC LIMIT 1`,
		string(entryType), reference).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return r.GetEntryWithLines(ctx, id)
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := r.tx.QueryRow(ctx, `SELECT id, date, description, reference, entry_type, created_at
FROM journal_entries WHERE id=$1`, entryID).
		Scan(&entry.ID, &entry.Date, &entry.Description, &entry.Reference, &entry.Type, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT l.id, l.entry_id, l.account_id, a.code, l.debit_cents, l.credit_cents, l.created_at
FROM journal_lines l JOIN accounts a ON a.id = l.account_id WHERE l.entry_id=$1 ORDER BY l.id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.AccountCode, &line.DebitCents, &line.CreditCents, &line.CreatedAt); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) ListEntriesByReference(ctx context.Context, reference string) ([]JournalEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id FROM journal_entries WHERE reference=$1 ORDER BY id ASC`, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	entries := make([]JournalEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := r.GetEntryWithLines(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
