package posting

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche/internal/ledger"
	"github.com/brioche-erp/brioche/internal/platform/db"
	"github.com/brioche-erp/brioche/internal/stock"
)

// TxRepository is the combined transactional surface a posting handler works
// against. Ledger writes, stock mutations, cost side rows, and source links
// all commit or roll back together.
type TxRepository interface {
	ledger.TxRepository
	stock.TxRepository
	InsertOrderCost(ctx context.Context, c OrderCost) error
	GetOrderCost(ctx context.Context, orderID int64) (OrderCost, error)
	LinkEntry(ctx context.Context, entryID int64, sourceType string, sourceID int64) error
	FindEntryBySource(ctx context.Context, sourceType string, sourceID int64) (ledger.JournalEntry, error)
	SumPaymentCreditsForOrder(ctx context.Context, orderID int64, accountCode string) (int64, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Repository persists posting state in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	led ledger.TxRepository
	stk stock.TxRepository
	tx  pgx.Tx
}

// WithTx executes fn within one repeatable-read transaction shared by the
// ledger and stock repositories.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("posting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			led: ledger.NewTxRepository(tx),
			stk: stock.NewTxRepository(tx),
			tx:  tx,
		})
	})
}

func (r *txRepository) GetAccountByCode(ctx context.Context, code string) (ledger.Account, error) {
	return r.led.GetAccountByCode(ctx, code)
}

func (r *txRepository) InsertEntry(ctx context.Context, in ledger.EntryInput) (ledger.JournalEntry, error) {
	return r.led.InsertEntry(ctx, in)
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []ledger.JournalLine) error {
	return r.led.InsertLines(ctx, entryID, lines)
}

func (r *txRepository) FindEntry(ctx context.Context, entryType ledger.EntryType, reference string) (ledger.JournalEntry, error) {
	return r.led.FindEntry(ctx, entryType, reference)
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, entryID int64) (ledger.JournalEntry, error) {
	return r.led.GetEntryWithLines(ctx, entryID)
}

func (r *txRepository) ListEntriesByReference(ctx context.Context, reference string) ([]ledger.JournalEntry, error) {
	return r.led.ListEntriesByReference(ctx, reference)
}

func (r *txRepository) GetPositionForUpdate(ctx context.Context, itemCode, locationCode string) (stock.Position, error) {
	return r.stk.GetPositionForUpdate(ctx, itemCode, locationCode)
}

func (r *txRepository) UpsertPosition(ctx context.Context, pos stock.Position) error {
	return r.stk.UpsertPosition(ctx, pos)
}

func (r *txRepository) InsertMovement(ctx context.Context, m stock.Movement) (int64, error) {
	return r.stk.InsertMovement(ctx, m)
}

func (r *txRepository) GetMovement(ctx context.Context, id int64) (stock.Movement, error) {
	return r.stk.GetMovement(ctx, id)
}

func (r *txRepository) ListMovementsBySource(ctx context.Context, sourceType string, sourceID int64) ([]stock.Movement, error) {
	return r.stk.ListMovementsBySource(ctx, sourceType, sourceID)
}

func (r *txRepository) InsertOrderCost(ctx context.Context, c OrderCost) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO order_costs (order_id, ingredients_cents, packing_cents, kitchen_cents)
VALUES ($1,$2,$3,$4)
ON CONFLICT (order_id)
DO UPDATE SET ingredients_cents=EXCLUDED.ingredients_cents, packing_cents=EXCLUDED.packing_cents, kitchen_cents=EXCLUDED.kitchen_cents`,
		c.OrderID, c.IngredientsCents, c.PackingCents, c.KitchenCents)
	return err
}

func (r *txRepository) GetOrderCost(ctx context.Context, orderID int64) (OrderCost, error) {
	var c OrderCost
	err := r.tx.QueryRow(ctx, `SELECT order_id, ingredients_cents, packing_cents, kitchen_cents, created_at
FROM order_costs WHERE order_id=$1`, orderID).
		Scan(&c.OrderID, &c.IngredientsCents, &c.PackingCents, &c.KitchenCents, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderCost{}, ErrOrderCostNotFound
		}
		return OrderCost{}, err
	}
	return c, nil
}

func (r *txRepository) LinkEntry(ctx context.Context, entryID int64, sourceType string, sourceID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO entry_links (entry_id, source_type, source_id) VALUES ($1,$2,$3)`,
		entryID, sourceType, sourceID)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok &&
			(pgErr.ConstraintName == "uq_entry_links_source" || pgErr.ConstraintName == "uq_entry_links_payment") {
			return ErrLinkExists
		}
		return err
	}
	return nil
}

func (r *txRepository) FindEntryBySource(ctx context.Context, sourceType string, sourceID int64) (ledger.JournalEntry, error) {
	var entryID int64
	err := r.tx.QueryRow(ctx, `SELECT entry_id FROM entry_links WHERE source_type=$1 AND source_id=$2 ORDER BY entry_id ASC LIMIT 1`,
		sourceType, sourceID).Scan(&entryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.JournalEntry{}, ledger.ErrEntryNotFound
		}
		return ledger.JournalEntry{}, err
	}
	return r.GetEntryWithLines(ctx, entryID)
}

func (r *txRepository) SumPaymentCreditsForOrder(ctx context.Context, orderID int64, accountCode string) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(l.credit_cents), 0)
FROM journal_lines l
JOIN accounts a ON a.id = l.account_id
JOIN journal_entries e ON e.id = l.entry_id
JOIN entry_links k ON k.entry_id = e.id
WHERE e.entry_type = 'order_payment' AND k.source_type = 'order' AND k.source_id = $1 AND a.code = $2`,
		orderID, accountCode).Scan(&total)
	return total, err
}
