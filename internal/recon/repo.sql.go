package recon

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche/internal/ledger"
	"github.com/brioche-erp/brioche/internal/platform/db"
	"github.com/brioche-erp/brioche/internal/stock"
)

// TxRepository exposes the verification queries and the narrowly scoped
// repair mutations. Ledger access is embedded so repairs can post
// correction entries in the same transaction.
type TxRepository interface {
	ledger.TxRepository
	ListUnbalancedEntries(ctx context.Context) ([]EntrySummary, error)
	ListDuplicateEntryGroups(ctx context.Context) ([]DuplicateEntries, error)
	ListDuplicateMovementGroups(ctx context.Context) ([]DuplicateMovements, error)
	ListPositions(ctx context.Context) ([]stock.Position, error)
	MovementTotals(ctx context.Context, itemCode, locationCode string) (MovementTotals, error)
	AccountBalance(ctx context.Context, accountCode string) (int64, error)
	OpenInPrepWIPTotal(ctx context.Context, wipCode string) (int64, error)
	TotalValuation(ctx context.Context) (int64, error)
	ListWithdrawalEquityDebits(ctx context.Context, equityCode string) ([]EntrySummary, error)
	ListZeroCostUsage(ctx context.Context) ([]stock.Movement, error)
	ListDeliveredWithoutInPrep(ctx context.Context) ([]string, error)
	ListGiftEntriesWithSales(ctx context.Context, orderIDs []int64, salesCode string) ([]EntrySummary, error)
	DeleteEntry(ctx context.Context, entryID int64) error
	DeleteMovement(ctx context.Context, movementID int64) error
	OverwritePosition(ctx context.Context, pos stock.Position) error
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Repository persists reconciliation queries against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	ledger.TxRepository
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction. Repairs rely on
// the FOR UPDATE locks taken by the queries below for exclusive access to
// the rows they touch.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("recon repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: ledger.NewTxRepository(tx), tx: tx})
	})
}

func (r *txRepository) ListUnbalancedEntries(ctx context.Context) ([]EntrySummary, error) {
	rows, err := r.tx.Query(ctx, `SELECT e.id, e.entry_type, e.reference,
COALESCE(SUM(l.debit_cents),0), COALESCE(SUM(l.credit_cents),0)
FROM journal_entries e LEFT JOIN journal_lines l ON l.entry_id = e.id
GROUP BY e.id, e.entry_type, e.reference
HAVING COALESCE(SUM(l.debit_cents),0) <> COALESCE(SUM(l.credit_cents),0)
    OR COALESCE(SUM(l.debit_cents),0) = 0
ORDER BY e.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func (r *txRepository) ListDuplicateEntryGroups(ctx context.Context) ([]DuplicateEntries, error) {
	rows, err := r.tx.Query(ctx, `SELECT entry_type, reference, ARRAY_AGG(id ORDER BY id ASC)
FROM journal_entries
GROUP BY entry_type, reference
HAVING COUNT(*) > 1
ORDER BY entry_type, reference`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []DuplicateEntries
	for rows.Next() {
		var g DuplicateEntries
		var entryType string
		if err := rows.Scan(&entryType, &g.Reference, &g.EntryIDs); err != nil {
			return nil, err
		}
		g.Type = ledger.EntryType(entryType)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *txRepository) ListDuplicateMovementGroups(ctx context.Context) ([]DuplicateMovements, error) {
	rows, err := r.tx.Query(ctx, `SELECT movement_type, source_type, source_id, item_code, ARRAY_AGG(id ORDER BY id ASC)
FROM inventory_movements
WHERE source_type IS NOT NULL AND source_type <> 'reversal'
GROUP BY movement_type, source_type, source_id, item_code
HAVING COUNT(*) > 1
ORDER BY movement_type, source_type, source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []DuplicateMovements
	for rows.Next() {
		var g DuplicateMovements
		if err := rows.Scan(&g.MovementType, &g.SourceType, &g.SourceID, &g.ItemCode, &g.MovementIDs); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *txRepository) ListPositions(ctx context.Context) ([]stock.Position, error) {
	rows, err := r.tx.Query(ctx, `SELECT item_code, location_code, quantity_on_hand, avg_cost_cents, updated_at
FROM inventory_items ORDER BY item_code, location_code FOR UPDATE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var positions []stock.Position
	for rows.Next() {
		var p stock.Position
		if err := rows.Scan(&p.ItemCode, &p.LocationCode, &p.QtyOnHand, &p.AvgCostCents, &p.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (r *txRepository) MovementTotals(ctx context.Context, itemCode, locationCode string) (MovementTotals, error) {
	var t MovementTotals
	err := r.tx.QueryRow(ctx, `SELECT
COALESCE(SUM(CASE WHEN to_location = $2 THEN quantity WHEN from_location = $2 THEN -quantity ELSE 0 END), 0),
COALESCE(SUM(CASE WHEN to_location = $2 THEN total_cost_cents WHEN from_location = $2 THEN -total_cost_cents ELSE 0 END), 0)
FROM inventory_movements WHERE item_code = $1 AND (from_location = $2 OR to_location = $2)`,
		itemCode, locationCode).Scan(&t.NetQty, &t.NetCost)
	return t, err
}

func (r *txRepository) AccountBalance(ctx context.Context, accountCode string) (int64, error) {
	var balance int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit_cents - l.credit_cents), 0)
FROM journal_lines l JOIN accounts a ON a.id = l.account_id WHERE a.code = $1`, accountCode).Scan(&balance)
	return balance, err
}

func (r *txRepository) OpenInPrepWIPTotal(ctx context.Context, wipCode string) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit_cents), 0)
FROM journal_lines l
JOIN accounts a ON a.id = l.account_id
JOIN journal_entries e ON e.id = l.entry_id
WHERE a.code = $1 AND e.entry_type = 'order_in_prep'
AND NOT EXISTS (
  SELECT 1 FROM journal_entries done
  WHERE done.reference = e.reference AND done.entry_type IN ('order_delivered', 'correction')
)`, wipCode).Scan(&total)
	return total, err
}

func (r *txRepository) TotalValuation(ctx context.Context) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_on_hand * avg_cost_cents), 0) FROM inventory_items`).Scan(&total)
	return total, err
}

func (r *txRepository) ListWithdrawalEquityDebits(ctx context.Context, equityCode string) ([]EntrySummary, error) {
	rows, err := r.tx.Query(ctx, `SELECT e.id, e.entry_type, e.reference, COALESCE(SUM(l.debit_cents),0), 0::bigint
FROM journal_entries e
JOIN journal_lines l ON l.entry_id = e.id
JOIN accounts a ON a.id = l.account_id
WHERE e.entry_type = 'withdrawal' AND a.code = $1 AND l.debit_cents > 0
AND NOT EXISTS (
  SELECT 1 FROM journal_entries fix
  WHERE fix.entry_type = 'correction' AND fix.reference = 'Reclass ' || e.reference
)
GROUP BY e.id, e.entry_type, e.reference
ORDER BY e.id`, equityCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func (r *txRepository) ListZeroCostUsage(ctx context.Context) ([]stock.Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, item_code, COALESCE(from_location,''), COALESCE(to_location,''),
movement_type, quantity, unit_cost_cents, total_cost_cents, COALESCE(source_type,''), COALESCE(source_id,0), created_at
FROM inventory_movements WHERE movement_type = 'usage' AND total_cost_cents = 0 AND quantity > 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []stock.Movement
	for rows.Next() {
		var m stock.Movement
		var mType string
		if err := rows.Scan(&m.ID, &m.ItemCode, &m.FromLocation, &m.ToLocation, &mType, &m.Qty,
			&m.UnitCostCents, &m.TotalCostCents, &m.SourceType, &m.SourceID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = stock.MovementType(mType)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) ListDeliveredWithoutInPrep(ctx context.Context) ([]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT e.reference FROM journal_entries e
WHERE e.entry_type = 'order_delivered'
AND NOT EXISTS (
  SELECT 1 FROM journal_entries prep
  WHERE prep.reference = e.reference AND prep.entry_type = 'order_in_prep'
)
ORDER BY e.reference`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *txRepository) ListGiftEntriesWithSales(ctx context.Context, orderIDs []int64, salesCode string) ([]EntrySummary, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	rows, err := r.tx.Query(ctx, `SELECT e.id, e.entry_type, e.reference, 0::bigint, COALESCE(SUM(l.credit_cents),0)
FROM journal_entries e
JOIN entry_links k ON k.entry_id = e.id AND k.source_type = 'order'
JOIN journal_lines l ON l.entry_id = e.id
JOIN accounts a ON a.id = l.account_id
WHERE e.entry_type = 'order_delivered' AND k.source_id = ANY($1) AND a.code = $2 AND l.credit_cents > 0
GROUP BY e.id, e.entry_type, e.reference
ORDER BY e.id`, orderIDs, salesCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func (r *txRepository) DeleteEntry(ctx context.Context, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id = $1`, entryID); err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM entry_links WHERE entry_id = $1`, entryID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id = $1`, entryID)
	return err
}

func (r *txRepository) DeleteMovement(ctx context.Context, movementID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM inventory_movements WHERE id = $1`, movementID)
	return err
}

func (r *txRepository) OverwritePosition(ctx context.Context, pos stock.Position) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_items SET quantity_on_hand = $3, avg_cost_cents = $4, updated_at = NOW()
WHERE item_code = $1 AND location_code = $2`, pos.ItemCode, pos.LocationCode, pos.QtyOnHand, pos.AvgCostCents)
	return err
}

func scanSummaries(rows pgx.Rows) ([]EntrySummary, error) {
	var summaries []EntrySummary
	for rows.Next() {
		var s EntrySummary
		var entryType string
		if err := rows.Scan(&s.ID, &entryType, &s.Reference, &s.DebitCents, &s.CreditCents); err != nil {
			return nil, err
		}
		s.Type = ledger.EntryType(entryType)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
