package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche/internal/platform/db"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so the posting engine can pair
// stock mutations with ledger writes atomically.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) GetPositionForUpdate(ctx context.Context, itemCode, locationCode string) (Position, error) {
	var p Position
	err := r.tx.QueryRow(ctx, `SELECT item_code, location_code, quantity_on_hand, avg_cost_cents, updated_at
FROM inventory_items WHERE item_code=$1 AND location_code=$2 FOR UPDATE`, itemCode, locationCode).
		Scan(&p.ItemCode, &p.LocationCode, &p.QtyOnHand, &p.AvgCostCents, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{}, ErrPositionNotFound
		}
		return Position{}, err
	}
	return p, nil
}

func (r *txRepository) UpsertPosition(ctx context.Context, pos Position) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_items (item_code, location_code, quantity_on_hand, avg_cost_cents, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (item_code, location_code)
DO UPDATE SET quantity_on_hand=EXCLUDED.quantity_on_hand, avg_cost_cents=EXCLUDED.avg_cost_cents, updated_at=NOW()`,
		pos.ItemCode, pos.LocationCode, pos.QtyOnHand, pos.AvgCostCents)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements
(item_code, from_location, to_location, movement_type, quantity, unit_cost_cents, total_cost_cents, source_type, source_id)
VALUES ($1,NULLIF($2,''),NULLIF($3,''),$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,0)) RETURNING id`,
		m.ItemCode, m.FromLocation, m.ToLocation, string(m.Type), m.Qty, m.UnitCostCents, m.TotalCostCents, m.SourceType, m.SourceID).
		Scan(&id)
	return id, err
}

func (r *txRepository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	m, err := scanMovement(r.tx.QueryRow(ctx, `SELECT id, item_code, COALESCE(from_location,''), COALESCE(to_location,''),
movement_type, quantity, unit_cost_cents, total_cost_cents, COALESCE(source_type,''), COALESCE(source_id,0), created_at
FROM inventory_movements WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrMovementNotFound
		}
		return Movement{}, err
	}
	return m, nil
}

func (r *txRepository) ListMovementsBySource(ctx context.Context, sourceType string, sourceID int64) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, item_code, COALESCE(from_location,''), COALESCE(to_location,''),
movement_type, quantity, unit_cost_cents, total_cost_cents, COALESCE(source_type,''), COALESCE(source_id,0), created_at
FROM inventory_movements WHERE source_type=$1 AND source_id=$2 ORDER BY id ASC`, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (Movement, error) {
	var m Movement
	var mType string
	err := row.Scan(&m.ID, &m.ItemCode, &m.FromLocation, &m.ToLocation, &mType, &m.Qty,
		&m.UnitCostCents, &m.TotalCostCents, &m.SourceType, &m.SourceID, &m.CreatedAt)
	if err != nil {
		return Movement{}, err
	}
	m.Type = MovementType(mType)
	return m, nil
}
