package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type posKey struct {
	item string
	loc  string
}

// memRepo satisfies TxRepository for testing moving-average arithmetic
// without a database.
type memRepo struct {
	positions map[posKey]Position
	movements []Movement
	nextID    int64
}

func newMemRepo() *memRepo {
	return &memRepo{positions: make(map[posKey]Position), nextID: 1}
}

func (r *memRepo) GetPositionForUpdate(_ context.Context, itemCode, locationCode string) (Position, error) {
	pos, ok := r.positions[posKey{itemCode, locationCode}]
	if !ok {
		return Position{}, ErrPositionNotFound
	}
	return pos, nil
}

func (r *memRepo) UpsertPosition(_ context.Context, pos Position) error {
	r.positions[posKey{pos.ItemCode, pos.LocationCode}] = pos
	return nil
}

func (r *memRepo) InsertMovement(_ context.Context, m Movement) (int64, error) {
	id := r.nextID
	r.nextID++
	m.ID = id
	r.movements = append(r.movements, m)
	return id, nil
}

func (r *memRepo) GetMovement(_ context.Context, id int64) (Movement, error) {
	for _, m := range r.movements {
		if m.ID == id {
			return m, nil
		}
	}
	return Movement{}, ErrMovementNotFound
}

func (r *memRepo) ListMovementsBySource(_ context.Context, sourceType string, sourceID int64) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.SourceType == sourceType && m.SourceID == sourceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) position(t *testing.T, item, loc string) Position {
	t.Helper()
	pos, ok := r.positions[posKey{item, loc}]
	require.True(t, ok, "no position for %s at %s", item, loc)
	return pos
}

func TestRecordPurchaseMovingAverage(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()

	// 1000 g at 5000 cents total gives an average of 5 cents per gram.
	pos, mv, err := RecordPurchase(ctx, repo, PurchaseInput{
		ItemCode: "flour", LocationCode: "kitchen", Qty: 1000, TotalCostCents: 5000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1000), pos.QtyOnHand)
	require.Equal(t, int64(5), pos.AvgCostCents)
	require.Equal(t, MovementTypePurchase, mv.Type)
	require.Equal(t, int64(5000), mv.TotalCostCents)

	// A second batch at 8 cents per gram shifts the average to 6.
	pos, _, err = RecordPurchase(ctx, repo, PurchaseInput{
		ItemCode: "flour", LocationCode: "kitchen", Qty: 500, TotalCostCents: 4000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1500), pos.QtyOnHand)
	require.Equal(t, int64(6), pos.AvgCostCents)
}

func TestRecordPurchaseRoundsHalfUp(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()

	pos, _, err := RecordPurchase(ctx, repo, PurchaseInput{
		ItemCode: "flour", LocationCode: "kitchen", Qty: 3, TotalCostCents: 10,
	})
	require.NoError(t, err)
	// 10/3 rounds to 3.
	require.Equal(t, int64(3), pos.AvgCostCents)
}

func TestRecordPurchaseRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()

	_, _, err := RecordPurchase(ctx, repo, PurchaseInput{ItemCode: "flour", LocationCode: "kitchen", Qty: 0, TotalCostCents: 100})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, _, err = RecordPurchase(ctx, repo, PurchaseInput{ItemCode: "flour", LocationCode: "kitchen", Qty: 10, TotalCostCents: -1})
	require.ErrorIs(t, err, ErrInvalidCost)
}

func TestRecordUsageAtCurrentAverage(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	_, _, err := RecordPurchase(ctx, repo, PurchaseInput{
		ItemCode: "flour", LocationCode: "kitchen", Qty: 1000, TotalCostCents: 5000,
	})
	require.NoError(t, err)

	costRemoved, mv, err := RecordUsage(ctx, repo, UsageInput{
		ItemCode: "flour", LocationCode: "kitchen", Qty: 400, SourceType: "order", SourceID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2000), costRemoved)
	require.Equal(t, MovementTypeUsage, mv.Type)
	require.Equal(t, int64(5), mv.UnitCostCents)

	pos := repo.position(t, "flour", "kitchen")
	require.Equal(t, int64(600), pos.QtyOnHand)
	// Usage never moves the average.
	require.Equal(t, int64(5), pos.AvgCostCents)
}

func TestRecordUsageInsufficientStock(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	_, _, err := RecordPurchase(ctx, repo, PurchaseInput{
		ItemCode: "flour", LocationCode: "kitchen", Qty: 100, TotalCostCents: 500,
	})
	require.NoError(t, err)

	_, _, err = RecordUsage(ctx, repo, UsageInput{ItemCode: "flour", LocationCode: "kitchen", Qty: 101})
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, _, err = RecordUsage(ctx, repo, UsageInput{ItemCode: "sugar", LocationCode: "kitchen", Qty: 1})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// The failed attempts leave the position untouched.
	pos := repo.position(t, "flour", "kitchen")
	require.Equal(t, int64(100), pos.QtyOnHand)
}

func TestRecordTransferPreservesValue(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	_, _, err := RecordPurchase(ctx, repo, PurchaseInput{
		ItemCode: "flour", LocationCode: "storage", Qty: 1000, TotalCostCents: 5000,
	})
	require.NoError(t, err)

	mv, err := RecordTransfer(ctx, repo, TransferInput{
		ItemCode: "flour", FromLocation: "storage", ToLocation: "kitchen", Qty: 300,
	})
	require.NoError(t, err)
	require.Equal(t, MovementTypeTransfer, mv.Type)
	require.Equal(t, int64(5), mv.UnitCostCents)
	require.Equal(t, int64(1500), mv.TotalCostCents)

	src := repo.position(t, "flour", "storage")
	dst := repo.position(t, "flour", "kitchen")
	require.Equal(t, int64(700), src.QtyOnHand)
	require.Equal(t, int64(5), src.AvgCostCents)
	require.Equal(t, int64(300), dst.QtyOnHand)
	require.Equal(t, int64(5), dst.AvgCostCents)
}

func TestRecordTransferSameLocation(t *testing.T) {
	_, err := RecordTransfer(context.Background(), newMemRepo(), TransferInput{
		ItemCode: "flour", FromLocation: "kitchen", ToLocation: "kitchen", Qty: 10,
	})
	require.ErrorIs(t, err, ErrSameLocation)
}

func TestReverseMovementUsage(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	_, _, err := RecordPurchase(ctx, repo, PurchaseInput{
		ItemCode: "flour", LocationCode: "kitchen", Qty: 1000, TotalCostCents: 5000,
	})
	require.NoError(t, err)
	_, usage, err := RecordUsage(ctx, repo, UsageInput{
		ItemCode: "flour", LocationCode: "kitchen", Qty: 400, SourceType: "order", SourceID: 7,
	})
	require.NoError(t, err)

	rev, err := ReverseMovement(ctx, repo, usage.ID)
	require.NoError(t, err)
	require.Equal(t, MovementTypeAdjustment, rev.Type)
	require.Equal(t, "reversal", rev.SourceType)
	require.Equal(t, usage.ID, rev.SourceID)

	pos := repo.position(t, "flour", "kitchen")
	require.Equal(t, int64(1000), pos.QtyOnHand)
	require.Equal(t, int64(5), pos.AvgCostCents)
}

func TestReverseMovementPurchase(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	_, _, err := RecordPurchase(ctx, repo, PurchaseInput{
		ItemCode: "flour", LocationCode: "kitchen", Qty: 1000, TotalCostCents: 5000,
	})
	require.NoError(t, err)
	_, second, err := RecordPurchase(ctx, repo, PurchaseInput{
		ItemCode: "flour", LocationCode: "kitchen", Qty: 500, TotalCostCents: 4000,
	})
	require.NoError(t, err)

	_, err = ReverseMovement(ctx, repo, second.ID)
	require.NoError(t, err)

	pos := repo.position(t, "flour", "kitchen")
	require.Equal(t, int64(1000), pos.QtyOnHand)
	require.Equal(t, int64(5), pos.AvgCostCents)
}

func TestReverseMovementTransfer(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	_, _, err := RecordPurchase(ctx, repo, PurchaseInput{
		ItemCode: "flour", LocationCode: "storage", Qty: 1000, TotalCostCents: 5000,
	})
	require.NoError(t, err)
	mv, err := RecordTransfer(ctx, repo, TransferInput{
		ItemCode: "flour", FromLocation: "storage", ToLocation: "kitchen", Qty: 300,
	})
	require.NoError(t, err)

	_, err = ReverseMovement(ctx, repo, mv.ID)
	require.NoError(t, err)

	src := repo.position(t, "flour", "storage")
	dst := repo.position(t, "flour", "kitchen")
	require.Equal(t, int64(1000), src.QtyOnHand)
	require.Equal(t, int64(0), dst.QtyOnHand)
}

func TestRecordAdjustment(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()

	mv, err := RecordAdjustment(ctx, repo, "flour", "kitchen", 200, 4)
	require.NoError(t, err)
	require.Equal(t, MovementTypeAdjustment, mv.Type)
	require.Equal(t, "kitchen", mv.ToLocation)
	require.Equal(t, int64(800), mv.TotalCostCents)

	pos := repo.position(t, "flour", "kitchen")
	require.Equal(t, int64(200), pos.QtyOnHand)
	require.Equal(t, int64(4), pos.AvgCostCents)

	mv, err = RecordAdjustment(ctx, repo, "flour", "kitchen", -50, 0)
	require.NoError(t, err)
	require.Equal(t, "kitchen", mv.FromLocation)
	require.Equal(t, int64(200), mv.TotalCostCents)

	pos = repo.position(t, "flour", "kitchen")
	require.Equal(t, int64(150), pos.QtyOnHand)
	require.Equal(t, int64(4), pos.AvgCostCents)

	_, err = RecordAdjustment(ctx, repo, "flour", "kitchen", -151, 0)
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = RecordAdjustment(ctx, repo, "flour", "kitchen", 0, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestDivRound(t *testing.T) {
	require.Equal(t, int64(0), divRound(10, 0))
	require.Equal(t, int64(3), divRound(10, 3))
	require.Equal(t, int64(4), divRound(11, 3))
	require.Equal(t, int64(2), divRound(3, 2))
}
