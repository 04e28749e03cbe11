package stock

import (
	"context"
	"errors"
	"fmt"
)

// TxRepository exposes transactional stock operations.
type TxRepository interface {
	GetPositionForUpdate(ctx context.Context, itemCode, locationCode string) (Position, error)
	UpsertPosition(ctx context.Context, pos Position) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	GetMovement(ctx context.Context, id int64) (Movement, error)
	ListMovementsBySource(ctx context.Context, sourceType string, sourceID int64) ([]Movement, error)
}

// RecordPurchase increments stock and recomputes the moving-average unit
// cost as (old_qty*old_avg + total_cost) / (old_qty+qty).
func RecordPurchase(ctx context.Context, tx TxRepository, in PurchaseInput) (Position, Movement, error) {
	if in.Qty <= 0 {
		return Position{}, Movement{}, ErrInvalidQuantity
	}
	if in.TotalCostCents < 0 {
		return Position{}, Movement{}, ErrInvalidCost
	}
	pos, err := tx.GetPositionForUpdate(ctx, in.ItemCode, in.LocationCode)
	if err != nil && !errors.Is(err, ErrPositionNotFound) {
		return Position{}, Movement{}, err
	}
	if errors.Is(err, ErrPositionNotFound) {
		pos = Position{ItemCode: in.ItemCode, LocationCode: in.LocationCode}
	}
	newQty := pos.QtyOnHand + in.Qty
	pos.AvgCostCents = divRound(pos.QtyOnHand*pos.AvgCostCents+in.TotalCostCents, newQty)
	pos.QtyOnHand = newQty
	if err := tx.UpsertPosition(ctx, pos); err != nil {
		return Position{}, Movement{}, err
	}
	movement := Movement{
		ItemCode:       in.ItemCode,
		ToLocation:     in.LocationCode,
		Type:           MovementTypePurchase,
		Qty:            in.Qty,
		UnitCostCents:  divRound(in.TotalCostCents, in.Qty),
		TotalCostCents: in.TotalCostCents,
		SourceType:     in.SourceType,
		SourceID:       in.SourceID,
	}
	movement.ID, err = tx.InsertMovement(ctx, movement)
	if err != nil {
		return Position{}, Movement{}, err
	}
	return pos, movement, nil
}

// RecordUsage decrements stock at the current average cost and returns the
// cost removed. Consumption is valued at the average cost at the moment of
// production, not at purchase time.
func RecordUsage(ctx context.Context, tx TxRepository, in UsageInput) (int64, Movement, error) {
	if in.Qty <= 0 {
		return 0, Movement{}, ErrInvalidQuantity
	}
	pos, err := tx.GetPositionForUpdate(ctx, in.ItemCode, in.LocationCode)
	if err != nil {
		if errors.Is(err, ErrPositionNotFound) {
			return 0, Movement{}, fmt.Errorf("%w: %s at %s", ErrInsufficientStock, in.ItemCode, in.LocationCode)
		}
		return 0, Movement{}, err
	}
	if in.Qty > pos.QtyOnHand {
		return 0, Movement{}, fmt.Errorf("%w: %s at %s has %d, need %d",
			ErrInsufficientStock, in.ItemCode, in.LocationCode, pos.QtyOnHand, in.Qty)
	}
	costRemoved := in.Qty * pos.AvgCostCents
	pos.QtyOnHand -= in.Qty
	if err := tx.UpsertPosition(ctx, pos); err != nil {
		return 0, Movement{}, err
	}
	movement := Movement{
		ItemCode:       in.ItemCode,
		FromLocation:   in.LocationCode,
		Type:           MovementTypeUsage,
		Qty:            in.Qty,
		UnitCostCents:  pos.AvgCostCents,
		TotalCostCents: costRemoved,
		SourceType:     in.SourceType,
		SourceID:       in.SourceID,
	}
	movement.ID, err = tx.InsertMovement(ctx, movement)
	if err != nil {
		return 0, Movement{}, err
	}
	return costRemoved, movement, nil
}

// RecordTransfer moves stock between locations as a paired decrement and
// increment. The source's average cost becomes the destination's incoming
// unit cost so value is preserved across the move.
func RecordTransfer(ctx context.Context, tx TxRepository, in TransferInput) (Movement, error) {
	if in.Qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if in.FromLocation == in.ToLocation {
		return Movement{}, ErrSameLocation
	}
	src, err := tx.GetPositionForUpdate(ctx, in.ItemCode, in.FromLocation)
	if err != nil {
		if errors.Is(err, ErrPositionNotFound) {
			return Movement{}, fmt.Errorf("%w: %s at %s", ErrInsufficientStock, in.ItemCode, in.FromLocation)
		}
		return Movement{}, err
	}
	if in.Qty > src.QtyOnHand {
		return Movement{}, fmt.Errorf("%w: %s at %s has %d, need %d",
			ErrInsufficientStock, in.ItemCode, in.FromLocation, src.QtyOnHand, in.Qty)
	}
	unitCost := src.AvgCostCents
	totalCost := in.Qty * unitCost
	src.QtyOnHand -= in.Qty
	if err := tx.UpsertPosition(ctx, src); err != nil {
		return Movement{}, err
	}
	dst, err := tx.GetPositionForUpdate(ctx, in.ItemCode, in.ToLocation)
	if err != nil && !errors.Is(err, ErrPositionNotFound) {
		return Movement{}, err
	}
	if errors.Is(err, ErrPositionNotFound) {
		dst = Position{ItemCode: in.ItemCode, LocationCode: in.ToLocation}
	}
	newQty := dst.QtyOnHand + in.Qty
	dst.AvgCostCents = divRound(dst.QtyOnHand*dst.AvgCostCents+totalCost, newQty)
	dst.QtyOnHand = newQty
	if err := tx.UpsertPosition(ctx, dst); err != nil {
		return Movement{}, err
	}
	movement := Movement{
		ItemCode:       in.ItemCode,
		FromLocation:   in.FromLocation,
		ToLocation:     in.ToLocation,
		Type:           MovementTypeTransfer,
		Qty:            in.Qty,
		UnitCostCents:  unitCost,
		TotalCostCents: totalCost,
	}
	movement.ID, err = tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	return movement, nil
}

// ReverseMovement re-applies the inverse quantity delta of a prior movement
// and restores the cost basis as if it never occurred. Only cancellation and
// repair flows call this; callers must first check the movement is not
// referenced by downstream postings.
func ReverseMovement(ctx context.Context, tx TxRepository, movementID int64) (Movement, error) {
	original, err := tx.GetMovement(ctx, movementID)
	if err != nil {
		return Movement{}, err
	}
	switch original.Type {
	case MovementTypePurchase:
		return reverseInbound(ctx, tx, original, original.ToLocation)
	case MovementTypeUsage:
		return reverseOutbound(ctx, tx, original, original.FromLocation)
	case MovementTypeTransfer:
		return RecordTransfer(ctx, tx, TransferInput{
			ItemCode:     original.ItemCode,
			FromLocation: original.ToLocation,
			ToLocation:   original.FromLocation,
			Qty:          original.Qty,
		})
	case MovementTypeAdjustment:
		if original.ToLocation != "" {
			return reverseInbound(ctx, tx, original, original.ToLocation)
		}
		return reverseOutbound(ctx, tx, original, original.FromLocation)
	}
	return Movement{}, fmt.Errorf("stock: cannot reverse movement type %q", original.Type)
}

// reverseInbound removes the quantity an inbound movement added and backs its
// cost out of the moving average.
func reverseInbound(ctx context.Context, tx TxRepository, original Movement, location string) (Movement, error) {
	pos, err := tx.GetPositionForUpdate(ctx, original.ItemCode, location)
	if err != nil {
		return Movement{}, err
	}
	if original.Qty > pos.QtyOnHand {
		return Movement{}, fmt.Errorf("%w: cannot reverse movement %d", ErrInsufficientStock, original.ID)
	}
	remaining := pos.QtyOnHand - original.Qty
	if remaining > 0 {
		basis := pos.QtyOnHand*pos.AvgCostCents - original.TotalCostCents
		if basis < 0 {
			basis = 0
		}
		pos.AvgCostCents = divRound(basis, remaining)
	}
	pos.QtyOnHand = remaining
	if err := tx.UpsertPosition(ctx, pos); err != nil {
		return Movement{}, err
	}
	return insertReversal(ctx, tx, original, location, "")
}

// reverseOutbound restores consumed quantity at the cost it was removed at.
func reverseOutbound(ctx context.Context, tx TxRepository, original Movement, location string) (Movement, error) {
	pos, err := tx.GetPositionForUpdate(ctx, original.ItemCode, location)
	if err != nil && !errors.Is(err, ErrPositionNotFound) {
		return Movement{}, err
	}
	if errors.Is(err, ErrPositionNotFound) {
		pos = Position{ItemCode: original.ItemCode, LocationCode: location}
	}
	newQty := pos.QtyOnHand + original.Qty
	pos.AvgCostCents = divRound(pos.QtyOnHand*pos.AvgCostCents+original.TotalCostCents, newQty)
	pos.QtyOnHand = newQty
	if err := tx.UpsertPosition(ctx, pos); err != nil {
		return Movement{}, err
	}
	return insertReversal(ctx, tx, original, "", location)
}

func insertReversal(ctx context.Context, tx TxRepository, original Movement, from, to string) (Movement, error) {
	movement := Movement{
		ItemCode:       original.ItemCode,
		FromLocation:   from,
		ToLocation:     to,
		Type:           MovementTypeAdjustment,
		Qty:            original.Qty,
		UnitCostCents:  original.UnitCostCents,
		TotalCostCents: original.TotalCostCents,
		SourceType:     "reversal",
		SourceID:       original.ID,
	}
	var err error
	movement.ID, err = tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	return movement, nil
}

// RecordAdjustment applies a manual quantity delta. Positive deltas fold the
// supplied unit cost into the moving average; negative deltas remove stock at
// the current average cost.
func RecordAdjustment(ctx context.Context, tx TxRepository, itemCode, locationCode string, qtyDelta, unitCostCents int64) (Movement, error) {
	if qtyDelta == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if unitCostCents < 0 {
		return Movement{}, ErrInvalidCost
	}
	pos, err := tx.GetPositionForUpdate(ctx, itemCode, locationCode)
	if err != nil && !errors.Is(err, ErrPositionNotFound) {
		return Movement{}, err
	}
	if errors.Is(err, ErrPositionNotFound) {
		pos = Position{ItemCode: itemCode, LocationCode: locationCode}
	}
	movement := Movement{ItemCode: itemCode, Type: MovementTypeAdjustment}
	if qtyDelta > 0 {
		totalCost := qtyDelta * unitCostCents
		newQty := pos.QtyOnHand + qtyDelta
		pos.AvgCostCents = divRound(pos.QtyOnHand*pos.AvgCostCents+totalCost, newQty)
		pos.QtyOnHand = newQty
		movement.ToLocation = locationCode
		movement.Qty = qtyDelta
		movement.UnitCostCents = unitCostCents
		movement.TotalCostCents = totalCost
	} else {
		qty := -qtyDelta
		if qty > pos.QtyOnHand {
			return Movement{}, fmt.Errorf("%w: %s at %s has %d, need %d",
				ErrInsufficientStock, itemCode, locationCode, pos.QtyOnHand, qty)
		}
		pos.QtyOnHand -= qty
		movement.FromLocation = locationCode
		movement.Qty = qty
		movement.UnitCostCents = pos.AvgCostCents
		movement.TotalCostCents = qty * pos.AvgCostCents
	}
	if err := tx.UpsertPosition(ctx, pos); err != nil {
		return Movement{}, err
	}
	movement.ID, err = tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	return movement, nil
}

func divRound(num, den int64) int64 {
	if den == 0 {
		return 0
	}
	return (num + den/2) / den
}
