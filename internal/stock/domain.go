package stock

import (
	"errors"
	"time"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementTypePurchase represents inbound stock with a cost basis.
	MovementTypePurchase MovementType = "purchase"
	// MovementTypeUsage represents consumption at current average cost.
	MovementTypeUsage MovementType = "usage"
	// MovementTypeTransfer moves stock between locations at preserved cost.
	MovementTypeTransfer MovementType = "transfer"
	// MovementTypeAdjustment covers corrections and reversals.
	MovementTypeAdjustment MovementType = "adjustment"
)

// Position summarises on-hand stock for one (item, location) pair.
// QtyOnHand never rests below zero; AvgCostCents moves only on purchases.
type Position struct {
	ItemCode     string
	LocationCode string
	QtyOnHand    int64
	AvgCostCents int64
	UpdatedAt    time.Time
}

// Movement is an immutable log row. Corrections are new rows or explicit
// deletions by the reconciliation engine, never updates.
type Movement struct {
	ID             int64
	ItemCode       string
	FromLocation   string
	ToLocation     string
	Type           MovementType
	Qty            int64
	UnitCostCents  int64
	TotalCostCents int64
	SourceType     string
	SourceID       int64
	CreatedAt      time.Time
}

// PurchaseInput describes an inbound purchase.
type PurchaseInput struct {
	ItemCode       string
	LocationCode   string
	Qty            int64
	TotalCostCents int64
	SourceType     string
	SourceID       int64
}

// UsageInput describes consumption of stock.
type UsageInput struct {
	ItemCode     string
	LocationCode string
	Qty          int64
	SourceType   string
	SourceID     int64
}

// TransferInput describes a move between locations.
type TransferInput struct {
	ItemCode     string
	FromLocation string
	ToLocation   string
	Qty          int64
}

var (
	// ErrInsufficientStock triggered when usage exceeds on-hand quantity.
	ErrInsufficientStock = errors.New("stock: insufficient quantity on hand")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be positive")
	// ErrInvalidCost indicates a negative cost.
	ErrInvalidCost = errors.New("stock: cost must be >= 0")
	// ErrPositionNotFound indicates a missing stock row.
	ErrPositionNotFound = errors.New("stock: position not found")
	// ErrMovementNotFound indicates a missing movement row.
	ErrMovementNotFound = errors.New("stock: movement not found")
	// ErrSameLocation indicates a transfer onto itself.
	ErrSameLocation = errors.New("stock: source and destination location must differ")
)
