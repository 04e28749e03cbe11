package posting

import (
	"errors"
	"fmt"
	"time"

	"github.com/brioche-erp/brioche/internal/ledger"
)

// Role names a semantic ledger slot the engine posts against. Tenants map
// roles to concrete account codes, so the engine never hardcodes a chart of
// accounts.
type Role string

const (
	RoleAR                   Role = "ar"
	RoleWIPInventory         Role = "wip_inventory"
	RoleIngredientsInventory Role = "ingredients_inventory"
	RolePackingInventory     Role = "packing_inventory"
	RoleKitchenInventory     Role = "kitchen_inventory"
	RoleCustomerDeposits     Role = "customer_deposits"
	RoleSales                Role = "sales"
	RoleSalesDiscounts       Role = "sales_discounts"
	RoleIngredientsCOGS      Role = "ingredients_cogs"
	RolePackagingCOGS        Role = "packaging_cogs"
	RoleSamplesGifts         Role = "samples_gifts"
	RoleOwnersEquity         Role = "owners_equity"
	RoleOwnersDrawings       Role = "owners_drawings"
)

// CostType classifies a recipe line's inventory pool.
type CostType string

const (
	CostTypeIngredients CostType = "ingredients"
	CostTypePacking     CostType = "packing"
	CostTypeKitchen     CostType = "kitchen"
)

// InventoryRole returns the inventory account role holding stock of this
// cost type.
func (c CostType) InventoryRole() (Role, error) {
	switch c {
	case CostTypeIngredients:
		return RoleIngredientsInventory, nil
	case CostTypePacking:
		return RolePackingInventory, nil
	case CostTypeKitchen:
		return RoleKitchenInventory, nil
	}
	return "", fmt.Errorf("posting: unknown cost type %q", c)
}

// DiscountType enumerates supported order discount bases.
type DiscountType string

const (
	DiscountTypeNone    DiscountType = ""
	DiscountTypeFlat    DiscountType = "flat"
	DiscountTypePercent DiscountType = "percent"
)

// RecipeLine describes one inventory consumption required to produce an
// order.
type RecipeLine struct {
	ItemCode     string
	LocationCode string
	Qty          int64
	CostType     CostType
}

// OrderSnapshot is the read-only view of an order the engine consumes. The
// engine never owns order lifecycle storage; orders are opaque event sources
// identified by ID.
type OrderSnapshot struct {
	ID            int64
	PriceCents    int64
	Quantity      int64
	ShippingCents int64
	DiscountType  DiscountType
	DiscountValue int64
	IsGift        bool
	DeliveryDate  time.Time
	Recipe        []RecipeLine
}

// PaymentSnapshot is the read-only view of a received payment.
type PaymentSnapshot struct {
	ID                        int64
	OrderID                   int64
	AmountCents               int64
	IsDeposit                 bool
	CustomerAmountCents       int64
	PartnerAmountCents        int64
	PaidToAccountCode         string
	PartnerPayableAccountCode string
	Date                      time.Time
}

// CostBreakdown splits an order's production cost by inventory pool.
type CostBreakdown struct {
	IngredientsCents int64
	PackingCents     int64
	KitchenCents     int64
}

// Total sums the breakdown.
func (c CostBreakdown) Total() int64 {
	return c.IngredientsCents + c.PackingCents + c.KitchenCents
}

// Add accumulates cost into the matching pool.
func (c *CostBreakdown) Add(costType CostType, cents int64) {
	switch costType {
	case CostTypePacking:
		c.PackingCents += cents
	case CostTypeKitchen:
		c.KitchenCents += cents
	default:
		c.IngredientsCents += cents
	}
}

// OrderCost is the side row persisted at in-prep time so delivered postings
// read the breakdown back instead of reconstructing it from credit lines.
type OrderCost struct {
	OrderID          int64
	IngredientsCents int64
	PackingCents     int64
	KitchenCents     int64
	CreatedAt        time.Time
}

// Breakdown converts the row to a CostBreakdown.
func (c OrderCost) Breakdown() CostBreakdown {
	return CostBreakdown{
		IngredientsCents: c.IngredientsCents,
		PackingCents:     c.PackingCents,
		KitchenCents:     c.KitchenCents,
	}
}

// PostingOutcome reports the effect of a lifecycle posting.
type PostingOutcome struct {
	Entry          ledger.JournalEntry
	AlreadyPosted  bool
	NoLedgerEffect bool
}

var (
	// ErrRoleNotMapped indicates the tenant's chart of accounts is
	// incomplete. Fatal for the operation; never retried.
	ErrRoleNotMapped = errors.New("posting: account role not mapped")
	// ErrNoRecipeCost indicates an in-prep posting with zero production cost.
	ErrNoRecipeCost = errors.New("posting: order has no recipe cost to move into production")
	// ErrNotInPrep indicates a delivered/cancel posting without a prior
	// in-prep entry where one is required.
	ErrNotInPrep = errors.New("posting: no in-prep entry for order")
	// ErrCancelAfterDelivered indicates an unsupported reversal.
	ErrCancelAfterDelivered = errors.New("posting: cannot cancel a delivered order")
	// ErrSplitMismatch indicates customer + partner portions != total.
	ErrSplitMismatch = errors.New("posting: customer and partner amounts must sum to total")
	// ErrOrderCostNotFound indicates a missing cost side row.
	ErrOrderCostNotFound = errors.New("posting: order cost breakdown not found")
	// ErrLinkExists indicates a duplicate source link.
	ErrLinkExists = errors.New("posting: source already linked to an entry")
)

// PurchasePosting describes an inventory purchase to record in stock and in
// the ledger together.
type PurchasePosting struct {
	PurchaseID          int64
	ItemCode            string
	LocationCode        string
	Qty                 int64
	TotalCostCents      int64
	CostType            CostType
	PaidFromAccountCode string
	Reference           string
}

// Validate checks required purchase fields.
func (p PurchasePosting) Validate() error {
	if p.PurchaseID == 0 {
		return errors.New("posting: purchase id required")
	}
	if p.ItemCode == "" || p.LocationCode == "" {
		return errors.New("posting: item and location required")
	}
	if p.Qty <= 0 {
		return errors.New("posting: purchase quantity must be positive")
	}
	if p.TotalCostCents < 0 {
		return errors.New("posting: purchase cost must be >= 0")
	}
	if p.PaidFromAccountCode == "" {
		return errors.New("posting: paying account required")
	}
	if p.Reference == "" {
		return errors.New("posting: reference required")
	}
	return nil
}

// OrderReference builds the idempotency reference for an order.
func OrderReference(orderID int64) string {
	return fmt.Sprintf("Order #%d", orderID)
}

// PaymentReference builds the idempotency reference for a payment.
func PaymentReference(paymentID int64) string {
	return fmt.Sprintf("Payment #%d", paymentID)
}

// Validate checks the payment split invariant before posting.
func (p PaymentSnapshot) Validate() error {
	if p.ID == 0 || p.OrderID == 0 {
		return errors.New("posting: payment and order ids required")
	}
	if p.AmountCents <= 0 {
		return errors.New("posting: payment amount must be positive")
	}
	if p.PaidToAccountCode == "" {
		return errors.New("posting: receiving account required")
	}
	if p.PartnerAmountCents > 0 {
		if p.PartnerPayableAccountCode == "" {
			return errors.New("posting: partner payable account required for split payment")
		}
		if p.CustomerAmountCents+p.PartnerAmountCents != p.AmountCents {
			return fmt.Errorf("%w: %d + %d != %d", ErrSplitMismatch,
				p.CustomerAmountCents, p.PartnerAmountCents, p.AmountCents)
		}
	} else if p.CustomerAmountCents != 0 && p.CustomerAmountCents != p.AmountCents {
		return fmt.Errorf("%w: %d != %d", ErrSplitMismatch, p.CustomerAmountCents, p.AmountCents)
	}
	return nil
}

// CustomerPortion returns the customer-borne amount.
func (p PaymentSnapshot) CustomerPortion() int64 {
	if p.PartnerAmountCents > 0 {
		return p.CustomerAmountCents
	}
	return p.AmountCents
}

// GrossCents computes gross revenue: price x quantity + shipping.
func (o OrderSnapshot) GrossCents() int64 {
	return o.PriceCents*o.Quantity + o.ShippingCents
}

// DiscountCents computes the discount from the order's discount fields,
// implicitly capped at the gross amount.
func (o OrderSnapshot) DiscountCents() int64 {
	gross := o.GrossCents()
	var discount int64
	switch o.DiscountType {
	case DiscountTypeFlat:
		discount = o.DiscountValue
	case DiscountTypePercent:
		pct := o.DiscountValue
		if pct > 100 {
			pct = 100
		}
		discount = gross * pct / 100
	}
	if discount < 0 {
		discount = 0
	}
	if discount > gross {
		discount = gross
	}
	return discount
}
