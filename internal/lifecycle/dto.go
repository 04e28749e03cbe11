package lifecycle

import (
	"time"

	"github.com/brioche-erp/brioche/internal/ledger"
	"github.com/brioche-erp/brioche/internal/posting"
)

type recipeLineDTO struct {
	ItemCode     string `json:"item_code" validate:"required"`
	LocationCode string `json:"location_code" validate:"required"`
	Qty          int64  `json:"qty" validate:"gt=0"`
	CostType     string `json:"cost_type" validate:"required,oneof=ingredients packing kitchen"`
}

type orderDTO struct {
	PriceCents    int64           `json:"price_cents" validate:"gte=0"`
	Quantity      int64           `json:"quantity" validate:"gt=0"`
	ShippingCents int64           `json:"shipping_cents" validate:"gte=0"`
	DiscountType  string          `json:"discount_type" validate:"omitempty,oneof=flat percent"`
	DiscountValue int64           `json:"discount_value" validate:"gte=0"`
	IsGift        bool            `json:"is_gift"`
	DeliveryDate  string          `json:"delivery_date" validate:"omitempty,datetime=2006-01-02"`
	Recipe        []recipeLineDTO `json:"recipe" validate:"dive"`
}

type statusChangeRequest struct {
	CurrentStatus string   `json:"current_status" validate:"required"`
	NewStatus     string   `json:"new_status" validate:"required"`
	Order         orderDTO `json:"order"`
}

type paymentRequest struct {
	PaymentID                 int64  `json:"payment_id" validate:"gt=0"`
	OrderID                   int64  `json:"order_id" validate:"gt=0"`
	AmountCents               int64  `json:"amount_cents" validate:"gt=0"`
	IsDeposit                 bool   `json:"is_deposit"`
	CustomerAmountCents       int64  `json:"customer_amount_cents" validate:"gte=0"`
	PartnerAmountCents        int64  `json:"partner_amount_cents" validate:"gte=0"`
	PaidToAccountCode         string `json:"paid_to_account_code" validate:"required"`
	PartnerPayableAccountCode string `json:"partner_payable_account_code"`
	Date                      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type entryResponse struct {
	EntryID    int64  `json:"entry_id"`
	EntryType  string `json:"entry_type"`
	Reference  string `json:"reference"`
	TotalCents int64  `json:"total_cents"`
}

type outcomeResponse struct {
	AlreadyPosted  bool           `json:"already_posted"`
	NoLedgerEffect bool           `json:"no_ledger_effect"`
	Entry          *entryResponse `json:"entry,omitempty"`
}

func (d orderDTO) toSnapshot(orderID int64) posting.OrderSnapshot {
	snapshot := posting.OrderSnapshot{
		ID:            orderID,
		PriceCents:    d.PriceCents,
		Quantity:      d.Quantity,
		ShippingCents: d.ShippingCents,
		DiscountType:  posting.DiscountType(d.DiscountType),
		DiscountValue: d.DiscountValue,
		IsGift:        d.IsGift,
		DeliveryDate:  parseDate(d.DeliveryDate),
		Recipe:        make([]posting.RecipeLine, 0, len(d.Recipe)),
	}
	for _, line := range d.Recipe {
		snapshot.Recipe = append(snapshot.Recipe, posting.RecipeLine{
			ItemCode:     line.ItemCode,
			LocationCode: line.LocationCode,
			Qty:          line.Qty,
			CostType:     posting.CostType(line.CostType),
		})
	}
	return snapshot
}

func (d paymentRequest) toSnapshot() posting.PaymentSnapshot {
	return posting.PaymentSnapshot{
		ID:                        d.PaymentID,
		OrderID:                   d.OrderID,
		AmountCents:               d.AmountCents,
		IsDeposit:                 d.IsDeposit,
		CustomerAmountCents:       d.CustomerAmountCents,
		PartnerAmountCents:        d.PartnerAmountCents,
		PaidToAccountCode:         d.PaidToAccountCode,
		PartnerPayableAccountCode: d.PartnerPayableAccountCode,
		Date:                      parseDate(d.Date),
	}
}

func toOutcomeResponse(outcome posting.PostingOutcome) outcomeResponse {
	resp := outcomeResponse{
		AlreadyPosted:  outcome.AlreadyPosted,
		NoLedgerEffect: outcome.NoLedgerEffect,
	}
	if outcome.Entry.ID != 0 {
		resp.Entry = toEntryResponse(outcome.Entry)
	}
	return resp
}

func toEntryResponse(entry ledger.JournalEntry) *entryResponse {
	return &entryResponse{
		EntryID:    entry.ID,
		EntryType:  string(entry.Type),
		Reference:  entry.Reference,
		TotalCents: entry.Total(),
	}
}

func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	date, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}
	}
	return date
}
