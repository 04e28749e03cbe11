package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brioche-erp/brioche/internal/ledger"
	"github.com/brioche-erp/brioche/internal/shared"
	"github.com/brioche-erp/brioche/internal/stock"
)

// AuditPort records posting events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Engine translates domain events into balanced journal entries. One handler
// exists per entry type; the engine is the sole writer of journal and stock
// rows.
type Engine struct {
	repo   RepositoryPort
	roles  RoleResolver
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine constructs the posting engine.
func NewEngine(repo RepositoryPort, roles RoleResolver, audit AuditPort, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{repo: repo, roles: roles, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// PostOrderInPrep consumes the order's recipe inventory and moves its cost
// into WIP: debit WIP for the total, credit each cost pool's inventory
// account for its portion. Idempotent on (order_in_prep, "Order #N"); when
// two requests race past the existence check, the unique reference index
// decides the winner and the loser returns the winner's entry.
func (e *Engine) PostOrderInPrep(ctx context.Context, order OrderSnapshot) (PostingOutcome, error) {
	ref := OrderReference(order.ID)
	var outcome PostingOutcome
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindEntry(ctx, ledger.EntryTypeOrderInPrep, ref)
		if err == nil {
			outcome = PostingOutcome{Entry: existing, AlreadyPosted: true}
			return nil
		}
		if !errors.Is(err, ledger.ErrEntryNotFound) {
			return err
		}
		var breakdown CostBreakdown
		for _, line := range order.Recipe {
			costRemoved, _, err := stock.RecordUsage(ctx, tx, stock.UsageInput{
				ItemCode:     line.ItemCode,
				LocationCode: line.LocationCode,
				Qty:          line.Qty,
				SourceType:   "order",
				SourceID:     order.ID,
			})
			if err != nil {
				return err
			}
			breakdown.Add(line.CostType, costRemoved)
		}
		if breakdown.Total() == 0 {
			return fmt.Errorf("%w: %s", ErrNoRecipeCost, ref)
		}
		wip, err := e.roles.Resolve(ctx, RoleWIPInventory)
		if err != nil {
			return err
		}
		lines := []ledger.LineInput{{AccountCode: wip, DebitCents: breakdown.Total()}}
		pools := []struct {
			role  Role
			cents int64
		}{
			{RoleIngredientsInventory, breakdown.IngredientsCents},
			{RolePackingInventory, breakdown.PackingCents},
			{RoleKitchenInventory, breakdown.KitchenCents},
		}
		for _, pool := range pools {
			if pool.cents == 0 {
				continue
			}
			code, err := e.roles.Resolve(ctx, pool.role)
			if err != nil {
				return err
			}
			lines = append(lines, ledger.LineInput{AccountCode: code, CreditCents: pool.cents})
		}
		entry, err := ledger.CreateEntry(ctx, tx, ledger.EntryInput{
			Date:        e.now(),
			Description: fmt.Sprintf("Production started for %s", ref),
			Reference:   ref,
			Type:        ledger.EntryTypeOrderInPrep,
			Lines:       lines,
		})
		if err != nil {
			return err
		}
		if err := tx.LinkEntry(ctx, entry.ID, "order", order.ID); err != nil && !errors.Is(err, ErrLinkExists) {
			return err
		}
		if err := tx.InsertOrderCost(ctx, OrderCost{
			OrderID:          order.ID,
			IngredientsCents: breakdown.IngredientsCents,
			PackingCents:     breakdown.PackingCents,
			KitchenCents:     breakdown.KitchenCents,
		}); err != nil {
			return err
		}
		outcome = PostingOutcome{Entry: entry}
		return nil
	})
	if errors.Is(err, ledger.ErrEntryExists) {
		return e.existingOutcome(ctx, ledger.EntryTypeOrderInPrep, ref)
	}
	if err != nil {
		return PostingOutcome{}, err
	}
	e.record(ctx, "posting.order_in_prep", outcome.Entry)
	return outcome, nil
}

// PostOrderDelivered posts the sale (or gift) entry for a delivered order.
// The COGS amount is read back from the in-prep entry's WIP debit, so a
// correction to in-prep requires a matching correction here.
func (e *Engine) PostOrderDelivered(ctx context.Context, order OrderSnapshot) (PostingOutcome, error) {
	ref := OrderReference(order.ID)
	var outcome PostingOutcome
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindEntry(ctx, ledger.EntryTypeOrderDelivered, ref)
		if err == nil {
			outcome = PostingOutcome{Entry: existing, AlreadyPosted: true}
			return nil
		}
		if !errors.Is(err, ledger.ErrEntryNotFound) {
			return err
		}
		inPrep, err := tx.FindEntry(ctx, ledger.EntryTypeOrderInPrep, ref)
		if err != nil {
			if errors.Is(err, ledger.ErrEntryNotFound) {
				return fmt.Errorf("%w: %s", ErrNotInPrep, ref)
			}
			return err
		}
		wip, err := e.roles.Resolve(ctx, RoleWIPInventory)
		if err != nil {
			return err
		}
		productionCost := inPrep.DebitTo(wip)

		var lines []ledger.LineInput
		if order.IsGift {
			lines, err = e.giftLines(ctx, wip, productionCost)
		} else {
			lines, err = e.saleLines(ctx, tx, order, wip, productionCost)
		}
		if err != nil {
			return err
		}
		entry, err := ledger.CreateEntry(ctx, tx, ledger.EntryInput{
			Date:        orderDate(order, e.now),
			Description: fmt.Sprintf("Delivered %s", ref),
			Reference:   ref,
			Type:        ledger.EntryTypeOrderDelivered,
			Lines:       lines,
		})
		if err != nil {
			return err
		}
		if err := tx.LinkEntry(ctx, entry.ID, "order", order.ID); err != nil && !errors.Is(err, ErrLinkExists) {
			return err
		}
		outcome = PostingOutcome{Entry: entry}
		return nil
	})
	if errors.Is(err, ledger.ErrEntryExists) {
		return e.existingOutcome(ctx, ledger.EntryTypeOrderDelivered, ref)
	}
	if err != nil {
		return PostingOutcome{}, err
	}
	e.record(ctx, "posting.order_delivered", outcome.Entry)
	return outcome, nil
}

// giftLines expenses the production cost with no revenue recognition.
func (e *Engine) giftLines(ctx context.Context, wip string, productionCost int64) ([]ledger.LineInput, error) {
	gifts, err := e.roles.Resolve(ctx, RoleSamplesGifts)
	if err != nil {
		return nil, err
	}
	return []ledger.LineInput{
		{AccountCode: gifts, DebitCents: productionCost},
		{AccountCode: wip, CreditCents: productionCost},
	}, nil
}

// saleLines builds the revenue, deposit application, and COGS lines. The
// deposit application is folded into the entry with the AR debit already net
// of applied deposits, keeping the entry balanced; prior non-deposit
// payments reduce the AR balance through their own entries' credits.
func (e *Engine) saleLines(ctx context.Context, tx TxRepository, order OrderSnapshot, wip string, productionCost int64) ([]ledger.LineInput, error) {
	ar, err := e.roles.Resolve(ctx, RoleAR)
	if err != nil {
		return nil, err
	}
	sales, err := e.roles.Resolve(ctx, RoleSales)
	if err != nil {
		return nil, err
	}
	deposits, err := e.roles.Resolve(ctx, RoleCustomerDeposits)
	if err != nil {
		return nil, err
	}
	gross := order.GrossCents()
	discount := order.DiscountCents()
	priorDeposits, err := tx.SumPaymentCreditsForOrder(ctx, order.ID, deposits)
	if err != nil {
		return nil, err
	}
	net := gross - discount
	if priorDeposits > net {
		priorDeposits = net
	}
	arDue := net - priorDeposits

	lines := []ledger.LineInput{{AccountCode: sales, CreditCents: gross}}
	if arDue > 0 {
		lines = append(lines, ledger.LineInput{AccountCode: ar, DebitCents: arDue})
	}
	if discount > 0 {
		discounts, err := e.roles.Resolve(ctx, RoleSalesDiscounts)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ledger.LineInput{AccountCode: discounts, DebitCents: discount})
	}
	if priorDeposits > 0 {
		lines = append(lines, ledger.LineInput{AccountCode: deposits, DebitCents: priorDeposits})
	}
	cogs, err := e.cogsLines(ctx, tx, order.ID, wip, productionCost)
	if err != nil {
		return nil, err
	}
	return append(lines, cogs...), nil
}

// cogsLines recognises the cost recorded at in-prep time. Kitchen cost folds
// into ingredients COGS.
func (e *Engine) cogsLines(ctx context.Context, tx TxRepository, orderID int64, wip string, productionCost int64) ([]ledger.LineInput, error) {
	if productionCost == 0 {
		return nil, nil
	}
	ingredientsCOGS, err := e.roles.Resolve(ctx, RoleIngredientsCOGS)
	if err != nil {
		return nil, err
	}
	breakdown := CostBreakdown{IngredientsCents: productionCost}
	if cost, err := tx.GetOrderCost(ctx, orderID); err == nil {
		breakdown = cost.Breakdown()
		// The WIP debit is authoritative; absorb rounding into ingredients.
		if diff := productionCost - breakdown.Total(); diff != 0 {
			breakdown.IngredientsCents += diff
		}
	} else if !errors.Is(err, ErrOrderCostNotFound) {
		return nil, err
	}
	lines := make([]ledger.LineInput, 0, 3)
	if ingredientsShare := breakdown.IngredientsCents + breakdown.KitchenCents; ingredientsShare > 0 {
		lines = append(lines, ledger.LineInput{AccountCode: ingredientsCOGS, DebitCents: ingredientsShare})
	}
	if breakdown.PackingCents > 0 {
		packagingCOGS, err := e.roles.Resolve(ctx, RolePackagingCOGS)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ledger.LineInput{AccountCode: packagingCOGS, DebitCents: breakdown.PackingCents})
	}
	return append(lines, ledger.LineInput{AccountCode: wip, CreditCents: productionCost}), nil
}

// PostOrderCanceled reverses the in-prep entry and restores consumed stock.
// A cancellation with no prior in-prep entry is a no-op; cancelling after
// delivery is rejected.
func (e *Engine) PostOrderCanceled(ctx context.Context, order OrderSnapshot) (PostingOutcome, error) {
	ref := OrderReference(order.ID)
	var outcome PostingOutcome
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.FindEntry(ctx, ledger.EntryTypeOrderDelivered, ref); err == nil {
			return fmt.Errorf("%w: %s", ErrCancelAfterDelivered, ref)
		} else if !errors.Is(err, ledger.ErrEntryNotFound) {
			return err
		}
		if existing, err := tx.FindEntry(ctx, ledger.EntryTypeCorrection, ref); err == nil {
			outcome = PostingOutcome{Entry: existing, AlreadyPosted: true}
			return nil
		} else if !errors.Is(err, ledger.ErrEntryNotFound) {
			return err
		}
		inPrep, err := tx.FindEntry(ctx, ledger.EntryTypeOrderInPrep, ref)
		if err != nil {
			if errors.Is(err, ledger.ErrEntryNotFound) {
				outcome = PostingOutcome{NoLedgerEffect: true}
				return nil
			}
			return err
		}
		entry, err := ledger.CreateEntry(ctx, tx, ledger.EntryInput{
			Date:        e.now(),
			Description: fmt.Sprintf("Canceled %s", ref),
			Reference:   ref,
			Type:        ledger.EntryTypeCorrection,
			Lines:       ledger.ReverseLines(inPrep.Lines),
		})
		if err != nil {
			return err
		}
		if err := tx.LinkEntry(ctx, entry.ID, "order", order.ID); err != nil && !errors.Is(err, ErrLinkExists) {
			return err
		}
		movements, err := tx.ListMovementsBySource(ctx, "order", order.ID)
		if err != nil {
			return err
		}
		for _, m := range movements {
			if m.Type != stock.MovementTypeUsage {
				continue
			}
			if _, err := stock.ReverseMovement(ctx, tx, m.ID); err != nil {
				return err
			}
		}
		outcome = PostingOutcome{Entry: entry}
		return nil
	})
	if errors.Is(err, ledger.ErrEntryExists) {
		return e.existingOutcome(ctx, ledger.EntryTypeCorrection, ref)
	}
	if err != nil {
		return PostingOutcome{}, err
	}
	if !outcome.NoLedgerEffect {
		e.record(ctx, "posting.order_canceled", outcome.Entry)
	}
	return outcome, nil
}

// PostPayment debits the receiving account and credits AR (or Customer
// Deposits for deposits) for the customer portion, plus a partner payable
// credit when a split is present.
func (e *Engine) PostPayment(ctx context.Context, payment PaymentSnapshot) (ledger.JournalEntry, error) {
	if err := payment.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	ref := PaymentReference(payment.ID)
	var entry ledger.JournalEntry
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if existing, err := tx.FindEntryBySource(ctx, "payment", payment.ID); err == nil {
			entry = existing
			return nil
		} else if !errors.Is(err, ledger.ErrEntryNotFound) {
			return err
		}
		lines := []ledger.LineInput{
			{AccountCode: payment.PaidToAccountCode, DebitCents: payment.AmountCents},
		}
		// A fully partner-funded payment has no customer portion and no
		// AR or deposit counter line.
		if portion := payment.CustomerPortion(); portion > 0 {
			counterRole := RoleAR
			if payment.IsDeposit {
				counterRole = RoleCustomerDeposits
			}
			counter, err := e.roles.Resolve(ctx, counterRole)
			if err != nil {
				return err
			}
			lines = append(lines, ledger.LineInput{AccountCode: counter, CreditCents: portion})
		}
		if payment.PartnerAmountCents > 0 {
			lines = append(lines, ledger.LineInput{
				AccountCode: payment.PartnerPayableAccountCode,
				CreditCents: payment.PartnerAmountCents,
			})
		}
		date := payment.Date
		if date.IsZero() {
			date = e.now()
		}
		var err error
		entry, err = ledger.CreateEntry(ctx, tx, ledger.EntryInput{
			Date:        date,
			Description: fmt.Sprintf("Payment for %s", OrderReference(payment.OrderID)),
			Reference:   ref,
			Type:        ledger.EntryTypeOrderPayment,
			Lines:       lines,
		})
		if err != nil {
			return err
		}
		if err := tx.LinkEntry(ctx, entry.ID, "payment", payment.ID); err != nil {
			if errors.Is(err, ErrLinkExists) {
				return ledger.ErrEntryExists
			}
			return err
		}
		if err := tx.LinkEntry(ctx, entry.ID, "order", payment.OrderID); err != nil && !errors.Is(err, ErrLinkExists) {
			return err
		}
		return nil
	})
	if errors.Is(err, ledger.ErrEntryExists) {
		// Lost the insert race; return the winner's entry.
		winner, werr := e.findBySource(ctx, "payment", payment.ID)
		if werr != nil {
			return ledger.JournalEntry{}, werr
		}
		return winner, nil
	}
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e.record(ctx, "posting.payment", entry)
	return entry, nil
}

// PostInventoryPurchase records a stock purchase and its ledger entry in one
// transaction: debit the cost pool's inventory account, credit the paying
// account.
func (e *Engine) PostInventoryPurchase(ctx context.Context, in PurchasePosting) (ledger.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	role, err := in.CostType.InventoryRole()
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	var entry ledger.JournalEntry
	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if existing, err := tx.FindEntry(ctx, ledger.EntryTypeInventoryPurchase, in.Reference); err == nil {
			entry = existing
			return nil
		} else if !errors.Is(err, ledger.ErrEntryNotFound) {
			return err
		}
		if _, _, err := stock.RecordPurchase(ctx, tx, stock.PurchaseInput{
			ItemCode:       in.ItemCode,
			LocationCode:   in.LocationCode,
			Qty:            in.Qty,
			TotalCostCents: in.TotalCostCents,
			SourceType:     "purchase",
			SourceID:       in.PurchaseID,
		}); err != nil {
			return err
		}
		inventory, err := e.roles.Resolve(ctx, role)
		if err != nil {
			return err
		}
		entry, err = ledger.CreateEntry(ctx, tx, ledger.EntryInput{
			Date:        e.now(),
			Description: fmt.Sprintf("Purchased %d x %s", in.Qty, in.ItemCode),
			Reference:   in.Reference,
			Type:        ledger.EntryTypeInventoryPurchase,
			Lines: []ledger.LineInput{
				{AccountCode: inventory, DebitCents: in.TotalCostCents},
				{AccountCode: in.PaidFromAccountCode, CreditCents: in.TotalCostCents},
			},
		})
		if err != nil {
			return err
		}
		return tx.LinkEntry(ctx, entry.ID, "purchase", in.PurchaseID)
	})
	if errors.Is(err, ledger.ErrEntryExists) {
		winner, werr := e.findByTypeRef(ctx, ledger.EntryTypeInventoryPurchase, in.Reference)
		if werr != nil {
			return ledger.JournalEntry{}, werr
		}
		return winner, nil
	}
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e.record(ctx, "posting.inventory_purchase", entry)
	return entry, nil
}

func (e *Engine) existingOutcome(ctx context.Context, entryType ledger.EntryType, ref string) (PostingOutcome, error) {
	entry, err := e.findByTypeRef(ctx, entryType, ref)
	if err != nil {
		return PostingOutcome{}, err
	}
	return PostingOutcome{Entry: entry, AlreadyPosted: true}, nil
}

func (e *Engine) findByTypeRef(ctx context.Context, entryType ledger.EntryType, ref string) (ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.FindEntry(ctx, entryType, ref)
		return err
	})
	return entry, err
}

func (e *Engine) findBySource(ctx context.Context, sourceType string, sourceID int64) (ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.FindEntryBySource(ctx, sourceType, sourceID)
		return err
	})
	return entry, err
}

func (e *Engine) record(ctx context.Context, action string, entry ledger.JournalEntry) {
	if e.audit == nil || entry.ID == 0 {
		return
	}
	_ = e.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta: map[string]any{
			"reference":   entry.Reference,
			"entry_type":  string(entry.Type),
			"total_cents": entry.Total(),
		},
	})
}

func orderDate(order OrderSnapshot, now func() time.Time) time.Time {
	if !order.DeliveryDate.IsZero() {
		return order.DeliveryDate
	}
	return now()
}
