package posting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brioche-erp/brioche/internal/ledger"
	"github.com/brioche-erp/brioche/internal/stock"
)

var testRoles = RoleMap{
	RoleAR:                   "1100",
	RoleWIPInventory:         "1300",
	RoleIngredientsInventory: "1210",
	RolePackingInventory:     "1220",
	RoleKitchenInventory:     "1230",
	RoleCustomerDeposits:     "2100",
	RoleSales:                "4000",
	RoleSalesDiscounts:       "4090",
	RoleIngredientsCOGS:      "5010",
	RolePackagingCOGS:        "5020",
	RoleSamplesGifts:         "6300",
	RoleOwnersEquity:         "3000",
	RoleOwnersDrawings:       "3100",
}

type stockKey struct {
	item string
	loc  string
}

type sourceLink struct {
	entryID    int64
	sourceType string
	sourceID   int64
}

// fakeRepo backs the engine with in-memory state. It enforces the same
// uniqueness rules the database indexes do so the idempotency paths are
// exercised for real.
type fakeRepo struct {
	accounts   map[string]ledger.Account
	entries    []*ledger.JournalEntry
	positions  map[stockKey]stock.Position
	movements  []stock.Movement
	orderCosts map[int64]OrderCost
	links      []sourceLink
	nextEntry  int64
	nextMove   int64
}

func newFakeRepo() *fakeRepo {
	f := &fakeRepo{
		accounts:   make(map[string]ledger.Account),
		positions:  make(map[stockKey]stock.Position),
		orderCosts: make(map[int64]OrderCost),
		nextEntry:  1,
		nextMove:   1,
	}
	codes := []string{"1010", "1020", "1100", "1210", "1220", "1230", "1300",
		"2100", "2200", "3000", "3100", "4000", "4090", "5010", "5020", "6000", "6300"}
	for i, code := range codes {
		f.accounts[code] = ledger.Account{ID: int64(i + 1), Code: code}
	}
	return f
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) GetAccountByCode(_ context.Context, code string) (ledger.Account, error) {
	account, ok := f.accounts[code]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeRepo) InsertEntry(_ context.Context, in ledger.EntryInput) (ledger.JournalEntry, error) {
	for _, e := range f.entries {
		if e.Type == in.Type && e.Reference == in.Reference {
			return ledger.JournalEntry{}, ledger.ErrEntryExists
		}
	}
	entry := &ledger.JournalEntry{
		ID:          f.nextEntry,
		Date:        in.Date,
		Description: in.Description,
		Reference:   in.Reference,
		Type:        in.Type,
	}
	f.nextEntry++
	f.entries = append(f.entries, entry)
	return *entry, nil
}

func (f *fakeRepo) InsertLines(_ context.Context, entryID int64, lines []ledger.JournalLine) error {
	for _, e := range f.entries {
		if e.ID == entryID {
			for i := range lines {
				lines[i].EntryID = entryID
			}
			e.Lines = append(e.Lines, lines...)
			return nil
		}
	}
	return ledger.ErrEntryNotFound
}

func (f *fakeRepo) FindEntry(_ context.Context, entryType ledger.EntryType, reference string) (ledger.JournalEntry, error) {
	for _, e := range f.entries {
		if e.Type == entryType && e.Reference == reference {
			return *e, nil
		}
	}
	return ledger.JournalEntry{}, ledger.ErrEntryNotFound
}

func (f *fakeRepo) GetEntryWithLines(_ context.Context, entryID int64) (ledger.JournalEntry, error) {
	for _, e := range f.entries {
		if e.ID == entryID {
			return *e, nil
		}
	}
	return ledger.JournalEntry{}, ledger.ErrEntryNotFound
}

func (f *fakeRepo) ListEntriesByReference(_ context.Context, reference string) ([]ledger.JournalEntry, error) {
	var out []ledger.JournalEntry
	for _, e := range f.entries {
		if e.Reference == reference {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetPositionForUpdate(_ context.Context, itemCode, locationCode string) (stock.Position, error) {
	pos, ok := f.positions[stockKey{itemCode, locationCode}]
	if !ok {
		return stock.Position{}, stock.ErrPositionNotFound
	}
	return pos, nil
}

func (f *fakeRepo) UpsertPosition(_ context.Context, pos stock.Position) error {
	f.positions[stockKey{pos.ItemCode, pos.LocationCode}] = pos
	return nil
}

func (f *fakeRepo) InsertMovement(_ context.Context, m stock.Movement) (int64, error) {
	m.ID = f.nextMove
	f.nextMove++
	f.movements = append(f.movements, m)
	return m.ID, nil
}

func (f *fakeRepo) GetMovement(_ context.Context, id int64) (stock.Movement, error) {
	for _, m := range f.movements {
		if m.ID == id {
			return m, nil
		}
	}
	return stock.Movement{}, stock.ErrMovementNotFound
}

func (f *fakeRepo) ListMovementsBySource(_ context.Context, sourceType string, sourceID int64) ([]stock.Movement, error) {
	var out []stock.Movement
	for _, m := range f.movements {
		if m.SourceType == sourceType && m.SourceID == sourceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertOrderCost(_ context.Context, c OrderCost) error {
	f.orderCosts[c.OrderID] = c
	return nil
}

func (f *fakeRepo) GetOrderCost(_ context.Context, orderID int64) (OrderCost, error) {
	c, ok := f.orderCosts[orderID]
	if !ok {
		return OrderCost{}, ErrOrderCostNotFound
	}
	return c, nil
}

func (f *fakeRepo) LinkEntry(_ context.Context, entryID int64, sourceType string, sourceID int64) error {
	for _, l := range f.links {
		if l.sourceType == sourceType && l.sourceID == sourceID {
			if l.entryID == entryID || sourceType == "payment" {
				return ErrLinkExists
			}
		}
	}
	f.links = append(f.links, sourceLink{entryID: entryID, sourceType: sourceType, sourceID: sourceID})
	return nil
}

func (f *fakeRepo) FindEntryBySource(ctx context.Context, sourceType string, sourceID int64) (ledger.JournalEntry, error) {
	best := int64(0)
	for _, l := range f.links {
		if l.sourceType == sourceType && l.sourceID == sourceID && (best == 0 || l.entryID < best) {
			best = l.entryID
		}
	}
	if best == 0 {
		return ledger.JournalEntry{}, ledger.ErrEntryNotFound
	}
	return f.GetEntryWithLines(ctx, best)
}

func (f *fakeRepo) SumPaymentCreditsForOrder(ctx context.Context, orderID int64, accountCode string) (int64, error) {
	var total int64
	for _, l := range f.links {
		if l.sourceType != "order" || l.sourceID != orderID {
			continue
		}
		entry, err := f.GetEntryWithLines(ctx, l.entryID)
		if err != nil {
			return 0, err
		}
		if entry.Type == ledger.EntryTypeOrderPayment {
			total += entry.CreditTo(accountCode)
		}
	}
	return total, nil
}

func (f *fakeRepo) seedPosition(item, loc string, qty, avgCost int64) {
	f.positions[stockKey{item, loc}] = stock.Position{
		ItemCode: item, LocationCode: loc, QtyOnHand: qty, AvgCostCents: avgCost,
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	engine := NewEngine(repo, testRoles, nil, nil)
	engine.WithNow(func() time.Time {
		return time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	})
	return engine, repo
}

func bakeOrder() OrderSnapshot {
	return OrderSnapshot{
		ID:         42,
		PriceCents: 2500,
		Quantity:   2,
		Recipe: []RecipeLine{
			{ItemCode: "flour", LocationCode: "kitchen", Qty: 400, CostType: CostTypeIngredients},
			{ItemCode: "box", LocationCode: "kitchen", Qty: 2, CostType: CostTypePacking},
		},
	}
}

func seedBakeStock(repo *fakeRepo) {
	repo.seedPosition("flour", "kitchen", 1000, 5)
	repo.seedPosition("box", "kitchen", 10, 30)
}

func TestPostOrderInPrep(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)
	seedBakeStock(repo)

	outcome, err := engine.PostOrderInPrep(ctx, bakeOrder())
	require.NoError(t, err)
	require.False(t, outcome.AlreadyPosted)

	entry := outcome.Entry
	require.Equal(t, ledger.EntryTypeOrderInPrep, entry.Type)
	require.Equal(t, "Order #42", entry.Reference)
	require.Equal(t, int64(2060), entry.DebitTo("1300"))
	require.Equal(t, int64(2000), entry.CreditTo("1210"))
	require.Equal(t, int64(60), entry.CreditTo("1220"))

	flour := repo.positions[stockKey{"flour", "kitchen"}]
	require.Equal(t, int64(600), flour.QtyOnHand)

	cost, ok := repo.orderCosts[42]
	require.True(t, ok)
	require.Equal(t, int64(2000), cost.IngredientsCents)
	require.Equal(t, int64(60), cost.PackingCents)
}

func TestPostOrderInPrepIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)
	seedBakeStock(repo)

	first, err := engine.PostOrderInPrep(ctx, bakeOrder())
	require.NoError(t, err)

	second, err := engine.PostOrderInPrep(ctx, bakeOrder())
	require.NoError(t, err)
	require.True(t, second.AlreadyPosted)
	require.Equal(t, first.Entry.ID, second.Entry.ID)

	// Stock was consumed exactly once.
	flour := repo.positions[stockKey{"flour", "kitchen"}]
	require.Equal(t, int64(600), flour.QtyOnHand)
}

// racingRepo simulates the loser of a concurrent posting: its snapshot
// misses the winner's entry on the existence check, so the insert hits the
// unique reference index instead.
type racingRepo struct {
	*fakeRepo
	misses int
}

func (r *racingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *racingRepo) FindEntry(ctx context.Context, entryType ledger.EntryType, reference string) (ledger.JournalEntry, error) {
	if r.misses > 0 && entryType == ledger.EntryTypeOrderInPrep {
		r.misses--
		return ledger.JournalEntry{}, ledger.ErrEntryNotFound
	}
	return r.fakeRepo.FindEntry(ctx, entryType, reference)
}

func TestPostOrderInPrepInsertRace(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	seedBakeStock(repo)

	winner := NewEngine(repo, testRoles, nil, nil)
	posted, err := winner.PostOrderInPrep(ctx, bakeOrder())
	require.NoError(t, err)
	require.False(t, posted.AlreadyPosted)

	// The loser's existence check sees a snapshot from before the winner
	// committed; the unique index decides and the loser re-reads.
	loser := NewEngine(&racingRepo{fakeRepo: repo, misses: 1}, testRoles, nil, nil)
	outcome, err := loser.PostOrderInPrep(ctx, bakeOrder())
	require.NoError(t, err)
	require.True(t, outcome.AlreadyPosted)
	require.Equal(t, posted.Entry.ID, outcome.Entry.ID)
	require.Equal(t, posted.Entry.DebitTo("1300"), outcome.Entry.DebitTo("1300"))
}

func TestPostOrderInPrepInsufficientStock(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)
	repo.seedPosition("flour", "kitchen", 100, 5)

	order := bakeOrder()
	order.Recipe = order.Recipe[:1]
	_, err := engine.PostOrderInPrep(ctx, order)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
}

func TestPostOrderInPrepNoRecipeCost(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)
	repo.seedPosition("flour", "kitchen", 1000, 0)

	order := bakeOrder()
	order.Recipe = order.Recipe[:1]
	_, err := engine.PostOrderInPrep(ctx, order)
	require.ErrorIs(t, err, ErrNoRecipeCost)

	order.Recipe = nil
	_, err = engine.PostOrderInPrep(ctx, order)
	require.ErrorIs(t, err, ErrNoRecipeCost)
}

func TestPostOrderDelivered(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)
	seedBakeStock(repo)

	order := bakeOrder()
	order.ShippingCents = 500
	order.DiscountType = DiscountTypePercent
	order.DiscountValue = 10

	_, err := engine.PostOrderInPrep(ctx, order)
	require.NoError(t, err)

	// A 2000 cent deposit received before delivery.
	_, err = engine.PostPayment(ctx, PaymentSnapshot{
		ID: 501, OrderID: order.ID, AmountCents: 2000, IsDeposit: true,
		PaidToAccountCode: "1010",
	})
	require.NoError(t, err)

	outcome, err := engine.PostOrderDelivered(ctx, order)
	require.NoError(t, err)
	require.False(t, outcome.AlreadyPosted)

	// Gross 6000, discount 600, net 5400; 2000 of deposits applied leaves
	// 3400 receivable. COGS folds kitchen into ingredients.
	entry := outcome.Entry
	require.Equal(t, int64(6000), entry.CreditTo("4000"))
	require.Equal(t, int64(3400), entry.DebitTo("1100"))
	require.Equal(t, int64(600), entry.DebitTo("4090"))
	require.Equal(t, int64(2000), entry.DebitTo("2100"))
	require.Equal(t, int64(2000), entry.DebitTo("5010"))
	require.Equal(t, int64(60), entry.DebitTo("5020"))
	require.Equal(t, int64(2060), entry.CreditTo("1300"))

	var debits, credits int64
	for _, line := range entry.Lines {
		debits += line.DebitCents
		credits += line.CreditCents
	}
	require.Equal(t, debits, credits)
}

func TestPostOrderDeliveredGift(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)
	seedBakeStock(repo)

	order := bakeOrder()
	order.IsGift = true
	_, err := engine.PostOrderInPrep(ctx, order)
	require.NoError(t, err)

	outcome, err := engine.PostOrderDelivered(ctx, order)
	require.NoError(t, err)

	entry := outcome.Entry
	require.Equal(t, int64(2060), entry.DebitTo("6300"))
	require.Equal(t, int64(2060), entry.CreditTo("1300"))
	require.Equal(t, int64(0), entry.CreditTo("4000"))
}

func TestPostOrderDeliveredRequiresInPrep(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	_, err := engine.PostOrderDelivered(ctx, bakeOrder())
	require.ErrorIs(t, err, ErrNotInPrep)
}

func TestPostOrderCanceled(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)
	seedBakeStock(repo)

	order := bakeOrder()
	inPrep, err := engine.PostOrderInPrep(ctx, order)
	require.NoError(t, err)

	outcome, err := engine.PostOrderCanceled(ctx, order)
	require.NoError(t, err)
	require.False(t, outcome.NoLedgerEffect)

	// The correction mirrors the in-prep entry.
	entry := outcome.Entry
	require.Equal(t, ledger.EntryTypeCorrection, entry.Type)
	require.Equal(t, inPrep.Entry.DebitTo("1300"), entry.CreditTo("1300"))
	require.Equal(t, inPrep.Entry.CreditTo("1210"), entry.DebitTo("1210"))

	// Consumed stock is restored through reversal adjustments.
	flour := repo.positions[stockKey{"flour", "kitchen"}]
	require.Equal(t, int64(1000), flour.QtyOnHand)
	box := repo.positions[stockKey{"box", "kitchen"}]
	require.Equal(t, int64(10), box.QtyOnHand)

	second, err := engine.PostOrderCanceled(ctx, order)
	require.NoError(t, err)
	require.True(t, second.AlreadyPosted)
	require.Equal(t, entry.ID, second.Entry.ID)
	require.Equal(t, int64(1000), repo.positions[stockKey{"flour", "kitchen"}].QtyOnHand)
}

func TestPostOrderCanceledAfterDelivered(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)
	seedBakeStock(repo)

	order := bakeOrder()
	_, err := engine.PostOrderInPrep(ctx, order)
	require.NoError(t, err)
	_, err = engine.PostOrderDelivered(ctx, order)
	require.NoError(t, err)

	_, err = engine.PostOrderCanceled(ctx, order)
	require.ErrorIs(t, err, ErrCancelAfterDelivered)
}

func TestPostOrderCanceledWithoutInPrep(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	outcome, err := engine.PostOrderCanceled(ctx, bakeOrder())
	require.NoError(t, err)
	require.True(t, outcome.NoLedgerEffect)
}

func TestPostPaymentSplit(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	entry, err := engine.PostPayment(ctx, PaymentSnapshot{
		ID: 77, OrderID: 42, AmountCents: 5000,
		CustomerAmountCents: 4500, PartnerAmountCents: 500,
		PaidToAccountCode: "1010", PartnerPayableAccountCode: "2200",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5000), entry.DebitTo("1010"))
	require.Equal(t, int64(4500), entry.CreditTo("1100"))
	require.Equal(t, int64(500), entry.CreditTo("2200"))

	again, err := engine.PostPayment(ctx, PaymentSnapshot{
		ID: 77, OrderID: 42, AmountCents: 5000,
		CustomerAmountCents: 4500, PartnerAmountCents: 500,
		PaidToAccountCode: "1010", PartnerPayableAccountCode: "2200",
	})
	require.NoError(t, err)
	require.Equal(t, entry.ID, again.ID)
}

func TestPostPaymentDeposit(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	entry, err := engine.PostPayment(ctx, PaymentSnapshot{
		ID: 78, OrderID: 42, AmountCents: 1500, IsDeposit: true,
		PaidToAccountCode: "1010",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1500), entry.DebitTo("1010"))
	require.Equal(t, int64(1500), entry.CreditTo("2100"))
}

func TestPostPaymentFullyPartnerFunded(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	entry, err := engine.PostPayment(ctx, PaymentSnapshot{
		ID: 80, OrderID: 42, AmountCents: 500,
		PartnerAmountCents: 500,
		PaidToAccountCode:  "1010", PartnerPayableAccountCode: "2200",
	})
	require.NoError(t, err)
	require.Equal(t, int64(500), entry.DebitTo("1010"))
	require.Equal(t, int64(500), entry.CreditTo("2200"))
	// No zero-amount AR line.
	require.Len(t, entry.Lines, 2)
}

func TestPostPaymentValidation(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	_, err := engine.PostPayment(ctx, PaymentSnapshot{
		ID: 79, OrderID: 42, AmountCents: 5000,
		CustomerAmountCents: 4000, PartnerAmountCents: 500,
		PaidToAccountCode: "1010", PartnerPayableAccountCode: "2200",
	})
	require.ErrorIs(t, err, ErrSplitMismatch)

	_, err = engine.PostPayment(ctx, PaymentSnapshot{OrderID: 42, AmountCents: 100, PaidToAccountCode: "1010"})
	require.Error(t, err)
}

func TestPostInventoryPurchase(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)

	in := PurchasePosting{
		PurchaseID: 9, ItemCode: "flour", LocationCode: "storage",
		Qty: 1000, TotalCostCents: 5000, CostType: CostTypeIngredients,
		PaidFromAccountCode: "1010", Reference: "PO-2025-009",
	}
	entry, err := engine.PostInventoryPurchase(ctx, in)
	require.NoError(t, err)
	require.Equal(t, int64(5000), entry.DebitTo("1210"))
	require.Equal(t, int64(5000), entry.CreditTo("1010"))

	pos := repo.positions[stockKey{"flour", "storage"}]
	require.Equal(t, int64(1000), pos.QtyOnHand)
	require.Equal(t, int64(5), pos.AvgCostCents)

	again, err := engine.PostInventoryPurchase(ctx, in)
	require.NoError(t, err)
	require.Equal(t, entry.ID, again.ID)
	require.Equal(t, int64(1000), repo.positions[stockKey{"flour", "storage"}].QtyOnHand)
}

func TestSimplePostings(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	expense, err := engine.PostExpense(ctx, "Rent March", "Monthly rent", "6000", "1020", 90000, date)
	require.NoError(t, err)
	require.Equal(t, int64(90000), expense.DebitTo("6000"))
	require.Equal(t, int64(90000), expense.CreditTo("1020"))

	again, err := engine.PostExpense(ctx, "Rent March", "Monthly rent", "6000", "1020", 90000, date)
	require.NoError(t, err)
	require.Equal(t, expense.ID, again.ID)

	investment, err := engine.PostInvestment(ctx, "Seed capital", "", "1020", 500000, date)
	require.NoError(t, err)
	require.Equal(t, int64(500000), investment.CreditTo("3000"))

	withdrawal, err := engine.PostWithdrawal(ctx, "Owner draw March", "", "1020", 20000, date)
	require.NoError(t, err)
	require.Equal(t, int64(20000), withdrawal.DebitTo("3100"))
	require.Equal(t, int64(20000), withdrawal.CreditTo("1020"))

	transfer, err := engine.PostInternalTransfer(ctx, "Cash to bank", "", "1010", "1020", 30000, date)
	require.NoError(t, err)
	require.Equal(t, int64(30000), transfer.DebitTo("1020"))
	require.Equal(t, int64(30000), transfer.CreditTo("1010"))
}

func TestPostWithdrawalRequiresRoleMapping(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	engine := NewEngine(repo, RoleMap{}, nil, nil)

	_, err := engine.PostWithdrawal(ctx, "Owner draw", "", "1020", 20000, time.Time{})
	require.ErrorIs(t, err, ErrRoleNotMapped)
}

func TestLedgerEffect(t *testing.T) {
	effect, err := LedgerEffect(ledger.EntryTypeOrderCreated)
	require.NoError(t, err)
	require.False(t, effect)

	effect, err = LedgerEffect(ledger.EntryTypeSale)
	require.NoError(t, err)
	require.True(t, effect)

	_, err = LedgerEffect(ledger.EntryType("refund"))
	require.ErrorIs(t, err, ledger.ErrInvalidEntryType)
}
