package coffee

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDebt(t *testing.T, store *MemoryStore, debtor, creditor uuid.UUID, total Cents, created time.Time) Debt {
	t.Helper()
	card := addCard(store, "seed-"+total.String(), 1, total, creditor, created)
	d := Debt{
		ID:          uuid.New(),
		DebtorID:    debtor,
		CreditorID:  creditor,
		CardID:      card.ID,
		TotalUnits:  1,
		UnitCost:    total,
		TotalAmount: total,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	require.NoError(t, store.CompleteCard(context.Background(), card, []Debt{d}))
	return d
}

func TestSettleCard(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newClock()
	ledger := NewLedger(store, nil, clock.Now)

	carol, alice, bob, dave := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	card := addCard(store, "March", 10, 80, carol, clock.Now())
	card.RemainingUnits = 4
	card.ConsumerStats = map[uuid.UUID]*ConsumerStats{
		bob:   {DisplayName: "Bob", UnitsConsumed: 1},
		alice: {DisplayName: "Alice", UnitsConsumed: 2},
		carol: {DisplayName: "Carol", UnitsConsumed: 3},
		dave:  {DisplayName: "Dave", UnitsConsumed: 0},
	}

	debts, err := ledger.SettleCard(ctx, card)
	require.NoError(t, err)
	require.Len(t, debts, 2)
	assert.Equal(t, alice, debts[0].DebtorID)
	assert.Equal(t, Cents(160), debts[0].TotalAmount)
	assert.Equal(t, bob, debts[1].DebtorID)
	assert.Equal(t, Cents(80), debts[1].TotalAmount)
	for _, d := range debts {
		assert.Equal(t, carol, d.CreditorID)
		assert.Equal(t, card.ID, d.CardID)
		assert.Zero(t, d.PaidAmount)
	}

	stored, err := store.CardByID(ctx, card.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.NotNil(t, stored.CompletedAt)
}

func TestSettleCardTwice(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ledger := NewLedger(store, nil, nil)

	carol, alice := uuid.New(), uuid.New()
	card := addCard(store, "March", 10, 80, carol, time.Now())
	card.ConsumerStats[alice] = &ConsumerStats{DisplayName: "Alice", UnitsConsumed: 2}

	_, err := ledger.SettleCard(ctx, card)
	require.NoError(t, err)

	// A stale copy that still looks active must be rejected by the store.
	_, err = ledger.SettleCard(ctx, card)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	closed, err := store.CardByID(ctx, card.ID)
	require.NoError(t, err)
	_, err = ledger.SettleCard(ctx, closed)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	debts, err := store.DebtsByCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Len(t, debts, 1)
}

func TestApplyPaymentOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newClock()
	ledger := NewLedger(store, nil, clock.Now)

	payer, recipient := uuid.New(), uuid.New()
	d1 := seedDebt(t, store, payer, recipient, 500, clock.Now())
	d2 := seedDebt(t, store, payer, recipient, 800, clock.Now())

	res, err := ledger.ApplyPayment(ctx, PaymentRequest{PayerID: payer, RecipientID: recipient, Amount: 1000, Method: PaymentCash})
	require.NoError(t, err)
	assert.Zero(t, res.Unapplied)
	assert.Equal(t, []uuid.UUID{d1.ID, d2.ID}, res.Payment.DebtIDs)

	got1, err := store.DebtByID(ctx, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, Cents(500), got1.PaidAmount)
	assert.True(t, got1.Settled)
	assert.NotNil(t, got1.SettledAt)

	got2, err := store.DebtByID(ctx, d2.ID)
	require.NoError(t, err)
	assert.Equal(t, Cents(500), got2.PaidAmount)
	assert.Equal(t, Cents(300), got2.Outstanding())
	assert.False(t, got2.Settled)

	payments := store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, PaymentCash, payments[0].Method)

	history, err := ledger.Payments(ctx, recipient, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, Cents(1000), history[0].Amount)
}

func TestApplyPaymentOverpayment(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ledger := NewLedger(store, nil, nil)

	payer, recipient := uuid.New(), uuid.New()
	seedDebt(t, store, payer, recipient, 300, time.Now())

	res, err := ledger.ApplyPayment(ctx, PaymentRequest{PayerID: payer, RecipientID: recipient, Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, Cents(200), res.Unapplied)
	assert.Equal(t, PaymentManual, res.Payment.Method)
	require.Len(t, res.Debts, 1)
	assert.True(t, res.Debts[0].Settled)

	open, err := store.UnsettledDebts(ctx, payer, recipient)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestApplyPaymentTargeted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newClock()
	ledger := NewLedger(store, nil, clock.Now)

	payer, recipient := uuid.New(), uuid.New()
	older := seedDebt(t, store, payer, recipient, 500, clock.Now())
	newer := seedDebt(t, store, payer, recipient, 800, clock.Now())

	_, err := ledger.ApplyPayment(ctx, PaymentRequest{PayerID: payer, RecipientID: recipient, Amount: 200, DebtID: &newer.ID})
	require.NoError(t, err)

	got, err := store.DebtByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, Cents(200), got.PaidAmount)
	untouched, err := store.DebtByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Zero(t, untouched.PaidAmount)

	_, err = ledger.ApplyPayment(ctx, PaymentRequest{PayerID: recipient, RecipientID: payer, Amount: 200, DebtID: &newer.ID})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestApplyPaymentRejectsBadInput(t *testing.T) {
	ledger := NewLedger(NewMemoryStore(), nil, nil)
	a, b := uuid.New(), uuid.New()

	for name, req := range map[string]PaymentRequest{
		"zero":     {PayerID: a, RecipientID: b},
		"negative": {PayerID: a, RecipientID: b, Amount: -5},
		"self":     {PayerID: a, RecipientID: a, Amount: 100},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ledger.ApplyPayment(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestApplyPaymentConcurrentSamePair(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ledger := NewLedger(store, nil, nil)

	payer, recipient := uuid.New(), uuid.New()
	d := seedDebt(t, store, payer, recipient, 1000, time.Now())

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.ApplyPayment(ctx, PaymentRequest{PayerID: payer, RecipientID: recipient, Amount: 100})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.DebtByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, Cents(1000), got.PaidAmount)
	assert.True(t, got.Settled)
	assert.Zero(t, ledger.heldPairs(), "idle pairs are released")
}

func TestApplyPaymentReleasesPairLocks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ledger := NewLedger(store, nil, nil)
	recipient := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		payer := uuid.New()
		seedDebt(t, store, payer, recipient, 500, time.Now())
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.ApplyPayment(ctx, PaymentRequest{PayerID: payer, RecipientID: recipient, Amount: 500})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Zero(t, ledger.heldPairs())

	_, err := ledger.ApplyPayment(ctx, PaymentRequest{PayerID: recipient, RecipientID: recipient, Amount: 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, ledger.heldPairs())
}

func TestRecordPaymentDetectsLostUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	payer, recipient := uuid.New(), uuid.New()
	d := seedDebt(t, store, payer, recipient, 1000, time.Now())

	stale := d
	stale.PaidAmount = 100
	require.NoError(t, store.RecordPayment(ctx, &Payment{ID: uuid.New()}, []DebtUpdate{{Debt: stale, PrevPaid: 0}}))

	again := d
	again.PaidAmount = 300
	err := store.RecordPayment(ctx, &Payment{ID: uuid.New()}, []DebtUpdate{{Debt: again, PrevPaid: 0}})
	assert.True(t, errors.Is(err, ErrConcurrentUpdate))
}

func TestLedgerSummary(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newClock()
	ledger := NewLedger(store, nil, clock.Now)

	alice, carol, bob := uuid.New(), uuid.New(), uuid.New()
	seedDebt(t, store, alice, carol, 500, clock.Now())
	seedDebt(t, store, bob, alice, 240, clock.Now())

	active := addCard(store, "April", 10, 80, carol, clock.Now())
	active.RemainingUnits = 7
	active.ConsumerStats[alice] = &ConsumerStats{DisplayName: "Alice", UnitsConsumed: 3}
	require.NoError(t, store.CommitAllocation(ctx, nil, []*Card{active}, nil))

	sum, err := ledger.Summary(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, Cents(500), sum.TotalOwes)
	assert.Equal(t, Cents(240), sum.TotalOwed)
	require.Len(t, sum.Estimates, 1)
	assert.Equal(t, "April", sum.Estimates[0].CardName)
	assert.Equal(t, Cents(240), sum.TotalEstimated)
}
