package coffee

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/susu3304/coffeebot/internal/metrics"
	"go.uber.org/zap"
)

// Ledger turns completed cards into debts and applies payments against them.
type Ledger struct {
	store LedgerStore
	log   *zap.Logger
	now   func() time.Time

	mu    sync.Mutex
	pairs map[[2]uuid.UUID]*pairMutex
}

// pairMutex is dropped from Ledger.pairs once nobody holds or waits on it.
type pairMutex struct {
	sync.Mutex
	refs int
}

func NewLedger(store LedgerStore, logger *zap.Logger, now func() time.Time) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		store: store,
		log:   logger.Named("ledger"),
		now:   now,
		pairs: make(map[[2]uuid.UUID]*pairMutex),
	}
}

// lockPair serializes payments between one payer and one recipient. The
// returned func releases the lock; pairs only stay in memory while in use.
func (l *Ledger) lockPair(payer, recipient uuid.UUID) (unlock func()) {
	key := [2]uuid.UUID{payer, recipient}
	l.mu.Lock()
	m, ok := l.pairs[key]
	if !ok {
		m = &pairMutex{}
		l.pairs[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.pairs, key)
		}
		l.mu.Unlock()
	}
}

// heldPairs reports how many payer/recipient locks are in memory.
func (l *Ledger) heldPairs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pairs)
}

// SettleCard closes card and creates one debt per consumer other than the
// purchaser. Each debt is units times the card's unit cost.
func (l *Ledger) SettleCard(ctx context.Context, card *Card) ([]Debt, error) {
	if !card.Active {
		return nil, fmt.Errorf("card %q: %w", card.Name, ErrAlreadyCompleted)
	}
	debts := DebtsForCard(card, l.now())

	closed := card.Clone()
	closed.Active = false
	at := l.now()
	closed.CompletedAt = &at
	if err := l.store.CompleteCard(ctx, closed, debts); err != nil {
		return nil, fmt.Errorf("complete card %q: %w", card.Name, err)
	}
	metrics.DebtsCreated.Add(float64(len(debts)))
	l.log.Info("card completed",
		zap.Stringer("card", card.ID),
		zap.String("name", card.Name),
		zap.Int("consumed", card.Consumed()),
		zap.Int("debts", len(debts)))
	return debts, nil
}

// DebtsForCard computes the debts a card produces without persisting them.
func DebtsForCard(card *Card, at time.Time) []Debt {
	type entry struct {
		id    uuid.UUID
		stats *ConsumerStats
	}
	var entries []entry
	for id, s := range card.ConsumerStats {
		if id == card.PurchaserID || s.UnitsConsumed <= 0 {
			continue
		}
		entries = append(entries, entry{id, s})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := strings.ToLower(entries[i].stats.DisplayName), strings.ToLower(entries[j].stats.DisplayName)
		if a != b {
			return a < b
		}
		return entries[i].id.String() < entries[j].id.String()
	})

	debts := make([]Debt, 0, len(entries))
	for _, e := range entries {
		debts = append(debts, Debt{
			ID:          uuid.New(),
			DebtorID:    e.id,
			CreditorID:  card.PurchaserID,
			CardID:      card.ID,
			TotalUnits:  e.stats.UnitsConsumed,
			UnitCost:    card.UnitCost,
			TotalAmount: card.UnitCost * Cents(e.stats.UnitsConsumed),
			CreatedAt:   at,
			UpdatedAt:   at,
		})
	}
	return debts
}

type PaymentRequest struct {
	PayerID     uuid.UUID
	RecipientID uuid.UUID
	Amount      Cents
	Method      PaymentMethod
	Description string
	// DebtID targets a single debt; nil spreads the amount oldest first.
	DebtID *uuid.UUID
}

type PaymentResult struct {
	Payment *Payment
	Debts   []Debt
	// Unapplied is the part of the amount no open debt absorbed.
	Unapplied Cents
}

// ApplyPayment records a payment and reduces the payer's debts to the recipient.
func (l *Ledger) ApplyPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", ErrInvalidArgument)
	}
	if req.PayerID == req.RecipientID {
		return nil, fmt.Errorf("%w: payer and recipient are the same person", ErrInvalidArgument)
	}
	if req.Method == "" {
		req.Method = PaymentManual
	}

	unlock := l.lockPair(req.PayerID, req.RecipientID)
	defer unlock()

	var open []Debt
	if req.DebtID != nil {
		d, err := l.store.DebtByID(ctx, *req.DebtID)
		if err != nil {
			return nil, fmt.Errorf("load debt %s: %w", *req.DebtID, err)
		}
		if d.DebtorID != req.PayerID || d.CreditorID != req.RecipientID {
			return nil, fmt.Errorf("%w: debt %s is not owed by payer to recipient", ErrInvalidArgument, d.ID)
		}
		if !d.Settled {
			open = []Debt{*d}
		}
	} else {
		debts, err := l.store.UnsettledDebts(ctx, req.PayerID, req.RecipientID)
		if err != nil {
			return nil, fmt.Errorf("load unsettled debts: %w", err)
		}
		open = debts
	}

	now := l.now()
	remaining := req.Amount
	var updates []DebtUpdate
	for _, d := range open {
		if remaining <= 0 {
			break
		}
		delta := d.Outstanding()
		if remaining < delta {
			delta = remaining
		}
		if delta <= 0 {
			continue
		}
		prev := d.PaidAmount
		d.PaidAmount += delta
		d.UpdatedAt = now
		if d.PaidAmount >= d.TotalAmount {
			d.Settled = true
			d.SettledAt = &now
		}
		remaining -= delta
		updates = append(updates, DebtUpdate{Debt: d, PrevPaid: prev})
	}

	p := &Payment{
		ID:          uuid.New(),
		PayerID:     req.PayerID,
		RecipientID: req.RecipientID,
		Amount:      req.Amount,
		Method:      req.Method,
		Description: req.Description,
		CreatedAt:   now,
	}
	for _, u := range updates {
		p.DebtIDs = append(p.DebtIDs, u.Debt.ID)
	}
	if err := l.store.RecordPayment(ctx, p, updates); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			l.log.Warn("payment lost a race", zap.Stringer("payment", p.ID), zap.Error(err))
		}
		return nil, fmt.Errorf("record payment: %w", err)
	}

	result := &PaymentResult{Payment: p, Unapplied: remaining}
	for _, u := range updates {
		result.Debts = append(result.Debts, u.Debt)
	}
	metrics.PaymentsCents.Add(float64(req.Amount))
	l.log.Info("payment recorded",
		zap.Stringer("payment", p.ID),
		zap.Stringer("amount", req.Amount),
		zap.String("method", string(req.Method)),
		zap.Int("debts", len(updates)),
		zap.Stringer("unapplied", remaining))
	return result, nil
}

// Estimate is what a person would owe for an active card if it closed now.
type Estimate struct {
	CardID   uuid.UUID
	CardName string
	Units    int
	Amount   Cents
}

type DebtSummary struct {
	PersonID       uuid.UUID
	Owes           []Debt
	Owed           []Debt
	TotalOwes      Cents
	TotalOwed      Cents
	Estimates      []Estimate
	TotalEstimated Cents
}

// Summary collects a person's open debts, open credits and pending estimates.
func (l *Ledger) Summary(ctx context.Context, personID uuid.UUID) (*DebtSummary, error) {
	owes, err := l.store.DebtsByDebtor(ctx, personID, false)
	if err != nil {
		return nil, fmt.Errorf("load debts: %w", err)
	}
	owed, err := l.store.DebtsByCreditor(ctx, personID, false)
	if err != nil {
		return nil, fmt.Errorf("load credits: %w", err)
	}
	cards, err := l.store.ActiveCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active cards: %w", err)
	}

	s := &DebtSummary{PersonID: personID, Owes: owes, Owed: owed}
	for i := range owes {
		s.TotalOwes += owes[i].Outstanding()
	}
	for i := range owed {
		s.TotalOwed += owed[i].Outstanding()
	}
	for _, c := range NewCardPool(cards, l.now).Cards() {
		if c.PurchaserID == personID {
			continue
		}
		stats, ok := c.ConsumerStats[personID]
		if !ok || stats.UnitsConsumed == 0 {
			continue
		}
		e := Estimate{CardID: c.ID, CardName: c.Name, Units: stats.UnitsConsumed, Amount: c.UnitCost * Cents(stats.UnitsConsumed)}
		s.Estimates = append(s.Estimates, e)
		s.TotalEstimated += e.Amount
	}
	return s, nil
}

// CardDebt is an open debt together with the card it came from.
type CardDebt struct {
	Debt
	CardName string
}

// OpenDebts lists what debtor still owes creditor, oldest first.
func (l *Ledger) OpenDebts(ctx context.Context, debtorID, creditorID uuid.UUID) ([]CardDebt, error) {
	debts, err := l.store.UnsettledDebts(ctx, debtorID, creditorID)
	if err != nil {
		return nil, fmt.Errorf("load unsettled debts: %w", err)
	}
	out := make([]CardDebt, 0, len(debts))
	for _, d := range debts {
		cd := CardDebt{Debt: d}
		if card, err := l.store.CardByID(ctx, d.CardID); err == nil {
			cd.CardName = card.Name
		} else if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("load card %s: %w", d.CardID, err)
		}
		out = append(out, cd)
	}
	return out, nil
}

// Payments lists recent payments made or received by personID.
func (l *Ledger) Payments(ctx context.Context, personID uuid.UUID, limit int) ([]Payment, error) {
	return l.store.PaymentsByPerson(ctx, personID, limit)
}
