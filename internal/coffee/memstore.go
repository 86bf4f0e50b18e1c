package coffee

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a Store kept in process memory. Every read and write copies,
// so callers never share state with the store.
type MemoryStore struct {
	mu       sync.Mutex
	people   map[uuid.UUID]Person
	cards    map[uuid.UUID]*Card
	sessions map[uuid.UUID]*Session
	orders   []ConsumptionOrder
	debts    map[uuid.UUID]*Debt
	payments []Payment
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		people:   make(map[uuid.UUID]Person),
		cards:    make(map[uuid.UUID]*Card),
		sessions: make(map[uuid.UUID]*Session),
		debts:    make(map[uuid.UUID]*Debt),
	}
}

func (m *MemoryStore) ListPeople(ctx context.Context) ([]Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Person, 0, len(m.people))
	for _, p := range m.people {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName)
	})
	return out, nil
}

func (m *MemoryStore) PersonByID(ctx context.Context, id uuid.UUID) (*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.people[id]
	if !ok {
		return nil, fmt.Errorf("person %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryStore) PersonByExternalID(ctx context.Context, externalID string) (*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.people {
		if externalID != "" && p.ExternalID == externalID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("person with external id %q: %w", externalID, ErrNotFound)
}

func (m *MemoryStore) PersonByName(ctx context.Context, displayName string) (*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.people {
		if strings.EqualFold(p.DisplayName, displayName) {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("person %q: %w", displayName, ErrNotFound)
}

func (m *MemoryStore) UpsertPerson(ctx context.Context, p *Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.people[p.ID] = *p
	return nil
}

func (m *MemoryStore) ActiveCards(ctx context.Context) ([]*Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Card
	for _, c := range m.cards {
		if c.Active {
			out = append(out, c.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CardByID(ctx context.Context, id uuid.UUID) (*Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

func (m *MemoryStore) CreateCard(ctx context.Context, c *Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[c.ID] = c.Clone()
	return nil
}

func (m *MemoryStore) ActiveSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.IsActive() {
			return s.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.IsActive() {
		for _, other := range m.sessions {
			if other.IsActive() {
				return fmt.Errorf("session %s is already active: %w", other.ID, ErrInvalidArgument)
			}
		}
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Session returns a stored session by id.
func (m *MemoryStore) Session(id uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (m *MemoryStore) CommitAllocation(ctx context.Context, s *Session, cards []*Card, orders []ConsumptionOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cards {
		stored, ok := m.cards[c.ID]
		if !ok {
			return fmt.Errorf("card %s: %w", c.ID, ErrNotFound)
		}
		if !stored.Active {
			return fmt.Errorf("card %q: %w", stored.Name, ErrAlreadyCompleted)
		}
	}
	if s != nil {
		if _, ok := m.sessions[s.ID]; !ok {
			return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
		}
		m.sessions[s.ID] = s.Clone()
	}
	for _, c := range cards {
		m.cards[c.ID] = c.Clone()
	}
	for _, o := range orders {
		o.CardsUsed = append([]CardUsage(nil), o.CardsUsed...)
		m.orders = append(m.orders, o)
	}
	return nil
}

func (m *MemoryStore) OrdersByConsumer(ctx context.Context, consumerID uuid.UUID) ([]ConsumptionOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ConsumptionOrder
	for _, o := range m.orders {
		if o.ConsumerID == consumerID {
			o.CardsUsed = append([]CardUsage(nil), o.CardsUsed...)
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MemoryStore) CompleteCard(ctx context.Context, c *Card, debts []Debt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.cards[c.ID]
	if !ok {
		return fmt.Errorf("card %s: %w", c.ID, ErrNotFound)
	}
	if !stored.Active {
		return ErrAlreadyCompleted
	}
	closed := c.Clone()
	closed.Active = false
	m.cards[c.ID] = closed
	for _, d := range debts {
		d := d
		m.debts[d.ID] = &d
	}
	return nil
}

func (m *MemoryStore) DebtByID(ctx context.Context, id uuid.UUID) (*Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debts[id]
	if !ok {
		return nil, fmt.Errorf("debt %s: %w", id, ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) UnsettledDebts(ctx context.Context, debtorID, creditorID uuid.UUID) ([]Debt, error) {
	return m.filterDebts(func(d *Debt) bool {
		return !d.Settled && d.DebtorID == debtorID && d.CreditorID == creditorID
	}), nil
}

func (m *MemoryStore) DebtsByDebtor(ctx context.Context, debtorID uuid.UUID, includeSettled bool) ([]Debt, error) {
	return m.filterDebts(func(d *Debt) bool {
		return d.DebtorID == debtorID && (includeSettled || !d.Settled)
	}), nil
}

func (m *MemoryStore) DebtsByCreditor(ctx context.Context, creditorID uuid.UUID, includeSettled bool) ([]Debt, error) {
	return m.filterDebts(func(d *Debt) bool {
		return d.CreditorID == creditorID && (includeSettled || !d.Settled)
	}), nil
}

func (m *MemoryStore) DebtsByCard(ctx context.Context, cardID uuid.UUID) ([]Debt, error) {
	return m.filterDebts(func(d *Debt) bool { return d.CardID == cardID }), nil
}

// filterDebts returns matching debts oldest first.
func (m *MemoryStore) filterDebts(keep func(*Debt) bool) []Debt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Debt
	for _, d := range m.debts {
		if keep(d) {
			out = append(out, *d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (m *MemoryStore) RecordPayment(ctx context.Context, p *Payment, updates []DebtUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		stored, ok := m.debts[u.Debt.ID]
		if !ok {
			return fmt.Errorf("debt %s: %w", u.Debt.ID, ErrNotFound)
		}
		if stored.PaidAmount != u.PrevPaid {
			return fmt.Errorf("debt %s: %w", u.Debt.ID, ErrConcurrentUpdate)
		}
	}
	for _, u := range updates {
		d := u.Debt
		m.debts[d.ID] = &d
	}
	cp := *p
	cp.DebtIDs = append([]uuid.UUID(nil), p.DebtIDs...)
	m.payments = append(m.payments, cp)
	return nil
}

func (m *MemoryStore) PaymentsByPerson(ctx context.Context, id uuid.UUID, limit int) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for i := len(m.payments) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		p := m.payments[i]
		if p.PayerID == id || p.RecipientID == id {
			p.DebtIDs = append([]uuid.UUID(nil), p.DebtIDs...)
			out = append(out, p)
		}
	}
	return out, nil
}

// Payments returns every recorded payment in insertion order.
func (m *MemoryStore) Payments() []Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Payment(nil), m.payments...)
}

func (m *MemoryStore) OutstandingDebtors(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, d := range m.debts {
		if !d.Settled && !seen[d.DebtorID] {
			seen[d.DebtorID] = true
			out = append(out, d.DebtorID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
