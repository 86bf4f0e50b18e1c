package coffee

import (
	"context"

	"github.com/google/uuid"
)

// PeopleStore resolves group members.
type PeopleStore interface {
	ListPeople(ctx context.Context) ([]Person, error)
	PersonByID(ctx context.Context, id uuid.UUID) (*Person, error)
	PersonByExternalID(ctx context.Context, externalID string) (*Person, error)
	PersonByName(ctx context.Context, displayName string) (*Person, error)
	UpsertPerson(ctx context.Context, p *Person) error
}

// CardStore persists prepaid cards.
type CardStore interface {
	ActiveCards(ctx context.Context) ([]*Card, error)
	CardByID(ctx context.Context, id uuid.UUID) (*Card, error)
	CreateCard(ctx context.Context, c *Card) error
}

// SessionStore persists group orders and the allocations they produce.
type SessionStore interface {
	ActiveSession(ctx context.Context) (*Session, error)
	CreateSession(ctx context.Context, s *Session) error
	SaveSession(ctx context.Context, s *Session) error
	// CommitAllocation atomically stores the touched cards, the new orders and,
	// when s is non-nil, the session.
	CommitAllocation(ctx context.Context, s *Session, cards []*Card, orders []ConsumptionOrder) error
	OrdersByConsumer(ctx context.Context, consumerID uuid.UUID) ([]ConsumptionOrder, error)
}

// DebtUpdate is a debt after a payment was applied, with the paid amount it had
// before so stores can detect lost updates.
type DebtUpdate struct {
	Debt     Debt
	PrevPaid Cents
}

// LedgerStore persists debts and payments.
type LedgerStore interface {
	ActiveCards(ctx context.Context) ([]*Card, error)
	CardByID(ctx context.Context, id uuid.UUID) (*Card, error)
	// CompleteCard marks c inactive and inserts its debts in one step. It
	// returns ErrAlreadyCompleted when the card is no longer active.
	CompleteCard(ctx context.Context, c *Card, debts []Debt) error
	DebtByID(ctx context.Context, id uuid.UUID) (*Debt, error)
	// UnsettledDebts returns open debts from debtor to creditor, oldest first.
	UnsettledDebts(ctx context.Context, debtorID, creditorID uuid.UUID) ([]Debt, error)
	DebtsByDebtor(ctx context.Context, debtorID uuid.UUID, includeSettled bool) ([]Debt, error)
	DebtsByCreditor(ctx context.Context, creditorID uuid.UUID, includeSettled bool) ([]Debt, error)
	DebtsByCard(ctx context.Context, cardID uuid.UUID) ([]Debt, error)
	// RecordPayment inserts p and applies the updates. It returns
	// ErrConcurrentUpdate if any debt's paid amount no longer matches PrevPaid.
	RecordPayment(ctx context.Context, p *Payment, updates []DebtUpdate) error
	// OutstandingDebtors lists every person with at least one unsettled debt.
	OutstandingDebtors(ctx context.Context) ([]uuid.UUID, error)
	// PaymentsByPerson lists payments made or received by id, newest first.
	PaymentsByPerson(ctx context.Context, id uuid.UUID, limit int) ([]Payment, error)
}

type Store interface {
	PeopleStore
	CardStore
	SessionStore
	LedgerStore
}
