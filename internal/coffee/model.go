package coffee

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cents is an amount of money in euro cents.
type Cents int64

func (c Cents) String() string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s€%d.%02d", sign, int64(c)/100, int64(c)%100)
}

// MaxNameLength caps display names of members added by hand, in characters.
const MaxNameLength = 32

// Person is a known member of the coffee group.
type Person struct {
	ID          uuid.UUID // stable id, survives account-type changes
	ExternalID  string    // chat account id, empty for passive members
	DisplayName string
	Disabled    bool
	Archived    bool
	CreatedAt   time.Time
}

// ConsumerStats aggregates what one consumer took from a card.
type ConsumerStats struct {
	DisplayName    string    `json:"display_name"`
	UnitsConsumed  int       `json:"units_consumed"`
	LastConsumedAt time.Time `json:"last_consumed_at"`
}

// Card is a prepaid batch of coffee units.
type Card struct {
	ID             uuid.UUID
	Name           string
	TotalUnits     int
	RemainingUnits int
	UnitCost       Cents
	PurchaserID    uuid.UUID
	Active         bool
	CreatedAt      time.Time
	CompletedAt    *time.Time
	ConsumerStats  map[uuid.UUID]*ConsumerStats
}

// Consumed returns the sum of units attributed to consumers.
func (c *Card) Consumed() int {
	n := 0
	for _, s := range c.ConsumerStats {
		n += s.UnitsConsumed
	}
	return n
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (c *Card) Clone() *Card {
	out := *c
	out.ConsumerStats = make(map[uuid.UUID]*ConsumerStats, len(c.ConsumerStats))
	for id, s := range c.ConsumerStats {
		cp := *s
		out.ConsumerStats[id] = &cp
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// CardUsage is the slice of one order that was served by one card.
type CardUsage struct {
	CardID uuid.UUID `json:"card_id"`
	Units  int       `json:"units"`
}

// ConsumptionOrder is an immutable record of units attributed to one consumer.
type ConsumptionOrder struct {
	ID          uuid.UUID
	ConsumerID  uuid.UUID
	InitiatorID uuid.UUID
	SessionID   *uuid.UUID
	CardsUsed   []CardUsage
	Quantity    int
	FromSession bool
	CreatedAt   time.Time
}

// Debt is money a debtor owes the purchaser of a completed card.
type Debt struct {
	ID          uuid.UUID
	DebtorID    uuid.UUID
	CreditorID  uuid.UUID
	CardID      uuid.UUID
	TotalUnits  int
	UnitCost    Cents
	TotalAmount Cents
	PaidAmount  Cents
	Settled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SettledAt   *time.Time
}

// Outstanding returns the unpaid remainder, never negative.
func (d *Debt) Outstanding() Cents {
	if d.PaidAmount >= d.TotalAmount {
		return 0
	}
	return d.TotalAmount - d.PaidAmount
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentManual       PaymentMethod = "manual"
	PaymentPayPal       PaymentMethod = "paypal"
)

// ParsePaymentMethod maps user input to a PaymentMethod, defaulting to manual.
func ParsePaymentMethod(s string) PaymentMethod {
	switch PaymentMethod(s) {
	case PaymentCash, PaymentBankTransfer, PaymentPayPal:
		return PaymentMethod(s)
	default:
		return PaymentManual
	}
}

// Payment is an append-only audit record of money handed over.
type Payment struct {
	ID          uuid.UUID
	PayerID     uuid.UUID
	RecipientID uuid.UUID
	Amount      Cents
	Method      PaymentMethod
	DebtIDs     []uuid.UUID
	Description string
	CreatedAt   time.Time
}
