package coffee

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Request asks for units on behalf of one consumer.
type Request struct {
	ConsumerID  uuid.UUID
	DisplayName string
	Quantity    int
}

// Allocation is what one request was served with.
type Allocation struct {
	Request Request
	Usage   []CardUsage
}

// CardPool is the ordered set of active cards. It is not safe for concurrent use;
// callers serialize access through the coordinator.
type CardPool struct {
	cards []*Card
	now   func() time.Time
}

// NewCardPool keeps only active cards and orders them oldest first.
func NewCardPool(cards []*Card, now func() time.Time) *CardPool {
	if now == nil {
		now = time.Now
	}
	active := make([]*Card, 0, len(cards))
	for _, c := range cards {
		if c.Active {
			active = append(active, c)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return &CardPool{cards: active, now: now}
}

// Cards returns the pool's cards in spend order.
func (p *CardPool) Cards() []*Card {
	return p.cards
}

func (p *CardPool) Len() int {
	return len(p.cards)
}

// Available returns the remaining units across all active cards.
func (p *CardPool) Available() int {
	n := 0
	for _, c := range p.cards {
		n += c.RemainingUnits
	}
	return n
}

// CheckCapacity reports whether total more units can be served.
func (p *CardPool) CheckCapacity(total int) bool {
	return total <= p.Available()
}

// Allocate spends the cards oldest first, serving requests in the given order.
// It does not roll back: callers must CheckCapacity first, inside the same
// critical section. Cards touched are updated in place.
func (p *CardPool) Allocate(requests []Request) ([]Allocation, error) {
	total := 0
	for _, r := range requests {
		total += r.Quantity
	}
	available := p.Available()

	now := p.now()
	out := make([]Allocation, 0, len(requests))
	idx := 0
	for _, r := range requests {
		if r.Quantity <= 0 {
			continue
		}
		alloc := Allocation{Request: r}
		need := r.Quantity
		for need > 0 {
			for idx < len(p.cards) && p.cards[idx].RemainingUnits == 0 {
				idx++
			}
			if idx >= len(p.cards) {
				return out, &InsufficientCapacityError{Requested: total, Available: available}
			}
			card := p.cards[idx]
			take := need
			if card.RemainingUnits < take {
				take = card.RemainingUnits
			}
			card.RemainingUnits -= take
			need -= take
			recordConsumption(card, r, take, now)
			alloc.Usage = append(alloc.Usage, CardUsage{CardID: card.ID, Units: take})
		}
		out = append(out, alloc)
	}
	return out, nil
}

func recordConsumption(card *Card, r Request, units int, at time.Time) {
	if card.ConsumerStats == nil {
		card.ConsumerStats = make(map[uuid.UUID]*ConsumerStats)
	}
	stats, ok := card.ConsumerStats[r.ConsumerID]
	if !ok {
		stats = &ConsumerStats{}
		card.ConsumerStats[r.ConsumerID] = stats
	}
	stats.UnitsConsumed += units
	stats.DisplayName = r.DisplayName
	stats.LastConsumedAt = at
}

// Orders turns allocations into consumption records.
func Orders(allocs []Allocation, initiator uuid.UUID, sessionID *uuid.UUID, at time.Time) []ConsumptionOrder {
	orders := make([]ConsumptionOrder, 0, len(allocs))
	for _, a := range allocs {
		orders = append(orders, ConsumptionOrder{
			ID:          uuid.New(),
			ConsumerID:  a.Request.ConsumerID,
			InitiatorID: initiator,
			SessionID:   sessionID,
			CardsUsed:   a.Usage,
			Quantity:    a.Request.Quantity,
			FromSession: sessionID != nil,
			CreatedAt:   at,
		})
	}
	return orders
}

// Touched returns the cards referenced by the allocations, in spend order.
func (p *CardPool) Touched(allocs []Allocation) []*Card {
	seen := make(map[uuid.UUID]bool)
	for _, a := range allocs {
		for _, u := range a.Usage {
			seen[u.CardID] = true
		}
	}
	var out []*Card
	for _, c := range p.cards {
		if seen[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
