package coffee

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCard(name string, remaining int, created time.Time) *Card {
	return &Card{
		ID:             uuid.New(),
		Name:           name,
		TotalUnits:     remaining,
		RemainingUnits: remaining,
		UnitCost:       80,
		Active:         true,
		CreatedAt:      created,
	}
}

func assertCardInvariant(t *testing.T, c *Card) {
	t.Helper()
	assert.Equal(t, c.TotalUnits, c.RemainingUnits+c.Consumed(), "card %s", c.Name)
}

func TestCardPoolFIFO(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c2 := testCard("C2", 5, base.Add(time.Hour))
	c1 := testCard("C1", 1, base)
	pool := NewCardPool([]*Card{c2, c1}, nil)

	alice := uuid.New()
	allocs, err := pool.Allocate([]Request{{ConsumerID: alice, DisplayName: "Alice", Quantity: 3}})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, []CardUsage{{CardID: c1.ID, Units: 1}, {CardID: c2.ID, Units: 2}}, allocs[0].Usage)

	assert.Zero(t, c1.RemainingUnits)
	assert.Equal(t, 3, c2.RemainingUnits)
	assertCardInvariant(t, c1)
	assertCardInvariant(t, c2)
	assert.Equal(t, 1, c1.ConsumerStats[alice].UnitsConsumed)
	assert.Equal(t, 2, c2.ConsumerStats[alice].UnitsConsumed)
}

func TestCardPoolMembersInRequestOrder(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := testCard("C1", 2, base)
	c2 := testCard("C2", 10, base.Add(time.Minute))
	pool := NewCardPool([]*Card{c1, c2}, nil)

	bob, alice := uuid.New(), uuid.New()
	allocs, err := pool.Allocate([]Request{
		{ConsumerID: bob, DisplayName: "Bob", Quantity: 1},
		{ConsumerID: alice, DisplayName: "Alice", Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, []CardUsage{{CardID: c1.ID, Units: 1}}, allocs[0].Usage)
	assert.Equal(t, []CardUsage{{CardID: c1.ID, Units: 1}, {CardID: c2.ID, Units: 2}}, allocs[1].Usage)
	assert.Equal(t, []*Card{c1, c2}, pool.Touched(allocs))
}

func TestCardPoolSkipsExhaustedAndInactive(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	empty := testCard("empty", 0, base)
	empty.TotalUnits = 10
	empty.ConsumerStats = map[uuid.UUID]*ConsumerStats{uuid.New(): {DisplayName: "x", UnitsConsumed: 10}}
	closed := testCard("closed", 10, base.Add(time.Second))
	closed.Active = false
	open := testCard("open", 4, base.Add(2*time.Second))

	pool := NewCardPool([]*Card{empty, closed, open}, nil)
	assert.Equal(t, 2, pool.Len())
	assert.Equal(t, 4, pool.Available())

	allocs, err := pool.Allocate([]Request{{ConsumerID: uuid.New(), Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, []CardUsage{{CardID: open.ID, Units: 2}}, allocs[0].Usage)
}

func TestCardPoolCapacity(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pool := NewCardPool([]*Card{testCard("a", 2, base), testCard("b", 1, base.Add(time.Second))}, nil)

	assert.True(t, pool.CheckCapacity(3))
	assert.False(t, pool.CheckCapacity(4))

	_, err := pool.Allocate([]Request{{ConsumerID: uuid.New(), Quantity: 4}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCapacity))

	var capErr *InsufficientCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 4, capErr.Requested)
	assert.Equal(t, 3, capErr.Available)
}

func TestOrdersFromAllocations(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pool := NewCardPool([]*Card{testCard("a", 5, base)}, nil)
	alice, initiator := uuid.New(), uuid.New()
	allocs, err := pool.Allocate([]Request{{ConsumerID: alice, Quantity: 2}})
	require.NoError(t, err)

	direct := Orders(allocs, initiator, nil, base)
	require.Len(t, direct, 1)
	assert.False(t, direct[0].FromSession)
	assert.Equal(t, 2, direct[0].Quantity)
	assert.Equal(t, alice, direct[0].ConsumerID)

	sid := uuid.New()
	grouped := Orders(allocs, initiator, &sid, base)
	assert.True(t, grouped[0].FromSession)
	assert.Equal(t, &sid, grouped[0].SessionID)
}
