package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/coffeebot/internal/coffee"
	"go.uber.org/zap"
)

type silentNotifier struct{}

func (silentNotifier) Render(ctx context.Context, to coffee.Person, ref string, v coffee.View) (string, error) {
	return ref, nil
}
func (silentNotifier) Dismiss(ctx context.Context, to coffee.Person, ref, text string) error { return nil }
func (silentNotifier) Send(ctx context.Context, to coffee.Person, text string) error         { return nil }

func seedDebts(t *testing.T) (*coffee.MemoryStore, *coffee.Coordinator, map[string]coffee.Person) {
	t.Helper()
	ctx := context.Background()
	store := coffee.NewMemoryStore()
	coord := coffee.NewCoordinator(store, silentNotifier{}, zap.NewNop(), coffee.Options{})

	people := map[string]coffee.Person{}
	for name, ext := range map[string]string{"Alice": "1", "Bob": "2", "Carol": ""} {
		p := coffee.Person{DisplayName: name, ExternalID: ext}
		require.NoError(t, store.UpsertPerson(ctx, &p))
		people[name] = p
	}

	card, err := coord.CreateCard(ctx, "Beans", 10, 120, people["Alice"])
	require.NoError(t, err)
	_, err = coord.OrderDirect(ctx, people["Bob"], people["Bob"], 2)
	require.NoError(t, err)
	_, err = coord.OrderDirect(ctx, people["Alice"], people["Carol"], 1)
	require.NoError(t, err)
	_, err = coord.CompleteCard(ctx, card.ID, people["Alice"])
	require.NoError(t, err)
	return store, coord, people
}

func TestReminderDMsDebtorsWithAccounts(t *testing.T) {
	store, coord, _ := seedDebts(t)
	dm := newFakeDM()
	w := newReminderWorker(dm, store, coord.Ledger(), zap.NewNop(), time.Hour)

	w.tick(context.Background())

	// Carol owes too but has no chat account.
	assert.Equal(t, []string{"2"}, dm.opened)
	require.Len(t, dm.sent["dm-2"], 1)
	msg := dm.sent["dm-2"][0]
	assert.Contains(t, msg, "you still owe €2.40")
	assert.Contains(t, msg, "• Alice: €2.40")
	assert.Contains(t, msg, "sent automatically")
}

func TestReminderSkipsSettledDebtors(t *testing.T) {
	ctx := context.Background()
	store, coord, people := seedDebts(t)
	_, err := coord.Ledger().ApplyPayment(ctx, coffee.PaymentRequest{
		PayerID:     people["Bob"].ID,
		RecipientID: people["Alice"].ID,
		Amount:      240,
	})
	require.NoError(t, err)

	dm := newFakeDM()
	newReminderWorker(dm, store, coord.Ledger(), zap.NewNop(), time.Hour).tick(ctx)
	assert.Empty(t, dm.sent)
}

func TestReminderSendFailureDoesNotRetryPermanentErrors(t *testing.T) {
	store, coord, _ := seedDebts(t)
	dm := newFakeDM()
	dm.failSend = errors.New("cannot send messages to this user")

	w := newReminderWorker(dm, store, coord.Ledger(), zap.NewNop(), time.Hour)
	w.tick(context.Background())

	assert.Equal(t, []string{"2"}, dm.opened)
	assert.Empty(t, dm.sent)
}

func TestReminderWorkerNilSafe(t *testing.T) {
	var w *reminderWorker
	assert.NotPanics(t, func() {
		w.start()
		w.stop()
	})
}
