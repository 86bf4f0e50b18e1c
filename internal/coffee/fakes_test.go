package coffee

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type rendered struct {
	To   Person
	Ref  string
	View View
}

type sent struct {
	To   Person
	Text string
}

// recordingNotifier captures everything the coordinator pushes.
type recordingNotifier struct {
	mu        sync.Mutex
	renders   []rendered
	dismissed []sent
	sent      []sent
	failFor   map[uuid.UUID]bool
	seq       int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{failFor: make(map[uuid.UUID]bool)}
}

func (n *recordingNotifier) Render(ctx context.Context, to Person, ref string, v View) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[to.ID] {
		return "", errors.New("message deleted")
	}
	if ref == "" {
		n.seq++
		ref = fmt.Sprintf("msg-%s-%d", to.DisplayName, n.seq)
	}
	n.renders = append(n.renders, rendered{To: to, Ref: ref, View: v})
	return ref, nil
}

func (n *recordingNotifier) Dismiss(ctx context.Context, to Person, ref string, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissed = append(n.dismissed, sent{To: to, Text: text})
	return nil
}

func (n *recordingNotifier) Send(ctx context.Context, to Person, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{To: to, Text: text})
	return nil
}

func (n *recordingNotifier) rendersFor(id uuid.UUID) []rendered {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []rendered
	for _, r := range n.renders {
		if r.To.ID == id {
			out = append(out, r)
		}
	}
	return out
}

func (n *recordingNotifier) renderCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.renders)
}

func (n *recordingNotifier) sentTo(id uuid.UUID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.To.ID == id {
			out = append(out, s.Text)
		}
	}
	return out
}

func (n *recordingNotifier) dismissedFor(id uuid.UUID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.dismissed {
		if s.To.ID == id {
			out = append(out, s.Text)
		}
	}
	return out
}

// fixedClock returns monotonically increasing times one second apart.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fixedClock {
	return &fixedClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func addPerson(store *MemoryStore, name string) Person {
	p := Person{ID: uuid.New(), ExternalID: "ext-" + name, DisplayName: name}
	_ = store.UpsertPerson(context.Background(), &p)
	return p
}

func addCard(store *MemoryStore, name string, remaining int, cost Cents, purchaser uuid.UUID, created time.Time) *Card {
	c := &Card{
		ID:             uuid.New(),
		Name:           name,
		TotalUnits:     remaining,
		RemainingUnits: remaining,
		UnitCost:       cost,
		PurchaserID:    purchaser,
		Active:         true,
		CreatedAt:      created,
		ConsumerStats:  make(map[uuid.UUID]*ConsumerStats),
	}
	_ = store.CreateCard(context.Background(), c)
	return c
}

// flakyStore fails session saves or card reads while the matching flag is set.
type flakyStore struct {
	*MemoryStore
	brokenSave  atomic.Bool
	brokenCards atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: NewMemoryStore()}
}

func (f *flakyStore) SaveSession(ctx context.Context, s *Session) error {
	if f.brokenSave.Load() {
		return errors.New("write tcp 10.0.0.7:5432: broken pipe")
	}
	return f.MemoryStore.SaveSession(ctx, s)
}

func (f *flakyStore) ActiveCards(ctx context.Context) ([]*Card, error) {
	if f.brokenCards.Load() {
		return nil, errors.New("read tcp 10.0.0.7:5432: connection reset")
	}
	return f.MemoryStore.ActiveCards(ctx)
}
