package bot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/susu3304/coffeebot/internal/coffee"
)

// intentQueue routes button presses to the turn loop of the person who pressed them.
type intentQueue struct {
	mu      sync.Mutex
	pending map[uuid.UUID]chan coffee.Intent
}

var _ coffee.IntentSource = (*intentQueue)(nil)

func newIntentQueue() *intentQueue {
	return &intentQueue{pending: make(map[uuid.UUID]chan coffee.Intent)}
}

// open registers a mailbox for who. It reports false if one is already open.
func (q *intentQueue) open(who uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[who]; ok {
		return false
	}
	q.pending[who] = make(chan coffee.Intent, 8)
	return true
}

func (q *intentQueue) close(who uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, who)
}

// push delivers an intent. It reports false when who has no running loop or
// their mailbox is full.
func (q *intentQueue) push(who uuid.UUID, in coffee.Intent) bool {
	q.mu.Lock()
	ch, ok := q.pending[who]
	q.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- in:
		return true
	default:
		return false
	}
}

func (q *intentQueue) AwaitIntent(ctx context.Context, who coffee.Person, timeout time.Duration) (coffee.Intent, error) {
	q.mu.Lock()
	ch, ok := q.pending[who.ID]
	q.mu.Unlock()
	if !ok {
		return nil, coffee.ErrNoActiveSession
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case in := <-ch:
		return in, nil
	case <-timer.C:
		return nil, coffee.ErrTurnTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
