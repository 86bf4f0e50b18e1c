package coffee

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/susu3304/coffeebot/internal/metrics"
	"go.uber.org/zap"
)

// Notifier is the transport capability the coordinator needs.
type Notifier interface {
	// Render creates or edits a participant's live view. ref is the message
	// returned by the previous render for this viewer, empty on the first one.
	Render(ctx context.Context, to Person, ref string, v View) (string, error)
	// Dismiss replaces a live view with plain text and no controls.
	Dismiss(ctx context.Context, to Person, ref string, text string) error
	// Send delivers a one-off notice.
	Send(ctx context.Context, to Person, text string) error
}

type Options struct {
	PageSize int
	Now      func() time.Time
}

// Coordinator owns the single active session. Every mutating call runs to
// completion, persistence and broadcast included, under one mutex.
type Coordinator struct {
	mu       sync.Mutex
	store    Store
	notifier Notifier
	ledger   *Ledger
	views    *ViewRegistry
	log      *zap.Logger
	pageSize int
	now      func() time.Time

	active *Session
	done   chan struct{}
	people map[uuid.UUID]Person
}

// Outcome tells a participant's turn loop whether to stop.
type Outcome struct {
	Done bool
}

// Completion is the result of a submitted session.
type Completion struct {
	Session *Session
	Orders  []ConsumptionOrder
	Total   int
}

func NewCoordinator(store Store, notifier Notifier, logger *zap.Logger, opts Options) *Coordinator {
	if opts.PageSize <= 0 {
		opts.PageSize = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:    store,
		notifier: notifier,
		ledger:   NewLedger(store, logger, opts.Now),
		views:    NewViewRegistry(),
		log:      logger.Named("coordinator"),
		pageSize: opts.PageSize,
		now:      opts.Now,
		people:   make(map[uuid.UUID]Person),
	}
}

// Ledger exposes the debt ledger for read paths and payments.
func (c *Coordinator) Ledger() *Ledger {
	return c.ledger
}

// Views exposes the registry for inspection.
func (c *Coordinator) Views() *ViewRegistry {
	return c.views
}

// Restore adopts a session left active by a previous process.
func (c *Coordinator) Restore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.store.ActiveSession(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load active session: %w", err)
	}
	c.setActiveLocked(s)
	c.log.Info("restored active session", zap.Stringer("session", s.ID))
	return nil
}

// Active returns a copy of the active session.
func (c *Coordinator) Active() (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil, false
	}
	return c.active.Clone(), true
}

// Done returns a channel closed when the given session leaves the active state.
func (c *Coordinator) Done(sessionID uuid.UUID) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.ID != sessionID {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// StartOrJoin opens a session from the full roster when none is active, or adds
// who to the active one.
func (c *Coordinator) StartOrJoin(ctx context.Context, who Person) (*Session, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.people[who.ID] = who
	if c.active != nil {
		if c.active.AddParticipant(who.ID) {
			if err := c.store.SaveSession(ctx, c.active); err != nil {
				c.active.RemoveParticipant(who.ID)
				return nil, false, fmt.Errorf("save session: %w", err)
			}
			c.log.Info("participant joined", zap.Stringer("session", c.active.ID), zap.String("who", who.DisplayName))
		}
		return c.active.Clone(), false, nil
	}

	cards, err := c.store.ActiveCards(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("load active cards: %w", err)
	}
	if len(cards) == 0 {
		return nil, false, fmt.Errorf("no active coffee cards: %w", ErrNoCapacity)
	}
	roster, err := c.store.ListPeople(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("load roster: %w", err)
	}

	now := c.now()
	s := &Session{
		ID:           uuid.New(),
		InitiatorID:  who.ID,
		Participants: []uuid.UUID{who.ID},
		Group:        GroupStateFromRoster(roster),
		Status:       SessionActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, card := range NewCardPool(cards, c.now).Cards() {
		s.CardSnapshot = append(s.CardSnapshot, card.ID)
	}
	if err := c.store.CreateSession(ctx, s); err != nil {
		return nil, false, fmt.Errorf("create session: %w", err)
	}
	c.setActiveLocked(s)
	metrics.SessionsStarted.Inc()
	c.log.Info("session started",
		zap.Stringer("session", s.ID),
		zap.String("initiator", who.DisplayName),
		zap.Int("members", len(s.Group.Members)),
		zap.Int("cards", len(s.CardSnapshot)))
	return s.Clone(), true, nil
}

// OpenView registers who as a viewer of the session and renders their first page.
func (c *Coordinator) OpenView(ctx context.Context, sessionID uuid.UUID, who Person) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.activeLocked(sessionID)
	if err != nil {
		return err
	}
	c.people[who.ID] = who
	prev, _ := c.views.Get(s.ID, who.ID)
	c.views.Register(s.ID, who.ID, prev.MessageRef, prev.Page)
	metrics.ActiveViewers.Set(float64(c.views.Count(s.ID)))

	capacity, err := c.capacityLocked(ctx)
	if err != nil {
		return err
	}
	c.renderLocked(ctx, s, who.ID, capacity)
	return nil
}

// Handle dispatches one intent against the session.
func (c *Coordinator) Handle(ctx context.Context, sessionID uuid.UUID, who Person, intent Intent) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch in := intent.(type) {
	case AddClaim:
		_, err := c.updateMemberLocked(ctx, sessionID, func(g *GroupState) bool { return g.AddCoffee(MemberRef(in).resolve(g)) })
		return Outcome{}, err
	case RemoveClaim:
		_, err := c.updateMemberLocked(ctx, sessionID, func(g *GroupState) bool { return g.RemoveCoffee(MemberRef(in).resolve(g)) })
		return Outcome{}, err
	case ResetClaim:
		_, err := c.updateMemberLocked(ctx, sessionID, func(g *GroupState) bool { return g.ResetCoffee(MemberRef(in).resolve(g)) })
		return Outcome{}, err
	case ShowArchived:
		_, err := c.updateMemberLocked(ctx, sessionID, func(g *GroupState) bool { return g.RevealArchived() })
		return Outcome{}, err
	case Paginate:
		return Outcome{}, c.paginateLocked(ctx, sessionID, who.ID, in.Dir)
	case Submit:
		if _, err := c.completeLocked(ctx, sessionID, who); err != nil {
			return Outcome{}, err
		}
		return Outcome{Done: true}, nil
	case Cancel:
		if err := c.cancelLocked(ctx, sessionID, who.DisplayName); err != nil {
			return Outcome{}, err
		}
		return Outcome{Done: true}, nil
	case Leave:
		return Outcome{Done: true}, c.removeParticipantLocked(ctx, sessionID, who.ID)
	default:
		return Outcome{}, fmt.Errorf("%w: unknown intent %T", ErrInvalidArgument, intent)
	}
}

// UpdateMemberCoffee adjusts one member's claim and broadcasts only on change.
func (c *Coordinator) UpdateMemberCoffee(ctx context.Context, sessionID uuid.UUID, member string, add bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateMemberLocked(ctx, sessionID, func(g *GroupState) bool {
		if add {
			return g.AddCoffee(member)
		}
		return g.RemoveCoffee(member)
	})
}

// HandlePagination moves one viewer's page and re-renders only that viewer.
func (c *Coordinator) HandlePagination(ctx context.Context, sessionID, viewer uuid.UUID, dir PageDirection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paginateLocked(ctx, sessionID, viewer, dir)
}

// Complete submits the session: capacity is re-checked against the cards
// active right now, then claims are allocated and persisted atomically.
func (c *Coordinator) Complete(ctx context.Context, sessionID uuid.UUID, by Person) (*Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completeLocked(ctx, sessionID, by)
}

// Cancel discards all claims and ends the session.
func (c *Coordinator) Cancel(ctx context.Context, sessionID uuid.UUID, by Person) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelLocked(ctx, sessionID, by.DisplayName)
}

// RemoveParticipant drops who's participation and view. The session is
// cancelled once nobody participates and nobody is viewing.
func (c *Coordinator) RemoveParticipant(ctx context.Context, sessionID, who uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeParticipantLocked(ctx, sessionID, who)
}

// DetachView stops rendering to who without touching participation.
func (c *Coordinator) DetachView(sessionID, who uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.views.Unregister(sessionID, who) {
		metrics.ActiveViewers.Set(float64(c.views.Count(sessionID)))
	}
}

// SyncAll re-renders every registered viewer on their own page.
func (c *Coordinator) SyncAll(ctx context.Context, sessionID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.activeLocked(sessionID)
	if err != nil {
		return err
	}
	return c.broadcastLocked(ctx, s)
}

// CreateCard records a newly purchased card.
func (c *Coordinator) CreateCard(ctx context.Context, name string, units int, unitCost Cents, purchaser Person) (*Card, error) {
	if units <= 0 || unitCost <= 0 {
		return nil, fmt.Errorf("%w: card needs positive units and unit cost", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	card := &Card{
		ID:             uuid.New(),
		Name:           name,
		TotalUnits:     units,
		RemainingUnits: units,
		UnitCost:       unitCost,
		PurchaserID:    purchaser.ID,
		Active:         true,
		CreatedAt:      c.now(),
		ConsumerStats:  make(map[uuid.UUID]*ConsumerStats),
	}
	if err := c.store.CreateCard(ctx, card); err != nil {
		return nil, fmt.Errorf("create card: %w", err)
	}
	c.log.Info("card created",
		zap.Stringer("card", card.ID),
		zap.String("name", name),
		zap.Int("units", units),
		zap.Stringer("unit_cost", unitCost),
		zap.String("purchaser", purchaser.DisplayName))
	c.refreshActiveLocked(ctx, "card created")
	return card, nil
}

// OrderDirect attributes quantity units to consumer outside of any session.
func (c *Coordinator) OrderDirect(ctx context.Context, initiator, consumer Person, quantity int) (*ConsumptionOrder, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cards, err := c.store.ActiveCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active cards: %w", err)
	}
	pool := NewCardPool(cards, c.now)
	if !pool.CheckCapacity(quantity) {
		return nil, &InsufficientCapacityError{Requested: quantity, Available: pool.Available()}
	}
	allocs, err := pool.Allocate([]Request{{ConsumerID: consumer.ID, DisplayName: consumer.DisplayName, Quantity: quantity}})
	if err != nil {
		return nil, err
	}
	orders := Orders(allocs, initiator.ID, nil, c.now())
	if err := c.store.CommitAllocation(ctx, nil, pool.Touched(allocs), orders); err != nil {
		return nil, fmt.Errorf("commit order: %w", err)
	}
	metrics.CoffeesAllocated.WithLabelValues("direct").Add(float64(quantity))
	c.log.Info("direct order",
		zap.String("initiator", initiator.DisplayName),
		zap.String("consumer", consumer.DisplayName),
		zap.Int("quantity", quantity))
	c.refreshActiveLocked(ctx, "direct order")
	return &orders[0], nil
}

// CompleteCard closes a card on behalf of its purchaser and creates its debts.
func (c *Coordinator) CompleteCard(ctx context.Context, cardID uuid.UUID, by Person) ([]Debt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	card, err := c.store.CardByID(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("load card %s: %w", cardID, err)
	}
	if card.PurchaserID != by.ID {
		return nil, fmt.Errorf("%w: only the purchaser can complete card %q", ErrInvalidArgument, card.Name)
	}
	debts, err := c.ledger.SettleCard(ctx, card)
	if err != nil {
		return nil, err
	}
	c.refreshActiveLocked(ctx, "card completed")
	return debts, nil
}

func (c *Coordinator) setActiveLocked(s *Session) {
	c.active = s
	c.done = make(chan struct{})
}

func (c *Coordinator) clearActiveLocked() {
	if c.active == nil {
		return
	}
	c.views.Clear(c.active.ID)
	metrics.ActiveViewers.Set(0)
	close(c.done)
	c.active = nil
	c.done = nil
	c.people = make(map[uuid.UUID]Person)
}

func (c *Coordinator) activeLocked(sessionID uuid.UUID) (*Session, error) {
	if c.active == nil {
		return nil, ErrNoActiveSession
	}
	if c.active.ID != sessionID {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrAlreadyCompleted)
	}
	return c.active, nil
}

func (c *Coordinator) capacityLocked(ctx context.Context) (Capacity, error) {
	cards, err := c.store.ActiveCards(ctx)
	if err != nil {
		return Capacity{}, fmt.Errorf("load active cards: %w", err)
	}
	return CapacityOf(NewCardPool(cards, c.now)), nil
}

func (c *Coordinator) updateMemberLocked(ctx context.Context, sessionID uuid.UUID, apply func(*GroupState) bool) (bool, error) {
	s, err := c.activeLocked(sessionID)
	if err != nil {
		return false, err
	}
	prev := s.Group.Clone()
	if !apply(s.Group) {
		return false, nil
	}
	s.UpdatedAt = c.now()
	if err := c.store.SaveSession(ctx, s); err != nil {
		s.Group = prev
		return false, fmt.Errorf("save session: %w", err)
	}
	return true, c.broadcastLocked(ctx, s)
}

func (c *Coordinator) paginateLocked(ctx context.Context, sessionID, viewer uuid.UUID, dir PageDirection) error {
	s, err := c.activeLocked(sessionID)
	if err != nil {
		return err
	}
	totalPages := TotalPages(len(s.Group.Visible()), c.pageSize)
	if _, ok := c.views.Turn(s.ID, viewer, dir, totalPages); !ok {
		return nil
	}
	capacity, err := c.capacityLocked(ctx)
	if err != nil {
		return err
	}
	c.renderLocked(ctx, s, viewer, capacity)
	return nil
}

func (c *Coordinator) broadcastLocked(ctx context.Context, s *Session) error {
	capacity, err := c.capacityLocked(ctx)
	if err != nil {
		return err
	}
	viewers := c.views.Viewers(s.ID)
	for _, v := range viewers {
		c.renderLocked(ctx, s, v.PersonID, capacity)
	}
	c.log.Debug("synced views", zap.Stringer("session", s.ID), zap.Int("viewers", len(viewers)))
	return nil
}

// refreshActiveLocked re-renders the active session, if any, after the cards
// changed underneath it.
func (c *Coordinator) refreshActiveLocked(ctx context.Context, after string) {
	if c.active == nil {
		return
	}
	if err := c.broadcastLocked(ctx, c.active); err != nil {
		c.log.Warn("broadcast failed", zap.Stringer("session", c.active.ID), zap.String("after", after), zap.Error(err))
	}
}

// renderLocked draws one viewer's page. A failed render drops the viewer.
func (c *Coordinator) renderLocked(ctx context.Context, s *Session, viewer uuid.UUID, capacity Capacity) {
	vs, ok := c.views.Get(s.ID, viewer)
	if !ok {
		return
	}
	who := c.personLocked(viewer)
	view := BuildView(s.ID, s.Group, capacity, vs.Page, c.pageSize)
	ref, err := c.notifier.Render(ctx, who, vs.MessageRef, view)
	if err != nil {
		c.log.Warn("render failed, dropping viewer",
			zap.Stringer("session", s.ID),
			zap.String("viewer", who.DisplayName),
			zap.Error(err))
		c.views.Unregister(s.ID, viewer)
		metrics.NotifyFailures.Inc()
		metrics.ActiveViewers.Set(float64(c.views.Count(s.ID)))
		return
	}
	c.views.SetMessageRef(s.ID, viewer, ref)
}

func (c *Coordinator) personLocked(id uuid.UUID) Person {
	if p, ok := c.people[id]; ok {
		return p
	}
	if c.active != nil {
		for _, m := range c.active.Group.Members {
			if m.PersonID == id {
				return Person{ID: id, ExternalID: m.ExternalID, DisplayName: m.Name}
			}
		}
	}
	return Person{ID: id}
}

func (c *Coordinator) completeLocked(ctx context.Context, sessionID uuid.UUID, by Person) (*Completion, error) {
	s, err := c.activeLocked(sessionID)
	if err != nil {
		return nil, err
	}
	claims := s.Group.Claims()
	total := s.Group.Total()
	if total == 0 {
		return nil, fmt.Errorf("%w: no coffees claimed", ErrInvalidArgument)
	}

	cards, err := c.store.ActiveCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active cards: %w", err)
	}
	pool := NewCardPool(cards, c.now)
	if !pool.CheckCapacity(total) {
		capErr := &InsufficientCapacityError{Requested: total, Available: pool.Available()}
		c.log.Warn("submit rejected", zap.Stringer("session", s.ID), zap.Error(capErr))
		if err := c.broadcastLocked(ctx, s); err != nil {
			c.log.Warn("broadcast failed", zap.Stringer("session", s.ID), zap.String("after", "submit rejected"), zap.Error(err))
		}
		return nil, capErr
	}
	requests := make([]Request, 0, len(claims))
	for _, cl := range claims {
		requests = append(requests, Request{ConsumerID: cl.Member.PersonID, DisplayName: cl.Member.Name, Quantity: cl.Quantity})
	}
	allocs, err := pool.Allocate(requests)
	if err != nil {
		return nil, err
	}

	now := c.now()
	done := s.Clone()
	done.Status = SessionCompleted
	done.SubmittedBy = &by.ID
	done.CompletedAt = &now
	done.UpdatedAt = now
	orders := Orders(allocs, by.ID, &done.ID, now)
	if err := c.store.CommitAllocation(ctx, done, pool.Touched(allocs), orders); err != nil {
		return nil, fmt.Errorf("commit session %s: %w", s.ID, err)
	}

	summary := Summary(done, len(done.Participants))
	viewers := c.views.Viewers(s.ID)
	notified := make(map[uuid.UUID]bool, len(viewers))
	for _, v := range viewers {
		who := c.personLocked(v.PersonID)
		text := fmt.Sprintf("🔒 **Session completed by %s**\nTotal: %d coffees\n\n%s", by.DisplayName, total, summary)
		if v.PersonID == by.ID {
			text = fmt.Sprintf("✅ **Session completed!**\nYour order has been submitted.\nTotal: %d coffees\n\n%s", total, summary)
		}
		if err := c.notifier.Dismiss(ctx, who, v.MessageRef, text); err != nil {
			c.log.Warn("completion notice failed", zap.String("to", who.DisplayName), zap.Error(err))
		}
		notified[v.PersonID] = true
	}
	for _, id := range done.Participants {
		if notified[id] {
			continue
		}
		who := c.personLocked(id)
		text := fmt.Sprintf("✅ Coffee order submitted by %s.\n\n%s", by.DisplayName, summary)
		if err := c.notifier.Send(ctx, who, text); err != nil {
			c.log.Warn("participant notice failed", zap.String("to", who.DisplayName), zap.Error(err))
		}
		notified[id] = true
	}
	for _, cl := range claims {
		if notified[cl.Member.PersonID] || cl.Member.ExternalID == "" {
			continue
		}
		who := Person{ID: cl.Member.PersonID, ExternalID: cl.Member.ExternalID, DisplayName: cl.Member.Name}
		text := fmt.Sprintf("☕ %s has ordered %d coffees for you.", by.DisplayName, cl.Quantity)
		if err := c.notifier.Send(ctx, who, text); err != nil {
			c.log.Warn("claimant notice failed", zap.String("to", who.DisplayName), zap.Error(err))
		}
	}

	c.clearActiveLocked()
	metrics.SessionsFinished.WithLabelValues(string(SessionCompleted)).Inc()
	metrics.CoffeesAllocated.WithLabelValues("session").Add(float64(total))
	c.log.Info("session completed",
		zap.Stringer("session", done.ID),
		zap.String("submitted_by", by.DisplayName),
		zap.Int("total", total),
		zap.Int("orders", len(orders)))
	return &Completion{Session: done, Orders: orders, Total: total}, nil
}

func (c *Coordinator) cancelLocked(ctx context.Context, sessionID uuid.UUID, by string) error {
	s, err := c.activeLocked(sessionID)
	if err != nil {
		return err
	}
	cancelled := s.Clone()
	cancelled.Status = SessionCancelled
	cancelled.UpdatedAt = c.now()
	if err := c.store.SaveSession(ctx, cancelled); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	for _, v := range c.views.Viewers(s.ID) {
		who := c.personLocked(v.PersonID)
		text := fmt.Sprintf("❌ **Session cancelled** by %s.\nNo coffees were ordered.", by)
		if err := c.notifier.Dismiss(ctx, who, v.MessageRef, text); err != nil {
			c.log.Warn("cancel notice failed", zap.String("to", who.DisplayName), zap.Error(err))
		}
	}
	c.clearActiveLocked()
	metrics.SessionsFinished.WithLabelValues(string(SessionCancelled)).Inc()
	c.log.Info("session cancelled", zap.Stringer("session", s.ID), zap.String("by", by))
	return nil
}

func (c *Coordinator) removeParticipantLocked(ctx context.Context, sessionID, who uuid.UUID) error {
	s, err := c.activeLocked(sessionID)
	if err != nil {
		// The session already ended; nothing to leave.
		return nil
	}
	c.views.Unregister(s.ID, who)
	metrics.ActiveViewers.Set(float64(c.views.Count(s.ID)))
	if s.RemoveParticipant(who) {
		if err := c.store.SaveSession(ctx, s); err != nil {
			c.log.Warn("save after leave failed", zap.Stringer("session", s.ID), zap.Error(err))
		}
	}
	if len(s.Participants) == 0 && c.views.Count(s.ID) == 0 {
		return c.cancelLocked(ctx, s.ID, "the last participant leaving")
	}
	return nil
}
