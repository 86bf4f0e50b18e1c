package coffee

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ViewState is one participant's live rendering of a session.
type ViewState struct {
	PersonID   uuid.UUID
	MessageRef string
	Page       int
	UpdatedAt  time.Time
}

// ViewRegistry tracks per-participant pagination and the last rendered message.
type ViewRegistry struct {
	mu    sync.RWMutex
	views map[uuid.UUID]map[uuid.UUID]*ViewState
}

func NewViewRegistry() *ViewRegistry {
	return &ViewRegistry{views: make(map[uuid.UUID]map[uuid.UUID]*ViewState)}
}

func (r *ViewRegistry) Register(sessionID, personID uuid.UUID, ref string, page int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPerson, ok := r.views[sessionID]
	if !ok {
		byPerson = make(map[uuid.UUID]*ViewState)
		r.views[sessionID] = byPerson
	}
	byPerson[personID] = &ViewState{PersonID: personID, MessageRef: ref, Page: page, UpdatedAt: time.Now()}
}

// Unregister reports whether a view was removed.
func (r *ViewRegistry) Unregister(sessionID, personID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPerson, ok := r.views[sessionID]
	if !ok {
		return false
	}
	if _, ok := byPerson[personID]; !ok {
		return false
	}
	delete(byPerson, personID)
	if len(byPerson) == 0 {
		delete(r.views, sessionID)
	}
	return true
}

func (r *ViewRegistry) Get(sessionID, personID uuid.UUID) (ViewState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[sessionID][personID]
	if !ok {
		return ViewState{}, false
	}
	return *v, true
}

// SetMessageRef records the message a view was last rendered into.
func (r *ViewRegistry) SetMessageRef(sessionID, personID uuid.UUID, ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.views[sessionID][personID]; ok {
		v.MessageRef = ref
		v.UpdatedAt = time.Now()
	}
}

// Turn moves one viewer's page by dir, clamped to [0, totalPages-1].
func (r *ViewRegistry) Turn(sessionID, personID uuid.UUID, dir PageDirection, totalPages int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[sessionID][personID]
	if !ok {
		return 0, false
	}
	v.Page = clampPage(v.Page+int(dir), totalPages)
	return v.Page, true
}

// Viewers returns a snapshot of a session's views.
func (r *ViewRegistry) Viewers(sessionID uuid.UUID) []ViewState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ViewState, 0, len(r.views[sessionID]))
	for _, v := range r.views[sessionID] {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out
}

func (r *ViewRegistry) Count(sessionID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views[sessionID])
}

// Clear drops every view of a session and returns how many there were.
func (r *ViewRegistry) Clear(sessionID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.views[sessionID])
	delete(r.views, sessionID)
	return n
}

func clampPage(page, totalPages int) int {
	if page > totalPages-1 {
		page = totalPages - 1
	}
	if page < 0 {
		page = 0
	}
	return page
}

// TotalPages is ceil(visible/pageSize), at least one.
func TotalPages(visible, pageSize int) int {
	if pageSize <= 0 || visible <= 0 {
		return 1
	}
	return (visible + pageSize - 1) / pageSize
}
