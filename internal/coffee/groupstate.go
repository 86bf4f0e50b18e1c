package coffee

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Member is one person's claim inside a session.
type Member struct {
	Name       string    `json:"name"`
	PersonID   uuid.UUID `json:"person_id"`
	ExternalID string    `json:"external_id,omitempty"`
	Count      int       `json:"coffee_count"`
	Archived   bool      `json:"archived"`
}

// Claim is a requested quantity for one member, in allocation order.
type Claim struct {
	Member   Member
	Quantity int
}

// GroupState is the claim ledger of an in-flight session.
type GroupState struct {
	Members      map[string]*Member `json:"members"`
	ShowArchived bool               `json:"show_archived"`
}

func NewGroupState() *GroupState {
	return &GroupState{Members: make(map[string]*Member)}
}

// GroupStateFromRoster builds a zero-claim state from every enabled person.
func GroupStateFromRoster(people []Person) *GroupState {
	gs := NewGroupState()
	for _, p := range people {
		if p.Disabled || p.DisplayName == "" {
			continue
		}
		gs.Members[p.DisplayName] = &Member{
			Name:       p.DisplayName,
			PersonID:   p.ID,
			ExternalID: p.ExternalID,
			Archived:   p.Archived,
		}
	}
	return gs
}

// NameOf finds the member backed by a person.
func (g *GroupState) NameOf(personID uuid.UUID) (string, bool) {
	if personID == uuid.Nil {
		return "", false
	}
	for name, m := range g.Members {
		if m.PersonID == personID {
			return name, true
		}
	}
	return "", false
}

// AddCoffee increments a member's claim. It reports whether state changed.
func (g *GroupState) AddCoffee(name string) bool {
	m, ok := g.Members[name]
	if !ok {
		return false
	}
	m.Count++
	return true
}

// RemoveCoffee decrements a member's claim, flooring at zero.
func (g *GroupState) RemoveCoffee(name string) bool {
	m, ok := g.Members[name]
	if !ok || m.Count == 0 {
		return false
	}
	m.Count--
	return true
}

// ResetCoffee sets a member's claim back to zero.
func (g *GroupState) ResetCoffee(name string) bool {
	m, ok := g.Members[name]
	if !ok || m.Count == 0 {
		return false
	}
	m.Count = 0
	return true
}

// RevealArchived makes archived members visible. It reports whether state changed.
func (g *GroupState) RevealArchived() bool {
	if g.ShowArchived {
		return false
	}
	g.ShowArchived = true
	return true
}

// Total sums the claims of visible members.
func (g *GroupState) Total() int {
	total := 0
	for _, m := range g.Members {
		if m.Archived && !g.ShowArchived {
			continue
		}
		total += m.Count
	}
	return total
}

// HasArchived reports whether any member is archived.
func (g *GroupState) HasArchived() bool {
	for _, m := range g.Members {
		if m.Archived {
			return true
		}
	}
	return false
}

// Visible returns the listed members: active ones first, then archived ones when
// shown, each group sorted case-insensitively by name.
func (g *GroupState) Visible() []Member {
	var active, archived []Member
	for _, m := range g.Members {
		if m.Archived {
			if g.ShowArchived {
				archived = append(archived, *m)
			}
			continue
		}
		active = append(active, *m)
	}
	byName := func(ms []Member) {
		sort.Slice(ms, func(i, j int) bool {
			return strings.ToLower(ms[i].Name) < strings.ToLower(ms[j].Name)
		})
	}
	byName(active)
	byName(archived)
	return append(active, archived...)
}

// Claims returns every visible member with a nonzero claim, in display order.
func (g *GroupState) Claims() []Claim {
	var out []Claim
	for _, m := range g.Visible() {
		if m.Count > 0 {
			out = append(out, Claim{Member: m, Quantity: m.Count})
		}
	}
	return out
}

// Clone returns a deep copy.
func (g *GroupState) Clone() *GroupState {
	out := &GroupState{Members: make(map[string]*Member, len(g.Members)), ShowArchived: g.ShowArchived}
	for k, m := range g.Members {
		cp := *m
		out.Members[k] = &cp
	}
	return out
}

// Export serializes the state as JSON.
func (g *GroupState) Export() ([]byte, error) {
	return json.Marshal(g)
}

// ImportGroupState parses a state produced by Export.
func ImportGroupState(data []byte) (*GroupState, error) {
	gs := NewGroupState()
	if err := json.Unmarshal(data, gs); err != nil {
		return nil, err
	}
	if gs.Members == nil {
		gs.Members = make(map[string]*Member)
	}
	return gs, nil
}
