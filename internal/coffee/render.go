package coffee

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MemberRow is one line of the claim listing.
type MemberRow struct {
	Name     string
	PersonID uuid.UUID
	Count    int
	Archived bool
}

// View is the transport-neutral rendering of a session for one viewer.
type View struct {
	SessionID    uuid.UUID
	Rows         []MemberRow
	Page         int
	TotalPages   int
	Total        int
	Available    int
	Insufficient bool
	MultiCard    bool
	ShowMore     bool
}

// Capacity is what the active cards could serve when a view was rendered.
type Capacity struct {
	Available      int
	Cards          int
	FirstRemaining int
}

// CapacityOf summarizes a pool for rendering.
func CapacityOf(pool *CardPool) Capacity {
	c := Capacity{Available: pool.Available(), Cards: pool.Len()}
	if pool.Len() > 0 {
		c.FirstRemaining = pool.Cards()[0].RemainingUnits
	}
	return c
}

// BuildView renders one page of a group state.
func BuildView(sessionID uuid.UUID, gs *GroupState, capacity Capacity, page, pageSize int) View {
	visible := gs.Visible()
	totalPages := TotalPages(len(visible), pageSize)
	page = clampPage(page, totalPages)

	v := View{
		SessionID:  sessionID,
		Page:       page,
		TotalPages: totalPages,
		Total:      gs.Total(),
		Available:  capacity.Available,
		ShowMore:   gs.HasArchived() && !gs.ShowArchived,
	}
	if v.Total > 0 {
		switch {
		case v.Total > capacity.Available:
			v.Insufficient = true
		case capacity.Cards > 1 && v.Total > capacity.FirstRemaining:
			v.MultiCard = true
		}
	}

	start := page * pageSize
	end := start + pageSize
	if pageSize <= 0 {
		start, end = 0, len(visible)
	}
	if end > len(visible) {
		end = len(visible)
	}
	for _, m := range visible[start:end] {
		v.Rows = append(v.Rows, MemberRow{Name: m.Name, PersonID: m.PersonID, Count: m.Count, Archived: m.Archived})
	}
	return v
}

// Text is the message body shown above the controls.
func (v View) Text() string {
	var b strings.Builder
	b.WriteString("☕ **Group Coffee Order**\n")
	fmt.Fprintf(&b, "Total: %d coffees (%d available)\n", v.Total, v.Available)
	switch {
	case v.Insufficient:
		b.WriteString("⚠️ Not enough coffees remaining on the cards!\n")
	case v.MultiCard:
		b.WriteString("🔄 Orders will be split between multiple cards\n")
	}
	b.WriteString("\nSelect coffee quantities for each person:")
	return b.String()
}

// CanSubmit reports whether the submit control should be offered.
func (v View) CanSubmit() bool {
	return v.Total > 0
}

func (v View) SubmitLabel() string {
	switch {
	case v.Insufficient:
		return fmt.Sprintf("⚠️ Submit (%d)", v.Total)
	case v.MultiCard:
		return fmt.Sprintf("🔄 Submit (%d)", v.Total)
	default:
		return fmt.Sprintf("Submit (%d)", v.Total)
	}
}

// Summary lists every nonzero claim of a finished session.
func Summary(s *Session, participants int) string {
	var b strings.Builder
	b.WriteString("📊 **Session Summary:**\n")
	fmt.Fprintf(&b, "• Participants: %d\n", participants)
	fmt.Fprintf(&b, "• Total Coffees: %d\n", s.Group.Total())
	claims := s.Group.Claims()
	if len(claims) > 0 {
		b.WriteString("\n**Individual Orders:**\n")
		for _, c := range claims {
			fmt.Fprintf(&b, "• %s: %d\n", c.Member.Name, c.Quantity)
		}
	}
	return b.String()
}
