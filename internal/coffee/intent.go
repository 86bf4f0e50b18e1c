package coffee

import "github.com/google/uuid"

// Intent is a participant action produced by the transport layer.
type Intent interface {
	isIntent()
}

type PageDirection int

const (
	PagePrev PageDirection = -1
	PageNext PageDirection = 1
)

// MemberRef names a claim target. MemberID wins over Member when set.
type MemberRef struct {
	Member   string
	MemberID uuid.UUID
}

type (
	AddClaim     MemberRef
	RemoveClaim  MemberRef
	ResetClaim   MemberRef
	ShowArchived struct{}
	Paginate     struct{ Dir PageDirection }
	Submit       struct{}
	Cancel       struct{}
	Leave        struct{}
)

func (AddClaim) isIntent()     {}
func (RemoveClaim) isIntent()  {}
func (ResetClaim) isIntent()   {}
func (ShowArchived) isIntent() {}
func (Paginate) isIntent()     {}
func (Submit) isIntent()       {}
func (Cancel) isIntent()       {}
func (Leave) isIntent()        {}

func (r MemberRef) resolve(g *GroupState) string {
	if r.MemberID == uuid.Nil {
		return r.Member
	}
	name, _ := g.NameOf(r.MemberID)
	return name
}
