package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/susu3304/coffeebot/internal/coffee"
	"go.uber.org/zap"
)

const (
	defaultPaymentsLimit = 20
	maxPaymentsLimit     = 100
)

type cardJSON struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	TotalUnits     int       `json:"total_units"`
	RemainingUnits int       `json:"remaining_units"`
	UnitCostCents  int64     `json:"unit_cost_cents"`
	PurchaserID    uuid.UUID `json:"purchaser_id"`
	Purchaser      string    `json:"purchaser"`
	CreatedAt      time.Time `json:"created_at"`
}

type debtJSON struct {
	ID               uuid.UUID  `json:"id"`
	CardID           uuid.UUID  `json:"card_id"`
	DebtorID         uuid.UUID  `json:"debtor_id"`
	Debtor           string     `json:"debtor"`
	CreditorID       uuid.UUID  `json:"creditor_id"`
	Creditor         string     `json:"creditor"`
	Units            int        `json:"units"`
	UnitCostCents    int64      `json:"unit_cost_cents"`
	TotalCents       int64      `json:"total_cents"`
	PaidCents        int64      `json:"paid_cents"`
	OutstandingCents int64      `json:"outstanding_cents"`
	Settled          bool       `json:"settled"`
	CreatedAt        time.Time  `json:"created_at"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
}

type estimateJSON struct {
	CardID      uuid.UUID `json:"card_id"`
	CardName    string    `json:"card_name"`
	Units       int       `json:"units"`
	AmountCents int64     `json:"amount_cents"`
}

type paymentJSON struct {
	ID          uuid.UUID   `json:"id"`
	PayerID     uuid.UUID   `json:"payer_id"`
	RecipientID uuid.UUID   `json:"recipient_id"`
	AmountCents int64       `json:"amount_cents"`
	Method      string      `json:"method"`
	DebtIDs     []uuid.UUID `json:"debt_ids"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// nameCache memoizes display names for one response.
type nameCache struct {
	store coffee.PeopleStore
	ctx   context.Context
	seen  map[uuid.UUID]string
}

func (a *API) names(ctx context.Context) *nameCache {
	return &nameCache{store: a.store, ctx: ctx, seen: make(map[uuid.UUID]string)}
}

func (n *nameCache) of(id uuid.UUID) string {
	if name, ok := n.seen[id]; ok {
		return name
	}
	name := ""
	if p, err := n.store.PersonByID(n.ctx, id); err == nil {
		name = p.DisplayName
	}
	n.seen[id] = name
	return name
}

func (n *nameCache) debt(d coffee.Debt) debtJSON {
	return debtJSON{
		ID:               d.ID,
		CardID:           d.CardID,
		DebtorID:         d.DebtorID,
		Debtor:           n.of(d.DebtorID),
		CreditorID:       d.CreditorID,
		Creditor:         n.of(d.CreditorID),
		Units:            d.TotalUnits,
		UnitCostCents:    int64(d.UnitCost),
		TotalCents:       int64(d.TotalAmount),
		PaidCents:        int64(d.PaidAmount),
		OutstandingCents: int64(d.Outstanding()),
		Settled:          d.Settled,
		CreatedAt:        d.CreatedAt,
		SettledAt:        d.SettledAt,
	}
}

// me resolves the caller's roster entry from their token.
func (a *API) me(w http.ResponseWriter, r *http.Request) (*coffee.Person, bool) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing claims")
		return nil, false
	}
	p, err := a.store.PersonByExternalID(r.Context(), claims.UserID)
	if errors.Is(err, coffee.ErrNotFound) {
		writeError(w, http.StatusNotFound, "you are not a member of the coffee group yet")
		return nil, false
	}
	if err != nil {
		a.internalError(w, "failed to load person", err)
		return nil, false
	}
	return p, true
}

func (a *API) internalError(w http.ResponseWriter, msg string, err error) {
	a.log.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleMyDebts(w http.ResponseWriter, r *http.Request) {
	p, ok := a.me(w, r)
	if !ok {
		return
	}
	summary, err := a.coord.Ledger().Summary(r.Context(), p.ID)
	if err != nil {
		a.internalError(w, "failed to load debts", err)
		return
	}

	n := a.names(r.Context())
	debts := make([]debtJSON, 0, len(summary.Owes))
	for _, d := range summary.Owes {
		debts = append(debts, n.debt(d))
	}
	estimates := make([]estimateJSON, 0, len(summary.Estimates))
	for _, e := range summary.Estimates {
		estimates = append(estimates, estimateJSON{CardID: e.CardID, CardName: e.CardName, Units: e.Units, AmountCents: int64(e.Amount)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"debts":                 debts,
		"total_owed_cents":      int64(summary.TotalOwes),
		"estimates":             estimates,
		"total_estimated_cents": int64(summary.TotalEstimated),
	})
}

func (a *API) handleMyCredits(w http.ResponseWriter, r *http.Request) {
	p, ok := a.me(w, r)
	if !ok {
		return
	}
	includeSettled, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	credits, err := a.store.DebtsByCreditor(r.Context(), p.ID, includeSettled)
	if err != nil {
		a.internalError(w, "failed to load credits", err)
		return
	}

	n := a.names(r.Context())
	out := make([]debtJSON, 0, len(credits))
	var outstanding coffee.Cents
	for _, d := range credits {
		out = append(out, n.debt(d))
		outstanding += d.Outstanding()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"credits":                 out,
		"total_outstanding_cents": int64(outstanding),
	})
}

func (a *API) handleMyPayments(w http.ResponseWriter, r *http.Request) {
	p, ok := a.me(w, r)
	if !ok {
		return
	}
	limit := defaultPaymentsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxPaymentsLimit)
	}

	payments, err := a.coord.Ledger().Payments(r.Context(), p.ID, limit)
	if err != nil {
		a.internalError(w, "failed to load payments", err)
		return
	}
	out := make([]paymentJSON, 0, len(payments))
	for _, pm := range payments {
		out = append(out, paymentJSON{
			ID:          pm.ID,
			PayerID:     pm.PayerID,
			RecipientID: pm.RecipientID,
			AmountCents: int64(pm.Amount),
			Method:      string(pm.Method),
			DebtIDs:     pm.DebtIDs,
			Description: pm.Description,
			CreatedAt:   pm.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleCards(w http.ResponseWriter, r *http.Request) {
	cards, err := a.store.ActiveCards(r.Context())
	if err != nil {
		a.internalError(w, "failed to load cards", err)
		return
	}
	n := a.names(r.Context())
	out := make([]cardJSON, 0, len(cards))
	for _, c := range cards {
		out = append(out, cardJSON{
			ID:             c.ID,
			Name:           c.Name,
			TotalUnits:     c.TotalUnits,
			RemainingUnits: c.RemainingUnits,
			UnitCostCents:  int64(c.UnitCost),
			PurchaserID:    c.PurchaserID,
			Purchaser:      n.of(c.PurchaserID),
			CreatedAt:      c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.coord.Active()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	type claimJSON struct {
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
	}
	claims := make([]claimJSON, 0)
	for _, c := range s.Group.Claims() {
		claims = append(claims, claimJSON{Name: c.Member.Name, Quantity: c.Quantity})
	}
	n := a.names(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"active":       true,
		"id":           s.ID,
		"initiator":    n.of(s.InitiatorID),
		"participants": len(s.Participants),
		"total":        s.Group.Total(),
		"claims":       claims,
		"created_at":   s.CreatedAt,
	})
}
