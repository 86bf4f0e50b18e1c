package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/susu3304/coffeebot/internal/coffee"
)

const debtColumns = `id, debtor_id, creditor_id, card_id, total_units, unit_cost, total_amount, paid_amount, settled, created_at, updated_at, settled_at`

func scanDebt(row pgx.Row) (*coffee.Debt, error) {
	var d coffee.Debt
	if err := row.Scan(&d.ID, &d.DebtorID, &d.CreditorID, &d.CardID, &d.TotalUnits, &d.UnitCost,
		&d.TotalAmount, &d.PaidAmount, &d.Settled, &d.CreatedAt, &d.UpdatedAt, &d.SettledAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (db *DB) queryDebts(ctx context.Context, where string, args ...any) ([]coffee.Debt, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+debtColumns+` FROM debts WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []coffee.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// CompleteCard closes the card and inserts its debts. The card row is locked
// and must still be active, so two completions can never both create debts.
func (db *DB) CompleteCard(ctx context.Context, c *coffee.Card, debts []coffee.Debt) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`UPDATE cards SET active = FALSE, completed_at = $2 WHERE id = $1 AND active`,
		c.ID, c.CompletedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return coffee.ErrAlreadyCompleted
	}

	for _, d := range debts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO debts (id, debtor_id, creditor_id, card_id, total_units, unit_cost, total_amount, paid_amount, settled, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			d.ID, d.DebtorID, d.CreditorID, d.CardID, d.TotalUnits, d.UnitCost, d.TotalAmount, d.PaidAmount, d.Settled, d.CreatedAt, d.UpdatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (db *DB) DebtByID(ctx context.Context, id uuid.UUID) (*coffee.Debt, error) {
	d, err := scanDebt(db.pool.QueryRow(ctx, `SELECT `+debtColumns+` FROM debts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("debt %s", id))
	}
	return d, nil
}

func (db *DB) UnsettledDebts(ctx context.Context, debtorID, creditorID uuid.UUID) ([]coffee.Debt, error) {
	return db.queryDebts(ctx, `NOT settled AND debtor_id = $1 AND creditor_id = $2`, debtorID, creditorID)
}

func (db *DB) DebtsByDebtor(ctx context.Context, debtorID uuid.UUID, includeSettled bool) ([]coffee.Debt, error) {
	return db.queryDebts(ctx, `debtor_id = $1 AND ($2 OR NOT settled)`, debtorID, includeSettled)
}

func (db *DB) DebtsByCreditor(ctx context.Context, creditorID uuid.UUID, includeSettled bool) ([]coffee.Debt, error) {
	return db.queryDebts(ctx, `creditor_id = $1 AND ($2 OR NOT settled)`, creditorID, includeSettled)
}

func (db *DB) DebtsByCard(ctx context.Context, cardID uuid.UUID) ([]coffee.Debt, error) {
	return db.queryDebts(ctx, `card_id = $1`, cardID)
}

// RecordPayment inserts the payment and applies each debt update with a
// compare-and-set on paid_amount.
func (db *DB) RecordPayment(ctx context.Context, p *coffee.Payment, updates []coffee.DebtUpdate) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, u := range updates {
		d := u.Debt
		ct, err := tx.Exec(ctx,
			`UPDATE debts
			 SET paid_amount = $2, settled = $3, updated_at = $4, settled_at = $5
			 WHERE id = $1 AND paid_amount = $6`,
			d.ID, d.PaidAmount, d.Settled, d.UpdatedAt, d.SettledAt, u.PrevPaid,
		)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("debt %s: %w", d.ID, coffee.ErrConcurrentUpdate)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO payments (id, payer_id, recipient_id, amount, method, debt_ids, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::uuid[], $7, $8)`,
		p.ID, p.PayerID, p.RecipientID, p.Amount, string(p.Method), uuidStrings(p.DebtIDs), p.Description, p.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (db *DB) OutstandingDebtors(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx, `SELECT DISTINCT debtor_id FROM debts WHERE NOT settled ORDER BY debtor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PaymentsByPerson lists payments made or received by id, newest first.
func (db *DB) PaymentsByPerson(ctx context.Context, id uuid.UUID, limit int) ([]coffee.Payment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, payer_id, recipient_id, amount, method, debt_ids::text[], description, created_at
		 FROM payments WHERE payer_id = $1 OR recipient_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		id, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []coffee.Payment
	for rows.Next() {
		var p coffee.Payment
		var method string
		var debtIDs []string
		if err := rows.Scan(&p.ID, &p.PayerID, &p.RecipientID, &p.Amount, &method, &debtIDs, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Method = coffee.PaymentMethod(method)
		if p.DebtIDs, err = parseUUIDs(debtIDs); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
