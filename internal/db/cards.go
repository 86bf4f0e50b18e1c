package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/susu3304/coffeebot/internal/coffee"
)

const cardColumns = `id, name, total_units, remaining_units, unit_cost, purchaser_id, active, consumer_stats, created_at, completed_at`

func scanCard(row pgx.Row) (*coffee.Card, error) {
	var c coffee.Card
	var stats []byte
	if err := row.Scan(&c.ID, &c.Name, &c.TotalUnits, &c.RemainingUnits, &c.UnitCost, &c.PurchaserID,
		&c.Active, &stats, &c.CreatedAt, &c.CompletedAt); err != nil {
		return nil, err
	}
	c.ConsumerStats = make(map[uuid.UUID]*coffee.ConsumerStats)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &c.ConsumerStats); err != nil {
			return nil, fmt.Errorf("decode consumer stats of card %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func queryCards(ctx context.Context, q querier, sql string, args ...any) ([]*coffee.Card, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*coffee.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActiveCards returns every active card, oldest first.
func (db *DB) ActiveCards(ctx context.Context) ([]*coffee.Card, error) {
	return queryCards(ctx, db.pool, `SELECT `+cardColumns+` FROM cards WHERE active ORDER BY created_at, id`)
}

func (db *DB) CardByID(ctx context.Context, id uuid.UUID) (*coffee.Card, error) {
	c, err := scanCard(db.pool.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("card %s", id))
	}
	return c, nil
}

func (db *DB) CreateCard(ctx context.Context, c *coffee.Card) error {
	stats, err := json.Marshal(c.ConsumerStats)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO cards (id, name, total_units, remaining_units, unit_cost, purchaser_id, active, consumer_stats, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Name, c.TotalUnits, c.RemainingUnits, c.UnitCost, c.PurchaserID, c.Active, stats, c.CreatedAt,
	)
	return err
}

// updateCardUsage writes an allocation's effect on one card. Only active cards
// are touched; a card closed in the meantime fails the whole transaction.
func updateCardUsage(ctx context.Context, tx pgx.Tx, c *coffee.Card) error {
	stats, err := json.Marshal(c.ConsumerStats)
	if err != nil {
		return err
	}
	ct, err := tx.Exec(ctx,
		`UPDATE cards SET remaining_units = $2, consumer_stats = $3 WHERE id = $1 AND active`,
		c.ID, c.RemainingUnits, stats,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("card %q: %w", c.Name, coffee.ErrAlreadyCompleted)
	}
	return nil
}
