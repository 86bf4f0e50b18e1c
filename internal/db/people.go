package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/susu3304/coffeebot/internal/coffee"
)

const personColumns = `id, COALESCE(external_id, ''), display_name, disabled, archived, created_at`

func scanPerson(row pgx.Row) (*coffee.Person, error) {
	var p coffee.Person
	if err := row.Scan(&p.ID, &p.ExternalID, &p.DisplayName, &p.Disabled, &p.Archived, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPeople returns the whole roster ordered by name.
func (db *DB) ListPeople(ctx context.Context) ([]coffee.Person, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+personColumns+` FROM people ORDER BY lower(display_name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []coffee.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (db *DB) PersonByID(ctx context.Context, id uuid.UUID) (*coffee.Person, error) {
	p, err := scanPerson(db.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM people WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("person %s", id))
	}
	return p, nil
}

func (db *DB) PersonByExternalID(ctx context.Context, externalID string) (*coffee.Person, error) {
	p, err := scanPerson(db.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM people WHERE external_id = $1`, externalID))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("person with external id %q", externalID))
	}
	return p, nil
}

func (db *DB) PersonByName(ctx context.Context, displayName string) (*coffee.Person, error) {
	p, err := scanPerson(db.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM people WHERE lower(display_name) = lower($1)`, displayName))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("person %q", displayName))
	}
	return p, nil
}

// UpsertPerson inserts p or updates the row with the same id. A zero id is
// replaced with a fresh one.
func (db *DB) UpsertPerson(ctx context.Context, p *coffee.Person) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return db.pool.QueryRow(ctx,
		`INSERT INTO people (id, external_id, display_name, disabled, archived)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET external_id = EXCLUDED.external_id,
			 display_name = EXCLUDED.display_name,
			 disabled = EXCLUDED.disabled,
			 archived = EXCLUDED.archived
		 RETURNING created_at`,
		p.ID, p.ExternalID, p.DisplayName, p.Disabled, p.Archived,
	).Scan(&p.CreatedAt)
}
