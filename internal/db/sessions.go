package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/susu3304/coffeebot/internal/coffee"
)

const sessionColumns = `id, initiator_id, participants::text[], card_snapshot::text[], group_state, status, submitted_by, created_at, updated_at, completed_at`

func scanSession(row pgx.Row) (*coffee.Session, error) {
	var (
		s            coffee.Session
		participants []string
		snapshot     []string
		group        []byte
		status       string
	)
	if err := row.Scan(&s.ID, &s.InitiatorID, &participants, &snapshot, &group, &status,
		&s.SubmittedBy, &s.CreatedAt, &s.UpdatedAt, &s.CompletedAt); err != nil {
		return nil, err
	}
	s.Status = coffee.SessionStatus(status)
	var err error
	if s.Participants, err = parseUUIDs(participants); err != nil {
		return nil, fmt.Errorf("session %s participants: %w", s.ID, err)
	}
	if s.CardSnapshot, err = parseUUIDs(snapshot); err != nil {
		return nil, fmt.Errorf("session %s card snapshot: %w", s.ID, err)
	}
	if s.Group, err = coffee.ImportGroupState(group); err != nil {
		return nil, fmt.Errorf("session %s group state: %w", s.ID, err)
	}
	return &s, nil
}

// ActiveSession returns the single active session or ErrNotFound.
func (db *DB) ActiveSession(ctx context.Context) (*coffee.Session, error) {
	s, err := scanSession(db.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = 'active' LIMIT 1`))
	if err != nil {
		return nil, notFound(err, "active session")
	}
	return s, nil
}

func (db *DB) CreateSession(ctx context.Context, s *coffee.Session) error {
	group, err := s.Group.Export()
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO sessions (id, initiator_id, participants, card_snapshot, group_state, status, created_at, updated_at)
		 VALUES ($1, $2, $3::uuid[], $4::uuid[], $5, $6, $7, $8)`,
		s.ID, s.InitiatorID, uuidStrings(s.Participants), uuidStrings(s.CardSnapshot), group, string(s.Status), s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (db *DB) SaveSession(ctx context.Context, s *coffee.Session) error {
	return saveSession(ctx, db.pool, s)
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func saveSession(ctx context.Context, q execer, s *coffee.Session) error {
	group, err := s.Group.Export()
	if err != nil {
		return err
	}
	ct, err := q.Exec(ctx,
		`UPDATE sessions
		 SET participants = $2::uuid[], group_state = $3, status = $4, submitted_by = $5, updated_at = $6, completed_at = $7
		 WHERE id = $1`,
		s.ID, uuidStrings(s.Participants), group, string(s.Status), s.SubmittedBy, s.UpdatedAt, s.CompletedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", s.ID, coffee.ErrNotFound)
	}
	return nil
}

// CommitAllocation stores a finished allocation in one transaction.
func (db *DB) CommitAllocation(ctx context.Context, s *coffee.Session, cards []*coffee.Card, orders []coffee.ConsumptionOrder) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range cards {
		if err := updateCardUsage(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, o := range orders {
		used, err := json.Marshal(o.CardsUsed)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO orders (id, consumer_id, initiator_id, session_id, cards_used, quantity, from_session, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.ID, o.ConsumerID, o.InitiatorID, o.SessionID, used, o.Quantity, o.FromSession, o.CreatedAt,
		); err != nil {
			return err
		}
	}
	if s != nil {
		if err := saveSession(ctx, tx, s); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (db *DB) OrdersByConsumer(ctx context.Context, consumerID uuid.UUID) ([]coffee.ConsumptionOrder, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, consumer_id, initiator_id, session_id, cards_used, quantity, from_session, created_at
		 FROM orders WHERE consumer_id = $1 ORDER BY created_at`,
		consumerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []coffee.ConsumptionOrder
	for rows.Next() {
		var o coffee.ConsumptionOrder
		var used []byte
		if err := rows.Scan(&o.ID, &o.ConsumerID, &o.InitiatorID, &o.SessionID, &used, &o.Quantity, &o.FromSession, &o.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(used, &o.CardsUsed); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", o.ID, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
