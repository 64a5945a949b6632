package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"sentinelmesh/internal/storage"
)

// ErrNotFound is returned by BoundsInWindow when no event matches.
var ErrNotFound = errors.New("events: no matching events")

// Store is the append-only event log. Window queries are inclusive on both bounds.
type Store interface {
	Append(ctx context.Context, e *Event) (int64, error)
	CountInWindow(ctx context.Context, types []Type, ip string, start, end time.Time) (int, error)
	BoundsInWindow(ctx context.Context, types []Type, ip string, start, end time.Time) (first, last time.Time, err error)
	List(ctx context.Context, f Filter) ([]Event, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e *Event) (int64, error) {
	if err := Normalize(e); err != nil {
		return 0, err
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return 0, &ValidationError{Fields: []string{"meta: not serializable"}, Err: err}
	}
	const q = `
		INSERT INTO events (v, ts, service, event, ip, path, user_id, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	row := s.db.QueryRowContext(ctx, q,
		e.Version,
		e.OccurredAt,
		e.Service,
		string(e.Type),
		e.SourceIP,
		e.Path,
		e.UserID,
		string(metaJSON),
		time.Now().UTC(),
	)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return 0, storage.Wrap("append", "events", err)
	}
	return e.ID, nil
}

func (s *PostgresStore) CountInWindow(ctx context.Context, types []Type, ip string, start, end time.Time) (int, error) {
	const q = `
		SELECT COUNT(*) FROM events
		WHERE event = ANY($1) AND ip = $2 AND ts >= $3 AND ts <= $4
	`
	var n int
	if err := s.db.QueryRowContext(ctx, q, pq.Array(typeStrings(types)), ip, start, end).Scan(&n); err != nil {
		return 0, storage.Wrap("count", "events", err)
	}
	return n, nil
}

func (s *PostgresStore) BoundsInWindow(ctx context.Context, types []Type, ip string, start, end time.Time) (time.Time, time.Time, error) {
	const q = `
		SELECT MIN(ts), MAX(ts) FROM events
		WHERE event = ANY($1) AND ip = $2 AND ts >= $3 AND ts <= $4
	`
	var first, last sql.NullTime
	if err := s.db.QueryRowContext(ctx, q, pq.Array(typeStrings(types)), ip, start, end).Scan(&first, &last); err != nil {
		return time.Time{}, time.Time{}, storage.Wrap("bounds", "events", err)
	}
	if !first.Valid || !last.Valid {
		return time.Time{}, time.Time{}, ErrNotFound
	}
	return first.Time.UTC(), last.Time.UTC(), nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Event, error) {
	clauses := []string{"1=1"}
	args := []interface{}{}
	argIdx := 1

	if f.SourceIP != "" {
		clauses = append(clauses, "ip = $"+itoa(argIdx))
		args = append(args, f.SourceIP)
		argIdx++
	}
	if f.Service != "" {
		clauses = append(clauses, "service = $"+itoa(argIdx))
		args = append(args, f.Service)
		argIdx++
	}
	if f.Type != "" {
		clauses = append(clauses, "event = $"+itoa(argIdx))
		args = append(args, string(f.Type))
		argIdx++
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "ts >= $"+itoa(argIdx))
		args = append(args, f.Since)
		argIdx++
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "ts <= $"+itoa(argIdx))
		args = append(args, f.Until)
		argIdx++
	}

	query := "SELECT id, v, ts, service, event, ip, path, user_id, meta, created_at FROM events WHERE " +
		strings.Join(clauses, " AND ") + " ORDER BY ts DESC, id DESC LIMIT " + itoa(f.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Wrap("list", "events", err)
	}
	defer rows.Close()

	result := []Event{}
	for rows.Next() {
		var e Event
		var userID sql.NullString
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Version, &e.OccurredAt, &e.Service, &e.Type,
			&e.SourceIP, &e.Path, &userID, &metaJSON, &e.CreatedAt); err != nil {
			return nil, storage.Wrap("list", "events", err)
		}
		if userID.Valid {
			e.UserID = &userID.String
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, storage.Wrap("list", "events", err)
			}
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list", "events", err)
	}
	return result, nil
}

func typeStrings(types []Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
