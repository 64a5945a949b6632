package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"sentinelmesh/internal/storage"
)

var (
	ErrNotFound      = errors.New("alerts: alert not found")
	ErrInvalidAction = errors.New("alerts: invalid action")
	// ErrRaceSuppressed reports that another writer created an alert for the
	// same rule and ip inside the suppression window first.
	ErrRaceSuppressed = errors.New("alerts: suppressed by concurrent alert")
)

type Store interface {
	// FindRecent returns the most recently created alert for rule and ip
	// with created_at >= since, or ErrNotFound.
	FindRecent(ctx context.Context, rule, ip string, since time.Time) (*Alert, error)
	// CreateIfNoRecent persists a unless an alert for the same rule and ip
	// was created at or after since, in which case it returns ErrRaceSuppressed.
	CreateIfNoRecent(ctx context.Context, a *Alert, since time.Time) error
	Get(ctx context.Context, id int64) (*Alert, error)
	// List returns the newest alerts first.
	List(ctx context.Context, limit int) ([]Alert, error)
	// Update applies fn to the stored alert and persists the result atomically.
	// If fn returns an error nothing is written.
	Update(ctx context.Context, id int64, fn func(*Alert) error) (*Alert, error)
}

const alertColumns = `id, rule, severity, ip, window_seconds, threshold, count,
	first_seen, last_seen, status, acknowledged_at, acknowledged_by,
	closed_at, closed_by, meta, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindRecent(ctx context.Context, rule, ip string, since time.Time) (*Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts
		WHERE rule = $1 AND ip = $2 AND created_at >= $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	a, err := scanAlert(s.db.QueryRowContext(ctx, q, rule, ip, since))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storage.Wrap("find_recent", "alerts", err)
	}
	return a, nil
}

// CreateIfNoRecent holds a transaction-scoped advisory lock on rule|ip so the
// existence check and the insert cannot interleave with another replica's.
func (s *PostgresStore) CreateIfNoRecent(ctx context.Context, a *Alert, since time.Time) error {
	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return storage.Wrap("create", "alerts", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Wrap("create", "alerts", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || '|' || $2))`, a.Rule, a.SourceIP); err != nil {
		return storage.Wrap("create", "alerts", err)
	}

	var exists bool
	const existsQ = `SELECT EXISTS (SELECT 1 FROM alerts WHERE rule = $1 AND ip = $2 AND created_at >= $3)`
	if err := tx.QueryRowContext(ctx, existsQ, a.Rule, a.SourceIP, since).Scan(&exists); err != nil {
		return storage.Wrap("create", "alerts", err)
	}
	if exists {
		return ErrRaceSuppressed
	}

	if a.Status == "" {
		a.Status = StatusOpen
	}
	const insertQ = `
		INSERT INTO alerts
		(rule, severity, ip, window_seconds, threshold, count, first_seen, last_seen,
		 status, meta, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`
	row := tx.QueryRowContext(ctx, insertQ,
		a.Rule,
		string(a.Severity),
		a.SourceIP,
		a.WindowSeconds,
		a.Threshold,
		a.Count,
		a.FirstSeen,
		a.LastSeen,
		string(a.Status),
		string(metaJSON),
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err := row.Scan(&a.ID); err != nil {
		return storage.Wrap("create", "alerts", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Wrap("create", "alerts", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storage.Wrap("get", "alerts", err)
	}
	return a, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := `SELECT ` + alertColumns + ` FROM alerts ORDER BY id DESC LIMIT ` + strconv.Itoa(limit)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, storage.Wrap("list", "alerts", err)
	}
	defer rows.Close()

	res := []Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, storage.Wrap("list", "alerts", err)
		}
		res = append(res, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list", "alerts", err)
	}
	return res, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, fn func(*Alert) error) (*Alert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storage.Wrap("update", "alerts", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1 FOR UPDATE`
	a, err := scanAlert(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storage.Wrap("update", "alerts", err)
	}
	if err := fn(a); err != nil {
		return nil, err
	}

	const updateQ = `
		UPDATE alerts
		SET status = $1, acknowledged_at = $2, acknowledged_by = $3,
		    closed_at = $4, closed_by = $5, updated_at = $6
		WHERE id = $7
	`
	if _, err := tx.ExecContext(ctx, updateQ,
		string(a.Status),
		a.AcknowledgedAt,
		a.AcknowledgedBy,
		a.ClosedAt,
		a.ClosedBy,
		a.UpdatedAt,
		id,
	); err != nil {
		return nil, storage.Wrap("update", "alerts", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storage.Wrap("update", "alerts", err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var ackAt, closedAt sql.NullTime
	var ackBy, closedBy sql.NullString
	var metaJSON []byte
	if err := row.Scan(&a.ID, &a.Rule, &a.Severity, &a.SourceIP, &a.WindowSeconds,
		&a.Threshold, &a.Count, &a.FirstSeen, &a.LastSeen, &a.Status,
		&ackAt, &ackBy, &closedAt, &closedBy, &metaJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if ackAt.Valid {
		t := ackAt.Time.UTC()
		a.AcknowledgedAt = &t
	}
	if ackBy.Valid {
		a.AcknowledgedBy = &ackBy.String
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		a.ClosedAt = &t
	}
	if closedBy.Valid {
		a.ClosedBy = &closedBy.String
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &a.Metadata); err != nil {
			return nil, err
		}
	}
	a.FirstSeen = a.FirstSeen.UTC()
	a.LastSeen = a.LastSeen.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}
