package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/johnayoung/math-consensus/internal/logger"
	_ "github.com/lib/pq"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS reconciliation_history (
	id           TEXT PRIMARY KEY,
	created_at   TIMESTAMPTZ NOT NULL,
	problem_text TEXT NOT NULL,
	confidence   TEXT NOT NULL,
	payload      JSONB NOT NULL
)`
	insertRecordSQL  = `INSERT INTO reconciliation_history (id, created_at, problem_text, confidence, payload) VALUES ($1, $2, $3, $4, $5)`
	selectRecordSQL  = `SELECT payload FROM reconciliation_history WHERE id = $1`
	selectSummarySQL = `SELECT id, created_at, problem_text, confidence FROM reconciliation_history ORDER BY created_at DESC, id DESC`
	selectAllSQL     = `SELECT id, payload FROM reconciliation_history ORDER BY created_at ASC, id ASC`
)

// PostgresStore keeps records in a single table with a JSONB payload.
type PostgresStore struct {
	db  *sql.DB
	log logger.Logger
}

// OpenPostgres opens a lib/pq connection pool.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// NewPostgresStore wraps db.
func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &PostgresStore{db: db, log: log}
}

func (s *PostgresStore) Driver() string { return "postgres" }

func (s *PostgresStore) Close() error { return s.db.Close() }

// Migrate creates the history table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("creating history table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	summary := rec.Summary()
	if _, err := s.db.ExecContext(ctx, insertRecordSQL,
		rec.ID, rec.Timestamp.Time, rec.ProblemText, summary.Confidence, data,
	); err != nil {
		return fmt.Errorf("inserting record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	id, err := CanonicalID(id)
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = s.db.QueryRowContext(ctx, selectRecordSQL, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching record %s: %w", id, err)
	}

	rec, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, selectSummarySQL)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum       Summary
			createdAt time.Time
		)
		if err := rows.Scan(&sum.ID, &createdAt, &sum.ProblemText, &sum.Confidence); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		sum.Timestamp = Timestamp{createdAt}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, selectAllSQL)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		rec, err := Decode(payload)
		if err != nil {
			s.log.WithError(err).Warn("skipping unreadable history record", map[string]interface{}{"id": id})
			continue
		}
		if rec.ID == "" {
			rec.ID = id
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return out, nil
}
