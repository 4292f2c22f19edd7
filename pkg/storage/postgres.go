package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/opscart/k8s-gap-auditor/pkg/cache"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewPostgresStore opens the database, checks connectivity and applies migrations
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db, ttl: cfg.TTL, now: time.Now}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	files, err := postgresFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		schema, err := postgresFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(schema)); err != nil {
			return fmt.Errorf("failed to execute %s: %w", name, err)
		}
	}
	return nil
}

// Get returns the cached recommendations for key when an unexpired set exists.
// Stored quantities are parsed again, so a corrupted row surfaces as a
// *quantity.ParseError.
func (s *PostgresStore) Get(ctx context.Context, key cache.Key) ([]models.Recommendation, bool, error) {
	query := `
		SELECT id
		FROM recommendation_sets
		WHERE namespace = $1 AND workload_type = $2 AND workload = $3 AND time_window = $4
			AND expires_at > $5
	`
	var setID string
	err := s.db.QueryRowContext(ctx, query,
		key.Namespace, key.Kind.APIName(), key.Workload, key.Window, s.now(),
	).Scan(&setID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT container, requests_cpu, requests_memory, limits_cpu, limits_memory, sample_count
		FROM recommendation_containers
		WHERE set_id = $1
		ORDER BY container
	`, setID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	recs := []models.Recommendation{}
	for rows.Next() {
		var r containerRow
		if err := rows.Scan(
			&r.Container, &r.RequestsCPU, &r.RequestsMemory,
			&r.LimitsCPU, &r.LimitsMemory, &r.Samples,
		); err != nil {
			return nil, false, err
		}
		rec, err := r.toRecommendation()
		if err != nil {
			return nil, false, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return recs, true, nil
}

// Set replaces the cached recommendations for key
func (s *PostgresStore) Set(ctx context.Context, key cache.Key, recs []models.Recommendation) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		DELETE FROM recommendation_sets
		WHERE namespace = $1 AND workload_type = $2 AND workload = $3 AND time_window = $4
	`, key.Namespace, key.Kind.APIName(), key.Workload, key.Window); err != nil {
		return err
	}

	setID := uuid.New().String()
	now := s.now()
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO recommendation_sets (id, namespace, workload_type, workload, time_window, cached_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, setID, key.Namespace, key.Kind.APIName(), key.Workload, key.Window, now, now.Add(s.ttl)); err != nil {
		return err
	}

	for _, rec := range recs {
		r := fromRecommendation(rec)
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO recommendation_containers (
				set_id, container, requests_cpu, requests_memory, limits_cpu, limits_memory, sample_count
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, setID, r.Container, r.RequestsCPU, r.RequestsMemory, r.LimitsCPU, r.LimitsMemory, r.Samples); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recommendation_sets WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
