// Package store provides persistence backends for PulsePoll.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/PulsePoll/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists intervals, flags and outcomes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetInterval(sensorID string) (int64, error) {
	var minutes int64
	err := s.db.QueryRow(`SELECT minutes FROM sensor_intervals WHERE sensor_id = $1`, sensorID).Scan(&minutes)
	if err == sql.ErrNoRows {
		return DisabledInterval, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetInterval failed", "error", err, "sensor_id", sensorID)
		return DisabledInterval, fmt.Errorf("failed to query interval for %s: %w", sensorID, err)
	}
	return minutes, nil
}

func (s *PostgresStore) SetInterval(sensorID string, minutes int64) error {
	_, err := s.db.Exec(`INSERT INTO sensor_intervals (sensor_id, minutes) VALUES ($1, $2)
		ON CONFLICT (sensor_id) DO UPDATE SET minutes = EXCLUDED.minutes`, sensorID, minutes)
	if err != nil {
		slog.Error("PostgresStore SetInterval failed", "error", err, "sensor_id", sensorID)
		return fmt.Errorf("failed to persist interval for %s: %w", sensorID, err)
	}
	return nil
}

func (s *PostgresStore) GetFlag(key string) (bool, error) {
	var value bool
	err := s.db.QueryRow(`SELECT value FROM preference_flags WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetFlag failed", "error", err, "key", key)
		return false, fmt.Errorf("failed to query flag %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) SetFlag(key string, value bool) error {
	_, err := s.db.Exec(`INSERT INTO preference_flags (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		slog.Error("PostgresStore SetFlag failed", "error", err, "key", key)
		return fmt.Errorf("failed to persist flag %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) SaveOutcome(o models.ResponseOutcome) error {
	_, err := s.db.Exec(`INSERT INTO response_outcomes (sensor_id, answer, time) VALUES ($1, $2, $3)`,
		o.SensorID, o.Answer, o.Time)
	if err != nil {
		slog.Error("PostgresStore SaveOutcome failed", "error", err, "sensor_id", o.SensorID)
		return fmt.Errorf("failed to insert outcome for %s: %w", o.SensorID, err)
	}
	return nil
}

func (s *PostgresStore) GetOutcomes() ([]models.ResponseOutcome, error) {
	rows, err := s.db.Query(`SELECT sensor_id, answer, time FROM response_outcomes ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore GetOutcomes query failed", "error", err)
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []models.ResponseOutcome
	for rows.Next() {
		var o models.ResponseOutcome
		if err := rows.Scan(&o.SensorID, &o.Answer, &o.Time); err != nil {
			slog.Error("PostgresStore GetOutcomes scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
