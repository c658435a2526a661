// Package store provides persistence backends for PulsePoll.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/PulsePoll/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists intervals, flags and outcomes in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; a missing parent directory is created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied", "path", dsn)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetInterval(sensorID string) (int64, error) {
	var minutes int64
	err := s.db.QueryRow(`SELECT minutes FROM sensor_intervals WHERE sensor_id = ?`, sensorID).Scan(&minutes)
	if err == sql.ErrNoRows {
		return DisabledInterval, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetInterval failed", "error", err, "sensor_id", sensorID)
		return DisabledInterval, fmt.Errorf("failed to query interval for %s: %w", sensorID, err)
	}
	return minutes, nil
}

func (s *SQLiteStore) SetInterval(sensorID string, minutes int64) error {
	_, err := s.db.Exec(`INSERT INTO sensor_intervals (sensor_id, minutes) VALUES (?, ?)
		ON CONFLICT(sensor_id) DO UPDATE SET minutes = excluded.minutes`, sensorID, minutes)
	if err != nil {
		slog.Error("SQLiteStore SetInterval failed", "error", err, "sensor_id", sensorID)
		return fmt.Errorf("failed to persist interval for %s: %w", sensorID, err)
	}
	slog.Debug("SQLiteStore SetInterval succeeded", "sensor_id", sensorID, "minutes", minutes)
	return nil
}

func (s *SQLiteStore) GetFlag(key string) (bool, error) {
	var value bool
	err := s.db.QueryRow(`SELECT value FROM preference_flags WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlag failed", "error", err, "key", key)
		return false, fmt.Errorf("failed to query flag %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetFlag(key string, value bool) error {
	_, err := s.db.Exec(`INSERT INTO preference_flags (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		slog.Error("SQLiteStore SetFlag failed", "error", err, "key", key)
		return fmt.Errorf("failed to persist flag %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) SaveOutcome(o models.ResponseOutcome) error {
	_, err := s.db.Exec(`INSERT INTO response_outcomes (sensor_id, answer, time) VALUES (?, ?, ?)`,
		o.SensorID, o.Answer, o.Time)
	if err != nil {
		slog.Error("SQLiteStore SaveOutcome failed", "error", err, "sensor_id", o.SensorID)
		return fmt.Errorf("failed to insert outcome for %s: %w", o.SensorID, err)
	}
	slog.Debug("SQLiteStore SaveOutcome succeeded", "sensor_id", o.SensorID)
	return nil
}

func (s *SQLiteStore) GetOutcomes() ([]models.ResponseOutcome, error) {
	rows, err := s.db.Query(`SELECT sensor_id, answer, time FROM response_outcomes ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore GetOutcomes query failed", "error", err)
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []models.ResponseOutcome
	for rows.Next() {
		var o models.ResponseOutcome
		if err := rows.Scan(&o.SensorID, &o.Answer, &o.Time); err != nil {
			slog.Error("SQLiteStore GetOutcomes scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
