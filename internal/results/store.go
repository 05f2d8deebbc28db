package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"cognivoice/internal/analysis"
	"cognivoice/internal/config"
)

// ErrNotFound indicates no record exists for the requested job.
var ErrNotFound = errors.New("result not found")

// Store manages result persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the results database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "results.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Insert persists a completed analysis outcome. Replays of an already-stored
// job are ignored so a duplicate relay delivery cannot corrupt the record.
func (s *Store) Insert(ctx context.Context, jobID, ownerID string, result analysis.Result) error {
	voteCounts, err := json.Marshal(result.VoteCounts)
	if err != nil {
		return fmt.Errorf("marshal vote counts: %w", err)
	}
	features, err := json.Marshal(result.SpeechFeatures)
	if err != nil {
		return fmt.Errorf("marshal speech features: %w", err)
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO results (
            job_id, owner_id, file_name, final_prediction, confidence,
            risk_level, vote_counts_json, speech_features_json,
            visualization_url, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(job_id) DO NOTHING`,
		jobID,
		ownerID,
		result.FileName,
		result.FinalPrediction,
		float64(result.Confidence),
		string(result.RiskLevel),
		string(voteCounts),
		string(features),
		nullableString(result.VisualizationURL),
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// GetByJobID fetches one persisted outcome.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM results WHERE job_id = ?", jobID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return record, nil
}

// ListByOwner returns an owner's outcomes, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		selectColumns+" FROM results WHERE owner_id = ? ORDER BY created_at DESC",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Recent returns the newest outcomes across all owners, capped at limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		selectColumns+" FROM results ORDER BY created_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent results: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

const selectColumns = `SELECT job_id, owner_id, file_name, final_prediction, confidence,
    risk_level, vote_counts_json, speech_features_json, visualization_url, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record     Record
		confidence float64
		risk       string
		voteCounts string
		features   string
		vizURL     sql.NullString
		createdAt  string
	)
	err := row.Scan(
		&record.JobID,
		&record.OwnerID,
		&record.Result.FileName,
		&record.Result.FinalPrediction,
		&confidence,
		&risk,
		&voteCounts,
		&features,
		&vizURL,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	record.Result.Confidence = analysis.Confidence(confidence)
	record.Result.RiskLevel = analysis.RiskLevel(risk)
	if err := json.Unmarshal([]byte(voteCounts), &record.Result.VoteCounts); err != nil {
		return nil, fmt.Errorf("decode vote counts: %w", err)
	}
	if err := json.Unmarshal([]byte(features), &record.Result.SpeechFeatures); err != nil {
		return nil, fmt.Errorf("decode speech features: %w", err)
	}
	if vizURL.Valid {
		record.Result.VisualizationURL = vizURL.String
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	record.CreatedAt = parsed
	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return records, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
