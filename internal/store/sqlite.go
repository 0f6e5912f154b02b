// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/vrlearn/adaptd/internal/model"
	"github.com/vrlearn/adaptd/internal/privacy"
)

const schemaVersion = 1

// SQLiteConfig defines standard operational parameters.
type SQLiteConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultSQLiteConfig returns the recommended pool settings.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// SQLiteStore implements Store on modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database with mandatory PRAGMAs and runs the
// schema migration. The PRAGMAs live in the DSN so they apply to every
// connection in the pool.
func OpenSQLite(dbPath string, cfg SQLiteConfig) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS learning_sessions (
		session_id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		state TEXT NOT NULL,
		current_event TEXT NOT NULL,
		progress REAL NOT NULL,
		record_json TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL,
		last_event_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_learner ON learning_sessions(learner_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_event ON learning_sessions(last_event_at_ms);

	CREATE TABLE IF NOT EXISTS learner_models (
		learner_token TEXT NOT NULL,
		block TEXT NOT NULL,
		envelope_json TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		PRIMARY KEY (learner_token, block)
	);

	CREATE TABLE IF NOT EXISTS assessment_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		envelope_json TEXT NOT NULL,
		recorded_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assessment_session ON assessment_results(session_id, seq);

	CREATE TABLE IF NOT EXISTS engagement_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		envelope_json TEXT NOT NULL,
		recorded_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_engagement_session ON engagement_data(session_id, seq);

	CREATE TABLE IF NOT EXISTS performance_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		event TEXT NOT NULL,
		value REAL NOT NULL,
		confidence REAL NOT NULL,
		stability REAL NOT NULL,
		latency_ms INTEGER NOT NULL,
		recorded_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_session ON performance_metrics(session_id, seq);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Sessions ---

func (s *SQLiteStore) UpsertSession(ctx context.Context, rec *model.SessionRecord) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO learning_sessions (
		session_id, learner_id, channel, state, current_event, progress,
		record_json, created_at_ms, last_event_at_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		learner_id = excluded.learner_id,
		channel = excluded.channel,
		state = excluded.state,
		current_event = excluded.current_event,
		progress = excluded.progress,
		record_json = excluded.record_json,
		last_event_at_ms = excluded.last_event_at_ms
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.SessionID, rec.LearnerID, rec.Channel, string(rec.State),
		string(rec.CurrentEvent), rec.Progress, recordJSON,
		rec.CreatedAt.UnixMilli(), rec.LastEventAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	var recordJSON []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT record_json FROM learning_sessions WHERE session_id = ?", sessionID,
	).Scan(&recordJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec model.SessionRecord
	if err := json.Unmarshal(recordJSON, &rec); err != nil {
		return nil, fmt.Errorf("store: decode session %s: %w", sessionID, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM learning_sessions WHERE session_id = ?", sessionID)
	return err
}

func (s *SQLiteStore) ScanSessions(ctx context.Context, fn func(*model.SessionRecord) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT record_json FROM learning_sessions")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var recordJSON []byte
		if err := rows.Scan(&recordJSON); err != nil {
			return err
		}
		var rec model.SessionRecord
		if err := json.Unmarshal(recordJSON, &rec); err != nil {
			continue
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// --- Learner model blocks ---

func (s *SQLiteStore) PutModelBlock(ctx context.Context, rec *ModelBlockRecord) error {
	envJSON, err := json.Marshal(rec.Envelope)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO learner_models (learner_token, block, envelope_json, updated_at_ms)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(learner_token, block) DO UPDATE SET
		envelope_json = excluded.envelope_json,
		updated_at_ms = excluded.updated_at_ms
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.LearnerToken, rec.Block, envJSON, rec.UpdatedAt.UnixMilli())
	return err
}

func (s *SQLiteStore) GetModelBlock(ctx context.Context, learnerToken, block string) (*ModelBlockRecord, error) {
	var envJSON []byte
	var updatedMS int64
	err := s.db.QueryRowContext(ctx,
		"SELECT envelope_json, updated_at_ms FROM learner_models WHERE learner_token = ? AND block = ?",
		learnerToken, block,
	).Scan(&envJSON, &updatedMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var env privacy.Envelope
	if err := json.Unmarshal(envJSON, &env); err != nil {
		return nil, fmt.Errorf("store: decode model block %s/%s: %w", learnerToken, block, err)
	}
	return &ModelBlockRecord{
		LearnerToken: learnerToken,
		Block:        block,
		Envelope:     env,
		UpdatedAt:    time.UnixMilli(updatedMS).UTC(),
	}, nil
}

// DeleteLearnerData removes every model block for the token. Sessions
// and observations are keyed by session, not token; the retention sweep
// handles those.
func (s *SQLiteStore) DeleteLearnerData(ctx context.Context, learnerToken string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM learner_models WHERE learner_token = ?", learnerToken)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- Observations ---

func (s *SQLiteStore) AppendAssessment(ctx context.Context, rec *ObservationRecord) error {
	return s.appendObservation(ctx, "assessment_results", rec)
}

func (s *SQLiteStore) AppendEngagement(ctx context.Context, rec *ObservationRecord) error {
	return s.appendObservation(ctx, "engagement_data", rec)
}

func (s *SQLiteStore) appendObservation(ctx context.Context, table string, rec *ObservationRecord) error {
	envJSON, err := json.Marshal(rec.Envelope)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (session_id, seq, envelope_json, recorded_at_ms) VALUES (?, ?, ?, ?)", table)
	_, err = s.db.ExecContext(ctx, query,
		rec.SessionID, rec.Seq, envJSON, rec.RecordedAt.UnixMilli())
	return err
}

func (s *SQLiteStore) ListAssessments(ctx context.Context, sessionID string, limit int) ([]*ObservationRecord, error) {
	return s.listObservations(ctx, "assessment_results", sessionID, limit)
}

func (s *SQLiteStore) ListEngagement(ctx context.Context, sessionID string, limit int) ([]*ObservationRecord, error) {
	return s.listObservations(ctx, "engagement_data", sessionID, limit)
}

func (s *SQLiteStore) listObservations(ctx context.Context, table, sessionID string, limit int) ([]*ObservationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		"SELECT seq, envelope_json, recorded_at_ms FROM %s WHERE session_id = ? ORDER BY seq DESC LIMIT ?", table)
	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*ObservationRecord
	for rows.Next() {
		rec := &ObservationRecord{SessionID: sessionID}
		var envJSON []byte
		var recordedMS int64
		if err := rows.Scan(&rec.Seq, &envJSON, &recordedMS); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(envJSON, &rec.Envelope); err != nil {
			return nil, err
		}
		rec.RecordedAt = time.UnixMilli(recordedMS).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Metrics and retention ---

func (s *SQLiteStore) AppendMetric(ctx context.Context, rec *MetricRecord) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO performance_metrics (session_id, seq, event, value, confidence, stability, latency_ms, recorded_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Seq, rec.Event, rec.Value, rec.Confidence,
		rec.Stability, rec.LatencyMS, rec.RecordedAt.UnixMilli())
	return err
}

// PurgeBefore removes sessions whose last event predates the cutoff,
// along with observations and metrics recorded before it. Model blocks
// not updated since the cutoff are removed as well.
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (PurgeStats, error) {
	var stats PurgeStats
	ms := cutoff.UnixMilli()

	del := func(query string, args ...any) (int, error) {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		return int(n), nil
	}

	var err error
	if stats.Sessions, err = del("DELETE FROM learning_sessions WHERE last_event_at_ms < ?", ms); err != nil {
		return stats, err
	}
	if stats.ModelBlocks, err = del("DELETE FROM learner_models WHERE updated_at_ms < ?", ms); err != nil {
		return stats, err
	}
	a, err := del("DELETE FROM assessment_results WHERE recorded_at_ms < ?", ms)
	if err != nil {
		return stats, err
	}
	e, err := del("DELETE FROM engagement_data WHERE recorded_at_ms < ?", ms)
	if err != nil {
		return stats, err
	}
	stats.Observations = a + e
	if stats.Metrics, err = del("DELETE FROM performance_metrics WHERE recorded_at_ms < ?", ms); err != nil {
		return stats, err
	}
	return stats, nil
}

var _ Store = (*SQLiteStore)(nil)
