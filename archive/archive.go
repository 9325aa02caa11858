// Package archive keeps finished sessions, their exchanges and evaluations in
// a local SQLite file.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/evaluate"
	"github.com/bosley/parley/phase"
	_ "modernc.org/sqlite"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("archive closed")

const timeFormat = time.RFC3339Nano

// Session is one archived session row.
type Session struct {
	ID             string
	Mode           string
	Voice          string
	PlannedMinutes int
	StartedAt      time.Time
	EndedAt        time.Time
	FinalPhase     string
	Reason         string
	Exchanges      int
}

// Archive is a SQLite-backed session store. Exchanges attached with Attach
// are written by a background worker.
type Archive struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time

	mu      sync.RWMutex
	closed  bool
	queue   chan exchangeJob
	workers sync.WaitGroup
}

// Open creates or opens the archive at path.
func Open(ctx context.Context, path string, log *slog.Logger) (*Archive, error) {
	if log == nil {
		log = slog.Default()
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	a := &Archive{
		db:    db,
		log:   log,
		clock: time.Now,
		queue: make(chan exchangeJob, 100),
	}
	if err := a.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}

	a.workers.Add(1)
	go a.worker()
	return a, nil
}

func (a *Archive) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    voice TEXT,
    planned_minutes INTEGER,
    started_at TEXT NOT NULL,
    ended_at TEXT,
    final_phase TEXT,
    reason TEXT
);
CREATE TABLE IF NOT EXISTS exchanges (
    session_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    user_text TEXT NOT NULL,
    assistant_text TEXT NOT NULL,
    phase TEXT,
    PRIMARY KEY(session_id, seq),
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS evaluations (
    session_id TEXT PRIMARY KEY,
    overall_score TEXT,
    report BLOB NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
`
	_, err := a.db.ExecContext(ctx, ddl)
	return err
}

// Close stops the worker after draining queued exchanges and closes the
// database.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.workers.Wait()
	return a.db.Close()
}

// BeginSession inserts the session row. It must precede any exchange for
// the session.
func (a *Archive) BeginSession(ctx context.Context, s Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = a.clock()
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, mode, voice, planned_minutes, started_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET mode=excluded.mode, voice=excluded.voice, planned_minutes=excluded.planned_minutes`,
		s.ID, s.Mode, s.Voice, s.PlannedMinutes, s.StartedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FinishSession records how the session ended.
func (a *Archive) FinishSession(ctx context.Context, id string, ended time.Time, final phase.Phase, reason string) error {
	res, err := a.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, final_phase = ?, reason = ? WHERE session_id = ?`,
		ended.UTC().Format(timeFormat), string(final), reason, id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// AppendExchange writes one exchange synchronously.
func (a *Archive) AppendExchange(ctx context.Context, sessionID string, ex conversation.Exchange) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO exchanges(session_id, seq, created_at, user_text, assistant_text, phase)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, seq) DO NOTHING`,
		sessionID, ex.Seq, ex.Timestamp.UTC().Format(timeFormat), ex.User, ex.Assistant, string(ex.Phase))
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

// SaveEvaluation stores the report as JSON alongside its overall score.
func (a *Archive) SaveEvaluation(ctx context.Context, sessionID string, r *evaluate.Report) error {
	if r == nil {
		return errors.New("no evaluation to archive")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO evaluations(session_id, overall_score, report, created_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET overall_score=excluded.overall_score, report=excluded.report, created_at=excluded.created_at`,
		sessionID, r.Overall.Score, data, a.clock().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// Sessions lists up to limit sessions, newest first, with exchange counts.
func (a *Archive) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT s.session_id, s.mode, COALESCE(s.voice, ''), COALESCE(s.planned_minutes, 0), s.started_at,
		        COALESCE(s.ended_at, ''), COALESCE(s.final_phase, ''), COALESCE(s.reason, ''),
		        (SELECT COUNT(*) FROM exchanges e WHERE e.session_id = s.session_id)
		 FROM sessions s ORDER BY s.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var started, ended string
		if err := rows.Scan(&s.ID, &s.Mode, &s.Voice, &s.PlannedMinutes, &started, &ended, &s.FinalPhase, &s.Reason, &s.Exchanges); err != nil {
			return nil, err
		}
		s.StartedAt, _ = time.Parse(timeFormat, started)
		if ended != "" {
			s.EndedAt, _ = time.Parse(timeFormat, ended)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Exchanges returns a session's exchanges in order.
func (a *Archive) Exchanges(ctx context.Context, sessionID string) ([]conversation.Exchange, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT seq, created_at, user_text, assistant_text, COALESCE(phase, '')
		 FROM exchanges WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []conversation.Exchange
	for rows.Next() {
		var ex conversation.Exchange
		var created, p string
		if err := rows.Scan(&ex.Seq, &created, &ex.User, &ex.Assistant, &p); err != nil {
			return nil, err
		}
		ex.Timestamp, _ = time.Parse(timeFormat, created)
		ex.Phase = phase.Phase(p)
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Evaluation loads a session's stored report.
func (a *Archive) Evaluation(ctx context.Context, sessionID string) (*evaluate.Report, error) {
	var data []byte
	err := a.db.QueryRowContext(ctx,
		`SELECT report FROM evaluations WHERE session_id = ?`, sessionID).Scan(&data)
	if err != nil {
		return nil, err
	}
	var r evaluate.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	return &r, nil
}
