// Package session persists finished play sessions and their per-note verdict
// history to sqlite.
package session

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/alexanderzliu/guitarzero/internal/scoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at path and brings the
// schema up to date.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL keeps the frame-loop writer from blocking API readers.
	if _, err := sqlDB.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Not closing m: that would close the underlying DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Record is one finished session row.
type Record struct {
	SessionID   string             `json:"session_id"`
	ChartTitle  string             `json:"chart_title"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	SongTimeSec float64            `json:"song_time_sec"`
	Speed       float64            `json:"speed"`
	LoopSection string             `json:"loop_section,omitempty"`
	Completed   bool               `json:"completed"`
	Score       scoring.ScoreState `json:"score"`
}

// SaveSession writes the session row and its verdict history in one
// transaction.
func (db *DB) SaveSession(rec Record, history []scoring.VerdictEvent) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (
			session_id, chart_title, started_at, finished_at, song_time_sec,
			speed, loop_section, completed, score, max_streak,
			perfect_count, good_count, ok_count, miss_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.ChartTitle, rec.StartedAt, rec.FinishedAt, rec.SongTimeSec,
		rec.Speed, rec.LoopSection, rec.Completed, rec.Score.Score, rec.Score.MaxStreak,
		rec.Score.PerfectCount, rec.Score.GoodCount, rec.Score.OkCount, rec.Score.MissCount,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO verdicts (
			session_id, seq, event_id, note_index, time_sec, string, fret,
			midi, is_chord, result, offset_ms, hit_time_sec, hit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare verdict insert: %w", err)
	}
	defer stmt.Close()

	for seq, ev := range history {
		_, err = stmt.Exec(
			rec.SessionID, seq, ev.Note.EventID, ev.Note.NoteIndex, ev.Note.TimeSec,
			ev.Note.String, ev.Note.Fret, ev.Note.Midi, ev.Note.IsChord,
			ev.Verdict.Result.String(), ev.Verdict.OffsetMs, ev.Verdict.HitTimeSec, ev.Verdict.Hit,
		)
		if err != nil {
			return fmt.Errorf("insert verdict %d: %w", seq, err)
		}
	}

	return tx.Commit()
}

// GetSession returns one session by ID, or sql.ErrNoRows.
func (db *DB) GetSession(sessionID string) (Record, error) {
	row := db.QueryRow(
		`SELECT session_id, chart_title, started_at, finished_at, song_time_sec,
			speed, loop_section, completed, score, max_streak,
			perfect_count, good_count, ok_count, miss_count
		FROM sessions WHERE session_id = ?`, sessionID)
	return scanRecord(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var loopSection sql.NullString
	err := row.Scan(
		&rec.SessionID, &rec.ChartTitle, &rec.StartedAt, &rec.FinishedAt, &rec.SongTimeSec,
		&rec.Speed, &loopSection, &rec.Completed, &rec.Score.Score, &rec.Score.MaxStreak,
		&rec.Score.PerfectCount, &rec.Score.GoodCount, &rec.Score.OkCount, &rec.Score.MissCount,
	)
	if err != nil {
		return Record{}, err
	}
	rec.LoopSection = loopSection.String
	return rec, nil
}

// ListSessions returns up to limit sessions, most recent first.
func (db *DB) ListSessions(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT session_id, chart_title, started_at, finished_at, song_time_sec,
			speed, loop_section, completed, score, max_streak,
			perfect_count, good_count, ok_count, miss_count
		FROM sessions ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// BestScore returns the highest-scoring completed session for a chart, or
// sql.ErrNoRows when none exists.
func (db *DB) BestScore(chartTitle string) (Record, error) {
	row := db.QueryRow(
		`SELECT session_id, chart_title, started_at, finished_at, song_time_sec,
			speed, loop_section, completed, score, max_streak,
			perfect_count, good_count, ok_count, miss_count
		FROM sessions
		WHERE chart_title = ? AND completed = 1
		ORDER BY score DESC LIMIT 1`, chartTitle)
	return scanRecord(row)
}

// SessionVerdicts returns a session's verdict history in assignment order.
func (db *DB) SessionVerdicts(sessionID string) ([]scoring.VerdictEvent, error) {
	rows, err := db.Query(
		`SELECT event_id, note_index, time_sec, string, fret, midi, is_chord,
			result, offset_ms, hit_time_sec, hit
		FROM verdicts WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []scoring.VerdictEvent
	for rows.Next() {
		var ev scoring.VerdictEvent
		var result string
		err := rows.Scan(
			&ev.Note.EventID, &ev.Note.NoteIndex, &ev.Note.TimeSec,
			&ev.Note.String, &ev.Note.Fret, &ev.Note.Midi, &ev.Note.IsChord,
			&result, &ev.Verdict.OffsetMs, &ev.Verdict.HitTimeSec, &ev.Verdict.Hit,
		)
		if err != nil {
			return nil, err
		}
		r, ok := scoring.ParseResult(result)
		if !ok {
			return nil, fmt.Errorf("unknown verdict result %q in session %s", result, sessionID)
		}
		ev.Verdict.Result = r
		history = append(history, ev)
	}
	return history, rows.Err()
}
