package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"PriceWatch/internal/model"
)

// SQLiteRecorder journals samples and status events to a SQLite database.
// Each process run writes under its own session id.
type SQLiteRecorder struct {
	db      *sql.DB
	mu      sync.Mutex
	session string
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so external readers do not block the journal writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, session: uuid.NewString()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s (session %s)", dbPath, r.session)
	return r, nil
}

// Session returns the id stamped on every row written by this recorder.
func (r *SQLiteRecorder) Session() string { return r.session }

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS samples (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			observed_at INTEGER NOT NULL,
			price       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(observed_at)`,

		`CREATE TABLE IF NOT EXISTS status_events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id     TEXT NOT NULL,
			timestamp      INTEGER NOT NULL,
			event_type     TEXT,
			detail         TEXT,
			cooldown_ticks INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_ts ON status_events(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordSample stores the price as text so no precision is lost.
func (r *SQLiteRecorder) RecordSample(symbol string, s model.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO samples
		(session_id, symbol, observed_at, price)
		VALUES (?,?,?,?)`,
		r.session, symbol, s.ObservedAt().UnixMilli(), s.Value().String(),
	)
	return err
}

func (r *SQLiteRecorder) RecordEvent(evt *StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO status_events
		(session_id, timestamp, event_type, detail, cooldown_ticks)
		VALUES (?,?,?,?,?)`,
		r.session, time.Now().Unix(), evt.EventType, evt.Detail, evt.CooldownTicks,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
