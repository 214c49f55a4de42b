// Package telemetry provides persistent telemetry sinks.
package telemetry

import (
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/abmlux/episim/sim"
)

// DefaultBatchSize is the number of metrics buffered before a write.
const DefaultBatchSize = 512

const schema = `
CREATE TABLE IF NOT EXISTS metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	name TEXT NOT NULL,
	tick INTEGER NOT NULL,
	at TEXT NOT NULL,
	key TEXT NOT NULL,
	value INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metrics_run_name ON metrics(run_id, name, tick);
`

// Row is one stored (metric, key) value.
type Row struct {
	RunID string `db:"run_id"`
	Name  string `db:"name"`
	Tick  int64  `db:"tick"`
	At    string `db:"at"`
	Key   string `db:"key"`
	Value int64  `db:"value"`
}

// SQLiteSink stores metrics in a SQLite database, one row per metric value.
// Metrics without values are stored as a single row with an empty key.
//
// Record never fails: the first write error is kept, later metrics are
// dropped, and the error is returned by Flush and Close.
type SQLiteSink struct {
	conn      *sqlx.DB
	runID     string
	batchSize int
	buf       []sim.Metric
	err       error
}

// Open opens or creates the database at path and tags every row it writes
// with runID.
func Open(path, runID string) (*SQLiteSink, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate telemetry db: %w", err)
	}
	return &SQLiteSink{conn: conn, runID: runID, batchSize: DefaultBatchSize}, nil
}

// SetRunID changes the run ID of rows written from now on.
func (s *SQLiteSink) SetRunID(runID string) { s.runID = runID }

// Record buffers m and writes the buffer once it is full.
func (s *SQLiteSink) Record(m sim.Metric) {
	if s.err != nil {
		return
	}
	s.buf = append(s.buf, m)
	if len(s.buf) >= s.batchSize {
		s.err = s.write()
	}
}

// Flush writes any buffered metrics.
func (s *SQLiteSink) Flush() error {
	if s.err == nil {
		s.err = s.write()
	}
	return s.err
}

func (s *SQLiteSink) write() error {
	if len(s.buf) == 0 {
		return nil
	}
	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO metrics (run_id, name, tick, at, key, value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range s.buf {
		at := m.Time.Format(time.RFC3339)
		if len(m.Values) == 0 {
			if _, err := stmt.Exec(s.runID, m.Name, m.Tick, at, "", 0); err != nil {
				return fmt.Errorf("insert metric %s: %w", m.Name, err)
			}
			continue
		}
		keys := make([]string, 0, len(m.Values))
		for k := range m.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := stmt.Exec(s.runID, m.Name, m.Tick, at, k, m.Values[k]); err != nil {
				return fmt.Errorf("insert metric %s[%s]: %w", m.Name, k, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logrus.Debugf("telemetry: wrote %d metrics", len(s.buf))
	s.buf = s.buf[:0]
	return nil
}

// Close flushes the buffer and closes the database. It returns the first
// error seen since Open.
func (s *SQLiteSink) Close() error {
	err := s.Flush()
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Series returns every stored value of name/key for the current run, in
// tick order.
func (s *SQLiteSink) Series(name, key string) ([]Row, error) {
	var rows []Row
	err := s.conn.Select(&rows, `SELECT run_id, name, tick, at, key, value FROM metrics
		WHERE run_id = ? AND name = ? AND key = ? ORDER BY tick, id`, s.runID, name, key)
	if err != nil {
		return nil, fmt.Errorf("query %s[%s]: %w", name, key, err)
	}
	return rows, nil
}

// Count returns the number of rows stored for name in the current run.
func (s *SQLiteSink) Count(name string) (int, error) {
	var n int
	err := s.conn.Get(&n, `SELECT COUNT(*) FROM metrics WHERE run_id = ? AND name = ?`, s.runID, name)
	return n, err
}
