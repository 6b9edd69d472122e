// Package tracelog records collection cycles in a SQLite database so heap
// behavior can be inspected after a run.
package tracelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/marksweep/vm"
)

var log = commonlog.GetLogger("marksweep.tracelog")

var schema = []string{`
CREATE TABLE IF NOT EXISTS cycles (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session      TEXT    NOT NULL,
	cycle        INTEGER NOT NULL,
	live_before  INTEGER NOT NULL,
	marked       INTEGER NOT NULL,
	reclaimed    INTEGER NOT NULL,
	live_after   INTEGER NOT NULL,
	threshold    INTEGER NOT NULL,
	duration_ns  INTEGER NOT NULL,
	recorded_at  INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS cycles_session ON cycles (session, id)`,
}

// Recorder writes CycleStats rows. It is safe for concurrent use.
type Recorder struct {
	db *sql.DB
}

// Open opens (creating if needed) the trace database at path.
func Open(ctx context.Context, path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("tracelog: open %s: %w", path, err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("tracelog: create schema in %s: %w", path, err)
		}
	}
	return &Recorder{db: db}, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Record stores one cycle for session.
func (r *Recorder) Record(ctx context.Context, session string, s vm.CycleStats) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cycles (session, cycle, live_before, marked, reclaimed, live_after, threshold, duration_ns, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session, int64(s.Cycle), s.LiveBefore, s.Marked, s.Reclaimed, s.LiveAfter, s.Threshold,
		s.Duration.Nanoseconds(), s.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("tracelog: record cycle %d of %s: %w", s.Cycle, session, err)
	}
	return nil
}

// Cycles returns every recorded cycle of session in the order recorded.
// A session that ran more than one VM may repeat cycle numbers.
func (r *Recorder) Cycles(ctx context.Context, session string) ([]vm.CycleStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT cycle, live_before, marked, reclaimed, live_after, threshold, duration_ns, recorded_at
		 FROM cycles WHERE session = ? ORDER BY id`, session)
	if err != nil {
		return nil, fmt.Errorf("tracelog: query %s: %w", session, err)
	}
	defer rows.Close()

	var out []vm.CycleStats
	for rows.Next() {
		var (
			s        vm.CycleStats
			cycle    int64
			duration int64
			at       int64
		)
		if err := rows.Scan(&cycle, &s.LiveBefore, &s.Marked, &s.Reclaimed, &s.LiveAfter, &s.Threshold, &duration, &at); err != nil {
			return nil, fmt.Errorf("tracelog: scan %s: %w", session, err)
		}
		s.Cycle = uint64(cycle)
		s.Duration = time.Duration(duration)
		s.Timestamp = time.Unix(0, at)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Sessions returns the distinct session names with recorded cycles.
func (r *Recorder) Sessions(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT session FROM cycles ORDER BY session`)
	if err != nil {
		return nil, fmt.Errorf("tracelog: list sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Observer returns a vm.WithObserver callback that records every cycle of
// session. Write failures are logged, not returned: the collector has no
// error path.
func (r *Recorder) Observer(session string) func(vm.CycleStats) {
	return func(s vm.CycleStats) {
		if err := r.Record(context.Background(), session, s); err != nil {
			log.Errorf("%s", err)
		}
	}
}
