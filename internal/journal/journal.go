// Package journal persists lifecycle transitions, idle events and sampled
// frame statistics to an embedded SQLite database.
package journal

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/tofview/internal/monitor"
	"github.com/banshee-data/tofview/internal/monitoring"
	"github.com/banshee-data/tofview/internal/session"
	"github.com/banshee-data/tofview/internal/timeutil"
)

var logf = monitoring.Prefixed("Journal")

// IdleKind is the direction of an idle change.
type IdleKind string

const (
	IdleEntered IdleKind = "entered"
	IdleExited  IdleKind = "exited"
)

// IdleEvent is one stored idle change.
type IdleEvent struct {
	ID   int64     `json:"id"`
	Kind IdleKind  `json:"kind"`
	At   time.Time `json:"at"`
}

// TransitionRecord is one stored lifecycle transition.
type TransitionRecord struct {
	ID    int64     `json:"id"`
	RunID string    `json:"run_id"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	Cause string    `json:"cause"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock sets the clock used to timestamp idle events.
func WithClock(c timeutil.Clock) Option {
	return func(j *Journal) { j.clock = c }
}

// WithFrameInterval stores one frame summary in every n frames observed.
// n <= 0 stores none.
func WithFrameInterval(n int) Option {
	return func(j *Journal) {
		if n < 0 {
			n = 0
		}
		j.frameInterval = uint64(n)
	}
}

// Journal is the SQLite-backed diagnostics store.
type Journal struct {
	db            *sql.DB
	path          string
	clock         timeutil.Clock
	frameInterval uint64
	frameCount    atomic.Uint64
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema. ":memory:" gives a private in-memory journal.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and serialises
	// writers, which SQLite does anyway.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{
		db:            db,
		path:          path,
		clock:         timeutil.RealClock{},
		frameInterval: 1,
	}
	for _, o := range opts {
		o(j)
	}
	if err := j.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func applyPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DB returns the underlying database handle.
func (j *Journal) DB() *sql.DB { return j.db }

// Close closes the database.
func (j *Journal) Close() error { return j.db.Close() }

// RecordTransition stores a lifecycle transition.
func (j *Journal) RecordTransition(t session.Transition) error {
	var errText sql.NullString
	if t.Err != nil {
		errText = sql.NullString{String: t.Err.Error(), Valid: true}
	}
	_, err := j.db.Exec(
		`INSERT INTO lifecycle_transitions (run_id, from_state, to_state, cause, error, at_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.RunID, t.From.String(), t.To.String(), string(t.Cause), errText, t.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// OnTransition implements session.Observer. Failures are logged; the
// lifecycle never waits on the journal's health.
func (j *Journal) OnTransition(t session.Transition) {
	if err := j.RecordTransition(t); err != nil {
		logf("%v", err)
	}
}

// RecordIdleEvent stores an idle change at the journal clock's time.
func (j *Journal) RecordIdleEvent(kind IdleKind) error {
	if kind != IdleEntered && kind != IdleExited {
		return fmt.Errorf("record idle event: unknown kind %q", kind)
	}
	_, err := j.db.Exec(
		`INSERT INTO idle_events (kind, at_unix_nanos) VALUES (?, ?)`,
		string(kind), j.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record idle event: %w", err)
	}
	return nil
}

// RecordFrameSummary stores s unconditionally.
func (j *Journal) RecordFrameSummary(s monitor.FrameSummary) error {
	at := s.Timestamp
	if at.IsZero() {
		at = j.clock.Now()
	}
	_, err := j.db.Exec(
		`INSERT INTO frame_summaries (
			width, height, valid, valid_fraction, min_range, max_range,
			mean_range, stddev_range, median_range, policy, at_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Width, s.Height, s.Valid, s.ValidFraction, s.MinRange, s.MaxRange,
		s.MeanRange, s.StdDevRange, s.MedianRange, s.Policy, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record frame summary: %w", err)
	}
	return nil
}

// ObserveFrame stores every frameInterval-th summary, starting with the
// first.
func (j *Journal) ObserveFrame(s monitor.FrameSummary) {
	if j.frameInterval == 0 {
		return
	}
	n := j.frameCount.Add(1)
	if (n-1)%j.frameInterval != 0 {
		return
	}
	if err := j.RecordFrameSummary(s); err != nil {
		logf("%v", err)
	}
}

// Transitions returns the newest limit transitions, newest first.
func (j *Journal) Transitions(limit int) ([]TransitionRecord, error) {
	rows, err := j.db.Query(
		`SELECT transition_id, run_id, from_state, to_state, cause, error, at_unix_nanos
		FROM lifecycle_transitions ORDER BY transition_id DESC LIMIT ?`, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var r TransitionRecord
		var errText sql.NullString
		var at int64
		if err := rows.Scan(&r.ID, &r.RunID, &r.From, &r.To, &r.Cause, &errText, &at); err != nil {
			return nil, err
		}
		r.Error = errText.String
		r.At = time.Unix(0, at).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// IdleEvents returns the newest limit idle events, newest first.
func (j *Journal) IdleEvents(limit int) ([]IdleEvent, error) {
	rows, err := j.db.Query(
		`SELECT idle_event_id, kind, at_unix_nanos FROM idle_events
		ORDER BY idle_event_id DESC LIMIT ?`, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IdleEvent
	for rows.Next() {
		var ev IdleEvent
		var kind string
		var at int64
		if err := rows.Scan(&ev.ID, &kind, &at); err != nil {
			return nil, err
		}
		ev.Kind = IdleKind(kind)
		ev.At = time.Unix(0, at).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// FrameSummaries returns the newest limit stored summaries, newest first.
func (j *Journal) FrameSummaries(limit int) ([]monitor.FrameSummary, error) {
	rows, err := j.db.Query(
		`SELECT width, height, valid, valid_fraction, min_range, max_range,
			mean_range, stddev_range, median_range, policy, at_unix_nanos
		FROM frame_summaries ORDER BY frame_summary_id DESC LIMIT ?`, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []monitor.FrameSummary
	for rows.Next() {
		var s monitor.FrameSummary
		var at int64
		if err := rows.Scan(&s.Width, &s.Height, &s.Valid, &s.ValidFraction, &s.MinRange, &s.MaxRange,
			&s.MeanRange, &s.StdDevRange, &s.MedianRange, &s.Policy, &at); err != nil {
			return nil, err
		}
		s.Timestamp = time.Unix(0, at).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func normLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 1000
	}
	return limit
}
