// Package history keeps a record of past runs in a SQLite database, so that results can be
// compared over time.
package history

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/launchdarkly/http-server-contract-tests/framework"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT NOT NULL,
	target TEXT NOT NULL,
	critical_only INTEGER NOT NULL,
	total INTEGER NOT NULL,
	passed INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	critical_failed INTEGER NOT NULL,
	success INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS checks (
	run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	name TEXT NOT NULL,
	passed INTEGER NOT NULL,
	critical INTEGER NOT NULL,
	detail TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);`

// Run is one recorded run.
type Run struct {
	ID           int64
	StartTime    time.Time
	Target       string
	CriticalOnly bool
	Stats        framework.RunStatistics
	Success      bool
	Elapsed      time.Duration
}

// CheckRecord is the recorded result of one check in a run.
type CheckRecord struct {
	Name     string
	Passed   bool
	Critical bool
	Detail   string
	Duration time.Duration
}

// Store is a SQLite-backed run history. It is also a framework.Reporter, which records each
// completed run.
type Store struct {
	db     *sql.DB
	logger framework.Logger
	lock   sync.Mutex

	target       string
	criticalOnly bool
	err          error
}

// Open opens or creates a history database. Failures to record a run are written to logger.
func Open(path string, logger framework.Logger) (*Store, error) {
	if logger == nil {
		logger = framework.NullLogger()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// each connection to ":memory:" would be a separate database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not open history database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not initialize history database %s: %w", path, err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record saves a completed run and returns its ID.
func (s *Store) Record(target string, criticalOnly bool, summary framework.RunSummary) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`INSERT INTO runs
		(started_at, target, critical_only, total, passed, failed, critical_failed, success, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.StartTime.UTC().Format(time.RFC3339Nano),
		target,
		boolToInt(criticalOnly),
		summary.Stats.Total,
		summary.Stats.Passed,
		summary.Stats.Failed,
		summary.Stats.CriticalFailed,
		boolToInt(summary.Success),
		summary.Elapsed.Milliseconds(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for i, r := range summary.Results {
		if _, err := tx.Exec(`INSERT INTO checks
			(run_id, seq, name, passed, critical, detail, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, r.Name, boolToInt(r.OK()), boolToInt(r.Critical), r.Detail, r.Duration.Milliseconds(),
		); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

// Runs returns recorded runs, most recent first. A limit of zero or less returns them all.
func (s *Store) Runs(limit int) ([]Run, error) {
	var query strings.Builder
	query.WriteString(`SELECT id, started_at, target, critical_only, total, passed, failed, critical_failed,
		success, elapsed_ms FROM runs ORDER BY id DESC`)
	var args []interface{}
	if limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	rows, err := s.db.Query(query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run                   Run
			startedAt             string
			criticalOnly, success int
			elapsedMS             int64
		)
		if err := rows.Scan(&run.ID, &startedAt, &run.Target, &criticalOnly, &run.Stats.Total, &run.Stats.Passed,
			&run.Stats.Failed, &run.Stats.CriticalFailed, &success, &elapsedMS); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			run.StartTime = t
		}
		run.CriticalOnly = criticalOnly == 1
		run.Success = success == 1
		run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Checks returns the check results of one run in the order they ran.
func (s *Store) Checks(runID int64) ([]CheckRecord, error) {
	rows, err := s.db.Query(`SELECT name, passed, critical, detail, duration_ms FROM checks
		WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []CheckRecord
	for rows.Next() {
		var (
			c                CheckRecord
			passed, critical int
			durationMS       int64
		)
		if err := rows.Scan(&c.Name, &passed, &critical, &c.Detail, &durationMS); err != nil {
			return nil, err
		}
		c.Passed = passed == 1
		c.Critical = critical == 1
		c.Duration = time.Duration(durationMS) * time.Millisecond
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// FailureCounts returns how many times each check has failed over the given number of most
// recent runs, for checks that failed at least once.
func (s *Store) FailureCounts(lastRuns int) (map[string]int, error) {
	rows, err := s.db.Query(`SELECT name, COUNT(*) FROM checks
		WHERE passed = 0 AND run_id IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)
		GROUP BY name`, lastRuns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		counts[name] = count
	}
	return counts, rows.Err()
}

func (s *Store) RunStarted(info framework.RunInfo) {
	s.target = info.Target
	s.criticalOnly = info.CriticalOnly
}

func (s *Store) CheckStarted(framework.CheckDefinition) {}

func (s *Store) CheckSkipped(string, string) {}

func (s *Store) OnResult(framework.Result) {}

func (s *Store) RunFailed(error) {}

func (s *Store) OnComplete(summary framework.RunSummary) {
	target := summary.Target
	if target == "" {
		target = s.target
	}
	_, err := s.Record(target, s.criticalOnly, summary)
	s.err = err
	if err != nil {
		s.logger.Printf("Failed to record run in history: %s", err)
	}
}

// Err returns the error from the last attempt to record a run, if any.
func (s *Store) Err() error {
	return s.err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
