// Package tracestore records interpreter runs step by step in SQLite.
package tracestore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chazu/flatvm/vm"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound indicates the requested run doesn't exist
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id      TEXT PRIMARY KEY,
	started TEXT NOT NULL,
	image   TEXT NOT NULL,
	result  TEXT,
	fault   TEXT
);
CREATE TABLE IF NOT EXISTS steps (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	seq       INTEGER NOT NULL,
	pc        INTEGER NOT NULL,
	insn      INTEGER NOT NULL,
	x_type    INTEGER NOT NULL,
	x         INTEGER NOT NULL,
	fp        INTEGER NOT NULL,
	arena_len INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);`

// Store is a trace database.
type Store struct {
	db   *sql.DB
	path string
	log  commonlog.Logger
}

// Open opens or creates the trace database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating trace directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	s := &Store{db: db, path: path, log: commonlog.GetLogger("flatvm.tracestore")}
	s.log.Debugf("opened trace store %s", path)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// Run records the steps of one interpreter run inside a transaction that
// Finish commits.
type Run struct {
	ID string

	store *Store
	tx    *sql.Tx
	stmt  *sql.Stmt
	steps uint64
}

// BeginRun starts recording a run of the named image.
func (s *Store) BeginRun(image string) (*Run, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning run: %w", err)
	}

	id := uuid.New().String()
	_, err = tx.Exec("INSERT INTO runs (id, started, image) VALUES (?, ?, ?)",
		id, time.Now().UTC().Format(time.RFC3339Nano), image)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO steps (run_id, seq, pc, insn, x_type, x, fp, arena_len)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("preparing step insert: %w", err)
	}

	s.log.Infof("run %s: %s", id, image)
	return &Run{ID: id, store: s, tx: tx, stmt: stmt}, nil
}

// Record stores one step event.
func (r *Run) Record(ev vm.TraceEvent) error {
	word, err := vm.EncodeInsn(ev.Insn)
	if err != nil {
		return fmt.Errorf("recording step %d: %w", ev.Seq, err)
	}
	_, err = r.stmt.Exec(r.ID, int64(ev.Seq), ev.PC, word, uint8(ev.X.Type), ev.X.Data, uint32(ev.FP), ev.ArenaLen)
	if err != nil {
		return fmt.Errorf("recording step %d: %w", ev.Seq, err)
	}
	r.steps++
	return nil
}

// Trace implements vm.Tracer.
func (r *Run) Trace(ev vm.TraceEvent) error {
	return r.Record(ev)
}

// Finish stores the outcome of the run and commits it. runErr is the error
// returned by vm.Run, if any.
func (r *Run) Finish(result vm.Value, runErr error) error {
	defer r.stmt.Close()

	var res, fault sql.NullString
	if runErr != nil {
		fault = sql.NullString{String: runErr.Error(), Valid: true}
	} else {
		res = sql.NullString{String: result.String(), Valid: true}
	}
	if _, err := r.tx.Exec("UPDATE runs SET result = ?, fault = ? WHERE id = ?", res, fault, r.ID); err != nil {
		r.tx.Rollback()
		return fmt.Errorf("finishing run: %w", err)
	}
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	r.store.log.Debugf("run %s: %d steps recorded", r.ID, r.steps)
	return nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// RunInfo is a stored run summary. Result and Fault are empty when unset.
type RunInfo struct {
	ID      string
	Started time.Time
	Image   string
	Result  string
	Fault   string
}

// Step is one stored step.
type Step struct {
	Seq      uint64
	PC       uint32
	Insn     vm.Insn
	X        vm.Value
	FP       vm.Obj
	ArenaLen uint32
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunInfo, error) {
	var info RunInfo
	var started string
	var res, fault sql.NullString
	if err := row.Scan(&info.ID, &started, &info.Image, &res, &fault); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return nil, fmt.Errorf("parsing start time of run %s: %w", info.ID, err)
	}
	info.Started = t
	info.Result, info.Fault = res.String, fault.String
	return &info, nil
}

// Run loads a run summary by id.
func (s *Store) Run(id string) (*RunInfo, error) {
	row := s.db.QueryRow("SELECT id, started, image, result, fault FROM runs WHERE id = ?", id)
	info, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return info, nil
}

// Runs lists stored runs, oldest first.
func (s *Store) Runs() ([]RunInfo, error) {
	rows, err := s.db.Query("SELECT id, started, image, result, fault FROM runs ORDER BY started, id")
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading runs: %w", err)
	}
	return runs, nil
}

// Steps returns the recorded steps of a run in execution order.
func (s *Store) Steps(runID string) ([]Step, error) {
	rows, err := s.db.Query(`SELECT seq, pc, insn, x_type, x, fp, arena_len
		FROM steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		var word, fp uint32
		var xType uint8
		if err := rows.Scan(&st.Seq, &st.PC, &word, &xType, &st.X.Data, &fp, &st.ArenaLen); err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		st.Insn = vm.DecodeInsn(word)
		st.X.Type = vm.Type(xType)
		st.FP = vm.Obj(fp)
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading steps: %w", err)
	}
	return steps, nil
}
