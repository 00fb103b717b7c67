// Package coverage records which testable properties a testbench run
// actually exercised, so a `--coverage FILE` run can be inspected after
// the fact instead of trusted on faith.
package coverage

import (
	"database/sql"
	"fmt"
	"os"

	// Registers the "sqlite3" driver name with database/sql.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// Hit is one observation that a named property fired during a run: an
// LR/SC success, a page fault of a given kind, a TileLink opcode seen on
// a channel, and so on. Source identifies the component that reported it
// (e.g. "dcache", "tilelink.a").
type Hit struct {
	Property string
	Source   string
	Detail   string
}

// Recorder buffers Hit events and flushes them to a SQLite database,
// batching writes the same way the upstream trace writer does so a long
// run doesn't pay a transaction per event.
type Recorder struct {
	db        *sql.DB
	statement *sql.Stmt
	buffered  []Hit
	batchSize int
	dbPath    string
}

// NewRecorder creates a Recorder that will write to path once Init is
// called. Flush is registered as an atexit handler, so a run that ends via
// atexit.Exit still persists whatever was buffered; a plain os.Exit does
// not run atexit handlers.
func NewRecorder(path string) *Recorder {
	r := &Recorder{dbPath: path, batchSize: 10000}
	atexit.Register(func() { r.Flush() })
	return r
}

// Init opens the database and creates the coverage table. If path is
// empty a unique name is generated, mirroring the upstream trace writer's
// fallback when no explicit file is requested.
func (r *Recorder) Init() error {
	if r.dbPath == "" {
		r.dbPath = fmt.Sprintf("rvtb_coverage_%s.sqlite3", xid.New().String())
	}

	if _, err := os.Stat(r.dbPath); err == nil {
		return fmt.Errorf("coverage: file %s already exists", r.dbPath)
	}

	db, err := sql.Open("sqlite3", r.dbPath)
	if err != nil {
		return err
	}
	r.db = db

	if _, err := r.db.Exec(`
		CREATE TABLE coverage (
			property TEXT NOT NULL,
			source   TEXT NOT NULL,
			detail   TEXT
		)
	`); err != nil {
		return err
	}

	stmt, err := r.db.Prepare(`INSERT INTO coverage (property, source, detail) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	r.statement = stmt

	return nil
}

// Record buffers a hit, flushing automatically once the batch fills.
func (r *Recorder) Record(hit Hit) {
	r.buffered = append(r.buffered, hit)
	if len(r.buffered) >= r.batchSize {
		r.Flush()
	}
}

// Flush writes every buffered hit in a single transaction. Safe to call
// with nothing buffered, and safe to call more than once (e.g. once from
// the driver's normal shutdown path and again from atexit).
func (r *Recorder) Flush() {
	if r.db == nil || len(r.buffered) == 0 {
		return
	}

	tx, err := r.db.Begin()
	if err != nil {
		panic(err)
	}

	stmt := tx.Stmt(r.statement)
	for _, hit := range r.buffered {
		if _, err := stmt.Exec(hit.Property, hit.Source, hit.Detail); err != nil {
			panic(err)
		}
	}

	if err := tx.Commit(); err != nil {
		panic(err)
	}

	r.buffered = nil
}

// Close flushes and releases the database handle.
func (r *Recorder) Close() error {
	r.Flush()
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Summary reports how many hits were recorded per property, for a
// closing report on the console.
func (r *Recorder) Summary() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT property, COUNT(*) FROM coverage GROUP BY property`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var property string
		var count int
		if err := rows.Scan(&property, &count); err != nil {
			return nil, err
		}
		out[property] = count
	}
	return out, rows.Err()
}
