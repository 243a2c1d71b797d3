// ════════════════════════════════════════════════════════════════════════════════════════════════
// DESCRIPTOR DUMP STORE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: SQLite-backed submission trace and ring image snapshots
//
// Description:
//   Records every committed descriptor (channel, bank, slot, slot address, command range) and,
//   on request, full ring images. Each image is stored with its BLAKE2b-256 digest and verified
//   when read back.
//
// Schema:
//   - submissions: one row per TraceSubmission, in commit order
//   - snapshots:   one row per Snapshot call
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package dump

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"

	"mcfe/debug"
	"mcfe/frontend"
	"mcfe/ring"
)

// ErrCorrupt reports a snapshot whose stored digest no longer matches.
var ErrCorrupt = errors.New("mcfe: dump snapshot digest mismatch")

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	channel      INTEGER NOT NULL,
	bank         TEXT    NOT NULL,
	slot         INTEGER NOT NULL,
	slot_address INTEGER NOT NULL,
	cmd_start    INTEGER NOT NULL,
	cmd_end      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	channel     INTEGER NOT NULL,
	bank        TEXT    NOT NULL,
	write_index INTEGER NOT NULL,
	image       BLOB    NOT NULL,
	digest      BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_channel ON submissions(channel, bank);
`

// Snapshot is one stored ring image.
type Snapshot struct {
	Channel    uint32
	Priority   bool
	WriteIndex uint32
	Image      []byte
	Digest     [blake2b.Size256]byte
}

// Recorder is a frontend.Tracer writing to a SQLite database.
type Recorder struct {
	db     *sql.DB
	insert *sql.Stmt

	mu    sync.Mutex
	err   error // first TraceSubmission failure
	count int
}

var _ frontend.Tracer = (*Recorder)(nil)

// Open creates or opens the database at path (":memory:" works) and
// prepares the schema.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("dump: open %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared across statements.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("dump: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("dump: schema: %w", err)
	}
	stmt, err := db.Prepare(`INSERT INTO submissions (channel, bank, slot, slot_address, cmd_start, cmd_end) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("dump: prepare: %w", err)
	}
	return &Recorder{db: db, insert: stmt}, nil
}

// TraceSubmission implements frontend.Tracer. Failures are logged once and
// kept for Err.
func (r *Recorder) TraceSubmission(s frontend.Submission) {
	_, err := r.insert.Exec(s.Channel, ring.BankFor(s.Priority).Name(), s.Slot, int64(s.SlotAddress), s.Start, s.End)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("dump: trace: %w", err)
			debug.DropError("DUMP", r.err)
		}
		return
	}
	r.count++
}

// Err returns the first trace failure.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Traced is the number of submissions written.
func (r *Recorder) Traced() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Submissions returns the stored submissions of one ring in commit order.
func (r *Recorder) Submissions(channel uint32, priority bool) ([]frontend.Submission, error) {
	rows, err := r.db.Query(`SELECT slot, slot_address, cmd_start, cmd_end FROM submissions
		WHERE channel = ? AND bank = ? ORDER BY id`, channel, ring.BankFor(priority).Name())
	if err != nil {
		return nil, fmt.Errorf("dump: query submissions: %w", err)
	}
	defer rows.Close()

	var out []frontend.Submission
	for rows.Next() {
		s := frontend.Submission{Channel: channel, Priority: priority}
		var addr int64
		if err := rows.Scan(&s.Slot, &addr, &s.Start, &s.End); err != nil {
			return nil, fmt.Errorf("dump: scan submission: %w", err)
		}
		s.SlotAddress = uint64(addr)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Snapshot stores a ring image with its digest.
func (r *Recorder) Snapshot(channel uint32, priority bool, writeIndex uint32, image []byte) error {
	sum := blake2b.Sum256(image)
	_, err := r.db.Exec(`INSERT INTO snapshots (channel, bank, write_index, image, digest) VALUES (?, ?, ?, ?, ?)`,
		channel, ring.BankFor(priority).Name(), writeIndex, image, sum[:])
	if err != nil {
		return fmt.Errorf("dump: snapshot: %w", err)
	}
	return nil
}

// Snapshots reads every stored image back and verifies its digest.
func (r *Recorder) Snapshots() ([]Snapshot, error) {
	rows, err := r.db.Query(`SELECT channel, bank, write_index, image, digest FROM snapshots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("dump: query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var bank string
		var digest []byte
		if err := rows.Scan(&s.Channel, &bank, &s.WriteIndex, &s.Image, &digest); err != nil {
			return nil, fmt.Errorf("dump: scan snapshot: %w", err)
		}
		s.Priority = bank == ring.Priority.Name()
		s.Digest = blake2b.Sum256(s.Image)
		if !bytes.Equal(digest, s.Digest[:]) {
			return nil, fmt.Errorf("%w: channel %d %s", ErrCorrupt, s.Channel, bank)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close releases the statement and database.
func (r *Recorder) Close() error {
	r.insert.Close()
	return r.db.Close()
}
