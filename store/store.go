package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/milosgajdos/go-fusion/export"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id            TEXT PRIMARY KEY,
		source            TEXT,
		started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		finished_at       TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS estimates (
		run_id            TEXT NOT NULL,
		timestamp         BIGINT NOT NULL,
		sensor            TEXT NOT NULL,
		px                DOUBLE,
		py                DOUBLE,
		v                 DOUBLE,
		yaw               DOUBLE,
		yaw_rate          DOUBLE,
		var_px            DOUBLE,
		var_py            DOUBLE,
		var_v             DOUBLE,
		var_yaw           DOUBLE,
		var_yaw_rate      DOUBLE,
		nis               DOUBLE,
		FOREIGN KEY(run_id) REFERENCES runs(run_id)
	);
	CREATE INDEX IF NOT EXISTS idx_estimates_run ON estimates(run_id, timestamp);
`

// Store persists tracker runs and their estimates in SQLite
type Store struct {
	*sql.DB
}

// Open opens SQLite database at path, creates the schema if needed and returns the Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db}, nil
}

// Run is a single tracker run; it implements export.Exporter
type Run struct {
	// ID is unique run ID
	ID string
	// Source describes the measurement source of the run
	Source string
	s      *Store
}

// Estimate is a stored tracker estimate
type Estimate struct {
	Timestamp int64
	Sensor    string
	State     []float64
	Var       []float64
	NIS       float64
}

// NewRun registers new run with the given source and returns it.
func (s *Store) NewRun(source string) (*Run, error) {
	id := uuid.New().String()

	_, err := s.Exec("INSERT INTO runs (run_id, source) VALUES (?, ?)", id, source)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	return &Run{
		ID:     id,
		Source: source,
		s:      s,
	}, nil
}

// Write stores the row as a run estimate.
func (r *Run) Write(row *export.Row) error {
	val, cov := row.Estimate.Val(), row.Estimate.Cov()
	if val.Len() != len(export.StateNames) {
		return fmt.Errorf("invalid estimate dimension: %d", val.Len())
	}

	args := []any{r.ID, row.Timestamp, row.Sensor.String()}
	for i := 0; i < val.Len(); i++ {
		args = append(args, val.AtVec(i))
	}
	for i := 0; i < val.Len(); i++ {
		args = append(args, cov.At(i, i))
	}
	args = append(args, row.NIS)

	_, err := r.s.Exec(`INSERT INTO estimates (
		run_id, timestamp, sensor,
		px, py, v, yaw, yaw_rate,
		var_px, var_py, var_v, var_yaw, var_yaw_rate,
		nis
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert estimate: %w", err)
	}

	return nil
}

// Close marks the run as finished. It does not close the store.
func (r *Run) Close() error {
	_, err := r.s.Exec("UPDATE runs SET finished_at = ? WHERE run_id = ?", time.Now().UTC(), r.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return nil
}

// Estimates returns estimates of run id ordered by timestamp.
func (s *Store) Estimates(id string) ([]Estimate, error) {
	rows, err := s.Query(`SELECT timestamp, sensor,
		px, py, v, yaw, yaw_rate,
		var_px, var_py, var_v, var_yaw, var_yaw_rate,
		nis
		FROM estimates WHERE run_id = ? ORDER BY timestamp, rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimates: %w", err)
	}
	defer rows.Close()

	var ests []Estimate
	for rows.Next() {
		e := Estimate{
			State: make([]float64, len(export.StateNames)),
			Var:   make([]float64, len(export.StateNames)),
		}
		dest := []any{&e.Timestamp, &e.Sensor}
		for i := range e.State {
			dest = append(dest, &e.State[i])
		}
		for i := range e.Var {
			dest = append(dest, &e.Var[i])
		}
		dest = append(dest, &e.NIS)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		ests = append(ests, e)
	}

	return ests, rows.Err()
}

// RunFinished returns true if run id has been closed.
func (s *Store) RunFinished(id string) (bool, error) {
	var finished sql.NullString
	err := s.QueryRow("SELECT finished_at FROM runs WHERE run_id = ?", id).Scan(&finished)
	if err != nil {
		return false, fmt.Errorf("failed to query run %s: %w", id, err)
	}

	return finished.Valid, nil
}

var _ export.Exporter = (*Run)(nil)
