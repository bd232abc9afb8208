package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/andresmejia3/facerank/internal/embedding"
)

// Store manages the PostgreSQL connection used to keep run history.
type Store struct {
	conn *pgx.Conn
}

// Run is one invocation of detect or match.
type Run struct {
	ID        string
	Mode      string
	InputPath string
	Reference string // empty for detect runs
	StartedAt time.Time
	Images    int
	Faces     int
}

// MatchRecord is one ranked gallery entry of a match run.
type MatchRecord struct {
	Rank     int
	Path     string
	Distance float32 // meaningless when Outcome is "no-face"
	Faces    int
	Outcome  string
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			input_path TEXT NOT NULL,
			reference TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			images INT NOT NULL DEFAULT 0,
			faces INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS match_results (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			rank INT NOT NULL,
			path TEXT NOT NULL,
			distance REAL,
			faces INT NOT NULL,
			outcome TEXT NOT NULL,
			PRIMARY KEY (run_id, rank)
		);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// CreateRun registers a run. Re-registering an ID clears its old results.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if _, err := s.conn.Exec(ctx, "DELETE FROM match_results WHERE run_id = $1", run.ID); err != nil {
		return err
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO runs (id, mode, input_path, reference, started_at, images, faces)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			mode = EXCLUDED.mode, input_path = EXCLUDED.input_path, reference = EXCLUDED.reference,
			started_at = EXCLUDED.started_at, images = EXCLUDED.images, faces = EXCLUDED.faces
	`, run.ID, run.Mode, run.InputPath, run.Reference, run.StartedAt, run.Images, run.Faces)
	return err
}

// FinishRun records the final image and face counts of a run.
func (s *Store) FinishRun(ctx context.Context, id string, images, faces int) error {
	tag, err := s.conn.Exec(ctx, "UPDATE runs SET images = $1, faces = $2 WHERE id = $3", images, faces, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// Records converts ranked results into rows, ranks starting at 1.
func Records(ranked []embedding.MatchResult) []MatchRecord {
	recs := make([]MatchRecord, len(ranked))
	for i, r := range ranked {
		recs[i] = MatchRecord{
			Rank:     i + 1,
			Path:     r.Path,
			Distance: r.Distance,
			Faces:    r.Faces,
			Outcome:  r.Outcome.String(),
		}
	}
	return recs
}

// InsertMatchResults bulk-loads a run's ranked results with COPY.
// No-face rows are stored with a NULL distance.
func (s *Store) InsertMatchResults(ctx context.Context, runID string, recs []MatchRecord) (int64, error) {
	noFace := embedding.NoFace.String()
	return s.conn.CopyFrom(ctx,
		pgx.Identifier{"match_results"},
		[]string{"run_id", "rank", "path", "distance", "faces", "outcome"},
		pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
			r := recs[i]
			var dist any = r.Distance
			if r.Outcome == noFace {
				dist = nil
			}
			return []any{runID, r.Rank, r.Path, dist, r.Faces, r.Outcome}, nil
		}),
	)
}

// ListRuns returns every stored run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, mode, input_path, reference, started_at, images, faces
		FROM runs ORDER BY started_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Mode, &r.InputPath, &r.Reference, &r.StartedAt, &r.Images, &r.Faces); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FindRun resolves a full run ID or a unique prefix of one.
func (s *Store) FindRun(ctx context.Context, prefix string) (Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, mode, input_path, reference, started_at, images, faces
		FROM runs WHERE id LIKE $1 || '%' LIMIT 2
	`, prefix)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Mode, &r.InputPath, &r.Reference, &r.StartedAt, &r.Images, &r.Faces); err != nil {
			return Run{}, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}

	switch len(found) {
	case 0:
		return Run{}, fmt.Errorf("no run matches %q", prefix)
	case 1:
		return found[0], nil
	default:
		return Run{}, fmt.Errorf("run prefix %q is ambiguous", prefix)
	}
}

// GetRunResults returns a run's results in rank order.
func (s *Store) GetRunResults(ctx context.Context, runID string) ([]MatchRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT rank, path, distance, faces, outcome
		FROM match_results WHERE run_id = $1 ORDER BY rank
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []MatchRecord
	for rows.Next() {
		var r MatchRecord
		var dist *float32
		if err := rows.Scan(&r.Rank, &r.Path, &dist, &r.Faces, &r.Outcome); err != nil {
			return nil, err
		}
		if dist != nil {
			r.Distance = *dist
		} else {
			r.Distance = embedding.NoFaceDistance
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS match_results CASCADE;
		DROP TABLE IF EXISTS runs CASCADE;
	`)
	return err
}
