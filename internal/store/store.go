package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

var (
	ErrRunNotFound      = errors.New("run not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)

// Store keeps capture runs on disk and indexes them in SQLite:
//
//	rootDir/
//	  buildsnap.db
//	  runs/
//	    <runID>/
//	      1_classic_pipeline_build_5.png (etc.)
//	      manifest.json
type Store struct {
	db      *sql.DB
	rootDir string
	logger  zerolog.Logger
}

// Open ensures the root directory exists, opens the registry DB and applies
// the schema.
func Open(rootDir string, logger zerolog.Logger) (*Store, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("rootDir is required")
	}
	rootDir = filepath.Clean(rootDir)
	if err := os.MkdirAll(filepath.Join(rootDir, "runs"), 0o755); err != nil {
		return nil, fmt.Errorf("ensure rootDir %s: %w", rootDir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(rootDir, "buildsnap.db"))
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, rootDir: rootDir, logger: logger}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunDir returns the artifact directory of a run.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.rootDir, "runs", runID)
}

// CreateRun registers a new running capture and creates its directory.
func (s *Store) CreateRun(ctx context.Context, jenkinsURL, job string, build int) (*Run, error) {
	run := &Run{
		ID:         uuid.New().String(),
		JenkinsURL: jenkinsURL,
		Job:        job,
		Build:      build,
		Status:     RunRunning,
		StartedAt:  time.Now().UTC(),
	}

	if err := os.MkdirAll(s.RunDir(run.ID), 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, jenkins_url, job, build, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.JenkinsURL, run.Job, run.Build, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	s.logger.Info().Str("run_id", run.ID).Str("job", job).Int("build", build).Msg("run created")
	return run, nil
}

// SaveArtifact writes data atomically into the run directory and records it
// in the registry.
func (s *Store) SaveArtifact(ctx context.Context, runID, name, kind string, data []byte) (*Artifact, error) {
	path := filepath.Join(s.RunDir(runID), filepath.Base(name))
	if err := atomicWriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write artifact %s: %w", name, err)
	}

	sum := sha256.Sum256(data)
	art := &Artifact{
		RunID:     runID,
		Name:      filepath.Base(name),
		Kind:      kind,
		Size:      int64(len(data)),
		SHA256:    hex.EncodeToString(sum[:]),
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO artifacts (run_id, name, kind, size, sha256, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		art.RunID, art.Name, art.Kind, art.Size, art.SHA256, art.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert artifact: %w", err)
	}

	s.logger.Info().Str("run_id", runID).Str("name", art.Name).Int64("size", art.Size).Msg("artifact saved")
	return art, nil
}

// FinishRun marks the run done or failed and writes its manifest.json.
// Artifacts captured before a failure stay on disk and in the registry.
func (s *Store) FinishRun(ctx context.Context, runID string, runErr error) error {
	status := RunDone
	errMsg := ""
	if runErr != nil {
		status = RunFailed
		errMsg = runErr.Error()
	}
	finished := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errMsg, finished, runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}

	run, arts, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	manifest, err := json.MarshalIndent(Manifest{Run: *run, Artifacts: arts}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := atomicWriteFile(filepath.Join(s.RunDir(runID), "manifest.json"), manifest, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	s.logger.Info().Str("run_id", runID).Str("status", string(status)).Msg("run finished")
	return nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, jenkins_url, job, build, status, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun returns a run and its artifacts.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, []Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, jenkins_url, job, build, status, error, started_at, finished_at
		 FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrRunNotFound
		}
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, name, kind, size, sha256, created_at
		 FROM artifacts WHERE run_id = ? ORDER BY name`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	arts := []Artifact{}
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.RunID, &a.Name, &a.Kind, &a.Size, &a.SHA256, &a.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan artifact: %w", err)
		}
		arts = append(arts, a)
	}
	return run, arts, rows.Err()
}

// ReadArtifact loads an artifact's bytes from the run directory.
func (s *Store) ReadArtifact(ctx context.Context, runID, name string) ([]byte, error) {
	var exists string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM artifacts WHERE run_id = ? AND name = ?`,
		runID, filepath.Base(name)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query artifact: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(s.RunDir(runID), filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}

// FindArtifact returns the first artifact of the given kind for a run.
func (s *Store) FindArtifact(ctx context.Context, runID, kind string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, name, kind, size, sha256, created_at
		 FROM artifacts WHERE run_id = ? AND kind = ? ORDER BY name LIMIT 1`,
		runID, kind)
	var a Artifact
	err := row.Scan(&a.RunID, &a.Name, &a.Kind, &a.Size, &a.SHA256, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	return &a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var status string
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.JenkinsURL, &r.Job, &r.Build, &status, &r.Error, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
