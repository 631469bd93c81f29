package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps run history in a SQLite database file.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveGeneration(ctx context.Context, runID string, rec GenerationRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO generations (
			run_id, generation, best_key, best_fitness, mean_fitness, median_fitness,
			stdev_fitness, min_fitness, elites, offspring, mutations, driver_errors, recorded_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			best_key = excluded.best_key,
			best_fitness = excluded.best_fitness,
			mean_fitness = excluded.mean_fitness,
			median_fitness = excluded.median_fitness,
			stdev_fitness = excluded.stdev_fitness,
			min_fitness = excluded.min_fitness,
			elites = excluded.elites,
			offspring = excluded.offspring,
			mutations = excluded.mutations,
			driver_errors = excluded.driver_errors,
			recorded_at = excluded.recorded_at
	`, runID, rec.Generation, rec.BestKey, rec.BestFitness, rec.MeanFitness, rec.MedianFitness,
		rec.StdevFitness, rec.MinFitness, rec.Elites, rec.Offspring, rec.Mutations, rec.DriverErrors,
		rec.RecordedAt.UTC().UnixNano())
	return err
}

func (s *SQLiteStore) Generations(ctx context.Context, runID string) ([]GenerationRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT generation, best_key, best_fitness, mean_fitness, median_fitness, stdev_fitness,
			min_fitness, elites, offspring, mutations, driver_errors, recorded_at
		FROM generations
		WHERE run_id = ?
		ORDER BY generation
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []GenerationRecord
	for rows.Next() {
		var (
			rec        GenerationRecord
			recordedAt int64
		)
		if err := rows.Scan(&rec.Generation, &rec.BestKey, &rec.BestFitness, &rec.MeanFitness,
			&rec.MedianFitness, &rec.StdevFitness, &rec.MinFitness, &rec.Elites, &rec.Offspring,
			&rec.Mutations, &rec.DriverErrors, &recordedAt); err != nil {
			return nil, err
		}
		rec.RecordedAt = time.Unix(0, recordedAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) SaveBestGenome(ctx context.Context, best BestGenome) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO best_genomes (run_id, generation, fitness, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			generation = excluded.generation,
			fitness = excluded.fitness,
			payload = excluded.payload
	`, best.RunID, best.Generation, best.Fitness, best.Payload)
	return err
}

func (s *SQLiteStore) BestGenome(ctx context.Context, runID string) (BestGenome, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return BestGenome{}, false, err
	}

	best := BestGenome{RunID: runID}
	err = db.QueryRowContext(ctx, `SELECT generation, fitness, payload FROM best_genomes WHERE run_id = ?`, runID).
		Scan(&best.Generation, &best.Fitness, &best.Payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BestGenome{}, false, nil
		}
		return BestGenome{}, false, err
	}
	return best, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			best_key INTEGER NOT NULL,
			best_fitness REAL NOT NULL,
			mean_fitness REAL NOT NULL,
			median_fitness REAL NOT NULL,
			stdev_fitness REAL NOT NULL,
			min_fitness REAL NOT NULL,
			elites INTEGER NOT NULL,
			offspring INTEGER NOT NULL,
			mutations INTEGER NOT NULL,
			driver_errors INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
		CREATE TABLE IF NOT EXISTS best_genomes (
			run_id TEXT PRIMARY KEY,
			generation INTEGER NOT NULL,
			fitness REAL NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
