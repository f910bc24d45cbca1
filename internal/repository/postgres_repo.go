package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Juanpabl/simECG-2022/internal/models"
)

// PostgresRepository реализует Repository для PostgreSQL
// (Infrastructure Layer)
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository создает новый экземпляр PostgresRepository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// NewPostgresRepositoryFromDSN создает репозиторий из строки
// подключения
func NewPostgresRepositoryFromDSN(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

// Close закрывает соединение с БД
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// SaveRun сохраняет прогон и его аннотации в одной транзакции
func (r *PostgresRepository) SaveRun(ctx context.Context, run *RunRecord) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	resultJSON, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO simulation_runs (id, created_at, duration_ms, total_beats, params, result)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.ExecContext(ctx, query,
		run.ID,
		run.CreatedAt,
		run.Result.Stats.DurationMS,
		run.Result.Stats.TotalBeats,
		paramsJSON,
		resultJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	annQuery := `
		INSERT INTO run_annotations (run_id, timestamp_ms, beat_code, rhythm_code)
		VALUES ($1, $2, $3, $4)
	`
	for _, ann := range run.Result.Annotations {
		if _, err := tx.ExecContext(ctx, annQuery,
			run.ID, ann.TimestampMS, ann.BeatCode, string(ann.RhythmCode)); err != nil {
			return fmt.Errorf("failed to insert annotation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun возвращает прогон по ID
func (r *PostgresRepository) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	query := `
		SELECT id, created_at, params, result
		FROM simulation_runs
		WHERE id = $1
	`

	var run RunRecord
	var paramsJSON, resultJSON []byte

	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID,
		&run.CreatedAt,
		&paramsJSON,
		&resultJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if err := json.Unmarshal(paramsJSON, &run.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	run.Result = &models.SimulationResult{}
	if err := json.Unmarshal(resultJSON, run.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &run, nil
}

// ListRuns возвращает метаданные последних прогонов без серий
func (r *PostgresRepository) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, created_at, params, duration_ms, total_beats
		FROM simulation_runs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		var run RunRecord
		var paramsJSON []byte
		var durationMS int64
		var totalBeats int

		if err := rows.Scan(&run.ID, &run.CreatedAt, &paramsJSON, &durationMS, &totalBeats); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal(paramsJSON, &run.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
		run.Result = &models.SimulationResult{
			RunID: run.ID,
			Stats: models.RunStats{
				TotalBeats: totalBeats,
				DurationMS: durationMS,
			},
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// Схема, ожидаемая репозиторием:
//
//	CREATE TABLE simulation_runs (
//	    id          TEXT PRIMARY KEY,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    duration_ms BIGINT NOT NULL,
//	    total_beats INTEGER NOT NULL,
//	    params      JSONB NOT NULL,
//	    result      JSONB NOT NULL
//	);
//
//	CREATE TABLE run_annotations (
//	    run_id       TEXT REFERENCES simulation_runs(id),
//	    timestamp_ms BIGINT NOT NULL,
//	    beat_code    TEXT,
//	    rhythm_code  TEXT
//	);
