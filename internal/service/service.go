package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Juanpabl/simECG-2022/internal/config"
	"github.com/Juanpabl/simECG-2022/internal/models"
	"github.com/Juanpabl/simECG-2022/internal/repository"
	"github.com/Juanpabl/simECG-2022/internal/rhythm"
	"github.com/Juanpabl/simECG-2022/internal/sources"
)

// Broadcaster рассылает события прогона подписчикам
type Broadcaster interface {
	BroadcastBeat(runID string, seq int, beat models.BeatRecord)
	BroadcastRunComplete(runID string, stats models.RunStats)
}

// SimulationService управляет прогонами симуляции (Application Layer)
type SimulationService struct {
	repo        repository.Repository
	cache       repository.CacheStore
	broadcaster Broadcaster
	log         *zap.Logger
}

// NewSimulationService создает новый сервис симуляций
func NewSimulationService(
	repo repository.Repository,
	cache repository.CacheStore,
	broadcaster Broadcaster,
	log *zap.Logger,
) *SimulationService {
	return &SimulationService{
		repo:        repo,
		cache:       cache,
		broadcaster: broadcaster,
		log:         log,
	}
}

// RunSimulation выполняет один прогон движка ритма, сохраняет его и
// рассылает удары подписчикам
func (s *SimulationService) RunSimulation(ctx context.Context, simCfg config.SimulationConfig) (*repository.RunRecord, error) {
	params := simCfg.Params()

	sinusPool, afPool, err := buildPools(simCfg, params)
	if err != nil {
		return nil, err
	}

	engine, err := rhythm.NewEngine(params, sinusPool, afPool, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	started := time.Now()
	result, err := engine.Run()
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}

	runID := uuid.New().String()
	result.RunID = runID

	run := &repository.RunRecord{
		ID:        runID,
		CreatedAt: started,
		Params:    params,
		Result:    result,
	}

	if err := s.cache.SetRun(ctx, run); err != nil {
		// Кэш не критичен для результата прогона
		s.log.Warn("failed to cache run", zap.String("run_id", runID), zap.Error(err))
	}
	if err := s.repo.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	if s.broadcaster != nil {
		for i, beat := range result.Beats() {
			s.broadcaster.BroadcastBeat(runID, i, beat)
		}
		s.broadcaster.BroadcastRunComplete(runID, result.Stats)
	}

	s.log.Info("simulation completed",
		zap.String("run_id", runID),
		zap.Int("total_beats", result.Stats.TotalBeats),
		zap.Int64("duration_ms", result.Stats.DurationMS),
		zap.Duration("elapsed", time.Since(started)))

	return run, nil
}

// buildPools подставляет реальные записи RR вместо синтетических
// источников, если пути настроены
func buildPools(simCfg config.SimulationConfig, params rhythm.Params) (sinusPool, afPool *sources.Pool, err error) {
	initial := int(params.SignalLengthSec*params.MeanHeartRate/60) + 64
	if initial < 64 {
		initial = 64
	}

	if simCfg.SinusRecordingPath != "" {
		gen, err := sources.LoadRecording(simCfg.SinusRecordingPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load sinus recording: %w", err)
		}
		sinusPool = sources.NewPool(gen, initial)
	}
	if simCfg.AFRecordingPath != "" {
		gen, err := sources.LoadRecording(simCfg.AFRecordingPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AF recording: %w", err)
		}
		afPool = sources.NewPool(gen, initial)
	}
	return sinusPool, afPool, nil
}

// GetRun возвращает прогон: сперва из кэша, затем из репозитория
func (s *SimulationService) GetRun(ctx context.Context, runID string) (*repository.RunRecord, error) {
	if run, err := s.cache.GetRun(ctx, runID); err == nil {
		return run, nil
	}

	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	// Возвращаем в кэш после промаха
	if err := s.cache.SetRun(ctx, run); err != nil {
		s.log.Warn("failed to refill cache", zap.String("run_id", runID), zap.Error(err))
	}
	return run, nil
}

// ListRuns возвращает метаданные последних прогонов
func (s *SimulationService) ListRuns(ctx context.Context, limit int) ([]*repository.RunRecord, error) {
	return s.repo.ListRuns(ctx, limit)
}
