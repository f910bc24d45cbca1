package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juanpabl/simECG-2022/internal/models"
)

func testRun(id string) *RunRecord {
	return &RunRecord{
		ID:        id,
		CreatedAt: time.Now(),
		Result: &models.SimulationResult{
			RunID:        id,
			RR:           []float64{0.8},
			Labels:       []models.BeatLabel{models.BeatNormal},
			StateHistory: []models.RhythmState{models.SinusRhythm},
		},
	}
}

func TestMemoryRepository_SaveAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	run := testRun("run-1")
	require.NoError(t, repo.SaveRun(ctx, run))

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	_, err = repo.GetRun(ctx, "run-2")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMemoryRepository_ListNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.SaveRun(ctx, testRun(fmt.Sprintf("run-%d", i))))
	}

	runs, err := repo.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "run-2", runs[2].ID)

	// Лимит 0 возвращает все
	runs, err = repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 5)
}

func TestMemoryRepository_SaveOverwrites(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveRun(ctx, testRun("run-1")))
	require.NoError(t, repo.SaveRun(ctx, testRun("run-1")))

	runs, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	run := testRun("run-1")
	require.NoError(t, cache.SetRun(ctx, run))

	got, err := cache.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	require.NoError(t, cache.DeleteRun(ctx, "run-1"))
	_, err = cache.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
