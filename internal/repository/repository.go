package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Juanpabl/simECG-2022/internal/models"
	"github.com/Juanpabl/simECG-2022/internal/rhythm"
)

// Ошибки хранилищ
var (
	ErrRunNotFound = errors.New("run not found")
)

// RunRecord - сохранённый прогон симуляции
type RunRecord struct {
	ID        string                   `json:"id"`
	CreatedAt time.Time                `json:"created_at"`
	Params    rhythm.Params            `json:"params"`
	Result    *models.SimulationResult `json:"result"`
}

// Repository интерфейс долговременного хранилища прогонов
// (Infrastructure Layer)
type Repository interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	Close() error
}

// CacheStore интерфейс кэша прогонов
type CacheStore interface {
	SetRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	DeleteRun(ctx context.Context, runID string) error
	Close() error
}

// ===== In-memory заглушки =====
// Используются когда DSN/адрес не настроены: сервис остаётся рабочим
// без внешних зависимостей.

// MemoryRepository хранит прогоны в памяти
type MemoryRepository struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
	ids  []string
}

// NewMemoryRepository создает in-memory репозиторий
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		runs: make(map[string]*RunRecord),
	}
}

func (r *MemoryRepository) SaveRun(ctx context.Context, run *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; !exists {
		r.ids = append(r.ids, run.ID)
	}
	r.runs[run.ID] = run
	return nil
}

func (r *MemoryRepository) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (r *MemoryRepository) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.ids) {
		limit = len(r.ids)
	}
	out := make([]*RunRecord, 0, limit)
	// Последние прогоны первыми
	for i := len(r.ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.runs[r.ids[i]])
	}
	return out, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

// MemoryCache хранит кэш прогонов в памяти
type MemoryCache struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

// NewMemoryCache создает in-memory кэш
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		runs: make(map[string]*RunRecord),
	}
}

func (c *MemoryCache) SetRun(ctx context.Context, run *RunRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[run.ID] = run
	return nil
}

func (c *MemoryCache) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	run, ok := c.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (c *MemoryCache) DeleteRun(ctx context.Context, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runs, runID)
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
