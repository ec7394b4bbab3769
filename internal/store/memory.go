package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"reelforge-backend/internal/models"
)

// MemoryStore is a mutex-guarded in-memory ProjectStore. It backs unit
// tests and keeps the service runnable without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]models.Project
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: make(map[uuid.UUID]models.Project)}
}

func (m *MemoryStore) Create(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := p.Clone()
	return &out, nil
}

func (m *MemoryStore) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Project, error) {
	p, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) List(_ context.Context, userID uuid.UUID) ([]models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Project
	for _, p := range m.projects {
		if p.UserID == userID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return ErrNotFound
	}
	m.projects[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return ErrNotFound
	}
	delete(m.projects, id)
	return nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, status models.Status) ([]models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Project
	for _, p := range m.projects {
		if p.Status == status {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) FindByJobID(_ context.Context, provider, jobID string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.projects {
		if p.ActiveJob != nil && p.ActiveJob.Provider == provider && p.ActiveJob.JobID == jobID {
			out := p.Clone()
			return &out, nil
		}
	}
	return nil, ErrNotFound
}
