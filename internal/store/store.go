// Package store defines the durable project persistence contract consumed
// by handlers and the orchestrator, plus an in-memory implementation used
// in tests. The PostgreSQL implementation lives in internal/database.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"reelforge-backend/internal/models"
)

// ErrNotFound is returned when no project matches the lookup.
var ErrNotFound = errors.New("project not found")

// ProjectStore persists project records. Writes to a single project are
// serialized by the callers (single supervisor per generating project, a
// keyed lock around planned-state mutations), so implementations only need
// last-write-wins semantics per row.
type ProjectStore interface {
	Create(ctx context.Context, p *models.Project) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Project, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Project, error)
	Save(ctx context.Context, p *models.Project) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
	// ListByStatus is used at startup to find projects whose generation
	// job must be re-attached after a restart.
	ListByStatus(ctx context.Context, status models.Status) ([]models.Project, error)
	// FindByJobID resolves a provider callback to its project.
	FindByJobID(ctx context.Context, provider, jobID string) (*models.Project, error)
}
