package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"reelforge-backend/internal/models"
	"reelforge-backend/internal/store"
)

// Client is the PostgreSQL implementation of store.ProjectStore. Structured
// fields (inputs, analysis, plan, chat log, active job) live in JSONB
// columns; everything the core reads is in the columns enumerated here.
type Client struct {
	db *sql.DB
}

func NewClient(connectionString string) (*Client, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Client{db: db}, nil
}

func (c *Client) Close() error { return c.db.Close() }

const projectColumns = `id, user_id, status, inputs, analysis, plan, chat_log, active_job,
	progress, eta_seconds, artifact_ref, error_kind, error_message, created_at, updated_at`

func (c *Client) Create(ctx context.Context, p *models.Project) error {
	row, err := marshalProject(p)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO video_projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, row.args()...)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return c.scanOne(c.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM video_projects WHERE id = $1
	`, id))
}

func (c *Client) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Project, error) {
	return c.scanOne(c.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM video_projects WHERE id = $1 AND user_id = $2
	`, id, userID))
}

func (c *Client) List(ctx context.Context, userID uuid.UUID) ([]models.Project, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+projectColumns+` FROM video_projects
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()
	return c.scanAll(rows)
}

func (c *Client) Save(ctx context.Context, p *models.Project) error {
	row, err := marshalProject(p)
	if err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE video_projects
		SET status = $2, inputs = $3, analysis = $4, plan = $5, chat_log = $6,
		    active_job = $7, progress = $8, eta_seconds = $9, artifact_ref = $10,
		    error_kind = $11, error_message = $12, updated_at = $13
		WHERE id = $1
	`, p.ID, row.status, row.inputs, row.analysis, row.plan, row.chatLog,
		row.activeJob, row.progress, row.etaSeconds, row.artifactRef,
		row.errorKind, row.errorMessage, row.updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, id, userID uuid.UUID) error {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM video_projects WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) ListByStatus(ctx context.Context, status models.Status) ([]models.Project, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+projectColumns+` FROM video_projects WHERE status = $1
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list projects by status: %w", err)
	}
	defer rows.Close()
	return c.scanAll(rows)
}

func (c *Client) FindByJobID(ctx context.Context, provider, jobID string) (*models.Project, error) {
	return c.scanOne(c.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM video_projects
		WHERE active_job ->> 'provider' = $1 AND active_job ->> 'job_id' = $2
	`, provider, jobID))
}

type projectRow struct {
	id           uuid.UUID
	userID       uuid.UUID
	status       string
	inputs       []byte
	analysis     []byte
	plan         []byte
	chatLog      []byte
	activeJob    []byte
	progress     float64
	etaSeconds   int
	artifactRef  sql.NullString
	errorKind    sql.NullString
	errorMessage sql.NullString
	createdAt    sql.NullTime
	updatedAt    sql.NullTime
}

func (r *projectRow) args() []any {
	return []any{
		r.id, r.userID, r.status, r.inputs, r.analysis, r.plan, r.chatLog,
		r.activeJob, r.progress, r.etaSeconds, r.artifactRef, r.errorKind,
		r.errorMessage, r.createdAt, r.updatedAt,
	}
}

func marshalProject(p *models.Project) (*projectRow, error) {
	inputs, err := json.Marshal(p.Inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inputs: %w", err)
	}
	row := &projectRow{
		id:         p.ID,
		userID:     p.UserID,
		status:     string(p.Status),
		inputs:     inputs,
		progress:   p.Progress,
		etaSeconds: p.EtaSeconds,
		createdAt:  sql.NullTime{Time: p.CreatedAt, Valid: !p.CreatedAt.IsZero()},
		updatedAt:  sql.NullTime{Time: p.UpdatedAt, Valid: !p.UpdatedAt.IsZero()},
	}
	if p.Analysis != nil {
		if row.analysis, err = json.Marshal(p.Analysis); err != nil {
			return nil, fmt.Errorf("failed to marshal analysis: %w", err)
		}
	}
	if p.Plan != nil {
		if row.plan, err = json.Marshal(p.Plan); err != nil {
			return nil, fmt.Errorf("failed to marshal plan: %w", err)
		}
	}
	if p.ChatLog != nil {
		if row.chatLog, err = json.Marshal(p.ChatLog); err != nil {
			return nil, fmt.Errorf("failed to marshal chat log: %w", err)
		}
	}
	if p.ActiveJob != nil {
		if row.activeJob, err = json.Marshal(p.ActiveJob); err != nil {
			return nil, fmt.Errorf("failed to marshal active job: %w", err)
		}
	}
	if p.ArtifactRef != "" {
		row.artifactRef = sql.NullString{String: p.ArtifactRef, Valid: true}
	}
	if p.Error != nil {
		row.errorKind = sql.NullString{String: p.Error.Kind, Valid: true}
		row.errorMessage = sql.NullString{String: p.Error.Message, Valid: true}
	}
	return row, nil
}

func unmarshalProject(r *projectRow) (*models.Project, error) {
	p := &models.Project{
		ID:         r.id,
		UserID:     r.userID,
		Status:     models.Status(r.status),
		Progress:   r.progress,
		EtaSeconds: r.etaSeconds,
	}
	if len(r.inputs) > 0 {
		if err := json.Unmarshal(r.inputs, &p.Inputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
		}
	}
	if len(r.analysis) > 0 {
		p.Analysis = &models.AnalysisResult{}
		if err := json.Unmarshal(r.analysis, p.Analysis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
		}
	}
	if len(r.plan) > 0 {
		p.Plan = &models.GenerationPlan{}
		if err := json.Unmarshal(r.plan, p.Plan); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
	}
	if len(r.chatLog) > 0 {
		if err := json.Unmarshal(r.chatLog, &p.ChatLog); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat log: %w", err)
		}
	}
	if len(r.activeJob) > 0 {
		p.ActiveJob = &models.ActiveJob{}
		if err := json.Unmarshal(r.activeJob, p.ActiveJob); err != nil {
			return nil, fmt.Errorf("failed to unmarshal active job: %w", err)
		}
	}
	if r.artifactRef.Valid {
		p.ArtifactRef = r.artifactRef.String
	}
	if r.errorKind.Valid || r.errorMessage.Valid {
		p.Error = &models.ErrorInfo{Kind: r.errorKind.String, Message: r.errorMessage.String}
	}
	if r.createdAt.Valid {
		p.CreatedAt = r.createdAt.Time
	}
	if r.updatedAt.Valid {
		p.UpdatedAt = r.updatedAt.Time
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner) (*models.Project, error) {
	var r projectRow
	err := s.Scan(
		&r.id, &r.userID, &r.status, &r.inputs, &r.analysis, &r.plan,
		&r.chatLog, &r.activeJob, &r.progress, &r.etaSeconds,
		&r.artifactRef, &r.errorKind, &r.errorMessage, &r.createdAt, &r.updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return unmarshalProject(&r)
}

func (c *Client) scanOne(row *sql.Row) (*models.Project, error) {
	return scanRow(row)
}

func (c *Client) scanAll(rows *sql.Rows) ([]models.Project, error) {
	var out []models.Project
	for rows.Next() {
		p, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return out, nil
}
