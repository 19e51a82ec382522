package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bridgefund/internal/logging"
	"bridgefund/internal/research"
	"bridgefund/internal/schema"
)

// Project statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Project is a row of the projects table.
type Project struct {
	ID              string             `json:"id"`
	OwnerID         string             `json:"owner_id,omitempty"`
	Title           string             `json:"title"`
	Summary         string             `json:"summary"`
	Description     string             `json:"description"`
	Status          string             `json:"status"`
	Bundle          map[string]any     `json:"bundle,omitempty"`
	RoutineStage    string             `json:"routine_stage,omitempty"`
	RoutineComplete bool               `json:"routine_complete"`
	Sources         []research.Source  `json:"sources,omitempty"`
	ToneScores      *schema.ToneScores `json:"tone_scores,omitempty"`
	Emphasis        string             `json:"emphasis,omitempty"`
	ToVerify        []string           `json:"to_verify,omitempty"`
	SupporterCount  int                `json:"supporter_count"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// HistoryEntry is a bundle snapshot taken before a versioned merge.
type HistoryEntry struct {
	ID        int64          `json:"id"`
	ProjectID string         `json:"project_id"`
	Version   int            `json:"version"`
	Snapshot  map[string]any `json:"snapshot"`
	CreatedAt time.Time      `json:"created_at"`
}

// Image is a row of project_images.
type Image struct {
	ID           int64  `json:"id"`
	ProjectID    string `json:"project_id"`
	URL          string `json:"url"`
	DisplayOrder int    `json:"display_order"`
}

const projectColumns = `id, owner_id, title, summary, description, status, bundle_json,
	routine_stage, routine_complete, sources_json, tone_json, emphasis, to_verify_json,
	supporter_count, created_at, updated_at`

// GetProject returns the project with the given id or ErrNotFound.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project %s: %w", id, err)
	}
	return p, nil
}

// InsertProject inserts a new project. CreatedAt and UpdatedAt are set when zero.
func (s *Store) InsertProject(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}

	cols, err := encodeProject(p)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Title, p.Summary, p.Description, p.Status, cols.bundle,
		p.RoutineStage, p.RoutineComplete, cols.sources, cols.tone, p.Emphasis, cols.toVerify,
		p.SupporterCount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project %s: %w", p.ID, err)
	}
	logging.StoreDebug("inserted project %s (status=%s)", p.ID, p.Status)
	return nil
}

// UpdateProject overwrites every mutable column of an existing project.
// Callers load the row first so fields they do not touch are written back
// unchanged. Returns ErrNotFound when no row matches.
func (s *Store) UpdateProject(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = time.Now().UTC()
	cols, err := encodeProject(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET
			owner_id = ?, title = ?, summary = ?, description = ?, status = ?, bundle_json = ?,
			routine_stage = ?, routine_complete = ?, sources_json = ?, tone_json = ?,
			emphasis = ?, to_verify_json = ?, supporter_count = ?, updated_at = ?
		WHERE id = ?`,
		p.OwnerID, p.Title, p.Summary, p.Description, p.Status, cols.bundle,
		p.RoutineStage, p.RoutineComplete, cols.sources, cols.tone,
		p.Emphasis, cols.toVerify, p.SupporterCount, p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	logging.StoreDebug("updated project %s (status=%s)", p.ID, p.Status)
	return nil
}

// ListProjects returns projects, newest first. An empty status lists all.
func (s *Store) ListProjects(ctx context.Context, status string) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AppendHistory records a snapshot of the bundle as it was before a merge.
func (s *Store) AppendHistory(ctx context.Context, projectID string, version int, snapshot map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := marshalNullable(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO project_history (project_id, version, snapshot_json, created_at)
		VALUES (?, ?, ?, ?)`,
		projectID, version, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append history for %s: %w", projectID, err)
	}
	return nil
}

// History returns the snapshots for a project in insertion order.
func (s *Store) History(ctx context.Context, projectID string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, version, snapshot_json, created_at
		FROM project_history WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e    HistoryEntry
			snap sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Version, &snap, &e.CreatedAt); err != nil {
			return nil, err
		}
		if snap.Valid && snap.String != "" {
			if err := json.Unmarshal([]byte(snap.String), &e.Snapshot); err != nil {
				return nil, fmt.Errorf("corrupt snapshot %d: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertFirstImage points the lowest-ordered image at url, inserting one at
// display_order 0 when the project has none.
func (s *Store) UpsertFirstImage(ctx context.Context, projectID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM project_images WHERE project_id = ?
		ORDER BY display_order, id LIMIT 1`, projectID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO project_images (project_id, url, display_order) VALUES (?, ?, 0)`,
			projectID, url)
	case err == nil:
		_, err = s.db.ExecContext(ctx, `UPDATE project_images SET url = ? WHERE id = ?`, url, id)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert image for %s: %w", projectID, err)
	}
	return nil
}

// Images returns a project's images ordered by display_order.
func (s *Store) Images(ctx context.Context, projectID string) ([]Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, url, display_order FROM project_images
		WHERE project_id = ? ORDER BY display_order, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.ProjectID, &img.URL, &img.DisplayOrder); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

type encodedColumns struct {
	bundle, sources, tone, toVerify sql.NullString
}

func encodeProject(p *Project) (encodedColumns, error) {
	var (
		c   encodedColumns
		err error
	)
	if c.bundle, err = marshalNullable(p.Bundle); err != nil {
		return c, fmt.Errorf("failed to encode bundle: %w", err)
	}
	if c.sources, err = marshalNullable(p.Sources); err != nil {
		return c, fmt.Errorf("failed to encode sources: %w", err)
	}
	if c.tone, err = marshalNullable(p.ToneScores); err != nil {
		return c, fmt.Errorf("failed to encode tone scores: %w", err)
	}
	if c.toVerify, err = marshalNullable(p.ToVerify); err != nil {
		return c, fmt.Errorf("failed to encode to_verify: %w", err)
	}
	return c, nil
}

// marshalNullable stores nil values as SQL NULL.
func marshalNullable[T any](v T) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*Project, error) {
	var p Project
	var bundleJSON, sources, tone, toVerify sql.NullString
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Summary, &p.Description, &p.Status, &bundleJSON,
		&p.RoutineStage, &p.RoutineComplete, &sources, &tone, &p.Emphasis, &toVerify,
		&p.SupporterCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalNullable(bundleJSON, &p.Bundle); err != nil {
		return nil, fmt.Errorf("corrupt bundle: %w", err)
	}
	if err := unmarshalNullable(sources, &p.Sources); err != nil {
		return nil, fmt.Errorf("corrupt sources: %w", err)
	}
	if err := unmarshalNullable(tone, &p.ToneScores); err != nil {
		return nil, fmt.Errorf("corrupt tone scores: %w", err)
	}
	if err := unmarshalNullable(toVerify, &p.ToVerify); err != nil {
		return nil, fmt.Errorf("corrupt to_verify: %w", err)
	}
	return &p, nil
}
