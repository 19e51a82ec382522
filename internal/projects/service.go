// Package projects implements draft autosave and publishing of Bridge Story
// projects on top of the document store.
package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bridgefund/internal/logging"
	"bridgefund/internal/research"
	"bridgefund/internal/schema"
	"bridgefund/internal/store"
)

// Defaults used when a first save carries no bridge story.
const (
	DefaultTitle       = "Draft Bridge Story"
	DefaultSummary     = "A Bridge Story in progress."
	DefaultDescription = "This Bridge Story is still being drafted."
)

// Repository is the subset of the store used by Service.
type Repository interface {
	GetProject(ctx context.Context, id string) (*store.Project, error)
	InsertProject(ctx context.Context, p *store.Project) error
	UpdateProject(ctx context.Context, p *store.Project) error
	AppendHistory(ctx context.Context, projectID string, version int, snapshot map[string]any) error
	UpsertFirstImage(ctx context.Context, projectID, url string) error
}

// SaveDraftRequest is an autosave from the planner.
type SaveDraftRequest struct {
	ProjectID   string             `json:"projectId"`
	OwnerID     string             `json:"-"`
	Stage       string             `json:"stage"`
	BundlePatch map[string]any     `json:"bundlePatch"`
	Sources     []research.Source  `json:"sources,omitempty"`
	ToneScores  *schema.ToneScores `json:"toneScores,omitempty"`
	Version     *int               `json:"version,omitempty"`
	Emphasis    string             `json:"emphasis,omitempty"`
	ImageURL    string             `json:"imageUrl,omitempty"`
}

// PublishRequest finalizes a project.
type PublishRequest struct {
	ProjectID     string   `json:"projectId"`
	OwnerID       string   `json:"-"`
	Title         string   `json:"title"`
	TLDR          string   `json:"tldr"`
	BodyMarkdown  string   `json:"body_markdown"`
	ToVerifyItems []string `json:"to_verify_items,omitempty"`
	ImageURL      string   `json:"imageUrl,omitempty"`
}

// SaveResult reports whether a row was inserted or updated.
type SaveResult struct {
	Created bool `json:"created,omitempty"`
	Updated bool `json:"updated,omitempty"`
}

var (
	// ErrMissingProjectID is returned when a request has no project id.
	ErrMissingProjectID = errors.New("projectId is required")
	// ErrInvalidPatch is returned when a bundle patch names an unknown key or
	// carries a stage object that fails its schema.
	ErrInvalidPatch = errors.New("invalid bundle patch")
)

// patchAliases maps stage names that are not output keys onto the key
// their result is stored under.
var patchAliases = map[string]string{
	"tone": schema.KeySafetyNotes,
}

// Service persists drafts and publishes projects. It reads then writes with
// no transaction: one writer per project id is assumed, and concurrent saves
// for the same id can lose updates.
type Service struct {
	repo Repository
}

// NewService creates a Service over repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SaveDraft upserts a draft and merges the bundle patch into it.
func (s *Service) SaveDraft(ctx context.Context, req SaveDraftRequest) (SaveResult, error) {
	if req.ProjectID == "" {
		return SaveResult{}, ErrMissingProjectID
	}

	patch, err := schema.Sanitize(req.BundlePatch)
	if err != nil {
		logging.ProjectsDebug("sanitize failed for %s, using patch as sent: %v", req.ProjectID, err)
		patch = req.BundlePatch
	}
	patch, err = checkPatch(patch)
	if err != nil {
		logging.Audit().ProjectSave(req.ProjectID, false, false, err.Error())
		return SaveResult{}, err
	}

	existing, err := s.repo.GetProject(ctx, req.ProjectID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.insertDraft(ctx, req, patch)
	case err != nil:
		logging.Audit().ProjectSave(req.ProjectID, false, false, err.Error())
		return SaveResult{}, err
	}

	if req.Version != nil {
		if err := s.repo.AppendHistory(ctx, existing.ID, *req.Version, existing.Bundle); err != nil {
			logging.Audit().ProjectSave(req.ProjectID, false, false, err.Error())
			return SaveResult{}, err
		}
	}

	existing.Bundle = MergeBundle(existing.Bundle, patch)
	if req.Stage != "" {
		existing.RoutineStage = req.Stage
	}
	if req.Sources != nil {
		existing.Sources = req.Sources
	}
	if req.ToneScores != nil {
		existing.ToneScores = req.ToneScores
	}
	if req.Emphasis != "" {
		existing.Emphasis = req.Emphasis
	}

	if err := s.repo.UpdateProject(ctx, existing); err != nil {
		logging.Audit().ProjectSave(req.ProjectID, false, false, err.Error())
		return SaveResult{}, err
	}
	if err := s.attachImage(ctx, req.ProjectID, req.ImageURL); err != nil {
		return SaveResult{}, err
	}

	logging.Projects("updated draft %s (stage=%s, keys=%d)", req.ProjectID, req.Stage, len(patch))
	logging.Audit().ProjectSave(req.ProjectID, false, true, "")
	return SaveResult{Updated: true}, nil
}

// checkPatch validates every stage object of a sanitized patch against its
// schema. Aliased keys are renamed to their output key.
func checkPatch(patch map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(patch))
	for key, v := range patch {
		target := key
		if alias, ok := patchAliases[key]; ok {
			target = alias
		}
		if !schema.IsBundleKey(target) {
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidPatch, key)
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidPatch, key)
		}
		if _, err := schema.Validate(target, obj); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
		}
		if _, dup := out[target]; dup {
			return nil, fmt.Errorf("%w: %s given twice", ErrInvalidPatch, target)
		}
		out[target] = obj
	}
	return out, nil
}

func (s *Service) insertDraft(ctx context.Context, req SaveDraftRequest, patch map[string]any) (SaveResult, error) {
	title, summary, description := DeriveDisplay(patch)

	p := &store.Project{
		ID:           req.ProjectID,
		OwnerID:      req.OwnerID,
		Title:        title,
		Summary:      summary,
		Description:  description,
		Status:       store.StatusDraft,
		Bundle:       MergeBundle(nil, patch),
		RoutineStage: req.Stage,
		Sources:      req.Sources,
		ToneScores:   req.ToneScores,
		Emphasis:     req.Emphasis,
	}
	if err := s.repo.InsertProject(ctx, p); err != nil {
		logging.Audit().ProjectSave(req.ProjectID, true, false, err.Error())
		return SaveResult{}, err
	}
	if err := s.attachImage(ctx, req.ProjectID, req.ImageURL); err != nil {
		return SaveResult{}, err
	}

	logging.Projects("created draft %s (stage=%s)", req.ProjectID, req.Stage)
	logging.Audit().ProjectSave(req.ProjectID, true, true, "")
	return SaveResult{Created: true}, nil
}

// Publish creates or finalizes a project with status published. Fields it
// does not set, such as the bundle and supporter count, are left untouched.
func (s *Service) Publish(ctx context.Context, req PublishRequest) (SaveResult, error) {
	if req.ProjectID == "" {
		return SaveResult{}, ErrMissingProjectID
	}

	existing, err := s.repo.GetProject(ctx, req.ProjectID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		p := &store.Project{
			ID:              req.ProjectID,
			OwnerID:         req.OwnerID,
			Title:           req.Title,
			Summary:         req.TLDR,
			Description:     req.BodyMarkdown,
			Status:          store.StatusPublished,
			RoutineComplete: true,
			ToVerify:        req.ToVerifyItems,
		}
		if err := s.repo.InsertProject(ctx, p); err != nil {
			logging.Audit().ProjectPublish(req.ProjectID, false, err.Error())
			return SaveResult{}, err
		}
		if err := s.attachImage(ctx, req.ProjectID, req.ImageURL); err != nil {
			return SaveResult{}, err
		}
		logging.Projects("published new project %s", req.ProjectID)
		logging.Audit().ProjectPublish(req.ProjectID, true, "")
		return SaveResult{Created: true}, nil
	case err != nil:
		logging.Audit().ProjectPublish(req.ProjectID, false, err.Error())
		return SaveResult{}, err
	}

	existing.Title = req.Title
	existing.Summary = req.TLDR
	existing.Description = req.BodyMarkdown
	existing.ToVerify = req.ToVerifyItems
	existing.Status = store.StatusPublished
	existing.RoutineComplete = true

	if err := s.repo.UpdateProject(ctx, existing); err != nil {
		logging.Audit().ProjectPublish(req.ProjectID, false, err.Error())
		return SaveResult{}, err
	}
	if err := s.attachImage(ctx, req.ProjectID, req.ImageURL); err != nil {
		return SaveResult{}, err
	}

	logging.Projects("published draft %s", req.ProjectID)
	logging.Audit().ProjectPublish(req.ProjectID, true, "")
	return SaveResult{Updated: true}, nil
}

func (s *Service) attachImage(ctx context.Context, projectID, url string) error {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	if err := s.repo.UpsertFirstImage(ctx, projectID, url); err != nil {
		return fmt.Errorf("failed to attach image: %w", err)
	}
	return nil
}

// MergeBundle returns a copy of stored with every top-level key of patch
// replacing the stored value. Keys absent from patch are kept.
func MergeBundle(stored, patch map[string]any) map[string]any {
	out := make(map[string]any, len(stored)+len(patch))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// DeriveDisplay picks title, summary and description from a bundle's
// bridge_story, falling back to placeholders.
func DeriveDisplay(bundle map[string]any) (title, summary, description string) {
	title, summary, description = DefaultTitle, DefaultSummary, DefaultDescription

	story, ok := bundle[schema.KeyBridgeStory].(map[string]any)
	if !ok {
		return
	}
	if edge, ok := story["thin_edge"].(string); ok && strings.TrimSpace(edge) != "" {
		title = strings.TrimSpace(edge)
	}

	var paragraphs []string
	if raw, ok := story["paragraphs"].([]any); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok && strings.TrimSpace(s) != "" {
				paragraphs = append(paragraphs, strings.TrimSpace(s))
			}
		}
	}
	if len(paragraphs) > 0 {
		summary = paragraphs[0]
		description = strings.Join(paragraphs, "\n\n")
	}
	return
}
