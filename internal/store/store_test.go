package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgefund/internal/research"
	"bridgefund/internal/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverModernc, filepath.Join(t.TempDir(), "nested", "bridgefund.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// OPEN TESTS
// =============================================================================

func TestOpen_CreatesDirectoryAndSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "db.sqlite")

	s, err := Open("", path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, path, s.Path())
	assert.Equal(t, DriverModernc, s.Driver())

	// Reopening runs the idempotent schema again.
	require.NoError(t, s.Close())
	s2, err := Open(DriverModernc, path)
	require.NoError(t, err)
	s2.Close()
}

func TestOpen_MigratesOldProjectsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	old, err := sql.Open(DriverModernc, "file:"+path)
	require.NoError(t, err)
	_, err = old.Exec(`CREATE TABLE projects (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		summary TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		bundle_json TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	require.NoError(t, err)
	require.NoError(t, old.Close())

	s, err := Open(DriverModernc, path)
	require.NoError(t, err)
	defer s.Close()

	for _, m := range pendingMigrations {
		has, err := columnExists(s.db, m.Table, m.Column)
		require.NoError(t, err)
		assert.True(t, has, m.Column)
	}

	ctx := context.Background()
	require.NoError(t, s.InsertProject(ctx, &Project{ID: "legacy", Title: "t", Emphasis: "empathy", ToVerify: []string{"c"}}))
	got, err := s.GetProject(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, "empathy", got.Emphasis)
	assert.Equal(t, []string{"c"}, got.ToVerify)

	applied, err := runMigrations(s.db)
	require.NoError(t, err)
	assert.Zero(t, applied, "second run is a no-op")
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("postgres", filepath.Join(t.TempDir(), "x.db"))
	assert.Error(t, err)
}

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN(DriverMattn, "/tmp/x.db")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1", dsn)

	dsn, err = buildDSN(DriverModernc, "/tmp/x.db")
	require.NoError(t, err)
	assert.Contains(t, dsn, "file:/tmp/x.db?")
	assert.Contains(t, dsn, "_pragma=journal_mode(WAL)")
}

// =============================================================================
// PROJECT TESTS
// =============================================================================

func TestProject_InsertGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &Project{
		ID:          "p1",
		OwnerID:     "u1",
		Title:       "Night buses",
		Summary:     "First paragraph.",
		Description: "First paragraph.\n\nSecond paragraph.",
		Bundle: map[string]any{
			"bridge_story": map[string]any{"thin_edge": "Night buses", "paragraphs": []any{"First paragraph."}},
		},
		RoutineStage:   "oneshot",
		Sources:        []research.Source{{Label: "City data", URL: "https://city.example"}},
		ToneScores:     &schema.ToneScores{Heat: 2, Empathy: 8, Respect: 9},
		Emphasis:       "balanced",
		ToVerify:       []string{"fares doubled"},
		SupporterCount: 4,
	}
	require.NoError(t, s.InsertProject(ctx, p))
	assert.Equal(t, StatusDraft, p.Status)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerID)
	assert.Equal(t, "Night buses", got.Title)
	assert.Equal(t, StatusDraft, got.Status)
	assert.Equal(t, p.Bundle, got.Bundle)
	assert.Equal(t, p.Sources, got.Sources)
	assert.Equal(t, p.ToneScores, got.ToneScores)
	assert.Equal(t, []string{"fares doubled"}, got.ToVerify)
	assert.Equal(t, 4, got.SupporterCount)
	assert.False(t, got.RoutineComplete)
	assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Second)
}

func TestProject_NullableColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertProject(ctx, &Project{ID: "bare", Title: "t", Summary: "s", Description: "d"}))

	got, err := s.GetProject(ctx, "bare")
	require.NoError(t, err)
	assert.Nil(t, got.Bundle)
	assert.Nil(t, got.Sources)
	assert.Nil(t, got.ToneScores)
	assert.Nil(t, got.ToVerify)
}

func TestProject_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetProject(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProject_InsertDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertProject(ctx, &Project{ID: "dup", Title: "a", Summary: "b", Description: "c"}))
	assert.Error(t, s.InsertProject(ctx, &Project{ID: "dup", Title: "a", Summary: "b", Description: "c"}))
}

func TestProject_Update(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertProject(ctx, &Project{ID: "p", Title: "a", Summary: "b", Description: "c", SupporterCount: 9}))

	p, err := s.GetProject(ctx, "p")
	require.NoError(t, err)
	p.Status = StatusPublished
	p.RoutineComplete = true
	p.Title = "Published"
	require.NoError(t, s.UpdateProject(ctx, p))

	got, err := s.GetProject(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, got.Status)
	assert.True(t, got.RoutineComplete)
	assert.Equal(t, "Published", got.Title)
	assert.Equal(t, 9, got.SupporterCount)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestProject_UpdateMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateProject(context.Background(), &Project{ID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, spec := range []struct{ id, status string }{
		{"a", StatusDraft},
		{"b", StatusPublished},
		{"c", StatusDraft},
	} {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.InsertProject(ctx, &Project{
			ID: spec.id, Title: spec.id, Summary: "s", Description: "d", Status: spec.status,
			CreatedAt: ts, UpdatedAt: ts,
		}))
	}

	all, err := s.ListProjects(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	drafts, err := s.ListProjects(ctx, StatusDraft)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	for _, p := range drafts {
		assert.Equal(t, StatusDraft, p.Status)
	}

	published, err := s.ListProjects(ctx, StatusPublished)
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, "b", published[0].ID)
}

// =============================================================================
// HISTORY AND IMAGE TESTS
// =============================================================================

func TestHistory_AppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertProject(ctx, &Project{ID: "h", Title: "a", Summary: "b", Description: "c"}))

	require.NoError(t, s.AppendHistory(ctx, "h", 0, map[string]any{"goals": map[string]any{"goals": []any{}}}))
	require.NoError(t, s.AppendHistory(ctx, "h", 1, nil))

	entries, err := s.History(ctx, "h")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Version)
	assert.Contains(t, entries[0].Snapshot, "goals")
	assert.Equal(t, 1, entries[1].Version)
	assert.Nil(t, entries[1].Snapshot)

	other, err := s.History(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpsertFirstImage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertProject(ctx, &Project{ID: "img", Title: "a", Summary: "b", Description: "c"}))

	require.NoError(t, s.UpsertFirstImage(ctx, "img", "https://cdn.example/1.png"))
	images, err := s.Images(ctx, "img")
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, 0, images[0].DisplayOrder)

	require.NoError(t, s.UpsertFirstImage(ctx, "img", "https://cdn.example/2.png"))
	images, err = s.Images(ctx, "img")
	require.NoError(t, err)
	require.Len(t, images, 1, "existing first image is updated, not duplicated")
	assert.Equal(t, "https://cdn.example/2.png", images[0].URL)
}

func TestUpsertFirstImage_UpdatesLowestOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertProject(ctx, &Project{ID: "img", Title: "a", Summary: "b", Description: "c"}))

	_, err := s.db.Exec(`INSERT INTO project_images (project_id, url, display_order) VALUES
		('img', 'https://cdn.example/second.png', 2),
		('img', 'https://cdn.example/first.png', 1)`)
	require.NoError(t, err)

	require.NoError(t, s.UpsertFirstImage(ctx, "img", "https://cdn.example/new.png"))

	images, err := s.Images(ctx, "img")
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "https://cdn.example/new.png", images[0].URL)
	assert.Equal(t, 1, images[0].DisplayOrder)
	assert.Equal(t, "https://cdn.example/second.png", images[1].URL)
}

// =============================================================================
// USER TESTS
// =============================================================================

func TestUserRoles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUserRole(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetUserRole(ctx, "alice", RoleMember))
	role, err := s.GetUserRole(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, RoleMember, role)

	require.NoError(t, s.SetUserRole(ctx, "alice", RoleAdmin))
	role, err = s.GetUserRole(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
}

func TestSetUserRole_Invalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.SetUserRole(ctx, "", RoleAdmin))
	assert.Error(t, s.SetUserRole(ctx, "bob", "superuser"))
}
