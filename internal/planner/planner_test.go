package planner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgefund/internal/pipeline"
	"bridgefund/internal/projects"
	"bridgefund/internal/research"
	"bridgefund/internal/schema"
	"bridgefund/internal/schema/schematest"
)

// fakeAPI scripts plan responses per stage and records every call.
type fakeAPI struct {
	mu sync.Mutex

	plans      map[string]*PlanResponse
	planErr    error
	saveErr    error
	publishErr error
	sources    []research.Source

	planReqs    []pipeline.Request
	saves       []projects.SaveDraftRequest
	publishes   []projects.PublishRequest
	researchFor [][]string
}

func (f *fakeAPI) Plan(ctx context.Context, req pipeline.Request) (*PlanResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planReqs = append(f.planReqs, req)
	if f.planErr != nil {
		return nil, f.planErr
	}
	if resp, ok := f.plans[req.Stage]; ok {
		return resp, nil
	}
	return &PlanResponse{OK: false, Error: "Invalid stage"}, nil
}

func (f *fakeAPI) SaveDraft(ctx context.Context, req projects.SaveDraftRequest) (projects.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, req)
	if f.saveErr != nil {
		return projects.SaveResult{}, f.saveErr
	}
	return projects.SaveResult{Updated: true}, nil
}

func (f *fakeAPI) Publish(ctx context.Context, req projects.PublishRequest) (projects.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes = append(f.publishes, req)
	if f.publishErr != nil {
		return projects.SaveResult{}, f.publishErr
	}
	return projects.SaveResult{Updated: true}, nil
}

func (f *fakeAPI) Research(ctx context.Context, claims []string) ([]research.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.researchFor = append(f.researchFor, claims)
	return f.sources, nil
}

func okData(t *testing.T, v any) *PlanResponse {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return &PlanResponse{OK: true, Data: data}
}

func newFake(t *testing.T) *fakeAPI {
	return &fakeAPI{plans: map[string]*PlanResponse{
		pipeline.StageOneShot: okData(t, schematest.Stage(schema.KeyOneShot)),
		pipeline.StageRewrite: okData(t, map[string]any{"markdown": "New one.\n\n  \nNew two.\n\nNew three."}),
		pipeline.StageTone:    okData(t, schematest.Stage(schema.KeySafetyNotes)),
	}}
}

func generated(t *testing.T, api *fakeAPI, opts Options) *Planner {
	t.Helper()
	p := New(api, opts)
	require.NoError(t, p.ProcessInput(context.Background(), "The night bus was cut and nobody asked us."))
	return p
}

// =============================================================================
// PROCESS INPUT
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	p := New(&fakeAPI{}, Options{})
	s := p.State()
	assert.NotEmpty(t, s.ProjectID)
	assert.Equal(t, schema.EmphasisBalanced, s.Emphasis)
	assert.Nil(t, s.Output)
	assert.Zero(t, s.Version)

	other := New(&fakeAPI{}, Options{})
	assert.NotEqual(t, s.ProjectID, other.State().ProjectID)
}

func TestNew_ReusedProjectIDStartsEmpty(t *testing.T) {
	api := newFake(t)
	p := New(api, Options{ProjectID: "existing-draft"})

	s := p.State()
	assert.Equal(t, "existing-draft", s.ProjectID)
	assert.Nil(t, s.Output, "stored bundle is not loaded")
	assert.Zero(t, s.Version)
	assert.Empty(t, api.planReqs)
	assert.Empty(t, api.saves)

	require.NoError(t, p.ProcessInput(context.Background(), "The night bus was cut."))
	require.Len(t, api.saves, 1)
	assert.Equal(t, "existing-draft", api.saves[0].ProjectID)
	require.NotNil(t, api.saves[0].Version)
	assert.Equal(t, 0, *api.saves[0].Version)
}

func TestProcessInput_StoresBundleAndAutosaves(t *testing.T) {
	api := newFake(t)
	p := generated(t, api, Options{ProjectID: "p1", Emphasis: schema.EmphasisEmpathy})

	s := p.State()
	require.NotNil(t, s.Output)
	assert.False(t, s.Loading)
	assert.Empty(t, s.Error)
	assert.Equal(t, 1, s.Version)
	assert.Len(t, s.Output.Keys(), 7)

	require.Len(t, api.planReqs, 1)
	assert.Equal(t, pipeline.StageOneShot, api.planReqs[0].Stage)
	assert.Equal(t, "empathy", api.planReqs[0].Emphasis)

	require.Len(t, api.saves, 1)
	save := api.saves[0]
	assert.Equal(t, "p1", save.ProjectID)
	assert.Equal(t, pipeline.StageOneShot, save.Stage)
	require.NotNil(t, save.Version)
	assert.Equal(t, 0, *save.Version)
	assert.Contains(t, save.BundlePatch, schema.KeyBridgeStory)
}

func TestProcessInput_WarningBecomesNotice(t *testing.T) {
	api := newFake(t)
	api.plans[pipeline.StageOneShot].Warning = pipeline.FallbackWarning
	p := generated(t, api, Options{})

	s := p.State()
	assert.True(t, IsNotice(s.Error))
	assert.Contains(t, s.Error, pipeline.FallbackWarning)
	assert.NotNil(t, s.Output)
}

func TestProcessInput_FallbackIsTerminalByDefault(t *testing.T) {
	api := newFake(t)
	api.plans[pipeline.StageOneShot] = &PlanResponse{OK: false, Fallback: true, Error: "oneshot output failed validation"}

	p := New(api, Options{})
	err := p.ProcessInput(context.Background(), "text")
	require.Error(t, err)

	s := p.State()
	assert.Nil(t, s.Output)
	assert.False(t, s.Loading)
	assert.Equal(t, "oneshot output failed validation", s.Error)
	assert.False(t, IsNotice(s.Error))
	assert.Len(t, api.planReqs, 1)
	assert.Empty(t, api.saves)
}

func TestProcessInput_StagedFallback(t *testing.T) {
	api := newFake(t)
	api.plans[pipeline.StageOneShot] = &PlanResponse{OK: false, Fallback: true, Error: "bad"}
	staged := okData(t, schematest.Stage(schema.KeyOneShot))
	staged.Warnings = []string{"steelman: " + pipeline.FallbackWarning}
	api.plans[pipeline.StageStaged] = staged

	p := generated(t, api, Options{StagedFallback: true})

	require.Len(t, api.planReqs, 2)
	assert.Equal(t, pipeline.StageStaged, api.planReqs[1].Stage)
	s := p.State()
	assert.NotNil(t, s.Output)
	assert.True(t, IsNotice(s.Error))
	assert.Equal(t, pipeline.StageStaged, api.saves[0].Stage)
}

func TestProcessInput_TransportError(t *testing.T) {
	api := newFake(t)
	api.planErr = errors.New("connection refused")

	p := New(api, Options{})
	err := p.ProcessInput(context.Background(), "text")
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, "connection refused", p.State().Error)
	assert.False(t, p.State().Loading)
}

func TestAutosaveFailure_SwallowedAndVersionHeld(t *testing.T) {
	api := newFake(t)
	api.saveErr = errors.New("db down")

	p := generated(t, api, Options{})
	s := p.State()
	assert.NotNil(t, s.Output, "save failures do not block")
	assert.Empty(t, s.Error)
	assert.Zero(t, s.Version)

	api.saveErr = nil
	require.NoError(t, p.CheckTone(context.Background()))
	assert.Equal(t, 1, p.State().Version)
	assert.Equal(t, 0, *api.saves[len(api.saves)-1].Version)
}

// =============================================================================
// REGENERATE AND TONE
// =============================================================================

func TestRegenerateBridgeStory_ReplacesOnlyParagraphsAndEmphasis(t *testing.T) {
	api := newFake(t)
	p := generated(t, api, Options{})
	before := p.State().Output

	require.NoError(t, p.RegenerateBridgeStory(context.Background(), schema.EmphasisEfficiency))

	s := p.State()
	bs := s.Output.BridgeStory
	assert.Equal(t, []string{"New one.", "New two.", "New three."}, bs.Paragraphs)
	assert.Equal(t, schema.EmphasisEfficiency, bs.Emphasis)
	assert.Equal(t, before.BridgeStory.ThinEdge, bs.ThinEdge)
	assert.Equal(t, before.Goals, s.Output.Goals)
	assert.Equal(t, schema.EmphasisEfficiency, s.Emphasis)
	assert.Equal(t, 2, s.Version)

	rewriteReq := api.planReqs[len(api.planReqs)-1]
	assert.Equal(t, pipeline.StageRewrite, rewriteReq.Stage)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", rewriteReq.Input)
	assert.Equal(t, "efficiency", rewriteReq.Emphasis)

	save := api.saves[len(api.saves)-1]
	assert.Equal(t, pipeline.StageRewrite, save.Stage)
	assert.Equal(t, "efficiency", save.Emphasis)
	assert.Equal(t, []string{schema.KeyBridgeStory}, keys(save.BundlePatch))
}

func TestRegenerateBridgeStory_RequiresBundle(t *testing.T) {
	api := newFake(t)
	p := New(api, Options{})

	err := p.RegenerateBridgeStory(context.Background(), schema.EmphasisEmpathy)
	assert.ErrorIs(t, err, ErrNoBundle)
	assert.Empty(t, api.planReqs)
}

func TestRegenerateBridgeStory_InvalidEmphasis(t *testing.T) {
	api := newFake(t)
	p := generated(t, api, Options{})

	err := p.RegenerateBridgeStory(context.Background(), "furious")
	assert.Error(t, err)
	assert.Len(t, api.planReqs, 1)
}

func TestCheckTone_StoresSafetyNotes(t *testing.T) {
	api := newFake(t)
	p := generated(t, api, Options{})

	require.NoError(t, p.CheckTone(context.Background()))

	s := p.State()
	require.NotNil(t, s.Output.SafetyNotes)
	assert.Equal(t, schema.OverallCaution, s.Output.SafetyNotes.Overall)

	toneReq := api.planReqs[len(api.planReqs)-1]
	assert.Equal(t, pipeline.StageTone, toneReq.Stage)
	assert.Contains(t, toneReq.Input, "Night workers need a way home")

	save := api.saves[len(api.saves)-1]
	require.NotNil(t, save.ToneScores)
	assert.Equal(t, 4.0, save.ToneScores.Heat)
	assert.Equal(t, []string{schema.KeySafetyNotes}, keys(save.BundlePatch))
}

func TestCheckTone_ServerError(t *testing.T) {
	api := newFake(t)
	p := generated(t, api, Options{})
	api.plans[pipeline.StageTone] = &PlanResponse{OK: false, Error: "safety_notes output failed validation"}

	err := p.CheckTone(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "safety_notes output failed validation", p.State().Error)
	assert.Nil(t, p.State().Output.SafetyNotes)
}

// =============================================================================
// SOURCES AND PUBLISH
// =============================================================================

func TestAttachSources(t *testing.T) {
	api := newFake(t)
	api.sources = []research.Source{{Label: "Ridership", URL: "https://r.example"}}
	p := generated(t, api, Options{})

	require.NoError(t, p.AttachSources(context.Background()))

	require.Len(t, api.researchFor, 1)
	assert.Equal(t, []string{"Late buses run mostly empty.", "The council does not care about workers."}, api.researchFor[0])
	assert.Equal(t, api.sources, p.State().Sources)

	save := api.saves[len(api.saves)-1]
	assert.Equal(t, api.sources, save.Sources)
	assert.Empty(t, save.BundlePatch)
}

func TestPublish_SavesThenPublishes(t *testing.T) {
	api := newFake(t)
	p := generated(t, api, Options{ProjectID: "p9", ImageURL: "https://cdn.example/x.png"})
	savesBefore := len(api.saves)

	res, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Updated)

	require.Len(t, api.saves, savesBefore+1, "explicit save precedes publish")
	assert.Equal(t, "publish", api.saves[len(api.saves)-1].Stage)

	require.Len(t, api.publishes, 1)
	pub := api.publishes[0]
	assert.Equal(t, "p9", pub.ProjectID)
	assert.Equal(t, "Night workers need a way home that the city can afford.", pub.Title)
	assert.Equal(t, "First paragraph.", pub.TLDR)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", pub.BodyMarkdown)
	assert.Equal(t, []string{"Late buses run mostly empty."}, pub.ToVerifyItems)
	assert.Equal(t, "https://cdn.example/x.png", pub.ImageURL)
}

func TestPublish_WithoutBundleMakesNoCall(t *testing.T) {
	api := newFake(t)
	p := New(api, Options{})

	_, err := p.Publish(context.Background())
	assert.ErrorIs(t, err, ErrNoBundle)
	assert.Empty(t, api.saves)
	assert.Empty(t, api.publishes)
	assert.Equal(t, ErrNoBundle.Error(), p.State().Error)
}

func TestPublish_PropagatesEndpointError(t *testing.T) {
	api := newFake(t)
	p := generated(t, api, Options{})
	api.publishErr = errors.New("database is locked")

	_, err := p.Publish(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Contains(t, p.State().Error, "database is locked")
	assert.False(t, p.State().Loading)
}

// =============================================================================
// LIFECYCLE AND HELPERS
// =============================================================================

func TestClose_DiscardsLaterUpdates(t *testing.T) {
	api := newFake(t)
	p := New(api, Options{})
	p.Close()

	require.NoError(t, p.ProcessInput(context.Background(), "text"))
	s := p.State()
	assert.Nil(t, s.Output)
	assert.Zero(t, s.Version)
	assert.Len(t, api.planReqs, 1, "in-flight work is not cancelled")
}

func TestState_ReturnsCopy(t *testing.T) {
	api := newFake(t)
	p := generated(t, api, Options{})

	s := p.State()
	s.Output.BridgeStory.ThinEdge = "mutated"
	assert.NotEqual(t, "mutated", p.State().Output.BridgeStory.ThinEdge)
}

func TestSplitParagraphs(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d"}, SplitParagraphs("\n a \n\n b c\n \n\n d \n"))
	assert.Empty(t, SplitParagraphs("  "))
}

func TestIsNotice(t *testing.T) {
	assert.True(t, IsNotice(NoticePrefix+"x"))
	assert.False(t, IsNotice("x"))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
