// Package planner drives one Bridge Story session from the client side:
// generate, refine, autosave and publish.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"bridgefund/internal/logging"
	"bridgefund/internal/pipeline"
	"bridgefund/internal/projects"
	"bridgefund/internal/research"
	"bridgefund/internal/schema"
)

// NoticePrefix marks a non-blocking message stored in State.Error.
const NoticePrefix = "Note: "

// IsNotice reports whether msg is a notice rather than an error.
func IsNotice(msg string) bool {
	return strings.HasPrefix(msg, NoticePrefix)
}

var (
	ErrNoBundle      = errors.New("nothing to work with yet: generate a Bridge Story first")
	ErrNoBridgeStory = errors.New("the bundle has no bridge story")
)

// State is a snapshot of the session.
type State struct {
	ProjectID string
	Output    *schema.Bundle
	Error     string
	Loading   bool
	Emphasis  schema.Emphasis
	// Version counts confirmed autosaves. It labels history entries on the
	// server and is not used for conflict detection.
	Version int
	Sources []research.Source
}

// Options configures a Planner.
type Options struct {
	// ProjectID reuses an existing draft id so saves merge into it. The
	// stored bundle and version are not loaded. Empty generates a new id.
	ProjectID string
	Emphasis  schema.Emphasis
	// StagedFallback runs the stage-by-stage pipeline when the one-shot
	// response signals fallback. Off, the fallback signal is a terminal error.
	StagedFallback bool
	ImageURL       string
}

// Planner holds the state of one session. Operations are not mutually
// exclusive; Loading is advisory. After Close, state updates from calls
// still in flight are discarded.
type Planner struct {
	api   API
	opts  Options
	alive atomic.Bool

	mu    sync.Mutex
	state State
}

// New creates a Planner bound to api.
func New(api API, opts Options) *Planner {
	if opts.ProjectID == "" {
		opts.ProjectID = uuid.NewString()
	}
	if opts.Emphasis == "" {
		opts.Emphasis = schema.EmphasisBalanced
	}
	p := &Planner{
		api:  api,
		opts: opts,
		state: State{
			ProjectID: opts.ProjectID,
			Emphasis:  opts.Emphasis,
		},
	}
	p.alive.Store(true)
	return p
}

// State returns a copy of the current state.
func (p *Planner) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	if s.Output != nil {
		s.Output = s.Output.Clone()
	}
	s.Sources = append([]research.Source(nil), s.Sources...)
	return s
}

// Close marks the session dead. Calls in flight are not cancelled.
func (p *Planner) Close() {
	p.alive.Store(false)
}

func (p *Planner) update(fn func(s *State)) {
	if !p.alive.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.state)
}

func (p *Planner) fail(err error) error {
	p.update(func(s *State) {
		s.Loading = false
		s.Error = err.Error()
	})
	return err
}

func (p *Planner) currentBundle() (*schema.Bundle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Output == nil {
		return nil, ErrNoBundle
	}
	return p.state.Output.Clone(), nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// ProcessInput turns text into a full bundle with the one-shot stage and
// autosaves it.
func (p *Planner) ProcessInput(ctx context.Context, text string) error {
	p.update(func(s *State) {
		s.Loading = true
		s.Error = ""
	})

	emphasis := p.State().Emphasis
	resp, err := p.api.Plan(ctx, pipeline.Request{
		Stage:    pipeline.StageOneShot,
		Input:    text,
		Emphasis: string(emphasis),
	})
	if err != nil {
		return p.fail(err)
	}

	stage := pipeline.StageOneShot
	if !resp.OK && resp.Fallback && p.opts.StagedFallback {
		logging.Planner("oneshot signalled fallback, running staged pipeline")
		stage = pipeline.StageStaged
		resp, err = p.api.Plan(ctx, pipeline.Request{
			Stage:    pipeline.StageStaged,
			Input:    text,
			Emphasis: string(emphasis),
		})
		if err != nil {
			return p.fail(err)
		}
	}
	if !resp.OK {
		return p.fail(responseError(resp))
	}

	var bundle schema.Bundle
	if err := json.Unmarshal(resp.Data, &bundle); err != nil {
		return p.fail(fmt.Errorf("failed to decode bundle: %w", err))
	}

	p.update(func(s *State) {
		s.Output = &bundle
		s.Loading = false
		s.Error = notice(resp)
	})
	logging.Planner("generated bundle for %s via %s (%d keys)", p.opts.ProjectID, stage, len(bundle.Keys()))

	raw, err := bundle.Raw()
	if err != nil {
		return p.fail(err)
	}
	p.save(ctx, stage, raw, saveExtras{emphasis: emphasis})
	return nil
}

// RegenerateBridgeStory rewrites the bridge story paragraphs with a new
// emphasis. Only paragraphs and emphasis change.
func (p *Planner) RegenerateBridgeStory(ctx context.Context, emphasis schema.Emphasis) error {
	bundle, err := p.currentBundle()
	if err != nil {
		return p.fail(err)
	}
	if bundle.BridgeStory == nil {
		return p.fail(ErrNoBridgeStory)
	}
	if !emphasis.Valid() {
		return p.fail(fmt.Errorf("invalid emphasis %q", emphasis))
	}

	p.update(func(s *State) {
		s.Loading = true
		s.Error = ""
	})

	resp, err := p.api.Plan(ctx, pipeline.Request{
		Stage:    pipeline.StageRewrite,
		Input:    bundle.BridgeStory.Markdown(),
		Emphasis: string(emphasis),
	})
	if err != nil {
		return p.fail(err)
	}
	if !resp.OK {
		return p.fail(responseError(resp))
	}

	var out struct {
		Markdown string `json:"markdown"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return p.fail(fmt.Errorf("failed to decode rewrite: %w", err))
	}
	paragraphs := SplitParagraphs(out.Markdown)
	if len(paragraphs) == 0 {
		return p.fail(errors.New("rewrite returned no paragraphs"))
	}

	story := *bundle.BridgeStory
	story.Paragraphs = paragraphs
	story.Emphasis = emphasis

	p.update(func(s *State) {
		if s.Output == nil {
			s.Output = &schema.Bundle{}
		}
		s.Output.BridgeStory = &story
		s.Emphasis = emphasis
		s.Loading = false
		s.Error = notice(resp)
	})

	patch, err := schema.ToRaw(map[string]any{schema.KeyBridgeStory: &story})
	if err != nil {
		return p.fail(err)
	}
	p.save(ctx, pipeline.StageRewrite, patch, saveExtras{emphasis: emphasis})
	return nil
}

// CheckTone runs the tone check on the bridge story and stores the result
// as safety_notes.
func (p *Planner) CheckTone(ctx context.Context) error {
	bundle, err := p.currentBundle()
	if err != nil {
		return p.fail(err)
	}
	if bundle.BridgeStory == nil {
		return p.fail(ErrNoBridgeStory)
	}

	p.update(func(s *State) {
		s.Loading = true
		s.Error = ""
	})

	input := bundle.BridgeStory.ThinEdge + "\n\n" + bundle.BridgeStory.Markdown()
	resp, err := p.api.Plan(ctx, pipeline.Request{Stage: pipeline.StageTone, Input: input})
	if err != nil {
		return p.fail(err)
	}
	if !resp.OK {
		return p.fail(responseError(resp))
	}

	var notes schema.SafetyNotes
	if err := json.Unmarshal(resp.Data, &notes); err != nil {
		return p.fail(fmt.Errorf("failed to decode tone check: %w", err))
	}

	p.update(func(s *State) {
		if s.Output == nil {
			s.Output = &schema.Bundle{}
		}
		s.Output.SafetyNotes = &notes
		s.Loading = false
		s.Error = notice(resp)
	})

	patch, err := schema.ToRaw(map[string]any{schema.KeySafetyNotes: &notes})
	if err != nil {
		return p.fail(err)
	}
	scores := notes.Scores
	p.save(ctx, pipeline.StageTone, patch, saveExtras{tone: &scores})
	return nil
}

// AttachSources looks up sources for every claim marked for verification and
// saves them with the draft.
func (p *Planner) AttachSources(ctx context.Context) error {
	bundle, err := p.currentBundle()
	if err != nil {
		return p.fail(err)
	}

	claims := ClaimsToVerify(bundle)
	if len(claims) == 0 {
		logging.PlannerDebug("no claims to research")
		return nil
	}

	sources, err := p.api.Research(ctx, claims)
	if err != nil {
		return p.fail(err)
	}

	p.update(func(s *State) {
		s.Sources = sources
	})
	p.save(ctx, "sources", map[string]any{}, saveExtras{sources: sources})
	return nil
}

// Publish saves the bundle, then publishes it. With no bundle or no bridge
// story no request is made. Publish failures are returned.
func (p *Planner) Publish(ctx context.Context) (projects.SaveResult, error) {
	bundle, err := p.currentBundle()
	if err != nil {
		return projects.SaveResult{}, p.fail(err)
	}
	if bundle.BridgeStory == nil {
		return projects.SaveResult{}, p.fail(ErrNoBridgeStory)
	}

	p.update(func(s *State) {
		s.Loading = true
		s.Error = ""
	})

	raw, err := bundle.Raw()
	if err != nil {
		return projects.SaveResult{}, p.fail(err)
	}
	p.save(ctx, "publish", raw, saveExtras{})

	story := bundle.BridgeStory
	tldr := ""
	if len(story.Paragraphs) > 0 {
		tldr = story.Paragraphs[0]
	}
	res, err := p.api.Publish(ctx, projects.PublishRequest{
		ProjectID:     p.opts.ProjectID,
		Title:         story.ThinEdge,
		TLDR:          tldr,
		BodyMarkdown:  story.Markdown(),
		ToVerifyItems: ToVerifyItems(bundle),
		ImageURL:      p.opts.ImageURL,
	})
	if err != nil {
		return projects.SaveResult{}, p.fail(fmt.Errorf("publish failed: %w", err))
	}

	p.update(func(s *State) { s.Loading = false })
	logging.Planner("published %s", p.opts.ProjectID)
	return res, nil
}

// =============================================================================
// AUTOSAVE
// =============================================================================

type saveExtras struct {
	sources  []research.Source
	tone     *schema.ToneScores
	emphasis schema.Emphasis
}

// save autosaves patch. Failures are logged and swallowed; the version only
// advances when the server confirms.
func (p *Planner) save(ctx context.Context, stage string, patch map[string]any, extra saveExtras) {
	version := p.State().Version
	req := projects.SaveDraftRequest{
		ProjectID:   p.opts.ProjectID,
		Stage:       stage,
		BundlePatch: patch,
		Sources:     extra.sources,
		ToneScores:  extra.tone,
		Version:     &version,
		Emphasis:    string(extra.emphasis),
		ImageURL:    p.opts.ImageURL,
	}

	if _, err := p.api.SaveDraft(ctx, req); err != nil {
		logging.Get(logging.CategoryPlanner).Warn("autosave (%s) failed for %s: %v", stage, p.opts.ProjectID, err)
		return
	}
	p.update(func(s *State) { s.Version++ })
	logging.PlannerDebug("autosaved %s at version %d", stage, version)
}

// =============================================================================
// HELPERS
// =============================================================================

var blankLine = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs splits markdown on blank lines, dropping empty pieces.
func SplitParagraphs(markdown string) []string {
	var out []string
	for _, part := range blankLine.Split(strings.TrimSpace(markdown), -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ToVerifyItems lists the evidence-slot claims of a bundle.
func ToVerifyItems(b *schema.Bundle) []string {
	if b == nil || b.EvidenceSlots == nil {
		return nil
	}
	items := make([]string, 0, len(b.EvidenceSlots.ToVerify))
	for _, v := range b.EvidenceSlots.ToVerify {
		items = append(items, v.Claim)
	}
	return items
}

// ClaimsToVerify merges evidence-slot claims with concern-map claims marked
// to_verify, without duplicates.
func ClaimsToVerify(b *schema.Bundle) []string {
	seen := map[string]bool{}
	var out []string
	add := func(c string) {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, c := range ToVerifyItems(b) {
		add(c)
	}
	if b != nil && b.ConcernMap != nil {
		for _, c := range b.ConcernMap.Claims {
			if c.ToVerify {
				add(c.Text)
			}
		}
	}
	return out
}

func notice(resp *PlanResponse) string {
	var parts []string
	if resp.Warning != "" {
		parts = append(parts, resp.Warning)
	}
	parts = append(parts, resp.Warnings...)
	if len(parts) == 0 {
		return ""
	}
	return NoticePrefix + strings.Join(parts, "; ")
}

func responseError(resp *PlanResponse) error {
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return errors.New("generation failed")
}
