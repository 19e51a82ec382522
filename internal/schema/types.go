// Package schema defines the Bridge Story stage outputs, the tool schemas
// derived from them, and the strict and lenient checks applied to raw
// backend or persisted objects.
package schema

import "strings"

// Bundle output keys.
const (
	KeyConcernMap              = "concern_map"
	KeySteelman                = "steelman"
	KeyFinancialAccountability = "financial_accountability"
	KeySolutionPaths           = "solution_paths"
	KeyEvidenceSlots           = "evidence_slots"
	KeyBridgeStory             = "bridge_story"
	KeyGoals                   = "goals"
	KeySafetyNotes             = "safety_notes"

	// KeyOneShot names the full-bundle schema used by the one-shot stage.
	KeyOneShot = "oneshot"
)

// ClaimType classifies a claim or steelman point.
type ClaimType string

const (
	ClaimEvidence  ClaimType = "evidence"
	ClaimInference ClaimType = "inference"
	ClaimEmotion   ClaimType = "emotion"
	ClaimEmpathy   ClaimType = "empathy"
	ClaimValue     ClaimType = "value"
)

// ClaimTypes is the closed set of claim types.
var ClaimTypes = []ClaimType{ClaimEvidence, ClaimInference, ClaimEmotion, ClaimEmpathy, ClaimValue}

// Valid reports whether t is in the closed set.
func (t ClaimType) Valid() bool {
	for _, c := range ClaimTypes {
		if t == c {
			return true
		}
	}
	return false
}

// Emphasis is the tone dial applied to bridge story generation.
type Emphasis string

const (
	EmphasisEfficiency Emphasis = "efficiency"
	EmphasisEmpathy    Emphasis = "empathy"
	EmphasisBalanced   Emphasis = "balanced"
)

// Emphases lists every emphasis variant.
var Emphases = []Emphasis{EmphasisEfficiency, EmphasisEmpathy, EmphasisBalanced}

// Valid reports whether e is a known variant.
func (e Emphasis) Valid() bool {
	for _, v := range Emphases {
		if e == v {
			return true
		}
	}
	return false
}

// Overall is the tone check verdict.
type Overall string

const (
	OverallOK      Overall = "ok"
	OverallCaution Overall = "caution"
	OverallRevise  Overall = "revise"
)

// =============================================================================
// STAGE OUTPUTS
// =============================================================================

// Claim is one statement extracted from the user's text.
type Claim struct {
	Text     string    `json:"text" jsonschema:"the claim restated neutrally" validate:"required"`
	Type     ClaimType `json:"type" jsonschema:"how the claim is supported" validate:"required,oneof=evidence inference emotion empathy value"`
	ToVerify bool      `json:"to_verify,omitempty" jsonschema:"true when the claim needs a source before publishing"`
}

// ConcernMap is the output of the concern_map stage.
type ConcernMap struct {
	Summary string   `json:"summary" jsonschema:"one neutral paragraph describing the concern" validate:"required"`
	Claims  []Claim  `json:"claims" validate:"required,min=1,dive"`
	Values  []string `json:"values,omitempty" jsonschema:"values the author is protecting" validate:"omitempty,dive,required"`
}

// Point is one argument in a steelman position.
type Point struct {
	Text string    `json:"text" validate:"required"`
	Type ClaimType `json:"type" validate:"required,oneof=evidence inference emotion empathy value"`
}

// Position is the strongest form of one side's view.
type Position struct {
	Label  string  `json:"label" jsonschema:"who holds this position, described without pejoratives" validate:"required"`
	Points []Point `json:"points" validate:"required,min=1,dive"`
}

// Steelman is the output of the steelman stage.
type Steelman struct {
	Author      Position `json:"author"`
	Counterpart Position `json:"counterpart"`
}

// FinancialAccountability is the output of the financial_accountability stage.
type FinancialAccountability struct {
	CostDrivers []string `json:"cost_drivers" jsonschema:"what makes the problem expensive" validate:"required,min=1,dive,required"`
	WhoPays     string   `json:"who_pays" jsonschema:"who currently bears the cost" validate:"required"`
	Questions   []string `json:"questions" jsonschema:"questions a funder should ask" validate:"required,min=1,dive,required"`
}

// SolutionPath is one candidate direction.
type SolutionPath struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Tradeoffs   []string `json:"tradeoffs" validate:"dive,required"`
}

// SolutionPaths is the output of the solution_paths stage.
type SolutionPaths struct {
	Paths []SolutionPath `json:"paths" validate:"required,min=1,dive"`
}

// VerifyItem is a claim that needs a source.
type VerifyItem struct {
	Claim           string `json:"claim" validate:"required"`
	Why             string `json:"why" jsonschema:"why the claim cannot be taken at face value" validate:"required"`
	SuggestedSource string `json:"suggested_source,omitempty" jsonschema:"kind of source that would settle it"`
}

// EvidenceSlots is the output of the evidence_slots stage.
type EvidenceSlots struct {
	ToVerify []VerifyItem `json:"to_verify" validate:"dive"`
}

// BridgeStory is the publishable narrative.
type BridgeStory struct {
	ThinEdge   string   `json:"thin_edge" jsonschema:"single sentence that both sides could accept" validate:"required"`
	Paragraphs []string `json:"paragraphs" validate:"required,min=1,dive,required"`
	Emphasis   Emphasis `json:"emphasis,omitempty" validate:"omitempty,oneof=efficiency empathy balanced"`
}

// Markdown joins the paragraphs with blank lines.
func (b *BridgeStory) Markdown() string {
	return strings.Join(b.Paragraphs, "\n\n")
}

// Goal is one measurable outcome.
type Goal struct {
	Title   string `json:"title" validate:"required"`
	Measure string `json:"measure" jsonschema:"how progress would be observed" validate:"required"`
}

// Goals is the output of the goals stage.
type Goals struct {
	Goals []Goal `json:"goals" validate:"required,min=1,dive"`
}

// SafetyNote flags one passage.
type SafetyNote struct {
	Excerpt    string `json:"excerpt" validate:"required"`
	Concern    string `json:"concern" validate:"required"`
	Suggestion string `json:"suggestion" validate:"required"`
}

// ToneScores are 0-10 ratings of the story text.
type ToneScores struct {
	Heat    float64 `json:"heat" validate:"min=0,max=10"`
	Empathy float64 `json:"empathy" validate:"min=0,max=10"`
	Respect float64 `json:"respect" validate:"min=0,max=10"`
}

// SafetyNotes is the output of the tone stage.
type SafetyNotes struct {
	Overall Overall      `json:"overall" validate:"required,oneof=ok caution revise"`
	Notes   []SafetyNote `json:"notes" validate:"dive"`
	Scores  ToneScores   `json:"scores"`
}

// OneShot is the full bundle produced in a single call. Safety notes are
// produced by a separate tone check and are optional here.
type OneShot struct {
	ConcernMap              ConcernMap              `json:"concern_map"`
	Steelman                Steelman                `json:"steelman"`
	FinancialAccountability FinancialAccountability `json:"financial_accountability"`
	SolutionPaths           SolutionPaths           `json:"solution_paths"`
	EvidenceSlots           EvidenceSlots           `json:"evidence_slots"`
	BridgeStory             BridgeStory             `json:"bridge_story"`
	Goals                   Goals                   `json:"goals"`
	SafetyNotes             *SafetyNotes            `json:"safety_notes,omitempty"`
}

// Bundle converts a one-shot result into a bundle.
func (o *OneShot) Bundle() *Bundle {
	return &Bundle{
		ConcernMap:              &o.ConcernMap,
		Steelman:                &o.Steelman,
		FinancialAccountability: &o.FinancialAccountability,
		SolutionPaths:           &o.SolutionPaths,
		EvidenceSlots:           &o.EvidenceSlots,
		BridgeStory:             &o.BridgeStory,
		Goals:                   &o.Goals,
		SafetyNotes:             o.SafetyNotes,
	}
}
