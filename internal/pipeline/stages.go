// Package pipeline runs Bridge Story stages against a generation backend and
// validates what comes back.
package pipeline

import (
	"strings"
	"unicode/utf8"

	"bridgefund/internal/schema"
)

// Stage keys accepted by Run besides the structured output keys.
const (
	StageTone    = "tone"
	StageRewrite = "rewrite"
	StageOneShot = schema.KeyOneShot
	StageStaged  = "staged"
)

// Descriptor describes how one stage is run. Descriptors are immutable and
// looked up by key per request.
type Descriptor struct {
	Key string
	// SchemaKey selects the registry schema used for the tool call and for
	// validation. Empty means the stage produces free text.
	SchemaKey string
	ToolName  string
	// OutputKey is the bundle key the result is stored under.
	OutputKey string
	// UsesEmphasis appends emphasis guidance to the user input.
	UsesEmphasis bool
	fallback     func(input string) map[string]any
}

// FreeText reports whether the stage returns text instead of a tool call.
func (d Descriptor) FreeText() bool {
	return d.SchemaKey == ""
}

// HasFallback reports whether a canned payload replaces a failed generation.
func (d Descriptor) HasFallback() bool {
	return d.fallback != nil
}

// Fallback returns the canned payload for the stage, or nil.
func (d Descriptor) Fallback(input string) map[string]any {
	if d.fallback == nil {
		return nil
	}
	return d.fallback(input)
}

func structured(key string, fallback func(string) map[string]any) Descriptor {
	return Descriptor{
		Key:       key,
		SchemaKey: key,
		ToolName:  "record_" + key,
		OutputKey: key,
		fallback:  fallback,
	}
}

var descriptors = map[string]Descriptor{
	schema.KeyConcernMap:              structured(schema.KeyConcernMap, fallbackConcernMap),
	schema.KeySteelman:                structured(schema.KeySteelman, fallbackSteelman),
	schema.KeyFinancialAccountability: structured(schema.KeyFinancialAccountability, fallbackFinancial),
	schema.KeySolutionPaths:           structured(schema.KeySolutionPaths, fallbackSolutionPaths),
	schema.KeyEvidenceSlots:           structured(schema.KeyEvidenceSlots, fallbackEvidenceSlots),
	schema.KeyBridgeStory: {
		Key:          schema.KeyBridgeStory,
		SchemaKey:    schema.KeyBridgeStory,
		ToolName:     "record_bridge_story",
		OutputKey:    schema.KeyBridgeStory,
		UsesEmphasis: true,
	},
	schema.KeyGoals: structured(schema.KeyGoals, fallbackGoals),
	StageTone: {
		Key:       StageTone,
		SchemaKey: schema.KeySafetyNotes,
		ToolName:  "record_safety_notes",
		OutputKey: schema.KeySafetyNotes,
		fallback:  fallbackSafetyNotes,
	},
	StageRewrite: {
		Key:          StageRewrite,
		UsesEmphasis: true,
	},
	StageOneShot: {
		Key:          StageOneShot,
		SchemaKey:    schema.KeyOneShot,
		ToolName:     "record_bridge_bundle",
		UsesEmphasis: true,
	},
}

// PipelineOrder is the order RunStaged runs the structured stages in.
var PipelineOrder = []string{
	schema.KeyConcernMap,
	schema.KeySteelman,
	schema.KeyFinancialAccountability,
	schema.KeySolutionPaths,
	schema.KeyEvidenceSlots,
	schema.KeyBridgeStory,
	schema.KeyGoals,
}

// Lookup returns the descriptor for key.
func Lookup(key string) (Descriptor, bool) {
	d, ok := descriptors[key]
	return d, ok
}

// =============================================================================
// FALLBACK PAYLOADS
// =============================================================================

// Every fallback passes its stage schema.

func fallbackConcernMap(input string) map[string]any {
	text := firstSentence(input)
	if text == "" {
		text = "The author's concern could not be summarized automatically."
	}
	return map[string]any{
		"summary": "We could not map this concern automatically. The original statement is kept below for review.",
		"claims": []any{
			map[string]any{"text": text, "type": string(schema.ClaimInference), "to_verify": true},
		},
	}
}

func fallbackSteelman(string) map[string]any {
	return map[string]any{
		"author": map[string]any{
			"label": "The author",
			"points": []any{
				map[string]any{"text": "The current situation is causing real harm that deserves attention.", "type": string(schema.ClaimValue)},
			},
		},
		"counterpart": map[string]any{
			"label": "Those responsible for the current arrangement",
			"points": []any{
				map[string]any{"text": "Any change has costs and tradeoffs that need to be weighed.", "type": string(schema.ClaimInference)},
			},
		},
	}
}

func fallbackFinancial(string) map[string]any {
	return map[string]any{
		"cost_drivers": []any{"Costs have not been identified yet."},
		"who_pays":     "Not yet determined.",
		"questions": []any{
			"What does the problem cost today, and who bears that cost?",
			"What would a solution cost, and who would fund it?",
		},
	}
}

func fallbackSolutionPaths(string) map[string]any {
	return map[string]any{
		"paths": []any{
			map[string]any{
				"title":       "Gather the facts",
				"description": "Collect data on the problem and its costs before choosing a direction.",
				"tradeoffs":   []any{"delays action while information is gathered"},
			},
		},
	}
}

func fallbackEvidenceSlots(string) map[string]any {
	return map[string]any{"to_verify": []any{}}
}

func fallbackGoals(string) map[string]any {
	return map[string]any{
		"goals": []any{
			map[string]any{"title": "Define the problem clearly", "measure": "a shared written description both sides accept"},
		},
	}
}

func fallbackSafetyNotes(string) map[string]any {
	return map[string]any{
		"overall": string(schema.OverallCaution),
		"notes":   []any{},
		"scores":  map[string]any{"heat": 5.0, "empathy": 5.0, "respect": 5.0},
	}
}

// maxClaimBytes caps the fallback claim; cuts land on a rune boundary.
const maxClaimBytes = 280

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?\n"); i >= 0 {
		s = s[:i+1]
	}
	s = strings.TrimSpace(s)
	if len(s) > maxClaimBytes {
		cut := maxClaimBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
