package schema

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgefund/internal/schema/schematest"
)

// =============================================================================
// TOOL SCHEMA TESTS
// =============================================================================

func TestToolSchema_AllStages(t *testing.T) {
	for _, key := range append(schematest.StructuredKeys, KeyOneShot) {
		t.Run(key, func(t *testing.T) {
			s, err := ToolSchema(key)
			require.NoError(t, err)
			assert.Equal(t, "object", s.Type)
			assert.NotEmpty(t, s.Properties)
		})
	}
}

func TestToolSchema_ClaimTypeEnum(t *testing.T) {
	s, err := ToolSchema(KeyConcernMap)
	require.NoError(t, err)

	claim := s.Properties["claims"].Items
	require.NotNil(t, claim)
	typ := claim.Properties["type"]
	require.NotNil(t, typ)
	assert.Equal(t, []any{"evidence", "inference", "emotion", "empathy", "value"}, typ.Enum)
	assert.Equal(t, "how the claim is supported", typ.Description)
	assert.ElementsMatch(t, []string{"text", "type"}, claim.Required)
}

func TestToolSchema_ReturnsCopy(t *testing.T) {
	s1, err := ToolSchema(KeyGoals)
	require.NoError(t, err)
	s1.Description = "mutated"

	s2, err := ToolSchema(KeyGoals)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", s2.Description)
}

func TestToolSchemaMap(t *testing.T) {
	m, err := ToolSchemaMap(KeySafetyNotes)
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])
	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "overall")
}

func TestToolSchema_Unknown(t *testing.T) {
	_, err := ToolSchema("nope")
	assert.Error(t, err)
	assert.False(t, Has("nope"))
	assert.True(t, Has(KeyOneShot))
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate_ValidFixtures(t *testing.T) {
	for _, key := range append(schematest.StructuredKeys, KeyOneShot) {
		t.Run(key, func(t *testing.T) {
			v, err := Validate(key, schematest.Stage(key))
			require.NoError(t, err)
			require.NotNil(t, v)
		})
	}
}

// TestValidate_OneShotRoundTrip checks a valid response keeps its shape.
func TestValidate_OneShotRoundTrip(t *testing.T) {
	raw := schematest.Stage(KeyOneShot)

	v, err := Validate(KeyOneShot, raw)
	require.NoError(t, err)

	got, err := ToRaw(v)
	require.NoError(t, err)

	if diff := cmp.Diff(raw, got); diff != "" {
		t.Errorf("round trip changed shape (-want +got):\n%s", diff)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		mutate func(m map[string]any)
	}{
		{"bad claim type", KeyConcernMap, func(m map[string]any) {
			m["claims"].([]any)[0].(map[string]any)["type"] = "bogus"
		}},
		{"missing summary", KeyConcernMap, func(m map[string]any) { delete(m, "summary") }},
		{"empty summary", KeyConcernMap, func(m map[string]any) { m["summary"] = "" }},
		{"no claims", KeyConcernMap, func(m map[string]any) { m["claims"] = []any{} }},
		{"extra property", KeyGoals, func(m map[string]any) { m["extra"] = true }},
		{"wrong type", KeyFinancialAccountability, func(m map[string]any) { m["who_pays"] = 12.0 }},
		{"bad point type", KeySteelman, func(m map[string]any) {
			m["author"].(map[string]any)["points"].([]any)[0].(map[string]any)["type"] = "opinion"
		}},
		{"bad overall", KeySafetyNotes, func(m map[string]any) { m["overall"] = "fine" }},
		{"score out of range", KeySafetyNotes, func(m map[string]any) {
			m["scores"].(map[string]any)["heat"] = 11.0
		}},
		{"empty paragraph", KeyBridgeStory, func(m map[string]any) { m["paragraphs"] = []any{""} }},
		{"bad emphasis", KeyBridgeStory, func(m map[string]any) { m["emphasis"] = "loud" }},
		{"oneshot missing stage", KeyOneShot, func(m map[string]any) { delete(m, "goals") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := schematest.Stage(tt.key)
			tt.mutate(raw)

			_, err := Validate(tt.key, raw)
			require.Error(t, err)

			var se *SchemaError
			require.True(t, errors.As(err, &se), "expected *SchemaError, got %T", err)
			assert.Equal(t, tt.key, se.Stage)
			assert.NotEmpty(t, se.Issues)
		})
	}
}

func TestValidate_ContentIssuesUseJSONPaths(t *testing.T) {
	raw := schematest.Stage(KeyBridgeStory)
	raw["thin_edge"] = ""

	_, err := Validate(KeyBridgeStory, raw)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	require.Len(t, se.Issues, 1)
	assert.Equal(t, "thin_edge", se.Issues[0].Field)
	assert.Equal(t, "is required", se.Issues[0].Message)
	assert.Contains(t, se.Error(), "thin_edge: is required")
}

func TestValidate_NilAndUnknown(t *testing.T) {
	_, err := Validate(KeyGoals, nil)
	var se *SchemaError
	assert.ErrorAs(t, err, &se)

	_, err = Validate("unknown", map[string]any{})
	assert.Error(t, err)
	assert.False(t, errors.As(err, &se))
}

func TestValidate_ReturnsTypedValue(t *testing.T) {
	v, err := Validate(KeyBridgeStory, schematest.Stage(KeyBridgeStory))
	require.NoError(t, err)

	bs, ok := v.(*BridgeStory)
	require.True(t, ok)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", bs.Markdown())
}

// =============================================================================
// SANITIZE TESTS
// =============================================================================

func TestSanitize_CoercesUnknownTypes(t *testing.T) {
	patch := map[string]any{
		"concern_map": map[string]any{
			"claims": []any{
				map[string]any{"type": "bogus", "text": "x"},
				map[string]any{"type": "value", "text": "y"},
				map[string]any{"type": 7.0, "text": "z"},
			},
		},
		"steelman": map[string]any{
			"author":      map[string]any{"points": []any{map[string]any{"type": "rumour", "text": "a"}}},
			"counterpart": map[string]any{"points": []any{map[string]any{"type": "evidence", "text": "b"}}},
		},
	}

	out, err := Sanitize(patch)
	require.NoError(t, err)

	claims := out["concern_map"].(map[string]any)["claims"].([]any)
	assert.Equal(t, "inference", claims[0].(map[string]any)["type"])
	assert.Equal(t, "value", claims[1].(map[string]any)["type"])
	assert.Equal(t, "inference", claims[2].(map[string]any)["type"])

	sm := out["steelman"].(map[string]any)
	assert.Equal(t, "inference", sm["author"].(map[string]any)["points"].([]any)[0].(map[string]any)["type"])
	assert.Equal(t, "evidence", sm["counterpart"].(map[string]any)["points"].([]any)[0].(map[string]any)["type"])

	// Input is untouched.
	assert.Equal(t, "bogus", patch["concern_map"].(map[string]any)["claims"].([]any)[0].(map[string]any)["type"])
}

func TestSanitize_Idempotent(t *testing.T) {
	patch := schematest.Stage(KeyOneShot)
	patch["concern_map"].(map[string]any)["claims"].([]any)[0].(map[string]any)["type"] = "bogus"

	once, err := Sanitize(patch)
	require.NoError(t, err)
	twice, err := Sanitize(once)
	require.NoError(t, err)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("sanitize not idempotent (-once +twice):\n%s", diff)
	}
}

func TestSanitize_LeavesOtherShapesAlone(t *testing.T) {
	patch := map[string]any{
		"concern_map":  "not an object",
		"bridge_story": map[string]any{"type": "bogus"},
		"steelman":     map[string]any{"author": []any{1.0}},
	}

	out, err := Sanitize(patch)
	require.NoError(t, err)
	assert.Equal(t, patch, out)
}

func TestSanitize_CopyFailure(t *testing.T) {
	_, err := Sanitize(map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestSanitize_ThenValidate(t *testing.T) {
	raw := schematest.Stage(KeyConcernMap)
	raw["claims"].([]any)[0].(map[string]any)["type"] = "bogus"

	_, err := Validate(KeyConcernMap, raw)
	require.Error(t, err)

	clean, err := Sanitize(map[string]any{KeyConcernMap: raw})
	require.NoError(t, err)
	_, err = Validate(KeyConcernMap, clean[KeyConcernMap].(map[string]any))
	assert.NoError(t, err)
}

// =============================================================================
// BUNDLE TESTS
// =============================================================================

func TestParseBundle_RoundTrip(t *testing.T) {
	raw := schematest.Stage(KeyOneShot)

	b, err := ParseBundle(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{
		KeyConcernMap, KeySteelman, KeyFinancialAccountability, KeySolutionPaths,
		KeyEvidenceSlots, KeyBridgeStory, KeyGoals,
	}, b.Keys())

	back, err := b.Raw()
	require.NoError(t, err)
	if diff := cmp.Diff(raw, back); diff != "" {
		t.Errorf("bundle round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBundle_PartialIsValid(t *testing.T) {
	b, err := ParseBundle(map[string]any{KeyConcernMap: schematest.Stage(KeyConcernMap)})
	require.NoError(t, err)
	assert.Equal(t, []string{KeyConcernMap}, b.Keys())

	raw, err := b.Raw()
	require.NoError(t, err)
	assert.Len(t, raw, 1)
}

func TestBundle_Set(t *testing.T) {
	var b Bundle
	require.NoError(t, b.Set(KeyGoals, &Goals{Goals: []Goal{{Title: "t", Measure: "m"}}}))
	assert.NotNil(t, b.Goals)

	assert.Error(t, b.Set(KeyGoals, &Steelman{}))
	assert.Error(t, b.Set("unknown", &Goals{}))
}

func TestBundle_Clone(t *testing.T) {
	b, err := ParseBundle(schematest.Stage(KeyOneShot))
	require.NoError(t, err)

	c := b.Clone()
	c.BridgeStory.Paragraphs[0] = "changed"
	assert.Equal(t, "First paragraph.", b.BridgeStory.Paragraphs[0])
}

func TestOneShot_Bundle(t *testing.T) {
	v, err := Validate(KeyOneShot, schematest.Stage(KeyOneShot))
	require.NoError(t, err)

	b := v.(*OneShot).Bundle()
	assert.Nil(t, b.SafetyNotes)
	assert.Equal(t, "Night workers need a way home that the city can afford.", b.BridgeStory.ThinEdge)
}

func TestEnums(t *testing.T) {
	assert.True(t, ClaimEmpathy.Valid())
	assert.False(t, ClaimType("bogus").Valid())
	assert.True(t, EmphasisBalanced.Valid())
	assert.False(t, Emphasis("").Valid())
}
