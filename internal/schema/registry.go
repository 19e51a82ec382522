package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/jsonschema-go/jsonschema"

	"bridgefund/internal/logging"
)

// entry binds an output key to its Go type and resolved JSON schema.
type entry struct {
	typ      reflect.Type
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

var (
	registry = map[string]*entry{}
	validate = newValidator()
)

// enumTypes injects the closed sets into every generated schema.
var enumTypes = map[reflect.Type]*jsonschema.Schema{
	reflect.TypeFor[ClaimType](): {Type: "string", Enum: []any{"evidence", "inference", "emotion", "empathy", "value"}},
	reflect.TypeFor[Emphasis]():  {Type: "string", Enum: []any{"efficiency", "empathy", "balanced"}},
	reflect.TypeFor[Overall]():   {Type: "string", Enum: []any{"ok", "caution", "revise"}},
}

func init() {
	register[ConcernMap](KeyConcernMap)
	register[Steelman](KeySteelman)
	register[FinancialAccountability](KeyFinancialAccountability)
	register[SolutionPaths](KeySolutionPaths)
	register[EvidenceSlots](KeyEvidenceSlots)
	register[BridgeStory](KeyBridgeStory)
	register[Goals](KeyGoals)
	register[SafetyNotes](KeySafetyNotes)
	register[OneShot](KeyOneShot)
}

func register[T any](key string) {
	s, err := jsonschema.For[T](&jsonschema.ForOptions{TypeSchemas: enumTypes})
	if err != nil {
		panic(fmt.Sprintf("schema: cannot infer %s: %v", key, err))
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("schema: cannot resolve %s: %v", key, err))
	}
	registry[key] = &entry{typ: reflect.TypeFor[T](), schema: s, resolved: resolved}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so issues read like the payload.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Has reports whether key has a registered schema.
func Has(key string) bool {
	_, ok := registry[key]
	return ok
}

// ToolSchema returns the JSON schema describing key's output, suitable as a
// tool input schema. The returned value is a copy.
func ToolSchema(key string) (*jsonschema.Schema, error) {
	e, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("no schema registered for %q", key)
	}
	return e.schema.CloneSchemas(), nil
}

// ToolSchemaMap returns ToolSchema as a generic JSON object.
func ToolSchemaMap(key string) (map[string]any, error) {
	s, err := ToolSchema(key)
	if err != nil {
		return nil, err
	}
	return ToRaw(s)
}

// Validate strictly checks raw against key's schema and returns the decoded
// value (a pointer to the stage type). Failures are *SchemaError.
func Validate(key string, raw map[string]any) (any, error) {
	e, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("no schema registered for %q", key)
	}
	if raw == nil {
		return nil, &SchemaError{Stage: key, Issues: []Issue{{Message: "output is empty"}}}
	}

	// Shape: types, required properties, enums, no extra properties.
	if err := e.resolved.Validate(raw); err != nil {
		logging.SchemaDebug("%s failed shape check: %v", key, err)
		return nil, &SchemaError{Stage: key, Issues: []Issue{{Message: err.Error()}}}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &SchemaError{Stage: key, Issues: []Issue{{Message: fmt.Sprintf("cannot encode output: %v", err)}}}
	}
	out := reflect.New(e.typ).Interface()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return nil, &SchemaError{Stage: key, Issues: []Issue{{Message: fmt.Sprintf("cannot decode output: %v", err)}}}
	}

	// Content: non-empty strings, minimum lengths, ranges.
	if err := validate.Struct(out); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, &SchemaError{Stage: key, Issues: []Issue{{Message: err.Error()}}}
		}
		issues := make([]Issue, 0, len(verrs))
		for _, fe := range verrs {
			issues = append(issues, formatFieldError(fe))
		}
		logging.SchemaDebug("%s failed content check: %d issues", key, len(issues))
		return nil, &SchemaError{Stage: key, Issues: issues}
	}

	return out, nil
}

// formatFieldError converts a validator error into an Issue keyed by JSON path.
func formatFieldError(fe validator.FieldError) Issue {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "min":
		msg = fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		msg = fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		msg = fmt.Sprintf("must be one of [%s] (got: %v)", fe.Param(), fe.Value())
	default:
		msg = fmt.Sprintf("failed validation '%s' (got: %v)", fe.Tag(), fe.Value())
	}
	return Issue{Field: field, Message: msg}
}
