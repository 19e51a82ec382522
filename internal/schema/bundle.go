package schema

import (
	"encoding/json"
	"fmt"
)

// Bundle is the accumulating work product for one draft. Any subset of
// keys may be present; a present key conforms to its stage schema.
type Bundle struct {
	ConcernMap              *ConcernMap              `json:"concern_map,omitempty"`
	Steelman                *Steelman                `json:"steelman,omitempty"`
	FinancialAccountability *FinancialAccountability `json:"financial_accountability,omitempty"`
	SolutionPaths           *SolutionPaths           `json:"solution_paths,omitempty"`
	EvidenceSlots           *EvidenceSlots           `json:"evidence_slots,omitempty"`
	BridgeStory             *BridgeStory             `json:"bridge_story,omitempty"`
	Goals                   *Goals                   `json:"goals,omitempty"`
	SafetyNotes             *SafetyNotes             `json:"safety_notes,omitempty"`
}

// BundleKeys lists the output keys a Bundle can hold, in pipeline order.
var BundleKeys = []string{
	KeyConcernMap, KeySteelman, KeyFinancialAccountability, KeySolutionPaths,
	KeyEvidenceSlots, KeyBridgeStory, KeyGoals, KeySafetyNotes,
}

// IsBundleKey reports whether key is one of BundleKeys.
func IsBundleKey(key string) bool {
	for _, k := range BundleKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ParseBundle decodes a raw bundle object. It is lenient: no schema checks
// are applied, so it is suitable for persisted drafts.
func ParseBundle(raw map[string]any) (*Bundle, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	return &b, nil
}

// Raw returns the bundle as a JSON object, omitting absent keys.
func (b *Bundle) Raw() (map[string]any, error) {
	return ToRaw(b)
}

// Set stores a validated stage value under its output key.
func (b *Bundle) Set(key string, v any) error {
	switch key {
	case KeyConcernMap:
		cm, ok := v.(*ConcernMap)
		if !ok {
			return typeMismatch(key, v)
		}
		b.ConcernMap = cm
	case KeySteelman:
		s, ok := v.(*Steelman)
		if !ok {
			return typeMismatch(key, v)
		}
		b.Steelman = s
	case KeyFinancialAccountability:
		fa, ok := v.(*FinancialAccountability)
		if !ok {
			return typeMismatch(key, v)
		}
		b.FinancialAccountability = fa
	case KeySolutionPaths:
		sp, ok := v.(*SolutionPaths)
		if !ok {
			return typeMismatch(key, v)
		}
		b.SolutionPaths = sp
	case KeyEvidenceSlots:
		es, ok := v.(*EvidenceSlots)
		if !ok {
			return typeMismatch(key, v)
		}
		b.EvidenceSlots = es
	case KeyBridgeStory:
		bs, ok := v.(*BridgeStory)
		if !ok {
			return typeMismatch(key, v)
		}
		b.BridgeStory = bs
	case KeyGoals:
		g, ok := v.(*Goals)
		if !ok {
			return typeMismatch(key, v)
		}
		b.Goals = g
	case KeySafetyNotes:
		sn, ok := v.(*SafetyNotes)
		if !ok {
			return typeMismatch(key, v)
		}
		b.SafetyNotes = sn
	default:
		return fmt.Errorf("unknown bundle key: %s", key)
	}
	return nil
}

// Keys returns the present output keys in pipeline order.
func (b *Bundle) Keys() []string {
	var keys []string
	if b.ConcernMap != nil {
		keys = append(keys, KeyConcernMap)
	}
	if b.Steelman != nil {
		keys = append(keys, KeySteelman)
	}
	if b.FinancialAccountability != nil {
		keys = append(keys, KeyFinancialAccountability)
	}
	if b.SolutionPaths != nil {
		keys = append(keys, KeySolutionPaths)
	}
	if b.EvidenceSlots != nil {
		keys = append(keys, KeyEvidenceSlots)
	}
	if b.BridgeStory != nil {
		keys = append(keys, KeyBridgeStory)
	}
	if b.Goals != nil {
		keys = append(keys, KeyGoals)
	}
	if b.SafetyNotes != nil {
		keys = append(keys, KeySafetyNotes)
	}
	return keys
}

// Clone returns a deep copy.
func (b *Bundle) Clone() *Bundle {
	raw, err := b.Raw()
	if err != nil {
		return &Bundle{}
	}
	out, err := ParseBundle(raw)
	if err != nil {
		return &Bundle{}
	}
	return out
}

func typeMismatch(key string, v any) error {
	return fmt.Errorf("bundle key %s cannot hold %T", key, v)
}

// ToRaw round-trips any JSON-encodable value into a generic object.
func ToRaw(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}
