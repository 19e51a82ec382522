package schema

import (
	"encoding/json"
	"fmt"
)

// Sanitize returns a deep copy of a raw bundle patch with out-of-set claim
// and steelman point types coerced to "inference". It never rejects input;
// shapes it does not recognise are copied through untouched. Sanitize is
// idempotent. An error means the patch could not be copied at all.
func Sanitize(raw map[string]any) (map[string]any, error) {
	out, err := deepCopy(raw)
	if err != nil {
		return nil, err
	}

	if cm, ok := out[KeyConcernMap].(map[string]any); ok {
		coerceTypes(cm["claims"])
	}
	if sm, ok := out[KeySteelman].(map[string]any); ok {
		for _, side := range sm {
			if pos, ok := side.(map[string]any); ok {
				coerceTypes(pos["points"])
			}
		}
	}

	return out, nil
}

// coerceTypes rewrites the "type" of every object in list that is present
// but outside the closed set.
func coerceTypes(list any) {
	items, ok := list.([]any)
	if !ok {
		return
	}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		v, present := obj["type"]
		if !present {
			continue
		}
		if s, ok := v.(string); ok && ClaimType(s).Valid() {
			continue
		}
		obj["type"] = string(ClaimInference)
	}
}

func deepCopy(raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to copy patch: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to copy patch: %w", err)
	}
	return out, nil
}
