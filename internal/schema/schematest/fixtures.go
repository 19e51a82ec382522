// Package schematest provides valid stage payloads for tests.
package schematest

// Stage returns a fresh, valid raw payload for the given output key, or nil
// when the key is unknown.
func Stage(key string) map[string]any {
	switch key {
	case "concern_map":
		return map[string]any{
			"summary": "Residents worry the bus route cut strands night-shift workers.",
			"claims": []any{
				map[string]any{"text": "The 42 line stops running at 9pm.", "type": "evidence"},
				map[string]any{"text": "The council does not care about workers.", "type": "emotion", "to_verify": true},
			},
			"values": []any{"fairness", "access to work"},
		}
	case "steelman":
		return map[string]any{
			"author": map[string]any{
				"label": "Night-shift riders",
				"points": []any{
					map[string]any{"text": "Late service is the only way to reach the hospital.", "type": "evidence"},
				},
			},
			"counterpart": map[string]any{
				"label": "Transit budget office",
				"points": []any{
					map[string]any{"text": "Late buses run mostly empty.", "type": "inference"},
				},
			},
		}
	case "financial_accountability":
		return map[string]any{
			"cost_drivers": []any{"driver overtime", "fuel"},
			"who_pays":     "the municipal transit levy",
			"questions":    []any{"What does one late run cost?"},
		}
	case "solution_paths":
		return map[string]any{
			"paths": []any{
				map[string]any{
					"title":       "On-demand shuttle",
					"description": "Replace late runs with a bookable minibus.",
					"tradeoffs":   []any{"needs a booking app"},
				},
			},
		}
	case "evidence_slots":
		return map[string]any{
			"to_verify": []any{
				map[string]any{"claim": "Late buses run mostly empty.", "why": "No ridership data cited.", "suggested_source": "transit ridership reports"},
			},
		}
	case "bridge_story":
		return map[string]any{
			"thin_edge":  "Night workers need a way home that the city can afford.",
			"paragraphs": []any{"First paragraph.", "Second paragraph."},
		}
	case "goals":
		return map[string]any{
			"goals": []any{
				map[string]any{"title": "Restore a late option", "measure": "a ride available after 9pm on weekdays"},
			},
		}
	case "safety_notes":
		return map[string]any{
			"overall": "caution",
			"notes": []any{
				map[string]any{"excerpt": "does not care", "concern": "assigns motive", "suggestion": "describe the decision instead"},
			},
			"scores": map[string]any{"heat": 4.0, "empathy": 7.0, "respect": 8.0},
		}
	case "oneshot":
		out := map[string]any{}
		for _, k := range []string{"concern_map", "steelman", "financial_accountability", "solution_paths", "evidence_slots", "bridge_story", "goals"} {
			out[k] = Stage(k)
		}
		return out
	}
	return nil
}

// StructuredKeys lists every output key with a schema, excluding oneshot.
var StructuredKeys = []string{
	"concern_map", "steelman", "financial_accountability", "solution_paths",
	"evidence_slots", "bridge_story", "goals", "safety_notes",
}
