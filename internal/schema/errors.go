package schema

import (
	"fmt"
	"strings"
)

// Issue is a single validation failure.
type Issue struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// SchemaError reports a stage output that does not match its schema.
type SchemaError struct {
	Stage  string  `json:"stage"`
	Issues []Issue `json:"issues"`
}

func (e *SchemaError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("%s output failed validation", e.Stage)
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Field == "" {
			parts = append(parts, is.Message)
			continue
		}
		parts = append(parts, is.Field+": "+is.Message)
	}
	return fmt.Sprintf("%s output failed validation: %s", e.Stage, strings.Join(parts, "; "))
}
