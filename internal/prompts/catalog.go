package prompts

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"bridgefund/internal/logging"
)

// Catalog composes system prompts and stage instructions. Overrides loaded
// from a YAML file replace individual stage instructions; the preamble is
// fixed. A Catalog is safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	overrides map[string]string
	path      string
}

// NewCatalog returns a catalog with built-in instructions only.
func NewCatalog() *Catalog {
	return &Catalog{overrides: map[string]string{}}
}

// NewCatalogFromFile returns a catalog with overrides loaded from path.
// A missing file yields the built-in instructions.
func NewCatalogFromFile(path string) (*Catalog, error) {
	c := NewCatalog()
	c.path = path
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the override file path, if any.
func (c *Catalog) Path() string {
	return c.path
}

// Reload re-reads the override file. On a parse error the previous overrides
// stay in force.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.mu.Lock()
			c.overrides = map[string]string{}
			c.mu.Unlock()
			logging.PromptsDebug("no override file at %s, using built-in prompts", c.path)
			return nil
		}
		return fmt.Errorf("failed to read prompt overrides: %w", err)
	}

	parsed := map[string]string{}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse prompt overrides: %w", err)
	}

	known := map[string]bool{}
	for _, s := range Stages() {
		known[s] = true
	}
	next := make(map[string]string, len(parsed))
	for stage, text := range parsed {
		if !known[stage] {
			logging.Get(logging.CategoryPrompts).Warn("ignoring override for unknown stage %q", stage)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		next[stage] = strings.TrimSpace(text)
	}

	c.mu.Lock()
	c.overrides = next
	c.mu.Unlock()

	logging.Prompts("loaded %d prompt overrides from %s", len(next), c.path)
	return nil
}

// Instruction returns the instruction block for stage.
func (c *Catalog) Instruction(stage string) (string, bool) {
	c.mu.RLock()
	text, ok := c.overrides[stage]
	c.mu.RUnlock()
	if ok {
		return text, true
	}
	text, ok = stageInstructions[stage]
	return text, ok
}

// System composes the system prompt for stage: preamble, stage instruction,
// then any caller-supplied extra text.
func (c *Catalog) System(stage, extra string) string {
	var sb strings.Builder
	sb.WriteString(SystemPreamble)
	if inst, ok := c.Instruction(stage); ok {
		sb.WriteString("\n\n")
		sb.WriteString(inst)
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		sb.WriteString("\n\n")
		sb.WriteString(extra)
	}
	return sb.String()
}
