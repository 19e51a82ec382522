package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Sync() error { return nil }

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *syncBuffer) lines(t *testing.T) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(s.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func initForTest(t *testing.T, opts Options) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	opts.Output = zapcore.AddSync(buf)
	if err := Initialize(opts); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(reset)
	return buf
}

// TestAllCategoriesLog verifies every category writes through the shared core.
func TestAllCategoriesLog(t *testing.T) {
	buf := initForTest(t, Options{Level: "debug", Format: "json"})

	for _, cat := range AllCategories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		Get(cat).Info("Test info message for %s", cat)
	}

	entries := buf.lines(t)
	if len(entries) != len(AllCategories) {
		t.Fatalf("expected %d entries, got %d", len(AllCategories), len(entries))
	}
	for i, cat := range AllCategories {
		if entries[i]["logger"] != string(cat) {
			t.Errorf("entry %d: expected logger=%s, got %v", i, cat, entries[i]["logger"])
		}
	}
}

func TestConvenienceFunctions(t *testing.T) {
	buf := initForTest(t, Options{Level: "debug"})

	Boot("boot %d", 1)
	Store("store %s", "ok")
	PipelineWarn("pipeline warn")
	ResearchDebug("research debug")

	out := buf.String()
	for _, want := range []string{"boot 1", "store ok", "pipeline warn", "research debug"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

// TestLevelFiltering verifies entries below the configured level are dropped.
func TestLevelFiltering(t *testing.T) {
	buf := initForTest(t, Options{Level: "warn"})

	logger := Get(CategoryStore)
	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("visible warn")
	logger.Error("visible error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("low-level entries leaked:\n%s", out)
	}
	if !strings.Contains(out, "visible warn") || !strings.Contains(out, "visible error") {
		t.Errorf("expected warn and error entries:\n%s", out)
	}
}

// TestCategoryDisabled verifies a disabled category is silent while others write.
func TestCategoryDisabled(t *testing.T) {
	buf := initForTest(t, Options{
		Level:      "debug",
		Categories: map[string]bool{"store": false, "api": true},
	})

	if IsCategoryEnabled(CategoryStore) {
		t.Error("store should be disabled")
	}
	if !IsCategoryEnabled(CategoryPlanner) {
		t.Error("unlisted categories should be enabled")
	}

	Store("should not appear")
	API("should appear")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("disabled category wrote output:\n%s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("enabled category missing:\n%s", out)
	}
}

// TestNoopBeforeInitialize verifies loggers are safe to use before setup.
func TestNoopBeforeInitialize(t *testing.T) {
	reset()

	if IsCategoryEnabled(CategoryBoot) {
		t.Error("categories should be disabled before Initialize")
	}
	// Must not panic.
	Get(CategoryBoot).Info("nothing")
	Boot("nothing")
	Audit().StageRun("concern_map", time.Millisecond, true, "")
	Sync()
}

func TestInitialize_Errors(t *testing.T) {
	t.Cleanup(reset)

	if err := Initialize(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := Initialize(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestConsoleFormat(t *testing.T) {
	buf := initForTest(t, Options{Level: "info", Format: "console"})

	Planner("console line")

	out := buf.String()
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "console line") {
		t.Errorf("unexpected console output: %q", out)
	}
}

func TestWith(t *testing.T) {
	buf := initForTest(t, Options{Level: "info"})

	Get(CategoryProjects).With("project_id", "p-1").Info("saved")

	entries := buf.lines(t)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0]["project_id"] != "p-1" {
		t.Errorf("expected project_id field, got %v", entries[0])
	}
}

// ===== AUDIT TESTS =====

func TestAudit_StructuredFields(t *testing.T) {
	buf := initForTest(t, Options{Level: "info"})

	AuditWithRequest("req-9").LLMCall("anthropic", "claude", 1500*time.Millisecond, false, "boom")

	entries := buf.lines(t)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["logger"] != "audit" {
		t.Errorf("expected audit logger, got %v", e["logger"])
	}
	if e["msg"] != string(AuditLLMCall) {
		t.Errorf("expected msg=llm_call, got %v", e["msg"])
	}
	if e["level"] != "warn" {
		t.Errorf("failed events should log at warn, got %v", e["level"])
	}
	if e["req"] != "req-9" || e["target"] != "claude" || e["error"] != "boom" {
		t.Errorf("missing fields: %v", e)
	}
	if e["dur_ms"] != float64(1500) {
		t.Errorf("expected dur_ms=1500, got %v", e["dur_ms"])
	}
}

func TestAudit_ProjectSaveAction(t *testing.T) {
	buf := initForTest(t, Options{Level: "info"})

	Audit().ProjectSave("p-1", true, true, "")
	Audit().ProjectSave("p-1", false, true, "")

	entries := buf.lines(t)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["action"] != "create" || entries[1]["action"] != "update" {
		t.Errorf("unexpected actions: %v / %v", entries[0]["action"], entries[1]["action"])
	}
}

func TestAudit_ConcurrentWrites(t *testing.T) {
	buf := initForTest(t, Options{Level: "info"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Audit().ResearchLookup(2, 4, time.Millisecond)
		}()
	}
	wg.Wait()

	if got := len(buf.lines(t)); got != 20 {
		t.Errorf("expected 20 entries, got %d", got)
	}
}
