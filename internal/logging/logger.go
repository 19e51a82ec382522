// Package logging provides config-driven categorized logging for bridgefund.
// Every category is a named child of one zap core, so categories can be
// toggled independently while sharing level, format and output.
// Before Initialize is called every logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	// Core system categories
	CategoryBoot   Category = "boot"   // Startup, config, shutdown
	CategoryAPI    Category = "api"    // Generation backend calls
	CategoryServer Category = "server" // HTTP routing and handlers

	// Pipeline categories
	CategoryPipeline Category = "pipeline" // Stage dispatch, validation, fallback
	CategoryPrompts  Category = "prompts"  // Prompt catalog and overrides
	CategorySchema   Category = "schema"   // Schema validation and sanitation

	// Persistence categories
	CategoryStore    Category = "store"    // SQLite document store
	CategoryProjects Category = "projects" // Draft save and publish

	// Client categories
	CategoryPlanner  Category = "planner"  // Planner session state
	CategoryResearch Category = "research" // Claim source lookup

	// Observability
	CategoryTracing Category = "tracing" // Ended spans when tracing is enabled
)

// AllCategories lists every known category.
var AllCategories = []Category{
	CategoryBoot, CategoryAPI, CategoryServer,
	CategoryPipeline, CategoryPrompts, CategorySchema,
	CategoryStore, CategoryProjects,
	CategoryPlanner, CategoryResearch,
	CategoryTracing,
}

// Options mirrors config.LoggingConfig so this package stays import-free.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	Categories map[string]bool // per-category toggles; missing means enabled

	// Output defaults to stderr.
	Output zapcore.WriteSyncer
}

// Logger wraps a sugared zap logger bound to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	root       *zap.Logger
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Initialize builds the shared zap core. It may be called again to reconfigure.
func Initialize(opts Options) error {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console", "text":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("unknown log format: %s", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(enc, out, level)

	mu.Lock()
	defer mu.Unlock()
	if root != nil {
		_ = root.Sync()
	}
	root = zap.New(core)
	categories = opts.Categories
	loggers = make(map[Category]*Logger)

	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", s)
	}
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if root == nil {
		return false
	}
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger before Initialize or when the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category, sugar: zap.NewNop().Sugar()}
	if categoryEnabledLocked(category) {
		l.sugar = root.Named(string(category)).Sugar()
	}
	// Nop loggers are not cached so a later Initialize takes effect.
	if root != nil {
		loggers[category] = l
	}
	return l
}

// Zap exposes the underlying structured logger for callers that want typed fields.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a child logger carrying key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered entries (call at shutdown)
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// reset drops the core; used by tests.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	root = nil
	categories = nil
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warn(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// Server logs to the server category
func Server(format string, args ...interface{}) {
	Get(CategoryServer).Info(format, args...)
}

// ServerDebug logs debug to the server category
func ServerDebug(format string, args ...interface{}) {
	Get(CategoryServer).Debug(format, args...)
}

// ServerWarn logs a warning to the server category
func ServerWarn(format string, args ...interface{}) {
	Get(CategoryServer).Warn(format, args...)
}

// Pipeline logs to the pipeline category
func Pipeline(format string, args ...interface{}) {
	Get(CategoryPipeline).Info(format, args...)
}

// PipelineDebug logs debug to the pipeline category
func PipelineDebug(format string, args ...interface{}) {
	Get(CategoryPipeline).Debug(format, args...)
}

// PipelineWarn logs a warning to the pipeline category
func PipelineWarn(format string, args ...interface{}) {
	Get(CategoryPipeline).Warn(format, args...)
}

// Prompts logs to the prompts category
func Prompts(format string, args ...interface{}) {
	Get(CategoryPrompts).Info(format, args...)
}

// PromptsDebug logs debug to the prompts category
func PromptsDebug(format string, args ...interface{}) {
	Get(CategoryPrompts).Debug(format, args...)
}

// SchemaDebug logs debug to the schema category
func SchemaDebug(format string, args ...interface{}) {
	Get(CategorySchema).Debug(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// Projects logs to the projects category
func Projects(format string, args ...interface{}) {
	Get(CategoryProjects).Info(format, args...)
}

// ProjectsDebug logs debug to the projects category
func ProjectsDebug(format string, args ...interface{}) {
	Get(CategoryProjects).Debug(format, args...)
}

// Planner logs to the planner category
func Planner(format string, args ...interface{}) {
	Get(CategoryPlanner).Info(format, args...)
}

// PlannerDebug logs debug to the planner category
func PlannerDebug(format string, args ...interface{}) {
	Get(CategoryPlanner).Debug(format, args...)
}

// Research logs to the research category
func Research(format string, args ...interface{}) {
	Get(CategoryResearch).Info(format, args...)
}

// ResearchDebug logs debug to the research category
func ResearchDebug(format string, args ...interface{}) {
	Get(CategoryResearch).Debug(format, args...)
}

// ResearchWarn logs a warning to the research category
func ResearchWarn(format string, args ...interface{}) {
	Get(CategoryResearch).Warn(format, args...)
}
