package logging

import (
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names a structured audit event.
type AuditEventType string

const (
	// Pipeline events
	AuditStageRun      AuditEventType = "stage_run"
	AuditStageFallback AuditEventType = "stage_fallback"
	AuditStageInvalid  AuditEventType = "stage_invalid"

	// Generation backend events
	AuditLLMCall AuditEventType = "llm_call"

	// Project document events
	AuditProjectSave    AuditEventType = "project_save"
	AuditProjectPublish AuditEventType = "project_publish"

	// Research events
	AuditResearchLookup AuditEventType = "research_lookup"

	// Access events
	AuditAccessDenied AuditEventType = "access_denied"
)

// AuditEvent is one structured audit record.
type AuditEvent struct {
	EventType AuditEventType
	Target    string // project id, stage name, model
	Action    string
	Success   bool
	Duration  time.Duration
	Error     string
	Fields    map[string]interface{}
}

// AuditLogger writes audit events through the "audit" category.
type AuditLogger struct {
	requestID string
}

// Audit returns an audit logger with no request correlation.
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithRequest returns an audit logger that tags every event with requestID.
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	l := Get("audit").Zap()

	fields := []zap.Field{
		zap.String("event", string(event.EventType)),
		zap.Bool("success", event.Success),
	}
	if a.requestID != "" {
		fields = append(fields, zap.String("req", a.requestID))
	}
	if event.Target != "" {
		fields = append(fields, zap.String("target", event.Target))
	}
	if event.Action != "" {
		fields = append(fields, zap.String("action", event.Action))
	}
	if event.Duration > 0 {
		fields = append(fields, zap.Int64("dur_ms", event.Duration.Milliseconds()))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Fields {
		fields = append(fields, zap.Any(k, v))
	}

	if event.Success {
		l.Info(string(event.EventType), fields...)
	} else {
		l.Warn(string(event.EventType), fields...)
	}
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// StageRun records a completed stage call.
func (a *AuditLogger) StageRun(stage string, dur time.Duration, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditStageRun,
		Target:    stage,
		Success:   success,
		Duration:  dur,
		Error:     errMsg,
	})
}

// StageFallback records a stage answered from canned data.
func (a *AuditLogger) StageFallback(stage, reason string) {
	a.Log(AuditEvent{
		EventType: AuditStageFallback,
		Target:    stage,
		Success:   true,
		Error:     reason,
	})
}

// StageInvalid records a stage whose output failed validation.
func (a *AuditLogger) StageInvalid(stage string, issues int) {
	a.Log(AuditEvent{
		EventType: AuditStageInvalid,
		Target:    stage,
		Fields:    map[string]interface{}{"issues": issues},
	})
}

// LLMCall records a generation backend call.
func (a *AuditLogger) LLMCall(provider, model string, dur time.Duration, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditLLMCall,
		Target:    model,
		Action:    provider,
		Success:   success,
		Duration:  dur,
		Error:     errMsg,
	})
}

// ProjectSave records a draft save.
func (a *AuditLogger) ProjectSave(projectID string, created bool, success bool, errMsg string) {
	action := "update"
	if created {
		action = "create"
	}
	a.Log(AuditEvent{
		EventType: AuditProjectSave,
		Target:    projectID,
		Action:    action,
		Success:   success,
		Error:     errMsg,
	})
}

// ProjectPublish records a publish.
func (a *AuditLogger) ProjectPublish(projectID string, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditProjectPublish,
		Target:    projectID,
		Success:   success,
		Error:     errMsg,
	})
}

// ResearchLookup records a claim research batch.
func (a *AuditLogger) ResearchLookup(claims, sources int, dur time.Duration) {
	a.Log(AuditEvent{
		EventType: AuditResearchLookup,
		Success:   true,
		Duration:  dur,
		Fields:    map[string]interface{}{"claims": claims, "sources": sources},
	})
}

// AccessDenied records a rejected privileged request.
func (a *AuditLogger) AccessDenied(userID, resource string) {
	a.Log(AuditEvent{
		EventType: AuditAccessDenied,
		Target:    resource,
		Fields:    map[string]interface{}{"user": userID},
	})
}
