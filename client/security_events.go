package client

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// NIST SP 800-92 event types.
const (
	EventAuthentication   = "authentication"
	EventSessionLifecycle = "session_lifecycle"
)

// Security event subtypes.
const (
	SubtypeAuthAttempt   = "attempt"
	SubtypeAuthSuccess   = "success"
	SubtypeAuthFailure   = "failure"
	SubtypeSessionOpen   = "open"
	SubtypeSessionClosed = "closed"
)

// Security event outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAttempt = "attempt"
)

// Security event severities.
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// SecurityEvent is a structured security log record compliant with NIST SP 800-92.
type SecurityEvent struct {
	Timestamp string `json:"timestamp"`  // ISO 8601 UTC
	EventType string `json:"event_type"` // authentication, session_lifecycle
	Subtype   string `json:"subtype"`
	Severity  string `json:"severity"`

	Source        string `json:"source"`
	Target        string `json:"target"`              // service/server
	Mechanism     string `json:"mechanism,omitempty"` // set once Start succeeds
	CorrelationID string `json:"correlation_id"`      // one per Client

	Action  string         `json:"action"`
	Outcome string         `json:"outcome"`
	Details map[string]any `json:"details,omitempty"`
}

// SecurityLogger writes security events for one Client.
type SecurityLogger struct {
	logger        *slog.Logger
	target        string
	mechanism     string
	correlationID string
}

// NewSecurityLogger creates a logger with a fresh correlation id. A nil
// logger disables events.
func NewSecurityLogger(logger *slog.Logger, target string) *SecurityLogger {
	return &SecurityLogger{
		logger:        logger,
		target:        target,
		correlationID: uuid.New().String(),
	}
}

// CorrelationID returns the id attached to every event of this logger.
func (l *SecurityLogger) CorrelationID() string {
	return l.correlationID
}

func (l *SecurityLogger) setMechanism(mech string) {
	if l != nil {
		l.mechanism = mech
	}
}

// LogEvent constructs and logs a security event.
func (l *SecurityLogger) LogEvent(eventType, subtype, severity, outcome string, details map[string]any) {
	if l == nil || l.logger == nil {
		return
	}

	event := &SecurityEvent{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EventType:     eventType,
		Subtype:       subtype,
		Severity:      severity,
		Source:        "go-sasl2",
		Target:        l.target,
		Mechanism:     l.mechanism,
		CorrelationID: l.correlationID,
		Action:        eventType + "." + subtype,
		Outcome:       outcome,
		Details:       details,
	}
	if details == nil {
		event.Details = make(map[string]any)
	}

	switch severity {
	case SeverityWarning:
		l.logger.Warn("SecurityEvent", "event", event)
	case SeverityError, SeverityCritical:
		l.logger.Error("SecurityEvent", "event", event)
	default:
		l.logger.Info("SecurityEvent", "event", event)
	}
}

// LogAuthentication logs negotiation events.
func (l *SecurityLogger) LogAuthentication(subtype, outcome, severity string, details map[string]any) {
	l.LogEvent(EventAuthentication, subtype, severity, outcome, details)
}

// LogSession logs Client creation and disposal.
func (l *SecurityLogger) LogSession(subtype, outcome, severity string, details map[string]any) {
	l.LogEvent(EventSessionLifecycle, subtype, severity, outcome, details)
}

// String returns the JSON representation of the event.
func (e *SecurityEvent) String() string {
	b, _ := json.Marshal(e)
	return string(b)
}
