package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"consent-ledger/pkg/requestcontext"
)

// Emitter is the interface for audit event emission.
// Satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Logger writes an audit event to the structured log and hands it to the
// emitter. Either side may be nil.
type Logger struct {
	textLogger *slog.Logger
	emitter    Emitter
}

func NewLogger(textLogger *slog.Logger, emitter Emitter) *Logger {
	return &Logger{
		textLogger: textLogger,
		emitter:    emitter,
	}
}

// Record enriches the event with an ID, category, request ID and timestamp
// from ctx, then logs and emits it. Emission failures are logged, never
// returned: audit must not roll back a committed ledger transition.
func (l *Logger) Record(ctx context.Context, event Event) {
	if l == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}

	l.logToText(ctx, event)
	l.emit(ctx, event)
}

func (l *Logger) logToText(ctx context.Context, event Event) {
	if l.textLogger == nil {
		return
	}
	args := []any{
		"event", event.Action,
		"log_type", "audit",
		"category", event.Category,
		"actor", event.Actor,
		"subject", event.Subject,
	}
	if event.StudyID != 0 {
		args = append(args, "study_id", event.StudyID)
	}
	if event.ConsentID != 0 {
		args = append(args, "consent_id", event.ConsentID)
	}
	if event.Decision != "" {
		args = append(args, "decision", event.Decision)
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	l.textLogger.InfoContext(ctx, event.Action, args...)
}

func (l *Logger) emit(ctx context.Context, event Event) {
	if l.emitter == nil {
		return
	}
	if err := l.emitter.Emit(ctx, event); err != nil && l.textLogger != nil {
		l.textLogger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"event", event.Action,
		)
	}
}
