// Package consumer ingests ledger audit events from the event stream into a
// queryable audit store.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"consent-ledger/internal/platform/kafka/consumer"
	audit "consent-ledger/pkg/platform/audit"
	"consent-ledger/pkg/platform/audit/metrics"
)

// Handler implements consumer.Handler. Malformed records are skipped so they
// cannot block the partition; store failures are returned so the record
// stays uncommitted.
type Handler struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHandler(store audit.Store, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger, metrics: m}
}

func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, err := uuid.ParseBytes(msg.Key)
	if err != nil {
		h.logger.Error("failed to parse event ID from message key",
			"key", string(msg.Key),
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	var event audit.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("failed to unmarshal audit payload",
			"event_id", eventID,
			"error", err,
		)
		return nil
	}
	// The key is authoritative for idempotency.
	event.ID = eventID.String()
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if err := h.store.Append(ctx, event); err != nil {
		return fmt.Errorf("store audit event %s: %w", eventID, err)
	}
	if h.metrics != nil {
		h.metrics.IncEventsIngested()
	}
	h.logger.Debug("ingested audit event",
		"event_id", eventID,
		"action", event.Action,
	)
	return nil
}
