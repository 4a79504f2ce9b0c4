package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"holylandtour/internal/database"
	"holylandtour/internal/util"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeAdminLogin         EventType = "admin.login"
	EventTypeAdminLoginFailed   EventType = "admin.login_failed"
	EventTypeAdminLogout        EventType = "admin.logout"
	EventTypeAdminCreate        EventType = "admin.create"
	EventTypeRegistrationExport EventType = "registration.export"
)

type Store interface {
	CreateAuditLogEvent(ctx context.Context, params database.CreateAuditLogEventParams) (database.AuditLogEvent, error)
}

type Auditor struct {
	logger *slog.Logger
	store  Store
}

func NewAuditor(logger *slog.Logger, store Store) *Auditor {
	return &Auditor{logger: logger, store: store}
}

type LogEventParams struct {
	AdminID util.Optional[uuid.UUID]
	Type    EventType
	Data    map[string]any
}

func (a *Auditor) LogEvent(ctx context.Context, params LogEventParams) error {
	data, err := json.Marshal(params.Data)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event data: %w", err)
	}

	if _, err = a.store.CreateAuditLogEvent(ctx, database.CreateAuditLogEventParams{
		AdminID:   params.AdminID,
		EventType: string(params.Type),
		EventData: data,
	}); err != nil {
		return fmt.Errorf("audit: failed to create event: %w", err)
	}
	return nil
}

// Record logs the event and only reports a failure to the process log.
func (a *Auditor) Record(ctx context.Context, params LogEventParams) {
	if err := a.LogEvent(ctx, params); err != nil {
		a.logger.ErrorContext(ctx, "Failed to record audit event", "type", params.Type, "error", err)
	}
}
