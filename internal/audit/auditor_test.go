package audit

import (
	"context"
	"errors"
	"testing"

	"holylandtour/internal/database"
	"holylandtour/internal/logger"
	"holylandtour/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateAuditLogEvent(ctx context.Context, params database.CreateAuditLogEventParams) (database.AuditLogEvent, error) {
	args := m.Called(params)
	return args.Get(0).(database.AuditLogEvent), args.Error(1)
}

func TestAuditor_LogEvent(t *testing.T) {
	adminID := uuid.New()

	tests := []struct {
		name       string
		params     LogEventParams
		setupMocks func(*mockStore)
		wantErr    bool
	}{
		{
			name:   "admin event",
			params: LogEventParams{AdminID: util.Some(adminID), Type: EventTypeRegistrationExport, Data: map[string]any{"rows": 3}},
			setupMocks: func(s *mockStore) {
				s.On("CreateAuditLogEvent", database.CreateAuditLogEventParams{
					AdminID:   util.Some(adminID),
					EventType: "registration.export",
					EventData: []byte(`{"rows":3}`),
				}).Return(database.AuditLogEvent{}, nil)
			},
		},
		{
			name:   "anonymous failed login",
			params: LogEventParams{Type: EventTypeAdminLoginFailed, Data: map[string]any{"email": "x@example.com"}},
			setupMocks: func(s *mockStore) {
				s.On("CreateAuditLogEvent", database.CreateAuditLogEventParams{
					EventType: "admin.login_failed",
					EventData: []byte(`{"email":"x@example.com"}`),
				}).Return(database.AuditLogEvent{}, nil)
			},
		},
		{
			name:   "store error",
			params: LogEventParams{Type: EventTypeAdminLogout},
			setupMocks: func(s *mockStore) {
				s.On("CreateAuditLogEvent", mock.Anything).Return(database.AuditLogEvent{}, errors.New("insert failed"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			tt.setupMocks(store)

			err := NewAuditor(logger.Discard(), store).LogEvent(context.Background(), tt.params)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			store.AssertExpectations(t)
		})
	}
}
