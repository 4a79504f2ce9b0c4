package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"holylandtour/internal/audit"
	"holylandtour/internal/auth"
	"holylandtour/internal/booking"
	"holylandtour/internal/config"
	"holylandtour/internal/database"
	"holylandtour/internal/logger"
	"holylandtour/internal/registration"
	"holylandtour/internal/reporting"
	"holylandtour/internal/storage"
	"holylandtour/internal/stripe"
	"holylandtour/internal/validator"
	"holylandtour/internal/webhook"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRegistrationService struct {
	mock.Mock
}

func (m *mockRegistrationService) Submit(ctx context.Context, req registration.SubmitRequest) (registration.SubmitResult, error) {
	args := m.Called(req)
	return args.Get(0).(registration.SubmitResult), args.Error(1)
}

func (m *mockRegistrationService) Lookup(ctx context.Context, id uuid.UUID) (database.Registration, error) {
	args := m.Called(id)
	return args.Get(0).(database.Registration), args.Error(1)
}

func (m *mockRegistrationService) CurrentFee(now time.Time) registration.Fee {
	return m.Called().Get(0).(registration.Fee)
}

func (m *mockRegistrationService) Tour() config.TourConfig {
	return m.Called().Get(0).(config.TourConfig)
}

type mockBookingService struct {
	mock.Mock
}

func (m *mockBookingService) Submit(ctx context.Context, req booking.SubmitRequest) (booking.SubmitResult, error) {
	args := m.Called(req)
	return args.Get(0).(booking.SubmitResult), args.Error(1)
}

func (m *mockBookingService) Lookup(ctx context.Context, id uuid.UUID) (database.HotelBooking, error) {
	args := m.Called(id)
	return args.Get(0).(database.HotelBooking), args.Error(1)
}

func (m *mockBookingService) AvailableRoomTypes(ctx context.Context) ([]database.RoomType, error) {
	args := m.Called()
	return args.Get(0).([]database.RoomType), args.Error(1)
}

func (m *mockBookingService) Nights() int {
	return 10
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Handle(ctx context.Context, payload []byte, signatureHeader string) error {
	return m.Called(string(payload), signatureHeader).Error(0)
}

type mockAuthenticator struct {
	mock.Mock
}

func (m *mockAuthenticator) Login(ctx context.Context, email, password string) (database.AdminUser, string, error) {
	args := m.Called(email, password)
	return args.Get(0).(database.AdminUser), args.String(1), args.Error(2)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) Dashboard(ctx context.Context) (reporting.Dashboard, error) {
	args := m.Called()
	return args.Get(0).(reporting.Dashboard), args.Error(1)
}

func (m *mockReporter) ExportRegistrations(ctx context.Context) (reporting.Export, error) {
	args := m.Called()
	return args.Get(0).(reporting.Export), args.Error(1)
}

type recordingAuditor struct {
	events []audit.EventType
}

func (a *recordingAuditor) Record(ctx context.Context, params audit.LogEventParams) {
	a.events = append(a.events, params.Type)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

// tokenResolver accepts "Bearer <admin id>" for the admins it knows.
type tokenResolver struct {
	admins map[uuid.UUID]database.AdminUser
}

func (r tokenResolver) ParseToken(token string) (uuid.UUID, auth.Claims, error) {
	id, err := uuid.Parse(token)
	if err != nil {
		return uuid.Nil, auth.Claims{}, auth.ErrInvalidToken
	}
	return id, auth.Claims{}, nil
}

func (r tokenResolver) Admin(ctx context.Context, id uuid.UUID) (database.AdminUser, error) {
	admin, ok := r.admins[id]
	if !ok {
		return database.AdminUser{}, auth.ErrInvalidToken
	}
	return admin, nil
}

type fakeFiles map[string]string

func (f fakeFiles) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	body, ok := f[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type testDeps struct {
	registration *mockRegistrationService
	booking      *mockBookingService
	processor    *mockProcessor
	authn        *mockAuthenticator
	reporter     *mockReporter
	auditor      *recordingAuditor
	pinger       stubPinger
	admins       map[uuid.UUID]database.AdminUser
	files        fakeFiles
}

func newTestDeps() *testDeps {
	return &testDeps{
		registration: &mockRegistrationService{},
		booking:      &mockBookingService{},
		processor:    &mockProcessor{},
		authn:        &mockAuthenticator{},
		reporter:     &mockReporter{},
		auditor:      &recordingAuditor{},
		admins:       map[uuid.UUID]database.AdminUser{},
		files:        fakeFiles{},
	}
}

func (d *testDeps) app() *fiber.App {
	log := logger.Discard()
	cfg := config.Config{
		Auth: config.AuthConfig{
			MaxLoginAttempts:  100,
			MaxIntakeAttempts: 100,
			AttemptWindow:     time.Minute,
		},
	}
	return NewApp(RouterConfig{
		Logger:       &logger.Logger{Logger: log},
		Config:       cfg,
		Resolver:     tokenResolver{admins: d.admins},
		Authorizer:   auth.RoleAuthorizer{},
		Registration: NewRegistrationHandler(log, d.registration),
		Booking:      NewBookingHandler(log, d.booking),
		Webhook:      NewWebhookHandler(log, d.processor),
		Auth:         NewAuthHandler(log, d.authn, nil, d.auditor),
		Admin:        NewAdminHandler(log, d.reporter, d.files, d.auditor),
		Health:       NewHealthHandler(log, d.pinger),
	})
}

func (d *testDeps) addAdmin(role database.AdminRole) uuid.UUID {
	id := uuid.New()
	d.admins[id] = database.AdminUser{ID: id, Email: string(role) + "@holylandtour.com", Role: role, IsActive: true}
	return id
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestRegistrationHandler_Create(t *testing.T) {
	regID := uuid.New()
	validationErr := validator.New().Validate(registration.SubmitRequest{})
	require.Error(t, validationErr)

	body := map[string]any{
		"firstName":       "Ada",
		"lastName":        "Lovelace",
		"email":           "ada@example.com",
		"phone":           "5551234567",
		"registrationFee": 4500,
	}

	tests := []struct {
		name       string
		body       any
		setupMocks func(*mockRegistrationService)
		wantStatus int
		check      func(t *testing.T, out map[string]any)
	}{
		{
			name: "created",
			body: body,
			setupMocks: func(s *mockRegistrationService) {
				s.On("Submit", mock.MatchedBy(func(r registration.SubmitRequest) bool {
					return r.Email == "ada@example.com" && r.RegistrationFee == 4500
				})).Return(registration.SubmitResult{RegistrationID: regID, SessionID: "cs_test_1", CheckoutURL: "https://checkout.stripe.com/c/cs_test_1"}, nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, regID.String(), out["registrationId"])
				assert.Equal(t, "cs_test_1", out["clientSecret"])
				assert.Equal(t, "https://checkout.stripe.com/c/cs_test_1", out["checkoutUrl"])
			},
		},
		{
			name: "validation failure",
			body: map[string]any{},
			setupMocks: func(s *mockRegistrationService) {
				s.On("Submit", mock.Anything).Return(registration.SubmitResult{}, fmt.Errorf("%w: %w", registration.ErrInvalidRequest, validationErr))
			},
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "Invalid registration data", out["error"])
				details, ok := out["details"].([]any)
				require.True(t, ok)
				assert.NotEmpty(t, details)
			},
		},
		{
			name: "duplicate email",
			body: body,
			setupMocks: func(s *mockRegistrationService) {
				s.On("Submit", mock.Anything).Return(registration.SubmitResult{}, registration.ErrAlreadyRegistered)
			},
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "This email is already registered for the tour", out["error"])
			},
		},
		{
			name: "checkout unavailable",
			body: body,
			setupMocks: func(s *mockRegistrationService) {
				s.On("Submit", mock.Anything).Return(registration.SubmitResult{}, registration.ErrCheckoutUnavailable)
			},
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "Internal server error", out["error"])
			},
		},
		{
			name:       "malformed body",
			body:       "{not json",
			setupMocks: func(s *mockRegistrationService) {},
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "Invalid registration data", out["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			tt.setupMocks(deps.registration)

			status, out := doJSON(t, deps.app(), "POST", "/api/registration", tt.body, nil)
			assert.Equal(t, tt.wantStatus, status)
			tt.check(t, out)
			deps.registration.AssertExpectations(t)
		})
	}
}

func TestRegistrationHandler_Get(t *testing.T) {
	regID := uuid.New()

	tests := []struct {
		name       string
		query      string
		setupMocks func(*mockRegistrationService)
		wantStatus int
		wantError  string
	}{
		{name: "missing id", query: "", setupMocks: func(s *mockRegistrationService) {}, wantStatus: 400, wantError: "Registration ID is required"},
		{name: "invalid id", query: "?id=abc", setupMocks: func(s *mockRegistrationService) {}, wantStatus: 400, wantError: "Invalid registration ID"},
		{
			name:  "not found",
			query: "?id=" + regID.String(),
			setupMocks: func(s *mockRegistrationService) {
				s.On("Lookup", regID).Return(database.Registration{}, database.ErrRegistrationNotFound)
			},
			wantStatus: 404,
			wantError:  "Registration not found",
		},
		{
			name:  "store error",
			query: "?id=" + regID.String(),
			setupMocks: func(s *mockRegistrationService) {
				s.On("Lookup", regID).Return(database.Registration{}, errors.New("timeout"))
			},
			wantStatus: 500,
			wantError:  "Internal server error",
		},
		{
			name:  "found",
			query: "?id=" + regID.String(),
			setupMocks: func(s *mockRegistrationService) {
				s.On("Lookup", regID).Return(database.Registration{
					ID: regID, FirstName: "Ada", Email: "ada@example.com",
					RegistrationFeeCents: 450000, PaymentStatus: database.PaymentStatusPaid,
				}, nil)
			},
			wantStatus: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			tt.setupMocks(deps.registration)

			status, out := doJSON(t, deps.app(), "GET", "/api/registration"+tt.query, nil, nil)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, out["error"])
				return
			}
			assert.Equal(t, regID.String(), out["id"])
			assert.Equal(t, 4500.0, out["registrationFee"])
			assert.Equal(t, "paid", out["paymentStatus"])
			assert.Nil(t, out["stripePaymentId"])
		})
	}
}

func TestRegistrationHandler_Tour(t *testing.T) {
	deps := newTestDeps()
	tour := config.TourConfig{
		Name:              "Holy Land Tour",
		StartDate:         time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC),
		EarlyBirdDeadline: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
		EarlyBirdFeeCents: 450000,
		StandardFeeCents:  500000,
	}
	deps.registration.On("Tour").Return(tour)
	deps.registration.On("CurrentFee").Return(registration.Fee{AmountCents: 450000, EarlyBird: true, Deadline: tour.EarlyBirdDeadline})

	status, out := doJSON(t, deps.app(), "GET", "/api/tour", nil, nil)
	assert.Equal(t, 200, status)
	assert.Equal(t, "March 15-25, 2025", out["dateRange"])
	assert.Equal(t, 10.0, out["nights"])
	assert.Equal(t, 4500.0, out["registrationFee"])
	assert.Equal(t, true, out["earlyBird"])
	assert.Equal(t, "2025-02-15", out["earlyBirdDeadline"])
}

func TestBookingHandler_Create(t *testing.T) {
	bookingID := uuid.New()
	body := map[string]any{
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"email":     "ada@example.com",
		"phone":     "5551234567",
		"roomType":  "deluxe-suite",
	}

	tests := []struct {
		name       string
		submitErr  error
		wantStatus int
		wantError  string
	}{
		{name: "created", wantStatus: 200},
		{name: "unknown room type", submitErr: booking.ErrUnknownRoomType, wantStatus: 400, wantError: "Selected room type does not exist"},
		{name: "sold out", submitErr: booking.ErrRoomTypeSoldOut, wantStatus: 400, wantError: "Selected room type is sold out"},
		{name: "invalid", submitErr: fmt.Errorf("%w: bad phone", booking.ErrInvalidRequest), wantStatus: 400, wantError: "Invalid booking data"},
		{name: "internal", submitErr: errors.New("db down"), wantStatus: 500, wantError: "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			result := booking.SubmitResult{}
			if tt.submitErr == nil {
				result = booking.SubmitResult{BookingID: bookingID, SessionID: "cs_test_2", CheckoutURL: "https://checkout.stripe.com/c/cs_test_2"}
			}
			deps.booking.On("Submit", mock.MatchedBy(func(r booking.SubmitRequest) bool {
				return r.RoomType == "deluxe-suite"
			})).Return(result, tt.submitErr)

			status, out := doJSON(t, deps.app(), "POST", "/api/hotel-booking", body, nil)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, out["error"])
				return
			}
			assert.Equal(t, bookingID.String(), out["bookingId"])
			assert.Equal(t, "cs_test_2", out["clientSecret"])
		})
	}
}

func TestBookingHandler_GetAndRooms(t *testing.T) {
	deps := newTestDeps()
	bookingID := uuid.New()
	deps.booking.On("Lookup", bookingID).Return(database.HotelBooking{
		ID: bookingID, RoomTypeID: "deluxe-suite", NumberOfNights: 10,
		CheckInDate:    time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		CheckOutDate:   time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC),
		RoomPriceCents: 25000, TotalAmountCents: 250000, PaymentStatus: database.PaymentStatusPending,
	}, nil)
	deps.booking.On("AvailableRoomTypes").Return([]database.RoomType{
		{ID: "standard-single", Name: "Standard Single", PricePerNightCents: 12000, AvailableRooms: 10, IsActive: true},
	}, nil)
	app := deps.app()

	status, out := doJSON(t, app, "GET", "/api/hotel-booking?id="+bookingID.String(), nil, nil)
	assert.Equal(t, 200, status)
	assert.Equal(t, "2025-03-15", out["checkInDate"])
	assert.Equal(t, 2500.0, out["totalAmount"])

	status, out = doJSON(t, app, "GET", "/api/hotel-booking", nil, nil)
	assert.Equal(t, 400, status)
	assert.Equal(t, "Booking ID is required", out["error"])

	status, out = doJSON(t, app, "GET", "/api/rooms", nil, nil)
	assert.Equal(t, 200, status)
	rooms := out["rooms"].([]any)
	require.Len(t, rooms, 1)
	room := rooms[0].(map[string]any)
	assert.Equal(t, 120.0, room["pricePerNight"])
	assert.Equal(t, 1200.0, room["totalPrice"])
	assert.Equal(t, []any{}, room["amenities"])
}

func TestWebhookHandler_Stripe(t *testing.T) {
	tests := []struct {
		name       string
		signature  string
		handleErr  error
		wantStatus int
		want       map[string]any
	}{
		{name: "processed", signature: "t=1,v1=abc", wantStatus: 200, want: map[string]any{"received": true}},
		{name: "missing signature", handleErr: webhook.ErrMissingSignature, wantStatus: 400, want: map[string]any{"error": "No signature provided"}},
		{name: "invalid signature", signature: "t=1,v1=bad", handleErr: fmt.Errorf("%w: mismatch", stripe.ErrInvalidSignature), wantStatus: 400, want: map[string]any{"error": "Invalid signature"}},
		{name: "processing failure", signature: "t=1,v1=abc", handleErr: errors.New("db down"), wantStatus: 500, want: map[string]any{"error": "Webhook handler failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			deps.processor.On("Handle", `{"id":"evt_1"}`, tt.signature).Return(tt.handleErr)

			headers := map[string]string{}
			if tt.signature != "" {
				headers["Stripe-Signature"] = tt.signature
			}
			status, out := doJSON(t, deps.app(), "POST", "/api/webhooks/stripe", `{"id":"evt_1"}`, headers)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.want, out)
			deps.processor.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	admin := database.AdminUser{ID: uuid.New(), Email: "admin@holylandtour.com", Name: "Tour Admin", Role: database.AdminRoleAdmin, IsActive: true}

	tests := []struct {
		name       string
		body       map[string]any
		setupMocks func(*mockAuthenticator)
		wantStatus int
		wantEvent  audit.EventType
	}{
		{
			name: "success",
			body: map[string]any{"email": "admin@holylandtour.com", "password": "Str0ng!Passw0rd"},
			setupMocks: func(a *mockAuthenticator) {
				a.On("Login", "admin@holylandtour.com", "Str0ng!Passw0rd").Return(admin, "jwt-token", nil)
			},
			wantStatus: 200,
			wantEvent:  audit.EventTypeAdminLogin,
		},
		{
			name: "wrong password",
			body: map[string]any{"email": "admin@holylandtour.com", "password": "nope"},
			setupMocks: func(a *mockAuthenticator) {
				a.On("Login", "admin@holylandtour.com", "nope").Return(database.AdminUser{}, "", auth.ErrInvalidCredentials)
			},
			wantStatus: 401,
			wantEvent:  audit.EventTypeAdminLoginFailed,
		},
		{
			name:       "missing fields",
			body:       map[string]any{"email": "admin@holylandtour.com"},
			setupMocks: func(a *mockAuthenticator) {},
			wantStatus: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			tt.setupMocks(deps.authn)

			status, out := doJSON(t, deps.app(), "POST", "/api/auth/login", tt.body, nil)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantStatus == 200 {
				assert.Equal(t, "jwt-token", out["token"])
			}
			if tt.wantEvent != "" {
				assert.Equal(t, []audit.EventType{tt.wantEvent}, deps.auditor.events)
			} else {
				assert.Empty(t, deps.auditor.events)
			}
		})
	}
}

func TestAdminHandler(t *testing.T) {
	deps := newTestDeps()
	adminID := deps.addAdmin(database.AdminRoleAdmin)
	superID := deps.addAdmin(database.AdminRoleSuperAdmin)
	deps.reporter.On("Dashboard").Return(reporting.Dashboard{TotalRegistrations: 3, TotalRevenue: 9000}, nil)
	deps.reporter.On("ExportRegistrations").Return(reporting.Export{Key: "exports/registrations/a.csv", URL: "/api/admin/files/exports/registrations/a.csv", Rows: 3}, nil)
	deps.files["exports/registrations/a.csv"] = "id,email\n"
	app := deps.app()

	bearer := func(id uuid.UUID) map[string]string {
		return map[string]string{"Authorization": "Bearer " + id.String()}
	}

	status, out := doJSON(t, app, "GET", "/api/admin/dashboard", nil, nil)
	assert.Equal(t, 401, status)
	assert.Equal(t, "Unauthorized", out["error"])

	status, _ = doJSON(t, app, "GET", "/api/admin/dashboard", nil, bearer(uuid.New()))
	assert.Equal(t, 401, status)

	status, out = doJSON(t, app, "GET", "/api/admin/dashboard", nil, bearer(adminID))
	assert.Equal(t, 200, status)
	assert.Equal(t, 3.0, out["totalRegistrations"])
	assert.Equal(t, 9000.0, out["totalRevenue"])

	status, out = doJSON(t, app, "POST", "/api/admin/exports/registrations", nil, bearer(adminID))
	assert.Equal(t, 403, status)
	assert.Equal(t, "Forbidden", out["error"])

	status, out = doJSON(t, app, "POST", "/api/admin/exports/registrations", nil, bearer(superID))
	assert.Equal(t, 200, status)
	assert.Equal(t, 3.0, out["rows"])
	assert.Equal(t, []audit.EventType{audit.EventTypeRegistrationExport}, deps.auditor.events)

	req := httptest.NewRequest("GET", "/api/admin/files/exports/registrations/a.csv", nil)
	req.Header.Set("Authorization", "Bearer "+superID.String())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "id,email\n", string(body))

	status, _ = doJSON(t, app, "GET", "/api/admin/files/exports/missing.csv", nil, bearer(superID))
	assert.Equal(t, 404, status)
}

func TestAdminHandler_DashboardError(t *testing.T) {
	deps := newTestDeps()
	adminID := deps.addAdmin(database.AdminRoleAdmin)
	deps.reporter.On("Dashboard").Return(reporting.Dashboard{}, errors.New("db down"))

	status, out := doJSON(t, deps.app(), "GET", "/api/admin/dashboard", nil, map[string]string{"Authorization": "Bearer " + adminID.String()})
	assert.Equal(t, 500, status)
	assert.Equal(t, "Failed to fetch dashboard data", out["error"])
}

func TestHealthHandler(t *testing.T) {
	deps := newTestDeps()
	status, out := doJSON(t, deps.app(), "GET", "/api/health", nil, nil)
	assert.Equal(t, 200, status)
	assert.Equal(t, "healthy", out["status"])

	deps.pinger = stubPinger{err: errors.New("connection refused")}
	status, out = doJSON(t, deps.app(), "GET", "/api/health", nil, nil)
	assert.Equal(t, 503, status)
	assert.Equal(t, "unhealthy", out["status"])
}
