package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"holylandtour/internal/config"
	"holylandtour/internal/database"
	"holylandtour/internal/logger"
	"holylandtour/internal/stripe"
	"holylandtour/internal/telemetry"
	"holylandtour/internal/util"
	"holylandtour/internal/validator"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) RegistrationEmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(email)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) CreateRegistration(ctx context.Context, params database.CreateRegistrationParams) (database.Registration, error) {
	args := m.Called(params)
	return args.Get(0).(database.Registration), args.Error(1)
}

func (m *mockStore) SetRegistrationPaymentRef(ctx context.Context, id uuid.UUID, ref string) error {
	return m.Called(id, ref).Error(0)
}

func (m *mockStore) TransitionRegistration(ctx context.Context, params database.TransitionParams) (database.Registration, bool, error) {
	args := m.Called(params)
	return args.Get(0).(database.Registration), args.Bool(1), args.Error(2)
}

func (m *mockStore) GetRegistrationByID(ctx context.Context, id uuid.UUID) (database.Registration, error) {
	args := m.Called(id)
	return args.Get(0).(database.Registration), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (stripe.CheckoutSession, error) {
	args := m.Called(params)
	return args.Get(0).(stripe.CheckoutSession), args.Error(1)
}

func (m *mockGateway) ExpireCheckoutSession(ctx context.Context, id string) error {
	return m.Called(id).Error(0)
}

var testTour = config.TourConfig{
	Name:              "Holy Land Tour",
	StartDate:         time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
	EndDate:           time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC),
	EarlyBirdDeadline: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
	EarlyBirdFeeCents: 450000,
	StandardFeeCents:  500000,
}

func newTestService(store *mockStore, gateway *mockGateway) *Service {
	return NewService(logger.Discard(), store, gateway, validator.New(), telemetry.NopMetrics(), testTour)
}

func adaRequest() SubmitRequest {
	return SubmitRequest{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "ada@example.com",
		Phone:           "5551234567",
		RegistrationFee: 249,
	}
}

func TestService_Submit(t *testing.T) {
	regID := uuid.New()
	pending := database.Registration{
		ID:                   regID,
		FirstName:            "Ada",
		LastName:             "Lovelace",
		Email:                "ada@example.com",
		RegistrationFeeCents: 24900,
		PaymentStatus:        database.PaymentStatusPending,
	}
	session := stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}
	abandonParams := database.TransitionParams{
		ID:   util.Some(regID),
		From: []database.PaymentStatus{database.PaymentStatusPending},
		To:   database.PaymentStatusAbandoned,
	}

	tests := []struct {
		name       string
		request    func() SubmitRequest
		setupMocks func(*mockStore, *mockGateway)
		wantErr    error
		wantResult SubmitResult
	}{
		{
			name:    "creates pending registration and links checkout session",
			request: adaRequest,
			setupMocks: func(store *mockStore, gateway *mockGateway) {
				store.On("RegistrationEmailExists", "ada@example.com").Return(false, nil)
				store.On("CreateRegistration", mock.MatchedBy(func(p database.CreateRegistrationParams) bool {
					return p.Email == "ada@example.com" && p.RegistrationFeeCents == 24900 && !p.Address.IsSet
				})).Return(pending, nil)
				gateway.On("CreateCheckoutSession", stripe.CheckoutSessionParams{
					Kind:        stripe.KindRegistration,
					EntityID:    regID.String(),
					Email:       "ada@example.com",
					ProductName: "Holy Land Tour Registration",
					Description: "Registration for Ada Lovelace - March 15-25, 2025",
					AmountCents: 24900,
				}).Return(session, nil)
				store.On("SetRegistrationPaymentRef", regID, "cs_test_1").Return(nil)
			},
			wantResult: SubmitResult{RegistrationID: regID, SessionID: session.ID, CheckoutURL: session.URL},
		},
		{
			name:    "duplicate email writes nothing",
			request: adaRequest,
			setupMocks: func(store *mockStore, gateway *mockGateway) {
				store.On("RegistrationEmailExists", "ada@example.com").Return(true, nil)
			},
			wantErr: ErrAlreadyRegistered,
		},
		{
			name:    "unique violation race maps to duplicate",
			request: adaRequest,
			setupMocks: func(store *mockStore, gateway *mockGateway) {
				store.On("RegistrationEmailExists", "ada@example.com").Return(false, nil)
				store.On("CreateRegistration", mock.Anything).Return(database.Registration{}, database.ErrRegistrationEmailTaken)
			},
			wantErr: ErrAlreadyRegistered,
		},
		{
			name: "invalid payload",
			request: func() SubmitRequest {
				req := adaRequest()
				req.Phone = "555"
				req.RegistrationFee = 0
				return req
			},
			setupMocks: func(store *mockStore, gateway *mockGateway) {},
			wantErr:    ErrInvalidRequest,
		},
		{
			name: "padded one-letter name is rejected",
			request: func() SubmitRequest {
				req := adaRequest()
				req.FirstName = " A"
				return req
			},
			setupMocks: func(store *mockStore, gateway *mockGateway) {},
			wantErr:    ErrInvalidRequest,
		},
		{
			name: "fee beyond the checkout limit is rejected",
			request: func() SubmitRequest {
				req := adaRequest()
				req.RegistrationFee = 1e20
				return req
			},
			setupMocks: func(store *mockStore, gateway *mockGateway) {},
			wantErr:    ErrInvalidRequest,
		},
		{
			name: "surrounding whitespace is trimmed before storing",
			request: func() SubmitRequest {
				req := adaRequest()
				req.FirstName = "  Ada "
				req.Email = " ada@example.com "
				return req
			},
			setupMocks: func(store *mockStore, gateway *mockGateway) {
				store.On("RegistrationEmailExists", "ada@example.com").Return(true, nil)
			},
			wantErr: ErrAlreadyRegistered,
		},
		{
			name:    "checkout failure abandons the row",
			request: adaRequest,
			setupMocks: func(store *mockStore, gateway *mockGateway) {
				store.On("RegistrationEmailExists", "ada@example.com").Return(false, nil)
				store.On("CreateRegistration", mock.Anything).Return(pending, nil)
				gateway.On("CreateCheckoutSession", mock.Anything).Return(stripe.CheckoutSession{}, errors.New("stripe down"))
				store.On("TransitionRegistration", abandonParams).Return(pending, true, nil)
			},
			wantErr: ErrCheckoutUnavailable,
		},
		{
			name:    "link failure expires the session and abandons the row",
			request: adaRequest,
			setupMocks: func(store *mockStore, gateway *mockGateway) {
				store.On("RegistrationEmailExists", "ada@example.com").Return(false, nil)
				store.On("CreateRegistration", mock.Anything).Return(pending, nil)
				gateway.On("CreateCheckoutSession", mock.Anything).Return(session, nil)
				store.On("SetRegistrationPaymentRef", regID, "cs_test_1").Return(errors.New("connection reset"))
				gateway.On("ExpireCheckoutSession", "cs_test_1").Return(nil)
				store.On("TransitionRegistration", abandonParams).Return(pending, true, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			gateway := &mockGateway{}
			tt.setupMocks(store, gateway)

			result, err := newTestService(store, gateway).Submit(context.Background(), tt.request())

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantResult == (SubmitResult{}):
				require.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantResult, result)
			}

			store.AssertExpectations(t)
			gateway.AssertExpectations(t)
		})
	}
}

func TestService_Submit_ValidationDetails(t *testing.T) {
	req := adaRequest()
	req.Email = "ada@mailinator.com"
	req.DateOfBirth = "10/12/1815"

	_, err := newTestService(&mockStore{}, &mockGateway{}).Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidRequest)

	var fields []string
	for _, fe := range validator.FieldErrors(err) {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"email", "dateOfBirth"}, fields)
}

func TestService_Lookup(t *testing.T) {
	id := uuid.New()
	store := &mockStore{}
	store.On("GetRegistrationByID", id).Return(database.Registration{}, database.ErrRegistrationNotFound)

	_, err := newTestService(store, &mockGateway{}).Lookup(context.Background(), id)
	assert.ErrorIs(t, err, database.ErrRegistrationNotFound)
	store.AssertExpectations(t)
}

func TestService_CurrentFee(t *testing.T) {
	s := newTestService(&mockStore{}, &mockGateway{})

	early := s.CurrentFee(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, early.EarlyBird)
	assert.Equal(t, int64(450000), early.AmountCents)

	standard := s.CurrentFee(testTour.EarlyBirdDeadline)
	assert.False(t, standard.EarlyBird)
	assert.Equal(t, int64(500000), standard.AmountCents)
}
