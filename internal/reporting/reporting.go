package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"holylandtour/internal/database"
	"holylandtour/internal/util"

	"github.com/google/uuid"
)

const (
	recentLimit    = 10
	exportPrefix   = "exports/registrations"
	exportURLTTL   = 15 * time.Minute
	csvContentType = "text/csv"
)

type Store interface {
	GetDashboardStats(ctx context.Context) (database.DashboardStats, error)
	ListRegistrations(ctx context.Context, params database.ListRegistrationsParams) ([]database.Registration, error)
	ListHotelBookings(ctx context.Context, params database.ListHotelBookingsParams) ([]database.HotelBooking, error)
}

type FileStorage interface {
	Store(ctx context.Context, prefix, filename string, content io.Reader, contentType string) (string, error)
	GetURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

type Service struct {
	logger  *slog.Logger
	store   Store
	storage FileStorage
	now     func() time.Time
}

func NewService(logger *slog.Logger, store Store, storage FileStorage) *Service {
	return &Service{
		logger:  logger,
		store:   store,
		storage: storage,
		now:     time.Now,
	}
}

type RecentRegistration struct {
	ID               uuid.UUID              `json:"id"`
	FirstName        string                 `json:"firstName"`
	LastName         string                 `json:"lastName"`
	Email            string                 `json:"email"`
	RegistrationFee  float64                `json:"registrationFee"`
	PaymentStatus    database.PaymentStatus `json:"paymentStatus"`
	RegistrationDate time.Time              `json:"registrationDate"`
}

type RecentBooking struct {
	ID            uuid.UUID              `json:"id"`
	FirstName     string                 `json:"firstName"`
	LastName      string                 `json:"lastName"`
	Email         string                 `json:"email"`
	RoomType      string                 `json:"roomType"`
	TotalAmount   float64                `json:"totalAmount"`
	PaymentStatus database.PaymentStatus `json:"paymentStatus"`
	BookingDate   time.Time              `json:"bookingDate"`
}

type Dashboard struct {
	TotalRegistrations  int64                `json:"totalRegistrations"`
	TotalHotelBookings  int64                `json:"totalHotelBookings"`
	TotalRevenue        float64              `json:"totalRevenue"`
	PendingPayments     int64                `json:"pendingPayments"`
	RoomsBooked         map[string]int64     `json:"roomsBooked"`
	RecentRegistrations []RecentRegistration `json:"recentRegistrations"`
	RecentBookings      []RecentBooking      `json:"recentBookings"`
}

// Dashboard aggregates counts, paid revenue and the newest rows of both tables.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	stats, err := s.store.GetDashboardStats(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("reporting: failed to load stats: %w", err)
	}

	registrations, err := s.store.ListRegistrations(ctx, database.ListRegistrationsParams{
		Limit:   util.Some(recentLimit),
		OrderBy: database.OrderByDESC,
	})
	if err != nil {
		return Dashboard{}, fmt.Errorf("reporting: failed to load recent registrations: %w", err)
	}

	bookings, err := s.store.ListHotelBookings(ctx, database.ListHotelBookingsParams{
		Limit:   util.Some(recentLimit),
		OrderBy: database.OrderByDESC,
	})
	if err != nil {
		return Dashboard{}, fmt.Errorf("reporting: failed to load recent bookings: %w", err)
	}

	dashboard := Dashboard{
		TotalRegistrations: total(stats.Registrations),
		TotalHotelBookings: total(stats.HotelBookings),
		TotalRevenue: dollars(stats.Registrations[database.PaymentStatusPaid].AmountCents +
			stats.HotelBookings[database.PaymentStatusPaid].AmountCents),
		PendingPayments: stats.Registrations[database.PaymentStatusPending].Count +
			stats.HotelBookings[database.PaymentStatusPending].Count,
		RoomsBooked:         stats.RoomsBooked,
		RecentRegistrations: make([]RecentRegistration, 0, len(registrations)),
		RecentBookings:      make([]RecentBooking, 0, len(bookings)),
	}

	for _, r := range registrations {
		dashboard.RecentRegistrations = append(dashboard.RecentRegistrations, RecentRegistration{
			ID:               r.ID,
			FirstName:        r.FirstName,
			LastName:         r.LastName,
			Email:            r.Email,
			RegistrationFee:  dollars(r.RegistrationFeeCents),
			PaymentStatus:    r.PaymentStatus,
			RegistrationDate: r.RegistrationDate,
		})
	}
	for _, b := range bookings {
		dashboard.RecentBookings = append(dashboard.RecentBookings, RecentBooking{
			ID:            b.ID,
			FirstName:     b.FirstName,
			LastName:      b.LastName,
			Email:         b.Email,
			RoomType:      b.RoomTypeID,
			TotalAmount:   dollars(b.TotalAmountCents),
			PaymentStatus: b.PaymentStatus,
			BookingDate:   b.BookingDate,
		})
	}

	return dashboard, nil
}

type Export struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var exportHeader = []string{
	"id", "title", "first_name", "last_name", "email", "phone", "date_of_birth",
	"address", "city", "state", "zip_code", "country",
	"emergency_contact", "emergency_phone", "dietary_restrictions", "medical_conditions",
	"kingschat_id", "zone", "network",
	"registration_fee", "payment_status", "stripe_payment_id", "registration_date",
}

// ExportRegistrations writes every registration to a CSV file in storage and
// returns a download link.
func (s *Service) ExportRegistrations(ctx context.Context) (Export, error) {
	registrations, err := s.store.ListRegistrations(ctx, database.ListRegistrationsParams{
		OrderBy: database.OrderByASC,
	})
	if err != nil {
		return Export{}, fmt.Errorf("reporting: failed to load registrations: %w", err)
	}

	var buf bytes.Buffer
	if err := writeRegistrationsCSV(&buf, registrations); err != nil {
		return Export{}, fmt.Errorf("reporting: failed to encode registrations: %w", err)
	}

	now := s.now().UTC()
	filename := fmt.Sprintf("registrations-%s.csv", now.Format("20060102-150405"))
	key, err := s.storage.Store(ctx, exportPrefix, filename, &buf, csvContentType)
	if err != nil {
		return Export{}, fmt.Errorf("reporting: failed to store export: %w", err)
	}

	url, err := s.storage.GetURL(ctx, key, exportURLTTL)
	if err != nil {
		return Export{}, fmt.Errorf("reporting: failed to sign export url: %w", err)
	}

	s.logger.InfoContext(ctx, "Registrations exported", "key", key, "rows", len(registrations))

	return Export{
		Key:       key,
		URL:       url,
		Rows:      len(registrations),
		ExpiresAt: now.Add(exportURLTTL),
	}, nil
}

func writeRegistrationsCSV(w io.Writer, registrations []database.Registration) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}

	for _, r := range registrations {
		dob := ""
		if r.DateOfBirth.IsSet {
			dob = r.DateOfBirth.Val.Format(time.DateOnly)
		}
		record := []string{
			r.ID.String(),
			r.Title.UnwrapOr(""),
			r.FirstName,
			r.LastName,
			r.Email,
			r.Phone,
			dob,
			r.Address.UnwrapOr(""),
			r.City.UnwrapOr(""),
			r.State.UnwrapOr(""),
			r.ZipCode.UnwrapOr(""),
			r.Country,
			r.EmergencyContact.UnwrapOr(""),
			r.EmergencyPhone.UnwrapOr(""),
			r.DietaryRestrictions.UnwrapOr(""),
			r.MedicalConditions.UnwrapOr(""),
			r.KingschatID.UnwrapOr(""),
			r.Zone.UnwrapOr(""),
			r.Network.UnwrapOr(""),
			strconv.FormatFloat(dollars(r.RegistrationFeeCents), 'f', 2, 64),
			string(r.PaymentStatus),
			r.StripePaymentID.UnwrapOr(""),
			r.RegistrationDate.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func total(counts map[database.PaymentStatus]database.StatusCount) int64 {
	var n int64
	for _, sc := range counts {
		n += sc.Count
	}
	return n
}

func dollars(cents int64) float64 {
	return float64(cents) / 100
}
