package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"holylandtour/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Registration struct {
	ID                   uuid.UUID
	Title                util.Optional[string]
	FirstName            string
	LastName             string
	Email                string
	Phone                string
	DateOfBirth          util.Optional[time.Time]
	Address              util.Optional[string]
	City                 util.Optional[string]
	State                util.Optional[string]
	ZipCode              util.Optional[string]
	Country              string
	EmergencyContact     util.Optional[string]
	EmergencyPhone       util.Optional[string]
	DietaryRestrictions  util.Optional[string]
	MedicalConditions    util.Optional[string]
	KingschatID          util.Optional[string]
	Zone                 util.Optional[string]
	Network              util.Optional[string]
	RegistrationFeeCents int64
	PaymentStatus        PaymentStatus
	StripePaymentID      util.Optional[string]
	RegistrationDate     time.Time
	UpdatedAt            time.Time
}

const registrationColumns = `id, title, first_name, last_name, email, phone, date_of_birth, address, city, state, zip_code, country,
	emergency_contact, emergency_phone, dietary_restrictions, medical_conditions, kingschat_id, zone, network,
	registration_fee_cents, payment_status, stripe_payment_id, registration_date, updated_at`

func scanRegistration(row pgx.Row) (Registration, error) {
	var r Registration
	err := row.Scan(&r.ID, &r.Title, &r.FirstName, &r.LastName, &r.Email, &r.Phone, &r.DateOfBirth, &r.Address, &r.City, &r.State, &r.ZipCode, &r.Country,
		&r.EmergencyContact, &r.EmergencyPhone, &r.DietaryRestrictions, &r.MedicalConditions, &r.KingschatID, &r.Zone, &r.Network,
		&r.RegistrationFeeCents, &r.PaymentStatus, &r.StripePaymentID, &r.RegistrationDate, &r.UpdatedAt)
	return r, err
}

type CreateRegistrationParams struct {
	Title                util.Optional[string]
	FirstName            string
	LastName             string
	Email                string
	Phone                string
	DateOfBirth          util.Optional[time.Time]
	Address              util.Optional[string]
	City                 util.Optional[string]
	State                util.Optional[string]
	ZipCode              util.Optional[string]
	Country              string
	EmergencyContact     util.Optional[string]
	EmergencyPhone       util.Optional[string]
	DietaryRestrictions  util.Optional[string]
	MedicalConditions    util.Optional[string]
	KingschatID          util.Optional[string]
	Zone                 util.Optional[string]
	Network              util.Optional[string]
	RegistrationFeeCents int64
}

// CreateRegistration inserts a pending registration.
func (db *Database) CreateRegistration(ctx context.Context, params CreateRegistrationParams) (Registration, error) {
	now := time.Now().UTC()
	country := params.Country
	if country == "" {
		country = "United States"
	}

	reg := Registration{
		ID:                   uuid.New(),
		Title:                params.Title,
		FirstName:            params.FirstName,
		LastName:             params.LastName,
		Email:                params.Email,
		Phone:                params.Phone,
		DateOfBirth:          params.DateOfBirth,
		Address:              params.Address,
		City:                 params.City,
		State:                params.State,
		ZipCode:              params.ZipCode,
		Country:              country,
		EmergencyContact:     params.EmergencyContact,
		EmergencyPhone:       params.EmergencyPhone,
		DietaryRestrictions:  params.DietaryRestrictions,
		MedicalConditions:    params.MedicalConditions,
		KingschatID:          params.KingschatID,
		Zone:                 params.Zone,
		Network:              params.Network,
		RegistrationFeeCents: params.RegistrationFeeCents,
		PaymentStatus:        PaymentStatusPending,
		StripePaymentID:      util.None[string](),
		RegistrationDate:     now,
		UpdatedAt:            now,
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO registrations (`+registrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		reg.ID, reg.Title, reg.FirstName, reg.LastName, reg.Email, reg.Phone, reg.DateOfBirth, reg.Address, reg.City, reg.State, reg.ZipCode, reg.Country,
		reg.EmergencyContact, reg.EmergencyPhone, reg.DietaryRestrictions, reg.MedicalConditions, reg.KingschatID, reg.Zone, reg.Network,
		reg.RegistrationFeeCents, reg.PaymentStatus, reg.StripePaymentID, reg.RegistrationDate, reg.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return reg, ErrRegistrationEmailTaken
		}
		return reg, fmt.Errorf("database: failed to insert registration (email=%s): %w", reg.Email, err)
	}
	return reg, nil
}

// RegistrationEmailExists reports whether a live (not abandoned) registration
// uses email, compared case-insensitively.
func (db *Database) RegistrationEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM registrations WHERE lower(email) = lower($1) AND payment_status <> 'abandoned')`, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("database: failed to check registration email: %w", err)
	}
	return exists, nil
}

func (db *Database) GetRegistrationByID(ctx context.Context, id uuid.UUID) (Registration, error) {
	reg, err := scanRegistration(db.Pool.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return reg, ErrRegistrationNotFound
		}
		return reg, fmt.Errorf("database: failed to scan registration (id=%s): %w", id, err)
	}
	return reg, nil
}

// SetRegistrationPaymentRef links a checkout session to a pending registration.
func (db *Database) SetRegistrationPaymentRef(ctx context.Context, id uuid.UUID, ref string) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE registrations SET stripe_payment_id = $2, updated_at = now() WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("database: failed to link payment to registration (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

// TransitionRegistration applies a conditional status change. It returns the
// current row and whether this call changed it; ErrRegistrationNotFound when
// nothing matches the selector.
func (db *Database) TransitionRegistration(ctx context.Context, params TransitionParams) (Registration, bool, error) {
	update, updateArgs, lookup, lookupArgs, err := buildTransition("registrations", registrationColumns, params)
	if err != nil {
		return Registration{}, false, err
	}

	reg, err := scanRegistration(db.Pool.QueryRow(ctx, update, updateArgs...))
	if err == nil {
		return reg, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return reg, false, fmt.Errorf("database: failed to transition registration to %s: %w", params.To, err)
	}

	reg, err = scanRegistration(db.Pool.QueryRow(ctx, lookup, lookupArgs...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return reg, false, ErrRegistrationNotFound
		}
		return reg, false, fmt.Errorf("database: failed to look up registration: %w", err)
	}
	return reg, false, nil
}

type ListRegistrationsParams struct {
	Status  util.Optional[PaymentStatus]
	Limit   util.Optional[int]
	OrderBy OrderBy
}

func (db *Database) ListRegistrations(ctx context.Context, params ListRegistrationsParams) ([]Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE 1=1`
	var args []any
	if params.Status.IsSet {
		args = append(args, params.Status.Val)
		query += fmt.Sprintf(" AND payment_status = $%d", len(args))
	}
	query += " ORDER BY registration_date " + params.OrderBy.SQL()
	if params.Limit.IsSet {
		args = append(args, params.Limit.Val)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database: failed to query registrations: %w", err)
	}
	defer rows.Close()

	var registrations []Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("database: failed to scan registration: %w", err)
		}
		registrations = append(registrations, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate over registrations: %w", err)
	}

	return registrations, nil
}

// AbandonStaleRegistrations marks registrations still pending since before
// cutoff as abandoned and returns how many changed.
func (db *Database) AbandonStaleRegistrations(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `UPDATE registrations SET payment_status = 'abandoned', updated_at = now()
		WHERE payment_status = 'pending' AND registration_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("database: failed to abandon stale registrations: %w", err)
	}
	return tag.RowsAffected(), nil
}
