package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"holylandtour/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type RoomType struct {
	ID                 string
	Name               string
	Description        string
	Amenities          []string
	PricePerNightCents int64
	MaxOccupancy       int
	AvailableRooms     int
	ImageURL           string
	IsActive           bool
}

const roomTypeColumns = `id, name, description, amenities, price_per_night_cents, max_occupancy, available_rooms, image_url, is_active`

func scanRoomType(row pgx.Row) (RoomType, error) {
	var rt RoomType
	var amenities []byte
	if err := row.Scan(&rt.ID, &rt.Name, &rt.Description, &amenities, &rt.PricePerNightCents, &rt.MaxOccupancy, &rt.AvailableRooms, &rt.ImageURL, &rt.IsActive); err != nil {
		return rt, err
	}
	if err := json.Unmarshal(amenities, &rt.Amenities); err != nil {
		return rt, fmt.Errorf("database: invalid amenities for room type %s: %w", rt.ID, err)
	}
	return rt, nil
}

func (db *Database) GetRoomType(ctx context.Context, id string) (RoomType, error) {
	rt, err := scanRoomType(db.Pool.QueryRow(ctx, `SELECT `+roomTypeColumns+` FROM room_types WHERE id = $1 AND is_active`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rt, ErrRoomTypeNotFound
		}
		return rt, fmt.Errorf("database: failed to scan room type (id=%s): %w", id, err)
	}
	return rt, nil
}

// ListRoomTypes returns active room types ordered by price. With availableOnly
// set, sold out room types are left out.
func (db *Database) ListRoomTypes(ctx context.Context, availableOnly bool) ([]RoomType, error) {
	query := `SELECT ` + roomTypeColumns + ` FROM room_types WHERE is_active`
	if availableOnly {
		query += ` AND available_rooms > 0`
	}
	query += ` ORDER BY price_per_night_cents ASC`

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("database: failed to query room types: %w", err)
	}
	defer rows.Close()

	var roomTypes []RoomType
	for rows.Next() {
		rt, err := scanRoomType(rows)
		if err != nil {
			return nil, fmt.Errorf("database: failed to scan room type: %w", err)
		}
		roomTypes = append(roomTypes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate over room types: %w", err)
	}

	return roomTypes, nil
}

type HotelBooking struct {
	ID               uuid.UUID
	RegistrationID   util.Optional[uuid.UUID]
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	RoomTypeID       string
	RoomPriceCents   int64
	CheckInDate      time.Time
	CheckOutDate     time.Time
	NumberOfNights   int
	TotalAmountCents int64
	PaymentStatus    PaymentStatus
	StripePaymentID  util.Optional[string]
	SpecialRequests  util.Optional[string]
	BookingDate      time.Time
	UpdatedAt        time.Time
}

const hotelBookingColumns = `id, registration_id, first_name, last_name, email, phone, room_type_id, room_price_cents,
	check_in_date, check_out_date, number_of_nights, total_amount_cents, payment_status, stripe_payment_id,
	special_requests, booking_date, updated_at`

func scanHotelBooking(row pgx.Row) (HotelBooking, error) {
	var b HotelBooking
	err := row.Scan(&b.ID, &b.RegistrationID, &b.FirstName, &b.LastName, &b.Email, &b.Phone, &b.RoomTypeID, &b.RoomPriceCents,
		&b.CheckInDate, &b.CheckOutDate, &b.NumberOfNights, &b.TotalAmountCents, &b.PaymentStatus, &b.StripePaymentID,
		&b.SpecialRequests, &b.BookingDate, &b.UpdatedAt)
	return b, err
}

type CreateHotelBookingParams struct {
	RegistrationID   util.Optional[uuid.UUID]
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	RoomTypeID       string
	RoomPriceCents   int64
	CheckInDate      time.Time
	CheckOutDate     time.Time
	NumberOfNights   int
	TotalAmountCents int64
	SpecialRequests  util.Optional[string]
}

func (db *Database) CreateHotelBooking(ctx context.Context, params CreateHotelBookingParams) (HotelBooking, error) {
	now := time.Now().UTC()
	booking := HotelBooking{
		ID:               uuid.New(),
		RegistrationID:   params.RegistrationID,
		FirstName:        params.FirstName,
		LastName:         params.LastName,
		Email:            params.Email,
		Phone:            params.Phone,
		RoomTypeID:       params.RoomTypeID,
		RoomPriceCents:   params.RoomPriceCents,
		CheckInDate:      params.CheckInDate,
		CheckOutDate:     params.CheckOutDate,
		NumberOfNights:   params.NumberOfNights,
		TotalAmountCents: params.TotalAmountCents,
		PaymentStatus:    PaymentStatusPending,
		StripePaymentID:  util.None[string](),
		SpecialRequests:  params.SpecialRequests,
		BookingDate:      now,
		UpdatedAt:        now,
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO hotel_bookings (`+hotelBookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		booking.ID, booking.RegistrationID, booking.FirstName, booking.LastName, booking.Email, booking.Phone, booking.RoomTypeID, booking.RoomPriceCents,
		booking.CheckInDate, booking.CheckOutDate, booking.NumberOfNights, booking.TotalAmountCents, booking.PaymentStatus, booking.StripePaymentID,
		booking.SpecialRequests, booking.BookingDate, booking.UpdatedAt); err != nil {
		return booking, fmt.Errorf("database: failed to insert hotel booking (email=%s): %w", booking.Email, err)
	}
	return booking, nil
}

func (db *Database) GetHotelBookingByID(ctx context.Context, id uuid.UUID) (HotelBooking, error) {
	booking, err := scanHotelBooking(db.Pool.QueryRow(ctx, `SELECT `+hotelBookingColumns+` FROM hotel_bookings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking, ErrHotelBookingNotFound
		}
		return booking, fmt.Errorf("database: failed to scan hotel booking (id=%s): %w", id, err)
	}
	return booking, nil
}

func (db *Database) SetHotelBookingPaymentRef(ctx context.Context, id uuid.UUID, ref string) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE hotel_bookings SET stripe_payment_id = $2, updated_at = now() WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("database: failed to link payment to hotel booking (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHotelBookingNotFound
	}
	return nil
}

// TransitionHotelBooking is the hotel booking counterpart of TransitionRegistration.
func (db *Database) TransitionHotelBooking(ctx context.Context, params TransitionParams) (HotelBooking, bool, error) {
	return db.transitionHotelBooking(ctx, params, false)
}

// TransitionHotelBookingPaid moves a booking to paid and, when this call made
// the change, takes one room of its type off the available inventory in the
// same transaction. Inventory never goes below zero.
func (db *Database) TransitionHotelBookingPaid(ctx context.Context, params TransitionParams) (HotelBooking, bool, error) {
	params.To = PaymentStatusPaid
	return db.transitionHotelBooking(ctx, params, true)
}

func (db *Database) transitionHotelBooking(ctx context.Context, params TransitionParams, decrement bool) (HotelBooking, bool, error) {
	update, updateArgs, lookup, lookupArgs, err := buildTransition("hotel_bookings", hotelBookingColumns, params)
	if err != nil {
		return HotelBooking{}, false, err
	}

	var booking HotelBooking
	var changed bool
	err = db.withTx(ctx, func(tx pgx.Tx) error {
		booking, err = scanHotelBooking(tx.QueryRow(ctx, update, updateArgs...))
		if err == nil {
			changed = true
			if decrement {
				if _, err := tx.Exec(ctx, `UPDATE room_types SET available_rooms = available_rooms - 1, updated_at = now()
					WHERE id = $1 AND available_rooms > 0`, booking.RoomTypeID); err != nil {
					return fmt.Errorf("database: failed to decrement inventory (room_type=%s): %w", booking.RoomTypeID, err)
				}
			}
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("database: failed to transition hotel booking to %s: %w", params.To, err)
		}

		booking, err = scanHotelBooking(tx.QueryRow(ctx, lookup, lookupArgs...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrHotelBookingNotFound
			}
			return fmt.Errorf("database: failed to look up hotel booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return HotelBooking{}, false, err
	}
	return booking, changed, nil
}

type ListHotelBookingsParams struct {
	Status  util.Optional[PaymentStatus]
	Limit   util.Optional[int]
	OrderBy OrderBy
}

func (db *Database) ListHotelBookings(ctx context.Context, params ListHotelBookingsParams) ([]HotelBooking, error) {
	query := `SELECT ` + hotelBookingColumns + ` FROM hotel_bookings WHERE 1=1`
	var args []any
	if params.Status.IsSet {
		args = append(args, params.Status.Val)
		query += fmt.Sprintf(" AND payment_status = $%d", len(args))
	}
	query += " ORDER BY booking_date " + params.OrderBy.SQL()
	if params.Limit.IsSet {
		args = append(args, params.Limit.Val)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database: failed to query hotel bookings: %w", err)
	}
	defer rows.Close()

	var bookings []HotelBooking
	for rows.Next() {
		b, err := scanHotelBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("database: failed to scan hotel booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate over hotel bookings: %w", err)
	}
	return bookings, nil
}

func (db *Database) AbandonStaleHotelBookings(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `UPDATE hotel_bookings SET payment_status = 'abandoned', updated_at = now()
		WHERE payment_status = 'pending' AND booking_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("database: failed to abandon stale hotel bookings: %w", err)
	}
	return tag.RowsAffected(), nil
}
