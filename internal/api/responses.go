package api

import (
	"time"

	"holylandtour/internal/database"
	"holylandtour/internal/util"

	"github.com/google/uuid"
)

type registrationResponse struct {
	ID                  uuid.UUID                `json:"id"`
	Title               util.Optional[string]    `json:"title"`
	FirstName           string                   `json:"firstName"`
	LastName            string                   `json:"lastName"`
	Email               string                   `json:"email"`
	Phone               string                   `json:"phone"`
	DateOfBirth         util.Optional[string]    `json:"dateOfBirth"`
	Address             util.Optional[string]    `json:"address"`
	City                util.Optional[string]    `json:"city"`
	State               util.Optional[string]    `json:"state"`
	ZipCode             util.Optional[string]    `json:"zipCode"`
	Country             string                   `json:"country"`
	EmergencyContact    util.Optional[string]    `json:"emergencyContact"`
	EmergencyPhone      util.Optional[string]    `json:"emergencyPhone"`
	DietaryRestrictions util.Optional[string]    `json:"dietaryRestrictions"`
	MedicalConditions   util.Optional[string]    `json:"medicalConditions"`
	KingschatID         util.Optional[string]    `json:"kingschatId"`
	Zone                util.Optional[string]    `json:"zone"`
	Network             util.Optional[string]    `json:"network"`
	RegistrationFee     float64                  `json:"registrationFee"`
	PaymentStatus       database.PaymentStatus   `json:"paymentStatus"`
	StripePaymentID     util.Optional[string]    `json:"stripePaymentId"`
	RegistrationDate    time.Time                `json:"registrationDate"`
	UpdatedAt           time.Time                `json:"updatedAt"`
}

func newRegistrationResponse(r database.Registration) registrationResponse {
	dob := util.None[string]()
	if r.DateOfBirth.IsSet {
		dob = util.Some(r.DateOfBirth.Val.Format(time.DateOnly))
	}
	return registrationResponse{
		ID:                  r.ID,
		Title:               r.Title,
		FirstName:           r.FirstName,
		LastName:            r.LastName,
		Email:               r.Email,
		Phone:               r.Phone,
		DateOfBirth:         dob,
		Address:             r.Address,
		City:                r.City,
		State:               r.State,
		ZipCode:             r.ZipCode,
		Country:             r.Country,
		EmergencyContact:    r.EmergencyContact,
		EmergencyPhone:      r.EmergencyPhone,
		DietaryRestrictions: r.DietaryRestrictions,
		MedicalConditions:   r.MedicalConditions,
		KingschatID:         r.KingschatID,
		Zone:                r.Zone,
		Network:             r.Network,
		RegistrationFee:     dollars(r.RegistrationFeeCents),
		PaymentStatus:       r.PaymentStatus,
		StripePaymentID:     r.StripePaymentID,
		RegistrationDate:    r.RegistrationDate,
		UpdatedAt:           r.UpdatedAt,
	}
}

type bookingResponse struct {
	ID              uuid.UUID                `json:"id"`
	RegistrationID  util.Optional[uuid.UUID] `json:"registrationId"`
	FirstName       string                   `json:"firstName"`
	LastName        string                   `json:"lastName"`
	Email           string                   `json:"email"`
	Phone           string                   `json:"phone"`
	RoomType        string                   `json:"roomType"`
	RoomPrice       float64                  `json:"roomPrice"`
	CheckInDate     string                   `json:"checkInDate"`
	CheckOutDate    string                   `json:"checkOutDate"`
	NumberOfNights  int                      `json:"numberOfNights"`
	TotalAmount     float64                  `json:"totalAmount"`
	PaymentStatus   database.PaymentStatus   `json:"paymentStatus"`
	StripePaymentID util.Optional[string]    `json:"stripePaymentId"`
	SpecialRequests util.Optional[string]    `json:"specialRequests"`
	BookingDate     time.Time                `json:"bookingDate"`
	UpdatedAt       time.Time                `json:"updatedAt"`
}

func newBookingResponse(b database.HotelBooking) bookingResponse {
	return bookingResponse{
		ID:              b.ID,
		RegistrationID:  b.RegistrationID,
		FirstName:       b.FirstName,
		LastName:        b.LastName,
		Email:           b.Email,
		Phone:           b.Phone,
		RoomType:        b.RoomTypeID,
		RoomPrice:       dollars(b.RoomPriceCents),
		CheckInDate:     b.CheckInDate.Format(time.DateOnly),
		CheckOutDate:    b.CheckOutDate.Format(time.DateOnly),
		NumberOfNights:  b.NumberOfNights,
		TotalAmount:     dollars(b.TotalAmountCents),
		PaymentStatus:   b.PaymentStatus,
		StripePaymentID: b.StripePaymentID,
		SpecialRequests: b.SpecialRequests,
		BookingDate:     b.BookingDate,
		UpdatedAt:       b.UpdatedAt,
	}
}

type roomTypeResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Amenities      []string `json:"amenities"`
	PricePerNight  float64  `json:"pricePerNight"`
	TotalPrice     float64  `json:"totalPrice"`
	MaxOccupancy   int      `json:"maxOccupancy"`
	AvailableRooms int      `json:"availableRooms"`
	ImageURL       string   `json:"imageUrl"`
}

func newRoomTypeResponse(rt database.RoomType, nights int) roomTypeResponse {
	amenities := rt.Amenities
	if amenities == nil {
		amenities = []string{}
	}
	return roomTypeResponse{
		ID:             rt.ID,
		Name:           rt.Name,
		Description:    rt.Description,
		Amenities:      amenities,
		PricePerNight:  dollars(rt.PricePerNightCents),
		TotalPrice:     dollars(rt.PricePerNightCents * int64(nights)),
		MaxOccupancy:   rt.MaxOccupancy,
		AvailableRooms: rt.AvailableRooms,
		ImageURL:       rt.ImageURL,
	}
}

func dollars(cents int64) float64 {
	return float64(cents) / 100
}
