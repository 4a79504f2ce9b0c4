package notifications

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

const (
	RegistrationConfirmationSubject = "Holy Land Tour Registration Confirmation"
	BookingConfirmationSubject      = "Holy Land Tour Hotel Booking Confirmation"
)

//go:embed templates/*
var templateFiles embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.New("").Funcs(htmltemplate.FuncMap{
		"dollars": dollars,
		"date":    longDate,
	}).ParseFS(templateFiles, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.New("").Funcs(texttemplate.FuncMap{
		"dollars": dollars,
		"date":    longDate,
	}).ParseFS(templateFiles, "templates/*.txt"))
)

type Tour struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

type RegistrationConfirmationData struct {
	Tour             Tour
	RegistrationID   string
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	AmountPaidCents  int64
	RegistrationDate time.Time
}

func RegistrationConfirmation(to string, data RegistrationConfirmationData) (Message, error) {
	return render(to, RegistrationConfirmationSubject, "registration_confirmation", data)
}

type BookingConfirmationData struct {
	Tour             Tour
	BookingID        string
	FirstName        string
	LastName         string
	RoomName         string
	CheckInDate      time.Time
	CheckOutDate     time.Time
	NumberOfNights   int
	TotalAmountCents int64
	SpecialRequests  string
}

func BookingConfirmation(to string, data BookingConfirmationData) (Message, error) {
	return render(to, BookingConfirmationSubject, "booking_confirmation", data)
}

func render(to, subject, name string, data any) (Message, error) {
	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, name+".html", data); err != nil {
		return Message{}, fmt.Errorf("notifications: failed to render %s html: %w", name, err)
	}
	if err := textTemplates.ExecuteTemplate(&text, name+".txt", data); err != nil {
		return Message{}, fmt.Errorf("notifications: failed to render %s text: %w", name, err)
	}
	return Message{To: to, Subject: subject, HTML: html.String(), Text: text.String()}, nil
}

func dollars(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func longDate(t time.Time) string {
	return t.Format("Monday, January 2, 2006")
}
