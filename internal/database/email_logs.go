package database

import (
	"context"
	"fmt"
	"time"

	"holylandtour/internal/util"

	"github.com/google/uuid"
)

type EmailType string

const (
	EmailTypeRegistrationConfirmation EmailType = "registration_confirmation"
	EmailTypeBookingConfirmation      EmailType = "booking_confirmation"
)

type EmailStatus string

const (
	EmailStatusSent   EmailStatus = "sent"
	EmailStatusFailed EmailStatus = "failed"
)

type EmailLog struct {
	ID           uuid.UUID
	ReferenceID  util.Optional[uuid.UUID]
	Recipient    string
	Subject      string
	EmailType    EmailType
	Status       EmailStatus
	ErrorMessage util.Optional[string]
	SentAt       time.Time
}

type CreateEmailLogParams struct {
	ReferenceID  util.Optional[uuid.UUID]
	Recipient    string
	Subject      string
	EmailType    EmailType
	Status       EmailStatus
	ErrorMessage util.Optional[string]
}

func (db *Database) CreateEmailLog(ctx context.Context, params CreateEmailLogParams) (EmailLog, error) {
	entry := EmailLog{
		ID:           uuid.New(),
		ReferenceID:  params.ReferenceID,
		Recipient:    params.Recipient,
		Subject:      params.Subject,
		EmailType:    params.EmailType,
		Status:       params.Status,
		ErrorMessage: params.ErrorMessage,
		SentAt:       time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO email_logs (id, reference_id, recipient, subject, email_type, status, error_message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.ReferenceID, entry.Recipient, entry.Subject, entry.EmailType, entry.Status, entry.ErrorMessage, entry.SentAt); err != nil {
		return entry, fmt.Errorf("database: failed to insert email log (type=%s): %w", entry.EmailType, err)
	}
	return entry, nil
}

// ClaimEmail reserves the single confirmation of emailType for the referenced
// registration or booking. It reports true for exactly one caller; every later
// or concurrent call for the same pair gets false.
func (db *Database) ClaimEmail(ctx context.Context, referenceID uuid.UUID, emailType EmailType) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `INSERT INTO email_claims (reference_id, email_type) VALUES ($1, $2)
		ON CONFLICT (reference_id, email_type) DO NOTHING`, referenceID, emailType)
	if err != nil {
		return false, fmt.Errorf("database: failed to claim %s email (reference=%s): %w", emailType, referenceID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *Database) ListEmailLogs(ctx context.Context, referenceID uuid.UUID) ([]EmailLog, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, reference_id, recipient, subject, email_type, status, error_message, sent_at
		FROM email_logs WHERE reference_id = $1 ORDER BY sent_at ASC`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to query email logs: %w", err)
	}
	defer rows.Close()

	var logs []EmailLog
	for rows.Next() {
		var l EmailLog
		if err := rows.Scan(&l.ID, &l.ReferenceID, &l.Recipient, &l.Subject, &l.EmailType, &l.Status, &l.ErrorMessage, &l.SentAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan email log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate over email logs: %w", err)
	}
	return logs, nil
}
