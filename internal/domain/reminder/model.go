package reminder

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// ManualOffsetLabel marks rows written by SendTestReminder.
const ManualOffsetLabel = "manual"

// DeliveryUnknown is the delivery status of an attempt whose outcome was
// never recorded.
const DeliveryUnknown = "unknown"

// Reminder maps to the reminders table. A row leaves pending exactly once.
type Reminder struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	AppointmentID  uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	Channel        string     `db:"channel" json:"channel"`
	OffsetLabel    string     `db:"offset_label" json:"offset_label"`
	ScheduledFor   time.Time  `db:"scheduled_for" json:"scheduled_for"`
	Status         string     `db:"status" json:"status"`
	SentAt         *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DeliveryStatus *string    `db:"delivery_status" json:"delivery_status,omitempty"`
	ErrorMessage   *string    `db:"error_message" json:"error_message,omitempty"`
	ClaimedAt      *time.Time `db:"claimed_at" json:"-"`
	AttemptedAt    *time.Time `db:"attempted_at" json:"attempted_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// SendResult is returned by the manual send path.
type SendResult struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	Error      string    `json:"error,omitempty"`
	ReminderID uuid.UUID `json:"reminder_id"`
}

// BatchResult summarises one scheduled dispatch run.
type BatchResult struct {
	RunID      uuid.UUID `json:"run_id"`
	Processed  int       `json:"processed"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Message    string    `json:"message"`
	ReportKey  string    `json:"report_key,omitempty"`
}

// ItemOutcome is the per-reminder line of a run report.
type ItemOutcome struct {
	ReminderID     uuid.UUID `json:"reminder_id"`
	AppointmentID  uuid.UUID `json:"appointment_id"`
	Channel        string    `json:"channel"`
	Status         string    `json:"status"`
	DeliveryStatus string    `json:"delivery_status"`
	MessageID      string    `json:"message_id,omitempty"`
	Error          string    `json:"error,omitempty"`
}
