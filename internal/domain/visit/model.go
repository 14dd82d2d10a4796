package visit

import (
	"time"

	"github.com/google/uuid"
)

const (
	StageWaiting    = "waiting"
	StageTriage     = "triage"
	StageDoctor     = "doctor"
	StageLab        = "lab"
	StagePharmacy   = "pharmacy"
	StageBilling    = "billing"
	StageInProgress = "in-progress"
	StageCompleted  = "completed"
	StageDischarged = "discharged"
	StageNoShow     = "no-show"
)

// QueueEntry maps to the queue_entries table. WaitMinutes is computed on read.
type QueueEntry struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AppointmentID uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	BranchID      uuid.UUID  `db:"branch_id" json:"branch_id"`
	QueueDate     string     `db:"queue_date" json:"queue_date"`
	Position      int        `db:"position" json:"position"`
	Status        string     `db:"status" json:"status"`
	CheckedInAt   time.Time  `db:"checked_in_at" json:"checked_in_at"`
	ActualStartAt *time.Time `db:"actual_start_at" json:"actual_start_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	WaitMinutes   int        `db:"-" json:"wait_minutes"`
}

func (e *QueueEntry) Terminal() bool {
	return IsTerminal(e.Status)
}

// Wait is the time since check-in, whatever stage the entry is in. It is
// computed on read and never stored.
func (e *QueueEntry) Wait(now time.Time) time.Duration {
	if now.Before(e.CheckedInAt) {
		return 0
	}
	return now.Sub(e.CheckedInAt)
}

// QueueStats summarises one branch's queue for a day.
type QueueStats struct {
	BranchID           uuid.UUID `json:"branch_id"`
	Date               string    `json:"date"`
	Total              int       `json:"total"`
	Waiting            int       `json:"waiting"`
	InProgress         int       `json:"in_progress"`
	Completed          int       `json:"completed"`
	NoShow             int       `json:"no_show"`
	AverageWaitMinutes float64   `json:"average_wait_minutes"`
}
