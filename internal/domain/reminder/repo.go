package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrValidation     = errors.New("invalid reminder request")
	ErrNotOptedIn     = errors.New("patient has not opted in to this channel")
	ErrMissingContact = errors.New("patient has no contact details for this channel")
	ErrNotPending     = errors.New("reminder is no longer pending")
)

type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	CreateBatch(ctx context.Context, rs []*Reminder) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Reminder, error)
	// ClaimDue leases up to limit pending reminders due at or before now.
	// Rows claimed by another run within lease, and rows already attempted,
	// are skipped.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Reminder, error)
	// StartAttempt stamps attempted_at on a pending, unattempted reminder.
	// Only one caller wins; the others get ErrNotPending and must not send.
	StartAttempt(ctx context.Context, id uuid.UUID, at time.Time) error
	// FailStaleAttempts fails pending reminders attempted before cutoff and
	// returns how many it closed.
	FailStaleAttempts(ctx context.Context, cutoff time.Time, reason string) (int, error)
	// Complete writes the terminal outcome of a pending reminder, or returns
	// ErrNotPending when the row already left pending.
	Complete(ctx context.Context, r *Reminder) error
}
