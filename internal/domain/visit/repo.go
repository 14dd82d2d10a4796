package visit

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound                 = errors.New("queue entry not found")
	ErrAlreadyInQueue           = errors.New("patient already in queue")
	ErrInvalidTransition        = errors.New("invalid stage transition")
	ErrTerminal                 = errors.New("queue entry is already closed")
	ErrInvalidStage             = errors.New("unknown stage")
	ErrInvalidAppointmentStatus = errors.New("appointment cannot be checked in")

	// ErrPositionTaken is returned by QueueRepository.Create when another
	// check-in claimed the same position first.
	ErrPositionTaken = errors.New("queue position taken")
)

type QueueRepository interface {
	// Create assigns the next position for the entry's branch and date and
	// inserts the entry.
	Create(ctx context.Context, e *QueueEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	// FindActive returns the non-terminal entry for the patient on date, or
	// ErrNotFound.
	FindActive(ctx context.Context, patientID uuid.UUID, date string) (*QueueEntry, error)
	Update(ctx context.Context, e *QueueEntry) error
	ListByBranchDate(ctx context.Context, branchID uuid.UUID, date string) ([]*QueueEntry, error)
}
