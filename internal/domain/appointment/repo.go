package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("appointment not found")
	ErrTemplateNotFound = errors.New("appointment template not found")
	ErrSeriesNotFound   = errors.New("appointment series not found")
	ErrValidation       = errors.New("invalid appointment request")
	ErrInvalidStatus    = errors.New("appointment status does not allow this change")
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	CreateBatch(ctx context.Context, appts []*Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error)
	Update(ctx context.Context, a *Appointment) error
}

type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	List(ctx context.Context, limit, offset int) ([]*Template, int, error)
}

type SeriesRepository interface {
	Create(ctx context.Context, s *Series) error
	GetByID(ctx context.Context, id uuid.UUID) (*Series, error)
	SetAppointmentsCreated(ctx context.Context, id uuid.UUID, n int) error
}
