package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("patient not found")
	ErrValidation   = errors.New("invalid patient")
	ErrDuplicateMRN = errors.New("patient number already in use")
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, branchID *uuid.UUID, limit, offset int) ([]*Patient, int, error)
	UpdateContact(ctx context.Context, p *Patient) error
	UpdatePreferences(ctx context.Context, p *Patient) error
}
