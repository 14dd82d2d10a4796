package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var validChannels = map[string]bool{"sms": true, "email": true}

type Service struct {
	patients Repository
}

func NewService(repo Repository) *Service {
	return &Service{patients: repo}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FirstName) == "" {
		return fmt.Errorf("%w: first_name is required", ErrValidation)
	}
	if strings.TrimSpace(p.LastName) == "" {
		return fmt.Errorf("%w: last_name is required", ErrValidation)
	}
	if p.BranchID == uuid.Nil {
		return fmt.Errorf("%w: branch_id is required", ErrValidation)
	}
	if err := checkPreferences(p.ReminderPreferences); err != nil {
		return err
	}
	if p.PatientNumber == "" {
		p.PatientNumber = newPatientNumber()
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, branchID *uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, branchID, limit, offset)
}

// UpdateContact replaces the phone and email on file. Nil clears the field.
func (s *Service) UpdateContact(ctx context.Context, id uuid.UUID, phone, email *string) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Phone = blankToNil(phone)
	p.Email = blankToNil(email)
	if err := s.patients.UpdateContact(ctx, p); err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return p, nil
}

// UpdatePreferences merges prefs into the stored opt-in map. Channels not
// named in prefs keep their current value.
func (s *Service) UpdatePreferences(ctx context.Context, id uuid.UUID, prefs ReminderPreferences) (*Patient, error) {
	if err := checkPreferences(prefs); err != nil {
		return nil, err
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := ReminderPreferences{}
	for ch, pref := range p.ReminderPreferences {
		merged[ch] = pref
	}
	for ch, pref := range prefs {
		merged[ch] = pref
	}
	p.ReminderPreferences = merged
	if err := s.patients.UpdatePreferences(ctx, p); err != nil {
		return nil, fmt.Errorf("update reminder preferences: %w", err)
	}
	return p, nil
}

func checkPreferences(prefs ReminderPreferences) error {
	for ch := range prefs {
		if !validChannels[ch] {
			return fmt.Errorf("%w: unknown reminder channel %q", ErrValidation, ch)
		}
	}
	return nil
}

func blankToNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func newPatientNumber() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "P-" + strings.ToUpper(id[:10])
}
