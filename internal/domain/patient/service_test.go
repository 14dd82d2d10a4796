package patient

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repository --

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, existing := range m.patients {
		if existing.PatientNumber == p.PatientNumber {
			return ErrDuplicateMRN
		}
	}
	p.ID = uuid.New()
	if p.ReminderPreferences == nil {
		p.ReminderPreferences = ReminderPreferences{}
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPatientRepo) List(_ context.Context, branchID *uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		if branchID == nil || p.BranchID == *branchID {
			result = append(result, p)
		}
	}
	return result, len(result), nil
}

func (m *mockPatientRepo) UpdateContact(_ context.Context, p *Patient) error {
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) UpdatePreferences(_ context.Context, p *Patient) error {
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func newTestService() *Service {
	return NewService(newMockPatientRepo())
}

func strPtr(s string) *string { return &s }

func newTestPatient() *Patient {
	return &Patient{FirstName: "Amina", LastName: "Otieno", BranchID: uuid.New()}
}

func TestCreatePatient(t *testing.T) {
	svc := newTestService()
	p := newTestPatient()
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if !strings.HasPrefix(p.PatientNumber, "P-") {
		t.Errorf("expected generated patient number, got %q", p.PatientNumber)
	}
}

func TestCreatePatient_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Patient)
	}{
		{"missing first name", func(p *Patient) { p.FirstName = " " }},
		{"missing last name", func(p *Patient) { p.LastName = "" }},
		{"missing branch", func(p *Patient) { p.BranchID = uuid.Nil }},
		{"unknown channel", func(p *Patient) { p.ReminderPreferences = ReminderPreferences{"fax": {Enabled: true}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService()
			p := newTestPatient()
			tt.mutate(p)
			err := svc.CreatePatient(context.Background(), p)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreatePatient_DuplicateNumber(t *testing.T) {
	svc := newTestService()
	first := newTestPatient()
	first.PatientNumber = "P-100"
	svc.CreatePatient(context.Background(), first)

	second := newTestPatient()
	second.PatientNumber = "P-100"
	if err := svc.CreatePatient(context.Background(), second); !errors.Is(err, ErrDuplicateMRN) {
		t.Errorf("expected ErrDuplicateMRN, got %v", err)
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.GetPatient(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListPatients_ByBranch(t *testing.T) {
	svc := newTestService()
	branch := uuid.New()
	for i := 0; i < 3; i++ {
		p := newTestPatient()
		if i < 2 {
			p.BranchID = branch
		}
		svc.CreatePatient(context.Background(), p)
	}
	_, total, err := svc.ListPatients(context.Background(), &branch, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 patients in branch, got %d", total)
	}
}

func TestUpdateContact(t *testing.T) {
	svc := newTestService()
	p := newTestPatient()
	p.Phone = strPtr("+254700000001")
	svc.CreatePatient(context.Background(), p)

	updated, err := svc.UpdateContact(context.Background(), p.ID, strPtr(" "), strPtr("amina@example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Phone != nil {
		t.Errorf("expected blank phone to clear the field, got %q", *updated.Phone)
	}
	if updated.ContactFor("email") != "amina@example.com" {
		t.Errorf("expected email to be updated, got %q", updated.ContactFor("email"))
	}
	if updated.PatientNumber != p.PatientNumber {
		t.Error("expected patient number to be unchanged")
	}
}

func TestUpdatePreferences_Merges(t *testing.T) {
	svc := newTestService()
	p := newTestPatient()
	p.ReminderPreferences = ReminderPreferences{"email": {Enabled: true}}
	svc.CreatePatient(context.Background(), p)

	updated, err := svc.UpdatePreferences(context.Background(), p.ID, ReminderPreferences{"sms": {Enabled: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.ReminderPreferences.OptedIn("email") || !updated.ReminderPreferences.OptedIn("sms") {
		t.Errorf("expected both channels opted in, got %+v", updated.ReminderPreferences)
	}

	updated, _ = svc.UpdatePreferences(context.Background(), p.ID, ReminderPreferences{"email": {Enabled: false}})
	if updated.ReminderPreferences.OptedIn("email") {
		t.Error("expected email to be opted out")
	}
}

func TestUpdatePreferences_UnknownChannel(t *testing.T) {
	svc := newTestService()
	p := newTestPatient()
	svc.CreatePatient(context.Background(), p)

	_, err := svc.UpdatePreferences(context.Background(), p.ID, ReminderPreferences{"pager": {Enabled: true}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestReminderPreferences_OptedIn(t *testing.T) {
	prefs := ReminderPreferences{"sms": {Enabled: true}, "email": {Enabled: false}}
	if !prefs.OptedIn("sms") {
		t.Error("expected sms opted in")
	}
	if prefs.OptedIn("email") {
		t.Error("expected email opted out")
	}
	if prefs.OptedIn("whatsapp") {
		t.Error("expected missing channel to be treated as opted out")
	}
	var empty ReminderPreferences
	if empty.OptedIn("sms") {
		t.Error("expected nil preferences to opt out of everything")
	}
}
