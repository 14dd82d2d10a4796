//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/domain/patient"
	"github.com/clinicflow/clinicflow/internal/domain/reminder"
	"github.com/clinicflow/clinicflow/internal/domain/visit"
	"github.com/clinicflow/clinicflow/internal/platform/db"
	"github.com/clinicflow/clinicflow/internal/platform/events"
	"github.com/clinicflow/clinicflow/internal/platform/notification"
	"github.com/clinicflow/clinicflow/migrations"
)

// pool is shared by every test and is migrated once in TestMain.
var pool *pgxpool.Pool

// TestMain uses CLINICFLOW_TEST_DATABASE_URL when set and otherwise starts a
// throwaway Postgres container.
func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr := os.Getenv("CLINICFLOW_TEST_DATABASE_URL")
	cleanup := func() {}
	if connStr == "" {
		var err error
		connStr, cleanup, err = startPostgresContainer(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
			os.Exit(1)
		}
	}

	var err error
	pool, err = db.NewPool(ctx, connStr, 20, 2)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// resetDB empties every domain table.
func resetDB(t *testing.T) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE reminders, queue_entries, appointments, appointment_series, appointment_templates, patients CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func ptrStr(s string) *string { return &s }

// services wires the domain layer against the test database.
type services struct {
	patients     patient.Repository
	appointments *appointment.Service
	apptRepo     appointment.AppointmentRepository
	queue        *visit.Service
	reminderRepo reminder.Repository
	scheduler    *reminder.Scheduler
	dispatcher   *reminder.Dispatcher
	sms          *notification.MockSMSSender
	email        *notification.MockEmailSender
	events       *events.Recorder
}

func newServices(t *testing.T) *services {
	t.Helper()
	log := zerolog.Nop()
	tx := db.NewTransactor(pool)
	s := &services{
		patients:     patient.NewRepoPG(pool),
		apptRepo:     appointment.NewAppointmentRepoPG(pool),
		reminderRepo: reminder.NewRepoPG(pool),
		sms:          &notification.MockSMSSender{},
		email:        &notification.MockEmailSender{},
		events:       events.NewRecorder(),
	}
	s.scheduler = reminder.NewScheduler(s.reminderRepo, s.apptRepo, tx, reminder.DefaultPolicy(), time.UTC, s.events, log)
	s.dispatcher = reminder.NewDispatcher(s.reminderRepo, s.apptRepo, s.patients, s.sms, s.email, nil, nil, s.events, log,
		reminder.DispatcherConfig{Workers: 4, BatchSize: 100})
	s.appointments = appointment.NewService(s.apptRepo, appointment.NewTemplateRepoPG(pool), appointment.NewSeriesRepoPG(pool),
		s.patients, tx, s.scheduler, s.events, log)
	s.queue = visit.NewService(visit.NewQueueRepoPG(pool), s.apptRepo, tx, s.events, log, time.UTC)
	return s
}

func (s *services) createPatient(t *testing.T, branchID uuid.UUID) *patient.Patient {
	t.Helper()
	p := &patient.Patient{
		PatientNumber: "P-" + uuid.NewString()[:8],
		FirstName:     "Wanjiru",
		LastName:      "Kamau",
		Phone:         ptrStr("+254711000000"),
		Email:         ptrStr("wanjiru@example.com"),
		BranchID:      branchID,
		ReminderPreferences: patient.ReminderPreferences{
			"sms":   {Enabled: true},
			"email": {Enabled: true},
		},
	}
	if err := s.patients.Create(context.Background(), p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p
}

// book creates a scheduled appointment for today in UTC.
func (s *services) book(t *testing.T, p *patient.Patient, at string) *appointment.Appointment {
	t.Helper()
	a, _, err := s.appointments.Book(context.Background(), appointment.BookRequest{
		PatientID:       p.ID,
		AppointmentDate: time.Now().UTC().Format(time.DateOnly),
		AppointmentTime: at,
		AppointmentType: "consult",
		DurationMinutes: 15,
	})
	if err != nil {
		t.Fatalf("book appointment: %v", err)
	}
	return a
}
