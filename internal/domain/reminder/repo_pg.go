package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/internal/platform/db"
)

type reminderRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &reminderRepoPG{pool: pool} }

func (r *reminderRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const reminderCols = `id, appointment_id, patient_id, channel, offset_label, scheduled_for, status,
	sent_at, delivery_status, error_message, claimed_at, attempted_at, created_at, updated_at`

func (r *reminderRepoPG) scanReminder(row pgx.Row) (*Reminder, error) {
	var m Reminder
	err := row.Scan(&m.ID, &m.AppointmentID, &m.PatientID, &m.Channel, &m.OffsetLabel, &m.ScheduledFor,
		&m.Status, &m.SentAt, &m.DeliveryStatus, &m.ErrorMessage, &m.ClaimedAt, &m.AttemptedAt, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *reminderRepoPG) Create(ctx context.Context, m *Reminder) error {
	return r.CreateBatch(ctx, []*Reminder{m})
}

func (r *reminderRepoPG) CreateBatch(ctx context.Context, rs []*Reminder) error {
	if len(rs) == 0 {
		return nil
	}
	const width = 10
	var sb strings.Builder
	sb.WriteString(`INSERT INTO reminders (id, appointment_id, patient_id, channel, offset_label,
		scheduled_for, status, sent_at, delivery_status, error_message) VALUES `)
	args := make([]interface{}, 0, len(rs)*width)
	for i, m := range rs {
		m.ID = uuid.New()
		if m.Status == "" {
			m.Status = StatusPending
		}
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(")
		for j := 0; j < width; j++ {
			if j > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "$%d", i*width+j+1)
		}
		sb.WriteString(")")
		args = append(args, m.ID, m.AppointmentID, m.PatientID, m.Channel, m.OffsetLabel,
			m.ScheduledFor, m.Status, m.SentAt, m.DeliveryStatus, m.ErrorMessage)
	}
	sb.WriteString(` RETURNING id, created_at, updated_at`)

	rows, err := r.conn(ctx).Query(ctx, sb.String(), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	byID := make(map[uuid.UUID]*Reminder, len(rs))
	for _, m := range rs {
		byID[m.ID] = m
	}
	for rows.Next() {
		var id uuid.UUID
		var created, updated time.Time
		if err := rows.Scan(&id, &created, &updated); err != nil {
			return err
		}
		if m, ok := byID[id]; ok {
			m.CreatedAt, m.UpdatedAt = created, updated
		}
	}
	return rows.Err()
}

func (r *reminderRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reminderCols+` FROM reminders
		WHERE appointment_id = $1 ORDER BY scheduled_for, created_at`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Reminder
	for rows.Next() {
		m, err := r.scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// ClaimDue stamps claimed_at on the selected rows in the same statement that
// locks them, so concurrent runs never pick the same reminder.
func (r *reminderRepoPG) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE reminders SET claimed_at = $1, updated_at = $1
		WHERE id IN (
			SELECT id FROM reminders
			WHERE status = 'pending' AND scheduled_for <= $1 AND attempted_at IS NULL
				AND (claimed_at IS NULL OR claimed_at < $2)
			ORDER BY scheduled_for
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+reminderCols,
		now, now.Add(-lease), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Reminder
	for rows.Next() {
		m, err := r.scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *reminderRepoPG) StartAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminders SET attempted_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending' AND attempted_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *reminderRepoPG) FailStaleAttempts(ctx context.Context, cutoff time.Time, reason string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminders SET status = 'failed', delivery_status = $2, error_message = $3, updated_at = NOW()
		WHERE status = 'pending' AND attempted_at < $1`, cutoff, DeliveryUnknown, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *reminderRepoPG) Complete(ctx context.Context, m *Reminder) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE reminders SET status=$2, sent_at=$3, delivery_status=$4, error_message=$5, updated_at=NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING updated_at`,
		m.ID, m.Status, m.SentAt, m.DeliveryStatus, m.ErrorMessage).Scan(&m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotPending
	}
	return err
}
