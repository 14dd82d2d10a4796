package visit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/internal/platform/db"
)

const (
	positionConstraint      = "queue_entries_position_key"
	activePatientConstraint = "queue_entries_active_patient_idx"
)

type queueRepoPG struct{ pool *pgxpool.Pool }

func NewQueueRepoPG(pool *pgxpool.Pool) QueueRepository { return &queueRepoPG{pool: pool} }

func (r *queueRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const queueCols = `id, appointment_id, patient_id, branch_id, to_char(queue_date, 'YYYY-MM-DD'), position,
	status, checked_in_at, actual_start_at, completed_at, updated_at`

func (r *queueRepoPG) scanEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	err := row.Scan(&e.ID, &e.AppointmentID, &e.PatientID, &e.BranchID, &e.QueueDate, &e.Position,
		&e.Status, &e.CheckedInAt, &e.ActualStartAt, &e.CompletedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create computes the position inside the INSERT. Two concurrent check-ins
// can still read the same max; the loser hits the unique constraint and gets
// ErrPositionTaken so the caller can retry.
func (r *queueRepoPG) Create(ctx context.Context, e *QueueEntry) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO queue_entries (id, appointment_id, patient_id, branch_id, queue_date, position, status, checked_in_at)
		SELECT $1, $2, $3, $4, $5::date, COALESCE(MAX(position), 0) + 1, $6, $7
		FROM queue_entries
		WHERE branch_id = $4 AND queue_date = $5::date
		RETURNING position, updated_at`,
		e.ID, e.AppointmentID, e.PatientID, e.BranchID, e.QueueDate, e.Status, e.CheckedInAt,
	).Scan(&e.Position, &e.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err, positionConstraint):
		return ErrPositionTaken
	case db.IsUniqueViolation(err, activePatientConstraint):
		return ErrAlreadyInQueue
	}
	return err
}

func (r *queueRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	return r.scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+queueCols+` FROM queue_entries WHERE id = $1`, id))
}

func (r *queueRepoPG) FindActive(ctx context.Context, patientID uuid.UUID, date string) (*QueueEntry, error) {
	return r.scanEntry(r.conn(ctx).QueryRow(ctx, `
		SELECT `+queueCols+` FROM queue_entries
		WHERE patient_id = $1 AND queue_date = $2::date
			AND status NOT IN ('completed', 'discharged', 'no-show')
		LIMIT 1`, patientID, date))
}

func (r *queueRepoPG) Update(ctx context.Context, e *QueueEntry) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE queue_entries SET status=$2, actual_start_at=$3, completed_at=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		e.ID, e.Status, e.ActualStartAt, e.CompletedAt).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *queueRepoPG) ListByBranchDate(ctx context.Context, branchID uuid.UUID, date string) ([]*QueueEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+queueCols+` FROM queue_entries
		WHERE branch_id = $1 AND queue_date = $2::date
		ORDER BY position`, branchID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*QueueEntry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
