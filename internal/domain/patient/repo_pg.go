package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, patient_number, first_name, last_name, phone, email, branch_id,
	reminder_preferences, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientNumber, &p.FirstName, &p.LastName, &p.Phone, &p.Email,
		&p.BranchID, &p.ReminderPreferences, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.ReminderPreferences == nil {
		p.ReminderPreferences = ReminderPreferences{}
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.ReminderPreferences == nil {
		p.ReminderPreferences = ReminderPreferences{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, patient_number, first_name, last_name, phone, email, branch_id, reminder_preferences)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientNumber, p.FirstName, p.LastName, p.Phone, p.Email, p.BranchID, p.ReminderPreferences,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "patients_patient_number_key") {
		return ErrDuplicateMRN
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) List(ctx context.Context, branchID *uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	query := `SELECT ` + patientCols + ` FROM patients WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM patients WHERE 1=1`
	var args []interface{}
	idx := 1

	if branchID != nil {
		query += fmt.Sprintf(` AND branch_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND branch_id = $%d`, idx)
		args = append(args, *branchID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) UpdateContact(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET phone=$2, email=$3, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Phone, p.Email).Scan(&p.UpdatedAt)
}

func (r *patientRepoPG) UpdatePreferences(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET reminder_preferences=$2, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.ReminderPreferences).Scan(&p.UpdatedAt)
}
