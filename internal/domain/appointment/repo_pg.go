package appointment

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

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, patient_id, branch_id, to_char(appointment_date, 'YYYY-MM-DD'), appointment_time,
	appointment_type, duration_minutes, status, series_id, template_id, notes,
	checked_in_at, actual_start_at, created_at, updated_at`

const apptInsertCols = `id, patient_id, branch_id, appointment_date, appointment_time,
	appointment_type, duration_minutes, status, series_id, template_id, notes`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.BranchID, &a.AppointmentDate, &a.AppointmentTime,
		&a.AppointmentType, &a.DurationMinutes, &a.Status, &a.SeriesID, &a.TemplateID, &a.Notes,
		&a.CheckedInAt, &a.ActualStartAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func insertArgs(a *Appointment) []interface{} {
	return []interface{}{a.ID, a.PatientID, a.BranchID, a.AppointmentDate, a.AppointmentTime,
		a.AppointmentType, a.DurationMinutes, a.Status, a.SeriesID, a.TemplateID, a.Notes}
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (`+apptInsertCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		insertArgs(a)...).Scan(&a.CreatedAt, &a.UpdatedAt)
}

// CreateBatch inserts all rows with one multi-row INSERT.
func (r *appointmentRepoPG) CreateBatch(ctx context.Context, appts []*Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	const width = 11
	var sb strings.Builder
	sb.WriteString(`INSERT INTO appointments (` + apptInsertCols + `) VALUES `)
	args := make([]interface{}, 0, len(appts)*width)
	for i, a := range appts {
		a.ID = uuid.New()
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
		args = append(args, insertArgs(a)...)
	}
	sb.WriteString(` RETURNING id, created_at, updated_at`)

	rows, err := r.conn(ctx).Query(ctx, sb.String(), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	byID := make(map[uuid.UUID]*Appointment, len(appts))
	for _, a := range appts {
		byID[a.ID] = a
	}
	for rows.Next() {
		var id uuid.UUID
		var created, updated time.Time
		if err := rows.Scan(&id, &created, &updated); err != nil {
			return err
		}
		if a, ok := byID[id]; ok {
			a.CreatedAt, a.UpdatedAt = created, updated
		}
	}
	return rows.Err()
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	query := `SELECT ` + apptCols + ` FROM appointments WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM appointments WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(cond string, v interface{}) {
		clause := fmt.Sprintf(" AND "+cond, idx)
		query += clause
		countQuery += clause
		args = append(args, v)
		idx++
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.BranchID != nil {
		add("branch_id = $%d", *f.BranchID)
	}
	if f.SeriesID != nil {
		add("series_id = $%d", *f.SeriesID)
	}
	if f.Date != "" {
		add("appointment_date = $%d::date", f.Date)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY appointment_date, appointment_time LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET status=$2, notes=$3, checked_in_at=$4, actual_start_at=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Status, a.Notes, a.CheckedInAt, a.ActualStartAt).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// =========== Template Repository ===========

type templateRepoPG struct{ pool *pgxpool.Pool }

func NewTemplateRepoPG(pool *pgxpool.Pool) TemplateRepository { return &templateRepoPG{pool: pool} }

func (r *templateRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const templateCols = `id, name, appointment_type, duration_minutes, notes, created_at`

func (r *templateRepoPG) scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.Name, &t.AppointmentType, &t.DurationMinutes, &t.Notes, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *templateRepoPG) Create(ctx context.Context, t *Template) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_templates (id, name, appointment_type, duration_minutes, notes)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		t.ID, t.Name, t.AppointmentType, t.DurationMinutes, t.Notes).Scan(&t.CreatedAt)
}

func (r *templateRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	return r.scanTemplate(r.conn(ctx).QueryRow(ctx, `SELECT `+templateCols+` FROM appointment_templates WHERE id = $1`, id))
}

func (r *templateRepoPG) List(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment_templates`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+templateCols+` FROM appointment_templates ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Template
	for rows.Next() {
		t, err := r.scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// =========== Series Repository ===========

type seriesRepoPG struct{ pool *pgxpool.Pool }

func NewSeriesRepoPG(pool *pgxpool.Pool) SeriesRepository { return &seriesRepoPG{pool: pool} }

func (r *seriesRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const seriesCols = `id, patient_id, template_id, name, pattern, interval_value, total_count,
	to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'), time_of_day, notes,
	appointments_created, created_at`

func (r *seriesRepoPG) Create(ctx context.Context, s *Series) error {
	s.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_series (id, patient_id, template_id, name, pattern, interval_value,
			total_count, start_date, end_date, time_of_day, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at`,
		s.ID, s.PatientID, s.TemplateID, s.Name, string(s.Pattern), s.Interval,
		s.TotalCount, s.StartDate, s.EndDate, s.TimeOfDay, s.Notes).Scan(&s.CreatedAt)
}

func (r *seriesRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Series, error) {
	var s Series
	var pattern string
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+seriesCols+` FROM appointment_series WHERE id = $1`, id).Scan(
		&s.ID, &s.PatientID, &s.TemplateID, &s.Name, &pattern, &s.Interval, &s.TotalCount,
		&s.StartDate, &s.EndDate, &s.TimeOfDay, &s.Notes, &s.AppointmentsCreated, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSeriesNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Pattern = Pattern(pattern)
	return &s, nil
}

func (r *seriesRepoPG) SetAppointmentsCreated(ctx context.Context, id uuid.UUID, n int) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE appointment_series SET appointments_created = $2 WHERE id = $1`, id, n)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSeriesNotFound
	}
	return nil
}
