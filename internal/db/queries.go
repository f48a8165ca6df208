package db

import (
	"context"
	"time"

	"jobform/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queries wraps database queries
type Queries struct {
	*pgxpool.Pool
}

// NewQueries creates a new Queries instance
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{Pool: pool}
}

// Template represents a form_templates row
type Template struct {
	ID        string
	Name      string
	Groups    []model.Group
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Template queries
func (q *Queries) GetTemplate(ctx context.Context, id string) (Template, error) {
	var t Template
	err := q.Pool.QueryRow(ctx,
		"SELECT id, name, groups, created_at, updated_at FROM form_templates WHERE id = $1",
		id,
	).Scan(&t.ID, &t.Name, &t.Groups, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (q *Queries) UpsertTemplate(ctx context.Context, tmpl model.Template) (Template, error) {
	var t Template
	groups := tmpl.Groups
	if groups == nil {
		groups = []model.Group{}
	}
	err := q.Pool.QueryRow(ctx,
		`INSERT INTO form_templates (id, name, groups) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, groups = EXCLUDED.groups, updated_at = NOW()
		RETURNING id, name, groups, created_at, updated_at`,
		tmpl.ID, tmpl.Name, groups,
	).Scan(&t.ID, &t.Name, &t.Groups, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// CompletionForm represents a completion_forms row
type CompletionForm struct {
	ID          string
	JobKind     string
	JobID       string
	TemplateID  string
	TCJobCode   *string
	FormData    map[string]interface{}
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt *time.Time
}

const formColumns = `id, job_kind, job_id, template_id, tc_job_code, form_data, status,
	created_at, updated_at, submitted_at`

func scanForm(row pgx.Row) (CompletionForm, error) {
	var f CompletionForm
	err := row.Scan(
		&f.ID, &f.JobKind, &f.JobID, &f.TemplateID, &f.TCJobCode, &f.FormData, &f.Status,
		&f.CreatedAt, &f.UpdatedAt, &f.SubmittedAt,
	)
	return f, err
}

// Completion form queries
func (q *Queries) GetLatestForm(ctx context.Context, jobKind, jobID string) (CompletionForm, error) {
	return scanForm(q.Pool.QueryRow(ctx,
		`SELECT `+formColumns+`
		FROM completion_forms
		WHERE job_kind = $1 AND job_id = $2
		ORDER BY updated_at DESC
		LIMIT 1`,
		jobKind, jobID,
	))
}

func (q *Queries) GetForm(ctx context.Context, id string) (CompletionForm, error) {
	return scanForm(q.Pool.QueryRow(ctx,
		`SELECT `+formColumns+` FROM completion_forms WHERE id = $1`,
		id,
	))
}

type UpsertFormParams struct {
	ID         string
	JobKind    string
	JobID      string
	TemplateID string
	TCJobCode  *string
	FormData   map[string]interface{}
}

// UpsertForm creates the draft of a (job, template) pair or replaces its
// answers. Submitted forms are left untouched and yield pgx.ErrNoRows.
func (q *Queries) UpsertForm(ctx context.Context, p UpsertFormParams) (CompletionForm, error) {
	return scanForm(q.Pool.QueryRow(ctx,
		`INSERT INTO completion_forms (id, job_kind, job_id, template_id, tc_job_code, form_data, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'draft')
		ON CONFLICT (job_kind, job_id, template_id) DO UPDATE
			SET form_data = EXCLUDED.form_data,
				tc_job_code = COALESCE(EXCLUDED.tc_job_code, completion_forms.tc_job_code),
				updated_at = NOW()
			WHERE completion_forms.status = 'draft'
		RETURNING `+formColumns,
		p.ID, p.JobKind, p.JobID, p.TemplateID, p.TCJobCode, p.FormData,
	))
}

func (q *Queries) SubmitForm(ctx context.Context, id string) (CompletionForm, error) {
	return scanForm(q.Pool.QueryRow(ctx,
		`UPDATE completion_forms
		SET status = 'submitted', submitted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'draft'
		RETURNING `+formColumns,
		id,
	))
}

// Photo represents a form_photos row
type Photo struct {
	ID         string
	FormID     string
	QuestionID string
	ObjectKey  string
	URL        string
	Caption    string
	PhotoType  string
	MIME       string
	Size       int64
	SHA256     string
	CreatedAt  time.Time
}

const photoColumns = `id, form_id, question_id, object_key, url, caption, photo_type, mime, size_bytes, sha256, created_at`

func scanPhoto(row pgx.Row) (Photo, error) {
	var p Photo
	err := row.Scan(
		&p.ID, &p.FormID, &p.QuestionID, &p.ObjectKey, &p.URL, &p.Caption, &p.PhotoType,
		&p.MIME, &p.Size, &p.SHA256, &p.CreatedAt,
	)
	return p, err
}

type CreatePhotoParams struct {
	ID         string
	FormID     string
	QuestionID string
	ObjectKey  string
	URL        string
	Caption    string
	PhotoType  string
	MIME       string
	Size       int64
	SHA256     string
}

// Photo queries
func (q *Queries) CreatePhoto(ctx context.Context, p CreatePhotoParams) (Photo, error) {
	return scanPhoto(q.Pool.QueryRow(ctx,
		`INSERT INTO form_photos (id, form_id, question_id, object_key, url, caption, photo_type, mime, size_bytes, sha256)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+photoColumns,
		p.ID, p.FormID, p.QuestionID, p.ObjectKey, p.URL, p.Caption, p.PhotoType, p.MIME, p.Size, p.SHA256,
	))
}

func (q *Queries) ListPhotosByForm(ctx context.Context, formID string) ([]Photo, error) {
	rows, err := q.Pool.Query(ctx,
		`SELECT `+photoColumns+` FROM form_photos WHERE form_id = $1 ORDER BY created_at`,
		formID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

func (q *Queries) DeletePhoto(ctx context.Context, id string) error {
	result, err := q.Pool.Exec(ctx, "DELETE FROM form_photos WHERE id = $1", id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
