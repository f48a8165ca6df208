package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"jobform/internal/db"
	"jobform/internal/field"
	"jobform/internal/form"
	"jobform/internal/metrics"
	"jobform/internal/model"
	"jobform/internal/pubsub"
	"jobform/internal/schema"
	"jobform/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadySubmitted = errors.New("form already submitted")
	ErrValidation       = errors.New("validation failed")
	ErrPolicy           = errors.New("file rejected by policy")
)

// ValidationError lists the questions whose answers failed validation.
type ValidationError struct {
	Questions []string
	Err       error
}

func (e *ValidationError) Error() string {
	if len(e.Questions) == 0 {
		return fmt.Sprintf("%s: %v", ErrValidation, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Questions, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
func (e *ValidationError) Unwrap() error        { return e.Err }

// Store is the persistence the form service needs; *db.Queries implements it.
type Store interface {
	GetTemplate(ctx context.Context, id string) (db.Template, error)
	UpsertTemplate(ctx context.Context, tmpl model.Template) (db.Template, error)
	GetLatestForm(ctx context.Context, jobKind, jobID string) (db.CompletionForm, error)
	GetForm(ctx context.Context, id string) (db.CompletionForm, error)
	UpsertForm(ctx context.Context, p db.UpsertFormParams) (db.CompletionForm, error)
	SubmitForm(ctx context.Context, id string) (db.CompletionForm, error)
	CreatePhoto(ctx context.Context, p db.CreatePhotoParams) (db.Photo, error)
	ListPhotosByForm(ctx context.Context, formID string) ([]db.Photo, error)
	DeletePhoto(ctx context.Context, id string) error
}

type EventBus interface {
	PublishForm(ctx context.Context, event pubsub.Event) error
}

type FormService struct {
	store      Store
	schemaComp *schema.Compiler
	objects    storage.Storage
	policy     *storage.FilePolicy
	bus        EventBus
	jobClient  JobClient
	log        *zap.Logger
}

func NewFormService(store Store, schemaComp *schema.Compiler, objects storage.Storage, policy *storage.FilePolicy, bus EventBus, log *zap.Logger) *FormService {
	return &FormService{
		store:      store,
		schemaComp: schemaComp,
		objects:    objects,
		policy:     policy,
		bus:        bus,
		log:        log,
	}
}

// SetJobClient sets the job client for scheduling background jobs
func (s *FormService) SetJobClient(client JobClient) {
	s.jobClient = client
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func (s *FormService) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, notFound(err, "template "+id)
	}
	return dbTemplateToModel(t), nil
}

// SeedTemplate checks a template can be rendered and stores it.
func (s *FormService) SeedTemplate(ctx context.Context, tmpl model.Template) (*model.Template, error) {
	if tmpl.ID == "" || tmpl.Name == "" {
		return nil, &ValidationError{Err: errors.New("template id and name are required")}
	}
	sch, err := form.NewSchema(tmpl)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	for i := 0; i < sch.GroupCount(); i++ {
		for _, q := range sch.Group(i).Questions {
			if _, err := field.New(q); err != nil {
				return nil, &ValidationError{Questions: []string{q.ID}, Err: err}
			}
		}
	}
	if err := s.schemaComp.Prepare(ctx, schema.FromTemplate(tmpl)); err != nil {
		return nil, fmt.Errorf("template %s does not compile: %w", tmpl.ID, err)
	}

	t, err := s.store.UpsertTemplate(ctx, tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to store template: %w", err)
	}
	return dbTemplateToModel(t), nil
}

// GetJobForm returns the job's most recent form, or nil when it has none.
func (s *FormService) GetJobForm(ctx context.Context, kind model.JobKind, jobID string) (*model.FormRecord, error) {
	f, err := s.store.GetLatestForm(ctx, string(kind), jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load form: %w", err)
	}
	return dbFormToModel(f), nil
}

// SaveJobForm upserts the draft of the (job, template) pair. A request with
// status submitted saves and then submits.
func (s *FormService) SaveJobForm(ctx context.Context, kind model.JobKind, jobID string, req model.SaveFormRequest) (*model.FormRecord, error) {
	if req.TemplateID == "" {
		return nil, &ValidationError{Err: errors.New("template_id is required")}
	}
	if _, err := s.store.GetTemplate(ctx, req.TemplateID); err != nil {
		return nil, notFound(err, "template "+req.TemplateID)
	}

	data := req.FormData
	if data == nil {
		data = model.Answers{}
	}
	params := db.UpsertFormParams{
		ID:         ulid.Make().String(),
		JobKind:    string(kind),
		JobID:      jobID,
		TemplateID: req.TemplateID,
		FormData:   data,
	}
	if kind == model.JobKindTC && req.TCJobCode != "" {
		code := req.TCJobCode
		params.TCJobCode = &code
	}

	f, err := s.store.UpsertForm(ctx, params)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadySubmitted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save form: %w", err)
	}

	metrics.FormsSaved.WithLabelValues(string(kind)).Inc()
	_ = s.bus.PublishForm(ctx, pubsub.Event{
		Type:       pubsub.EventFormSaved,
		FormID:     f.ID,
		JobKind:    f.JobKind,
		JobID:      f.JobID,
		TemplateID: f.TemplateID,
	})

	if req.Status == model.FormStatusSubmitted {
		return s.SubmitJobForm(ctx, kind, jobID)
	}
	return dbFormToModel(f), nil
}

// SubmitJobForm validates the job's latest form against its template and
// moves it to submitted.
func (s *FormService) SubmitJobForm(ctx context.Context, kind model.JobKind, jobID string) (*model.FormRecord, error) {
	f, err := s.store.GetLatestForm(ctx, string(kind), jobID)
	if err != nil {
		return nil, notFound(err, "form for job "+jobID)
	}
	if f.Status == string(model.FormStatusSubmitted) {
		return nil, ErrAlreadySubmitted
	}

	t, err := s.store.GetTemplate(ctx, f.TemplateID)
	if err != nil {
		return nil, notFound(err, "template "+f.TemplateID)
	}
	if err := s.schemaComp.ValidateForm(ctx, *dbTemplateToModel(t), f.FormData); err != nil {
		return nil, &ValidationError{Questions: schema.FailedQuestions(err), Err: err}
	}

	submitted, err := s.store.SubmitForm(ctx, f.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadySubmitted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to submit form: %w", err)
	}

	metrics.FormsSubmitted.WithLabelValues(string(kind)).Inc()
	if s.jobClient != nil {
		if err := s.jobClient.NotifyFormSubmitted(submitted.ID); err != nil {
			s.log.Warn("Failed to enqueue submission job", zap.String("form_id", submitted.ID), zap.Error(err))
		}
	} else {
		_ = s.bus.PublishForm(ctx, pubsub.Event{
			Type:       pubsub.EventFormSubmitted,
			FormID:     submitted.ID,
			JobKind:    submitted.JobKind,
			JobID:      submitted.JobID,
			TemplateID: submitted.TemplateID,
		})
	}

	s.log.Info("Form submitted",
		zap.String("form_id", submitted.ID),
		zap.String("job_kind", submitted.JobKind),
		zap.String("job_id", submitted.JobID))
	return dbFormToModel(submitted), nil
}

// PhotoInput is one uploaded photo file.
type PhotoInput struct {
	QuestionID  string
	Caption     string
	PhotoType   string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadPhoto stores a photo for a file question of the job's form. The
// form record must already exist.
func (s *FormService) UploadPhoto(ctx context.Context, kind model.JobKind, jobID string, in PhotoInput) (*model.Photo, error) {
	f, err := s.store.GetLatestForm(ctx, string(kind), jobID)
	if err != nil {
		return nil, notFound(err, "form for job "+jobID)
	}
	if f.Status == string(model.FormStatusSubmitted) {
		return nil, ErrAlreadySubmitted
	}
	if in.QuestionID != "" {
		if err := s.checkPhotoQuestion(ctx, f.TemplateID, in.QuestionID); err != nil {
			return nil, err
		}
	}
	if err := s.policy.ValidateFile(in.FileName, in.ContentType, in.Size); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPolicy, err)
	}

	objectName := storage.PhotoObjectName(f.JobKind, f.JobID, in.QuestionID, in.FileName)
	body := in.Body
	if limit := s.policy.MaxBytes(); limit > 0 {
		body = io.LimitReader(body, limit+1)
	}
	hr := storage.NewHashingReader(body)
	if err := s.objects.Put(ctx, objectName, in.ContentType, hr, in.Size); err != nil {
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}
	if limit := s.policy.MaxBytes(); limit > 0 && hr.Size() > limit {
		_ = s.objects.Delete(ctx, objectName)
		return nil, fmt.Errorf("%w: %w: body exceeds %d bytes", ErrPolicy, storage.ErrFileTooLarge, limit)
	}

	url, err := s.objects.URL(ctx, objectName)
	if err != nil {
		_ = s.objects.Delete(ctx, objectName)
		return nil, err
	}
	meta := storage.FileMetadata{Name: in.FileName, URL: url, Size: hr.Size(), MIME: in.ContentType, SHA256: hr.SHA256()}
	if err := storage.ValidateFileMetadata(meta); err != nil {
		_ = s.objects.Delete(ctx, objectName)
		return nil, fmt.Errorf("%w: %v", ErrPolicy, err)
	}

	p, err := s.store.CreatePhoto(ctx, db.CreatePhotoParams{
		ID:         ulid.Make().String(),
		FormID:     f.ID,
		QuestionID: in.QuestionID,
		ObjectKey:  objectName,
		URL:        meta.URL,
		Caption:    in.Caption,
		PhotoType:  in.PhotoType,
		MIME:       meta.MIME,
		Size:       meta.Size,
		SHA256:     meta.SHA256,
	})
	if err != nil {
		_ = s.objects.Delete(ctx, objectName)
		return nil, fmt.Errorf("failed to record photo: %w", err)
	}

	metrics.PhotosUploaded.WithLabelValues(string(kind)).Inc()
	metrics.PhotoBytes.Observe(float64(p.Size))
	_ = s.bus.PublishForm(ctx, pubsub.Event{
		Type:       pubsub.EventPhotoUploaded,
		FormID:     f.ID,
		JobKind:    f.JobKind,
		JobID:      f.JobID,
		QuestionID: p.QuestionID,
		PhotoID:    p.ID,
		URL:        p.URL,
	})
	return dbPhotoToModel(p), nil
}

func (s *FormService) checkPhotoQuestion(ctx context.Context, templateID, questionID string) error {
	t, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return notFound(err, "template "+templateID)
	}
	sch, err := form.NewSchema(*dbTemplateToModel(t))
	if err != nil {
		return err
	}
	if isPhoto, _ := sch.IsPhoto(questionID); !isPhoto {
		return &ValidationError{Questions: []string{questionID}, Err: errors.New("question does not take photos")}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func dbTemplateToModel(t db.Template) *model.Template {
	return &model.Template{ID: t.ID, Name: t.Name, Groups: t.Groups}
}

func dbFormToModel(f db.CompletionForm) *model.FormRecord {
	rec := &model.FormRecord{
		ID:         f.ID,
		TemplateID: f.TemplateID,
		JobID:      f.JobID,
		FormData:   f.FormData,
		Status:     model.FormStatus(f.Status),
		CreatedAt:  formatTime(f.CreatedAt),
		UpdatedAt:  formatTime(f.UpdatedAt),
	}
	if f.TCJobCode != nil {
		rec.TCJobCode = *f.TCJobCode
	}
	if rec.FormData == nil {
		rec.FormData = model.Answers{}
	}
	if f.SubmittedAt != nil {
		at := formatTime(*f.SubmittedAt)
		rec.SubmittedAt = &at
	}
	return rec
}

func dbPhotoToModel(p db.Photo) *model.Photo {
	return &model.Photo{
		ID:         p.ID,
		QuestionID: p.QuestionID,
		PhotoURL:   p.URL,
		Caption:    p.Caption,
		PhotoType:  p.PhotoType,
		MIME:       p.MIME,
		Size:       p.Size,
		SHA256:     p.SHA256,
		CreatedAt:  formatTime(p.CreatedAt),
	}
}
