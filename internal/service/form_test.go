package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"jobform/internal/db/dbtest"
	"jobform/internal/model"
	"jobform/internal/pubsub"
	"jobform/internal/schema"
	"jobform/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockEventBus implements EventBus for testing
type MockEventBus struct {
	mu     sync.Mutex
	events []pubsub.Event
}

func (m *MockEventBus) PublishForm(_ context.Context, event pubsub.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventBus) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type mockJobClient struct{ submitted []string }

func (m *mockJobClient) NotifyFormSubmitted(formID string) error {
	m.submitted = append(m.submitted, formID)
	return nil
}

func inspectionTemplate() model.Template {
	return model.Template{
		ID:   "tmpl-1",
		Name: "Inspection",
		Groups: []model.Group{
			{
				ID: "g1", Name: "Details", SortOrder: 1,
				Questions: []model.Question{
					{ID: "q1", QuestionText: "Work done", FieldType: model.FieldText, IsRequired: true},
					{ID: "q2", QuestionText: "Outcome", FieldType: model.FieldRadio, AnswerOptions: []model.AnswerOption{
						{ID: "o1", Text: "Fixed"}, {ID: "o2", Text: "Follow-up"},
					}},
				},
			},
			{
				ID: "g2", Name: "Evidence", SortOrder: 2,
				Questions: []model.Question{
					{ID: "q3", QuestionText: "Photo", FieldType: model.FieldFile, AllowMultiple: true},
				},
			},
		},
	}
}

type fixture struct {
	svc   *FormService
	store *dbtest.MemStore
	bus   *MockEventBus
	dir   string
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	objects, err := storage.NewLocalStorage(dir, "http://files.test")
	require.NoError(t, err)
	f := &fixture{
		store: dbtest.NewMemStore(),
		bus:   &MockEventBus{},
		dir:   dir,
		ctx:   context.Background(),
	}
	f.svc = NewFormService(f.store, schema.NewCompilerWithCache(8), objects, storage.PhotoPolicy(1), f.bus, zap.NewNop())
	_, err = f.svc.SeedTemplate(f.ctx, inspectionTemplate())
	require.NoError(t, err)
	return f
}

func (f *fixture) save(t *testing.T, kind model.JobKind, jobID string, answers model.Answers) *model.FormRecord {
	t.Helper()
	rec, err := f.svc.SaveJobForm(f.ctx, kind, jobID, model.SaveFormRequest{
		TemplateID: "tmpl-1",
		FormData:   answers,
		Status:     model.FormStatusDraft,
	})
	require.NoError(t, err)
	return rec
}

func TestSeedTemplate_RejectsUnknownFieldType(t *testing.T) {
	f := newFixture(t)
	tmpl := inspectionTemplate()
	tmpl.ID = "tmpl-2"
	tmpl.Groups[0].Questions[0].FieldType = "signature"

	_, err := f.svc.SeedTemplate(f.ctx, tmpl)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetTemplate_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetTemplate(f.ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	tmpl, err := f.svc.GetTemplate(f.ctx, "tmpl-1")
	require.NoError(t, err)
	assert.Equal(t, "Inspection", tmpl.Name)
	assert.Len(t, tmpl.Groups, 2)
}

func TestGetJobForm_NoneIsNil(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.GetJobForm(f.ctx, model.JobKindInternal, "job-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSaveJobForm_UpsertReusesRecord(t *testing.T) {
	f := newFixture(t)
	first := f.save(t, model.JobKindInternal, "job-1", model.Answers{})
	second := f.save(t, model.JobKindInternal, "job-1", model.Answers{"q1": "replaced pump"})

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.FormStatusDraft, second.Status)

	loaded, err := f.svc.GetJobForm(f.ctx, model.JobKindInternal, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.Answers{"q1": "replaced pump"}, loaded.FormData)
	assert.Equal(t, []string{pubsub.EventFormSaved, pubsub.EventFormSaved}, f.bus.types())
}

func TestSaveJobForm_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	answers := model.Answers{"q1": "x", "q2": "Fixed"}
	a := f.save(t, model.JobKindInternal, "job-1", answers)
	b := f.save(t, model.JobKindInternal, "job-1", answers)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.FormData, b.FormData)
	assert.Equal(t, a.Status, b.Status)
}

func TestSaveJobForm_KindsAreSeparate(t *testing.T) {
	f := newFixture(t)
	job := f.save(t, model.JobKindInternal, "42", model.Answers{})
	rec, err := f.svc.SaveJobForm(f.ctx, model.JobKindTC, "42", model.SaveFormRequest{
		TemplateID: "tmpl-1",
		TCJobCode:  "TC-0042",
	})
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, rec.ID)
	assert.Equal(t, "TC-0042", rec.TCJobCode)
}

func TestSaveJobForm_UnknownTemplate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SaveJobForm(f.ctx, model.JobKindInternal, "job-1", model.SaveFormRequest{TemplateID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.SaveJobForm(f.ctx, model.JobKindInternal, "job-1", model.SaveFormRequest{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitJobForm_WithoutDraft(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SubmitJobForm(f.ctx, model.JobKindInternal, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitJobForm_ValidatesAnswers(t *testing.T) {
	f := newFixture(t)
	f.save(t, model.JobKindInternal, "job-1", model.Answers{"q2": "Maybe"})

	_, err := f.svc.SubmitJobForm(f.ctx, model.JobKindInternal, "job-1")
	require.ErrorIs(t, err, ErrValidation)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"q1", "q2"}, ve.Questions)

	rec, err := f.svc.GetJobForm(f.ctx, model.JobKindInternal, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.FormStatusDraft, rec.Status)
}

func TestSubmitJobForm_IsIrreversible(t *testing.T) {
	f := newFixture(t)
	jobs := &mockJobClient{}
	f.svc.SetJobClient(jobs)
	f.save(t, model.JobKindInternal, "job-1", model.Answers{"q1": "done", "q2": "o1"})

	rec, err := f.svc.SubmitJobForm(f.ctx, model.JobKindInternal, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.FormStatusSubmitted, rec.Status)
	require.NotNil(t, rec.SubmittedAt)
	assert.Equal(t, []string{rec.ID}, jobs.submitted)

	_, err = f.svc.SubmitJobForm(f.ctx, model.JobKindInternal, "job-1")
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	_, err = f.svc.SaveJobForm(f.ctx, model.JobKindInternal, "job-1", model.SaveFormRequest{TemplateID: "tmpl-1"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestSubmitJobForm_PublishesWithoutJobClient(t *testing.T) {
	f := newFixture(t)
	f.save(t, model.JobKindInternal, "job-1", model.Answers{"q1": "done"})
	_, err := f.svc.SubmitJobForm(f.ctx, model.JobKindInternal, "job-1")
	require.NoError(t, err)
	assert.Contains(t, f.bus.types(), pubsub.EventFormSubmitted)
}

func TestSaveJobForm_StatusSubmittedSubmits(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.SaveJobForm(f.ctx, model.JobKindInternal, "job-1", model.SaveFormRequest{
		TemplateID: "tmpl-1",
		FormData:   model.Answers{"q1": "done"},
		Status:     model.FormStatusSubmitted,
	})
	require.NoError(t, err)
	assert.Equal(t, model.FormStatusSubmitted, rec.Status)
}

func photoInput(content string) PhotoInput {
	return PhotoInput{
		QuestionID:  "q3",
		Caption:     "meter",
		PhotoType:   "completion_form",
		FileName:    "meter.jpg",
		ContentType: "image/jpeg",
		Size:        int64(len(content)),
		Body:        strings.NewReader(content),
	}
}

func TestUploadPhoto_RequiresFormRecord(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UploadPhoto(f.ctx, model.JobKindInternal, "job-1", photoInput("jpeg"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadPhoto_StoresObjectAndMetadata(t *testing.T) {
	f := newFixture(t)
	rec := f.save(t, model.JobKindInternal, "job-1", model.Answers{})

	photo, err := f.svc.UploadPhoto(f.ctx, model.JobKindInternal, "job-1", photoInput("jpeg bytes"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(photo.PhotoURL, "http://files.test/files/forms/job/job-1/q3/"))
	assert.Equal(t, int64(len("jpeg bytes")), photo.Size)
	want, err := storage.CalculateSHA256(bytes.NewReader([]byte("jpeg bytes")))
	require.NoError(t, err)
	assert.Equal(t, want, photo.SHA256)

	objectName := strings.TrimPrefix(photo.PhotoURL, "http://files.test/files/")
	data, err := os.ReadFile(filepath.Join(f.dir, filepath.FromSlash(objectName)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))

	photos, err := f.store.ListPhotosByForm(f.ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "q3", photos[0].QuestionID)
	assert.Contains(t, f.bus.types(), pubsub.EventPhotoUploaded)
}

func TestUploadPhoto_Policy(t *testing.T) {
	f := newFixture(t)
	f.save(t, model.JobKindInternal, "job-1", model.Answers{})

	in := photoInput("%PDF")
	in.FileName = "report.pdf"
	in.ContentType = "application/pdf"
	_, err := f.svc.UploadPhoto(f.ctx, model.JobKindInternal, "job-1", in)
	assert.ErrorIs(t, err, ErrPolicy)

	big := strings.Repeat("x", 1024*1024+1)
	_, err = f.svc.UploadPhoto(f.ctx, model.JobKindInternal, "job-1", photoInput(big))
	assert.ErrorIs(t, err, ErrPolicy)
}

func TestUploadPhoto_UnderstatedSizeIsCaught(t *testing.T) {
	f := newFixture(t)
	f.save(t, model.JobKindInternal, "job-1", model.Answers{})

	in := photoInput(strings.Repeat("x", 1024*1024+10))
	in.Size = 10
	_, err := f.svc.UploadPhoto(f.ctx, model.JobKindInternal, "job-1", in)
	assert.ErrorIs(t, err, ErrPolicy)
}

func TestUploadPhoto_RejectsNonFileQuestion(t *testing.T) {
	f := newFixture(t)
	f.save(t, model.JobKindInternal, "job-1", model.Answers{})

	in := photoInput("jpeg")
	in.QuestionID = "q1"
	_, err := f.svc.UploadPhoto(f.ctx, model.JobKindInternal, "job-1", in)
	assert.ErrorIs(t, err, ErrValidation)
}
