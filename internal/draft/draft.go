// Package draft persists completion forms through the backend. Plain jobs
// and TC jobs share one contract; a session picks its adapter once.
package draft

import (
	"context"
	"errors"
	"fmt"

	"jobform/internal/client"
	"jobform/internal/model"
)

// ErrNotFound is returned by Submit when no form has been saved yet.
var ErrNotFound = errors.New("completion form not found")

// Adapter loads, saves and submits the completion form of one kind of job.
type Adapter interface {
	// LoadDraft returns the existing form of a job, or nil if there is none.
	LoadDraft(ctx context.Context, jobID string) (*model.FormRecord, error)
	// SaveDraft upserts the form. Saving the same answers twice leaves the
	// same stored state.
	SaveDraft(ctx context.Context, jobID, templateID string, answers model.Answers, status model.FormStatus) (*model.FormRecord, error)
	// Submit moves a saved form from draft to submitted.
	Submit(ctx context.Context, jobID string) (*model.FormRecord, error)
	// Kind reports which job kind the adapter persists.
	Kind() model.JobKind
}

// Backend is the subset of the backend client the adapters use.
type Backend interface {
	GetJobForm(ctx context.Context, kind model.JobKind, jobID string) (*model.FormRecord, error)
	SaveJobForm(ctx context.Context, kind model.JobKind, jobID string, req model.SaveFormRequest) (*model.FormRecord, error)
	SubmitJobForm(ctx context.Context, kind model.JobKind, jobID string) (*model.FormRecord, error)
}

var (
	_ Adapter = (*JobForms)(nil)
	_ Adapter = (*TCJobForms)(nil)
)

// JobForms persists completion forms of internal jobs.
type JobForms struct {
	backend Backend
}

func NewJobForms(backend Backend) *JobForms {
	return &JobForms{backend: backend}
}

func (a *JobForms) Kind() model.JobKind { return model.JobKindInternal }

func (a *JobForms) LoadDraft(ctx context.Context, jobID string) (*model.FormRecord, error) {
	return a.backend.GetJobForm(ctx, model.JobKindInternal, jobID)
}

func (a *JobForms) SaveDraft(ctx context.Context, jobID, templateID string, answers model.Answers, status model.FormStatus) (*model.FormRecord, error) {
	return a.backend.SaveJobForm(ctx, model.JobKindInternal, jobID, model.SaveFormRequest{
		TemplateID: templateID,
		FormData:   nonNil(answers),
		Status:     status,
	})
}

func (a *JobForms) Submit(ctx context.Context, jobID string) (*model.FormRecord, error) {
	return submit(ctx, a.backend, model.JobKindInternal, jobID)
}

// TCJobForms persists completion forms of TC jobs, which also carry the TC
// job code.
type TCJobForms struct {
	backend Backend
	jobCode string
}

func NewTCJobForms(backend Backend, tcJobCode string) *TCJobForms {
	return &TCJobForms{backend: backend, jobCode: tcJobCode}
}

func (a *TCJobForms) Kind() model.JobKind { return model.JobKindTC }

func (a *TCJobForms) LoadDraft(ctx context.Context, tcJobID string) (*model.FormRecord, error) {
	return a.backend.GetJobForm(ctx, model.JobKindTC, tcJobID)
}

func (a *TCJobForms) SaveDraft(ctx context.Context, tcJobID, templateID string, answers model.Answers, status model.FormStatus) (*model.FormRecord, error) {
	return a.backend.SaveJobForm(ctx, model.JobKindTC, tcJobID, model.SaveFormRequest{
		TemplateID: templateID,
		FormData:   nonNil(answers),
		Status:     status,
		TCJobCode:  a.jobCode,
	})
}

func (a *TCJobForms) Submit(ctx context.Context, tcJobID string) (*model.FormRecord, error) {
	return submit(ctx, a.backend, model.JobKindTC, tcJobID)
}

func submit(ctx context.Context, backend Backend, kind model.JobKind, jobID string) (*model.FormRecord, error) {
	rec, err := backend.SubmitJobForm(ctx, kind, jobID)
	if errors.Is(err, client.ErrNotFound) {
		return nil, fmt.Errorf("submit %s %s: %w", kind, jobID, ErrNotFound)
	}
	return rec, err
}

func nonNil(a model.Answers) model.Answers {
	if a == nil {
		return model.Answers{}
	}
	return a
}
