// Package dbtest provides an in-memory stand-in for the Postgres queries.
package dbtest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"jobform/internal/db"
	"jobform/internal/model"

	"github.com/jackc/pgx/v5"
)

// MemStore mirrors db.Queries semantics, including pgx.ErrNoRows for
// missing rows and the draft-only upsert.
type MemStore struct {
	mu        sync.Mutex
	templates map[string]db.Template
	forms     map[string]db.CompletionForm
	photos    map[string]db.Photo
	now       func() time.Time
}

func NewMemStore() *MemStore {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var tick int64
	return &MemStore{
		templates: make(map[string]db.Template),
		forms:     make(map[string]db.CompletionForm),
		photos:    make(map[string]db.Photo),
		now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		},
	}
}

// clone round-trips through JSON the way a jsonb column does.
func clone(v map[string]interface{}) map[string]interface{} {
	b, _ := json.Marshal(v)
	out := map[string]interface{}{}
	_ = json.Unmarshal(b, &out)
	return out
}

func (m *MemStore) GetTemplate(_ context.Context, id string) (db.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return db.Template{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *MemStore) UpsertTemplate(_ context.Context, tmpl model.Template) (db.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	t, ok := m.templates[tmpl.ID]
	if !ok {
		t = db.Template{ID: tmpl.ID, CreatedAt: now}
	}
	t.Name = tmpl.Name
	t.Groups = tmpl.Groups
	t.UpdatedAt = now
	m.templates[tmpl.ID] = t
	return t, nil
}

func (m *MemStore) GetLatestForm(_ context.Context, jobKind, jobID string) (db.CompletionForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *db.CompletionForm
	for _, f := range m.forms {
		if f.JobKind != jobKind || f.JobID != jobID {
			continue
		}
		if latest == nil || f.UpdatedAt.After(latest.UpdatedAt) {
			cp := f
			latest = &cp
		}
	}
	if latest == nil {
		return db.CompletionForm{}, pgx.ErrNoRows
	}
	latest.FormData = clone(latest.FormData)
	return *latest, nil
}

func (m *MemStore) GetForm(_ context.Context, id string) (db.CompletionForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forms[id]
	if !ok {
		return db.CompletionForm{}, pgx.ErrNoRows
	}
	f.FormData = clone(f.FormData)
	return f, nil
}

func (m *MemStore) UpsertForm(_ context.Context, p db.UpsertFormParams) (db.CompletionForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, f := range m.forms {
		if f.JobKind != p.JobKind || f.JobID != p.JobID || f.TemplateID != p.TemplateID {
			continue
		}
		if f.Status != string(model.FormStatusDraft) {
			return db.CompletionForm{}, pgx.ErrNoRows
		}
		f.FormData = clone(p.FormData)
		if p.TCJobCode != nil {
			f.TCJobCode = p.TCJobCode
		}
		f.UpdatedAt = now
		m.forms[id] = f
		return f, nil
	}
	f := db.CompletionForm{
		ID:         p.ID,
		JobKind:    p.JobKind,
		JobID:      p.JobID,
		TemplateID: p.TemplateID,
		TCJobCode:  p.TCJobCode,
		FormData:   clone(p.FormData),
		Status:     string(model.FormStatusDraft),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.forms[f.ID] = f
	return f, nil
}

func (m *MemStore) SubmitForm(_ context.Context, id string) (db.CompletionForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forms[id]
	if !ok || f.Status != string(model.FormStatusDraft) {
		return db.CompletionForm{}, pgx.ErrNoRows
	}
	now := m.now()
	f.Status = string(model.FormStatusSubmitted)
	f.SubmittedAt = &now
	f.UpdatedAt = now
	m.forms[id] = f
	return f, nil
}

func (m *MemStore) CreatePhoto(_ context.Context, p db.CreatePhotoParams) (db.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.forms[p.FormID]; !ok {
		return db.Photo{}, pgx.ErrNoRows
	}
	photo := db.Photo{
		ID:         p.ID,
		FormID:     p.FormID,
		QuestionID: p.QuestionID,
		ObjectKey:  p.ObjectKey,
		URL:        p.URL,
		Caption:    p.Caption,
		PhotoType:  p.PhotoType,
		MIME:       p.MIME,
		Size:       p.Size,
		SHA256:     p.SHA256,
		CreatedAt:  m.now(),
	}
	m.photos[photo.ID] = photo
	return photo, nil
}

func (m *MemStore) ListPhotosByForm(_ context.Context, formID string) ([]db.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Photo
	for _, p := range m.photos {
		if p.FormID == formID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) DeletePhoto(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.photos[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.photos, id)
	return nil
}
