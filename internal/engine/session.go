// Package engine runs a completion-form editing session. A session is bound
// to one job and one persistence path, chosen when it is created: drafts
// saved through the backend, or live sync with the TC job system.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"jobform/internal/draft"
	"jobform/internal/form"
	"jobform/internal/livesync"
	"jobform/internal/model"
	"jobform/internal/photo"

	"go.uber.org/zap"
)

var (
	// ErrNoTemplate means the job has no form yet and no template was chosen.
	ErrNoTemplate = errors.New("no form template for job")
	// ErrValidation means submission was blocked by validation errors.
	ErrValidation = errors.New("form has validation errors")
	// ErrNoFormRecord means a photo upload was attempted before the form
	// record existed. It indicates a caller bug.
	ErrNoFormRecord = errors.New("photo upload before form record exists")
	// ErrSubmitted means the form was already submitted.
	ErrSubmitted = errors.New("form already submitted")
	// ErrNotStarted means Start has not completed successfully.
	ErrNotStarted = errors.New("session not started")
	// ErrNotPhotoQuestion means a photo was attached to a non-file question.
	ErrNotPhotoQuestion = errors.New("question does not take photos")
)

// ValidationError carries the errors that blocked a submission.
type ValidationError struct {
	Errors form.Errors
}

func (e *ValidationError) Error() string {
	ids := make([]string, 0, len(e.Errors))
	for id, reason := range e.Errors {
		ids = append(ids, fmt.Sprintf("%s=%s", id, reason))
	}
	sort.Strings(ids)
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(ids, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Mode is the persistence path of a session.
type Mode string

const (
	ModeDraft Mode = "draft"
	ModeLive  Mode = "live"
)

// TemplateSource fetches form templates.
type TemplateSource interface {
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
}

// Config wires a session. Set Forms and Templates for the draft path, or
// Live for the live-sync path.
type Config struct {
	JobID      string
	TemplateID string

	Forms     draft.Adapter
	Templates TemplateSource
	Live      *livesync.Adapter

	Photos    *photo.Pipeline
	Snapshots SnapshotStore
	Log       *zap.Logger
}

// Session is one editing session of one job's completion form.
type Session struct {
	cfg   Config
	mode  Mode
	log   *zap.Logger
	store *form.Store

	mu        sync.Mutex
	schema    *form.Schema
	nav       form.Navigator
	record    *model.FormRecord
	submitted bool
	flushErr  error

	flushes sync.WaitGroup
}

// New validates the wiring and selects the session mode.
func New(cfg Config) (*Session, error) {
	if cfg.JobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	s := &Session{cfg: cfg, store: form.NewStore()}
	switch {
	case cfg.Live != nil:
		s.mode = ModeLive
	case cfg.Forms != nil && cfg.Templates != nil:
		s.mode = ModeDraft
	default:
		return nil, fmt.Errorf("either a live sync adapter or a draft adapter with a template source is required")
	}
	s.log = cfg.Log.With(zap.String("job_id", cfg.JobID), zap.String("mode", string(s.mode)))
	return s, nil
}

func (s *Session) Mode() Mode { return s.mode }

// Start loads the template and any saved answers. It returns ErrNoTemplate
// when the job has no form and no template was chosen.
func (s *Session) Start(ctx context.Context) error {
	var err error
	if s.mode == ModeLive {
		err = s.startLive(ctx)
	} else {
		err = s.startDraft(ctx)
	}
	if err != nil {
		return err
	}
	s.restoreSnapshot(ctx)
	return nil
}

func (s *Session) startDraft(ctx context.Context) error {
	rec, err := s.cfg.Forms.LoadDraft(ctx, s.cfg.JobID)
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}

	templateID := s.cfg.TemplateID
	if rec != nil {
		templateID = rec.TemplateID
	}
	if templateID == "" {
		return ErrNoTemplate
	}

	tmpl, err := s.cfg.Templates.GetTemplate(ctx, templateID)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	schema, err := form.NewSchema(*tmpl)
	if err != nil {
		return err
	}

	if rec != nil {
		s.store.Prefill(schema.Normalize(rec.FormData))
		s.setLoaded(schema, rec, rec.Status == model.FormStatusSubmitted)
		return nil
	}

	s.setLoaded(schema, nil, false)
	// Photo endpoints attach to an existing record, so a new form is saved
	// empty before anything else can happen.
	if err := s.SaveDraft(ctx); err != nil {
		return fmt.Errorf("create form: %w", err)
	}
	return nil
}

func (s *Session) startLive(ctx context.Context) error {
	def, err := s.cfg.Live.FetchDefinition(ctx, s.cfg.JobID)
	if errors.Is(err, livesync.ErrNoForm) {
		return ErrNoTemplate
	}
	if err != nil {
		return fmt.Errorf("fetch live form: %w", err)
	}
	schema, err := form.NewSchema(def.Template)
	if err != nil {
		return err
	}

	saved := make(model.Answers, len(def.SavedAnswers)+len(def.SavedFiles))
	for id, v := range def.SavedAnswers {
		saved[id] = v
	}
	for id, url := range def.SavedFiles {
		if isPhoto, _ := schema.IsPhoto(id); isPhoto && url != "" {
			saved[id] = url
		}
	}
	s.store.Prefill(schema.Normalize(saved))
	s.setLoaded(schema, nil, false)
	return nil
}

func (s *Session) setLoaded(schema *form.Schema, rec *model.FormRecord, submitted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = schema
	s.nav = form.NewNavigator(schema.GroupCount())
	s.record = rec
	s.submitted = submitted
}

func (s *Session) current() (*form.Schema, form.Navigator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema == nil {
		return nil, form.Navigator{}, ErrNotStarted
	}
	return s.schema, s.nav, nil
}

// Schema returns the session's template, or nil before Start.
func (s *Session) Schema() *form.Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema
}

// UpdateField sets the answer of a question exactly as given.
func (s *Session) UpdateField(questionID string, value interface{}) error {
	schema, _, err := s.current()
	if err != nil {
		return err
	}
	if s.Submitted() {
		return ErrSubmitted
	}
	if _, ok := schema.Field(questionID); !ok {
		return fmt.Errorf("unknown question %s", questionID)
	}
	s.store.UpdateField(questionID, value)
	s.invalidateSync()
	return nil
}

// Value returns the current answer of a question.
func (s *Session) Value(questionID string) (interface{}, bool) {
	return s.store.Value(questionID)
}

// Answers returns a copy of all current answers.
func (s *Session) Answers() model.Answers {
	return s.store.Answers()
}

// Errors returns validation errors of visited groups only.
func (s *Session) Errors() form.Errors {
	schema, nav, err := s.current()
	if err != nil {
		return form.Errors{}
	}
	return form.Surfaced(schema, s.store.Errors(), nav)
}

// Next leaves the current group and moves forward. The left group is
// flushed in the background: saved as a draft, or synced scoped to that
// group. On the last group callers submit instead; see Advance.
func (s *Session) Next(ctx context.Context) error {
	schema, _, err := s.current()
	if err != nil {
		return err
	}
	s.mu.Lock()
	left := s.nav.Index()
	s.nav = s.nav.Next()
	s.mu.Unlock()

	s.store.Validate(schema)
	if !s.Submitted() {
		s.flushAsync(ctx, left)
	}
	return nil
}

// Previous leaves the current group and moves back.
func (s *Session) Previous() error {
	schema, _, err := s.current()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.nav = s.nav.Previous()
	s.mu.Unlock()
	s.store.Validate(schema)
	return nil
}

// Advance moves to the next group, or submits on the last group.
func (s *Session) Advance(ctx context.Context) error {
	_, nav, err := s.current()
	if err != nil {
		return err
	}
	if nav.IsLastGroup() {
		return s.Submit(ctx)
	}
	return s.Next(ctx)
}

// SaveDraft saves the current answers as a draft. On failure the answers
// stay in the session untouched so the save can be retried.
func (s *Session) SaveDraft(ctx context.Context) error {
	schema, _, err := s.current()
	if err != nil {
		return err
	}
	if s.mode != ModeDraft {
		_, err := s.Sync(ctx, nil)
		return err
	}
	if s.Submitted() {
		return ErrSubmitted
	}

	rev := s.store.Revision()
	rec, err := s.cfg.Forms.SaveDraft(ctx, s.cfg.JobID, schema.TemplateID(), s.store.Answers(), model.FormStatusDraft)
	if err != nil {
		s.log.Warn("Draft save failed", zap.Error(err))
		return fmt.Errorf("save draft: %w", err)
	}
	s.mu.Lock()
	s.record = rec
	s.mu.Unlock()
	s.store.MarkClean(rev)
	return nil
}

// Sync pushes the full answer map to the TC job system, scoped to groupNo
// when it is set.
func (s *Session) Sync(ctx context.Context, groupNo *int) (livesync.Result, error) {
	schema, _, err := s.current()
	if err != nil {
		return livesync.Result{}, err
	}
	if s.mode != ModeLive {
		return livesync.Result{}, fmt.Errorf("sync requires a live session")
	}
	rev := s.store.Revision()
	res, err := s.cfg.Live.SyncAnswers(ctx, s.cfg.JobID, livesync.BuildRequest(schema, s.store.Answers(), groupNo, false))
	if err == nil && res.Applied {
		s.store.MarkClean(rev)
	}
	return res, err
}

// Submit validates every group and, when clean, persists and finalizes the
// form. Validation failures return a *ValidationError and nothing is sent.
func (s *Session) Submit(ctx context.Context) error {
	schema, _, err := s.current()
	if err != nil {
		return err
	}
	if s.Submitted() {
		return ErrSubmitted
	}

	s.mu.Lock()
	s.nav = s.nav.VisitAll()
	s.mu.Unlock()

	if errs := s.store.Validate(schema); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	if s.mode == ModeLive {
		rev := s.store.Revision()
		req := livesync.BuildRequest(schema, s.store.Answers(), nil, true)
		if _, err := s.cfg.Live.SyncAnswers(ctx, s.cfg.JobID, req); err != nil {
			return fmt.Errorf("complete live form: %w", err)
		}
		s.store.MarkClean(rev)
	} else {
		// An earlier background save must not land after the final one.
		s.flushes.Wait()
		if err := s.SaveDraft(ctx); err != nil {
			return err
		}
		rec, err := s.cfg.Forms.Submit(ctx, s.cfg.JobID)
		if err != nil {
			s.log.Warn("Form submit failed", zap.Error(err))
			return fmt.Errorf("submit form: %w", err)
		}
		s.mu.Lock()
		if rec != nil {
			s.record = rec
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.submitted = true
	s.mu.Unlock()
	s.dropSnapshot(ctx)
	s.log.Info("Form submitted", zap.String("template_id", schema.TemplateID()))
	return nil
}

// Submitted reports whether the form has been submitted.
func (s *Session) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// Record returns the last form record returned by the backend.
func (s *Session) Record() *model.FormRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// SyncStatus is the live-sync state; draft sessions report idle.
func (s *Session) SyncStatus() livesync.Status {
	if s.mode != ModeLive {
		return livesync.StatusIdle
	}
	return s.cfg.Live.Tracker().Status()
}

// Wait blocks until background flushes issued by Next have finished and
// returns the error of the most recent failed one.
func (s *Session) Wait() error {
	s.flushes.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushErr
}

// Reset abandons the session's answers and returns to the first group.
func (s *Session) Reset(ctx context.Context) {
	s.store.Reset()
	s.mu.Lock()
	if s.schema != nil {
		s.nav = form.NewNavigator(s.schema.GroupCount())
	}
	s.mu.Unlock()
	s.invalidateSync()
	s.dropSnapshot(ctx)
}

func (s *Session) flushAsync(ctx context.Context, group int) {
	ctx = context.WithoutCancel(ctx)
	s.flushes.Add(1)
	go func() {
		defer s.flushes.Done()
		var err error
		if s.mode == ModeLive {
			groupNo := livesync.GroupNumber(s.Schema(), group)
			_, err = s.Sync(ctx, &groupNo)
		} else if s.store.Dirty() {
			err = s.SaveDraft(ctx)
		}
		s.mu.Lock()
		s.flushErr = err
		s.mu.Unlock()
	}()
}

func (s *Session) invalidateSync() {
	if s.mode == ModeLive {
		s.cfg.Live.Tracker().Invalidate()
	}
}

// State is a point-in-time view of a session for rendering.
type State struct {
	Mode        Mode
	TemplateID  string
	GroupIndex  int
	GroupCount  int
	Progress    float64
	IsLastGroup bool
	Answers     model.Answers
	Errors      form.Errors
	Dirty       bool
	SyncStatus  livesync.Status
	Submitted   bool
}

// State returns the current session view.
func (s *Session) State() (State, error) {
	schema, nav, err := s.current()
	if err != nil {
		return State{}, err
	}
	return State{
		Mode:        s.mode,
		TemplateID:  schema.TemplateID(),
		GroupIndex:  nav.Index(),
		GroupCount:  nav.Count(),
		Progress:    nav.Progress(),
		IsLastGroup: nav.IsLastGroup(),
		Answers:     s.store.Answers(),
		Errors:      form.Surfaced(schema, s.store.Errors(), nav),
		Dirty:       s.store.Dirty(),
		SyncStatus:  s.SyncStatus(),
		Submitted:   s.Submitted(),
	}, nil
}
