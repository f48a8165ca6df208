// Package livesync keeps a TC job's live form in step with the external
// job-management system, which owns the form schema, answers and files.
package livesync

import (
	"context"
	"errors"
	"fmt"

	"jobform/internal/field"
	"jobform/internal/form"
	"jobform/internal/metrics"
	"jobform/internal/model"

	"go.uber.org/zap"
)

var (
	// ErrRemote is returned when the external system rejects a sync.
	ErrRemote = errors.New("live form sync rejected")
	// ErrNoForm is returned when the TC job has no form template.
	ErrNoForm = errors.New("tc job has no live form")
)

// Remote is the transport to the live-form endpoints.
type Remote interface {
	LiveFormDefinition(ctx context.Context, tcJobID string) (*model.LiveFormDefinition, error)
	SyncLiveAnswers(ctx context.Context, tcJobID string, body model.SyncRequest) (*model.SyncResponse, error)
}

// Definition is the schema and previously synced data of a live form.
type Definition struct {
	Template     model.Template
	TCFormID     string
	SavedAnswers model.Answers
	SavedFiles   map[string]string
}

// Result describes a finished sync call.
type Result struct {
	Seq           uint64
	Applied       bool
	SyncedAnswers model.Answers
}

type Adapter struct {
	remote  Remote
	tracker *Tracker
	log     *zap.Logger
}

func NewAdapter(remote Remote, log *zap.Logger) *Adapter {
	return &Adapter{
		remote:  remote,
		tracker: NewTracker(),
		log:     log,
	}
}

// Tracker exposes the session's sync state.
func (a *Adapter) Tracker() *Tracker { return a.tracker }

// FetchDefinition returns the live form schema together with the answers
// and file URLs already stored for the job.
func (a *Adapter) FetchDefinition(ctx context.Context, tcJobID string) (*Definition, error) {
	def, err := a.remote.LiveFormDefinition(ctx, tcJobID)
	if err != nil {
		return nil, err
	}
	if def.Form == nil || def.Form.TemplateID == "" {
		return nil, fmt.Errorf("tc job %s: %w", tcJobID, ErrNoForm)
	}
	out := &Definition{
		Template:     *def.Form.Template(),
		TCFormID:     def.Form.TCFormID,
		SavedAnswers: def.SavedAnswers,
		SavedFiles:   def.SavedFiles,
	}
	if out.SavedAnswers == nil {
		out.SavedAnswers = model.Answers{}
	}
	if out.SavedFiles == nil {
		out.SavedFiles = map[string]string{}
	}
	return out, nil
}

// SyncAnswers pushes the full answer map. Only the most recently issued
// call may change the tracker status; a non-success response sets the
// status to error and is not retried.
func (a *Adapter) SyncAnswers(ctx context.Context, tcJobID string, body model.SyncRequest) (Result, error) {
	seq := a.tracker.Begin()

	resp, err := a.remote.SyncLiveAnswers(ctx, tcJobID, body)
	if err == nil && !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unknown error"
		}
		err = fmt.Errorf("%w: %s", ErrRemote, msg)
	}

	res := Result{Seq: seq, Applied: a.tracker.Complete(seq, err)}
	if !res.Applied {
		metrics.StaleSyncResponses.Inc()
		a.log.Debug("Discarded stale live sync response",
			zap.String("tc_job_id", tcJobID),
			zap.Uint64("seq", seq),
			zap.Uint64("latest", a.tracker.Latest()),
		)
	}
	if err != nil {
		metrics.LiveSyncs.WithLabelValues("error").Inc()
		a.log.Warn("Live sync failed", zap.String("tc_job_id", tcJobID), zap.Uint64("seq", seq), zap.Error(err))
		return res, err
	}
	metrics.LiveSyncs.WithLabelValues("success").Inc()
	res.SyncedAnswers = resp.SyncedAnswers
	return res, nil
}

// BuildRequest splits the answers into file URLs and other answers and
// scopes the call to a group or marks it complete. Choice answers are sent
// as option display text.
func BuildRequest(s *form.Schema, answers model.Answers, groupNo *int, complete bool) model.SyncRequest {
	req := model.SyncRequest{
		Answers:    model.Answers{},
		GroupNo:    groupNo,
		IsComplete: complete,
	}
	for id, v := range answers {
		if isPhoto, _ := s.IsPhoto(id); isPhoto {
			if req.PhotoURLs == nil {
				req.PhotoURLs = model.Answers{}
			}
			req.PhotoURLs[id] = v
			continue
		}
		if f, ok := s.Field(id); ok {
			v = field.OptionText(f, v)
		}
		req.Answers[id] = v
	}
	return req
}

// GroupNumber returns the external group number of group i, falling back
// to its 1-based position when the template does not carry one.
func GroupNumber(s *form.Schema, i int) int {
	if n := s.Group(i).CSVGroupID; n != nil {
		return *n
	}
	return i + 1
}
