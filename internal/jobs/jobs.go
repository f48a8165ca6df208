package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jobform/internal/db"
	"jobform/internal/model"
	"jobform/internal/pubsub"
	"jobform/internal/storage"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeFormSubmitted = "form:submitted"
	TypePhotoSweep    = "photo:sweep"
)

// FormPayload identifies the form a task works on.
type FormPayload struct {
	FormID string `json:"form_id"`
}

// FormStore is the data the job handlers read and clean up.
type FormStore interface {
	GetForm(ctx context.Context, id string) (db.CompletionForm, error)
	ListPhotosByForm(ctx context.Context, formID string) ([]db.Photo, error)
	DeletePhoto(ctx context.Context, id string) error
}

// Publisher sends form lifecycle events.
type Publisher interface {
	PublishForm(ctx context.Context, event pubsub.Event) error
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Handlers processes form tasks.
type Handlers struct {
	store      FormStore
	objects    storage.Storage
	bus        Publisher
	enqueuer   Enqueuer
	sweepDelay time.Duration
	log        *zap.Logger
}

func NewHandlers(store FormStore, objects storage.Storage, bus Publisher, enqueuer Enqueuer, sweepDelay time.Duration, log *zap.Logger) *Handlers {
	return &Handlers{
		store:      store,
		objects:    objects,
		bus:        bus,
		enqueuer:   enqueuer,
		sweepDelay: sweepDelay,
		log:        log,
	}
}

type JobServer struct {
	server   *asynq.Server
	client   *asynq.Client
	handlers *Handlers
	log      *zap.Logger
}

func NewJobServer(redisOpt asynq.RedisClientOpt, store FormStore, objects storage.Storage, bus Publisher, sweepDelay time.Duration, log *zap.Logger) (*JobServer, *asynq.Client) {
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	client := asynq.NewClient(redisOpt)

	return &JobServer{
		server:   server,
		client:   client,
		handlers: NewHandlers(store, objects, bus, client, sweepDelay, log),
		log:      log,
	}, client
}

func (js *JobServer) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeFormSubmitted, js.handlers.HandleFormSubmitted)
	mux.HandleFunc(TypePhotoSweep, js.handlers.HandlePhotoSweep)
	return js.server.Start(mux)
}

func (js *JobServer) Stop() {
	js.server.Shutdown()
	js.client.Close()
}

func decodePayload(t *asynq.Task) (FormPayload, error) {
	var p FormPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.FormID == "" {
		return p, fmt.Errorf("missing form id: %w", asynq.SkipRetry)
	}
	return p, nil
}

// HandleFormSubmitted announces a submission and schedules the photo sweep.
func (h *Handlers) HandleFormSubmitted(ctx context.Context, t *asynq.Task) error {
	p, err := decodePayload(t)
	if err != nil {
		return err
	}
	form, err := h.store.GetForm(ctx, p.FormID)
	if err != nil {
		return fmt.Errorf("failed to get form: %w", err)
	}

	_ = h.bus.PublishForm(ctx, pubsub.Event{
		Type:       pubsub.EventFormSubmitted,
		FormID:     form.ID,
		JobKind:    form.JobKind,
		JobID:      form.JobID,
		TemplateID: form.TemplateID,
	})

	if h.enqueuer != nil {
		if err := SchedulePhotoSweep(h.enqueuer, form.ID, h.sweepDelay); err != nil {
			return fmt.Errorf("failed to schedule photo sweep: %w", err)
		}
	}

	h.log.Info("Form submission processed", zap.String("form_id", form.ID), zap.String("job_id", form.JobID))
	return nil
}

// HandlePhotoSweep deletes photos of a submitted form that no answer
// references any more.
func (h *Handlers) HandlePhotoSweep(ctx context.Context, t *asynq.Task) error {
	p, err := decodePayload(t)
	if err != nil {
		return err
	}
	form, err := h.store.GetForm(ctx, p.FormID)
	if err != nil {
		return fmt.Errorf("failed to get form: %w", err)
	}
	if form.Status != string(model.FormStatusSubmitted) {
		return nil
	}

	photos, err := h.store.ListPhotosByForm(ctx, form.ID)
	if err != nil {
		return fmt.Errorf("failed to list photos: %w", err)
	}

	referenced := ReferencedURLs(form.FormData)
	swept := 0
	for _, photo := range photos {
		if referenced[photo.URL] {
			continue
		}
		if err := h.objects.Delete(ctx, photo.ObjectKey); err != nil {
			return fmt.Errorf("failed to delete object %s: %w", photo.ObjectKey, err)
		}
		if err := h.store.DeletePhoto(ctx, photo.ID); err != nil {
			return fmt.Errorf("failed to delete photo %s: %w", photo.ID, err)
		}
		_ = h.bus.PublishForm(ctx, pubsub.Event{
			Type:       pubsub.EventPhotoSwept,
			FormID:     form.ID,
			JobKind:    form.JobKind,
			JobID:      form.JobID,
			QuestionID: photo.QuestionID,
			PhotoID:    photo.ID,
		})
		swept++
	}

	h.log.Info("Photo sweep finished", zap.String("form_id", form.ID), zap.Int("swept", swept), zap.Int("kept", len(photos)-swept))
	return nil
}

// ReferencedURLs collects every string answer, including list items.
func ReferencedURLs(formData map[string]interface{}) map[string]bool {
	refs := make(map[string]bool)
	for _, v := range formData {
		switch t := v.(type) {
		case string:
			refs[t] = true
		case []string:
			for _, s := range t {
				refs[s] = true
			}
		case []interface{}:
			for _, item := range t {
				if s, ok := item.(string); ok {
					refs[s] = true
				}
			}
		}
	}
	return refs
}

// Schedule jobs

func EnqueueFormSubmitted(client Enqueuer, formID string) error {
	payload, err := json.Marshal(FormPayload{FormID: formID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeFormSubmitted, payload)
	_, err = client.Enqueue(task, asynq.Queue("critical"), asynq.MaxRetry(5))
	return err
}

func SchedulePhotoSweep(client Enqueuer, formID string, delay time.Duration) error {
	payload, err := json.Marshal(FormPayload{FormID: formID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypePhotoSweep, payload)
	_, err = client.Enqueue(task,
		asynq.Queue("low"),
		asynq.ProcessIn(delay),
		asynq.TaskID("photo-sweep:"+formID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
