package api

import (
	"net/http"

	"jobform/internal/auth"
	"jobform/internal/model"
	"jobform/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Dependencies struct {
	Forms *service.FormService
	Auth  *auth.JWTConfig
	Log   *zap.Logger
	// MaxUploadBytes bounds a photo upload request body; 0 means no bound.
	MaxUploadBytes int64
}

func Routes(d Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger(d.Log))
	if d.Auth != nil {
		r.Use(d.Auth.Middleware)
	}

	r.Get("/templates/{id}", d.getTemplate)

	for _, kind := range []model.JobKind{model.JobKindInternal, model.JobKindTC} {
		r.Route(jobPrefix(kind)+"/{id}/completion-form", func(r chi.Router) {
			r.Get("/", d.getJobForm(kind))
			r.Post("/", d.saveJobForm(kind))
			r.Put("/submit", d.submitJobForm(kind))
			r.Post("/photos", d.uploadPhoto(kind))
		})
	}

	return r
}

func jobPrefix(kind model.JobKind) string {
	if kind == model.JobKindTC {
		return "/tc-jobs"
	}
	return "/jobs"
}
