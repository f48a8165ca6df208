package api

import (
	"encoding/json"
	"io"
	"net/http"

	"jobform/internal/auth"
	"jobform/internal/model"
	"jobform/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const multipartMemory = 8 << 20

func (d Dependencies) getTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := d.Forms.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (d Dependencies) getJobForm(kind model.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := d.Forms.GetJobForm(r.Context(), kind, chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, d.Log)
			return
		}
		writeJSON(w, http.StatusOK, model.FormEnvelope{Form: rec})
	}
}

func (d Dependencies) saveJobForm(kind model.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.SaveFormRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
			return
		}
		if req.Status == "" {
			req.Status = model.FormStatusDraft
		}
		if req.Status != model.FormStatusDraft && req.Status != model.FormStatusSubmitted {
			WriteError(w, http.StatusBadRequest, "invalid_status", "status must be draft or submitted", d.Log)
			return
		}

		jobID := chi.URLParam(r, "id")
		rec, err := d.Forms.SaveJobForm(r.Context(), kind, jobID, req)
		if err != nil {
			writeServiceError(w, err, d.Log)
			return
		}
		d.Log.Info("Completion form saved",
			zap.String("job_kind", string(kind)),
			zap.String("job_id", jobID),
			zap.String("form_id", rec.ID),
			zap.String("technician_id", auth.GetTechnicianID(r.Context())))
		writeJSON(w, http.StatusOK, model.FormEnvelope{Form: rec})
	}
}

func (d Dependencies) submitJobForm(kind model.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "id")
		rec, err := d.Forms.SubmitJobForm(r.Context(), kind, jobID)
		if err != nil {
			writeServiceError(w, err, d.Log)
			return
		}
		d.Log.Info("Completion form submitted",
			zap.String("job_kind", string(kind)),
			zap.String("job_id", jobID),
			zap.String("form_id", rec.ID),
			zap.String("technician_id", auth.GetTechnicianID(r.Context())))
		writeJSON(w, http.StatusOK, model.FormEnvelope{Form: rec})
	}
}

func (d Dependencies) uploadPhoto(kind model.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, d.MaxUploadBytes+multipartMemory)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid multipart body", d.Log)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "file part required", d.Log)
			return
		}
		defer file.Close()

		contentType, err := sniffContentType(file, header.Header.Get("Content-Type"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "Unreadable file part", d.Log)
			return
		}

		photo, err := d.Forms.UploadPhoto(r.Context(), kind, chi.URLParam(r, "id"), service.PhotoInput{
			QuestionID:  r.FormValue("question_id"),
			Caption:     r.FormValue("caption"),
			PhotoType:   r.FormValue("photo_type"),
			FileName:    header.Filename,
			ContentType: contentType,
			Size:        header.Size,
			Body:        file,
		})
		if err != nil {
			writeServiceError(w, err, d.Log)
			return
		}
		writeJSON(w, http.StatusCreated, model.PhotoEnvelope{Photo: *photo})
	}
}

// sniffContentType trusts a declared specific type and sniffs the content
// otherwise, rewinding the file afterwards.
func sniffContentType(f io.ReadSeeker, declared string) (string, error) {
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}
	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}
