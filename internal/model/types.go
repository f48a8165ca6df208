package model

// FieldType is the field-type vocabulary exchanged with the backend and the
// external job-management system.
type FieldType string

const (
	FieldText          FieldType = "text"
	FieldTextarea      FieldType = "textarea"
	FieldNumber        FieldType = "number"
	FieldEmail         FieldType = "email"
	FieldPhone         FieldType = "phone"
	FieldDropdown      FieldType = "dropdown"
	FieldRadio         FieldType = "radio"
	FieldCheckbox      FieldType = "checkbox"
	FieldMultiCheckbox FieldType = "multi_checkbox"
	FieldDate          FieldType = "date"
	FieldFile          FieldType = "file"
)

// FormStatus represents completion form status
type FormStatus string

const (
	FormStatusDraft     FormStatus = "draft"
	FormStatusSubmitted FormStatus = "submitted"
)

// JobKind distinguishes internal jobs from jobs owned by the external
// job-management system (TC).
type JobKind string

const (
	JobKindInternal JobKind = "job"
	JobKindTC       JobKind = "tc_job"
)

// AnswerOption is one choice of a dropdown, radio or multi_checkbox question.
type AnswerOption struct {
	ID         string `json:"id" yaml:"id"`
	Text       string `json:"text" yaml:"text"`
	ExternalID *int64 `json:"tc_option_id,omitempty" yaml:"tc_option_id,omitempty"`
}

// Question is a single schema-declared field.
type Question struct {
	ID            string         `json:"id" yaml:"id"`
	QuestionText  string         `json:"question_text" yaml:"question_text"`
	FieldType     FieldType      `json:"field_type" yaml:"field_type"`
	IsRequired    bool           `json:"is_required" yaml:"is_required"`
	HelpText      string         `json:"help_text,omitempty" yaml:"help_text,omitempty"`
	AllowMultiple bool           `json:"allow_multiple,omitempty" yaml:"allow_multiple,omitempty"`
	AnswerOptions []AnswerOption `json:"answer_options,omitempty" yaml:"answer_options,omitempty"`
}

// Group is an ordered subsection of a template.
type Group struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	SortOrder   int        `json:"sort_order" yaml:"sort_order"`
	CSVGroupID  *int       `json:"csv_group_id,omitempty" yaml:"csv_group_id,omitempty"`
	Questions   []Question `json:"questions" yaml:"questions"`
}

// Template is an immutable form schema.
type Template struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Groups []Group `json:"groups" yaml:"groups"`
}

// Answers maps question id to an answer value. Values are string, bool or
// []string depending on the question's field type.
type Answers map[string]interface{}

// FormRecord is a persisted completion form.
type FormRecord struct {
	ID          string     `json:"id"`
	TemplateID  string     `json:"template_id"`
	JobID       string     `json:"job_id,omitempty"`
	TCJobCode   string     `json:"tc_job_code,omitempty"`
	FormData    Answers    `json:"form_data"`
	Status      FormStatus `json:"status"`
	CreatedAt   string     `json:"created_at,omitempty"`
	UpdatedAt   string     `json:"updated_at,omitempty"`
	SubmittedAt *string    `json:"submitted_at,omitempty"`
}

// FormEnvelope is the {form: ...|null} body of the completion form endpoints.
type FormEnvelope struct {
	Form *FormRecord `json:"form"`
}

// SaveFormRequest is the body of POST jobCompletionForm.
type SaveFormRequest struct {
	TemplateID string     `json:"template_id"`
	FormData   Answers    `json:"form_data"`
	Status     FormStatus `json:"status"`
	TCJobCode  string     `json:"tc_job_code,omitempty"`
}

// Photo is the stored metadata of an uploaded form photo.
type Photo struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	PhotoURL   string `json:"photo_url"`
	Caption    string `json:"caption,omitempty"`
	PhotoType  string `json:"photo_type,omitempty"`
	MIME       string `json:"mime,omitempty"`
	Size       int64  `json:"size"`
	SHA256     string `json:"sha256,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// PhotoEnvelope is the {photo: ...} body returned by photo upload.
type PhotoEnvelope struct {
	Photo Photo `json:"photo"`
}

// LiveForm is the form part of the live form definition returned for a TC job.
type LiveForm struct {
	TemplateID   string  `json:"template_id"`
	TemplateName string  `json:"template_name"`
	TCFormID     string  `json:"tc_form_id"`
	TCJobID      string  `json:"tc_job_id"`
	Groups       []Group `json:"groups"`
}

// LiveFormDefinition is the body of GET liveFormDefinition.
type LiveFormDefinition struct {
	Form         *LiveForm         `json:"form"`
	SavedAnswers Answers           `json:"saved_answers"`
	SavedFiles   map[string]string `json:"saved_files"`
}

// Template converts the live form into the common schema model.
func (f *LiveForm) Template() *Template {
	return &Template{
		ID:     f.TemplateID,
		Name:   f.TemplateName,
		Groups: f.Groups,
	}
}

// SyncRequest is the body of POST syncAnswers.
type SyncRequest struct {
	Answers    Answers `json:"answers"`
	PhotoURLs  Answers `json:"photo_urls,omitempty"`
	GroupNo    *int    `json:"group_no,omitempty"`
	IsComplete bool    `json:"is_complete"`
}

// SyncResponse is the body returned by syncAnswers.
type SyncResponse struct {
	Success       bool    `json:"success"`
	SyncedAnswers Answers `json:"synced_answers,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// LivePhotoResponse is the body returned by the live form photo upload.
type LivePhotoResponse struct {
	Success  bool   `json:"success"`
	PhotoURL string `json:"photo_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SessionSnapshot is a checkpoint of an editing session kept so an
// interrupted session can resume where it left off.
type SessionSnapshot struct {
	TemplateID string  `json:"template_id"`
	GroupIndex int     `json:"group_index"`
	Visited    []int   `json:"visited"`
	Answers    Answers `json:"answers"`
	Dirty      bool    `json:"dirty"`
	SavedAt    string  `json:"saved_at"`
}
