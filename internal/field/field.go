// Package field maps schema questions onto a closed set of field variants.
// Each variant knows which input widget renders it, how to bring a stored or
// prefilled value into canonical shape, and how to check a value it holds.
package field

import (
	"fmt"

	"jobform/internal/model"
)

// Widget identifies the concrete input used to render a field.
type Widget string

const (
	WidgetTextInput     Widget = "text_input"
	WidgetTextArea      Widget = "text_area"
	WidgetNumberInput   Widget = "number_input"
	WidgetEmailInput    Widget = "email_input"
	WidgetPhoneInput    Widget = "phone_input"
	WidgetPicker        Widget = "picker"
	WidgetRadioGroup    Widget = "radio_group"
	WidgetCheckboxGroup Widget = "checkbox_group"
	WidgetSwitch        Widget = "switch"
	WidgetDatePicker    Widget = "date_picker"
	WidgetPhotoPicker   Widget = "photo_picker"
)

// Reason is a validation failure reason reported for a single question.
type Reason string

const (
	ReasonRequired      Reason = "required"
	ReasonInvalidType   Reason = "invalid_type"
	ReasonInvalidEmail  Reason = "invalid_email"
	ReasonInvalidPhone  Reason = "invalid_phone"
	ReasonInvalidNumber Reason = "invalid_number"
	ReasonInvalidDate   Reason = "invalid_date"
	ReasonInvalidOption Reason = "invalid_option"
)

// Field is one question bound to its variant. The set of implementations is
// closed: Text, Number, SingleChoice, MultiChoice, Boolean, Date and Photo.
type Field interface {
	Question() model.Question
	Widget() Widget
	// Empty reports whether v counts as "no answer" for required checks.
	Empty(v interface{}) bool
	// Normalize converts a stored or prefilled value into the variant's
	// canonical shape. ok is false when v cannot be represented.
	Normalize(v interface{}) (out interface{}, ok bool)
	// Check validates a non-empty value. It returns "" when v conforms.
	Check(v interface{}) Reason

	sealed()
}

// New binds a question to its field variant.
func New(q model.Question) (Field, error) {
	switch q.FieldType {
	case model.FieldText:
		return Text{q: q, Format: FormatPlain}, nil
	case model.FieldTextarea:
		return Text{q: q, Format: FormatPlain, Multiline: true}, nil
	case model.FieldEmail:
		return Text{q: q, Format: FormatEmail}, nil
	case model.FieldPhone:
		return Text{q: q, Format: FormatPhone}, nil
	case model.FieldNumber:
		return Number{q: q}, nil
	case model.FieldDropdown:
		return SingleChoice{q: q, Options: q.AnswerOptions}, nil
	case model.FieldRadio:
		return SingleChoice{q: q, Options: q.AnswerOptions, Radio: true}, nil
	case model.FieldMultiCheckbox:
		return MultiChoice{q: q, Options: q.AnswerOptions}, nil
	case model.FieldCheckbox:
		return Boolean{q: q}, nil
	case model.FieldDate:
		return Date{q: q}, nil
	case model.FieldFile:
		return Photo{q: q, Multiple: q.AllowMultiple}, nil
	default:
		return nil, fmt.Errorf("question %s: unsupported field type %q", q.ID, q.FieldType)
	}
}

// Validate applies the required check and then the variant check to v.
// present reports whether the question has an entry in the answer map.
func Validate(f Field, v interface{}, present bool) Reason {
	if !present || f.Empty(v) {
		if f.Question().IsRequired {
			return ReasonRequired
		}
		return ""
	}
	return f.Check(v)
}

// OptionText converts a choice answer to option display text, mapping any
// option ids. Answers of other fields and values a choice field cannot
// represent are returned unchanged.
func OptionText(f Field, v interface{}) interface{} {
	switch f.(type) {
	case SingleChoice, MultiChoice:
		if out, ok := f.Normalize(v); ok {
			return out
		}
	}
	return v
}
