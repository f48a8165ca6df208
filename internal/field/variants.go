package field

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"jobform/internal/model"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// phonePattern accepts an optional leading +, then digits with spaces,
// dashes, dots or parentheses between them.
var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{5,}[0-9]$`)

const dateLayout = "2006-01-02"

// TextFormat selects the extra check applied to a text field.
type TextFormat int

const (
	FormatPlain TextFormat = iota
	FormatEmail
	FormatPhone
)

// Text is a short or long free-text field, optionally constrained to an
// email address or phone number.
type Text struct {
	q         model.Question
	Format    TextFormat
	Multiline bool
}

func (f Text) Question() model.Question { return f.q }

func (f Text) Widget() Widget {
	switch {
	case f.Multiline:
		return WidgetTextArea
	case f.Format == FormatEmail:
		return WidgetEmailInput
	case f.Format == FormatPhone:
		return WidgetPhoneInput
	}
	return WidgetTextInput
}

func (f Text) Empty(v interface{}) bool { return isEmpty(v) }

func (f Text) Normalize(v interface{}) (interface{}, bool) { return scalarString(v) }

func (f Text) Check(v interface{}) Reason {
	s, ok := v.(string)
	if !ok {
		return ReasonInvalidType
	}
	switch f.Format {
	case FormatEmail:
		if validate.Var(strings.TrimSpace(s), "email") != nil {
			return ReasonInvalidEmail
		}
	case FormatPhone:
		if !validPhone(s) {
			return ReasonInvalidPhone
		}
	}
	return ""
}

func validPhone(s string) bool {
	s = strings.TrimSpace(s)
	if !phonePattern.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}

// Number holds the raw string typed by the user; parsing happens in Check.
type Number struct {
	q model.Question
}

func (f Number) Question() model.Question { return f.q }
func (f Number) Widget() Widget           { return WidgetNumberInput }
func (f Number) Empty(v interface{}) bool { return isEmpty(v) }

func (f Number) Normalize(v interface{}) (interface{}, bool) { return scalarString(v) }

func (f Number) Check(v interface{}) Reason {
	switch n := v.(type) {
	case float64, int, int64:
		return ""
	case string:
		if _, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return ReasonInvalidNumber
		}
		return ""
	}
	return ReasonInvalidType
}

// SingleChoice is a dropdown or radio group. The answer is the chosen
// option's text; an option id is accepted as well.
type SingleChoice struct {
	q       model.Question
	Options []model.AnswerOption
	Radio   bool
}

func (f SingleChoice) Question() model.Question { return f.q }

func (f SingleChoice) Widget() Widget {
	if f.Radio {
		return WidgetRadioGroup
	}
	return WidgetPicker
}

func (f SingleChoice) Empty(v interface{}) bool { return isEmpty(v) }

func (f SingleChoice) Normalize(v interface{}) (interface{}, bool) {
	out, ok := scalarString(v)
	if !ok {
		return v, false
	}
	return optionText(f.Options, out.(string)), true
}

func (f SingleChoice) Check(v interface{}) Reason {
	s, ok := v.(string)
	if !ok {
		return ReasonInvalidType
	}
	if !hasOption(f.Options, s) {
		return ReasonInvalidOption
	}
	return ""
}

// MultiChoice is a checkbox group; the answer is a list of option texts.
type MultiChoice struct {
	q       model.Question
	Options []model.AnswerOption
}

func (f MultiChoice) Question() model.Question { return f.q }
func (f MultiChoice) Widget() Widget           { return WidgetCheckboxGroup }
func (f MultiChoice) Empty(v interface{}) bool { return isEmpty(v) }

func (f MultiChoice) Normalize(v interface{}) (interface{}, bool) {
	items, ok := stringList(v)
	if s, isText := v.(string); isText {
		items, ok = splitList(s), true
	}
	if !ok {
		return v, false
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = optionText(f.Options, item)
	}
	return out, true
}

func (f MultiChoice) Check(v interface{}) Reason {
	items, ok := stringList(v)
	if !ok {
		return ReasonInvalidType
	}
	for _, item := range items {
		if !hasOption(f.Options, item) {
			return ReasonInvalidOption
		}
	}
	return ""
}

// Boolean is a yes/no checkbox.
type Boolean struct {
	q model.Question
}

func (f Boolean) Question() model.Question { return f.q }
func (f Boolean) Widget() Widget           { return WidgetSwitch }
func (f Boolean) Empty(v interface{}) bool { return v == nil || v == "" }

func (f Boolean) Normalize(v interface{}) (interface{}, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		case "":
			return "", true
		}
	case float64:
		return b != 0, true
	}
	return v, false
}

func (f Boolean) Check(v interface{}) Reason {
	if _, ok := v.(bool); !ok {
		return ReasonInvalidType
	}
	return ""
}

// Date holds a calendar date as YYYY-MM-DD.
type Date struct {
	q model.Question
}

func (f Date) Question() model.Question { return f.q }
func (f Date) Widget() Widget           { return WidgetDatePicker }
func (f Date) Empty(v interface{}) bool { return isEmpty(v) }

func (f Date) Normalize(v interface{}) (interface{}, bool) {
	s, ok := v.(string)
	if !ok {
		return v, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(dateLayout), true
	}
	return s, true
}

func (f Date) Check(v interface{}) Reason {
	s, ok := v.(string)
	if !ok {
		return ReasonInvalidType
	}
	if _, err := time.Parse(dateLayout, strings.TrimSpace(s)); err != nil {
		return ReasonInvalidDate
	}
	return ""
}

// Photo is a file question answered by the URL of an uploaded photo, or a
// list of URLs when the question allows several photos.
type Photo struct {
	q        model.Question
	Multiple bool
}

func (f Photo) Question() model.Question { return f.q }
func (f Photo) Widget() Widget           { return WidgetPhotoPicker }

func (f Photo) Empty(v interface{}) bool { return isEmpty(v) }

func (f Photo) Normalize(v interface{}) (interface{}, bool) {
	if f.Multiple {
		if s, ok := v.(string); ok {
			if s == "" {
				return []string{}, true
			}
			return []string{s}, true
		}
		return stringList(v)
	}
	if items, ok := stringList(v); ok {
		if len(items) == 0 {
			return "", true
		}
		return items[0], true
	}
	return scalarString(v)
}

func (f Photo) Check(v interface{}) Reason {
	if f.Multiple {
		if _, ok := stringList(v); !ok {
			return ReasonInvalidType
		}
		return ""
	}
	if _, ok := v.(string); !ok {
		return ReasonInvalidType
	}
	return ""
}

func (Text) sealed()         {}
func (Number) sealed()       {}
func (SingleChoice) sealed() {}
func (MultiChoice) sealed()  {}
func (Boolean) sealed()      {}
func (Date) sealed()         {}
func (Photo) sealed()        {}

func isEmpty(v interface{}) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	case []string:
		return len(s) == 0
	case []interface{}:
		return len(s) == 0
	}
	return false
}

func scalarString(v interface{}) (interface{}, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case nil:
		return "", true
	}
	return v, false
}

func stringList(v interface{}) ([]string, bool) {
	switch items := v.(type) {
	case []string:
		return items, true
	case []interface{}:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case nil:
		return []string{}, true
	}
	return nil, false
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// optionText returns the display text of the option whose id or text is
// value, or value itself when no option matches.
func optionText(options []model.AnswerOption, value string) string {
	for _, o := range options {
		if o.Text == value {
			return value
		}
	}
	for _, o := range options {
		if o.ID == value {
			return o.Text
		}
	}
	return value
}

func hasOption(options []model.AnswerOption, value string) bool {
	for _, o := range options {
		if o.Text == value || o.ID == value {
			return true
		}
	}
	return false
}
