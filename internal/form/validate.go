package form

import (
	"jobform/internal/field"
	"jobform/internal/model"
)

// Errors maps question id to a single validation reason.
type Errors map[string]field.Reason

// Validate checks every question of the schema against answers. It never
// fails; malformed values are reported, not rejected.
func Validate(s *Schema, answers model.Answers) Errors {
	errs := make(Errors)
	for _, g := range s.template.Groups {
		for _, q := range g.Questions {
			v, present := answers[q.ID]
			if reason := field.Validate(s.fields[q.ID], v, present); reason != "" {
				errs[q.ID] = reason
			}
		}
	}
	return errs
}

// ValidateGroup checks only the questions of group i.
func ValidateGroup(s *Schema, answers model.Answers, i int) Errors {
	errs := make(Errors)
	for _, f := range s.GroupFields(i) {
		q := f.Question()
		v, present := answers[q.ID]
		if reason := field.Validate(f, v, present); reason != "" {
			errs[q.ID] = reason
		}
	}
	return errs
}

// Surfaced filters errs down to the questions of visited groups.
func Surfaced(s *Schema, errs Errors, nav Navigator) Errors {
	out := make(Errors)
	for id, reason := range errs {
		if gi, ok := s.GroupIndexOf(id); ok && nav.Visited(gi) {
			out[id] = reason
		}
	}
	return out
}
