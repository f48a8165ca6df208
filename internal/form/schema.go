// Package form holds the in-session side of a completion form: the indexed
// template, the answer store, validation and group navigation.
package form

import (
	"fmt"
	"sort"

	"jobform/internal/field"
	"jobform/internal/model"
)

// Schema is a template indexed for a session. It is immutable once built;
// a changed server template requires a new Schema and a new session.
type Schema struct {
	template model.Template
	fields   map[string]field.Field
	groupOf  map[string]int
}

// NewSchema orders groups by sort position and binds every question to its
// field variant.
func NewSchema(t model.Template) (*Schema, error) {
	groups := make([]model.Group, len(t.Groups))
	copy(groups, t.Groups)
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].SortOrder < groups[j].SortOrder
	})
	t.Groups = groups

	s := &Schema{
		template: t,
		fields:   make(map[string]field.Field),
		groupOf:  make(map[string]int),
	}
	for gi, g := range groups {
		for _, q := range g.Questions {
			if _, dup := s.fields[q.ID]; dup {
				return nil, fmt.Errorf("template %s: duplicate question id %s", t.ID, q.ID)
			}
			f, err := field.New(q)
			if err != nil {
				return nil, fmt.Errorf("template %s: %w", t.ID, err)
			}
			s.fields[q.ID] = f
			s.groupOf[q.ID] = gi
		}
	}
	return s, nil
}

func (s *Schema) Template() model.Template { return s.template }
func (s *Schema) TemplateID() string       { return s.template.ID }
func (s *Schema) GroupCount() int          { return len(s.template.Groups) }
func (s *Schema) Group(i int) model.Group  { return s.template.Groups[i] }

// Field returns the field variant bound to a question id.
func (s *Schema) Field(questionID string) (field.Field, bool) {
	f, ok := s.fields[questionID]
	return f, ok
}

// GroupIndexOf returns the position of the group holding a question.
func (s *Schema) GroupIndexOf(questionID string) (int, bool) {
	i, ok := s.groupOf[questionID]
	return i, ok
}

// GroupFields returns the fields of group i in question order.
func (s *Schema) GroupFields(i int) []field.Field {
	g := s.template.Groups[i]
	out := make([]field.Field, 0, len(g.Questions))
	for _, q := range g.Questions {
		out = append(out, s.fields[q.ID])
	}
	return out
}

// Normalize brings previously saved answers into canonical shape. Answers
// for unknown questions are dropped; values a field cannot represent are
// kept as-is so validation reports them.
func (s *Schema) Normalize(answers model.Answers) model.Answers {
	out := make(model.Answers, len(answers))
	for id, v := range answers {
		f, ok := s.fields[id]
		if !ok {
			continue
		}
		if nv, ok := f.Normalize(v); ok {
			out[id] = nv
		} else {
			out[id] = v
		}
	}
	return out
}

// IsPhoto reports whether a question is a file question and whether it
// takes several photos.
func (s *Schema) IsPhoto(questionID string) (isPhoto, multiple bool) {
	f, ok := s.fields[questionID]
	if !ok {
		return false, false
	}
	p, ok := f.(field.Photo)
	if !ok {
		return false, false
	}
	return true, p.Multiple
}
