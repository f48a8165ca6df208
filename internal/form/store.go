package form

import (
	"sync"

	"jobform/internal/field"
	"jobform/internal/model"
)

// Store holds the answers and validation errors of one editing session.
// Field edits, photo upload completions and prefill all go through it; the
// last write to a question wins.
type Store struct {
	mu       sync.Mutex
	answers  model.Answers
	errors   Errors
	dirty    bool
	revision uint64
}

func NewStore() *Store {
	return &Store{
		answers: make(model.Answers),
		errors:  make(Errors),
	}
}

// UpdateField replaces the answer for a question, clears that question's
// error and marks the session dirty. Values are stored exactly as given.
func (s *Store) UpdateField(questionID string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[questionID] = value
	delete(s.errors, questionID)
	s.touch()
}

// Value returns the current answer for a question.
func (s *Store) Value(questionID string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.answers[questionID]
	return v, ok
}

// Answers returns a copy of the current answer map.
func (s *Store) Answers() model.Answers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyAnswers(s.answers)
}

// Errors returns a copy of the current validation errors.
func (s *Store) Errors() Errors {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Errors, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// Validate recomputes all errors against the schema and stores them.
func (s *Store) Validate(schema *Schema) Errors {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = Validate(schema, s.answers)
	out := make(Errors, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// Prefill replaces all answers with previously saved ones without marking
// the session dirty.
func (s *Store) Prefill(answers model.Answers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = copyAnswers(answers)
	s.errors = make(Errors)
	s.dirty = false
	s.revision++
}

// Restore replaces all answers with unsaved ones recovered from a
// checkpoint. Unlike Prefill the store is left dirty.
func (s *Store) Restore(answers model.Answers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = copyAnswers(answers)
	s.errors = make(Errors)
	s.touch()
}

// Reset clears all answers and errors.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = make(model.Answers)
	s.errors = make(Errors)
	s.dirty = false
	s.revision++
}

// Dirty reports whether there are edits not yet marked clean.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Revision increases on every mutation.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// MarkClean clears the dirty flag if nothing changed since revision rev was
// read. It reports whether the flag was cleared.
func (s *Store) MarkClean(rev uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revision != rev {
		return false
	}
	s.dirty = false
	return true
}

// BindPhoto stores an uploaded photo URL as the answer of a file question,
// replacing a single photo or appending to a multi-photo answer.
func (s *Store) BindPhoto(questionID, url string, multiple bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if multiple {
		urls, _ := s.answers[questionID].([]string)
		next := make([]string, 0, len(urls)+1)
		next = append(next, urls...)
		s.answers[questionID] = append(next, url)
	} else {
		s.answers[questionID] = url
	}
	delete(s.errors, questionID)
	s.touch()
}

// RemovePhoto removes url from a file question's answer. For a single-photo
// question the answer is cleared when url is empty or matches.
func (s *Store) RemovePhoto(questionID, url string, multiple bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if multiple {
		urls, _ := s.answers[questionID].([]string)
		next := make([]string, 0, len(urls))
		for _, u := range urls {
			if u != url {
				next = append(next, u)
			}
		}
		if len(next) == 0 {
			delete(s.answers, questionID)
		} else {
			s.answers[questionID] = next
		}
	} else {
		current, _ := s.answers[questionID].(string)
		if url != "" && current != url {
			return
		}
		delete(s.answers, questionID)
	}
	s.touch()
}

// SetError records an error for a single question.
func (s *Store) SetError(questionID string, reason field.Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[questionID] = reason
}

func (s *Store) touch() {
	s.dirty = true
	s.revision++
}

func copyAnswers(in model.Answers) model.Answers {
	out := make(model.Answers, len(in))
	for k, v := range in {
		if list, ok := v.([]string); ok {
			cp := make([]string, len(list))
			copy(cp, list)
			v = cp
		}
		out[k] = v
	}
	return out
}
