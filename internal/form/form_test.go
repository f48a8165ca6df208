package form

import (
	"testing"

	"jobform/internal/field"
	"jobform/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoGroupTemplate() model.Template {
	return model.Template{
		ID:   "tmpl-1",
		Name: "Site inspection",
		Groups: []model.Group{
			{
				ID: "g2", Name: "Sign-off", SortOrder: 2,
				Questions: []model.Question{
					{ID: "q3", FieldType: model.FieldEmail, IsRequired: true},
					{ID: "q4", FieldType: model.FieldFile, AllowMultiple: true},
				},
			},
			{
				ID: "g1", Name: "Details", SortOrder: 1,
				Questions: []model.Question{
					{ID: "q1", FieldType: model.FieldText, IsRequired: true},
					{ID: "q2", FieldType: model.FieldNumber},
				},
			},
		},
	}
}

func mustSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(twoGroupTemplate())
	require.NoError(t, err)
	return s
}

func TestNewSchema_OrdersGroups(t *testing.T) {
	s := mustSchema(t)
	require.Equal(t, 2, s.GroupCount())
	assert.Equal(t, "g1", s.Group(0).ID)
	gi, ok := s.GroupIndexOf("q3")
	require.True(t, ok)
	assert.Equal(t, 1, gi)
}

func TestNewSchema_RejectsDuplicateQuestion(t *testing.T) {
	tmpl := twoGroupTemplate()
	tmpl.Groups[0].Questions[1].ID = "q1"
	_, err := NewSchema(tmpl)
	assert.Error(t, err)
}

func TestValidate_RequiredAndTypes(t *testing.T) {
	s := mustSchema(t)

	errs := Validate(s, model.Answers{})
	assert.Equal(t, Errors{"q1": field.ReasonRequired, "q3": field.ReasonRequired}, errs)

	errs = Validate(s, model.Answers{"q1": "ok", "q2": "ten", "q3": "a@b.io"})
	assert.Equal(t, Errors{"q2": field.ReasonInvalidNumber}, errs)

	errs = Validate(s, model.Answers{"q1": "ok", "q2": "10", "q3": "a@b.io", "q4": []string{}})
	assert.Empty(t, errs)
}

func TestStore_UpdateFieldKeepsRawValueAndClearsOwnError(t *testing.T) {
	s := mustSchema(t)
	st := NewStore()
	st.Validate(s)
	require.Contains(t, st.Errors(), "q1")
	require.Contains(t, st.Errors(), "q3")

	st.UpdateField("q1", "  raw  ")
	v, ok := st.Value("q1")
	require.True(t, ok)
	assert.Equal(t, "  raw  ", v)
	assert.NotContains(t, st.Errors(), "q1")
	assert.Contains(t, st.Errors(), "q3")
	assert.True(t, st.Dirty())
}

func TestStore_MarkCleanOnlyForCurrentRevision(t *testing.T) {
	st := NewStore()
	st.UpdateField("q1", "a")
	rev := st.Revision()
	st.UpdateField("q1", "b")
	assert.False(t, st.MarkClean(rev))
	assert.True(t, st.Dirty())
	assert.True(t, st.MarkClean(st.Revision()))
	assert.False(t, st.Dirty())
}

func TestStore_Photos(t *testing.T) {
	st := NewStore()
	st.BindPhoto("single", "https://cdn/1.jpg", false)
	st.BindPhoto("single", "https://cdn/2.jpg", false)
	v, _ := st.Value("single")
	assert.Equal(t, "https://cdn/2.jpg", v)

	st.BindPhoto("multi", "https://cdn/a.jpg", true)
	st.BindPhoto("multi", "https://cdn/b.jpg", true)
	v, _ = st.Value("multi")
	assert.Equal(t, []string{"https://cdn/a.jpg", "https://cdn/b.jpg"}, v)

	st.RemovePhoto("multi", "https://cdn/a.jpg", true)
	v, _ = st.Value("multi")
	assert.Equal(t, []string{"https://cdn/b.jpg"}, v)

	st.RemovePhoto("single", "https://cdn/other.jpg", false)
	_, ok := st.Value("single")
	assert.True(t, ok)
	st.RemovePhoto("single", "", false)
	_, ok = st.Value("single")
	assert.False(t, ok)
}

func TestStore_AnswersIsACopy(t *testing.T) {
	st := NewStore()
	st.BindPhoto("multi", "https://cdn/a.jpg", true)
	a := st.Answers()
	a["multi"].([]string)[0] = "mutated"
	v, _ := st.Value("multi")
	assert.Equal(t, []string{"https://cdn/a.jpg"}, v)
}

func TestStore_Reset(t *testing.T) {
	st := NewStore()
	st.UpdateField("q1", "x")
	st.SetError("q2", field.ReasonRequired)
	st.Reset()
	assert.Empty(t, st.Answers())
	assert.Empty(t, st.Errors())
	assert.False(t, st.Dirty())
}

func TestNavigator(t *testing.T) {
	n := NewNavigator(3)
	assert.Equal(t, 0, n.Index())
	assert.InDelta(t, 1.0/3, n.Progress(), 1e-9)
	assert.False(t, n.IsLastGroup())

	p := n.Previous()
	assert.Equal(t, 0, p.Index())
	assert.True(t, p.Visited(0))
	assert.False(t, n.Visited(0), "receiver must not change")

	n = n.Next().Next()
	assert.Equal(t, 2, n.Index())
	assert.True(t, n.IsLastGroup())
	assert.Equal(t, 1.0, n.Progress())
	assert.Equal(t, []int{0, 1}, n.VisitedGroups())

	n = n.Next()
	assert.Equal(t, 2, n.Index())
	assert.True(t, n.Visited(2))
}

func TestNavigator_Empty(t *testing.T) {
	n := NewNavigator(0)
	assert.Equal(t, 0.0, n.Progress())
	assert.False(t, n.IsLastGroup())
	assert.Equal(t, 0, n.Next().Index())
}

func TestSurfaced_OnlyVisitedGroups(t *testing.T) {
	s := mustSchema(t)
	errs := Validate(s, model.Answers{})
	nav := NewNavigator(s.GroupCount())
	assert.Empty(t, Surfaced(s, errs, nav))

	nav = nav.Next()
	assert.Equal(t, Errors{"q1": field.ReasonRequired}, Surfaced(s, errs, nav))

	nav = nav.VisitAll()
	assert.Len(t, Surfaced(s, errs, nav), 2)
}

func TestSchema_Normalize(t *testing.T) {
	s := mustSchema(t)
	out := s.Normalize(model.Answers{"q2": 4.0, "q4": "https://cdn/x.jpg", "gone": "x"})
	assert.Equal(t, model.Answers{"q2": "4", "q4": []string{"https://cdn/x.jpg"}}, out)
}
