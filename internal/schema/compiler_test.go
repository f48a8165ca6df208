package schema

import (
	"context"
	"testing"

	"jobform/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompiler_Validate(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	ctx := context.Background()

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type": "string",
			},
		},
		"required": []string{"name"},
	}

	require.NoError(t, compiler.Prepare(ctx, schema))

	err := compiler.Validate(ctx, schema, map[string]interface{}{"name": "test"})
	assert.NoError(t, err)

	err = compiler.Validate(ctx, schema, map[string]interface{}{})
	assert.Error(t, err)
}

func inspectionTemplate() model.Template {
	return model.Template{
		ID:   "tmpl-1",
		Name: "Inspection",
		Groups: []model.Group{
			{
				ID: "g1", Name: "Details", SortOrder: 1,
				Questions: []model.Question{
					{ID: "notes", FieldType: model.FieldText, IsRequired: true},
					{ID: "hours", FieldType: model.FieldNumber},
					{ID: "contact", FieldType: model.FieldEmail},
					{ID: "phone", FieldType: model.FieldPhone},
				},
			},
			{
				ID: "g2", Name: "Outcome", SortOrder: 2,
				Questions: []model.Question{
					{ID: "result", FieldType: model.FieldDropdown, IsRequired: true, AnswerOptions: []model.AnswerOption{
						{ID: "o1", Text: "Fixed"}, {ID: "o2", Text: "Needs parts"},
					}},
					{ID: "checks", FieldType: model.FieldMultiCheckbox, AnswerOptions: []model.AnswerOption{
						{ID: "c1", Text: "Power"}, {ID: "c2", Text: "Water"},
					}},
					{ID: "safe", FieldType: model.FieldCheckbox, IsRequired: true},
					{ID: "visited_on", FieldType: model.FieldDate},
					{ID: "photos", FieldType: model.FieldFile, AllowMultiple: true, IsRequired: true},
				},
			},
		},
	}
}

func validAnswers() model.Answers {
	return model.Answers{
		"notes":      "replaced valve",
		"hours":      "1.5",
		"contact":    "ops@example.com",
		"phone":      "+44 20 7946 0958",
		"result":     "Fixed",
		"checks":     []string{"Power"},
		"safe":       false,
		"visited_on": "2024-05-01",
		"photos":     []string{"https://cdn.example.com/a.jpg"},
	}
}

func TestValidateForm_AcceptsConformingAnswers(t *testing.T) {
	c := NewCompilerWithCache(8)
	assert.NoError(t, c.ValidateForm(context.Background(), inspectionTemplate(), validAnswers()))
}

func TestValidateForm_OptionalAnswersMayBeEmpty(t *testing.T) {
	c := NewCompilerWithCache(8)
	answers := validAnswers()
	answers["hours"] = ""
	answers["contact"] = ""
	answers["visited_on"] = ""
	delete(answers, "checks")
	answers["legacy_question"] = "kept"
	assert.NoError(t, c.ValidateForm(context.Background(), inspectionTemplate(), answers))
}

func TestValidateForm_ReportsFailedQuestions(t *testing.T) {
	c := NewCompilerWithCache(8)
	answers := validAnswers()
	delete(answers, "notes")
	answers["photos"] = []string{}
	answers["contact"] = "not-an-email"
	answers["result"] = "Maybe"
	answers["hours"] = "lots"

	err := c.ValidateForm(context.Background(), inspectionTemplate(), answers)
	require.Error(t, err)
	assert.Equal(t, []string{"contact", "hours", "notes", "photos", "result"}, FailedQuestions(err))
}

func TestValidateForm_WhitespaceDoesNotSatisfyRequired(t *testing.T) {
	c := NewCompilerWithCache(8)
	answers := validAnswers()
	answers["notes"] = "   "

	err := c.ValidateForm(context.Background(), inspectionTemplate(), answers)
	require.Error(t, err)
	assert.Equal(t, []string{"notes"}, FailedQuestions(err))
}

func TestFromTemplate_RequiredList(t *testing.T) {
	s := FromTemplate(inspectionTemplate())
	assert.Equal(t, []string{"notes", "photos", "result", "safe"}, s["required"])
}

func TestFailedQuestions_NonSchemaError(t *testing.T) {
	assert.Nil(t, FailedQuestions(assert.AnError))
}
