package schema

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"jobform/internal/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	phonePattern  = `^\+?[0-9][0-9 ().-]{5,}[0-9]$`
	numberPattern = `^\s*[-+]?([0-9]+(\.[0-9]*)?|\.[0-9]+)\s*$`
	// at least one non-whitespace character
	filledPattern = `\S`
)

// Compiler turns form templates into JSON Schemas and validates submitted
// form data against them. Compiled schemas are cached by content.
type Compiler struct {
	cache *expirable.LRU[string, *js.Schema]
}

// NewCompilerWithCache creates a compiler keeping up to maxSize schemas.
func NewCompilerWithCache(maxSize int) *Compiler {
	return &Compiler{
		cache: expirable.NewLRU[string, *js.Schema](maxSize, nil, time.Hour),
	}
}

// FromTemplate builds the JSON Schema of a template's form_data object.
// Unknown keys are allowed since drafts may carry answers of questions that
// were dropped from the template.
func FromTemplate(t model.Template) map[string]interface{} {
	props := make(map[string]interface{})
	required := make([]string, 0)
	for _, g := range t.Groups {
		for _, q := range g.Questions {
			props[q.ID] = questionSchema(q)
			if q.IsRequired {
				required = append(required, q.ID)
			}
		}
	}
	sort.Strings(required)
	return map[string]interface{}{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"title":      t.Name,
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func questionSchema(q model.Question) map[string]interface{} {
	var s map[string]interface{}
	switch q.FieldType {
	case model.FieldNumber:
		s = map[string]interface{}{"type": []string{"string", "number"}, "pattern": numberPattern}
	case model.FieldEmail:
		s = map[string]interface{}{"type": "string", "format": "email"}
	case model.FieldPhone:
		s = map[string]interface{}{"type": "string", "pattern": phonePattern}
	case model.FieldDate:
		s = map[string]interface{}{"type": "string", "format": "date"}
	case model.FieldDropdown, model.FieldRadio:
		s = map[string]interface{}{"type": "string"}
		if enum := optionValues(q); len(enum) > 0 {
			s["enum"] = enum
		}
	case model.FieldMultiCheckbox:
		items := map[string]interface{}{"type": "string"}
		if enum := optionValues(q); len(enum) > 0 {
			items["enum"] = enum
		}
		s = map[string]interface{}{"type": []string{"array", "string"}, "items": items}
	case model.FieldCheckbox:
		s = map[string]interface{}{"type": []string{"boolean", "string"}}
	case model.FieldFile:
		if q.AllowMultiple {
			s = map[string]interface{}{"type": []string{"array", "string"}, "items": map[string]interface{}{"type": "string"}}
		} else {
			s = map[string]interface{}{"type": "string"}
		}
	default:
		s = map[string]interface{}{"type": "string"}
	}

	if q.IsRequired {
		// pattern only applies to strings and minItems only to arrays, so
		// both can sit on multi-typed schemas.
		s["minItems"] = 1
		s["pattern"] = mergePattern(s["pattern"])
		return s
	}
	// An empty string is how clients clear an optional answer.
	return map[string]interface{}{"anyOf": []interface{}{
		map[string]interface{}{"const": ""},
		s,
	}}
}

func mergePattern(p interface{}) string {
	if existing, ok := p.(string); ok && existing != "" {
		return existing
	}
	return filledPattern
}

func optionValues(q model.Question) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range q.AnswerOptions {
		for _, v := range []string{o.Text, o.ID} {
			if v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

func (c *Compiler) key(schema map[string]interface{}) (string, []byte, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// Prepare compiles and caches a schema
func (c *Compiler) Prepare(ctx context.Context, schema map[string]interface{}) error {
	_, err := c.compiled(schema)
	return err
}

func (c *Compiler) compiled(schema map[string]interface{}) (*js.Schema, error) {
	key, raw, err := c.key(schema)
	if err != nil {
		return nil, err
	}
	if compiled, ok := c.cache.Get(key); ok {
		return compiled, nil
	}

	comp := js.NewCompiler()
	comp.AssertFormat = true
	resourceURL := fmt.Sprintf("mem://schema/%s.json", key[:16])
	if err := comp.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add resource: %w", err)
	}
	compiled, err := comp.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	c.cache.Add(key, compiled)
	return compiled, nil
}

// Validate validates a value against a schema
func (c *Compiler) Validate(ctx context.Context, schema map[string]interface{}, value map[string]interface{}) error {
	compiled, err := c.compiled(schema)
	if err != nil {
		return err
	}

	// Round-trip through JSON so typed Go values ([]string etc.) validate as
	// the generic values the schema library expects.
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	var valueRaw interface{}
	if err := json.Unmarshal(valueBytes, &valueRaw); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	if err := compiled.Validate(valueRaw); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateForm checks form data against the template's schema.
func (c *Compiler) ValidateForm(ctx context.Context, t model.Template, formData model.Answers) error {
	if formData == nil {
		formData = model.Answers{}
	}
	return c.Validate(ctx, FromTemplate(t), formData)
}

var quoted = regexp.MustCompile(`'([^']+)'`)

// FailedQuestions lists the question ids a validation error refers to.
func FailedQuestions(err error) []string {
	var ve *js.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	seen := make(map[string]bool)
	var walk func(v *js.ValidationError)
	walk = func(v *js.ValidationError) {
		if id := topLevelKey(v.InstanceLocation); id != "" {
			seen[id] = true
		} else if strings.HasSuffix(v.KeywordLocation, "/required") {
			for _, m := range quoted.FindAllStringSubmatch(v.Message, -1) {
				seen[m[1]] = true
			}
		}
		for _, cause := range v.Causes {
			walk(cause)
		}
	}
	walk(ve)

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func topLevelKey(location string) string {
	location = strings.TrimPrefix(location, "/")
	if location == "" {
		return ""
	}
	if i := strings.Index(location, "/"); i >= 0 {
		location = location[:i]
	}
	return strings.ReplaceAll(strings.ReplaceAll(location, "~1", "/"), "~0", "~")
}
