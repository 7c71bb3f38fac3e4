// Package validation checks inbound payloads against the JSON schemas of the activity registry.
package validation

import (
	"fmt"
	"sort"
	"strings"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/pkg/registry"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError describes a single schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator holds compiled input schemas keyed by activity id.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator compiles the input schema of every registry activity.
func NewValidator(reg *registry.ActivityRegistry) (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(reg.Activities))}
	for _, activity := range reg.Activities {
		if activity.InputSchema == nil {
			continue
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(activity.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("compile input schema for %s: %w", activity.ID, err)
		}
		v.schemas[activity.ID] = schema
	}
	return v, nil
}

// ValidateJSON validates a raw JSON document.
func (v *Validator) ValidateJSON(activityID string, body []byte) error {
	return v.validate(activityID, gojsonschema.NewBytesLoader(body))
}

// ValidateMap validates an already decoded document, e.g. Zeebe job variables.
func (v *Validator) ValidateMap(activityID string, doc map[string]interface{}) error {
	return v.validate(activityID, gojsonschema.NewGoLoader(doc))
}

func (v *Validator) validate(activityID string, loader gojsonschema.JSONLoader) error {
	schema, ok := v.schemas[activityID]
	if !ok {
		return apperrors.NewInternalError(fmt.Errorf("no input schema registered for %s", activityID))
	}

	result, err := schema.Validate(loader)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("malformed JSON: %v", err))
	}
	if result.Valid() {
		return nil
	}

	violations := collect(result)
	parts := make([]string, 0, len(violations))
	for _, ve := range violations {
		parts = append(parts, fmt.Sprintf("%s: %s", ve.Field, ve.Message))
	}
	return apperrors.NewValidationError(strings.Join(parts, "; ")).WithMetadata("violations", violations)
}

func collect(result *gojsonschema.Result) []ValidationError {
	out := make([]ValidationError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		field := re.Field()
		if re.Type() == "required" {
			if prop, ok := re.Details()["property"].(string); ok {
				field = prop
			}
		}
		out = append(out, ValidationError{
			Field:   field,
			Message: re.Description(),
			Code:    strings.ToUpper(re.Type()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
