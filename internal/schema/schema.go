// Package schema validates JSON documents exchanged with the portal against
// embedded JSON Schemas.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var files embed.FS

// Schema names.
const (
	Assessment         = "assessment"
	PracticeBank       = "practice_bank"
	Submission         = "submission"
	PracticeSubmission = "practice_submission"
	Topics             = "topics"
	Path               = "path"
	Student            = "student"
	Overrides          = "overrides"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("document does not match schema")

// ValidationError lists the problems found in a document.
type ValidationError struct {
	Schema   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validator holds the compiled schemas. Safe for concurrent use.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	entries, err := files.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(entries))}
	for _, e := range entries {
		raw, err := files.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", e.Name(), err)
		}
		v.schemas[strings.TrimSuffix(e.Name(), ".json")] = s
	}
	return v, nil
}

// Names returns the loaded schema names.
func (v *Validator) Names() []string {
	out := make([]string, 0, len(v.schemas))
	for name := range v.schemas {
		out = append(out, name)
	}
	return out
}

// Validate checks a raw JSON document against the named schema.
func (v *Validator) Validate(name string, doc []byte) error {
	return v.validate(name, gojsonschema.NewBytesLoader(doc))
}

// ValidateValue checks a Go value by its JSON encoding.
func (v *Validator) ValidateValue(name string, value any) error {
	return v.validate(name, gojsonschema.NewGoLoader(value))
}

func (v *Validator) validate(name string, doc gojsonschema.JSONLoader) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	res, err := s.Validate(doc)
	if err != nil {
		return &ValidationError{Schema: name, Problems: []string{err.Error()}}
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, re := range res.Errors() {
		problems = append(problems, re.String())
	}
	return &ValidationError{Schema: name, Problems: problems}
}
