package schema_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/pathgen/page/internal/schema"
)

func newValidator(t *testing.T) *schema.Validator {
	t.Helper()
	v, err := schema.New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return v
}

func TestNew_LoadsAllSchemas(t *testing.T) {
	names := newValidator(t).Names()
	sort.Strings(names)
	want := []string{
		schema.Assessment, schema.Overrides, schema.Path, schema.PracticeBank,
		schema.PracticeSubmission, schema.Student, schema.Submission, schema.Topics,
	}
	sort.Strings(want)
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name   string
		schema string
		doc    string
		valid  bool
	}{
		{"assessment ok", schema.Assessment, `{"title":"Decimals","questions":[{"type":"numeric","answer":0.5}]}`, true},
		{"assessment ordering", schema.Assessment, `{"questions":[{"type":"ordering","answer":["a","b"]}]}`, true},
		{"assessment no questions", schema.Assessment, `{"questions":[]}`, false},
		{"assessment bad type", schema.Assessment, `{"questions":[{"type":"essay","answer":"x"}]}`, false},
		{"assessment missing answer", schema.Assessment, `{"questions":[{"type":"short_answer"}]}`, false},
		{"assessment score range", schema.Assessment, `{"passing_score":150,"questions":[{"answer":"x"}]}`, false},
		{"bank ok", schema.PracticeBank, `{"questions":[{"answer":"x"}]}`, true},
		{"submission ok", schema.Submission, `{"student_id":"s1","answers":[{"question_id":"q1","answer":"a"}]}`, true},
		{"submission null answer", schema.Submission, `{"student_id":"s1","answers":[{"question_id":"q1","answer":null}]}`, true},
		{"submission no student", schema.Submission, `{"answers":[]}`, false},
		{"submission empty student", schema.Submission, `{"student_id":"","answers":[]}`, false},
		{"practice needs session", schema.PracticeSubmission, `{"student_id":"s1","answers":[]}`, false},
		{"overrides ok", schema.Overrides, `{"server_time_utc":"2025-03-01T08:00:00Z","overrides":[{"topic_id":"t1","temp_open_until":null}]}`, true},
		{"overrides missing time", schema.Overrides, `{"overrides":[]}`, false},
		{"topics ok", schema.Topics, `[{"id":"t1","prerequisites":[]}]`, true},
		{"topics missing id", schema.Topics, `[{"prerequisites":[]}]`, false},
		{"not json", schema.Topics, `[`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.schema, []byte(tt.doc))
			if tt.valid && err != nil {
				t.Errorf("Validate() error: %v", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, schema.ErrInvalid) {
					t.Errorf("error %v does not wrap ErrInvalid", err)
				}
			}
		})
	}
}

func TestValidateValue(t *testing.T) {
	v := newValidator(t)
	doc := map[string]any{
		"student_id":      "s1",
		"mastered_ids":    []string{"a"},
		"recommended_ids": []string{},
	}
	if err := v.ValidateValue(schema.Path, doc); err != nil {
		t.Errorf("ValidateValue() error: %v", err)
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	v := newValidator(t)
	err := v.Validate("nope", []byte(`{}`))
	if err == nil || errors.Is(err, schema.ErrInvalid) {
		t.Errorf("expected a plain error for an unknown schema, got %v", err)
	}
}
