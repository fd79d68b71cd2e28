package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/portal"
	"github.com/pathgen/page/internal/progress"
	"github.com/pathgen/page/internal/schema"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names instead of Go names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, errBadRequest),
		errors.As(err, &verrs),
		errors.Is(err, schema.ErrInvalid),
		errors.Is(err, portal.ErrInvalidInput),
		errors.Is(err, assessment.ErrInvalidSubmission):
		return http.StatusBadRequest
	case errors.Is(err, curriculum.ErrTopicNotFound),
		errors.Is(err, curriculum.ErrContentNotFound),
		errors.Is(err, progress.ErrStudentNotFound),
		errors.Is(err, assessment.ErrNoAssessment),
		errors.Is(err, assessment.ErrNoPracticeBank),
		errors.Is(err, assessment.ErrNoPracticeSession):
		return http.StatusNotFound
	case errors.Is(err, assessment.ErrAttemptNotAllowed),
		errors.Is(err, assessment.ErrPracticeRequired),
		errors.Is(err, assessment.ErrPinned),
		errors.Is(err, assessment.ErrDeadlinePassed),
		errors.Is(err, assessment.ErrNoSession),
		errors.Is(err, assessment.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, curriculum.ErrCycle):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, errorBody{Error: "internal server error"})
		return
	}
	slog.Debug("request refused", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, errorBody{Error: message(err)})
}

func message(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Param() != "" {
				parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			} else {
				parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
			}
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}

// readBody reads the request body, checks it against the named schema when
// one is given, and decodes it into dst. Struct tags on dst are validated.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request, schemaName string, dst any) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if schemaName != "" {
		if err := s.schemas.Validate(schemaName, raw); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if reflect.Indirect(reflect.ValueOf(dst)).Kind() == reflect.Struct {
		if err := validate.Struct(dst); err != nil {
			return err
		}
	}
	return nil
}
