package events

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError rejects a malformed event before anything is stored.
type ValidationError struct {
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("invalid event: %s", strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("invalid event: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var validate = validator.New()

// Normalize fills defaults (schema version, empty metadata, UTC timestamp) and validates e.
func Normalize(e *Event) error {
	if e == nil {
		return &ValidationError{Err: errors.New("event is nil")}
	}
	if e.Version == 0 {
		e.Version = SchemaVersion
	}
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Service = strings.TrimSpace(e.Service)
	e.SourceIP = strings.TrimSpace(e.SourceIP)
	e.Path = strings.TrimSpace(e.Path)
	e.Type = Type(strings.TrimSpace(string(e.Type)))

	var fields []string
	if e.OccurredAt.IsZero() {
		fields = append(fields, "ts: required")
	}
	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ValidationError{Err: err}
		}
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s: %s", jsonName(fe.Field()), fe.Tag()))
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields, Err: errors.New("validation failed")}
	}
	e.OccurredAt = e.OccurredAt.UTC()
	return nil
}

func jsonName(field string) string {
	switch field {
	case "Version":
		return "v"
	case "Type":
		return "event"
	case "SourceIP":
		return "ip"
	default:
		return strings.ToLower(field)
	}
}
