// Package validators decodes and checks request input, returning
// VALIDATION_ERROR with per-field details.
package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
)

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 64 << 10

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

var tagMessages = map[string]string{
	"required": "is required",
	"min":      "must be at least %s",
	"max":      "must be at most %s",
	"url":      "must be a valid url",
	"oneof":    "must be one of: %s",
}

// DecodeJSONBody strictly decodes one JSON object into dest and validates it.
// An empty body decodes as {}.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	defer func() { _, _ = io.Copy(io.Discard, body) }()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
	if dec.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must hold a single JSON object")
	}
	return Struct(dest)
}

// Struct runs the validate tags on v.
func Struct(v any) error {
	err := validate.Struct(v)
	var fieldErrs validator.ValidationErrors
	switch {
	case err == nil:
		return nil
	case errors.As(err, &fieldErrs):
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = message(fe)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
}

func message(fe validator.FieldError) string {
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}
