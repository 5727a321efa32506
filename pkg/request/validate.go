// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes a single rejected body field.
type FieldError struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Msg      string `json:"msg"`
	Path     string `json:"path"`
	Location string `json:"location"`
}

// ValidationError is returned by Validate when one or more fields are invalid.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Path, fe.Msg))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// fields carries the trimmed values through the struct validator.
type fields struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=100"`
	Message string `json:"message" validate:"required,max=2000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks raw and returns the normalized request. On failure the
// returned error is a *ValidationError listing every offending field.
func Validate(raw Raw) (EmailRequest, error) {
	f := fields{
		To:      strings.TrimSpace(raw.To),
		Subject: strings.TrimSpace(raw.Subject),
		Message: strings.TrimSpace(raw.Message),
	}

	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return EmailRequest{}, fmt.Errorf("validating request: %w", err)
		}
		out := &ValidationError{Errors: make([]FieldError, 0, len(verrs))}
		for _, fe := range verrs {
			out.Errors = append(out.Errors, FieldError{
				Type:     "field",
				Value:    fmt.Sprint(fe.Value()),
				Msg:      message(fe),
				Path:     fe.Field(),
				Location: "body",
			})
		}
		return EmailRequest{}, out
	}

	tmpl := strings.TrimSpace(raw.Template)
	if tmpl == "" {
		tmpl = DefaultTemplate
	}

	return EmailRequest{
		To:       NormalizeEmail(f.To),
		Subject:  EscapeHTML(f.Subject),
		Message:  EscapeHTML(f.Message),
		Template: tmpl,
	}, nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Invalid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return "Invalid value"
	}
}
