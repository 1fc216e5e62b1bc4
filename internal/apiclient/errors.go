package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type Kind string

const (
	KindServer       Kind = "server"
	KindNetwork      Kind = "network"
	KindRequestSetup Kind = "request_setup"
)

const (
	statusNetwork      = 0
	statusRequestSetup = -1

	defaultServerMessage  = "An unexpected error occurred."
	networkMessage        = "No response from server. Please check your network connection."
	requestSetupMessage   = "Request failed to send. Please try again."
	unexpectedBodyMessage = "Unexpected response from server."
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the single normalized shape every REST failure is reported in.
// StatusCode is the HTTP status, 0 when no response arrived and -1 when the
// request could not be built.
type Error struct {
	StatusCode int          `json:"statusCode"`
	Message    string       `json:"message"`
	Details    []FieldError `json:"details"`
	Kind       Kind         `json:"-"`
	Err        error        `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuth reports whether the backend rejected the credential.
func (e *Error) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func IsAuth(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.IsAuth()
}

// Normalize returns err as an *Error. Errors that did not come from the
// transport are reported as request setup failures.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return setupError(err)
}

func networkError(err error) *Error {
	return &Error{StatusCode: statusNetwork, Message: networkMessage, Details: []FieldError{}, Kind: KindNetwork, Err: err}
}

func setupError(err error) *Error {
	return &Error{StatusCode: statusRequestSetup, Message: requestSetupMessage, Details: []FieldError{}, Kind: KindRequestSetup, Err: err}
}

// serverError maps a non-2xx response body to an *Error. It understands
// {message}, {error}, Spring binding errors {errors:[{field,defaultMessage}]}
// and {validationErrors:{field:message}}.
func serverError(status int, body []byte) *Error {
	apiErr := &Error{StatusCode: status, Message: defaultServerMessage, Details: []FieldError{}, Kind: KindServer}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 && !strings.HasPrefix(text, "<") {
			apiErr.Message = text
		}
		return apiErr
	}

	if message := stringField(fields, "message"); message != "" {
		apiErr.Message = message
	} else if message := stringField(fields, "error"); message != "" {
		apiErr.Message = message
	}

	if raw, ok := fields["errors"]; ok {
		var bindErrors []struct {
			Field          string `json:"field"`
			DefaultMessage string `json:"defaultMessage"`
		}
		if err := json.Unmarshal(raw, &bindErrors); err == nil {
			for _, item := range bindErrors {
				apiErr.Details = append(apiErr.Details, FieldError{Field: item.Field, Message: item.DefaultMessage})
			}
		}
	}
	if raw, ok := fields["validationErrors"]; ok {
		var byField map[string]string
		if err := json.Unmarshal(raw, &byField); err == nil {
			keys := make([]string, 0, len(byField))
			for key := range byField {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				apiErr.Details = append(apiErr.Details, FieldError{Field: key, Message: byField[key]})
			}
		}
	}

	if len(apiErr.Details) > 0 {
		parts := make([]string, 0, len(apiErr.Details))
		for _, detail := range apiErr.Details {
			parts = append(parts, fmt.Sprintf("%s - %s", detail.Field, detail.Message))
		}
		apiErr.Message += ": " + strings.Join(parts, ", ")
	}
	return apiErr
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
