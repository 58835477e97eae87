// Package model contains the kiosk's domain types. They carry no transport or
// storage concerns and are shared by the workflow, the verification client and
// the HTTP surface.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPayload is returned when a decoded QR payload does not carry a
// usable identifier.
var ErrInvalidPayload = errors.New("invalid qr payload")

// Identifier is a student identifier exactly as it appeared in the QR payload:
// either a JSON string or a JSON number. It is forwarded to the backend
// without reinterpretation.
type Identifier struct {
	raw json.RawMessage
}

// String returns the identifier in human-readable form (strings unquoted).
func (id Identifier) String() string {
	var s string
	if err := json.Unmarshal(id.raw, &s); err == nil {
		return s
	}
	return string(id.raw)
}

// IsZero reports whether the identifier is unset.
func (id Identifier) IsZero() bool { return len(id.raw) == 0 }

// MarshalJSON writes the original JSON token.
func (id Identifier) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// StringID builds an identifier from a plain string.
func StringID(s string) Identifier {
	b, _ := json.Marshal(s)
	return Identifier{raw: b}
}

// ParsePayload extracts the student identifier from decoded QR text. The text
// must be a JSON object whose "id" is a non-empty string or a non-zero number.
func ParsePayload(text string) (Identifier, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return Identifier{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if dec.More() {
		return Identifier{}, fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}

	raw, ok := fields["id"]
	if !ok {
		return Identifier{}, fmt.Errorf("%w: id not found", ErrInvalidPayload)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Identifier{}, fmt.Errorf("%w: id not found", ErrInvalidPayload)
	}

	switch {
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return Identifier{}, fmt.Errorf("%w: empty id", ErrInvalidPayload)
		}
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return Identifier{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if f, err := n.Float64(); err != nil || f == 0 {
			return Identifier{}, fmt.Errorf("%w: zero id", ErrInvalidPayload)
		}
	default:
		return Identifier{}, fmt.Errorf("%w: id must be a string or number", ErrInvalidPayload)
	}

	return Identifier{raw: append(json.RawMessage(nil), raw...)}, nil
}

// ScanRequest is the body submitted to the verification endpoint.
type ScanRequest struct {
	StudentID Identifier `json:"student_id"`
	Door      string     `json:"door"`
}

// Outcome tags a verification result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Student is the identity returned with a successful verification.
type Student struct {
	Name     string `json:"name"`
	Course   string `json:"course"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// Result is the outcome of one verification attempt. Student is only
// meaningful when Outcome is OutcomeSuccess.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message"`
	Student Student `json:"student"`
}

// Success builds a successful result.
func Success(message string, s Student) Result {
	return Result{Outcome: OutcomeSuccess, Message: message, Student: s}
}

// Failure builds a failed result.
func Failure(message string) Result {
	return Result{Outcome: OutcomeFailure, Message: message}
}

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// Details renders the student line shown under a successful result.
func (r Result) Details() string {
	if !r.OK() {
		return ""
	}
	return fmt.Sprintf("Nombre: %s | Curso: %s", r.Student.Name, r.Student.Course)
}
