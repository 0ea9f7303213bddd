package finder

import (
	"fmt"
	"strings"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every missing or invalid input field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return "invalid input: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// EmbeddingError means no biometric vector could be computed for a photo.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("could not read a face from the photo, try a clear front-facing picture: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// UploadError means the reference photo could not be stored.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("photo storage is unavailable, try again later: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// NotFoundError means the case does not exist in the relevant set.
type NotFoundError struct {
	CaseID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("case %s not found", e.CaseID)
}

// PermissionError means the requester does not own the case.
type PermissionError struct {
	CaseID string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("only the owner of case %s can change it", e.CaseID)
}

// AlreadyResolvedError means the case was already marked as found.
type AlreadyResolvedError struct {
	CaseID string
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("case %s is already marked as found", e.CaseID)
}
