package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base interface for all application errors
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// Detailed is implemented by errors that carry a machine-readable details map.
type Detailed interface {
	Details() map[string]any
}

// NotFoundError represents a resource that was not found
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }
func (e *NotFoundError) Code() string    { return "NOT_FOUND" }

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents invalid input
type ValidationError struct {
	Field   string
	Message string
	// ErrCode refines the generic code for validation sub-kinds
	// (INVALID_FIELD_TYPE, INVALID_FIELD_NAME, INVALID_OPTION).
	ErrCode string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) HTTPStatus() int { return http.StatusBadRequest }

func (e *ValidationError) Code() string {
	if e.ErrCode != "" {
		return e.ErrCode
	}
	return "VALIDATION_FAILED"
}

// NewValidationError creates a generic VALIDATION_FAILED error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewInvalidFieldTypeError rejects a type outside the closed enum
func NewInvalidFieldTypeError(fieldType string) *ValidationError {
	return &ValidationError{
		Field:   "type",
		Message: fmt.Sprintf("unknown field type '%s'", fieldType),
		ErrCode: "INVALID_FIELD_TYPE",
	}
}

// NewInvalidFieldNameError rejects an unusable display name
func NewInvalidFieldNameError(message string) *ValidationError {
	return &ValidationError{Field: "name", Message: message, ErrCode: "INVALID_FIELD_NAME"}
}

// NewInvalidOptionError rejects a malformed type-specific option
func NewInvalidOptionError(option, message string) *ValidationError {
	return &ValidationError{Field: option, Message: message, ErrCode: "INVALID_OPTION"}
}

// NewCannotDeletePrimaryError rejects deleting a table's primary field
func NewCannotDeletePrimaryError(fieldID string) *ValidationError {
	return &ValidationError{
		Field:   "fieldId",
		Message: fmt.Sprintf("field '%s' is the primary field and cannot be deleted", fieldID),
		ErrCode: "CANNOT_DELETE_PRIMARY",
	}
}

// NameConflictError represents a display-name uniqueness violation
type NameConflictError struct {
	Resource string
	Name     string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("%s named '%s' already exists", e.Resource, e.Name)
}

func (e *NameConflictError) HTTPStatus() int { return http.StatusConflict }
func (e *NameConflictError) Code() string    { return "NAME_CONFLICT" }

// NewNameConflictError creates a new NameConflictError
func NewNameConflictError(resource, name string) *NameConflictError {
	return &NameConflictError{Resource: resource, Name: name}
}

// VersionConflictError is returned when an optimistic version check fails.
// Current carries the record's present version so the client can re-base.
type VersionConflictError struct {
	RecordID string
	Expected int64
	Current  int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on record '%s': expected %d, current %d",
		e.RecordID, e.Expected, e.Current)
}

func (e *VersionConflictError) HTTPStatus() int { return http.StatusConflict }
func (e *VersionConflictError) Code() string    { return "VERSION_CONFLICT" }

func (e *VersionConflictError) Details() map[string]any {
	return map[string]any{"current": e.Current}
}

// NewVersionConflictError creates a new VersionConflictError
func NewVersionConflictError(recordID string, expected, current int64) *VersionConflictError {
	return &VersionConflictError{RecordID: recordID, Expected: expected, Current: current}
}

// SchemaConflictError is returned when a DDL operation collides with the
// existing physical schema (e.g. adding a column that already exists).
type SchemaConflictError struct {
	Table  string
	Column string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("column '%s' already exists on table '%s'", e.Column, e.Table)
}

func (e *SchemaConflictError) HTTPStatus() int { return http.StatusConflict }
func (e *SchemaConflictError) Code() string    { return "SCHEMA_CONFLICT" }

// NewSchemaConflictError creates a new SchemaConflictError
func NewSchemaConflictError(table, column string) *SchemaConflictError {
	return &SchemaConflictError{Table: table, Column: column}
}

// CircularDependencyError rejects a computed-field save that would create a
// cycle. Cycle holds the ordered field ids forming the loop, first == last.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %v", e.Cycle)
}

func (e *CircularDependencyError) HTTPStatus() int { return http.StatusConflict }
func (e *CircularDependencyError) Code() string    { return "CIRCULAR_DEPENDENCY" }

func (e *CircularDependencyError) Details() map[string]any {
	return map[string]any{"cycle": e.Cycle}
}

// NewCircularDependencyError creates a new CircularDependencyError
func NewCircularDependencyError(cycle []string) *CircularDependencyError {
	return &CircularDependencyError{Cycle: cycle}
}

// MigrationConflictError rejects a relationship migration that would lose data
type MigrationConflictError struct {
	FieldID string
	From    string
	To      string
	Reason  string
}

func (e *MigrationConflictError) Error() string {
	return fmt.Sprintf("cannot migrate link field '%s' from %s to %s: %s",
		e.FieldID, e.From, e.To, e.Reason)
}

func (e *MigrationConflictError) HTTPStatus() int { return http.StatusConflict }
func (e *MigrationConflictError) Code() string    { return "MIGRATION_CONFLICT" }

// NewMigrationConflictError creates a new MigrationConflictError
func NewMigrationConflictError(fieldID, from, to, reason string) *MigrationConflictError {
	return &MigrationConflictError{FieldID: fieldID, From: from, To: to, Reason: reason}
}

// PermissionError represents insufficient permissions, surfaced unchanged
// from the external permission collaborator
type PermissionError struct {
	Action   string
	Resource string
	UserID   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: cannot %s %s", e.Action, e.Resource)
}

func (e *PermissionError) HTTPStatus() int { return http.StatusForbidden }
func (e *PermissionError) Code() string    { return "PERMISSION_DENIED" }

// NewPermissionError creates a new PermissionError
func NewPermissionError(action, resource string) *PermissionError {
	return &PermissionError{Action: action, Resource: resource}
}

// DBError wraps a database failure with a stable code
type DBError struct {
	Op    string
	Cause error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Cause)
}

func (e *DBError) HTTPStatus() int { return http.StatusInternalServerError }
func (e *DBError) Code() string    { return "DB_ERROR" }
func (e *DBError) Unwrap() error   { return e.Cause }

// NewDBError creates a new DBError
func NewDBError(op string, cause error) *DBError {
	return &DBError{Op: op, Cause: cause}
}

// PubSubError wraps a publish/subscribe failure
type PubSubError struct {
	Op    string
	Cause error
}

func (e *PubSubError) Error() string {
	return fmt.Sprintf("pubsub error during %s: %v", e.Op, e.Cause)
}

func (e *PubSubError) HTTPStatus() int { return http.StatusInternalServerError }
func (e *PubSubError) Code() string    { return "PUBSUB_ERROR" }
func (e *PubSubError) Unwrap() error   { return e.Cause }

// NewPubSubError creates a new PubSubError
func NewPubSubError(op string, cause error) *PubSubError {
	return &PubSubError{Op: op, Cause: cause}
}

// CanceledError reports that the caller's context was canceled or timed out
type CanceledError struct {
	Op    string
	Cause error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("operation %s canceled: %v", e.Op, e.Cause)
}

func (e *CanceledError) HTTPStatus() int { return 499 }
func (e *CanceledError) Code() string    { return "CANCELED" }
func (e *CanceledError) Unwrap() error   { return e.Cause }

// FromContext converts a context error into a CanceledError, or wraps a
// plain error as a DBError for op.
func FromContext(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &CanceledError{Op: op, Cause: err}
	}
	return NewDBError(op, err)
}

// InternalError represents unexpected server errors
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s (caused by: %v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) HTTPStatus() int { return http.StatusInternalServerError }
func (e *InternalError) Code() string    { return "INTERNAL_ERROR" }
func (e *InternalError) Unwrap() error   { return e.Cause }

// NewInternalError creates a new InternalError
func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{Message: message, Cause: cause}
}

// Helper functions for error checking

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsValidation checks if an error is a ValidationError
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// IsNameConflict checks if an error is a NameConflictError
func IsNameConflict(err error) bool {
	var conflict *NameConflictError
	return errors.As(err, &conflict)
}

// IsVersionConflict checks if an error is a VersionConflictError
func IsVersionConflict(err error) bool {
	var conflict *VersionConflictError
	return errors.As(err, &conflict)
}

// IsSchemaConflict checks if an error is a SchemaConflictError
func IsSchemaConflict(err error) bool {
	var conflict *SchemaConflictError
	return errors.As(err, &conflict)
}

// IsCircularDependency checks if an error is a CircularDependencyError
func IsCircularDependency(err error) bool {
	var circular *CircularDependencyError
	return errors.As(err, &circular)
}

// IsMigrationConflict checks if an error is a MigrationConflictError
func IsMigrationConflict(err error) bool {
	var conflict *MigrationConflictError
	return errors.As(err, &conflict)
}

// IsPermission checks if an error is a PermissionError
func IsPermission(err error) bool {
	var permission *PermissionError
	return errors.As(err, &permission)
}

// IsCanceled checks if an error is a CanceledError
func IsCanceled(err error) bool {
	var canceled *CanceledError
	return errors.As(err, &canceled)
}

// GetHTTPStatus returns the HTTP status code for an error
// Returns 500 if the error doesn't implement AppError
func GetHTTPStatus(err error) int {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the error code for an error
// Returns "UNKNOWN_ERROR" if the error doesn't implement AppError
func GetErrorCode(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return "UNKNOWN_ERROR"
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToResponse converts an error to an ErrorResponse
func ToResponse(err error) ErrorResponse {
	resp := ErrorResponse{
		Code:    GetErrorCode(err),
		Message: err.Error(),
	}
	var detailed Detailed
	if errors.As(err, &detailed) {
		resp.Details = detailed.Details()
	}
	return resp
}
