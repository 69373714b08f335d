package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusAndCodeMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{NewNotFoundError("record", "rec1"), http.StatusNotFound, "NOT_FOUND"},
		{NewValidationError("name", "empty"), http.StatusBadRequest, "VALIDATION_FAILED"},
		{NewInvalidFieldTypeError("blob"), http.StatusBadRequest, "INVALID_FIELD_TYPE"},
		{NewInvalidFieldNameError("reserved"), http.StatusBadRequest, "INVALID_FIELD_NAME"},
		{NewInvalidOptionError("precision", "negative"), http.StatusBadRequest, "INVALID_OPTION"},
		{NewNameConflictError("field", "Title"), http.StatusConflict, "NAME_CONFLICT"},
		{NewVersionConflictError("rec1", 3, 5), http.StatusConflict, "VERSION_CONFLICT"},
		{NewSchemaConflictError("tbl1", "title"), http.StatusConflict, "SCHEMA_CONFLICT"},
		{NewCircularDependencyError([]string{"a", "b", "a"}), http.StatusConflict, "CIRCULAR_DEPENDENCY"},
		{NewMigrationConflictError("fld1", "manyMany", "manyOne", "multiple refs"), http.StatusConflict, "MIGRATION_CONFLICT"},
		{NewPermissionError("delete", "space"), http.StatusForbidden, "PERMISSION_DENIED"},
		{NewDBError("insert", fmt.Errorf("boom")), http.StatusInternalServerError, "DB_ERROR"},
		{NewInternalError("unexpected", nil), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, GetHTTPStatus(tt.err), tt.code)
		assert.Equal(t, tt.code, GetErrorCode(tt.err), tt.code)
	}
}

func TestGetHTTPStatus_PlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(fmt.Errorf("plain")))
	assert.Equal(t, "UNKNOWN_ERROR", GetErrorCode(fmt.Errorf("plain")))
}

func TestToResponse_CarriesDetails(t *testing.T) {
	resp := ToResponse(NewVersionConflictError("rec1", 3, 5))
	assert.Equal(t, "VERSION_CONFLICT", resp.Code)
	assert.Equal(t, map[string]any{"current": int64(5)}, resp.Details)

	resp = ToResponse(NewCircularDependencyError([]string{"a", "b", "a"}))
	assert.Equal(t, map[string]any{"cycle": []string{"a", "b", "a"}}, resp.Details)

	resp = ToResponse(NewNotFoundError("record", "rec1"))
	assert.Nil(t, resp.Details)
}

func TestFromContext(t *testing.T) {
	err := FromContext("list records", context.Canceled)
	require.True(t, IsCanceled(err))
	assert.Equal(t, 499, GetHTTPStatus(err))

	err = FromContext("list records", context.DeadlineExceeded)
	require.True(t, IsCanceled(err))

	err = FromContext("list records", fmt.Errorf("connection reset"))
	var dbErr *DBError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, "list records", dbErr.Op)
}

func TestIsHelpersRespectWrapping(t *testing.T) {
	wrapped := fmt.Errorf("saving: %w", NewNameConflictError("table", "Tasks"))
	assert.True(t, IsNameConflict(wrapped))
	assert.False(t, IsNotFound(wrapped))
}
