package persistence

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyspace-ai/easygrid/internal/domain/schema"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
)

func TestMapFieldType(t *testing.T) {
	p := NewPostgresProvider(nil)

	tests := []struct {
		fieldType constants.FieldType
		colType   string
	}{
		{constants.FieldTypeNumber, "NUMERIC"},
		{constants.FieldTypeDuration, "NUMERIC"},
		{constants.FieldTypeRating, "INTEGER"},
		{constants.FieldTypeCount, "INTEGER"},
		{constants.FieldTypeDate, "TIMESTAMPTZ"},
		{constants.FieldTypeLink, "JSONB"},
		{constants.FieldTypeMultiSelect, "JSONB"},
		{constants.FieldTypeLookup, "JSONB"},
		{constants.FieldTypeShortText, "TEXT"},
		{constants.FieldTypeFormula, "TEXT"},
	}
	for _, tt := range tests {
		colType, _, _ := p.MapFieldType(tt.fieldType)
		assert.Equal(t, tt.colType, colType, string(tt.fieldType))
	}

	colType, defaultExpr, _ := p.MapFieldType(constants.FieldTypeCheckbox)
	assert.Equal(t, "BOOLEAN", colType)
	assert.Equal(t, "false", defaultExpr)
}

func TestPostgresProvider_AddColumnRejectsDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`information_schema\.columns`).
		WithArgs("base1", "tbl1", "title").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	p := NewPostgresProvider(db)
	err = p.AddColumn(context.Background(), "base1", "tbl1", schema.ColumnDefinition{Name: "title", Type: "TEXT"})
	require.True(t, apperrors.IsSchemaConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProvider_RejectsInvalidNames(t *testing.T) {
	p := NewPostgresProvider(nil)
	ctx := context.Background()

	assert.Error(t, p.CreateSchema(ctx, `base"; DROP SCHEMA x`))
	assert.Error(t, p.DropSchema(ctx, "1bad"))
	assert.Error(t, p.AddColumn(ctx, "base1", "tbl1", schema.ColumnDefinition{Name: "bad name", Type: "TEXT"}))
}

func TestPostgresProvider_ListColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY ordinal_position`)).
		WithArgs("base1", "tbl1").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).
			AddRow("__id").AddRow("__version").AddRow("title"))

	p := NewPostgresProvider(db)
	columns, err := p.ListColumns(context.Background(), "base1", "tbl1")
	require.NoError(t, err)
	assert.Equal(t, []string{"__id", "__version", "title"}, columns)
}
