package services

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyspace-ai/easygrid/internal/domain/ports"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
	"github.com/easyspace-ai/easygrid/pkg/query"
)

func recordTestFields() []*models.Field {
	return []*models.Field{
		{ID: "fld1", Name: "Title", Type: constants.FieldTypeShortText, DBFieldName: "title"},
		{ID: "fld2", Name: "Amount", Type: constants.FieldTypeNumber, DBFieldName: "amount"},
	}
}

func TestFieldChangesToColumns(t *testing.T) {
	out, err := fieldChangesToColumns(map[string]any{"fld1": "Hello", "fld2": 2.5}, recordTestFields())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Hello", "amount": 2.5}, out)
}

func TestFieldChangesToColumns_UnknownField(t *testing.T) {
	_, err := fieldChangesToColumns(map[string]any{"fldNope": 1}, recordTestFields())
	require.True(t, apperrors.IsValidation(err))
}

func TestResolveOrderColumn(t *testing.T) {
	fields := recordTestFields()

	col, err := resolveOrderColumn("Amount", fields)
	require.NoError(t, err)
	assert.Equal(t, "amount", col)

	col, err = resolveOrderColumn("fld1", fields)
	require.NoError(t, err)
	assert.Equal(t, "title", col)

	col, err = resolveOrderColumn(constants.FieldCreatedTime, fields)
	require.NoError(t, err)
	assert.Equal(t, constants.FieldCreatedTime, col)

	_, err = resolveOrderColumn("nope", fields)
	require.True(t, apperrors.IsValidation(err))
}

func TestReferencedIDs(t *testing.T) {
	assert.Equal(t, []string{"rec1"}, referencedIDs("rec1"))
	assert.Nil(t, referencedIDs("  "))

	assert.Equal(t, []string{"rec1"}, referencedIDs(map[string]any{"id": "rec1", "title": "T"}))
	assert.Nil(t, referencedIDs(map[string]any{"title": "no id"}))

	assert.Equal(t, []string{"rec1", "rec2"}, referencedIDs([]any{
		map[string]any{"id": "rec1"},
		"rec2",
	}))

	assert.Equal(t, []string{"rec1", "rec2"}, referencedIDs([]models.LinkCell{
		{ID: "rec1", Title: "A"},
		{ID: "rec2", Title: "B"},
	}))

	assert.Nil(t, referencedIDs(42))
}

func TestApplyDefaults(t *testing.T) {
	amount := 10.0
	fields := []*models.Field{
		{ID: "fld1", Name: "Title", Type: constants.FieldTypeShortText, DBFieldName: "title",
			Options: &models.FieldOptions{Common: &models.CommonOptions{DefaultValue: "Untitled"}}},
		{ID: "fld2", Name: "Amount", Type: constants.FieldTypeNumber, DBFieldName: "amount",
			Options: &models.FieldOptions{Number: &models.NumberOptions{Precision: 2, DefaultValue: &amount}}},
		{ID: "fld3", Name: "Status", Type: constants.FieldTypeSingleSelect, DBFieldName: "status",
			Options: &models.FieldOptions{Select: &models.SelectOptions{DefaultValue: "todo"}}},
		{ID: "fld4", Name: "Notes", Type: constants.FieldTypeLongText, DBFieldName: "notes"},
	}

	out := applyDefaults(fields, map[string]any{"fld1": "Named"})
	assert.Equal(t, "Named", out["fld1"])
	assert.Equal(t, 10.0, out["fld2"])
	assert.Equal(t, "todo", out["fld3"])
	_, ok := out["fld4"]
	assert.False(t, ok)
}

func TestApplyDefaults_DisplayNameSuppressesDefault(t *testing.T) {
	fields := []*models.Field{
		{ID: "fld1", Name: "Title", Type: constants.FieldTypeShortText, DBFieldName: "title",
			Options: &models.FieldOptions{Common: &models.CommonOptions{DefaultValue: "Untitled"}}},
	}
	out := applyDefaults(fields, map[string]any{"Title": "By name"})
	assert.Equal(t, "By name", out["Title"])
	_, ok := out["fld1"]
	assert.False(t, ok)
}

func TestApplyDefaults_ComputedFieldsIgnored(t *testing.T) {
	fields := []*models.Field{
		{ID: "fld1", Name: "Total", Type: constants.FieldTypeFormula, DBFieldName: "total",
			Options: &models.FieldOptions{Formula: &models.FormulaOptions{Expression: "1 + 1"}}},
	}
	out := applyDefaults(fields, map[string]any{})
	assert.Empty(t, out)
}

func TestApplyDefaults_DateNowResolves(t *testing.T) {
	fields := []*models.Field{
		{ID: "fld1", Name: "Due", Type: constants.FieldTypeDate, DBFieldName: "due",
			Options: &models.FieldOptions{Date: &models.DateOptions{DefaultValue: "now"}}},
	}
	out := applyDefaults(fields, map[string]any{})
	stamp, ok := out["fld1"].(string)
	require.True(t, ok)
	assert.NotEqual(t, "now", stamp)
	assert.Contains(t, stamp, "T")
}

func TestFilterKeys(t *testing.T) {
	m := map[string]any{"a": 1, "b": 2, "c": 3}
	assert.Equal(t, map[string]any{"a": 1, "c": 3}, filterKeys(m, []string{"a", "c", "z"}))
	assert.Empty(t, filterKeys(m, nil))
}

func newTestRecordService(db *sql.DB) *RecordService {
	records := persistence.NewRecordRepository(db)
	fields := persistence.NewFieldRepository(db)
	tables := persistence.NewTableRepository(db)
	tx := persistence.NewTransactionManager(db)
	return NewRecordService(records, fields, tables, tx, nil, nil,
		query.NewFilterTranslator(), NewOTChannel(), ports.AllowAll{})
}

func TestRecordService_ListRecordsReturnsTotal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectTableMeta(mock, "tbl1", "base1", "Tasks")
	rows := fieldMetaRows()
	addFieldMetaRow(rows, "fld2", "tbl1", "Amount", "number", "amount", nil)
	expectTableFields(mock, "tbl1", rows)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "base1"."tbl1"`)).
		WillReturnRows(sqlmock.NewRows([]string{"__id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "base1"."tbl1"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	svc := newTestRecordService(db)
	records, total, err := svc.ListRecords(context.Background(), &models.UserPrincipal{ID: "usr1"},
		"tbl1", ListRecordsInput{Limit: 10})
	require.NoError(t, err)

	// total counts every match, not just the returned page
	assert.Empty(t, records)
	assert.Equal(t, int64(42), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordService_BatchAllOrNothingRollsBackOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectTableMeta(mock, "tbl1", "base1", "Tasks")
	rows := fieldMetaRows()
	addFieldMetaRow(rows, "fld2", "tbl1", "Amount", "number", "amount", nil)
	expectTableFields(mock, "tbl1", rows)

	// the version check runs inside the batch transaction; a mismatch
	// rolls the whole batch back
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "__version" FROM "base1"."tbl1"`)).
		WithArgs("rec1").
		WillReturnRows(sqlmock.NewRows([]string{"__version"}).AddRow(int64(7)))
	mock.ExpectRollback()

	svc := newTestRecordService(db)
	_, err = svc.BatchUpdateRecords(context.Background(), &models.UserPrincipal{ID: "usr1"}, "tbl1",
		[]RecordWrite{{RecordID: "rec1", Data: map[string]any{"fld2": 3.5}, Version: 5}},
		WriteModeAllOrNothing)

	require.True(t, apperrors.IsVersionConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
