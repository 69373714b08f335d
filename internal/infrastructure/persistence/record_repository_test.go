package persistence

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

func testFields() []*models.Field {
	return []*models.Field{
		{ID: "fld1", Name: "Title", Type: constants.FieldTypeShortText, DBFieldName: "title", DBFieldType: "TEXT"},
		{ID: "fld2", Name: "Amount", Type: constants.FieldTypeNumber, DBFieldName: "amount", DBFieldType: "NUMERIC"},
	}
}

func TestBatchSizeFor(t *testing.T) {
	assert.Equal(t, 1, BatchSizeFor(1))
	assert.Equal(t, 49, BatchSizeFor(49))
	assert.Equal(t, constants.DefaultBatchSize, BatchSizeFor(50))
	assert.Equal(t, constants.DefaultBatchSize, BatchSizeFor(1000))
	assert.Equal(t, 500, BatchSizeFor(1001))
}

func TestRecordRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO "base1"."tbl1" ("__id", "__version", "__created_by", "__last_modified_by", "title") VALUES ($1, $2, $3, $4, $5)`)).
		WithArgs("rec1", int64(1), "usr1", "usr1", "Hello").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRecordRepository(db)
	rec := &models.Record{ID: "rec1", Data: map[string]any{"fld1": "Hello"}}
	err = repo.Insert(context.Background(), "base1", "tbl1", rec, testFields(), "usr1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_InsertUnknownField(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRecordRepository(db)
	rec := &models.Record{ID: "rec1", Data: map[string]any{"fldNope": 1}}
	err = repo.Insert(context.Background(), "base1", "tbl1", rec, testFields(), "usr1")
	require.True(t, apperrors.IsValidation(err))
}

func TestRecordRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	columns := []string{"__id", "__version", "__created_time", "__last_modified_time", "__created_by", "__last_modified_by", "title", "amount"}
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE "__id" IN ($1)`)).
		WithArgs("rec1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("rec1", int64(3), nil, nil, "usr1", nil, "Hello", "2.5"))

	repo := NewRecordRepository(db)
	rec, err := repo.GetByID(context.Background(), "base1", "tbl1", "rec1", testFields())
	require.NoError(t, err)
	assert.Equal(t, "rec1", rec.ID)
	assert.Equal(t, int64(3), rec.Version)
	assert.Equal(t, "Hello", rec.Data["fld1"])
	assert.Equal(t, 2.5, rec.Data["fld2"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_GetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	columns := []string{"__id", "__version", "__created_time", "__last_modified_time", "__created_by", "__last_modified_by", "title", "amount"}
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE "__id" IN ($1)`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	repo := NewRecordRepository(db)
	_, err = repo.GetByID(context.Background(), "base1", "tbl1", "missing", testFields())
	require.True(t, apperrors.IsNotFound(err))
}

func TestRecordRepository_UpdateWithVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(
		`UPDATE "base1"."tbl1" SET "title" = $1, "__version" = "__version" + 1, "__last_modified_time" = now(), "__last_modified_by" = $2 WHERE "__id" = $3 AND "__version" = $4 RETURNING "__version"`)).
		WithArgs("New title", "usr1", "rec1", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"__version"}).AddRow(int64(4)))

	repo := NewRecordRepository(db)
	version, err := repo.UpdateWithVersion(context.Background(), "base1", "tbl1", "rec1",
		map[string]any{"title": "New title"}, testFields(), 3, "usr1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_UpdateWithVersionConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// no row matches the stale version; the current one is re-read
	mock.ExpectQuery(regexp.QuoteMeta(`RETURNING "__version"`)).
		WithArgs("New title", "usr1", "rec1", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"__version"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "__version" FROM "base1"."tbl1" WHERE "__id" = $1`)).
		WithArgs("rec1").
		WillReturnRows(sqlmock.NewRows([]string{"__version"}).AddRow(int64(7)))

	repo := NewRecordRepository(db)
	_, err = repo.UpdateWithVersion(context.Background(), "base1", "tbl1", "rec1",
		map[string]any{"title": "New title"}, testFields(), 3, "usr1")
	require.True(t, apperrors.IsVersionConflict(err))

	var conflict *apperrors.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(7), conflict.Current)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_UpdateDeletedRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`RETURNING "__version"`)).
		WillReturnRows(sqlmock.NewRows([]string{"__version"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "__version"`)).
		WillReturnRows(sqlmock.NewRows([]string{"__version"}))

	repo := NewRecordRepository(db)
	_, err = repo.UpdateWithVersion(context.Background(), "base1", "tbl1", "gone",
		map[string]any{"title": "x"}, testFields(), 1, "usr1")
	require.True(t, apperrors.IsNotFound(err))
}

func TestRecordRepository_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "base1"."tbl1" WHERE "__id" = $1`)).
		WithArgs("rec1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "base1"."tbl1" WHERE "__id" = $1`)).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRecordRepository(db)

	existed, err := repo.Delete(context.Background(), "base1", "tbl1", "rec1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = repo.Delete(context.Background(), "base1", "tbl1", "gone")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRecordRepository_UpdateObjectCellTitle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`jsonb_set`).
		WithArgs("New name", "recF").
		WillReturnRows(sqlmock.NewRows([]string{"__id", "link_col"}).
			AddRow("recA", []byte(`{"id":"recF","title":"New name"}`)))

	repo := NewRecordRepository(db)
	updates, err := repo.UpdateObjectCellTitle(context.Background(), "base1", "tbl1", "link_col", "recF", "New name")
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "recA", updates[0].RecordID)
	assert.Equal(t, "link_col", updates[0].Column)
	cell, ok := updates[0].Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "New name", cell["title"])
}

func TestRecordRepository_FindLinkingRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`"link_col"->>'id' = $1`)).
		WithArgs("recF").
		WillReturnRows(sqlmock.NewRows([]string{"__id"}).AddRow("recA").AddRow("recB"))

	repo := NewRecordRepository(db)
	ids, err := repo.FindLinkingRecords(context.Background(), "base1", "tbl1", "link_col", "recF", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"recA", "recB"}, ids)
}

func TestEncodeCellValue(t *testing.T) {
	jsonField := &models.Field{Name: "Tags", Type: constants.FieldTypeMultiSelect, DBFieldType: "JSONB"}
	textField := &models.Field{Name: "Title", Type: constants.FieldTypeShortText, DBFieldType: "TEXT"}

	encoded, err := encodeCellValue(jsonField, []string{"a", "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, encoded.(string))

	encoded, err = encodeCellValue(textField, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", encoded)

	encoded, err = encodeCellValue(textField, nil)
	require.NoError(t, err)
	assert.Nil(t, encoded)
}

func TestDecodeCellValue(t *testing.T) {
	boolField := &models.Field{Type: constants.FieldTypeCheckbox, DBFieldType: "BOOLEAN"}
	numField := &models.Field{Type: constants.FieldTypeNumber, DBFieldType: "NUMERIC"}
	jsonField := &models.Field{Type: constants.FieldTypeLink, DBFieldType: "JSONB"}

	v, err := decodeCellValue(boolField, []byte("t"))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = decodeCellValue(numField, []byte("2.5"))
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = decodeCellValue(jsonField, []byte(`{"id":"rec1","title":"T"}`))
	require.NoError(t, err)
	cell, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rec1", cell["id"])
}
