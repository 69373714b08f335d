package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
)

var fieldMetaColumns = []string{
	"id", "table_id", "name", "description", "type", "db_field_name",
	"db_field_type", "options", "required", "is_unique", "is_primary",
	"field_order", "created_time", "last_modified_time", "created_by",
}

func TestFieldRepository_GetByIDParsesOptions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM easygrid.field_meta WHERE id = $1`)).
		WithArgs("fld1").
		WillReturnRows(sqlmock.NewRows(fieldMetaColumns).
			AddRow("fld1", "tbl1", "Assignee", nil, "link", "assignee", "JSONB",
				[]byte(`{"foreignTableId":"tbl2","relationship":"manyOne","lookupFieldId":"fldT"}`),
				false, false, false, 3, now, now, "usr1"))

	repo := NewFieldRepository(db)
	field, err := repo.GetByID(context.Background(), "fld1")
	require.NoError(t, err)
	assert.Equal(t, constants.FieldTypeLink, field.Type)
	assert.Equal(t, "assignee", field.DBFieldName)
	require.NotNil(t, field.Options)
	require.NotNil(t, field.Options.Link)
	assert.Equal(t, "tbl2", field.Options.Link.ForeignTableID)
	assert.Equal(t, constants.RelationshipManyOne, field.Options.Link.Relationship)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRepository_GetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM easygrid.field_meta WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(fieldMetaColumns))

	repo := NewFieldRepository(db)
	_, err = repo.GetByID(context.Background(), "missing")
	require.True(t, apperrors.IsNotFound(err))
}

func TestFieldRepository_GetByIDCorruptOptions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM easygrid.field_meta WHERE id = $1`)).
		WithArgs("fld1").
		WillReturnRows(sqlmock.NewRows(fieldMetaColumns).
			AddRow("fld1", "tbl1", "Sum", nil, "rollup", "sum", "NUMERIC",
				[]byte(`{"aggregationFunction":"sum"}`),
				false, false, false, 0, now, now, nil))

	repo := NewFieldRepository(db)
	_, err = repo.GetByID(context.Background(), "fld1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "options")
}

func TestFieldRepository_NameExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(`)).
		WithArgs("tbl1", "Title", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewFieldRepository(db)
	exists, err := repo.NameExists(context.Background(), "tbl1", "Title", "")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFieldRepository_UpdateOptionsMissingField(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE easygrid.field_meta SET options = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewFieldRepository(db)
	err = repo.UpdateOptions(context.Background(), "gone", nil)
	require.True(t, apperrors.IsNotFound(err))
}

func TestFieldRepository_ListByTablesGroupsByTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE table_id IN ($1, $2)`)).
		WithArgs("tbl1", "tbl2").
		WillReturnRows(sqlmock.NewRows(fieldMetaColumns).
			AddRow("fld1", "tbl1", "Title", nil, "shortText", "title", "TEXT", nil, false, false, true, 0, now, now, nil).
			AddRow("fld2", "tbl2", "Name", nil, "shortText", "name", "TEXT", nil, false, false, true, 0, now, now, nil))

	repo := NewFieldRepository(db)
	byTable, err := repo.ListByTables(context.Background(), []string{"tbl1", "tbl2"})
	require.NoError(t, err)
	require.Len(t, byTable, 2)
	assert.Equal(t, "fld1", byTable["tbl1"][0].ID)
	assert.Equal(t, "fld2", byTable["tbl2"][0].ID)
}
