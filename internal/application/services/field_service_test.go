package services

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyspace-ai/easygrid/internal/domain/ports"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

func newTestFieldService(db *sql.DB, provider *fakeProvider) *FieldService {
	fields := persistence.NewFieldRepository(db)
	tables := persistence.NewTableRepository(db)
	tx := persistence.NewTransactionManager(db)
	graph := NewDependencyGraphService(tables, fields, persistence.NewMemoryCache())
	return NewFieldService(provider, fields, tables, tx, graph, NewOTChannel(), ports.AllowAll{})
}

func expectFieldMeta(mock sqlmock.Sqlmock, id, tableID, name, fieldType, dbName string, isPrimary bool) {
	now := time.Now()
	rows := fieldMetaRows().AddRow(id, tableID, name, nil, fieldType, dbName, "TEXT",
		nil, false, false, isPrimary, 0, now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM easygrid.field_meta WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(rows)
}

func TestFieldService_CreateFieldRejectsSecondPrimary(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectTableMeta(mock, "tbl1", "base1", "Tasks")
	now := time.Now()
	rows := fieldMetaRows().AddRow("fldTitle", "tbl1", "Title", nil, "shortText", "title", "TEXT",
		nil, false, false, true, 0, now, now, nil)
	expectTableFields(mock, "tbl1", rows)

	svc := newTestFieldService(db, newFakeProvider())

	_, err = svc.CreateField(context.Background(), &models.UserPrincipal{ID: "usr1"}, "tbl1", CreateFieldInput{
		Name:      "Also Title",
		Type:      "shortText",
		IsPrimary: true,
	})
	require.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "already has primary field")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldService_DeleteFieldRejectsPrimary(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectFieldMeta(mock, "fldTitle", "tbl1", "Title", "shortText", "title", true)
	expectTableMeta(mock, "tbl1", "base1", "Tasks")

	svc := newTestFieldService(db, newFakeProvider())

	err = svc.DeleteField(context.Background(), nil, "fldTitle")
	require.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "CANNOT_DELETE_PRIMARY", apperrors.GetErrorCode(err))
	// nothing past the guard ran: no metadata delete, no column drop
	assert.NoError(t, mock.ExpectationsWereMet())
}
