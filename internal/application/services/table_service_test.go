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
	"github.com/easyspace-ai/easygrid/pkg/models"
)

func newTestTableService(db *sql.DB, provider *fakeProvider) *TableService {
	tables := persistence.NewTableRepository(db)
	fields := persistence.NewFieldRepository(db)
	views := persistence.NewViewRepository(db)
	tx := persistence.NewTransactionManager(db)
	graph := NewDependencyGraphService(tables, fields, persistence.NewMemoryCache())
	fieldSvc := NewFieldService(provider, fields, tables, tx, graph, NewOTChannel(), ports.AllowAll{})
	return NewTableService(provider, tables, fields, views, fieldSvc, nil, graph, ports.AllowAll{})
}

func TestTableService_CreateTableDefaultsPrimaryField(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM easygrid.table_meta WHERE base_id = $1 AND name = $2)`)).
		WithArgs("base1", "Tasks").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO easygrid.table_meta`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO easygrid.view_meta`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// creation of the implicit "Name" field
	mock.ExpectQuery(regexp.QuoteMeta(`FROM easygrid.table_meta WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "base_id", "name", "description", "version", "created_time", "last_modified_time",
		}).AddRow("tblX", "base1", "Tasks", "", int64(1), now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM easygrid.field_meta WHERE table_id = $1`)).
		WillReturnRows(fieldMetaRows())
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO easygrid.field_meta`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Name", sqlmock.AnyArg(),
			"shortText", "name", sqlmock.AnyArg(), sqlmock.AnyArg(), false, false,
			true, 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE easygrid.table_meta SET version = version + 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(2)))
	mock.ExpectCommit()

	provider := newFakeProvider()
	svc := newTestTableService(db, provider)

	table, err := svc.CreateTable(context.Background(), &models.UserPrincipal{ID: "usr1"}, "base1", CreateTableInput{
		Name: "Tasks",
	})
	require.NoError(t, err)
	require.NotNil(t, table)

	assert.True(t, provider.tables["base1."+table.ID])
	assert.Equal(t, []string{"name"}, provider.added)
	assert.NoError(t, mock.ExpectationsWereMet())
}
