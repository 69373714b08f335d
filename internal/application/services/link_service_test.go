package services

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

func newTestLinkService(db *sql.DB, provider *fakeProvider) *LinkService {
	fields := persistence.NewFieldRepository(db)
	tables := persistence.NewTableRepository(db)
	graph := NewDependencyGraphService(tables, fields, persistence.NewMemoryCache())
	return NewLinkService(db, provider, fields, tables, graph, NewOTChannel())
}

func expectTableMeta(mock sqlmock.Sqlmock, id, baseID, name string) {
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM easygrid.table_meta WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "base_id", "name", "description", "version", "created_time", "last_modified_time",
		}).AddRow(id, baseID, name, "", int64(1), now, now))
}

func expectTableFields(mock sqlmock.Sqlmock, tableID string, rows *sqlmock.Rows) {
	mock.ExpectQuery(regexp.QuoteMeta(`FROM easygrid.field_meta WHERE table_id = $1`)).
		WithArgs(tableID).
		WillReturnRows(rows)
}

func fieldMetaRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "table_id", "name", "description", "type", "db_field_name",
		"db_field_type", "options", "required", "is_unique", "is_primary",
		"field_order", "created_time", "last_modified_time", "created_by",
	})
}

func addFieldMetaRow(rows *sqlmock.Rows, id, tableID, name, fieldType, dbName string, options []byte) {
	now := time.Now()
	rows.AddRow(id, tableID, name, nil, fieldType, dbName, "TEXT", options,
		false, false, false, 0, now, now, nil)
}

func TestLinkService_PrepareManyOneAutoResolvesLookup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectTableMeta(mock, "tbl2", "base1", "Tags")
	rows := fieldMetaRows()
	addFieldMetaRow(rows, "fldF", "tbl2", "Total", "formula", "total", []byte(`{"expression":"1"}`))
	addFieldMetaRow(rows, "fldName", "tbl2", "Name", "shortText", "name", nil)
	expectTableFields(mock, "tbl2", rows)

	provider := newFakeProvider()
	svc := newTestLinkService(db, provider)

	host := &models.Table{ID: "tbl1", BaseID: "base1", Name: "Tasks"}
	field := &models.Field{
		ID: "fldL", TableID: "tbl1", Name: "Tags", Type: constants.FieldTypeLink,
		DBFieldName: "tags",
		Options: &models.FieldOptions{Link: &models.LinkOptions{
			ForeignTableID: "tbl2",
			Relationship:   constants.RelationshipManyOne,
		}},
	}
	require.NoError(t, svc.PrepareLinkField(context.Background(), host, field, nil))

	link := field.Options.Link
	assert.Equal(t, "fldName", link.LookupFieldID)
	assert.Equal(t, "tbl1", link.FKHostTableName)
	assert.Equal(t, constants.FieldID, link.SelfKeyName)
	// the link cell column itself carries the FK
	assert.Equal(t, "tags", link.ForeignKeyName)
	assert.Empty(t, provider.added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkService_PrepareManyManyCreatesJunction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectTableMeta(mock, "tbl2", "base1", "Tags")
	rows := fieldMetaRows()
	addFieldMetaRow(rows, "fldName", "tbl2", "Name", "shortText", "name", nil)
	expectTableFields(mock, "tbl2", rows)

	provider := newFakeProvider()
	svc := newTestLinkService(db, provider)

	host := &models.Table{ID: "tbl1", BaseID: "base1", Name: "Tasks"}
	field := &models.Field{
		ID: "fldL", TableID: "tbl1", Name: "Tags", Type: constants.FieldTypeLink,
		DBFieldName: "tags",
		Options: &models.FieldOptions{Link: &models.LinkOptions{
			ForeignTableID: "tbl2",
			Relationship:   constants.RelationshipManyMany,
		}},
	}
	require.NoError(t, svc.PrepareLinkField(context.Background(), host, field, nil))

	link := field.Options.Link
	junction := constants.JunctionTablePrefix + "tbl1_tbl2"
	assert.Equal(t, junction, link.FKHostTableName)
	assert.Equal(t, "tbl1_id", link.SelfKeyName)
	assert.Equal(t, "tbl2_id", link.ForeignKeyName)
	assert.True(t, provider.tables["base1."+junction])
	assert.Equal(t, []string{constants.FieldID, "tbl1_id", "tbl2_id"}, provider.columns["base1."+junction])
}

func TestLinkService_PrepareRejectsCrossBaseLink(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectTableMeta(mock, "tbl9", "base2", "Elsewhere")

	provider := newFakeProvider()
	svc := newTestLinkService(db, provider)

	host := &models.Table{ID: "tbl1", BaseID: "base1", Name: "Tasks"}
	field := &models.Field{
		ID: "fldL", TableID: "tbl1", Name: "Other", Type: constants.FieldTypeLink,
		DBFieldName: "other",
		Options: &models.FieldOptions{Link: &models.LinkOptions{
			ForeignTableID: "tbl9",
			Relationship:   constants.RelationshipManyOne,
		}},
	}
	err = svc.PrepareLinkField(context.Background(), host, field, nil)
	require.True(t, apperrors.IsValidation(err))
	assert.Empty(t, provider.added)
}

func TestLinkService_CreateSymmetricFieldPairsBothSides(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectTableMeta(mock, "tbl2", "base1", "Tags")

	foreignRows := fieldMetaRows()
	addFieldMetaRow(foreignRows, "fldName", "tbl2", "Name", "shortText", "name", nil)
	expectTableFields(mock, "tbl2", foreignRows)

	hostRows := fieldMetaRows()
	addFieldMetaRow(hostRows, "fldTitle", "tbl1", "Title", "shortText", "title", nil)
	expectTableFields(mock, "tbl1", hostRows)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO easygrid.field_meta`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE easygrid.field_meta SET options = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SET version = version + 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(2)))

	provider := newFakeProvider()
	svc := newTestLinkService(db, provider)

	host := &models.Table{ID: "tbl1", BaseID: "base1", Name: "Tasks"}
	field := &models.Field{
		ID: "fldL", TableID: "tbl1", Name: "Tags", Type: constants.FieldTypeLink,
		DBFieldName: "tags",
		Options: &models.FieldOptions{Link: &models.LinkOptions{
			ForeignTableID:  "tbl2",
			Relationship:    constants.RelationshipManyMany,
			LookupFieldID:   "fldName",
			FKHostTableName: constants.JunctionTablePrefix + "tbl1_tbl2",
			SelfKeyName:     "tbl1_id",
			ForeignKeyName:  "tbl2_id",
			IsSymmetric:     true,
		}},
	}
	user := &models.UserPrincipal{ID: "usr1"}
	require.NoError(t, svc.CreateSymmetricField(context.Background(), user, host, field))

	link := field.Options.Link
	assert.NotEmpty(t, link.SymmetricFieldID)
	// the reverse column takes the host table's display name
	assert.Equal(t, []string{"tasks"}, provider.added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkService_CreateSymmetricFieldSkipsWhenNotRequested(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	provider := newFakeProvider()
	svc := newTestLinkService(db, provider)

	host := &models.Table{ID: "tbl1", BaseID: "base1", Name: "Tasks"}
	field := &models.Field{
		ID: "fldL", TableID: "tbl1", Name: "Tags", Type: constants.FieldTypeLink,
		Options: &models.FieldOptions{Link: &models.LinkOptions{
			ForeignTableID: "tbl2",
			Relationship:   constants.RelationshipManyMany,
		}},
	}
	user := &models.UserPrincipal{ID: "usr1"}
	require.NoError(t, svc.CreateSymmetricField(context.Background(), user, host, field))
	assert.Empty(t, provider.added)
	assert.Empty(t, field.Options.Link.SymmetricFieldID)
}

func TestLinkService_CreateSymmetricFieldSkipsPairedField(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	provider := newFakeProvider()
	svc := newTestLinkService(db, provider)

	// the counterpart created by pairing: flagged symmetric and already
	// pointing back at the original
	host := &models.Table{ID: "tbl2", BaseID: "base1", Name: "Tags"}
	field := &models.Field{
		ID: "fldS", TableID: "tbl2", Name: "Tasks", Type: constants.FieldTypeLink,
		Options: &models.FieldOptions{Link: &models.LinkOptions{
			ForeignTableID:   "tbl1",
			Relationship:     constants.RelationshipManyMany,
			IsSymmetric:      true,
			SymmetricFieldID: "fldL",
		}},
	}
	user := &models.UserPrincipal{ID: "usr1"}
	require.NoError(t, svc.CreateSymmetricField(context.Background(), user, host, field))
	assert.Empty(t, provider.added)
}

func TestLinkService_MigrateManyOneToOneManyMovesFK(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`jsonb_array_elements`)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`jsonb_build_array`)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE easygrid.field_meta SET options = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SET version = version + 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(2)))

	provider := newFakeProvider()
	provider.columns["base1.tbl1"] = []string{"tags"}
	svc := newTestLinkService(db, provider)

	host := &models.Table{ID: "tbl1", BaseID: "base1", Name: "Tasks"}
	field := &models.Field{
		ID: "fldL", TableID: "tbl1", Name: "Tags", Type: constants.FieldTypeLink,
		DBFieldName: "tags",
		Options: &models.FieldOptions{Link: &models.LinkOptions{
			ForeignTableID:  "tbl2",
			Relationship:    constants.RelationshipManyOne,
			LookupFieldID:   "fldName",
			FKHostTableName: "tbl1",
			SelfKeyName:     constants.FieldID,
			ForeignKeyName:  "tags",
		}},
	}
	user := &models.UserPrincipal{ID: "usr1"}
	newLink := *field.Options.Link
	newLink.Relationship = constants.RelationshipOneMany
	require.NoError(t, svc.MigrateRelationship(context.Background(), user, host, field, &newLink))

	migrated := field.Options.Link
	assert.Equal(t, constants.RelationshipOneMany, migrated.Relationship)
	assert.Equal(t, "tbl2", migrated.FKHostTableName)
	assert.Equal(t, constants.FKColumnPrefix+"tags", migrated.SelfKeyName)
	assert.Equal(t, constants.FieldID, migrated.ForeignKeyName)

	// the cell column stays put, the FK column appears on the many side
	assert.Empty(t, provider.dropped)
	assert.Equal(t, []string{"tags"}, provider.columns["base1.tbl1"])
	assert.Equal(t, []string{constants.FKColumnPrefix + "tags"}, provider.columns["base1.tbl2"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkService_MigrateNarrowingConflictLeavesStateUntouched(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`jsonb_array_length`)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	provider := newFakeProvider()
	svc := newTestLinkService(db, provider)

	host := &models.Table{ID: "tbl1", BaseID: "base1", Name: "Tasks"}
	field := &models.Field{
		ID: "fldL", TableID: "tbl1", Name: "Tags", Type: constants.FieldTypeLink,
		DBFieldName: "tags",
		Options: &models.FieldOptions{Link: &models.LinkOptions{
			ForeignTableID:  "tbl2",
			Relationship:    constants.RelationshipManyMany,
			LookupFieldID:   "fldName",
			FKHostTableName: constants.JunctionTablePrefix + "tbl1_tbl2",
			SelfKeyName:     "tbl1_id",
			ForeignKeyName:  "tbl2_id",
		}},
	}
	user := &models.UserPrincipal{ID: "usr1"}
	newLink := *field.Options.Link
	newLink.Relationship = constants.RelationshipManyOne
	err = svc.MigrateRelationship(context.Background(), user, host, field, &newLink)

	require.True(t, apperrors.IsMigrationConflict(err))
	assert.Equal(t, constants.RelationshipManyMany, field.Options.Link.Relationship)
	assert.Empty(t, provider.added)
	assert.Empty(t, provider.dropped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkService_TeardownSurvivesSymmetricDeleteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectFieldMeta(mock, "fldSym", "tbl2", "Tasks", "link", "tasks", false)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM easygrid.field_meta WHERE id = $1`)).
		WithArgs("fldSym").
		WillReturnError(errors.New("connection reset"))

	junction := constants.JunctionTablePrefix + "tbl1_tbl2"
	provider := newFakeProvider()
	provider.tables["base1."+junction] = true
	svc := newTestLinkService(db, provider)

	host := &models.Table{ID: "tbl1", BaseID: "base1", Name: "Tasks"}
	field := &models.Field{
		ID: "fldL", TableID: "tbl1", Name: "Tags", Type: constants.FieldTypeLink,
		DBFieldName: "tags",
		Options: &models.FieldOptions{Link: &models.LinkOptions{
			ForeignTableID:   "tbl2",
			Relationship:     constants.RelationshipManyMany,
			LookupFieldID:    "fldName",
			IsSymmetric:      true,
			SymmetricFieldID: "fldSym",
			FKHostTableName:  junction,
			SelfKeyName:      "tbl1_id",
			ForeignKeyName:   "tbl2_id",
		}},
	}

	// a failed counterpart delete is logged, never surfaced; the field's
	// own layout still comes down
	require.NoError(t, svc.TeardownLinkField(context.Background(), host, field))
	assert.False(t, provider.tables["base1."+junction])
	assert.NoError(t, mock.ExpectationsWereMet())
}
