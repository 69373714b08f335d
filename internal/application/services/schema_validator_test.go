package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyspace-ai/easygrid/internal/domain/schema"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// fakeProvider is an in-memory SchemaProvider for drift scenarios.
type fakeProvider struct {
	tables  map[string]bool
	columns map[string][]string

	added   []string
	dropped []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		tables:  make(map[string]bool),
		columns: make(map[string][]string),
	}
}

func (p *fakeProvider) key(schemaName, tableName string) string {
	return schemaName + "." + tableName
}

func (p *fakeProvider) MapFieldType(t constants.FieldType) (string, string, string) {
	if t == constants.FieldTypeNumber {
		return "NUMERIC", "", ""
	}
	return "TEXT", "", ""
}

func (p *fakeProvider) CreateSchema(ctx context.Context, baseID string) error { return nil }
func (p *fakeProvider) DropSchema(ctx context.Context, baseID string) error   { return nil }

func (p *fakeProvider) CreatePhysicalTable(ctx context.Context, def schema.TableDefinition) error {
	key := p.key(def.SchemaName, def.TableName)
	p.tables[key] = true
	for _, col := range def.Columns {
		p.columns[key] = append(p.columns[key], col.Name)
	}
	return nil
}

func (p *fakeProvider) DropPhysicalTable(ctx context.Context, schemaName, tableName string) error {
	delete(p.tables, p.key(schemaName, tableName))
	return nil
}

func (p *fakeProvider) AddColumn(ctx context.Context, schemaName, tableName string, col schema.ColumnDefinition) error {
	key := p.key(schemaName, tableName)
	p.columns[key] = append(p.columns[key], col.Name)
	p.added = append(p.added, col.Name)
	return nil
}

func (p *fakeProvider) DropColumn(ctx context.Context, schemaName, tableName, columnName string) error {
	key := p.key(schemaName, tableName)
	kept := p.columns[key][:0]
	for _, c := range p.columns[key] {
		if c != columnName {
			kept = append(kept, c)
		}
	}
	p.columns[key] = kept
	p.dropped = append(p.dropped, columnName)
	return nil
}

func (p *fakeProvider) AlterColumnType(ctx context.Context, schemaName, tableName, columnName, newType string) error {
	return nil
}

func (p *fakeProvider) AddUniqueConstraint(ctx context.Context, schemaName, tableName, columnName string) error {
	return nil
}

func (p *fakeProvider) AddCheckConstraint(ctx context.Context, schemaName, tableName, name, expr string) error {
	return nil
}

func (p *fakeProvider) ColumnExists(ctx context.Context, schemaName, tableName, columnName string) (bool, error) {
	for _, c := range p.columns[p.key(schemaName, tableName)] {
		if c == columnName {
			return true, nil
		}
	}
	return false, nil
}

func (p *fakeProvider) TableExists(ctx context.Context, schemaName, tableName string) (bool, error) {
	return p.tables[p.key(schemaName, tableName)], nil
}

func (p *fakeProvider) ListColumns(ctx context.Context, schemaName, tableName string) ([]string, error) {
	return p.columns[p.key(schemaName, tableName)], nil
}

func auditFixture() (*fakeProvider, *models.Table, []*models.Field) {
	provider := newFakeProvider()
	provider.tables["base1.tbl1"] = true
	provider.columns["base1.tbl1"] = []string{
		"__id", "__version", "__created_time", "__last_modified_time",
		"__created_by", "__last_modified_by", "title",
	}
	table := &models.Table{ID: "tbl1", BaseID: "base1", Name: "Tasks"}
	fields := []*models.Field{
		{ID: "fld1", Name: "Title", Type: constants.FieldTypeShortText, DBFieldName: "title", DBFieldType: "TEXT"},
		{ID: "fld2", Name: "Amount", Type: constants.FieldTypeNumber, DBFieldName: "amount", DBFieldType: "NUMERIC"},
	}
	return provider, table, fields
}

func TestSchemaValidator_DetectsMissingColumn(t *testing.T) {
	provider, table, fields := auditFixture()
	v := &SchemaValidator{provider: provider}

	report := &AuditReport{BaseID: "base1"}
	require.NoError(t, v.auditTable(context.Background(), "base1", table, fields, false, report))

	require.Len(t, report.Drifts, 1)
	assert.Equal(t, DriftMissingColumn, report.Drifts[0].Kind)
	assert.Equal(t, "fld2", report.Drifts[0].FieldID)
	assert.Equal(t, "amount", report.Drifts[0].Column)
	assert.Zero(t, report.Repaired)
	assert.Empty(t, provider.added)
}

func TestSchemaValidator_RepairsMissingColumn(t *testing.T) {
	provider, table, fields := auditFixture()
	v := &SchemaValidator{provider: provider}

	report := &AuditReport{BaseID: "base1"}
	require.NoError(t, v.auditTable(context.Background(), "base1", table, fields, true, report))

	assert.Equal(t, 1, report.Repaired)
	assert.Equal(t, []string{"amount"}, provider.added)
}

func TestSchemaValidator_DropsOrphanColumn(t *testing.T) {
	provider, table, fields := auditFixture()
	provider.columns["base1.tbl1"] = append(provider.columns["base1.tbl1"], "amount", "leftover")
	v := &SchemaValidator{provider: provider}

	report := &AuditReport{BaseID: "base1"}
	require.NoError(t, v.auditTable(context.Background(), "base1", table, fields, true, report))

	require.Len(t, report.Drifts, 1)
	assert.Equal(t, DriftOrphanColumn, report.Drifts[0].Kind)
	assert.Equal(t, "leftover", report.Drifts[0].Column)
	assert.Equal(t, []string{"leftover"}, provider.dropped)
}

func TestSchemaValidator_SkipsSystemAndFKColumns(t *testing.T) {
	provider, table, fields := auditFixture()
	provider.columns["base1.tbl1"] = append(provider.columns["base1.tbl1"], "amount", constants.FKColumnPrefix+"fld9")
	v := &SchemaValidator{provider: provider}

	report := &AuditReport{BaseID: "base1"}
	require.NoError(t, v.auditTable(context.Background(), "base1", table, fields, false, report))

	assert.Empty(t, report.Drifts)
}

func TestSchemaValidator_ReportsMissingTableWithoutRepair(t *testing.T) {
	provider, table, fields := auditFixture()
	delete(provider.tables, "base1.tbl1")
	v := &SchemaValidator{provider: provider}

	report := &AuditReport{BaseID: "base1"}
	require.NoError(t, v.auditTable(context.Background(), "base1", table, fields, true, report))

	require.Len(t, report.Drifts, 1)
	assert.Equal(t, DriftMissingTable, report.Drifts[0].Kind)
	assert.Zero(t, report.Repaired)
}
