package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/easyspace-ai/easygrid/internal/domain/schema"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// SchemaDrift is one mismatch between field metadata and the physical
// table behind it.
type SchemaDrift struct {
	TableID string `json:"tableId"`
	FieldID string `json:"fieldId,omitempty"`
	Column  string `json:"column,omitempty"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail"`
}

const (
	DriftMissingTable  = "missingTable"
	DriftMissingColumn = "missingColumn"
	DriftOrphanColumn  = "orphanColumn"
)

// AuditReport summarizes one audit pass over a base.
type AuditReport struct {
	BaseID   string        `json:"baseId"`
	Tables   int           `json:"tables"`
	Drifts   []SchemaDrift `json:"drifts"`
	Repaired int           `json:"repaired"`
}

// SchemaValidator compares field metadata against information_schema and
// optionally repairs the drift it finds. Compensation paths that fail mid
// way (a dropped process between DDL and metadata write) are what produce
// drift in the first place.
type SchemaValidator struct {
	provider persistence.SchemaProvider
	bases    *persistence.BaseRepository
	tables   *persistence.TableRepository
	fields   *persistence.FieldRepository
}

// NewSchemaValidator creates a new SchemaValidator
func NewSchemaValidator(provider persistence.SchemaProvider, bases *persistence.BaseRepository, tables *persistence.TableRepository, fields *persistence.FieldRepository) *SchemaValidator {
	return &SchemaValidator{
		provider: provider,
		bases:    bases,
		tables:   tables,
		fields:   fields,
	}
}

// AuditBase walks every table of a base and reports drift. With repair set
// it also fixes what it safely can: missing columns are re-added from
// metadata, orphan columns are dropped. A missing physical table is only
// reported, recreating it would resurrect no data.
func (v *SchemaValidator) AuditBase(ctx context.Context, baseID string, repair bool) (*AuditReport, error) {
	tables, err := v.tables.ListByBase(ctx, baseID)
	if err != nil {
		return nil, err
	}
	fieldsByTable, err := v.fields.ListByTables(ctx, tableIDsOf(tables))
	if err != nil {
		return nil, err
	}

	report := &AuditReport{BaseID: baseID, Tables: len(tables)}
	for _, table := range tables {
		if err := v.auditTable(ctx, baseID, table, fieldsByTable[table.ID], repair, report); err != nil {
			return nil, err
		}
	}

	if len(report.Drifts) > 0 {
		log.Printf("⚠️ Schema audit of base %s found %d drifts, repaired %d", baseID, len(report.Drifts), report.Repaired)
	}
	return report, nil
}

func (v *SchemaValidator) auditTable(ctx context.Context, baseID string, table *models.Table, fields []*models.Field, repair bool, report *AuditReport) error {
	exists, err := v.provider.TableExists(ctx, baseID, table.ID)
	if err != nil {
		return err
	}
	if !exists {
		report.Drifts = append(report.Drifts, SchemaDrift{
			TableID: table.ID,
			Kind:    DriftMissingTable,
			Detail:  fmt.Sprintf("physical table %s.%s is gone", baseID, table.ID),
		})
		return nil
	}

	columns, err := v.provider.ListColumns(ctx, baseID, table.ID)
	if err != nil {
		return err
	}
	physical := make(map[string]bool, len(columns))
	for _, c := range columns {
		physical[c] = true
	}

	expected := make(map[string]bool, len(fields))
	for _, f := range fields {
		expected[f.DBFieldName] = true
		if physical[f.DBFieldName] {
			continue
		}
		drift := SchemaDrift{
			TableID: table.ID,
			FieldID: f.ID,
			Column:  f.DBFieldName,
			Kind:    DriftMissingColumn,
			Detail:  fmt.Sprintf("field %s (%s) has no physical column", f.ID, f.Name),
		}
		if repair {
			if err := v.restoreColumn(ctx, baseID, table.ID, f); err != nil {
				log.Printf("❌ Could not restore column %s on %s: %v", f.DBFieldName, table.ID, err)
			} else {
				report.Repaired++
			}
		}
		report.Drifts = append(report.Drifts, drift)
	}

	for _, c := range columns {
		if expected[c] || constants.IsSystemColumn(c) {
			continue
		}
		// FK columns belong to link layouts owned by fields on other
		// tables, the field list of this table does not cover them
		if strings.HasPrefix(c, constants.FKColumnPrefix) {
			continue
		}
		report.Drifts = append(report.Drifts, SchemaDrift{
			TableID: table.ID,
			Column:  c,
			Kind:    DriftOrphanColumn,
			Detail:  fmt.Sprintf("column %s has no field metadata", c),
		})
		if repair {
			if err := v.provider.DropColumn(ctx, baseID, table.ID, c); err != nil {
				log.Printf("❌ Could not drop orphan column %s on %s: %v", c, table.ID, err)
			} else {
				report.Repaired++
			}
		}
	}
	return nil
}

// restoreColumn re-adds a column from field metadata. The cell values are
// lost, only the shape comes back.
func (v *SchemaValidator) restoreColumn(ctx context.Context, baseID, tableID string, f *models.Field) error {
	colType := f.DBFieldType
	defaultExpr, check := "", ""
	if colType == "" {
		colType, defaultExpr, check = v.provider.MapFieldType(f.Type)
	}
	return v.provider.AddColumn(ctx, baseID, tableID, schema.ColumnDefinition{
		Name:    f.DBFieldName,
		Type:    colType,
		Default: defaultExpr,
		Check:   check,
	})
}

func tableIDsOf(tables []*models.Table) []string {
	ids := make([]string, 0, len(tables))
	for _, t := range tables {
		ids = append(ids, t.ID)
	}
	return ids
}
