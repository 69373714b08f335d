package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/easyspace-ai/easygrid/internal/domain/ports"
	"github.com/easyspace-ai/easygrid/internal/domain/schema"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
	"github.com/easyspace-ai/easygrid/pkg/query"
	"github.com/easyspace-ai/easygrid/pkg/utils"
)

// LinkService owns the relational layout behind link fields: foreign-key
// columns, junction tables, symmetric counterparts and relationship
// migrations. FieldService delegates to it for every link-typed field.
type LinkService struct {
	db        *sql.DB
	provider  persistence.SchemaProvider
	fields    *persistence.FieldRepository
	tables    *persistence.TableRepository
	graph     *DependencyGraphService
	publisher ports.OpPublisher
}

// NewLinkService creates a new LinkService
func NewLinkService(db *sql.DB, provider persistence.SchemaProvider, fields *persistence.FieldRepository, tables *persistence.TableRepository, graph *DependencyGraphService, publisher ports.OpPublisher) *LinkService {
	return &LinkService{
		db:        db,
		provider:  provider,
		fields:    fields,
		tables:    tables,
		graph:     graph,
		publisher: publisher,
	}
}

// junctionTableName derives the junction table shared by a manyMany link
// and its symmetric counterpart: link_<hostTable>_<foreignTable>.
func junctionTableName(hostTableID, foreignTableID string) string {
	return constants.JunctionTablePrefix + hostTableID + "_" + foreignTableID
}

// junctionKeyName names the junction column holding a side's record ids.
func junctionKeyName(tableID string) string {
	return tableID + "_id"
}

func fkColumnName(field *models.Field) string {
	return constants.FKColumnPrefix + field.DBFieldName
}

func junctionDefinition(baseID, junction, selfKey, foreignKey string) schema.TableDefinition {
	return schema.TableDefinition{
		SchemaName: baseID,
		TableName:  junction,
		Columns: []schema.ColumnDefinition{
			{Name: constants.FieldID, Type: "TEXT", PrimaryKey: true},
			{Name: selfKey, Type: "TEXT", NotNull: true},
			{Name: foreignKey, Type: "TEXT", NotNull: true},
		},
		Indices: []schema.IndexDefinition{
			{Columns: []string{selfKey, foreignKey}, Unique: true},
		},
	}
}

// PrepareLinkField derives and provisions the physical layout for a new
// link field before its own column is added. The passed field is mutated:
// FK naming, lookup auto-resolution and cardinality flags are filled in.
func (s *LinkService) PrepareLinkField(ctx context.Context, table *models.Table, field *models.Field, tableFields []*models.Field) error {
	link := field.LinkOptions()
	if link == nil {
		return apperrors.NewInvalidOptionError("options", "link field without link options")
	}

	foreignTable, err := s.tables.GetByID(ctx, link.ForeignTableID)
	if err != nil {
		return err
	}
	if foreignTable.BaseID != table.BaseID {
		return apperrors.NewInvalidOptionError("foreignTableId",
			"links may only target tables of the same base")
	}

	if err := s.resolveLookupField(ctx, link); err != nil {
		return err
	}

	switch link.Relationship {
	case constants.RelationshipManyOne, constants.RelationshipOneOne:
		// the field's own JSONB cell column carries the FK, no extra column
		link.FKHostTableName = table.ID
		link.SelfKeyName = constants.FieldID
		link.ForeignKeyName = field.DBFieldName
	case constants.RelationshipOneMany:
		// the many side hosts the FK: one column on the foreign table
		link.FKHostTableName = link.ForeignTableID
		link.SelfKeyName = fkColumnName(field)
		link.ForeignKeyName = constants.FieldID
		if err := s.provider.AddColumn(ctx, table.BaseID, link.ForeignTableID, schema.ColumnDefinition{
			Name: link.SelfKeyName, Type: "TEXT",
		}); err != nil {
			return err
		}
	case constants.RelationshipManyMany:
		junction := junctionTableName(table.ID, link.ForeignTableID)
		link.FKHostTableName = junction
		link.SelfKeyName = junctionKeyName(table.ID)
		link.ForeignKeyName = junctionKeyName(link.ForeignTableID)
		if err := s.provider.CreatePhysicalTable(ctx,
			junctionDefinition(table.BaseID, junction, link.SelfKeyName, link.ForeignKeyName)); err != nil {
			return err
		}
	default:
		return apperrors.NewInvalidOptionError("relationship",
			fmt.Sprintf("unknown relationship '%s'", link.Relationship))
	}

	log.Printf("🔗 Prepared %s link %s -> %s (fk host %s)",
		link.Relationship, table.ID, link.ForeignTableID, link.FKHostTableName)
	return nil
}

// resolveLookupField fills LookupFieldID with the foreign table's first
// plain field when the caller left it empty. Virtual fields are skipped;
// their values are not stable titles.
func (s *LinkService) resolveLookupField(ctx context.Context, link *models.LinkOptions) error {
	if link.LookupFieldID != "" {
		if _, err := s.fields.GetByID(ctx, link.LookupFieldID); err != nil {
			return apperrors.NewInvalidOptionError("lookupFieldId", err.Error())
		}
		return nil
	}
	foreignFields, err := s.fields.ListByTable(ctx, link.ForeignTableID)
	if err != nil {
		return err
	}
	for _, f := range foreignFields {
		if constants.IsVirtualFieldType(f.Type) || f.Type == constants.FieldTypeLink {
			continue
		}
		link.LookupFieldID = f.ID
		return nil
	}
	// table without plain fields: titles fall back to record ids
	return nil
}

// CompensateLinkField tears the provisioned layout back down after a
// failed create. Errors are logged only; this is already a failure path.
func (s *LinkService) CompensateLinkField(ctx context.Context, table *models.Table, field *models.Field) {
	link := field.LinkOptions()
	if link == nil {
		return
	}
	switch link.Relationship {
	case constants.RelationshipOneMany:
		if err := s.provider.DropColumn(ctx, table.BaseID, link.ForeignTableID, link.SelfKeyName); err != nil {
			log.Printf("⚠️ Link compensation: drop fk column failed: %v", err)
		}
	case constants.RelationshipManyMany:
		if err := s.provider.DropPhysicalTable(ctx, table.BaseID, link.FKHostTableName); err != nil {
			log.Printf("⚠️ Link compensation: drop junction failed: %v", err)
		}
	}
	// manyOne/oneOne leave nothing extra behind: the FK carrier is the
	// field's own cell column, dropped with the field itself
}

// CreateSymmetricField adds the reverse link on the foreign table and
// pairs the two fields. The symmetric field shares the physical FK layout
// with reversed key roles. Only fields flagged is_symmetric get a
// counterpart; a field already paired (the counterpart itself included)
// is left alone.
func (s *LinkService) CreateSymmetricField(ctx context.Context, user *models.UserPrincipal, table *models.Table, field *models.Field) error {
	link := field.LinkOptions()
	if link == nil || !link.IsSymmetric || link.SymmetricFieldID != "" {
		return nil
	}

	foreignTable, err := s.tables.GetByID(ctx, link.ForeignTableID)
	if err != nil {
		return err
	}
	foreignFields, err := s.fields.ListByTable(ctx, link.ForeignTableID)
	if err != nil {
		return err
	}

	takenNames := make(map[string]bool, len(foreignFields))
	takenColumns := make(map[string]bool, len(foreignFields))
	for _, f := range foreignFields {
		takenNames[f.Name] = true
		takenColumns[f.DBFieldName] = true
	}
	name := utils.DedupeDisplayName(table.Name, takenNames)

	// reverse lookup resolves against the host table
	reverseLookup := ""
	hostFields, err := s.fields.ListByTable(ctx, table.ID)
	if err != nil {
		return err
	}
	for _, f := range hostFields {
		if constants.IsVirtualFieldType(f.Type) || f.Type == constants.FieldTypeLink {
			continue
		}
		reverseLookup = f.ID
		break
	}

	symmetric := &models.Field{
		ID:          utils.GenerateFieldID(),
		TableID:     link.ForeignTableID,
		Name:        name,
		Type:        constants.FieldTypeLink,
		DBFieldName: utils.DedupeDBName(utils.SanitizeDBName(name), takenColumns),
		Options: &models.FieldOptions{Link: &models.LinkOptions{
			ForeignTableID:   table.ID,
			Relationship:     constants.ReverseRelationship(link.Relationship),
			LookupFieldID:    reverseLookup,
			FKHostTableName:  link.FKHostTableName,
			SelfKeyName:      link.ForeignKeyName,
			ForeignKeyName:   link.SelfKeyName,
			IsSymmetric:      true,
			SymmetricFieldID: field.ID,
		}},
		Order:            nextFieldOrder(foreignFields),
		CreatedTime:      time.Now(),
		LastModifiedTime: time.Now(),
		CreatedBy:        user.ID,
	}
	colType, _, _ := s.provider.MapFieldType(constants.FieldTypeLink)
	symmetric.DBFieldType = colType

	if err := s.provider.AddColumn(ctx, foreignTable.BaseID, foreignTable.ID, schema.ColumnDefinition{
		Name: symmetric.DBFieldName, Type: colType,
	}); err != nil {
		return err
	}
	if err := s.fields.Create(ctx, symmetric); err != nil {
		if dropErr := s.provider.DropColumn(ctx, foreignTable.BaseID, foreignTable.ID, symmetric.DBFieldName); dropErr != nil {
			log.Printf("❌ Symmetric compensation failed: %v", dropErr)
		}
		return err
	}

	// pair the original side
	link.SymmetricFieldID = symmetric.ID
	if err := s.fields.UpdateOptions(ctx, field.ID, field.Options); err != nil {
		return err
	}

	if _, err := s.tables.BumpVersion(ctx, foreignTable.ID); err != nil {
		return err
	}
	s.graph.Invalidate(table.BaseID)
	s.broadcastFieldOp(ctx, foreignTable.ID, symmetric.ID, models.OTOp{
		P:  []any{"fields", symmetric.ID},
		OI: symmetric,
	})
	log.Printf("✅ Created symmetric field %s on table %s", symmetric.ID, foreignTable.ID)
	return nil
}

// MigrateRelationship changes a link field's cardinality in place. Cell
// shapes are rewritten (object <-> array), the FK layout moves with the
// relationship, and the symmetric counterpart flips to the reverse
// cardinality. Data that cannot survive the narrower shape aborts with a
// MigrationConflict before anything is touched.
func (s *LinkService) MigrateRelationship(ctx context.Context, user *models.UserPrincipal, table *models.Table, field *models.Field, newLink *models.LinkOptions) error {
	oldLink := field.LinkOptions()
	from, to := oldLink.Relationship, newLink.Relationship
	log.Printf("🔄 Migrating link %s from %s to %s", field.ID, from, to)

	wasMulti := constants.IsMultipleValueRelationship(from)
	willBeMulti := constants.IsMultipleValueRelationship(to)

	// narrowing checks run first so a conflict leaves everything untouched
	if wasMulti && !willBeMulti {
		multi, err := s.hasMultiElementCells(ctx, table.BaseID, table.ID, field.DBFieldName)
		if err != nil {
			return err
		}
		if multi {
			return apperrors.NewMigrationConflictError(field.ID, string(from), string(to),
				"records hold multiple linked values")
		}
	}
	if to == constants.RelationshipOneMany || to == constants.RelationshipOneOne {
		duplicated, err := s.hasDuplicateReferences(ctx, table.BaseID, table.ID, field.DBFieldName, willBeMulti)
		if err != nil {
			return err
		}
		if duplicated {
			return apperrors.NewMigrationConflictError(field.ID, string(from), string(to),
				"a foreign record is referenced by more than one record")
		}
	}

	// rewrite stored cell shapes
	if !wasMulti && willBeMulti {
		if err := s.wrapCellsInArrays(ctx, table.BaseID, table.ID, field.DBFieldName); err != nil {
			return err
		}
	}
	if wasMulti && !willBeMulti {
		if err := s.unwrapSingletonArrays(ctx, table.BaseID, table.ID, field.DBFieldName); err != nil {
			return err
		}
	}

	// move the FK layout
	migrated := *oldLink
	migrated.Relationship = to
	s.teardownFKLayout(ctx, table, field, oldLink)
	if err := s.provisionFKLayout(ctx, table, field, &migrated); err != nil {
		return err
	}

	field.Options = &models.FieldOptions{Link: &migrated}
	if err := s.fields.UpdateOptions(ctx, field.ID, field.Options); err != nil {
		return err
	}

	// flip the symmetric side, including its stored cell shapes
	if migrated.SymmetricFieldID != "" {
		if err := s.flipSymmetric(ctx, table, &migrated, to); err != nil {
			log.Printf("⚠️ Symmetric flip failed for %s: %v", migrated.SymmetricFieldID, err)
		}
	}

	if _, err := s.tables.BumpVersion(ctx, table.ID); err != nil {
		return err
	}
	s.graph.Invalidate(table.BaseID)
	s.broadcastFieldOp(ctx, table.ID, field.ID, models.OTOp{
		P:  []any{"fields", field.ID},
		OI: field,
	})
	log.Printf("✅ Migrated link %s to %s", field.ID, to)
	return nil
}

func (s *LinkService) flipSymmetric(ctx context.Context, table *models.Table, link *models.LinkOptions, to constants.Relationship) error {
	symmetric, err := s.fields.GetByID(ctx, link.SymmetricFieldID)
	if err != nil {
		return err
	}
	symLink := symmetric.LinkOptions()
	if symLink == nil {
		return nil
	}
	reversed := constants.ReverseRelationship(to)
	wasMulti := constants.IsMultipleValueRelationship(symLink.Relationship)
	willBeMulti := constants.IsMultipleValueRelationship(reversed)

	if !wasMulti && willBeMulti {
		if err := s.wrapCellsInArrays(ctx, table.BaseID, symmetric.TableID, symmetric.DBFieldName); err != nil {
			return err
		}
	}
	if wasMulti && !willBeMulti {
		if err := s.unwrapSingletonArrays(ctx, table.BaseID, symmetric.TableID, symmetric.DBFieldName); err != nil {
			return err
		}
	}

	symLink.Relationship = reversed
	symLink.FKHostTableName = link.FKHostTableName
	symLink.SelfKeyName = link.ForeignKeyName
	symLink.ForeignKeyName = link.SelfKeyName
	return s.fields.UpdateOptions(ctx, symmetric.ID, symmetric.Options)
}

// provisionFKLayout creates the physical FK home for a link and fills the
// naming triplet.
func (s *LinkService) provisionFKLayout(ctx context.Context, table *models.Table, field *models.Field, link *models.LinkOptions) error {
	switch link.Relationship {
	case constants.RelationshipManyOne, constants.RelationshipOneOne:
		// the cell column already exists, only the naming triplet moves
		link.FKHostTableName = table.ID
		link.SelfKeyName = constants.FieldID
		link.ForeignKeyName = field.DBFieldName
	case constants.RelationshipOneMany:
		link.FKHostTableName = link.ForeignTableID
		link.SelfKeyName = fkColumnName(field)
		link.ForeignKeyName = constants.FieldID
		err := s.provider.AddColumn(ctx, table.BaseID, link.ForeignTableID, schema.ColumnDefinition{
			Name: link.SelfKeyName, Type: "TEXT",
		})
		if err != nil && !apperrors.IsSchemaConflict(err) {
			return err
		}
	case constants.RelationshipManyMany:
		junction := junctionTableName(table.ID, link.ForeignTableID)
		link.FKHostTableName = junction
		link.SelfKeyName = junctionKeyName(table.ID)
		link.ForeignKeyName = junctionKeyName(link.ForeignTableID)
		return s.provider.CreatePhysicalTable(ctx,
			junctionDefinition(table.BaseID, junction, link.SelfKeyName, link.ForeignKeyName))
	}
	return nil
}

// teardownFKLayout drops the physical FK home of the previous
// relationship. Failures are logged; orphan columns are caught by the
// schema audit.
func (s *LinkService) teardownFKLayout(ctx context.Context, table *models.Table, field *models.Field, link *models.LinkOptions) {
	switch link.Relationship {
	case constants.RelationshipOneMany:
		if err := s.provider.DropColumn(ctx, table.BaseID, link.ForeignTableID, link.SelfKeyName); err != nil {
			log.Printf("⚠️ FK teardown: %v", err)
		}
	case constants.RelationshipManyMany:
		if err := s.provider.DropPhysicalTable(ctx, table.BaseID, link.FKHostTableName); err != nil {
			log.Printf("⚠️ Junction teardown: %v", err)
		}
	}
	// manyOne/oneOne: the FK carrier is the field's cell column, which must
	// survive the relationship change (and is dropped with the field)
}

// TeardownLinkField unwinds the relational layout ahead of field deletion:
// the symmetric counterpart is deleted with its column, then the shared FK
// home is dropped.
func (s *LinkService) TeardownLinkField(ctx context.Context, table *models.Table, field *models.Field) error {
	link := field.LinkOptions()
	if link == nil {
		return nil
	}

	// symmetric cleanup is best-effort: losing the counterpart must never
	// block deleting the field itself
	if link.SymmetricFieldID != "" {
		symmetric, err := s.fields.GetByID(ctx, link.SymmetricFieldID)
		switch {
		case err == nil:
			if err := s.fields.Delete(ctx, symmetric.ID); err != nil {
				log.Printf("⚠️ Symmetric field delete failed for %s: %v", symmetric.ID, err)
				break
			}
			if err := s.provider.DropColumn(ctx, table.BaseID, symmetric.TableID, symmetric.DBFieldName); err != nil {
				log.Printf("⚠️ Symmetric column drop failed: %v", err)
			}
			if _, err := s.tables.BumpVersion(ctx, symmetric.TableID); err != nil {
				log.Printf("⚠️ Version bump failed for %s: %v", symmetric.TableID, err)
			}
			s.broadcastFieldOp(ctx, symmetric.TableID, symmetric.ID, models.OTOp{
				P:  []any{"fields", symmetric.ID},
				OD: symmetric,
			})
		case !apperrors.IsNotFound(err):
			log.Printf("⚠️ Symmetric field lookup failed for %s: %v", link.SymmetricFieldID, err)
		}
	}

	s.teardownFKLayout(ctx, table, field, link)
	return nil
}

// hasMultiElementCells reports whether any array cell holds more than one
// linked record.
func (s *LinkService) hasMultiElementCells(ctx context.Context, baseID, tableID, column string) (bool, error) {
	quoted := query.QuoteIdent(column)
	sqlText := fmt.Sprintf(`
		SELECT EXISTS(
			SELECT 1 FROM %s.%s
			WHERE jsonb_typeof(%s) = 'array' AND jsonb_array_length(%s) > 1
		)`, query.QuoteIdent(baseID), query.QuoteIdent(tableID), quoted, quoted)
	var exists bool
	if err := s.db.QueryRowContext(ctx, sqlText).Scan(&exists); err != nil {
		return false, apperrors.FromContext("check link cells", err)
	}
	return exists, nil
}

// hasDuplicateReferences reports whether any foreign record is referenced
// from more than one host record, which the one-sided cardinalities forbid.
func (s *LinkService) hasDuplicateReferences(ctx context.Context, baseID, tableID, column string, multi bool) (bool, error) {
	quoted := query.QuoteIdent(column)
	qualified := query.QuoteIdent(baseID) + "." + query.QuoteIdent(tableID)
	var sqlText string
	if multi {
		sqlText = fmt.Sprintf(`
			SELECT EXISTS(
				SELECT elem->>'id' FROM %s, jsonb_array_elements(%s) elem
				GROUP BY elem->>'id' HAVING COUNT(*) > 1
			)`, qualified, quoted)
	} else {
		sqlText = fmt.Sprintf(`
			SELECT EXISTS(
				SELECT %s->>'id' FROM %s
				WHERE %s IS NOT NULL
				GROUP BY %s->>'id' HAVING COUNT(*) > 1
			)`, quoted, qualified, quoted, quoted)
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, sqlText).Scan(&exists); err != nil {
		return false, apperrors.FromContext("check link references", err)
	}
	return exists, nil
}

// wrapCellsInArrays rewrites object cells to singleton arrays.
func (s *LinkService) wrapCellsInArrays(ctx context.Context, baseID, tableID, column string) error {
	quoted := query.QuoteIdent(column)
	sqlText := fmt.Sprintf(`
		UPDATE %s.%s SET %s = jsonb_build_array(%s)
		WHERE %s IS NOT NULL AND jsonb_typeof(%s) = 'object'`,
		query.QuoteIdent(baseID), query.QuoteIdent(tableID),
		quoted, quoted, quoted, quoted)
	if _, err := s.db.ExecContext(ctx, sqlText); err != nil {
		return apperrors.FromContext("rewrite link cells", err)
	}
	return nil
}

// unwrapSingletonArrays rewrites one-element array cells to plain objects
// and empties the rest. Callers verified beforehand that no cell holds
// more than one element.
func (s *LinkService) unwrapSingletonArrays(ctx context.Context, baseID, tableID, column string) error {
	quoted := query.QuoteIdent(column)
	sqlText := fmt.Sprintf(`
		UPDATE %s.%s SET %s = CASE
			WHEN jsonb_array_length(%s) = 1 THEN %s->0
			ELSE NULL END
		WHERE jsonb_typeof(%s) = 'array'`,
		query.QuoteIdent(baseID), query.QuoteIdent(tableID),
		quoted, quoted, quoted, quoted)
	if _, err := s.db.ExecContext(ctx, sqlText); err != nil {
		return apperrors.FromContext("rewrite link cells", err)
	}
	return nil
}

func (s *LinkService) broadcastFieldOp(ctx context.Context, tableID, fieldID string, op models.OTOp) {
	collection := constants.CollectionFieldPrefix + tableID
	if err := s.publisher.PublishOp(ctx, collection, fieldID, []models.OTOp{op}); err != nil {
		log.Printf("⚠️ Failed to broadcast field op on %s/%s: %v", collection, fieldID, err)
	}
}
