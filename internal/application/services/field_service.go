package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/easyspace-ai/easygrid/internal/domain/ports"
	"github.com/easyspace-ai/easygrid/internal/domain/schema"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/formula"
	"github.com/easyspace-ai/easygrid/pkg/models"
	"github.com/easyspace-ai/easygrid/pkg/utils"
)

// CreateFieldInput is the request shape for adding a field to a table.
// Options carries the flat JSON of the type's option record.
type CreateFieldInput struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Options     json.RawMessage `json:"options,omitempty"`
	Required    bool            `json:"required,omitempty"`
	Unique      bool            `json:"unique,omitempty"`
	IsPrimary   bool            `json:"isPrimary,omitempty"`
}

// UpdateFieldInput carries the mutable attributes of a field. Nil members
// are left untouched. Type and db_field_name are fixed at create time.
type UpdateFieldInput struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Options     json.RawMessage `json:"options,omitempty"`
	Required    *bool           `json:"required,omitempty"`
	Unique      *bool           `json:"unique,omitempty"`
}

// FieldService is the field registry: it owns field metadata, the paired
// physical DDL, and the schema broadcast that follows every mutation. Link
// fields additionally run through the LinkService for their relational
// layout.
type FieldService struct {
	provider  persistence.SchemaProvider
	fields    *persistence.FieldRepository
	tables    *persistence.TableRepository
	txManager *persistence.TransactionManager
	graph     *DependencyGraphService
	links     *LinkService
	publisher ports.OpPublisher
	checker   ports.PermissionChecker
}

// NewFieldService creates a new FieldService
func NewFieldService(provider persistence.SchemaProvider, fields *persistence.FieldRepository, tables *persistence.TableRepository, txManager *persistence.TransactionManager, graph *DependencyGraphService, publisher ports.OpPublisher, checker ports.PermissionChecker) *FieldService {
	return &FieldService{
		provider:  provider,
		fields:    fields,
		tables:    tables,
		txManager: txManager,
		graph:     graph,
		publisher: publisher,
		checker:   checker,
	}
}

// SetLinkService wires the link manager after construction; the two
// services reference each other.
func (s *FieldService) SetLinkService(links *LinkService) {
	s.links = links
}

// GetField returns one field by id.
func (s *FieldService) GetField(ctx context.Context, id string) (*models.Field, error) {
	return s.fields.GetByID(ctx, id)
}

// GetFields returns a table's fields in column order.
func (s *FieldService) GetFields(ctx context.Context, tableID string) ([]*models.Field, error) {
	return s.fields.ListByTable(ctx, tableID)
}

// GetFieldsByNames resolves display names to fields, failing on the first
// unknown name.
func (s *FieldService) GetFieldsByNames(ctx context.Context, tableID string, names []string) ([]*models.Field, error) {
	all, err := s.fields.ListByTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*models.Field, len(all))
	for _, f := range all {
		byName[f.Name] = f
	}
	result := make([]*models.Field, 0, len(names))
	for _, name := range names {
		f, ok := byName[name]
		if !ok {
			return nil, apperrors.NewNotFoundError("field", name)
		}
		result = append(result, f)
	}
	return result, nil
}

// CreateField validates, derives the physical column, adds it, then writes
// metadata. When the metadata write fails the column is dropped again; DDL
// cannot join the transaction, so compensation keeps the two sides
// aligned.
func (s *FieldService) CreateField(ctx context.Context, user *models.UserPrincipal, tableID string, input CreateFieldInput) (*models.Field, error) {
	table, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceTable, ID: tableID}, constants.ActionUpdate); err != nil {
		return nil, err
	}

	fieldType := constants.FieldType(input.Type)
	if !constants.IsValidFieldType(fieldType) {
		return nil, apperrors.NewInvalidFieldTypeError(input.Type)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewInvalidFieldNameError("field name must not be empty")
	}
	if len(name) > constants.MaxFieldNameLength {
		return nil, apperrors.NewInvalidFieldNameError(
			fmt.Sprintf("field name exceeds %d characters", constants.MaxFieldNameLength))
	}

	existing, err := s.fields.ListByTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	for _, f := range existing {
		if f.Name == name {
			return nil, apperrors.NewNameConflictError("field", name)
		}
		if input.IsPrimary && f.IsPrimary {
			return nil, apperrors.NewValidationError("isPrimary",
				fmt.Sprintf("table already has primary field '%s'", f.ID))
		}
	}

	options, err := models.ParseOptions(fieldType, input.Options)
	if err != nil {
		return nil, apperrors.NewInvalidOptionError("options", err.Error())
	}

	field := &models.Field{
		ID:               utils.GenerateFieldID(),
		TableID:          tableID,
		Name:             name,
		Description:      input.Description,
		Type:             fieldType,
		Options:          options,
		Required:         input.Required,
		Unique:           input.Unique,
		IsPrimary:        input.IsPrimary,
		Order:            nextFieldOrder(existing),
		CreatedTime:      time.Now(),
		LastModifiedTime: time.Now(),
		CreatedBy:        user.ID,
	}
	field.DBFieldName = s.assignDBFieldName(name, existing)
	colType, defaultExpr, check := s.provider.MapFieldType(fieldType)
	field.DBFieldType = colType

	if err := s.checkComputedCycle(ctx, table.BaseID, field, existing, nil); err != nil {
		return nil, err
	}

	// Link fields derive their full relational layout first; the
	// LinkService fills FK names and may create junction tables and the
	// symmetric field.
	if fieldType == constants.FieldTypeLink {
		if err := s.links.PrepareLinkField(ctx, table, field, existing); err != nil {
			return nil, err
		}
	}

	log.Printf("➕ Creating field %s (%s) on table %s", field.Name, field.Type, tableID)
	if err := s.provider.AddColumn(ctx, table.BaseID, tableID, schema.ColumnDefinition{
		Name:    field.DBFieldName,
		Type:    colType,
		Default: defaultExpr,
		Check:   check,
	}); err != nil {
		if fieldType == constants.FieldTypeLink {
			s.links.CompensateLinkField(ctx, table, field)
		}
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.fields.WithTx(tx)
		if err := repo.Create(ctx, field); err != nil {
			return err
		}
		if _, err := s.tables.WithTx(tx).BumpVersion(ctx, tableID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		// compensation: the metadata write failed, remove the column again
		log.Printf("⚠️ Rolling back column %s.%s after metadata failure", tableID, field.DBFieldName)
		if dropErr := s.provider.DropColumn(ctx, table.BaseID, tableID, field.DBFieldName); dropErr != nil {
			log.Printf("❌ Compensation failed for %s.%s: %v", tableID, field.DBFieldName, dropErr)
		}
		if fieldType == constants.FieldTypeLink {
			s.links.CompensateLinkField(ctx, table, field)
		}
		return nil, err
	}

	if fieldType == constants.FieldTypeLink {
		// best effort: a failed symmetric field leaves a one-way link
		if err := s.links.CreateSymmetricField(ctx, user, table, field); err != nil {
			log.Printf("⚠️ Symmetric field creation failed for %s: %v", field.ID, err)
		}
	}

	if field.Unique {
		if err := s.provider.AddUniqueConstraint(ctx, table.BaseID, tableID, field.DBFieldName); err != nil {
			log.Printf("⚠️ Unique constraint on %s.%s failed: %v", tableID, field.DBFieldName, err)
		}
	}

	s.graph.Invalidate(table.BaseID)
	s.broadcastFieldOp(ctx, tableID, field.ID, models.OTOp{
		P:  []any{"fields", field.ID},
		OI: field,
	})
	log.Printf("✅ Created field %s (%s)", field.ID, field.Name)
	return field, nil
}

// UpdateField applies metadata changes. A relationship change on a link
// field runs the full migration path in the LinkService; formula changes
// re-run cycle detection before anything is persisted.
func (s *FieldService) UpdateField(ctx context.Context, user *models.UserPrincipal, fieldID string, input UpdateFieldInput) (*models.Field, error) {
	field, err := s.fields.GetByID(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	table, err := s.tables.GetByID(ctx, field.TableID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceTable, ID: field.TableID}, constants.ActionUpdate); err != nil {
		return nil, err
	}

	tableFields, err := s.fields.ListByTable(ctx, field.TableID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewInvalidFieldNameError("field name must not be empty")
		}
		if len(name) > constants.MaxFieldNameLength {
			return nil, apperrors.NewInvalidFieldNameError(
				fmt.Sprintf("field name exceeds %d characters", constants.MaxFieldNameLength))
		}
		for _, f := range tableFields {
			if f.ID != fieldID && f.Name == name {
				return nil, apperrors.NewNameConflictError("field", name)
			}
		}
		field.Name = name
	}
	if input.Description != nil {
		field.Description = *input.Description
	}
	if input.Required != nil {
		field.Required = *input.Required
	}
	if input.Unique != nil {
		field.Unique = *input.Unique
	}

	if len(input.Options) > 0 {
		newOptions, err := models.ParseOptions(field.Type, input.Options)
		if err != nil {
			return nil, apperrors.NewInvalidOptionError("options", err.Error())
		}

		if field.Type == constants.FieldTypeLink {
			oldLink := field.Options.Link
			newLink := newOptions.Link
			if newLink.ForeignTableID != oldLink.ForeignTableID {
				return nil, apperrors.NewInvalidOptionError("foreignTableId",
					"a link's foreign table cannot change; delete and recreate the field")
			}
			if newLink.Relationship != oldLink.Relationship {
				if err := s.links.MigrateRelationship(ctx, user, table, field, newLink); err != nil {
					return nil, err
				}
				// migration persisted options itself; reload
				return s.fields.GetByID(ctx, fieldID)
			}
		}

		candidate := *field
		candidate.Options = newOptions
		if err := s.checkComputedCycle(ctx, table.BaseID, &candidate, tableFields, field); err != nil {
			return nil, err
		}
		field.Options = newOptions
	}

	if err := s.fields.Update(ctx, field); err != nil {
		return nil, err
	}
	if _, err := s.tables.BumpVersion(ctx, field.TableID); err != nil {
		return nil, err
	}

	s.graph.Invalidate(table.BaseID)
	s.broadcastFieldOp(ctx, field.TableID, field.ID, models.OTOp{
		P:  []any{"fields", field.ID},
		OI: field,
	})
	return field, nil
}

// DeleteField removes metadata and the physical column. Link fields first
// unwind their relational layout (junction table, FK column, symmetric
// pairing).
func (s *FieldService) DeleteField(ctx context.Context, user *models.UserPrincipal, fieldID string) error {
	field, err := s.fields.GetByID(ctx, fieldID)
	if err != nil {
		return err
	}
	table, err := s.tables.GetByID(ctx, field.TableID)
	if err != nil {
		return err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceTable, ID: field.TableID}, constants.ActionUpdate); err != nil {
		return err
	}
	if field.IsPrimary {
		return apperrors.NewCannotDeletePrimaryError(field.ID)
	}

	if field.Type == constants.FieldTypeLink {
		if err := s.links.TeardownLinkField(ctx, table, field); err != nil {
			return err
		}
	}

	log.Printf("➖ Deleting field %s (%s) from table %s", field.ID, field.Name, field.TableID)
	if err := s.fields.Delete(ctx, fieldID); err != nil {
		return err
	}
	if err := s.provider.DropColumn(ctx, table.BaseID, field.TableID, field.DBFieldName); err != nil {
		// metadata row is gone; an orphan column is repairable by the
		// schema audit, a ghost field is not
		log.Printf("⚠️ Column drop failed for %s.%s: %v", field.TableID, field.DBFieldName, err)
	}
	if _, err := s.tables.BumpVersion(ctx, field.TableID); err != nil {
		return err
	}

	s.graph.Invalidate(table.BaseID)
	s.broadcastFieldOp(ctx, field.TableID, field.ID, models.OTOp{
		P:  []any{"fields", field.ID},
		OD: field,
	})
	return nil
}

// assignDBFieldName sanitizes and dedupes the physical column name against
// the table's existing columns.
func (s *FieldService) assignDBFieldName(name string, existing []*models.Field) string {
	taken := make(map[string]bool, len(existing))
	for _, f := range existing {
		taken[f.DBFieldName] = true
	}
	return utils.DedupeDBName(utils.SanitizeDBName(name), taken)
}

// checkComputedCycle rejects computed-field configurations that would close
// a dependency loop. previous is non-nil on update.
func (s *FieldService) checkComputedCycle(ctx context.Context, baseID string, field *models.Field, tableFields []*models.Field, previous *models.Field) error {
	if !field.IsComputed() || field.Options == nil {
		return nil
	}
	graph, err := s.graph.Get(ctx, baseID)
	if err != nil {
		return err
	}

	var deps []string
	switch field.Type {
	case constants.FieldTypeFormula:
		tokens, err := formula.ExtractReferences(field.Options.Formula.Expression)
		if err != nil {
			return apperrors.NewInvalidOptionError("expression", err.Error())
		}
		for _, token := range tokens {
			ref := resolveFieldToken(token, tableFields)
			if ref == nil {
				return apperrors.NewInvalidOptionError("expression",
					fmt.Sprintf("unknown field reference '%s'", token))
			}
			deps = append(deps, ref.ID)
		}
	case constants.FieldTypeRollup:
		deps = append(deps, field.Options.Rollup.LinkFieldID)
		if field.Options.Rollup.RollupFieldID != "" {
			deps = append(deps, field.Options.Rollup.RollupFieldID)
		}
	case constants.FieldTypeLookup:
		deps = append(deps, field.Options.Lookup.LinkFieldID, field.Options.Lookup.LookupFieldID)
	case constants.FieldTypeCount:
		deps = append(deps, field.Options.Count.LinkFieldID)
	}
	return graph.CheckCycle(field.ID, deps)
}

// broadcastFieldOp publishes a schema change on the table's field
// collection. Broadcast failures are logged, never surfaced; the write
// already happened.
func (s *FieldService) broadcastFieldOp(ctx context.Context, tableID, fieldID string, op models.OTOp) {
	collection := constants.CollectionFieldPrefix + tableID
	if err := s.publisher.PublishOp(ctx, collection, fieldID, []models.OTOp{op}); err != nil {
		log.Printf("⚠️ Failed to broadcast field op on %s/%s: %v", collection, fieldID, err)
	}
}

func nextFieldOrder(existing []*models.Field) int {
	max := -1
	for _, f := range existing {
		if f.Order > max {
			max = f.Order
		}
	}
	return max + 1
}
