package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/easyspace-ai/easygrid/internal/domain/ports"
	"github.com/easyspace-ai/easygrid/internal/domain/schema"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
	"github.com/easyspace-ai/easygrid/pkg/utils"
)

// CreateTableInput is the request shape for creating a table, optionally
// with its initial fields.
type CreateTableInput struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Fields      []CreateFieldInput `json:"fields,omitempty"`
}

// TableService owns the table lifecycle: the metadata row, the physical
// table with its system columns, the default view, and the cascade on
// delete.
type TableService struct {
	provider persistence.SchemaProvider
	tables   *persistence.TableRepository
	fields   *persistence.FieldRepository
	views    *persistence.ViewRepository
	fieldSvc *FieldService
	links    *LinkService
	graph    *DependencyGraphService
	checker  ports.PermissionChecker
}

// NewTableService creates a new TableService
func NewTableService(provider persistence.SchemaProvider, tables *persistence.TableRepository, fields *persistence.FieldRepository, views *persistence.ViewRepository, fieldSvc *FieldService, links *LinkService, graph *DependencyGraphService, checker ports.PermissionChecker) *TableService {
	return &TableService{
		provider: provider,
		tables:   tables,
		fields:   fields,
		views:    views,
		fieldSvc: fieldSvc,
		links:    links,
		graph:    graph,
		checker:  checker,
	}
}

func hasPrimaryInput(fields []CreateFieldInput) bool {
	for _, f := range fields {
		if f.IsPrimary {
			return true
		}
	}
	return false
}

// GetTable returns one table.
func (s *TableService) GetTable(ctx context.Context, tableID string) (*models.Table, error) {
	return s.tables.GetByID(ctx, tableID)
}

// ListTables returns the tables of a base.
func (s *TableService) ListTables(ctx context.Context, baseID string) ([]*models.Table, error) {
	return s.tables.ListByBase(ctx, baseID)
}

// CreateTable provisions the physical table with its system columns, the
// metadata row, a default grid view and any initial fields. A failed
// metadata write drops the physical table again.
func (s *TableService) CreateTable(ctx context.Context, user *models.UserPrincipal, baseID string, input CreateTableInput) (*models.Table, error) {
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceBase, ID: baseID}, constants.ActionUpdate); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name", "table name must not be empty")
	}
	exists, err := s.tables.NameExists(ctx, baseID, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.NewNameConflictError("table", name)
	}

	table := &models.Table{
		ID:               utils.GenerateTableID(),
		BaseID:           baseID,
		Name:             name,
		Description:      input.Description,
		Version:          1,
		CreatedTime:      time.Now(),
		LastModifiedTime: time.Now(),
	}

	log.Printf("📐 Creating table %s (%s) in base %s", table.ID, name, baseID)
	if err := s.provider.CreatePhysicalTable(ctx, schema.TableDefinition{
		SchemaName: baseID,
		TableName:  table.ID,
		Columns:    persistence.SystemColumnDefinitions(),
	}); err != nil {
		return nil, err
	}

	if err := s.tables.Create(ctx, table); err != nil {
		log.Printf("⚠️ Rolling back physical table %s after metadata failure", table.ID)
		if dropErr := s.provider.DropPhysicalTable(ctx, baseID, table.ID); dropErr != nil {
			log.Printf("❌ Compensation failed for table %s: %v", table.ID, dropErr)
		}
		return nil, err
	}

	view := &models.View{
		ID:               utils.GenerateViewID(),
		TableID:          table.ID,
		Name:             "Grid view",
		Type:             "grid",
		Order:            0,
		CreatedTime:      time.Now(),
		LastModifiedTime: time.Now(),
	}
	if err := s.views.Create(ctx, view); err != nil {
		log.Printf("⚠️ Default view creation failed for %s: %v", table.ID, err)
	}

	// every table carries exactly one primary field; default one in when
	// the caller supplied none
	if len(input.Fields) == 0 {
		input.Fields = []CreateFieldInput{{
			Name: "Name", Type: string(constants.FieldTypeShortText), IsPrimary: true,
		}}
	} else if !hasPrimaryInput(input.Fields) {
		input.Fields[0].IsPrimary = true
	}

	for _, fieldInput := range input.Fields {
		if _, err := s.fieldSvc.CreateField(ctx, user, table.ID, fieldInput); err != nil {
			return nil, fmt.Errorf("failed to create initial field '%s': %w", fieldInput.Name, err)
		}
	}

	s.graph.Invalidate(baseID)
	log.Printf("✅ Created table %s (%s)", table.ID, name)
	return table, nil
}

// UpdateTable renames a table or changes its description.
func (s *TableService) UpdateTable(ctx context.Context, user *models.UserPrincipal, tableID string, name, description *string) (*models.Table, error) {
	table, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceTable, ID: tableID}, constants.ActionUpdate); err != nil {
		return nil, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, apperrors.NewValidationError("name", "table name must not be empty")
		}
		if trimmed != table.Name {
			exists, err := s.tables.NameExists(ctx, table.BaseID, trimmed)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, apperrors.NewNameConflictError("table", trimmed)
			}
			table.Name = trimmed
		}
	}
	if description != nil {
		table.Description = *description
	}
	if err := s.tables.Update(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

// DeleteTable removes the table and everything hanging off it: inbound
// link fields on other tables, its own fields' relational layout, views,
// metadata and the physical table.
func (s *TableService) DeleteTable(ctx context.Context, user *models.UserPrincipal, tableID string) error {
	table, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceBase, ID: table.BaseID}, constants.ActionUpdate); err != nil {
		return err
	}

	// inbound links from other tables die with this table
	if err := s.teardownInboundLinks(ctx, user, table); err != nil {
		return err
	}

	// own link fields own junction tables and FK columns elsewhere
	ownFields, err := s.fields.ListByTable(ctx, tableID)
	if err != nil {
		return err
	}
	for _, f := range ownFields {
		if f.Type == constants.FieldTypeLink {
			if err := s.links.TeardownLinkField(ctx, table, f); err != nil {
				log.Printf("⚠️ Link teardown for %s failed: %v", f.ID, err)
			}
		}
	}

	log.Printf("🔥 Deleting table %s (%s)", tableID, table.Name)
	if err := s.views.DeleteByTable(ctx, tableID); err != nil {
		return err
	}
	if err := s.fields.DeleteByTable(ctx, tableID); err != nil {
		return err
	}
	if err := s.tables.Delete(ctx, tableID); err != nil {
		return err
	}
	if err := s.provider.DropPhysicalTable(ctx, table.BaseID, tableID); err != nil {
		log.Printf("⚠️ Physical drop of %s failed: %v", tableID, err)
	}

	s.graph.Invalidate(table.BaseID)
	return nil
}

// teardownInboundLinks deletes link fields on other tables that target the
// table being removed.
func (s *TableService) teardownInboundLinks(ctx context.Context, user *models.UserPrincipal, table *models.Table) error {
	siblings, err := s.tables.ListByBase(ctx, table.BaseID)
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling.ID == table.ID {
			continue
		}
		fields, err := s.fields.ListByTable(ctx, sibling.ID)
		if err != nil {
			return err
		}
		for _, f := range fields {
			link := f.LinkOptions()
			if link == nil || link.ForeignTableID != table.ID {
				continue
			}
			if err := s.fieldSvc.DeleteField(ctx, user, f.ID); err != nil {
				// the symmetric half may already be gone via pairing
				if !apperrors.IsNotFound(err) {
					return err
				}
			}
		}
	}
	return nil
}

// CreateView stores a new view of a table.
func (s *TableService) CreateView(ctx context.Context, user *models.UserPrincipal, tableID string, view *models.View) (*models.View, error) {
	if _, err := s.tables.GetByID(ctx, tableID); err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceTable, ID: tableID}, constants.ActionUpdate); err != nil {
		return nil, err
	}
	view.ID = utils.GenerateViewID()
	view.TableID = tableID
	if view.Type == "" {
		view.Type = "grid"
	}
	view.CreatedTime = time.Now()
	view.LastModifiedTime = time.Now()
	if err := s.views.Create(ctx, view); err != nil {
		return nil, err
	}
	return view, nil
}

// ListViews returns a table's views.
func (s *TableService) ListViews(ctx context.Context, tableID string) ([]*models.View, error) {
	return s.views.ListByTable(ctx, tableID)
}

// UpdateView persists view changes.
func (s *TableService) UpdateView(ctx context.Context, user *models.UserPrincipal, view *models.View) error {
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceView, ID: view.ID}, constants.ActionUpdate); err != nil {
		return err
	}
	return s.views.Update(ctx, view)
}

// DeleteView removes one view.
func (s *TableService) DeleteView(ctx context.Context, user *models.UserPrincipal, viewID string) error {
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceView, ID: viewID}, constants.ActionDelete); err != nil {
		return err
	}
	return s.views.Delete(ctx, viewID)
}
