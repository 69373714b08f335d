package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/easyspace-ai/easygrid/internal/domain/ports"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
	"github.com/easyspace-ai/easygrid/pkg/utils"
)

// SpaceService owns the space and base lifecycle. A base is the unit of
// physical isolation: creating one creates its schema namespace, deleting
// one drops the namespace with every table in it.
type SpaceService struct {
	provider persistence.SchemaProvider
	spaces   *persistence.SpaceRepository
	bases    *persistence.BaseRepository
	tables   *persistence.TableRepository
	fields   *persistence.FieldRepository
	views    *persistence.ViewRepository
	collabs  *persistence.CollaboratorRepository
	checker  ports.PermissionChecker
}

// NewSpaceService creates a new SpaceService
func NewSpaceService(provider persistence.SchemaProvider, spaces *persistence.SpaceRepository, bases *persistence.BaseRepository, tables *persistence.TableRepository, fields *persistence.FieldRepository, views *persistence.ViewRepository, collabs *persistence.CollaboratorRepository, checker ports.PermissionChecker) *SpaceService {
	return &SpaceService{
		provider: provider,
		spaces:   spaces,
		bases:    bases,
		tables:   tables,
		fields:   fields,
		views:    views,
		collabs:  collabs,
		checker:  checker,
	}
}

// CreateSpace creates a space owned by the caller, who becomes its first
// collaborator.
func (s *SpaceService) CreateSpace(ctx context.Context, user *models.UserPrincipal, name string) (*models.Space, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("name", "space name must not be empty")
	}
	exists, err := s.spaces.NameExists(ctx, user.ID, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.NewNameConflictError("space", name)
	}

	space := &models.Space{
		ID:               utils.GenerateSpaceID(),
		Name:             name,
		OwnerID:          user.ID,
		CreatedTime:      time.Now(),
		LastModifiedTime: time.Now(),
	}
	if err := s.spaces.Create(ctx, space); err != nil {
		return nil, err
	}

	owner := &models.Collaborator{
		ID:           utils.GenerateCollaboratorID(),
		PrincipalID:  user.ID,
		ResourceType: constants.ResourceSpace,
		ResourceID:   space.ID,
		Role:         "owner",
		CreatedTime:  time.Now(),
	}
	if err := s.collabs.Upsert(ctx, owner); err != nil {
		log.Printf("⚠️ Owner grant failed for space %s: %v", space.ID, err)
	}
	log.Printf("✅ Created space %s (%s)", space.ID, name)
	return space, nil
}

// GetSpace returns one space.
func (s *SpaceService) GetSpace(ctx context.Context, id string) (*models.Space, error) {
	return s.spaces.GetByID(ctx, id)
}

// ListSpaces returns the caller's spaces.
func (s *SpaceService) ListSpaces(ctx context.Context, user *models.UserPrincipal) ([]*models.Space, error) {
	return s.spaces.List(ctx, user.ID)
}

// RenameSpace updates the display name.
func (s *SpaceService) RenameSpace(ctx context.Context, user *models.UserPrincipal, id, name string) error {
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceSpace, ID: id}, constants.ActionUpdate); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.NewValidationError("name", "space name must not be empty")
	}
	return s.spaces.Rename(ctx, id, name)
}

// DeleteSpace soft-deletes the space after cascading through its bases.
func (s *SpaceService) DeleteSpace(ctx context.Context, user *models.UserPrincipal, id string) error {
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceSpace, ID: id}, constants.ActionDelete); err != nil {
		return err
	}
	bases, err := s.bases.ListBySpace(ctx, id)
	if err != nil {
		return err
	}
	for _, base := range bases {
		if err := s.DeleteBase(ctx, user, base.ID); err != nil {
			return err
		}
	}
	if err := s.collabs.DeleteByResource(ctx, constants.ResourceSpace, id); err != nil {
		log.Printf("⚠️ Collaborator cleanup for space %s failed: %v", id, err)
	}
	log.Printf("🔥 Deleting space %s", id)
	return s.spaces.SoftDelete(ctx, id)
}

// CreateBase creates a base and its physical schema namespace. When the
// metadata write fails the namespace is dropped again.
func (s *SpaceService) CreateBase(ctx context.Context, user *models.UserPrincipal, spaceID, name, icon string) (*models.Base, error) {
	if _, err := s.spaces.GetByID(ctx, spaceID); err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceSpace, ID: spaceID}, constants.ActionUpdate); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("name", "base name must not be empty")
	}
	exists, err := s.bases.NameExists(ctx, spaceID, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.NewNameConflictError("base", name)
	}

	base := &models.Base{
		ID:               utils.GenerateBaseID(),
		SpaceID:          spaceID,
		Name:             name,
		Icon:             icon,
		CreatedTime:      time.Now(),
		LastModifiedTime: time.Now(),
	}
	if err := s.provider.CreateSchema(ctx, base.ID); err != nil {
		return nil, err
	}
	if err := s.bases.Create(ctx, base); err != nil {
		log.Printf("⚠️ Rolling back schema %s after metadata failure", base.ID)
		if dropErr := s.provider.DropSchema(ctx, base.ID); dropErr != nil {
			log.Printf("❌ Compensation failed for base %s: %v", base.ID, dropErr)
		}
		return nil, err
	}
	log.Printf("✅ Created base %s (%s) in space %s", base.ID, name, spaceID)
	return base, nil
}

// GetBase returns one base.
func (s *SpaceService) GetBase(ctx context.Context, id string) (*models.Base, error) {
	return s.bases.GetByID(ctx, id)
}

// ListBases returns the bases of a space.
func (s *SpaceService) ListBases(ctx context.Context, spaceID string) ([]*models.Base, error) {
	return s.bases.ListBySpace(ctx, spaceID)
}

// UpdateBase persists name and icon changes.
func (s *SpaceService) UpdateBase(ctx context.Context, user *models.UserPrincipal, base *models.Base) error {
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceBase, ID: base.ID}, constants.ActionUpdate); err != nil {
		return err
	}
	return s.bases.Update(ctx, base)
}

// DeleteBase removes the base: every table's metadata, then the schema
// namespace, which takes all physical tables with it.
func (s *SpaceService) DeleteBase(ctx context.Context, user *models.UserPrincipal, baseID string) error {
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceBase, ID: baseID}, constants.ActionDelete); err != nil {
		return err
	}
	tables, err := s.tables.ListByBase(ctx, baseID)
	if err != nil {
		return err
	}
	for _, table := range tables {
		if err := s.views.DeleteByTable(ctx, table.ID); err != nil {
			return err
		}
		if err := s.fields.DeleteByTable(ctx, table.ID); err != nil {
			return err
		}
		if err := s.tables.Delete(ctx, table.ID); err != nil {
			return err
		}
	}
	if err := s.collabs.DeleteByResource(ctx, constants.ResourceBase, baseID); err != nil {
		log.Printf("⚠️ Collaborator cleanup for base %s failed: %v", baseID, err)
	}
	log.Printf("🔥 Deleting base %s with %d tables", baseID, len(tables))
	if err := s.bases.Delete(ctx, baseID); err != nil {
		return err
	}
	return s.provider.DropSchema(ctx, baseID)
}

// AddCollaborator grants a role on a space or base.
func (s *SpaceService) AddCollaborator(ctx context.Context, user *models.UserPrincipal, resourceType, resourceID, principalID, role string) (*models.Collaborator, error) {
	if err := s.checker.Can(ctx, user, ports.Resource{Type: resourceType, ID: resourceID}, constants.ActionManageCollaborator); err != nil {
		return nil, err
	}
	c := &models.Collaborator{
		ID:           utils.GenerateCollaboratorID(),
		PrincipalID:  principalID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Role:         role,
		CreatedTime:  time.Now(),
	}
	if err := s.collabs.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCollaborators returns the grants on a resource.
func (s *SpaceService) ListCollaborators(ctx context.Context, resourceType, resourceID string) ([]*models.Collaborator, error) {
	return s.collabs.ListByResource(ctx, resourceType, resourceID)
}

// RemoveCollaborator revokes a grant.
func (s *SpaceService) RemoveCollaborator(ctx context.Context, user *models.UserPrincipal, resourceType, resourceID, principalID string) error {
	if err := s.checker.Can(ctx, user, ports.Resource{Type: resourceType, ID: resourceID}, constants.ActionManageCollaborator); err != nil {
		return err
	}
	return s.collabs.Delete(ctx, principalID, resourceType, resourceID)
}
