package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// CollaboratorRepository persists role grants. The engine only stores them;
// evaluation happens in the permission checker.
type CollaboratorRepository struct {
	exec Executor
}

// NewCollaboratorRepository creates a new CollaboratorRepository
func NewCollaboratorRepository(db *sql.DB) *CollaboratorRepository {
	return &CollaboratorRepository{exec: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *CollaboratorRepository) WithTx(tx *sql.Tx) *CollaboratorRepository {
	return &CollaboratorRepository{exec: tx}
}

// Upsert inserts a grant, or updates the role when the principal already has
// one on the resource.
func (r *CollaboratorRepository) Upsert(ctx context.Context, c *models.Collaborator) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, principal_id, resource_type, resource_id, role, created_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (principal_id, resource_type, resource_id)
		DO UPDATE SET role = EXCLUDED.role`, constants.TableCollabMeta)
	_, err := r.exec.ExecContext(ctx, query,
		c.ID, c.PrincipalID, c.ResourceType, c.ResourceID, c.Role, c.CreatedTime)
	if err != nil {
		return apperrors.FromContext("upsert collaborator", err)
	}
	return nil
}

// ListByResource returns the grants on one resource.
func (r *CollaboratorRepository) ListByResource(ctx context.Context, resourceType, resourceID string) ([]*models.Collaborator, error) {
	query := fmt.Sprintf(`
		SELECT id, principal_id, resource_type, resource_id, role, created_time
		FROM %s WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_time ASC`, constants.TableCollabMeta)

	rows, err := r.exec.QueryContext(ctx, query, resourceType, resourceID)
	if err != nil {
		return nil, apperrors.FromContext("list collaborators", err)
	}
	defer rows.Close()

	var collaborators []*models.Collaborator
	for rows.Next() {
		c := &models.Collaborator{}
		if err := rows.Scan(&c.ID, &c.PrincipalID, &c.ResourceType, &c.ResourceID,
			&c.Role, &c.CreatedTime); err != nil {
			return nil, apperrors.FromContext("scan collaborator", err)
		}
		collaborators = append(collaborators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("list collaborators", err)
	}
	return collaborators, nil
}

// GetRole returns the role of principalID on the resource, or NotFound.
func (r *CollaboratorRepository) GetRole(ctx context.Context, principalID, resourceType, resourceID string) (string, error) {
	query := fmt.Sprintf(`
		SELECT role FROM %s
		WHERE principal_id = $1 AND resource_type = $2 AND resource_id = $3`,
		constants.TableCollabMeta)
	var role string
	err := r.exec.QueryRowContext(ctx, query, principalID, resourceType, resourceID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", apperrors.NewNotFoundError("collaborator", principalID)
	}
	if err != nil {
		return "", apperrors.FromContext("get collaborator role", err)
	}
	return role, nil
}

// Delete removes a grant.
func (r *CollaboratorRepository) Delete(ctx context.Context, principalID, resourceType, resourceID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE principal_id = $1 AND resource_type = $2 AND resource_id = $3`,
		constants.TableCollabMeta)
	if _, err := r.exec.ExecContext(ctx, query, principalID, resourceType, resourceID); err != nil {
		return apperrors.FromContext("delete collaborator", err)
	}
	return nil
}

// DeleteByResource removes every grant on a resource. Called on cascade.
func (r *CollaboratorRepository) DeleteByResource(ctx context.Context, resourceType, resourceID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE resource_type = $1 AND resource_id = $2`,
		constants.TableCollabMeta)
	if _, err := r.exec.ExecContext(ctx, query, resourceType, resourceID); err != nil {
		return apperrors.FromContext("delete resource collaborators", err)
	}
	return nil
}
