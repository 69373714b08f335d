package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// SpaceRepository persists space metadata. Deletion is soft: DeletedTime is
// set and the row is excluded from reads until purged.
type SpaceRepository struct {
	exec Executor
}

// NewSpaceRepository creates a new SpaceRepository
func NewSpaceRepository(db *sql.DB) *SpaceRepository {
	return &SpaceRepository{exec: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *SpaceRepository) WithTx(tx *sql.Tx) *SpaceRepository {
	return &SpaceRepository{exec: tx}
}

// Create inserts a space row.
func (r *SpaceRepository) Create(ctx context.Context, space *models.Space) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, owner_id, created_time, last_modified_time)
		VALUES ($1, $2, $3, $4, $5)`, constants.TableSpaceMeta)
	_, err := r.exec.ExecContext(ctx, query,
		space.ID, space.Name, space.OwnerID, space.CreatedTime, space.LastModifiedTime)
	if err != nil {
		return apperrors.FromContext("create space", err)
	}
	return nil
}

// GetByID returns a live (not soft-deleted) space.
func (r *SpaceRepository) GetByID(ctx context.Context, id string) (*models.Space, error) {
	query := fmt.Sprintf(`
		SELECT id, name, owner_id, created_time, last_modified_time
		FROM %s WHERE id = $1 AND deleted_time IS NULL`, constants.TableSpaceMeta)

	space := &models.Space{}
	err := r.exec.QueryRowContext(ctx, query, id).Scan(
		&space.ID, &space.Name, &space.OwnerID, &space.CreatedTime, &space.LastModifiedTime)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("space", id)
	}
	if err != nil {
		return nil, apperrors.FromContext("get space", err)
	}
	return space, nil
}

// List returns all live spaces owned by ownerID, newest first.
func (r *SpaceRepository) List(ctx context.Context, ownerID string) ([]*models.Space, error) {
	query := fmt.Sprintf(`
		SELECT id, name, owner_id, created_time, last_modified_time
		FROM %s WHERE owner_id = $1 AND deleted_time IS NULL
		ORDER BY created_time DESC`, constants.TableSpaceMeta)

	rows, err := r.exec.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, apperrors.FromContext("list spaces", err)
	}
	defer rows.Close()

	var spaces []*models.Space
	for rows.Next() {
		space := &models.Space{}
		if err := rows.Scan(&space.ID, &space.Name, &space.OwnerID,
			&space.CreatedTime, &space.LastModifiedTime); err != nil {
			return nil, apperrors.FromContext("scan space", err)
		}
		spaces = append(spaces, space)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("list spaces", err)
	}
	return spaces, nil
}

// NameExists reports whether a live space named name exists for ownerID.
func (r *SpaceRepository) NameExists(ctx context.Context, ownerID, name string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS(
			SELECT 1 FROM %s
			WHERE owner_id = $1 AND name = $2 AND deleted_time IS NULL
		)`, constants.TableSpaceMeta)
	var exists bool
	if err := r.exec.QueryRowContext(ctx, query, ownerID, name).Scan(&exists); err != nil {
		return false, apperrors.FromContext("check space name", err)
	}
	return exists, nil
}

// Rename updates the display name.
func (r *SpaceRepository) Rename(ctx context.Context, id, name string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET name = $1, last_modified_time = $2
		WHERE id = $3 AND deleted_time IS NULL`, constants.TableSpaceMeta)
	result, err := r.exec.ExecContext(ctx, query, name, time.Now(), id)
	if err != nil {
		return apperrors.FromContext("rename space", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.FromContext("rename space", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("space", id)
	}
	return nil
}

// SoftDelete marks the space deleted. Idempotent.
func (r *SpaceRepository) SoftDelete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET deleted_time = $1
		WHERE id = $2 AND deleted_time IS NULL`, constants.TableSpaceMeta)
	if _, err := r.exec.ExecContext(ctx, query, time.Now(), id); err != nil {
		return apperrors.FromContext("delete space", err)
	}
	return nil
}

// ListDeletedBefore returns ids of spaces soft-deleted before cutoff.
func (r *SpaceRepository) ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT id FROM %s
		WHERE deleted_time IS NOT NULL AND deleted_time < $1`, constants.TableSpaceMeta)
	rows, err := r.exec.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, apperrors.FromContext("list deleted spaces", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.FromContext("scan deleted space", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("list deleted spaces", err)
	}
	return ids, nil
}

// Purge removes the row entirely. Called after all bases are gone.
func (r *SpaceRepository) Purge(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", constants.TableSpaceMeta)
	if _, err := r.exec.ExecContext(ctx, query, id); err != nil {
		return apperrors.FromContext("purge space", err)
	}
	return nil
}
