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

// BaseRepository persists base metadata.
type BaseRepository struct {
	exec Executor
}

// NewBaseRepository creates a new BaseRepository
func NewBaseRepository(db *sql.DB) *BaseRepository {
	return &BaseRepository{exec: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *BaseRepository) WithTx(tx *sql.Tx) *BaseRepository {
	return &BaseRepository{exec: tx}
}

// Create inserts a base row.
func (r *BaseRepository) Create(ctx context.Context, base *models.Base) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, space_id, name, icon, created_time, last_modified_time)
		VALUES ($1, $2, $3, $4, $5, $6)`, constants.TableBaseMeta)
	_, err := r.exec.ExecContext(ctx, query,
		base.ID, base.SpaceID, base.Name, base.Icon, base.CreatedTime, base.LastModifiedTime)
	if err != nil {
		return apperrors.FromContext("create base", err)
	}
	return nil
}

// GetByID returns one base.
func (r *BaseRepository) GetByID(ctx context.Context, id string) (*models.Base, error) {
	query := fmt.Sprintf(`
		SELECT id, space_id, name, icon, created_time, last_modified_time
		FROM %s WHERE id = $1`, constants.TableBaseMeta)

	base := &models.Base{}
	err := r.exec.QueryRowContext(ctx, query, id).Scan(
		&base.ID, &base.SpaceID, &base.Name, &base.Icon,
		&base.CreatedTime, &base.LastModifiedTime)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("base", id)
	}
	if err != nil {
		return nil, apperrors.FromContext("get base", err)
	}
	return base, nil
}

// ListBySpace returns the bases of a space in creation order.
func (r *BaseRepository) ListBySpace(ctx context.Context, spaceID string) ([]*models.Base, error) {
	query := fmt.Sprintf(`
		SELECT id, space_id, name, icon, created_time, last_modified_time
		FROM %s WHERE space_id = $1
		ORDER BY created_time ASC`, constants.TableBaseMeta)

	rows, err := r.exec.QueryContext(ctx, query, spaceID)
	if err != nil {
		return nil, apperrors.FromContext("list bases", err)
	}
	defer rows.Close()

	var bases []*models.Base
	for rows.Next() {
		base := &models.Base{}
		if err := rows.Scan(&base.ID, &base.SpaceID, &base.Name, &base.Icon,
			&base.CreatedTime, &base.LastModifiedTime); err != nil {
			return nil, apperrors.FromContext("scan base", err)
		}
		bases = append(bases, base)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("list bases", err)
	}
	return bases, nil
}

// ListAll returns every base across all spaces. Used by maintenance.
func (r *BaseRepository) ListAll(ctx context.Context) ([]*models.Base, error) {
	query := fmt.Sprintf(`
		SELECT id, space_id, name, icon, created_time, last_modified_time
		FROM %s ORDER BY created_time ASC`, constants.TableBaseMeta)

	rows, err := r.exec.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.FromContext("list bases", err)
	}
	defer rows.Close()

	var bases []*models.Base
	for rows.Next() {
		base := &models.Base{}
		if err := rows.Scan(&base.ID, &base.SpaceID, &base.Name, &base.Icon,
			&base.CreatedTime, &base.LastModifiedTime); err != nil {
			return nil, apperrors.FromContext("scan base", err)
		}
		bases = append(bases, base)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("list bases", err)
	}
	return bases, nil
}

// NameExists reports whether a base named name exists inside spaceID.
func (r *BaseRepository) NameExists(ctx context.Context, spaceID, name string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS(SELECT 1 FROM %s WHERE space_id = $1 AND name = $2)`,
		constants.TableBaseMeta)
	var exists bool
	if err := r.exec.QueryRowContext(ctx, query, spaceID, name).Scan(&exists); err != nil {
		return false, apperrors.FromContext("check base name", err)
	}
	return exists, nil
}

// Update persists name and icon changes.
func (r *BaseRepository) Update(ctx context.Context, base *models.Base) error {
	query := fmt.Sprintf(`
		UPDATE %s SET name = $1, icon = $2, last_modified_time = $3
		WHERE id = $4`, constants.TableBaseMeta)
	result, err := r.exec.ExecContext(ctx, query, base.Name, base.Icon, time.Now(), base.ID)
	if err != nil {
		return apperrors.FromContext("update base", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.FromContext("update base", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("base", base.ID)
	}
	return nil
}

// Delete removes the base row. The physical schema is dropped separately.
func (r *BaseRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", constants.TableBaseMeta)
	if _, err := r.exec.ExecContext(ctx, query, id); err != nil {
		return apperrors.FromContext("delete base", err)
	}
	return nil
}
