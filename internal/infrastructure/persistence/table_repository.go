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

// TableRepository persists table metadata. The table's physical counterpart
// lives at <baseId>.<tableId> and is managed by the SchemaProvider.
type TableRepository struct {
	exec Executor
}

// NewTableRepository creates a new TableRepository
func NewTableRepository(db *sql.DB) *TableRepository {
	return &TableRepository{exec: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *TableRepository) WithTx(tx *sql.Tx) *TableRepository {
	return &TableRepository{exec: tx}
}

// Create inserts a table row.
func (r *TableRepository) Create(ctx context.Context, table *models.Table) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, base_id, name, description, version, created_time, last_modified_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, constants.TableTableMeta)
	_, err := r.exec.ExecContext(ctx, query,
		table.ID, table.BaseID, table.Name, table.Description, table.Version,
		table.CreatedTime, table.LastModifiedTime)
	if err != nil {
		return apperrors.FromContext("create table meta", err)
	}
	return nil
}

// GetByID returns one table.
func (r *TableRepository) GetByID(ctx context.Context, id string) (*models.Table, error) {
	query := fmt.Sprintf(`
		SELECT id, base_id, name, description, version, created_time, last_modified_time
		FROM %s WHERE id = $1`, constants.TableTableMeta)

	table := &models.Table{}
	err := r.exec.QueryRowContext(ctx, query, id).Scan(
		&table.ID, &table.BaseID, &table.Name, &table.Description, &table.Version,
		&table.CreatedTime, &table.LastModifiedTime)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("table", id)
	}
	if err != nil {
		return nil, apperrors.FromContext("get table meta", err)
	}
	return table, nil
}

// ListByBase returns the tables of a base in creation order.
func (r *TableRepository) ListByBase(ctx context.Context, baseID string) ([]*models.Table, error) {
	query := fmt.Sprintf(`
		SELECT id, base_id, name, description, version, created_time, last_modified_time
		FROM %s WHERE base_id = $1
		ORDER BY created_time ASC`, constants.TableTableMeta)

	rows, err := r.exec.QueryContext(ctx, query, baseID)
	if err != nil {
		return nil, apperrors.FromContext("list tables", err)
	}
	defer rows.Close()

	var tables []*models.Table
	for rows.Next() {
		table := &models.Table{}
		if err := rows.Scan(&table.ID, &table.BaseID, &table.Name, &table.Description,
			&table.Version, &table.CreatedTime, &table.LastModifiedTime); err != nil {
			return nil, apperrors.FromContext("scan table meta", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("list tables", err)
	}
	return tables, nil
}

// NameExists reports whether a table named name exists inside baseID.
func (r *TableRepository) NameExists(ctx context.Context, baseID, name string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS(SELECT 1 FROM %s WHERE base_id = $1 AND name = $2)`,
		constants.TableTableMeta)
	var exists bool
	if err := r.exec.QueryRowContext(ctx, query, baseID, name).Scan(&exists); err != nil {
		return false, apperrors.FromContext("check table name", err)
	}
	return exists, nil
}

// ListNames returns the display names of the tables in baseID, for dedupe.
func (r *TableRepository) ListNames(ctx context.Context, baseID string) ([]string, error) {
	query := fmt.Sprintf("SELECT name FROM %s WHERE base_id = $1", constants.TableTableMeta)
	rows, err := r.exec.QueryContext(ctx, query, baseID)
	if err != nil {
		return nil, apperrors.FromContext("list table names", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.FromContext("scan table name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("list table names", err)
	}
	return names, nil
}

// Update persists name and description changes.
func (r *TableRepository) Update(ctx context.Context, table *models.Table) error {
	query := fmt.Sprintf(`
		UPDATE %s SET name = $1, description = $2, last_modified_time = $3
		WHERE id = $4`, constants.TableTableMeta)
	result, err := r.exec.ExecContext(ctx, query,
		table.Name, table.Description, time.Now(), table.ID)
	if err != nil {
		return apperrors.FromContext("update table meta", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.FromContext("update table meta", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("table", table.ID)
	}
	return nil
}

// BumpVersion increments the table's metadata version and returns the new
// value. Every schema mutation goes through this.
func (r *TableRepository) BumpVersion(ctx context.Context, id string) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET version = version + 1, last_modified_time = $1
		WHERE id = $2
		RETURNING version`, constants.TableTableMeta)
	var version int64
	err := r.exec.QueryRowContext(ctx, query, time.Now(), id).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, apperrors.NewNotFoundError("table", id)
	}
	if err != nil {
		return 0, apperrors.FromContext("bump table version", err)
	}
	return version, nil
}

// Delete removes the table row.
func (r *TableRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", constants.TableTableMeta)
	if _, err := r.exec.ExecContext(ctx, query, id); err != nil {
		return apperrors.FromContext("delete table meta", err)
	}
	return nil
}
