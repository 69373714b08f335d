package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

const fieldColumns = `id, table_id, name, description, type, db_field_name,
	db_field_type, options, required, is_unique, is_primary, field_order,
	created_time, last_modified_time, created_by`

// FieldRepository persists field metadata. Options are stored as the flat
// JSONB of the active variant and decoded through models.ParseOptions.
type FieldRepository struct {
	exec Executor
}

// NewFieldRepository creates a new FieldRepository
func NewFieldRepository(db *sql.DB) *FieldRepository {
	return &FieldRepository{exec: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *FieldRepository) WithTx(tx *sql.Tx) *FieldRepository {
	return &FieldRepository{exec: tx}
}

// Create inserts a field row.
func (r *FieldRepository) Create(ctx context.Context, field *models.Field) error {
	options, err := models.EncodeOptions(field.Options)
	if err != nil {
		return apperrors.NewInvalidOptionError("options", err.Error())
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		constants.TableFieldMeta, fieldColumns)
	_, err = r.exec.ExecContext(ctx, query,
		field.ID, field.TableID, field.Name, field.Description, string(field.Type),
		field.DBFieldName, field.DBFieldType, string(options), field.Required,
		field.Unique, field.IsPrimary, field.Order,
		field.CreatedTime, field.LastModifiedTime, field.CreatedBy)
	if err != nil {
		return apperrors.FromContext("create field meta", err)
	}
	return nil
}

// GetByID returns one field.
func (r *FieldRepository) GetByID(ctx context.Context, id string) (*models.Field, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1",
		fieldColumns, constants.TableFieldMeta)
	field, err := r.scanField(r.exec.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("field", id)
	}
	if err != nil {
		return nil, apperrors.FromContext("get field meta", err)
	}
	return field, nil
}

// GetByName returns the field of tableID with the given display name.
func (r *FieldRepository) GetByName(ctx context.Context, tableID, name string) (*models.Field, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE table_id = $1 AND name = $2",
		fieldColumns, constants.TableFieldMeta)
	field, err := r.scanField(r.exec.QueryRowContext(ctx, query, tableID, name))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("field", name)
	}
	if err != nil {
		return nil, apperrors.FromContext("get field meta", err)
	}
	return field, nil
}

// ListByTable returns the fields of a table in column order.
func (r *FieldRepository) ListByTable(ctx context.Context, tableID string) ([]*models.Field, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE table_id = $1
		ORDER BY field_order ASC, created_time ASC, id ASC`,
		fieldColumns, constants.TableFieldMeta)

	rows, err := r.exec.QueryContext(ctx, query, tableID)
	if err != nil {
		return nil, apperrors.FromContext("list fields", err)
	}
	defer rows.Close()

	var fields []*models.Field
	for rows.Next() {
		field, err := r.scanField(rows)
		if err != nil {
			return nil, apperrors.FromContext("scan field meta", err)
		}
		fields = append(fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("list fields", err)
	}
	return fields, nil
}

// ListByTables returns all fields of several tables keyed by table id. Used
// by the dependency graph builder to load a base in one query.
func (r *FieldRepository) ListByTables(ctx context.Context, tableIDs []string) (map[string][]*models.Field, error) {
	if len(tableIDs) == 0 {
		return map[string][]*models.Field{}, nil
	}
	placeholders := make([]string, len(tableIDs))
	args := make([]any, len(tableIDs))
	for i, id := range tableIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE table_id IN (%s)
		ORDER BY field_order ASC, created_time ASC, id ASC`,
		fieldColumns, constants.TableFieldMeta, strings.Join(placeholders, ", "))

	rows, err := r.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.FromContext("list fields", err)
	}
	defer rows.Close()

	result := make(map[string][]*models.Field)
	for rows.Next() {
		field, err := r.scanField(rows)
		if err != nil {
			return nil, apperrors.FromContext("scan field meta", err)
		}
		result[field.TableID] = append(result[field.TableID], field)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("list fields", err)
	}
	return result, nil
}

// NameExists reports whether a field named name exists on tableID, excluding
// excludeID (pass "" on create).
func (r *FieldRepository) NameExists(ctx context.Context, tableID, name, excludeID string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS(
			SELECT 1 FROM %s WHERE table_id = $1 AND name = $2 AND id <> $3
		)`, constants.TableFieldMeta)
	var exists bool
	if err := r.exec.QueryRowContext(ctx, query, tableID, name, excludeID).Scan(&exists); err != nil {
		return false, apperrors.FromContext("check field name", err)
	}
	return exists, nil
}

// Update persists mutable field attributes. Type, DBFieldName and DBFieldType
// are fixed after create and not written here; relationship migrations go
// through UpdateOptions.
func (r *FieldRepository) Update(ctx context.Context, field *models.Field) error {
	options, err := models.EncodeOptions(field.Options)
	if err != nil {
		return apperrors.NewInvalidOptionError("options", err.Error())
	}

	query := fmt.Sprintf(`
		UPDATE %s SET name = $1, description = $2, options = $3, required = $4,
			is_unique = $5, is_primary = $6, field_order = $7, last_modified_time = $8
		WHERE id = $9`, constants.TableFieldMeta)
	result, err := r.exec.ExecContext(ctx, query,
		field.Name, field.Description, string(options), field.Required,
		field.Unique, field.IsPrimary, field.Order, time.Now(), field.ID)
	if err != nil {
		return apperrors.FromContext("update field meta", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.FromContext("update field meta", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("field", field.ID)
	}
	return nil
}

// UpdateOptions rewrites only the options JSON. Used by relationship
// migrations and symmetric pairing.
func (r *FieldRepository) UpdateOptions(ctx context.Context, id string, options *models.FieldOptions) error {
	raw, err := models.EncodeOptions(options)
	if err != nil {
		return apperrors.NewInvalidOptionError("options", err.Error())
	}
	query := fmt.Sprintf(`
		UPDATE %s SET options = $1, last_modified_time = $2 WHERE id = $3`,
		constants.TableFieldMeta)
	result, err := r.exec.ExecContext(ctx, query, string(raw), time.Now(), id)
	if err != nil {
		return apperrors.FromContext("update field options", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.FromContext("update field options", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("field", id)
	}
	return nil
}

// Delete removes the field row.
func (r *FieldRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", constants.TableFieldMeta)
	if _, err := r.exec.ExecContext(ctx, query, id); err != nil {
		return apperrors.FromContext("delete field meta", err)
	}
	return nil
}

// DeleteByTable removes all fields of a table.
func (r *FieldRepository) DeleteByTable(ctx context.Context, tableID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE table_id = $1", constants.TableFieldMeta)
	if _, err := r.exec.ExecContext(ctx, query, tableID); err != nil {
		return apperrors.FromContext("delete table fields", err)
	}
	return nil
}

func (r *FieldRepository) scanField(row rowScanner) (*models.Field, error) {
	field := &models.Field{}
	var fieldType string
	var options []byte
	var description, createdBy sql.NullString
	err := row.Scan(&field.ID, &field.TableID, &field.Name, &description,
		&fieldType, &field.DBFieldName, &field.DBFieldType, &options,
		&field.Required, &field.Unique, &field.IsPrimary, &field.Order,
		&field.CreatedTime, &field.LastModifiedTime, &createdBy)
	if err != nil {
		return nil, err
	}
	field.Description = description.String
	field.CreatedBy = createdBy.String
	field.Type = constants.FieldType(fieldType)

	parsed, err := models.ParseOptions(field.Type, json.RawMessage(options))
	if err != nil {
		return nil, fmt.Errorf("corrupt options for field %s: %w", field.ID, err)
	}
	field.Options = parsed
	return field, nil
}
