package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// ViewRepository persists view metadata. Views are stored, not evaluated;
// filter/sort/columnMeta round-trip as JSONB.
type ViewRepository struct {
	exec Executor
}

// NewViewRepository creates a new ViewRepository
func NewViewRepository(db *sql.DB) *ViewRepository {
	return &ViewRepository{exec: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *ViewRepository) WithTx(tx *sql.Tx) *ViewRepository {
	return &ViewRepository{exec: tx}
}

// Create inserts a view row.
func (r *ViewRepository) Create(ctx context.Context, view *models.View) error {
	filter, err := marshalNullable(view.Filter)
	if err != nil {
		return apperrors.NewValidationError("filter", err.Error())
	}
	sort, err := marshalNullable(view.Sort)
	if err != nil {
		return apperrors.NewValidationError("sort", err.Error())
	}
	columnMeta, err := marshalNullable(view.ColumnMeta)
	if err != nil {
		return apperrors.NewValidationError("columnMeta", err.Error())
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, table_id, name, type, filter, sort, column_meta,
			share_id, locked, view_order, created_time, last_modified_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		constants.TableViewMeta)
	_, err = r.exec.ExecContext(ctx, query,
		view.ID, view.TableID, view.Name, view.Type, filter, sort, columnMeta,
		view.ShareID, view.Locked, view.Order, view.CreatedTime, view.LastModifiedTime)
	if err != nil {
		return apperrors.FromContext("create view", err)
	}
	return nil
}

// GetByID returns one view.
func (r *ViewRepository) GetByID(ctx context.Context, id string) (*models.View, error) {
	query := fmt.Sprintf(`
		SELECT id, table_id, name, type, filter, sort, column_meta,
			share_id, locked, view_order, created_time, last_modified_time
		FROM %s WHERE id = $1`, constants.TableViewMeta)
	view, err := r.scanView(r.exec.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("view", id)
	}
	if err != nil {
		return nil, apperrors.FromContext("get view", err)
	}
	return view, nil
}

// ListByTable returns the views of a table ordered by view_order.
func (r *ViewRepository) ListByTable(ctx context.Context, tableID string) ([]*models.View, error) {
	query := fmt.Sprintf(`
		SELECT id, table_id, name, type, filter, sort, column_meta,
			share_id, locked, view_order, created_time, last_modified_time
		FROM %s WHERE table_id = $1
		ORDER BY view_order ASC, created_time ASC`, constants.TableViewMeta)

	rows, err := r.exec.QueryContext(ctx, query, tableID)
	if err != nil {
		return nil, apperrors.FromContext("list views", err)
	}
	defer rows.Close()

	var views []*models.View
	for rows.Next() {
		view, err := r.scanView(rows)
		if err != nil {
			return nil, apperrors.FromContext("scan view", err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("list views", err)
	}
	return views, nil
}

// Update persists view changes.
func (r *ViewRepository) Update(ctx context.Context, view *models.View) error {
	filter, err := marshalNullable(view.Filter)
	if err != nil {
		return apperrors.NewValidationError("filter", err.Error())
	}
	sort, err := marshalNullable(view.Sort)
	if err != nil {
		return apperrors.NewValidationError("sort", err.Error())
	}
	columnMeta, err := marshalNullable(view.ColumnMeta)
	if err != nil {
		return apperrors.NewValidationError("columnMeta", err.Error())
	}

	query := fmt.Sprintf(`
		UPDATE %s SET name = $1, filter = $2, sort = $3, column_meta = $4,
			share_id = $5, locked = $6, view_order = $7, last_modified_time = $8
		WHERE id = $9`, constants.TableViewMeta)
	result, err := r.exec.ExecContext(ctx, query,
		view.Name, filter, sort, columnMeta, view.ShareID, view.Locked,
		view.Order, time.Now(), view.ID)
	if err != nil {
		return apperrors.FromContext("update view", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.FromContext("update view", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("view", view.ID)
	}
	return nil
}

// Delete removes one view.
func (r *ViewRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", constants.TableViewMeta)
	if _, err := r.exec.ExecContext(ctx, query, id); err != nil {
		return apperrors.FromContext("delete view", err)
	}
	return nil
}

// DeleteByTable removes all views of a table.
func (r *ViewRepository) DeleteByTable(ctx context.Context, tableID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE table_id = $1", constants.TableViewMeta)
	if _, err := r.exec.ExecContext(ctx, query, tableID); err != nil {
		return apperrors.FromContext("delete table views", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ViewRepository) scanView(row rowScanner) (*models.View, error) {
	view := &models.View{}
	var filter, sort, columnMeta []byte
	var shareID sql.NullString
	err := row.Scan(&view.ID, &view.TableID, &view.Name, &view.Type,
		&filter, &sort, &columnMeta, &shareID, &view.Locked, &view.Order,
		&view.CreatedTime, &view.LastModifiedTime)
	if err != nil {
		return nil, err
	}
	view.ShareID = shareID.String
	if err := unmarshalNullable(filter, &view.Filter); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(sort, &view.Sort); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(columnMeta, &view.ColumnMeta); err != nil {
		return nil, err
	}
	return view, nil
}

func marshalNullable(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalNullable(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
