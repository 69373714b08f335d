package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
	"github.com/easyspace-ai/easygrid/pkg/query"
)

// RecordUpdate is one record's pending cell changes, keyed by physical
// column name.
type RecordUpdate struct {
	RecordID string
	Changes  map[string]any
}

// TitleUpdate is the result of one link-title rewrite: the host record and
// its new cell value, for broadcast.
type TitleUpdate struct {
	RecordID string
	Column   string
	Value    any
}

// ListOptions shape a record listing. Where/Args come pre-translated from
// the filter translator; OrderBy is a validated physical column.
type ListOptions struct {
	Where   string
	Args    []any
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// RecordRepository reads and writes rows of the dynamic per-table physical
// tables. Data maps are keyed by field id at the model level; the
// translation to physical columns happens here against the field list the
// caller supplies.
type RecordRepository struct {
	exec Executor
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{exec: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *RecordRepository) WithTx(tx *sql.Tx) *RecordRepository {
	return &RecordRepository{exec: tx}
}

// BatchSizeFor picks the chunk size for a batched write. Small batches run
// whole; very large ones use bigger chunks to cut round trips.
func BatchSizeFor(n int) int {
	switch {
	case n < 50:
		return n
	case n > 1000:
		return 500
	default:
		return constants.DefaultBatchSize
	}
}

// Insert writes one record. Version starts at 1; created/modified stamps
// come from the database clock.
func (r *RecordRepository) Insert(ctx context.Context, baseID, tableID string, rec *models.Record, fields []*models.Field, actor string) error {
	return r.InsertMany(ctx, baseID, tableID, []*models.Record{rec}, fields, actor)
}

// InsertMany writes records in chunks with multi-row VALUES.
func (r *RecordRepository) InsertMany(ctx context.Context, baseID, tableID string, recs []*models.Record, fields []*models.Field, actor string) error {
	if len(recs) == 0 {
		return nil
	}
	columnsByField := physicalColumns(fields)

	// The column list is the union of data keys across the chunk so every
	// row fits one statement shape.
	for start := 0; start < len(recs); start += BatchSizeFor(len(recs)) {
		end := start + BatchSizeFor(len(recs))
		if end > len(recs) {
			end = len(recs)
		}
		if err := r.insertChunk(ctx, baseID, tableID, recs[start:end], fields, columnsByField, actor); err != nil {
			return err
		}
	}
	return nil
}

func (r *RecordRepository) insertChunk(ctx context.Context, baseID, tableID string, recs []*models.Record, fields []*models.Field, columnsByField map[string]*models.Field, actor string) error {
	var dataColumns []string
	seen := map[string]bool{}
	for _, rec := range recs {
		for fieldID := range rec.Data {
			field, ok := columnsByField[fieldID]
			if !ok {
				return apperrors.NewValidationError(fieldID, "unknown field in record data")
			}
			if !seen[field.DBFieldName] {
				seen[field.DBFieldName] = true
				dataColumns = append(dataColumns, field.DBFieldName)
			}
		}
	}

	fieldByColumn := make(map[string]*models.Field, len(columnsByField))
	for _, f := range columnsByField {
		fieldByColumn[f.DBFieldName] = f
	}

	quoted := []string{
		query.QuoteIdent(constants.FieldID),
		query.QuoteIdent(constants.FieldVersion),
		query.QuoteIdent(constants.FieldCreatedBy),
		query.QuoteIdent(constants.FieldLastModifiedBy),
	}
	for _, col := range dataColumns {
		quoted = append(quoted, query.QuoteIdent(col))
	}

	var args []any
	var rowsSQL []string
	param := 1
	for _, rec := range recs {
		placeholders := make([]string, 0, len(quoted))
		args = append(args, rec.ID, int64(1), actor, actor)
		for i := 0; i < 4; i++ {
			placeholders = append(placeholders, fmt.Sprintf("$%d", param))
			param++
		}
		for _, col := range dataColumns {
			field := fieldByColumn[col]
			value, ok := lookupByField(rec.Data, field)
			if !ok {
				placeholders = append(placeholders, "NULL")
				continue
			}
			encoded, err := encodeCellValue(field, value)
			if err != nil {
				return err
			}
			args = append(args, encoded)
			placeholders = append(placeholders, fmt.Sprintf("$%d", param))
			param++
		}
		rowsSQL = append(rowsSQL, "("+strings.Join(placeholders, ", ")+")")
		rec.Version = 1
	}

	sqlText := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		qualify(baseID, tableID), strings.Join(quoted, ", "), strings.Join(rowsSQL, ", "))
	if _, err := r.exec.ExecContext(ctx, sqlText, args...); err != nil {
		return apperrors.FromContext("insert records", err)
	}
	return nil
}

// GetByID fetches one record with all listed fields.
func (r *RecordRepository) GetByID(ctx context.Context, baseID, tableID, recordID string, fields []*models.Field) (*models.Record, error) {
	recs, err := r.GetMany(ctx, baseID, tableID, []string{recordID}, fields)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, apperrors.NewNotFoundError("record", recordID)
	}
	return recs[0], nil
}

// GetMany fetches several records by id. Missing ids are silently absent
// from the result.
func (r *RecordRepository) GetMany(ctx context.Context, baseID, tableID string, ids []string, fields []*models.Field) ([]*models.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	sqlText := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IN (%s)`,
		selectColumns(fields), qualify(baseID, tableID),
		query.QuoteIdent(constants.FieldID), strings.Join(placeholders, ", "))

	rows, err := r.exec.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, apperrors.FromContext("get records", err)
	}
	defer rows.Close()
	return scanRecords(rows, tableID, fields)
}

// List fetches records with pre-translated filtering and paging.
func (r *RecordRepository) List(ctx context.Context, baseID, tableID string, fields []*models.Field, opts ListOptions) ([]*models.Record, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectColumns(fields), qualify(baseID, tableID))
	if opts.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(opts.Where)
	}
	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = constants.FieldCreatedTime
	}
	fmt.Fprintf(&sb, " ORDER BY %s", query.QuoteIdent(orderBy))
	if opts.Desc {
		sb.WriteString(" DESC")
	}
	fmt.Fprintf(&sb, ", %s ASC", query.QuoteIdent(constants.FieldID))
	if opts.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", opts.Offset)
	}

	rows, err := r.exec.QueryContext(ctx, sb.String(), opts.Args...)
	if err != nil {
		return nil, apperrors.FromContext("list records", err)
	}
	defer rows.Close()
	return scanRecords(rows, tableID, fields)
}

// Count counts records matching the pre-translated filter.
func (r *RecordRepository) Count(ctx context.Context, baseID, tableID, where string, args []any) (int64, error) {
	sqlText := fmt.Sprintf("SELECT COUNT(*) FROM %s", qualify(baseID, tableID))
	if where != "" {
		sqlText += " WHERE " + where
	}
	var count int64
	if err := r.exec.QueryRowContext(ctx, sqlText, args...).Scan(&count); err != nil {
		return 0, apperrors.FromContext("count records", err)
	}
	return count, nil
}

// CurrentVersion reads a record's version, or NotFound.
func (r *RecordRepository) CurrentVersion(ctx context.Context, baseID, tableID, recordID string) (int64, error) {
	sqlText := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		query.QuoteIdent(constants.FieldVersion), qualify(baseID, tableID),
		query.QuoteIdent(constants.FieldID))
	var version int64
	err := r.exec.QueryRowContext(ctx, sqlText, recordID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, apperrors.NewNotFoundError("record", recordID)
	}
	if err != nil {
		return 0, apperrors.FromContext("get record version", err)
	}
	return version, nil
}

// UpdateWithVersion applies cell changes to one record under an optimistic
// version check. expectedVersion <= 0 skips the check. Changes are keyed by
// physical column; values are already encoded by the caller's field list.
// On version mismatch the current version is re-read and returned inside
// the conflict error.
func (r *RecordRepository) UpdateWithVersion(ctx context.Context, baseID, tableID, recordID string, changes map[string]any, fields []*models.Field, expectedVersion int64, actor string) (int64, error) {
	if len(changes) == 0 {
		return 0, apperrors.NewValidationError("changes", "no cell changes supplied")
	}
	fieldByColumn := make(map[string]*models.Field)
	for _, f := range fields {
		fieldByColumn[f.DBFieldName] = f
	}

	var sets []string
	var args []any
	param := 1
	for _, col := range sortedKeys(changes) {
		field, ok := fieldByColumn[col]
		if !ok {
			return 0, apperrors.NewValidationError(col, "unknown column in record update")
		}
		encoded, err := encodeCellValue(field, changes[col])
		if err != nil {
			return 0, err
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", query.QuoteIdent(col), param))
		args = append(args, encoded)
		param++
	}
	sets = append(sets,
		fmt.Sprintf("%s = %s + 1", query.QuoteIdent(constants.FieldVersion), query.QuoteIdent(constants.FieldVersion)),
		fmt.Sprintf("%s = now()", query.QuoteIdent(constants.FieldLastModifiedTime)),
		fmt.Sprintf("%s = $%d", query.QuoteIdent(constants.FieldLastModifiedBy), param))
	args = append(args, actor)
	param++

	where := fmt.Sprintf("%s = $%d", query.QuoteIdent(constants.FieldID), param)
	args = append(args, recordID)
	param++
	if expectedVersion > 0 {
		where += fmt.Sprintf(" AND %s = $%d", query.QuoteIdent(constants.FieldVersion), param)
		args = append(args, expectedVersion)
		param++
	}

	sqlText := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		qualify(baseID, tableID), strings.Join(sets, ", "), where,
		query.QuoteIdent(constants.FieldVersion))

	var newVersion int64
	err := r.exec.QueryRowContext(ctx, sqlText, args...).Scan(&newVersion)
	if err == sql.ErrNoRows {
		current, verr := r.CurrentVersion(ctx, baseID, tableID, recordID)
		if verr != nil {
			return 0, verr
		}
		return 0, apperrors.NewVersionConflictError(recordID, expectedVersion, current)
	}
	if err != nil {
		return 0, apperrors.FromContext("update record", err)
	}
	return newVersion, nil
}

// BatchUpdate applies many records' cell changes with one CASE statement
// per touched column, chunked. Versions bump unconditionally; callers
// needing optimistic checks use UpdateWithVersion per record.
func (r *RecordRepository) BatchUpdate(ctx context.Context, baseID, tableID string, updates []RecordUpdate, fields []*models.Field, actor string) error {
	if len(updates) == 0 {
		return nil
	}
	size := BatchSizeFor(len(updates))
	for start := 0; start < len(updates); start += size {
		end := start + size
		if end > len(updates) {
			end = len(updates)
		}
		if err := r.batchUpdateChunk(ctx, baseID, tableID, updates[start:end], fields, actor); err != nil {
			return err
		}
	}
	return nil
}

func (r *RecordRepository) batchUpdateChunk(ctx context.Context, baseID, tableID string, updates []RecordUpdate, fields []*models.Field, actor string) error {
	fieldByColumn := make(map[string]*models.Field)
	for _, f := range fields {
		fieldByColumn[f.DBFieldName] = f
	}

	// union of touched columns, stable order
	var columns []string
	seen := map[string]bool{}
	for _, u := range updates {
		for _, col := range sortedKeys(u.Changes) {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}

	var sets []string
	var args []any
	param := 1
	for _, col := range columns {
		field, ok := fieldByColumn[col]
		if !ok {
			return apperrors.NewValidationError(col, "unknown column in record update")
		}
		var cases strings.Builder
		fmt.Fprintf(&cases, "CASE %s", query.QuoteIdent(constants.FieldID))
		for _, u := range updates {
			value, touched := u.Changes[col]
			if !touched {
				continue
			}
			encoded, err := encodeCellValue(field, value)
			if err != nil {
				return err
			}
			fmt.Fprintf(&cases, " WHEN $%d THEN $%d", param, param+1)
			args = append(args, u.RecordID, encoded)
			param += 2
		}
		fmt.Fprintf(&cases, " ELSE %s END", query.QuoteIdent(col))
		if field.DBFieldType != "" && field.DBFieldType != "TEXT" {
			// parameters arrive untyped; cast the whole CASE back
			sets = append(sets, fmt.Sprintf("%s = (%s)::%s",
				query.QuoteIdent(col), cases.String(), field.DBFieldType))
		} else {
			sets = append(sets, fmt.Sprintf("%s = %s", query.QuoteIdent(col), cases.String()))
		}
	}
	sets = append(sets,
		fmt.Sprintf("%s = %s + 1", query.QuoteIdent(constants.FieldVersion), query.QuoteIdent(constants.FieldVersion)),
		fmt.Sprintf("%s = now()", query.QuoteIdent(constants.FieldLastModifiedTime)),
		fmt.Sprintf("%s = $%d", query.QuoteIdent(constants.FieldLastModifiedBy), param))
	args = append(args, actor)
	param++

	ids := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = fmt.Sprintf("$%d", param)
		args = append(args, u.RecordID)
		param++
	}

	sqlText := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (%s)",
		qualify(baseID, tableID), strings.Join(sets, ", "),
		query.QuoteIdent(constants.FieldID), strings.Join(ids, ", "))
	log.Printf("🔄 Batch updating %d records in %s.%s (%d columns)",
		len(updates), baseID, tableID, len(columns))
	if _, err := r.exec.ExecContext(ctx, sqlText, args...); err != nil {
		return apperrors.FromContext("batch update records", err)
	}
	return nil
}

// Delete removes one record and reports whether it existed.
func (r *RecordRepository) Delete(ctx context.Context, baseID, tableID, recordID string) (bool, error) {
	sqlText := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		qualify(baseID, tableID), query.QuoteIdent(constants.FieldID))
	result, err := r.exec.ExecContext(ctx, sqlText, recordID)
	if err != nil {
		return false, apperrors.FromContext("delete record", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.FromContext("delete record", err)
	}
	return affected > 0, nil
}

// DeleteMany removes records by id, returning the deleted count.
func (r *RecordRepository) DeleteMany(ctx context.Context, baseID, tableID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	sqlText := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
		qualify(baseID, tableID), query.QuoteIdent(constants.FieldID),
		strings.Join(placeholders, ", "))
	result, err := r.exec.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return 0, apperrors.FromContext("delete records", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.FromContext("delete records", err)
	}
	return affected, nil
}

// UpdateObjectCellTitle rewrites the cached title inside single-value link
// cells pointing at foreignRecordID. Returns the touched host records with
// their new cell values.
func (r *RecordRepository) UpdateObjectCellTitle(ctx context.Context, baseID, tableID, column, foreignRecordID, newTitle string) ([]TitleUpdate, error) {
	quoted := query.QuoteIdent(column)
	sqlText := fmt.Sprintf(`
		UPDATE %s
		SET %s = jsonb_set(%s, '{title}', to_jsonb($1::text))
		WHERE %s->>'id' = $2
		RETURNING %s, %s`,
		qualify(baseID, tableID), quoted, quoted, quoted,
		query.QuoteIdent(constants.FieldID), quoted)
	return r.collectTitleUpdates(ctx, sqlText, column, newTitle, foreignRecordID)
}

// UpdateArrayCellTitle rewrites the cached title inside multi-value link
// cells containing foreignRecordID.
func (r *RecordRepository) UpdateArrayCellTitle(ctx context.Context, baseID, tableID, column, foreignRecordID, newTitle string) ([]TitleUpdate, error) {
	quoted := query.QuoteIdent(column)
	sqlText := fmt.Sprintf(`
		UPDATE %s
		SET %s = (
			SELECT jsonb_agg(
				CASE WHEN elem->>'id' = $2
					THEN jsonb_set(elem, '{title}', to_jsonb($1::text))
					ELSE elem END)
			FROM jsonb_array_elements(%s) elem
		)
		WHERE %s @> jsonb_build_array(jsonb_build_object('id', $2::text))
		RETURNING %s, %s`,
		qualify(baseID, tableID), quoted, quoted, quoted,
		query.QuoteIdent(constants.FieldID), quoted)
	return r.collectTitleUpdates(ctx, sqlText, column, newTitle, foreignRecordID)
}

func (r *RecordRepository) collectTitleUpdates(ctx context.Context, sqlText, column, newTitle, foreignRecordID string) ([]TitleUpdate, error) {
	rows, err := r.exec.QueryContext(ctx, sqlText, newTitle, foreignRecordID)
	if err != nil {
		return nil, apperrors.FromContext("update link titles", err)
	}
	defer rows.Close()

	var updates []TitleUpdate
	for rows.Next() {
		var recordID string
		var raw []byte
		if err := rows.Scan(&recordID, &raw); err != nil {
			return nil, apperrors.FromContext("scan link title update", err)
		}
		var value any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &value); err != nil {
				return nil, apperrors.FromContext("decode link cell", err)
			}
		}
		updates = append(updates, TitleUpdate{RecordID: recordID, Column: column, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("update link titles", err)
	}
	return updates, nil
}

// ClearObjectCellRef nulls single-value link cells pointing at a deleted
// record. Returns the touched hosts for broadcast.
func (r *RecordRepository) ClearObjectCellRef(ctx context.Context, baseID, tableID, column, foreignRecordID string) ([]TitleUpdate, error) {
	quoted := query.QuoteIdent(column)
	sqlText := fmt.Sprintf(`
		UPDATE %s SET %s = NULL
		WHERE %s->>'id' = $2
		RETURNING %s, %s`,
		qualify(baseID, tableID), quoted, quoted,
		query.QuoteIdent(constants.FieldID), quoted)
	return r.collectTitleUpdates(ctx, sqlText, column, "", foreignRecordID)
}

// ClearArrayCellRef removes a deleted record from multi-value link cells.
func (r *RecordRepository) ClearArrayCellRef(ctx context.Context, baseID, tableID, column, foreignRecordID string) ([]TitleUpdate, error) {
	quoted := query.QuoteIdent(column)
	sqlText := fmt.Sprintf(`
		UPDATE %s
		SET %s = (
			SELECT COALESCE(jsonb_agg(elem), '[]'::jsonb)
			FROM jsonb_array_elements(%s) elem
			WHERE elem->>'id' <> $2
		)
		WHERE %s @> jsonb_build_array(jsonb_build_object('id', $2::text))
		RETURNING %s, %s`,
		qualify(baseID, tableID), quoted, quoted, quoted,
		query.QuoteIdent(constants.FieldID), quoted)
	return r.collectTitleUpdates(ctx, sqlText, column, "", foreignRecordID)
}

// FindLinkingRecords returns the ids of records whose link cell in column
// references foreignRecordID. multi selects the containment shape.
func (r *RecordRepository) FindLinkingRecords(ctx context.Context, baseID, tableID, column, foreignRecordID string, multi bool) ([]string, error) {
	quoted := query.QuoteIdent(column)
	var where string
	if multi {
		where = fmt.Sprintf("%s @> jsonb_build_array(jsonb_build_object('id', $1::text))", quoted)
	} else {
		where = fmt.Sprintf("%s->>'id' = $1", quoted)
	}
	sqlText := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		query.QuoteIdent(constants.FieldID), qualify(baseID, tableID), where)

	rows, err := r.exec.QueryContext(ctx, sqlText, foreignRecordID)
	if err != nil {
		return nil, apperrors.FromContext("find linking records", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.FromContext("scan linking record", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("find linking records", err)
	}
	return ids, nil
}

// selectColumns renders the system columns plus each field's physical
// column aliased nowhere; mapping back to field ids happens in scanRecords.
func selectColumns(fields []*models.Field) string {
	cols := []string{
		query.QuoteIdent(constants.FieldID),
		query.QuoteIdent(constants.FieldVersion),
		query.QuoteIdent(constants.FieldCreatedTime),
		query.QuoteIdent(constants.FieldLastModifiedTime),
		query.QuoteIdent(constants.FieldCreatedBy),
		query.QuoteIdent(constants.FieldLastModifiedBy),
	}
	for _, f := range fields {
		cols = append(cols, query.QuoteIdent(f.DBFieldName))
	}
	return strings.Join(cols, ", ")
}

func scanRecords(rows *sql.Rows, tableID string, fields []*models.Field) ([]*models.Record, error) {
	var records []*models.Record
	for rows.Next() {
		rec := &models.Record{TableID: tableID, Data: make(map[string]any, len(fields))}
		var createdTime, lastModifiedTime sql.NullTime
		var createdBy, lastModifiedBy sql.NullString

		dest := []any{&rec.ID, &rec.Version, &createdTime, &lastModifiedTime, &createdBy, &lastModifiedBy}
		raws := make([]any, len(fields))
		for i := range fields {
			raws[i] = new(sql.RawBytes)
			dest = append(dest, raws[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, apperrors.FromContext("scan record", err)
		}
		if createdTime.Valid {
			t := createdTime.Time
			rec.CreatedTime = &t
		}
		if lastModifiedTime.Valid {
			t := lastModifiedTime.Time
			rec.LastModifiedTime = &t
		}
		rec.CreatedBy = createdBy.String
		rec.LastModifiedBy = lastModifiedBy.String

		for i, f := range fields {
			raw := *(raws[i].(*sql.RawBytes))
			if raw == nil {
				continue
			}
			value, err := decodeCellValue(f, raw)
			if err != nil {
				return nil, apperrors.FromContext("decode cell", err)
			}
			rec.Data[f.ID] = value
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("scan records", err)
	}
	return records, nil
}

// encodeCellValue converts a model cell value into its driver value. JSONB
// columns carry marshaled JSON; everything else passes through.
func encodeCellValue(field *models.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if constants.IsJSONFieldType(field.Type) || field.DBFieldType == "JSONB" {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, apperrors.NewValidationError(field.Name,
				fmt.Sprintf("cell value is not JSON-encodable: %v", err))
		}
		return string(raw), nil
	}
	return value, nil
}

// decodeCellValue converts raw column bytes back into a model cell value.
func decodeCellValue(field *models.Field, raw []byte) (any, error) {
	if constants.IsJSONFieldType(field.Type) || field.DBFieldType == "JSONB" {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
	switch field.DBFieldType {
	case "BOOLEAN":
		return string(raw) == "true" || string(raw) == "t", nil
	case "NUMERIC", "INTEGER", "BIGINT":
		var f float64
		if _, err := fmt.Sscanf(string(raw), "%g", &f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return string(raw), nil
	}
}

func physicalColumns(fields []*models.Field) map[string]*models.Field {
	byID := make(map[string]*models.Field, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}
	return byID
}

// lookupByField finds the record's value for a field, accepting either the
// field id or the display name as the data key.
func lookupByField(data map[string]any, field *models.Field) (any, bool) {
	if v, ok := data[field.ID]; ok {
		return v, true
	}
	if v, ok := data[field.Name]; ok {
		return v, true
	}
	return nil, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
