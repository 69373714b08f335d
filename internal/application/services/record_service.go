package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/easyspace-ai/easygrid/internal/domain/ports"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
	"github.com/easyspace-ai/easygrid/pkg/query"
	"github.com/easyspace-ai/easygrid/pkg/utils"
)

// WriteMode selects the failure semantics of a batched write.
type WriteMode string

const (
	// WriteModeAllOrNothing aborts the whole batch on the first failure.
	WriteModeAllOrNothing WriteMode = "allOrNothing"
	// WriteModeBestEffort applies what it can and reports the rest.
	WriteModeBestEffort WriteMode = "bestEffort"
)

// RecordWrite is one record's pending data in a batch call. Version <= 0
// skips the optimistic check.
type RecordWrite struct {
	RecordID string         `json:"recordId,omitempty"`
	Data     map[string]any `json:"data"`
	Version  int64          `json:"version,omitempty"`
}

// BatchError pairs a failed record with its error.
type BatchError struct {
	RecordID string `json:"recordId"`
	Err      error  `json:"-"`
	Message  string `json:"message"`
}

// BatchResult reports a best-effort batch outcome.
type BatchResult struct {
	Records []*models.Record `json:"records"`
	Errors  []BatchError     `json:"errors,omitempty"`
}

// ListRecordsInput shapes a record query. Filter is a boolean expression
// over display names, validated and translated before touching SQL.
type ListRecordsInput struct {
	Filter  string
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// RecordService is the record store orchestrator: validation, link cell
// normalization, optimistic versioning, derived-field recomputation, title
// fan-out and op broadcast all hang off its write path.
type RecordService struct {
	records    *persistence.RecordRepository
	fields     *persistence.FieldRepository
	tables     *persistence.TableRepository
	txManager  *persistence.TransactionManager
	compute    *ComputeService
	titles     *LinkTitleService
	translator *query.FilterTranslator
	publisher  ports.OpPublisher
	checker    ports.PermissionChecker
}

// NewRecordService creates a new RecordService
func NewRecordService(records *persistence.RecordRepository, fields *persistence.FieldRepository, tables *persistence.TableRepository, txManager *persistence.TransactionManager, compute *ComputeService, titles *LinkTitleService, translator *query.FilterTranslator, publisher ports.OpPublisher, checker ports.PermissionChecker) *RecordService {
	return &RecordService{
		records:    records,
		fields:     fields,
		tables:     tables,
		txManager:  txManager,
		compute:    compute,
		titles:     titles,
		translator: translator,
		publisher:  publisher,
		checker:    checker,
	}
}

// GetRecord fetches one record with every field populated.
func (s *RecordService) GetRecord(ctx context.Context, user *models.UserPrincipal, tableID, recordID string) (*models.Record, error) {
	table, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceTable, ID: tableID}, constants.ActionRead); err != nil {
		return nil, err
	}
	fields, err := s.fields.ListByTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return s.records.GetByID(ctx, table.BaseID, tableID, recordID, fields)
}

// ListRecords queries a table with an optional filter expression. The
// returned total counts every match regardless of paging.
func (s *RecordService) ListRecords(ctx context.Context, user *models.UserPrincipal, tableID string, input ListRecordsInput) ([]*models.Record, int64, error) {
	table, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, 0, err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceTable, ID: tableID}, constants.ActionRead); err != nil {
		return nil, 0, err
	}
	fields, err := s.fields.ListByTable(ctx, tableID)
	if err != nil {
		return nil, 0, err
	}

	opts := persistence.ListOptions{Limit: input.Limit, Offset: input.Offset, Desc: input.Desc}
	if input.Filter != "" {
		where, args, err := s.translateFilter(input.Filter, fields)
		if err != nil {
			return nil, 0, err
		}
		opts.Where = where
		opts.Args = args
	}
	if input.OrderBy != "" {
		column, err := resolveOrderColumn(input.OrderBy, fields)
		if err != nil {
			return nil, 0, err
		}
		opts.OrderBy = column
	}

	records, err := s.records.List(ctx, table.BaseID, tableID, fields, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.records.Count(ctx, table.BaseID, tableID, opts.Where, opts.Args)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// CreateRecord inserts one record and runs the full post-write pipeline.
func (s *RecordService) CreateRecord(ctx context.Context, user *models.UserPrincipal, tableID string, data map[string]any) (*models.Record, error) {
	result, err := s.CreateRecords(ctx, user, tableID, []map[string]any{data}, WriteModeAllOrNothing)
	if err != nil {
		return nil, err
	}
	return result.Records[0], nil
}

// CreateRecords inserts a batch. AllOrNothing validates everything before
// writing anything; bestEffort skips invalid rows and reports them.
func (s *RecordService) CreateRecords(ctx context.Context, user *models.UserPrincipal, tableID string, rows []map[string]any, mode WriteMode) (*BatchResult, error) {
	table, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceTable, ID: tableID}, constants.ActionCreate); err != nil {
		return nil, err
	}
	fields, err := s.fields.ListByTable(ctx, tableID)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	var recs []*models.Record
	for i, row := range rows {
		normalized, _, err := s.normalizeData(ctx, table.BaseID, fields, applyDefaults(fields, row))
		if err != nil {
			if mode == WriteModeAllOrNothing {
				return nil, err
			}
			result.Errors = append(result.Errors, BatchError{
				RecordID: fmt.Sprintf("row %d", i), Err: err, Message: err.Error()})
			continue
		}
		recs = append(recs, &models.Record{
			ID:      utils.GenerateRecordID(),
			TableID: tableID,
			Data:    normalized,
		})
	}
	if len(recs) == 0 {
		return result, nil
	}

	if err := s.records.InsertMany(ctx, table.BaseID, tableID, recs, fields, user.ID); err != nil {
		return nil, err
	}
	log.Printf("➕ Inserted %d records into %s", len(recs), tableID)

	for _, rec := range recs {
		changedIDs := dataFieldIDs(rec.Data)
		if err := s.postWrite(ctx, user, table, fields, rec, changedIDs); err != nil {
			log.Printf("⚠️ Post-write pipeline failed for %s: %v", rec.ID, err)
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// UpdateRecord applies cell changes to one record under the optimistic
// version check, then recomputes, fans out titles and broadcasts.
func (s *RecordService) UpdateRecord(ctx context.Context, user *models.UserPrincipal, tableID, recordID string, data map[string]any, expectedVersion int64) (*models.Record, error) {
	table, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceTable, ID: tableID}, constants.ActionUpdate); err != nil {
		return nil, err
	}
	fields, err := s.fields.ListByTable(ctx, tableID)
	if err != nil {
		return nil, err
	}

	normalized, changes, err := s.normalizeData(ctx, table.BaseID, fields, data)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, apperrors.NewValidationError("data", "no writable cells in payload")
	}

	newVersion, err := s.records.UpdateWithVersion(ctx, table.BaseID, tableID, recordID, changes, fields, expectedVersion, user.ID)
	if err != nil {
		return nil, err
	}

	rec, err := s.records.GetByID(ctx, table.BaseID, tableID, recordID, fields)
	if err != nil {
		return nil, err
	}
	rec.Version = newVersion

	changedIDs := dataFieldIDs(normalized)
	if err := s.postWrite(ctx, user, table, fields, rec, changedIDs); err != nil {
		log.Printf("⚠️ Post-write pipeline failed for %s: %v", rec.ID, err)
	}
	return rec, nil
}

// BatchUpdateRecords applies many updates. AllOrNothing validates all rows
// first and uses the CASE-batched write; bestEffort falls back to
// per-record writes so one conflict cannot sink the rest.
func (s *RecordService) BatchUpdateRecords(ctx context.Context, user *models.UserPrincipal, tableID string, writes []RecordWrite, mode WriteMode) (*BatchResult, error) {
	table, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceTable, ID: tableID}, constants.ActionUpdate); err != nil {
		return nil, err
	}
	fields, err := s.fields.ListByTable(ctx, tableID)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	if mode == WriteModeAllOrNothing {
		var updates []persistence.RecordUpdate
		changedByRecord := make(map[string][]string, len(writes))
		for _, w := range writes {
			normalized, changes, err := s.normalizeData(ctx, table.BaseID, fields, w.Data)
			if err != nil {
				return nil, err
			}
			updates = append(updates, persistence.RecordUpdate{RecordID: w.RecordID, Changes: changes})
			changedByRecord[w.RecordID] = dataFieldIDs(normalized)
		}
		// version checks and the batch write share one transaction so a
		// conflicting concurrent update rolls the whole batch back
		err = s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
			repo := s.records.WithTx(tx)
			for _, w := range writes {
				if w.Version <= 0 {
					continue
				}
				current, err := repo.CurrentVersion(ctx, table.BaseID, tableID, w.RecordID)
				if err != nil {
					return err
				}
				if current != w.Version {
					return apperrors.NewVersionConflictError(w.RecordID, w.Version, current)
				}
			}
			return repo.BatchUpdate(ctx, table.BaseID, tableID, updates, fields, user.ID)
		})
		if err != nil {
			return nil, err
		}
		for _, w := range writes {
			rec, err := s.records.GetByID(ctx, table.BaseID, tableID, w.RecordID, fields)
			if err != nil {
				return nil, err
			}
			if err := s.postWrite(ctx, user, table, fields, rec, changedByRecord[w.RecordID]); err != nil {
				log.Printf("⚠️ Post-write pipeline failed for %s: %v", rec.ID, err)
			}
			result.Records = append(result.Records, rec)
		}
		return result, nil
	}

	for _, w := range writes {
		rec, err := s.UpdateRecord(ctx, user, tableID, w.RecordID, w.Data, w.Version)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{
				RecordID: w.RecordID, Err: err, Message: err.Error()})
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// DeleteRecord removes one record, scrubs link cells pointing at it and
// broadcasts the deletion.
func (s *RecordService) DeleteRecord(ctx context.Context, user *models.UserPrincipal, tableID, recordID string) error {
	table, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return err
	}
	if err := s.checker.Can(ctx, user, ports.Resource{Type: constants.ResourceTable, ID: tableID}, constants.ActionDelete); err != nil {
		return err
	}

	deleted, err := s.records.Delete(ctx, table.BaseID, tableID, recordID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.NewNotFoundError("record", recordID)
	}

	if err := s.scrubLinkReferences(ctx, table.BaseID, tableID, recordID); err != nil {
		log.Printf("⚠️ Link scrub after deleting %s failed: %v", recordID, err)
	}

	collection := constants.CollectionRecordPrefix + tableID
	op := models.OTOp{P: []any{"record"}, OD: recordID}
	if err := s.publisher.PublishOp(ctx, collection, recordID, []models.OTOp{op}); err != nil {
		log.Printf("⚠️ Failed to broadcast record deletion %s: %v", recordID, err)
	}
	return nil
}

// DeleteRecords removes a batch of records.
func (s *RecordService) DeleteRecords(ctx context.Context, user *models.UserPrincipal, tableID string, recordIDs []string, mode WriteMode) (*BatchResult, error) {
	result := &BatchResult{}
	for _, id := range recordIDs {
		if err := s.DeleteRecord(ctx, user, tableID, id); err != nil {
			if mode == WriteModeAllOrNothing {
				return nil, err
			}
			result.Errors = append(result.Errors, BatchError{RecordID: id, Err: err, Message: err.Error()})
		}
	}
	return result, nil
}

// postWrite runs the derived-data pipeline after a successful write:
// same-record recomputation, cross-table recomputation, title fan-out and
// the record's own op broadcast.
func (s *RecordService) postWrite(ctx context.Context, user *models.UserPrincipal, table *models.Table, fields []*models.Field, rec *models.Record, changedFieldIDs []string) error {
	computed, err := s.compute.RecomputeRecord(ctx, table.BaseID, fields, rec, changedFieldIDs)
	if err != nil {
		return err
	}
	if len(computed) > 0 {
		changes, err := fieldChangesToColumns(computed, fields)
		if err != nil {
			return err
		}
		update := persistence.RecordUpdate{RecordID: rec.ID, Changes: changes}
		if err := s.records.BatchUpdate(ctx, table.BaseID, table.ID, []persistence.RecordUpdate{update}, fields, user.ID); err != nil {
			return err
		}
	}

	allChanged := append(append([]string{}, changedFieldIDs...), mapKeys(computed)...)

	if _, err := s.titles.PropagateTitle(ctx, table.BaseID, table.ID, rec.ID, allChanged, rec.Data); err != nil {
		log.Printf("⚠️ Title propagation for %s failed: %v", rec.ID, err)
	}

	if err := s.recomputeForeign(ctx, user, table.BaseID, table.ID, rec.ID, allChanged); err != nil {
		log.Printf("⚠️ Cross-table recompute for %s failed: %v", rec.ID, err)
	}

	s.broadcastRecordOps(ctx, table.ID, rec, allChanged)
	return nil
}

// recomputeForeign re-evaluates derived fields on other tables whose
// records link to the changed record.
func (s *RecordService) recomputeForeign(ctx context.Context, user *models.UserPrincipal, baseID, sourceTableID, recordID string, changedFieldIDs []string) error {
	groups, err := s.compute.ForeignDependents(ctx, baseID, sourceTableID, recordID, changedFieldIDs)
	if err != nil {
		return err
	}
	for _, group := range groups {
		hostFields, err := s.fields.ListByTable(ctx, group.TableID)
		if err != nil {
			return err
		}
		hosts, err := s.records.GetMany(ctx, baseID, group.TableID, group.RecordIDs, hostFields)
		if err != nil {
			return err
		}
		var updates []persistence.RecordUpdate
		for _, host := range hosts {
			computed, err := s.compute.RecomputeRecord(ctx, baseID, hostFields, host, nil)
			if err != nil {
				return err
			}
			changes, err := fieldChangesToColumns(filterKeys(computed, group.FieldIDs), hostFields)
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				continue
			}
			updates = append(updates, persistence.RecordUpdate{RecordID: host.ID, Changes: changes})
			s.broadcastRecordOps(ctx, group.TableID, host, group.FieldIDs)
		}
		if len(updates) > 0 {
			if err := s.records.BatchUpdate(ctx, baseID, group.TableID, updates, hostFields, user.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// scrubLinkReferences clears every link cell in the base that still points
// at a deleted record.
func (s *RecordService) scrubLinkReferences(ctx context.Context, baseID, sourceTableID, recordID string) error {
	tables, err := s.tables.ListByBase(ctx, baseID)
	if err != nil {
		return err
	}
	tableIDs := make([]string, len(tables))
	for i, t := range tables {
		tableIDs[i] = t.ID
	}
	fieldsByTable, err := s.fields.ListByTables(ctx, tableIDs)
	if err != nil {
		return err
	}

	for hostTableID, hostFields := range fieldsByTable {
		for _, f := range hostFields {
			link := f.LinkOptions()
			if link == nil || link.ForeignTableID != sourceTableID {
				continue
			}
			var touched []persistence.TitleUpdate
			if link.IsMultiValue() {
				touched, err = s.records.ClearArrayCellRef(ctx, baseID, hostTableID, f.DBFieldName, recordID)
			} else {
				touched, err = s.records.ClearObjectCellRef(ctx, baseID, hostTableID, f.DBFieldName, recordID)
			}
			if err != nil {
				return err
			}
			collection := constants.CollectionRecordPrefix + hostTableID
			for _, u := range touched {
				op := models.OTOp{P: []any{"data", f.ID}, OI: u.Value}
				if err := s.publisher.PublishOp(ctx, collection, u.RecordID, []models.OTOp{op}); err != nil {
					log.Printf("⚠️ Failed to broadcast link scrub on %s/%s: %v", collection, u.RecordID, err)
				}
			}
		}
	}
	return nil
}

// broadcastRecordOps publishes one op per changed cell on the record's
// document.
func (s *RecordService) broadcastRecordOps(ctx context.Context, tableID string, rec *models.Record, changedFieldIDs []string) {
	if len(changedFieldIDs) == 0 {
		return
	}
	ops := make([]models.OTOp, 0, len(changedFieldIDs))
	for _, fieldID := range changedFieldIDs {
		ops = append(ops, models.OTOp{P: []any{"data", fieldID}, OI: rec.Data[fieldID]})
	}
	collection := constants.CollectionRecordPrefix + tableID
	if err := s.publisher.PublishOp(ctx, collection, rec.ID, ops); err != nil {
		log.Printf("⚠️ Failed to broadcast record ops on %s/%s: %v", collection, rec.ID, err)
	}
}

// normalizeData validates a write payload against the table's fields.
// Returns the payload keyed by field id plus the physical column changes.
// Computed fields are rejected; link cells are normalized and given their
// cached titles.
func (s *RecordService) normalizeData(ctx context.Context, baseID string, fields []*models.Field, data map[string]any) (map[string]any, map[string]any, error) {
	byID := make(map[string]*models.Field, len(fields))
	byName := make(map[string]*models.Field, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
		byName[f.Name] = f
	}

	normalized := make(map[string]any, len(data))
	changes := make(map[string]any, len(data))
	for key, value := range data {
		field, ok := byID[key]
		if !ok {
			field, ok = byName[key]
		}
		if !ok {
			return nil, nil, apperrors.NewValidationError(key, "unknown field")
		}
		if field.IsComputed() {
			return nil, nil, apperrors.NewValidationError(field.Name,
				"computed fields cannot be written directly")
		}

		if field.Type == constants.FieldTypeLink {
			cell, err := s.normalizeLinkCell(ctx, baseID, field, value)
			if err != nil {
				return nil, nil, err
			}
			value = cell
		}

		normalized[field.ID] = value
		changes[field.DBFieldName] = value
	}
	return normalized, changes, nil
}

// normalizeLinkCell accepts a record id, a {id} object, or an array of
// either, resolves titles from the foreign lookup field and returns the
// stored cell shape.
func (s *RecordService) normalizeLinkCell(ctx context.Context, baseID string, field *models.Field, value any) (any, error) {
	link := field.LinkOptions()
	if link == nil {
		return nil, apperrors.NewInvalidOptionError("options", "link field without link options")
	}
	if value == nil {
		return nil, nil
	}

	ids := referencedIDs(value)
	if len(ids) == 0 {
		if link.IsMultiValue() {
			return []models.LinkCell{}, nil
		}
		return nil, nil
	}
	if !link.IsMultiValue() && len(ids) > 1 {
		return nil, apperrors.NewValidationError(field.Name,
			fmt.Sprintf("%s links accept a single record", link.Relationship))
	}

	titles, err := s.resolveTitles(ctx, baseID, link, ids)
	if err != nil {
		return nil, err
	}

	cells := make([]models.LinkCell, len(ids))
	for i, id := range ids {
		cells[i] = models.LinkCell{ID: id, Title: titles[id]}
	}
	if link.IsMultiValue() {
		return cells, nil
	}
	return cells[0], nil
}

// resolveTitles reads the lookup values of the referenced foreign records.
// A reference to a missing record fails the write.
func (s *RecordService) resolveTitles(ctx context.Context, baseID string, link *models.LinkOptions, ids []string) (map[string]string, error) {
	foreignFields, err := s.fields.ListByTable(ctx, link.ForeignTableID)
	if err != nil {
		return nil, err
	}
	foreign, err := s.records.GetMany(ctx, baseID, link.ForeignTableID, ids, foreignFields)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Record, len(foreign))
	for _, rec := range foreign {
		byID[rec.ID] = rec
	}

	titles := make(map[string]string, len(ids))
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			return nil, apperrors.NewNotFoundError("record", id)
		}
		title := ""
		if link.LookupFieldID != "" {
			title = renderTitle(rec.Data[link.LookupFieldID])
		}
		if title == "" {
			title = rec.ID
		}
		titles[id] = title
	}
	return titles, nil
}

// translateFilter maps display names to physical columns and hands the
// expression to the SQL translator.
func (s *RecordService) translateFilter(filter string, fields []*models.Field) (string, []any, error) {
	allowed := make(map[string]string, len(fields)+len(constants.SystemColumns))
	for _, f := range fields {
		allowed[f.Name] = f.DBFieldName
		allowed[f.ID] = f.DBFieldName
	}
	for _, c := range constants.SystemColumns {
		allowed[c] = c
	}
	return s.translator.Translate(filter, allowed, 1)
}

func resolveOrderColumn(orderBy string, fields []*models.Field) (string, error) {
	if constants.IsSystemColumn(orderBy) {
		return orderBy, nil
	}
	for _, f := range fields {
		if f.ID == orderBy || f.Name == orderBy {
			return f.DBFieldName, nil
		}
	}
	return "", apperrors.NewValidationError("orderBy",
		fmt.Sprintf("unknown sort field '%s'", orderBy))
}

// referencedIDs extracts record ids from the accepted link payload shapes.
func referencedIDs(value any) []string {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	case map[string]any:
		if id, ok := v["id"].(string); ok && id != "" {
			return []string{id}
		}
		return nil
	case models.LinkCell:
		return []string{v.ID}
	case []models.LinkCell:
		ids := make([]string, 0, len(v))
		for _, c := range v {
			ids = append(ids, c.ID)
		}
		return ids
	case []any:
		var ids []string
		for _, e := range v {
			ids = append(ids, referencedIDs(e)...)
		}
		return ids
	case []string:
		return v
	}
	return nil
}

// applyDefaults fills cells the payload omitted with the defaults declared
// in the field options. Only create paths call this; updates leave omitted
// cells untouched. Computed fields never carry defaults.
func applyDefaults(fields []*models.Field, data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, f := range fields {
		if f.IsComputed() || f.Options == nil {
			continue
		}
		if _, ok := data[f.ID]; ok {
			continue
		}
		if _, ok := data[f.Name]; ok {
			continue
		}
		if def, ok := optionDefault(f.Options); ok {
			out[f.ID] = def
		}
	}
	return out
}

// optionDefault reads the active variant's default value. The date default
// "now" resolves to the creation timestamp.
func optionDefault(opts *models.FieldOptions) (any, bool) {
	switch {
	case opts.Common != nil && opts.Common.DefaultValue != nil:
		return opts.Common.DefaultValue, true
	case opts.Number != nil && opts.Number.DefaultValue != nil:
		return *opts.Number.DefaultValue, true
	case opts.Select != nil && opts.Select.DefaultValue != nil:
		return opts.Select.DefaultValue, true
	case opts.Date != nil && opts.Date.DefaultValue != "":
		if opts.Date.DefaultValue == "now" {
			return time.Now().UTC().Format(time.RFC3339), true
		}
		return opts.Date.DefaultValue, true
	}
	return nil, false
}

// fieldChangesToColumns turns a field-id keyed value map into the column
// keyed shape the record store writes.
func fieldChangesToColumns(changes map[string]any, fields []*models.Field) (map[string]any, error) {
	byID := make(map[string]*models.Field, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}
	out := make(map[string]any, len(changes))
	for fieldID, value := range changes {
		f, ok := byID[fieldID]
		if !ok {
			return nil, apperrors.NewValidationError(fieldID, "unknown field in change set")
		}
		out[f.DBFieldName] = value
	}
	return out, nil
}

func dataFieldIDs(data map[string]any) []string {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	return ids
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func filterKeys(m map[string]any, keep []string) map[string]any {
	allowed := make(map[string]bool, len(keep))
	for _, k := range keep {
		allowed[k] = true
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if allowed[k] {
			out[k] = v
		}
	}
	return out
}
