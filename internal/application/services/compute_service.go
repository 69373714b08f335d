package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/formula"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// ComputeService evaluates the derived field types: formula, rollup,
// lookup and count. Formulas resolve within the record; the link-based
// types read the foreign table through the record's link cells.
type ComputeService struct {
	fields  *persistence.FieldRepository
	tables  *persistence.TableRepository
	records *persistence.RecordRepository
	graph   *DependencyGraphService
	engine  *formula.Engine
}

// NewComputeService creates a new ComputeService
func NewComputeService(fields *persistence.FieldRepository, tables *persistence.TableRepository, records *persistence.RecordRepository, graph *DependencyGraphService, engine *formula.Engine) *ComputeService {
	return &ComputeService{
		fields:  fields,
		tables:  tables,
		records: records,
		graph:   graph,
		engine:  engine,
	}
}

// ForeignRecompute describes cross-table recomputation triggered by a
// record change: derived fields on another table whose records link to the
// changed record.
type ForeignRecompute struct {
	TableID   string
	FieldIDs  []string
	RecordIDs []string
}

// RecomputeRecord evaluates the record's derived fields affected by the
// changed fields, in dependency order, and returns the new values keyed by
// field id. changedFieldIDs == nil recomputes every derived field.
func (s *ComputeService) RecomputeRecord(ctx context.Context, baseID string, tableFields []*models.Field, rec *models.Record, changedFieldIDs []string) (map[string]any, error) {
	graph, err := s.graph.Get(ctx, baseID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Field, len(tableFields))
	for _, f := range tableFields {
		byID[f.ID] = f
	}

	var targets []string
	if changedFieldIDs == nil {
		for _, f := range tableFields {
			if f.IsComputed() {
				targets = append(targets, f.ID)
			}
		}
	} else {
		seen := map[string]bool{}
		for _, changed := range changedFieldIDs {
			for _, dep := range graph.TransitiveDependents(changed) {
				// cross-table dependents are handled by ForeignDependents
				if _, sameTable := byID[dep]; sameTable && !seen[dep] {
					seen[dep] = true
					targets = append(targets, dep)
				}
			}
		}
	}

	changes := make(map[string]any)
	for _, id := range targets {
		field := byID[id]
		if field == nil || !field.IsComputed() {
			continue
		}
		value, err := s.evaluateField(ctx, baseID, field, tableFields, rec)
		if err != nil {
			// A broken derivation yields a null cell, not a failed write.
			log.Printf("⚠️ Failed to compute field %s on record %s: %v", field.ID, rec.ID, err)
			value = nil
		}
		rec.Data[field.ID] = value
		changes[field.ID] = value
	}
	return changes, nil
}

// ForeignDependents finds the derived fields of other tables that read the
// changed fields through links, grouped with the records that must be
// recomputed because they link to recordID.
func (s *ComputeService) ForeignDependents(ctx context.Context, baseID, sourceTableID, recordID string, changedFieldIDs []string) ([]ForeignRecompute, error) {
	graph, err := s.graph.Get(ctx, baseID)
	if err != nil {
		return nil, err
	}

	// dependent field id -> host table id
	hostByField := map[string]string{}
	for _, changed := range changedFieldIDs {
		for _, dep := range graph.TransitiveDependents(changed) {
			f, ok := graph.Field(dep)
			if !ok || f.TableID == sourceTableID || !f.IsComputed() {
				continue
			}
			hostByField[dep] = f.TableID
		}
	}
	if len(hostByField) == 0 {
		return nil, nil
	}

	// group fields per host table, then locate the linking records once per
	// distinct link column
	fieldsByTable := map[string][]string{}
	for fieldID, tableID := range hostByField {
		fieldsByTable[tableID] = append(fieldsByTable[tableID], fieldID)
	}

	var result []ForeignRecompute
	for tableID, fieldIDs := range fieldsByTable {
		sort.Strings(fieldIDs)
		recordIDs, err := s.linkingRecords(ctx, baseID, tableID, recordID, fieldIDs, graph)
		if err != nil {
			return nil, err
		}
		if len(recordIDs) == 0 {
			continue
		}
		result = append(result, ForeignRecompute{
			TableID:   tableID,
			FieldIDs:  fieldIDs,
			RecordIDs: recordIDs,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TableID < result[j].TableID })
	return result, nil
}

// linkingRecords unions the hosts of every link column the derived fields
// read.
func (s *ComputeService) linkingRecords(ctx context.Context, baseID, tableID, foreignRecordID string, fieldIDs []string, graph *FieldGraph) ([]string, error) {
	seenColumns := map[string]bool{}
	seenRecords := map[string]bool{}
	var ids []string

	for _, fieldID := range fieldIDs {
		f, ok := graph.Field(fieldID)
		if !ok || f.Options == nil {
			continue
		}
		var linkFieldID string
		switch f.Type {
		case constants.FieldTypeRollup:
			linkFieldID = f.Options.Rollup.LinkFieldID
		case constants.FieldTypeLookup:
			linkFieldID = f.Options.Lookup.LinkFieldID
		case constants.FieldTypeCount:
			linkFieldID = f.Options.Count.LinkFieldID
		default:
			continue
		}
		link, ok := graph.Field(linkFieldID)
		if !ok || link.LinkOptions() == nil || seenColumns[link.DBFieldName] {
			continue
		}
		seenColumns[link.DBFieldName] = true

		found, err := s.records.FindLinkingRecords(ctx, baseID, tableID,
			link.DBFieldName, foreignRecordID, link.LinkOptions().IsMultiValue())
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			if !seenRecords[id] {
				seenRecords[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// evaluateField dispatches on the derived type.
func (s *ComputeService) evaluateField(ctx context.Context, baseID string, field *models.Field, tableFields []*models.Field, rec *models.Record) (any, error) {
	switch field.Type {
	case constants.FieldTypeFormula:
		return s.evaluateFormula(field, tableFields, rec)
	case constants.FieldTypeRollup:
		return s.evaluateRollup(ctx, baseID, field, tableFields, rec)
	case constants.FieldTypeLookup:
		return s.evaluateLookup(ctx, baseID, field, tableFields, rec)
	case constants.FieldTypeCount:
		return s.evaluateCount(field, tableFields, rec)
	}
	return nil, fmt.Errorf("field %s is not a derived type", field.ID)
}

func (s *ComputeService) evaluateFormula(field *models.Field, tableFields []*models.Field, rec *models.Record) (any, error) {
	if field.Options == nil || field.Options.Formula == nil {
		return nil, fmt.Errorf("formula field %s has no expression", field.ID)
	}
	expression := field.Options.Formula.Expression
	tokens, err := formula.ExtractReferences(expression)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(tokens))
	for _, token := range tokens {
		ref := resolveFieldToken(token, tableFields)
		if ref == nil {
			return nil, fmt.Errorf("formula references unknown field '%s'", token)
		}
		values[token] = rec.Data[ref.ID]
	}
	result, err := s.engine.Evaluate(expression, values)
	if err != nil {
		return nil, err
	}
	return stringifyFormulaResult(result), nil
}

// stringifyFormulaResult renders the result into the formula column's TEXT
// storage shape.
func stringifyFormulaResult(v any) any {
	if v == nil {
		return nil
	}
	switch n := v.(type) {
	case string:
		return n
	case bool:
		if n {
			return "true"
		}
		return "false"
	case float64:
		// trim trailing zeros so 2.0 renders as "2"
		s := fmt.Sprintf("%g", n)
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (s *ComputeService) evaluateRollup(ctx context.Context, baseID string, field *models.Field, tableFields []*models.Field, rec *models.Record) (any, error) {
	opts := field.Options.Rollup
	foreign, _, err := s.foreignRecords(ctx, baseID, opts.LinkFieldID, tableFields, rec)
	if err != nil {
		return nil, err
	}

	if opts.AggregationFunction == constants.AggregationCount {
		return fmt.Sprintf("%d", len(foreign)), nil
	}
	if opts.RollupFieldID == "" {
		return nil, apperrors.NewInvalidOptionError("rollupFieldId",
			"required for aggregations other than count")
	}

	var values []any
	for _, fr := range foreign {
		if v, ok := fr.Data[opts.RollupFieldID]; ok && v != nil {
			values = append(values, v)
		}
	}
	return aggregate(opts.AggregationFunction, values)
}

func (s *ComputeService) evaluateLookup(ctx context.Context, baseID string, field *models.Field, tableFields []*models.Field, rec *models.Record) (any, error) {
	opts := field.Options.Lookup
	foreign, _, err := s.foreignRecords(ctx, baseID, opts.LinkFieldID, tableFields, rec)
	if err != nil {
		return nil, err
	}

	var values []any
	for _, fr := range foreign {
		if v, ok := fr.Data[opts.LookupFieldID]; ok && v != nil {
			values = append(values, v)
		}
	}
	// lookup cells are JSONB arrays regardless of link cardinality so the
	// shape is stable across relationship migrations
	return values, nil
}

func (s *ComputeService) evaluateCount(field *models.Field, tableFields []*models.Field, rec *models.Record) (any, error) {
	opts := field.Options.Count
	link := findFieldByID(tableFields, opts.LinkFieldID)
	if link == nil {
		return nil, fmt.Errorf("count references missing link field %s", opts.LinkFieldID)
	}
	cells := linkCellsOf(rec.Data[link.ID])
	return len(cells), nil
}

// foreignRecords loads the records the link cell points at, with the
// foreign table's fields.
func (s *ComputeService) foreignRecords(ctx context.Context, baseID, linkFieldID string, tableFields []*models.Field, rec *models.Record) ([]*models.Record, []*models.Field, error) {
	link := findFieldByID(tableFields, linkFieldID)
	if link == nil || link.LinkOptions() == nil {
		return nil, nil, fmt.Errorf("missing link field %s", linkFieldID)
	}
	cells := linkCellsOf(rec.Data[link.ID])
	if len(cells) == 0 {
		return nil, nil, nil
	}
	ids := make([]string, len(cells))
	for i, c := range cells {
		ids[i] = c.ID
	}

	foreignTableID := link.LinkOptions().ForeignTableID
	foreignFields, err := s.fields.ListByTable(ctx, foreignTableID)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.records.GetMany(ctx, baseID, foreignTableID, ids, foreignFields)
	if err != nil {
		return nil, nil, err
	}
	return records, foreignFields, nil
}

// linkCellsOf coerces a stored link cell (object or array, decoded from
// JSONB or still models.LinkCell) into a flat cell list.
func linkCellsOf(v any) []models.LinkCell {
	switch cell := v.(type) {
	case nil:
		return nil
	case models.LinkCell:
		return []models.LinkCell{cell}
	case []models.LinkCell:
		return cell
	case map[string]any:
		return []models.LinkCell{decodeLinkCell(cell)}
	case []any:
		var cells []models.LinkCell
		for _, e := range cell {
			if m, ok := e.(map[string]any); ok {
				cells = append(cells, decodeLinkCell(m))
			}
		}
		return cells
	}
	return nil
}

func decodeLinkCell(m map[string]any) models.LinkCell {
	cell := models.LinkCell{}
	if id, ok := m["id"].(string); ok {
		cell.ID = id
	}
	if title, ok := m["title"].(string); ok {
		cell.Title = title
	}
	return cell
}

// aggregate folds foreign values per the rollup function. Numeric
// aggregations coerce through float64; concatenate joins string renderings.
func aggregate(fn string, values []any) (any, error) {
	switch fn {
	case constants.AggregationSum, constants.AggregationAvg:
		var sum float64
		var n int
		for _, v := range values {
			f, err := coerceFloat(v)
			if err != nil {
				continue
			}
			sum += f
			n++
		}
		if fn == constants.AggregationSum {
			return sum, nil
		}
		if n == 0 {
			return nil, nil
		}
		return sum / float64(n), nil
	case constants.AggregationMin, constants.AggregationMax:
		var best *float64
		for _, v := range values {
			f, err := coerceFloat(v)
			if err != nil {
				continue
			}
			if best == nil ||
				(fn == constants.AggregationMin && f < *best) ||
				(fn == constants.AggregationMax && f > *best) {
				val := f
				best = &val
			}
		}
		if best == nil {
			return nil, nil
		}
		return *best, nil
	case constants.AggregationConcat:
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, fmt.Sprintf("%v", v))
		}
		return strings.Join(parts, ", "), nil
	case constants.AggregationCount:
		return len(values), nil
	}
	return nil, apperrors.NewInvalidOptionError("aggregationFunction",
		fmt.Sprintf("unsupported aggregation '%s'", fn))
}

func coerceFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err != nil {
			return 0, err
		}
		return f, nil
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func findFieldByID(fields []*models.Field, id string) *models.Field {
	for _, f := range fields {
		if f.ID == id {
			return f
		}
	}
	return nil
}
