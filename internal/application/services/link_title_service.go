package services

import (
	"context"
	"fmt"
	"log"

	"github.com/easyspace-ai/easygrid/internal/domain/ports"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// LinkTitleService keeps the titles cached inside link cells in sync with
// their source field. When a record's title source changes, every link
// cell in the base that points at the record is rewritten in place and the
// hosts are broadcast.
type LinkTitleService struct {
	fields    *persistence.FieldRepository
	tables    *persistence.TableRepository
	records   *persistence.RecordRepository
	publisher ports.OpPublisher
}

// NewLinkTitleService creates a new LinkTitleService
func NewLinkTitleService(fields *persistence.FieldRepository, tables *persistence.TableRepository, records *persistence.RecordRepository, publisher ports.OpPublisher) *LinkTitleService {
	return &LinkTitleService{
		fields:    fields,
		tables:    tables,
		records:   records,
		publisher: publisher,
	}
}

// PropagateTitle fans a changed record's new title out to every link cell
// referencing it. changedFieldIDs are the fields just written (ids or, for
// callers holding display data, names); only link fields whose lookup
// source is among them react. Returns the number of rewritten host cells.
func (s *LinkTitleService) PropagateTitle(ctx context.Context, baseID, sourceTableID, recordID string, changedFieldIDs []string, data map[string]any) (int, error) {
	changed := make(map[string]bool, len(changedFieldIDs))
	for _, id := range changedFieldIDs {
		changed[id] = true
	}

	tables, err := s.tables.ListByBase(ctx, baseID)
	if err != nil {
		return 0, err
	}
	tableIDs := make([]string, len(tables))
	for i, t := range tables {
		tableIDs[i] = t.ID
	}
	fieldsByTable, err := s.fields.ListByTables(ctx, tableIDs)
	if err != nil {
		return 0, err
	}
	sourceFields := fieldsByTable[sourceTableID]

	total := 0
	for hostTableID, hostFields := range fieldsByTable {
		for _, f := range hostFields {
			link := f.LinkOptions()
			if link == nil || link.ForeignTableID != sourceTableID {
				continue
			}
			lookup := effectiveLookupField(link.LookupFieldID, sourceFields)
			if lookup == nil {
				continue
			}
			if !changed[lookup.ID] && !changed[lookup.Name] {
				continue
			}
			title := resolveTitle(data, lookup)

			var updates []persistence.TitleUpdate
			if link.IsMultiValue() {
				updates, err = s.records.UpdateArrayCellTitle(ctx, baseID, hostTableID, f.DBFieldName, recordID, title)
			} else {
				updates, err = s.records.UpdateObjectCellTitle(ctx, baseID, hostTableID, f.DBFieldName, recordID, title)
			}
			if err != nil {
				return total, err
			}
			if len(updates) == 0 {
				continue
			}
			total += len(updates)
			log.Printf("🔄 Propagated title to %d cells of %s.%s", len(updates), hostTableID, f.DBFieldName)
			s.broadcastTitleUpdates(ctx, hostTableID, f.ID, updates)
		}
	}
	return total, nil
}

// broadcastTitleUpdates publishes one op per rewritten host record on the
// host table's record collection.
func (s *LinkTitleService) broadcastTitleUpdates(ctx context.Context, hostTableID, linkFieldID string, updates []persistence.TitleUpdate) {
	collection := constants.CollectionRecordPrefix + hostTableID
	for _, u := range updates {
		op := models.OTOp{P: []any{"data", linkFieldID}, OI: u.Value}
		if err := s.publisher.PublishOp(ctx, collection, u.RecordID, []models.OTOp{op}); err != nil {
			log.Printf("⚠️ Failed to broadcast title update on %s/%s: %v", collection, u.RecordID, err)
		}
	}
}

// effectiveLookupField maps a stored lookup id to the live field. A stale
// id, or no id at all, falls back to the first plain field of the source
// table in display order, mirroring how link creation resolves the lookup.
func effectiveLookupField(lookupFieldID string, sourceFields []*models.Field) *models.Field {
	if lookupFieldID != "" {
		for _, f := range sourceFields {
			if f.ID == lookupFieldID {
				return f
			}
		}
	}
	for _, f := range sourceFields {
		if constants.IsVirtualFieldType(f.Type) || f.Type == constants.FieldTypeLink {
			continue
		}
		return f
	}
	return nil
}

// resolveTitle picks the new title out of the changed data. Data keyed by
// field name wins over data keyed by field id when both are present.
func resolveTitle(data map[string]any, lookup *models.Field) string {
	if v, ok := data[lookup.Name]; ok {
		return renderTitle(v)
	}
	return renderTitle(data[lookup.ID])
}

// renderTitle turns the source cell value into the cached title string.
func renderTitle(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
