package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/easyspace-ai/easygrid/internal/application/services"
)

// RecordHandler exposes the record store endpoints.
type RecordHandler struct {
	records *services.RecordService
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(records *services.RecordService) *RecordHandler {
	return &RecordHandler{records: records}
}

// ListRecords handles GET /api/tables/:tableId/records
func (h *RecordHandler) ListRecords(c *gin.Context) {
	input := services.ListRecordsInput{
		Filter:  c.Query("filter"),
		OrderBy: c.Query("orderBy"),
		Desc:    c.Query("desc") == "true",
	}
	if limit := c.Query("limit"); limit != "" {
		input.Limit, _ = strconv.Atoi(limit)
	}
	if offset := c.Query("offset"); offset != "" {
		input.Offset, _ = strconv.Atoi(offset)
	}

	records, total, err := h.records.ListRecords(c.Request.Context(), GetUserFromContext(c), c.Param("tableId"), input)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": total})
}

// GetRecord handles GET /api/tables/:tableId/records/:recordId
func (h *RecordHandler) GetRecord(c *gin.Context) {
	record, err := h.records.GetRecord(c.Request.Context(), GetUserFromContext(c), c.Param("tableId"), c.Param("recordId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "record", record)
}

// CreateRecord handles POST /api/tables/:tableId/records
func (h *RecordHandler) CreateRecord(c *gin.Context) {
	var req struct {
		Data map[string]any `json:"data"`
	}
	if !BindJSON(c, &req) {
		return
	}
	record, err := h.records.CreateRecord(c.Request.Context(), GetUserFromContext(c), c.Param("tableId"), req.Data)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, "record", record)
}

// CreateRecords handles POST /api/tables/:tableId/records/batch
func (h *RecordHandler) CreateRecords(c *gin.Context) {
	var req struct {
		Records []map[string]any `json:"records"`
		Mode    string           `json:"mode"`
	}
	if !BindJSON(c, &req) {
		return
	}
	result, err := h.records.CreateRecords(c.Request.Context(), GetUserFromContext(c), c.Param("tableId"), req.Records, writeMode(req.Mode))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, "result", result)
}

// UpdateRecord handles PATCH /api/tables/:tableId/records/:recordId
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	var req struct {
		Data    map[string]any `json:"data"`
		Version int64          `json:"version"`
	}
	if !BindJSON(c, &req) {
		return
	}
	record, err := h.records.UpdateRecord(c.Request.Context(), GetUserFromContext(c),
		c.Param("tableId"), c.Param("recordId"), req.Data, req.Version)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "record", record)
}

// BatchUpdateRecords handles PATCH /api/tables/:tableId/records
func (h *RecordHandler) BatchUpdateRecords(c *gin.Context) {
	var req struct {
		Records []services.RecordWrite `json:"records"`
		Mode    string                 `json:"mode"`
	}
	if !BindJSON(c, &req) {
		return
	}
	result, err := h.records.BatchUpdateRecords(c.Request.Context(), GetUserFromContext(c),
		c.Param("tableId"), req.Records, writeMode(req.Mode))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "result", result)
}

// DeleteRecord handles DELETE /api/tables/:tableId/records/:recordId
func (h *RecordHandler) DeleteRecord(c *gin.Context) {
	if err := h.records.DeleteRecord(c.Request.Context(), GetUserFromContext(c), c.Param("tableId"), c.Param("recordId")); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondDeleted(c)
}

// DeleteRecords handles POST /api/tables/:tableId/records/delete
func (h *RecordHandler) DeleteRecords(c *gin.Context) {
	var req struct {
		RecordIDs []string `json:"recordIds"`
		Mode      string   `json:"mode"`
	}
	if !BindJSON(c, &req) {
		return
	}
	result, err := h.records.DeleteRecords(c.Request.Context(), GetUserFromContext(c),
		c.Param("tableId"), req.RecordIDs, writeMode(req.Mode))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "result", result)
}

func writeMode(mode string) services.WriteMode {
	if mode == string(services.WriteModeBestEffort) {
		return services.WriteModeBestEffort
	}
	return services.WriteModeAllOrNothing
}
