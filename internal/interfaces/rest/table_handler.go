package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/easyspace-ai/easygrid/internal/application/services"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// TableHandler exposes the table and view endpoints.
type TableHandler struct {
	tables *services.TableService
}

// NewTableHandler creates a new TableHandler
func NewTableHandler(tables *services.TableService) *TableHandler {
	return &TableHandler{tables: tables}
}

// CreateTable handles POST /api/bases/:baseId/tables
func (h *TableHandler) CreateTable(c *gin.Context) {
	var input services.CreateTableInput
	if !BindJSON(c, &input) {
		return
	}
	table, err := h.tables.CreateTable(c.Request.Context(), GetUserFromContext(c), c.Param("baseId"), input)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, "table", table)
}

// ListTables handles GET /api/bases/:baseId/tables
func (h *TableHandler) ListTables(c *gin.Context) {
	tables, err := h.tables.ListTables(c.Request.Context(), c.Param("baseId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "tables", tables)
}

// GetTable handles GET /api/tables/:tableId
func (h *TableHandler) GetTable(c *gin.Context) {
	table, err := h.tables.GetTable(c.Request.Context(), c.Param("tableId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "table", table)
}

// UpdateTable handles PATCH /api/tables/:tableId
func (h *TableHandler) UpdateTable(c *gin.Context) {
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if !BindJSON(c, &req) {
		return
	}
	table, err := h.tables.UpdateTable(c.Request.Context(), GetUserFromContext(c), c.Param("tableId"), req.Name, req.Description)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "table", table)
}

// DeleteTable handles DELETE /api/tables/:tableId
func (h *TableHandler) DeleteTable(c *gin.Context) {
	if err := h.tables.DeleteTable(c.Request.Context(), GetUserFromContext(c), c.Param("tableId")); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondDeleted(c)
}

// CreateView handles POST /api/tables/:tableId/views
func (h *TableHandler) CreateView(c *gin.Context) {
	var view models.View
	if !BindJSON(c, &view) {
		return
	}
	created, err := h.tables.CreateView(c.Request.Context(), GetUserFromContext(c), c.Param("tableId"), &view)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, "view", created)
}

// ListViews handles GET /api/tables/:tableId/views
func (h *TableHandler) ListViews(c *gin.Context) {
	views, err := h.tables.ListViews(c.Request.Context(), c.Param("tableId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "views", views)
}

// UpdateView handles PATCH /api/views/:viewId
func (h *TableHandler) UpdateView(c *gin.Context) {
	var view models.View
	if !BindJSON(c, &view) {
		return
	}
	view.ID = c.Param("viewId")
	if err := h.tables.UpdateView(c.Request.Context(), GetUserFromContext(c), &view); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "view", view)
}

// DeleteView handles DELETE /api/views/:viewId
func (h *TableHandler) DeleteView(c *gin.Context) {
	if err := h.tables.DeleteView(c.Request.Context(), GetUserFromContext(c), c.Param("viewId")); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondDeleted(c)
}
