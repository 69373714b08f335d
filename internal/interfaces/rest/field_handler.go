package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/easyspace-ai/easygrid/internal/application/services"
)

// FieldHandler exposes the field registry endpoints.
type FieldHandler struct {
	fields *services.FieldService
}

// NewFieldHandler creates a new FieldHandler
func NewFieldHandler(fields *services.FieldService) *FieldHandler {
	return &FieldHandler{fields: fields}
}

// CreateField handles POST /api/tables/:tableId/fields
func (h *FieldHandler) CreateField(c *gin.Context) {
	var input services.CreateFieldInput
	if !BindJSON(c, &input) {
		return
	}
	field, err := h.fields.CreateField(c.Request.Context(), GetUserFromContext(c), c.Param("tableId"), input)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, "field", field)
}

// ListFields handles GET /api/tables/:tableId/fields
func (h *FieldHandler) ListFields(c *gin.Context) {
	fields, err := h.fields.GetFields(c.Request.Context(), c.Param("tableId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "fields", fields)
}

// GetField handles GET /api/fields/:fieldId
func (h *FieldHandler) GetField(c *gin.Context) {
	field, err := h.fields.GetField(c.Request.Context(), c.Param("fieldId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "field", field)
}

// UpdateField handles PATCH /api/fields/:fieldId
func (h *FieldHandler) UpdateField(c *gin.Context) {
	var input services.UpdateFieldInput
	if !BindJSON(c, &input) {
		return
	}
	field, err := h.fields.UpdateField(c.Request.Context(), GetUserFromContext(c), c.Param("fieldId"), input)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "field", field)
}

// DeleteField handles DELETE /api/fields/:fieldId
func (h *FieldHandler) DeleteField(c *gin.Context) {
	if err := h.fields.DeleteField(c.Request.Context(), GetUserFromContext(c), c.Param("fieldId")); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondDeleted(c)
}
