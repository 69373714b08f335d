package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/easyspace-ai/easygrid/internal/application/services"
	"github.com/easyspace-ai/easygrid/pkg/constants"
)

// SpaceHandler exposes the space, base and collaborator endpoints.
type SpaceHandler struct {
	spaces *services.SpaceService
}

// NewSpaceHandler creates a new SpaceHandler
func NewSpaceHandler(spaces *services.SpaceService) *SpaceHandler {
	return &SpaceHandler{spaces: spaces}
}

// CreateSpace handles POST /api/spaces
func (h *SpaceHandler) CreateSpace(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if !BindJSON(c, &req) {
		return
	}
	space, err := h.spaces.CreateSpace(c.Request.Context(), GetUserFromContext(c), req.Name)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, "space", space)
}

// ListSpaces handles GET /api/spaces
func (h *SpaceHandler) ListSpaces(c *gin.Context) {
	spaces, err := h.spaces.ListSpaces(c.Request.Context(), GetUserFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "spaces", spaces)
}

// GetSpace handles GET /api/spaces/:spaceId
func (h *SpaceHandler) GetSpace(c *gin.Context) {
	space, err := h.spaces.GetSpace(c.Request.Context(), c.Param("spaceId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "space", space)
}

// RenameSpace handles PATCH /api/spaces/:spaceId
func (h *SpaceHandler) RenameSpace(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if !BindJSON(c, &req) {
		return
	}
	if err := h.spaces.RenameSpace(c.Request.Context(), GetUserFromContext(c), c.Param("spaceId"), req.Name); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "space", gin.H{"id": c.Param("spaceId"), "name": req.Name})
}

// DeleteSpace handles DELETE /api/spaces/:spaceId
func (h *SpaceHandler) DeleteSpace(c *gin.Context) {
	if err := h.spaces.DeleteSpace(c.Request.Context(), GetUserFromContext(c), c.Param("spaceId")); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondDeleted(c)
}

// CreateBase handles POST /api/spaces/:spaceId/bases
func (h *SpaceHandler) CreateBase(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	}
	if !BindJSON(c, &req) {
		return
	}
	base, err := h.spaces.CreateBase(c.Request.Context(), GetUserFromContext(c), c.Param("spaceId"), req.Name, req.Icon)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, "base", base)
}

// ListBases handles GET /api/spaces/:spaceId/bases
func (h *SpaceHandler) ListBases(c *gin.Context) {
	bases, err := h.spaces.ListBases(c.Request.Context(), c.Param("spaceId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "bases", bases)
}

// GetBase handles GET /api/bases/:baseId
func (h *SpaceHandler) GetBase(c *gin.Context) {
	base, err := h.spaces.GetBase(c.Request.Context(), c.Param("baseId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "base", base)
}

// UpdateBase handles PATCH /api/bases/:baseId
func (h *SpaceHandler) UpdateBase(c *gin.Context) {
	var req struct {
		Name *string `json:"name"`
		Icon *string `json:"icon"`
	}
	if !BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	base, err := h.spaces.GetBase(ctx, c.Param("baseId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	if req.Name != nil {
		base.Name = *req.Name
	}
	if req.Icon != nil {
		base.Icon = *req.Icon
	}
	if err := h.spaces.UpdateBase(ctx, GetUserFromContext(c), base); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, "base", base)
}

// DeleteBase handles DELETE /api/bases/:baseId
func (h *SpaceHandler) DeleteBase(c *gin.Context) {
	if err := h.spaces.DeleteBase(c.Request.Context(), GetUserFromContext(c), c.Param("baseId")); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondDeleted(c)
}

// AddCollaborator handles POST /api/spaces/:spaceId/collaborators and the
// base-scoped sibling.
func (h *SpaceHandler) AddCollaborator(resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PrincipalID string `json:"principalId"`
			Role        string `json:"role"`
		}
		if !BindJSON(c, &req) {
			return
		}
		collab, err := h.spaces.AddCollaborator(c.Request.Context(), GetUserFromContext(c),
			resourceType, h.resourceID(c, resourceType), req.PrincipalID, req.Role)
		if err != nil {
			RespondAppError(c, err)
			return
		}
		RespondCreated(c, "collaborator", collab)
	}
}

// ListCollaborators handles GET .../collaborators
func (h *SpaceHandler) ListCollaborators(resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		collabs, err := h.spaces.ListCollaborators(c.Request.Context(), resourceType, h.resourceID(c, resourceType))
		if err != nil {
			RespondAppError(c, err)
			return
		}
		RespondOK(c, "collaborators", collabs)
	}
}

// RemoveCollaborator handles DELETE .../collaborators/:principalId
func (h *SpaceHandler) RemoveCollaborator(resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.spaces.RemoveCollaborator(c.Request.Context(), GetUserFromContext(c),
			resourceType, h.resourceID(c, resourceType), c.Param("principalId"))
		if err != nil {
			RespondAppError(c, err)
			return
		}
		RespondDeleted(c)
	}
}

func (h *SpaceHandler) resourceID(c *gin.Context, resourceType string) string {
	if resourceType == constants.ResourceBase {
		return c.Param("baseId")
	}
	return c.Param("spaceId")
}
