package rest

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// GetUserFromContext extracts the authenticated principal from gin.Context
func GetUserFromContext(c *gin.Context) *models.UserPrincipal {
	userInterface, exists := c.Get(constants.ContextKeyUser)
	if !exists {
		return nil
	}
	user, ok := userInterface.(*models.UserPrincipal)
	if !ok {
		return nil
	}
	return user
}

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	status := apperrors.GetHTTPStatus(err)
	if status >= 500 {
		log.Printf("❌ ERROR [%d] %s %s: %v", status, c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, apperrors.ToResponse(err))
}

// BindJSON binds JSON and returns true if successful. If failed, it sends bad request error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, apperrors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// RespondOK wraps a payload under a JSON key.
func RespondOK(c *gin.Context, key string, payload any) {
	c.JSON(http.StatusOK, gin.H{key: payload})
}

// RespondCreated wraps a freshly created resource under a JSON key.
func RespondCreated(c *gin.Context, key string, payload any) {
	c.JSON(http.StatusCreated, gin.H{key: payload})
}

// RespondDeleted reports a completed delete.
func RespondDeleted(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
