// Package ports defines the interfaces the engine consumes from external
// collaborators. Implementations are supplied at wiring time.
package ports

import (
	"context"

	"github.com/easyspace-ai/easygrid/pkg/models"
)

// Resource addresses a permission-checked entity.
type Resource struct {
	Type string // space, base, table, field, view
	ID   string
}

// PermissionChecker is the external permission collaborator. The engine
// never infers permission from roles itself; it only asks.
type PermissionChecker interface {
	Can(ctx context.Context, user *models.UserPrincipal, resource Resource, action string) error
}

// AllowAll is the default checker used when no permission service is wired.
type AllowAll struct{}

// Can always grants access
func (AllowAll) Can(ctx context.Context, user *models.UserPrincipal, resource Resource, action string) error {
	return nil
}
