package models

import (
	"time"

	"github.com/easyspace-ai/easygrid/pkg/constants"
)

// UserPrincipal identifies the acting user. Every write operation takes the
// principal as an explicit argument; there is no ambient current user.
type UserPrincipal struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Space is the top-level container. It owns bases; deletion cascades.
type Space struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	OwnerID          string     `json:"ownerId"`
	CreatedTime      time.Time  `json:"createdTime"`
	LastModifiedTime time.Time  `json:"lastModifiedTime"`
	DeletedTime      *time.Time `json:"deletedTime,omitempty"`
}

// Base is a container of tables inside a space. Each base owns a physical
// schema namespace named after its id.
type Base struct {
	ID               string    `json:"id"`
	SpaceID          string    `json:"spaceId"`
	Name             string    `json:"name"`
	Icon             string    `json:"icon,omitempty"`
	CreatedTime      time.Time `json:"createdTime"`
	LastModifiedTime time.Time `json:"lastModifiedTime"`
}

// Table is a logical table. Its physical counterpart is <baseId>.<tableId>.
type Table struct {
	ID               string    `json:"id"`
	BaseID           string    `json:"baseId"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Version          int64     `json:"version"`
	CreatedTime      time.Time `json:"createdTime"`
	LastModifiedTime time.Time `json:"lastModifiedTime"`
}

// Field is a typed column of a table. DBFieldName and DBFieldType describe
// the physical column; both are fixed at create time.
type Field struct {
	ID               string              `json:"id"`
	TableID          string              `json:"tableId"`
	Name             string              `json:"name"`
	Description      string              `json:"description,omitempty"`
	Type             constants.FieldType `json:"type"`
	DBFieldName      string              `json:"dbFieldName"`
	DBFieldType      string              `json:"dbFieldType"`
	Options          *FieldOptions       `json:"options,omitempty"`
	Required         bool                `json:"required"`
	Unique           bool                `json:"unique"`
	IsPrimary        bool                `json:"isPrimary"`
	Order            int                 `json:"order"`
	CreatedTime      time.Time           `json:"createdTime"`
	LastModifiedTime time.Time           `json:"lastModifiedTime"`
	CreatedBy        string              `json:"createdBy,omitempty"`
}

// IsComputed reports whether the field is derived from other fields.
func (f *Field) IsComputed() bool {
	return constants.IsComputedFieldType(f.Type)
}

// LinkOptions returns the link variant, or nil when f is not a link field.
func (f *Field) LinkOptions() *LinkOptions {
	if f.Type != constants.FieldTypeLink || f.Options == nil {
		return nil
	}
	return f.Options.Link
}

// Record is one row of a table. Data is keyed by field id.
type Record struct {
	ID               string         `json:"id"`
	TableID          string         `json:"tableId"`
	Data             map[string]any `json:"data"`
	Version          int64          `json:"version"`
	CreatedTime      *time.Time     `json:"createdTime,omitempty"`
	LastModifiedTime *time.Time     `json:"lastModifiedTime,omitempty"`
	CreatedBy        string         `json:"createdBy,omitempty"`
	LastModifiedBy   string         `json:"lastModifiedBy,omitempty"`
}

// LinkCell is the value stored in a link field cell: a foreign record id
// plus the cached title. Multi-valued links store an array of these.
type LinkCell struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// View is the persistence shape of a table view. The engine stores views but
// does not evaluate them.
type View struct {
	ID               string         `json:"id"`
	TableID          string         `json:"tableId"`
	Name             string         `json:"name"`
	Type             string         `json:"type"`
	Filter           map[string]any `json:"filter,omitempty"`
	Sort             map[string]any `json:"sort,omitempty"`
	ColumnMeta       map[string]any `json:"columnMeta,omitempty"`
	ShareID          string         `json:"shareId,omitempty"`
	Locked           bool           `json:"locked"`
	Order            int            `json:"order"`
	CreatedTime      time.Time      `json:"createdTime"`
	LastModifiedTime time.Time      `json:"lastModifiedTime"`
}

// Collaborator grants a principal a role on a resource. Consumed by the
// external permission collaborator.
type Collaborator struct {
	ID           string    `json:"id"`
	PrincipalID  string    `json:"principalId"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	Role         string    `json:"role"`
	CreatedTime  time.Time `json:"createdTime"`
}

// Attachment is the cell tuple for attachment fields. The bytes live in an
// external object store addressed by Path.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Path     string `json:"path"`
}
