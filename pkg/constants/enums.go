package constants

// FieldType is the closed enum of logical field types.
type FieldType string

const (
	FieldTypeShortText    FieldType = "shortText"
	FieldTypeLongText     FieldType = "longText"
	FieldTypeNumber       FieldType = "number"
	FieldTypeSingleSelect FieldType = "singleSelect"
	FieldTypeMultiSelect  FieldType = "multiSelect"
	FieldTypeDate         FieldType = "date"
	FieldTypeDateTime     FieldType = "dateTime"
	FieldTypeCheckbox     FieldType = "checkbox"
	FieldTypeLink         FieldType = "link"
	FieldTypeFormula      FieldType = "formula"
	FieldTypeRollup       FieldType = "rollup"
	FieldTypeLookup       FieldType = "lookup"
	FieldTypeCount        FieldType = "count"
	FieldTypeAttachment   FieldType = "attachment"
	FieldTypeRating       FieldType = "rating"
	FieldTypeUser         FieldType = "user"
	FieldTypeEmail        FieldType = "email"
	FieldTypePhone        FieldType = "phone"
	FieldTypeURL          FieldType = "url"
	FieldTypeAI           FieldType = "ai"
	FieldTypeButton       FieldType = "button"
	FieldTypeDuration     FieldType = "duration"
)

var allFieldTypes = map[FieldType]bool{
	FieldTypeShortText: true, FieldTypeLongText: true, FieldTypeNumber: true,
	FieldTypeSingleSelect: true, FieldTypeMultiSelect: true, FieldTypeDate: true,
	FieldTypeDateTime: true, FieldTypeCheckbox: true, FieldTypeLink: true,
	FieldTypeFormula: true, FieldTypeRollup: true, FieldTypeLookup: true,
	FieldTypeCount: true, FieldTypeAttachment: true, FieldTypeRating: true,
	FieldTypeUser: true, FieldTypeEmail: true, FieldTypePhone: true,
	FieldTypeURL: true, FieldTypeAI: true, FieldTypeButton: true,
	FieldTypeDuration: true,
}

// IsValidFieldType reports whether t is a member of the closed enum.
func IsValidFieldType(t FieldType) bool {
	return allFieldTypes[t]
}

// IsComputedFieldType reports whether cells of this type are derived from
// other fields and therefore never written directly by clients.
func IsComputedFieldType(t FieldType) bool {
	switch t {
	case FieldTypeFormula, FieldTypeRollup, FieldTypeLookup, FieldTypeCount:
		return true
	}
	return false
}

// IsVirtualFieldType reports whether the type is skipped when auto-resolving
// a link's lookup field (its value is not a stable user-entered title).
func IsVirtualFieldType(t FieldType) bool {
	switch t {
	case FieldTypeFormula, FieldTypeRollup, FieldTypeLookup, FieldTypeAI:
		return true
	}
	return false
}

// IsJSONFieldType reports whether cells of this type are stored as JSONB.
func IsJSONFieldType(t FieldType) bool {
	switch t {
	case FieldTypeLink, FieldTypeMultiSelect, FieldTypeAttachment, FieldTypeUser, FieldTypeButton:
		return true
	}
	return false
}

// Relationship is the cardinality of a link field.
type Relationship string

const (
	RelationshipOneOne   Relationship = "oneOne"
	RelationshipOneMany  Relationship = "oneMany"
	RelationshipManyOne  Relationship = "manyOne"
	RelationshipManyMany Relationship = "manyMany"
)

// IsValidRelationship reports whether r is a known cardinality.
func IsValidRelationship(r Relationship) bool {
	switch r {
	case RelationshipOneOne, RelationshipOneMany, RelationshipManyOne, RelationshipManyMany:
		return true
	}
	return false
}

// ReverseRelationship returns the cardinality seen from the foreign side.
func ReverseRelationship(r Relationship) Relationship {
	switch r {
	case RelationshipOneMany:
		return RelationshipManyOne
	case RelationshipManyOne:
		return RelationshipOneMany
	default:
		// oneOne and manyMany are their own reverses
		return r
	}
}

// IsMultipleValueRelationship reports whether the current side of the link
// stores an array-shaped cell.
func IsMultipleValueRelationship(r Relationship) bool {
	return r == RelationshipOneMany || r == RelationshipManyMany
}

// Aggregation functions accepted by rollup fields.
const (
	AggregationCount  = "count"
	AggregationSum    = "sum"
	AggregationAvg    = "avg"
	AggregationMin    = "min"
	AggregationMax    = "max"
	AggregationConcat = "concatenate"
)

// Action names used with the external permission collaborator.
const (
	ActionRead               = "read"
	ActionCreate             = "create"
	ActionUpdate             = "update"
	ActionDelete             = "delete"
	ActionManageCollaborator = "manageCollaborator"
)

// Resource types used with the external permission collaborator.
const (
	ResourceSpace = "space"
	ResourceBase  = "base"
	ResourceTable = "table"
	ResourceField = "field"
	ResourceView  = "view"
)
