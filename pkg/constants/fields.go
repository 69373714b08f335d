package constants

// System columns present on every physical table. They are owned by the
// engine and can never collide with a field's db_field_name.
const (
	FieldID               = "__id"
	FieldVersion          = "__version"
	FieldCreatedTime      = "__created_time"
	FieldLastModifiedTime = "__last_modified_time"
	FieldCreatedBy        = "__created_by"
	FieldLastModifiedBy   = "__last_modified_by"
)

// SystemColumns lists the system columns in their physical order.
var SystemColumns = []string{
	FieldID,
	FieldVersion,
	FieldCreatedTime,
	FieldLastModifiedTime,
	FieldCreatedBy,
	FieldLastModifiedBy,
}

// IsSystemColumn reports whether name is one of the engine-owned columns.
func IsSystemColumn(name string) bool {
	for _, c := range SystemColumns {
		if c == name {
			return true
		}
	}
	return false
}

// MaxFieldNameLength is the display-name limit for a field.
const MaxFieldNameLength = 255

// FKColumnPrefix prefixes the foreign-key column contributed to the foreign
// table by a oneMany link that has no symmetric field yet.
const FKColumnPrefix = "__fk_"

// JunctionTablePrefix prefixes manyMany junction table names:
// link_<tableA>_<tableB>.
const JunctionTablePrefix = "link_"
