// Package schema holds the value types exchanged between the metadata
// services and the physical schema provider.
package schema

// ColumnDefinition represents a single physical column of a dynamic table
type ColumnDefinition struct {
	Name       string `json:"name"` // physical column name, quoted by the provider
	Type       string `json:"type"` // physical column type, e.g. TEXT, NUMERIC, JSONB
	PrimaryKey bool   `json:"primary_key,omitempty"`
	Unique     bool   `json:"unique,omitempty"`
	NotNull    bool   `json:"not_null,omitempty"`
	Default    string `json:"default,omitempty"` // raw SQL default expression
	Check      string `json:"check,omitempty"`   // raw SQL check expression
}

// IndexDefinition represents an index on a table
type IndexDefinition struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// TableDefinition represents a physical table inside a base's schema
// namespace
type TableDefinition struct {
	SchemaName string             `json:"schema_name"` // base id
	TableName  string             `json:"table_name"`  // table id, or a junction table name
	Columns    []ColumnDefinition `json:"columns"`
	Indices    []IndexDefinition  `json:"indices,omitempty"`
}
