// Package bootstrap creates the registry schema the engine needs before it
// can serve anything. All DDL is idempotent; running it on every start is
// the upgrade path.
package bootstrap

import (
	"context"
	"log"

	"github.com/easyspace-ai/easygrid/internal/domain/schema"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
)

// RegistryTableDefinitions returns the metadata tables of the easygrid
// schema. Column names must match what the repositories read and write.
func RegistryTableDefinitions() []schema.TableDefinition {
	return []schema.TableDefinition{
		{
			SchemaName: constants.MetaSchema,
			TableName:  "space_meta",
			Columns: []schema.ColumnDefinition{
				{Name: "id", Type: "TEXT", PrimaryKey: true},
				{Name: "name", Type: "TEXT", NotNull: true},
				{Name: "owner_id", Type: "TEXT", NotNull: true},
				{Name: "created_time", Type: "TIMESTAMPTZ", NotNull: true, Default: "now()"},
				{Name: "last_modified_time", Type: "TIMESTAMPTZ"},
				{Name: "deleted_time", Type: "TIMESTAMPTZ"},
			},
			Indices: []schema.IndexDefinition{
				{Name: "idx_space_meta_owner", Columns: []string{"owner_id"}},
			},
		},
		{
			SchemaName: constants.MetaSchema,
			TableName:  "base_meta",
			Columns: []schema.ColumnDefinition{
				{Name: "id", Type: "TEXT", PrimaryKey: true},
				{Name: "space_id", Type: "TEXT", NotNull: true},
				{Name: "name", Type: "TEXT", NotNull: true},
				{Name: "icon", Type: "TEXT"},
				{Name: "created_time", Type: "TIMESTAMPTZ", NotNull: true, Default: "now()"},
				{Name: "last_modified_time", Type: "TIMESTAMPTZ"},
			},
			Indices: []schema.IndexDefinition{
				{Name: "idx_base_meta_space", Columns: []string{"space_id"}},
			},
		},
		{
			SchemaName: constants.MetaSchema,
			TableName:  "table_meta",
			Columns: []schema.ColumnDefinition{
				{Name: "id", Type: "TEXT", PrimaryKey: true},
				{Name: "base_id", Type: "TEXT", NotNull: true},
				{Name: "name", Type: "TEXT", NotNull: true},
				{Name: "description", Type: "TEXT"},
				{Name: "version", Type: "BIGINT", NotNull: true, Default: "1"},
				{Name: "created_time", Type: "TIMESTAMPTZ", NotNull: true, Default: "now()"},
				{Name: "last_modified_time", Type: "TIMESTAMPTZ"},
			},
			Indices: []schema.IndexDefinition{
				{Name: "idx_table_meta_base", Columns: []string{"base_id"}},
			},
		},
		{
			SchemaName: constants.MetaSchema,
			TableName:  "field_meta",
			Columns: []schema.ColumnDefinition{
				{Name: "id", Type: "TEXT", PrimaryKey: true},
				{Name: "table_id", Type: "TEXT", NotNull: true},
				{Name: "name", Type: "TEXT", NotNull: true},
				{Name: "description", Type: "TEXT"},
				{Name: "type", Type: "TEXT", NotNull: true},
				{Name: "db_field_name", Type: "TEXT", NotNull: true},
				{Name: "db_field_type", Type: "TEXT", NotNull: true},
				{Name: "options", Type: "JSONB"},
				{Name: "required", Type: "BOOLEAN", NotNull: true, Default: "false"},
				{Name: "is_unique", Type: "BOOLEAN", NotNull: true, Default: "false"},
				{Name: "is_primary", Type: "BOOLEAN", NotNull: true, Default: "false"},
				{Name: "field_order", Type: "INTEGER", NotNull: true, Default: "0"},
				{Name: "created_time", Type: "TIMESTAMPTZ", NotNull: true, Default: "now()"},
				{Name: "last_modified_time", Type: "TIMESTAMPTZ"},
				{Name: "created_by", Type: "TEXT"},
			},
			Indices: []schema.IndexDefinition{
				{Name: "idx_field_meta_table", Columns: []string{"table_id"}},
				{Name: "uq_field_meta_table_name", Columns: []string{"table_id", "name"}, Unique: true},
			},
		},
		{
			SchemaName: constants.MetaSchema,
			TableName:  "view_meta",
			Columns: []schema.ColumnDefinition{
				{Name: "id", Type: "TEXT", PrimaryKey: true},
				{Name: "table_id", Type: "TEXT", NotNull: true},
				{Name: "name", Type: "TEXT", NotNull: true},
				{Name: "type", Type: "TEXT", NotNull: true},
				{Name: "filter", Type: "JSONB"},
				{Name: "sort", Type: "JSONB"},
				{Name: "column_meta", Type: "JSONB"},
				{Name: "share_id", Type: "TEXT"},
				{Name: "locked", Type: "BOOLEAN", NotNull: true, Default: "false"},
				{Name: "view_order", Type: "INTEGER", NotNull: true, Default: "0"},
				{Name: "created_time", Type: "TIMESTAMPTZ", NotNull: true, Default: "now()"},
				{Name: "last_modified_time", Type: "TIMESTAMPTZ"},
			},
			Indices: []schema.IndexDefinition{
				{Name: "idx_view_meta_table", Columns: []string{"table_id"}},
			},
		},
		{
			SchemaName: constants.MetaSchema,
			TableName:  "collaborator_meta",
			Columns: []schema.ColumnDefinition{
				{Name: "id", Type: "TEXT", PrimaryKey: true},
				{Name: "principal_id", Type: "TEXT", NotNull: true},
				{Name: "resource_type", Type: "TEXT", NotNull: true},
				{Name: "resource_id", Type: "TEXT", NotNull: true},
				{Name: "role", Type: "TEXT", NotNull: true},
				{Name: "created_time", Type: "TIMESTAMPTZ", NotNull: true, Default: "now()"},
			},
			Indices: []schema.IndexDefinition{
				{Name: "uq_collaborator_principal_resource", Columns: []string{"principal_id", "resource_type", "resource_id"}, Unique: true},
				{Name: "idx_collaborator_resource", Columns: []string{"resource_type", "resource_id"}},
			},
		},
	}
}

// InitializeSchema creates the easygrid registry schema and its tables.
func InitializeSchema(ctx context.Context, provider persistence.SchemaProvider) error {
	log.Println("🔧 Initializing registry schema...")

	if err := provider.CreateSchema(ctx, constants.MetaSchema); err != nil {
		return err
	}
	for _, def := range RegistryTableDefinitions() {
		if err := provider.CreatePhysicalTable(ctx, def); err != nil {
			return err
		}
	}
	log.Println("✅ Registry schema ready")
	return nil
}
