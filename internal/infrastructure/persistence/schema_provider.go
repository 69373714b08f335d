package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/easyspace-ai/easygrid/internal/domain/schema"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/query"
)

// SchemaProvider maps logical field types to physical column DDL and
// executes that DDL. PostgresProvider is the fully supported dialect; the
// interface is the seam where another dialect would plug in.
type SchemaProvider interface {
	MapFieldType(t constants.FieldType) (colType string, defaultExpr string, check string)
	CreateSchema(ctx context.Context, baseID string) error
	DropSchema(ctx context.Context, baseID string) error
	CreatePhysicalTable(ctx context.Context, def schema.TableDefinition) error
	DropPhysicalTable(ctx context.Context, schemaName, tableName string) error
	AddColumn(ctx context.Context, schemaName, tableName string, col schema.ColumnDefinition) error
	DropColumn(ctx context.Context, schemaName, tableName, columnName string) error
	AlterColumnType(ctx context.Context, schemaName, tableName, columnName, newType string) error
	AddUniqueConstraint(ctx context.Context, schemaName, tableName, columnName string) error
	AddCheckConstraint(ctx context.Context, schemaName, tableName, name, expr string) error
	ColumnExists(ctx context.Context, schemaName, tableName, columnName string) (bool, error)
	TableExists(ctx context.Context, schemaName, tableName string) (bool, error)
	ListColumns(ctx context.Context, schemaName, tableName string) ([]string, error)
}

// PostgresProvider implements SchemaProvider for PostgreSQL.
type PostgresProvider struct {
	db *sql.DB
}

// NewPostgresProvider creates a new PostgresProvider
func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

var validPhysicalName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// MapFieldType converts a logical field type to its physical column type,
// optional default expression and optional check expression.
func (p *PostgresProvider) MapFieldType(t constants.FieldType) (string, string, string) {
	switch t {
	case constants.FieldTypeNumber, constants.FieldTypeDuration:
		return "NUMERIC", "", ""
	case constants.FieldTypeRating:
		return "INTEGER", "", ""
	case constants.FieldTypeCheckbox:
		return "BOOLEAN", "false", ""
	case constants.FieldTypeDate, constants.FieldTypeDateTime:
		return "TIMESTAMPTZ", "", ""
	case constants.FieldTypeLink, constants.FieldTypeMultiSelect,
		constants.FieldTypeAttachment, constants.FieldTypeUser,
		constants.FieldTypeButton:
		return "JSONB", "", ""
	case constants.FieldTypeLookup:
		return "JSONB", "", ""
	case constants.FieldTypeCount:
		return "INTEGER", "", ""
	default:
		// shortText, longText, selects, email, phone, url, ai, formula,
		// rollup: text storage
		return "TEXT", "", ""
	}
}

// CreateSchema creates the per-base namespace. Idempotent.
func (p *PostgresProvider) CreateSchema(ctx context.Context, baseID string) error {
	if err := validateName(baseID); err != nil {
		return err
	}
	log.Printf("📐 Creating schema: %s", baseID)
	ddl := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", query.QuoteIdent(baseID))
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return apperrors.FromContext("create schema", err)
	}
	return nil
}

// DropSchema drops the base namespace with everything in it. Idempotent.
func (p *PostgresProvider) DropSchema(ctx context.Context, baseID string) error {
	if err := validateName(baseID); err != nil {
		return err
	}
	log.Printf("🔥 Dropping schema: %s", baseID)
	ddl := fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", query.QuoteIdent(baseID))
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return apperrors.FromContext("drop schema", err)
	}
	return nil
}

// CreatePhysicalTable creates a table from its definition. Idempotent.
func (p *PostgresProvider) CreatePhysicalTable(ctx context.Context, def schema.TableDefinition) error {
	if err := validateName(def.SchemaName); err != nil {
		return err
	}
	if err := validateName(def.TableName); err != nil {
		return err
	}
	log.Printf("📐 Creating table: %s.%s", def.SchemaName, def.TableName)

	var ddl strings.Builder
	fmt.Fprintf(&ddl, "CREATE TABLE IF NOT EXISTS %s (\n", qualify(def.SchemaName, def.TableName))
	for i, col := range def.Columns {
		if err := validateName(col.Name); err != nil {
			return fmt.Errorf("invalid column definition for '%s': %w", col.Name, err)
		}
		ddl.WriteString("  ")
		ddl.WriteString(buildColumnDDL(col))
		if i < len(def.Columns)-1 {
			ddl.WriteString(",")
		}
		ddl.WriteString("\n")
	}
	ddl.WriteString(")")

	if _, err := p.db.ExecContext(ctx, ddl.String()); err != nil {
		log.Printf("❌ Failed to create table %s.%s: %v", def.SchemaName, def.TableName, err)
		return apperrors.FromContext("create table", err)
	}

	for _, idx := range def.Indices {
		if err := p.createIndex(ctx, def, idx); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresProvider) createIndex(ctx context.Context, def schema.TableDefinition, idx schema.IndexDefinition) error {
	name := idx.Name
	if name == "" {
		name = fmt.Sprintf("idx_%s_%s", def.TableName, strings.Join(idx.Columns, "_"))
	}
	if err := validateName(name); err != nil {
		return err
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	quoted := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		quoted[i] = query.QuoteIdent(c)
	}
	ddl := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, query.QuoteIdent(name), qualify(def.SchemaName, def.TableName), strings.Join(quoted, ", "))
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return apperrors.FromContext("create index", err)
	}
	return nil
}

// DropPhysicalTable drops a table. Idempotent under retry.
func (p *PostgresProvider) DropPhysicalTable(ctx context.Context, schemaName, tableName string) error {
	if err := validateName(schemaName); err != nil {
		return err
	}
	if err := validateName(tableName); err != nil {
		return err
	}
	log.Printf("🔥 Dropping table: %s.%s", schemaName, tableName)
	ddl := fmt.Sprintf("DROP TABLE IF EXISTS %s", qualify(schemaName, tableName))
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return apperrors.FromContext("drop table", err)
	}
	return nil
}

// AddColumn adds a column, failing with SchemaConflict when it exists.
func (p *PostgresProvider) AddColumn(ctx context.Context, schemaName, tableName string, col schema.ColumnDefinition) error {
	if err := validateName(schemaName); err != nil {
		return err
	}
	if err := validateName(tableName); err != nil {
		return err
	}
	if err := validateName(col.Name); err != nil {
		return err
	}

	exists, err := p.ColumnExists(ctx, schemaName, tableName, col.Name)
	if err != nil {
		return fmt.Errorf("failed to check column existence: %w", err)
	}
	if exists {
		return apperrors.NewSchemaConflictError(tableName, col.Name)
	}

	ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
		qualify(schemaName, tableName), buildColumnDDL(col))
	log.Printf("➕ Executing DDL: %s", ddl)
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		log.Printf("❌ DDL execution failed: %v", err)
		return apperrors.FromContext("add column", err)
	}
	return nil
}

// DropColumn removes a column. Idempotent under retry (IF EXISTS).
func (p *PostgresProvider) DropColumn(ctx context.Context, schemaName, tableName, columnName string) error {
	if err := validateName(schemaName); err != nil {
		return err
	}
	if err := validateName(tableName); err != nil {
		return err
	}
	if err := validateName(columnName); err != nil {
		return err
	}
	ddl := fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s",
		qualify(schemaName, tableName), query.QuoteIdent(columnName))
	log.Printf("➖ Executing DDL: %s", ddl)
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return apperrors.FromContext("drop column", err)
	}
	return nil
}

// AlterColumnType changes a column's physical type with a USING cast.
func (p *PostgresProvider) AlterColumnType(ctx context.Context, schemaName, tableName, columnName, newType string) error {
	if err := validateName(schemaName); err != nil {
		return err
	}
	if err := validateName(tableName); err != nil {
		return err
	}
	if err := validateName(columnName); err != nil {
		return err
	}
	quoted := query.QuoteIdent(columnName)
	ddl := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
		qualify(schemaName, tableName), quoted, newType, quoted, newType)
	log.Printf("🔧 Executing DDL: %s", ddl)
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return apperrors.FromContext("alter column", err)
	}
	return nil
}

// AddUniqueConstraint adds a single-column unique constraint.
func (p *PostgresProvider) AddUniqueConstraint(ctx context.Context, schemaName, tableName, columnName string) error {
	if err := validateName(columnName); err != nil {
		return err
	}
	name := fmt.Sprintf("uq_%s_%s", tableName, columnName)
	ddl := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
		qualify(schemaName, tableName), query.QuoteIdent(name), query.QuoteIdent(columnName))
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return apperrors.NewSchemaConflictError(tableName, columnName)
		}
		return apperrors.FromContext("add unique constraint", err)
	}
	return nil
}

// AddCheckConstraint adds a named check constraint. expr is engine-built,
// never caller input.
func (p *PostgresProvider) AddCheckConstraint(ctx context.Context, schemaName, tableName, name, expr string) error {
	if err := validateName(name); err != nil {
		return err
	}
	ddl := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)",
		qualify(schemaName, tableName), query.QuoteIdent(name), expr)
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return apperrors.NewSchemaConflictError(tableName, name)
		}
		return apperrors.FromContext("add check constraint", err)
	}
	return nil
}

// ColumnExists consults information_schema.
func (p *PostgresProvider) ColumnExists(ctx context.Context, schemaName, tableName, columnName string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = $1 AND table_name = $2 AND column_name = $3
		)`, schemaName, tableName, columnName).Scan(&exists)
	if err != nil {
		return false, apperrors.FromContext("check column", err)
	}
	return exists, nil
}

// TableExists consults information_schema.
func (p *PostgresProvider) TableExists(ctx context.Context, schemaName, tableName string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, schemaName, tableName).Scan(&exists)
	if err != nil {
		return false, apperrors.FromContext("check table", err)
	}
	return exists, nil
}

// ListColumns returns the physical column names of a table in ordinal order.
func (p *PostgresProvider) ListColumns(ctx context.Context, schemaName, tableName string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schemaName, tableName)
	if err != nil {
		return nil, apperrors.FromContext("list columns", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.FromContext("scan column", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromContext("list columns", err)
	}
	return columns, nil
}

// SystemColumnDefinitions returns the engine-owned columns every physical
// table starts with.
func SystemColumnDefinitions() []schema.ColumnDefinition {
	return []schema.ColumnDefinition{
		{Name: constants.FieldID, Type: "TEXT", PrimaryKey: true},
		{Name: constants.FieldVersion, Type: "BIGINT", NotNull: true, Default: "1"},
		{Name: constants.FieldCreatedTime, Type: "TIMESTAMPTZ", Default: "now()"},
		{Name: constants.FieldLastModifiedTime, Type: "TIMESTAMPTZ"},
		{Name: constants.FieldCreatedBy, Type: "TEXT"},
		{Name: constants.FieldLastModifiedBy, Type: "TEXT"},
	}
}

func buildColumnDDL(col schema.ColumnDefinition) string {
	var sb strings.Builder
	sb.WriteString(query.QuoteIdent(col.Name))
	sb.WriteString(" ")
	sb.WriteString(col.Type)
	if col.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}
	if col.NotNull && !col.PrimaryKey {
		sb.WriteString(" NOT NULL")
	}
	if col.Unique && !col.PrimaryKey {
		sb.WriteString(" UNIQUE")
	}
	if col.Default != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(col.Default)
	}
	if col.Check != "" {
		sb.WriteString(" CHECK (")
		sb.WriteString(col.Check)
		sb.WriteString(")")
	}
	return sb.String()
}

// qualify renders "schema"."table".
func qualify(schemaName, tableName string) string {
	return query.QuoteIdent(schemaName) + "." + query.QuoteIdent(tableName)
}

// validateName rejects identifiers that would need more than quoting to be
// safe. Generated ids and db field names always satisfy this; anything else
// is a bug upstream.
func validateName(name string) error {
	if !validPhysicalName.MatchString(name) {
		return apperrors.NewValidationError("identifier",
			fmt.Sprintf("invalid physical identifier '%s'", name))
	}
	return nil
}
