package constants

// Registry tables. They live in the "easygrid" schema of the backing
// database, separate from the per-base schemas that hold user data.
const (
	MetaSchema = "easygrid"

	TableSpaceMeta  = "easygrid.space_meta"
	TableBaseMeta   = "easygrid.base_meta"
	TableTableMeta  = "easygrid.table_meta"
	TableFieldMeta  = "easygrid.field_meta"
	TableViewMeta   = "easygrid.view_meta"
	TableCollabMeta = "easygrid.collaborator_meta"
)

// DefaultBatchSize is the base chunk size for batched record writes.
const DefaultBatchSize = 100

// DependencyGraphTTLSeconds is how long a built dependency graph stays in
// cache before the next read rebuilds it.
const DependencyGraphTTLSeconds = 300

// Maintenance defaults. The cron expressions use the standard five-field
// form; overridable through the environment at startup.
const (
	MaintenanceCheckIntervalSecs = 60
	MaintenanceMaxRuntimeMins    = 30
	DefaultPurgeCron             = "0 3 * * *"
	DefaultAuditCron             = "30 3 * * *"
	DefaultSpaceRetentionDays    = 30
)
