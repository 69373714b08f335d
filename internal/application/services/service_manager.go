package services

import (
	"database/sql"
	"log"

	"github.com/easyspace-ai/easygrid/internal/domain/ports"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/formula"
	"github.com/easyspace-ai/easygrid/pkg/query"
)

// ServiceManager wires every service with its dependencies. Construction
// order matters: the dependency graph and OT channel come first, the
// services that broadcast through them after.
type ServiceManager struct {
	db *sql.DB

	Provider  persistence.SchemaProvider
	TxManager *persistence.TransactionManager
	Cache     persistence.Cache

	Spaces  *persistence.SpaceRepository
	Bases   *persistence.BaseRepository
	Tables  *persistence.TableRepository
	Fields  *persistence.FieldRepository
	Views   *persistence.ViewRepository
	Collabs *persistence.CollaboratorRepository
	Records *persistence.RecordRepository

	Graph     *DependencyGraphService
	Channel   *OTChannel
	Compute   *ComputeService
	Links     *LinkService
	Titles    *LinkTitleService
	FieldSvc  *FieldService
	TableSvc  *TableService
	SpaceSvc  *SpaceService
	RecordSvc *RecordService
	Validator *SchemaValidator
	Scheduler *SchedulerService
}

// NewServiceManager creates a new service manager with all dependencies wired
func NewServiceManager(db *sql.DB, checker ports.PermissionChecker, schedulerConfig SchedulerConfig) (*ServiceManager, error) {
	if checker == nil {
		checker = ports.AllowAll{}
	}

	sm := &ServiceManager{db: db}

	sm.Provider = persistence.NewPostgresProvider(db)
	sm.TxManager = persistence.NewTransactionManager(db)
	sm.Cache = persistence.NewMemoryCache()

	sm.Spaces = persistence.NewSpaceRepository(db)
	sm.Bases = persistence.NewBaseRepository(db)
	sm.Tables = persistence.NewTableRepository(db)
	sm.Fields = persistence.NewFieldRepository(db)
	sm.Views = persistence.NewViewRepository(db)
	sm.Collabs = persistence.NewCollaboratorRepository(db)
	sm.Records = persistence.NewRecordRepository(db)

	sm.Graph = NewDependencyGraphService(sm.Tables, sm.Fields, sm.Cache)
	sm.Channel = NewOTChannel()

	engine := formula.NewEngine()
	sm.Compute = NewComputeService(sm.Fields, sm.Tables, sm.Records, sm.Graph, engine)
	sm.Links = NewLinkService(db, sm.Provider, sm.Fields, sm.Tables, sm.Graph, sm.Channel)
	sm.Titles = NewLinkTitleService(sm.Fields, sm.Tables, sm.Records, sm.Channel)

	sm.FieldSvc = NewFieldService(sm.Provider, sm.Fields, sm.Tables, sm.TxManager, sm.Graph, sm.Channel, checker)
	sm.FieldSvc.SetLinkService(sm.Links)

	sm.TableSvc = NewTableService(sm.Provider, sm.Tables, sm.Fields, sm.Views, sm.FieldSvc, sm.Links, sm.Graph, checker)
	sm.SpaceSvc = NewSpaceService(sm.Provider, sm.Spaces, sm.Bases, sm.Tables, sm.Fields, sm.Views, sm.Collabs, checker)
	sm.RecordSvc = NewRecordService(sm.Records, sm.Fields, sm.Tables, sm.TxManager, sm.Compute, sm.Titles, query.NewFilterTranslator(), sm.Channel, checker)

	sm.Validator = NewSchemaValidator(sm.Provider, sm.Bases, sm.Tables, sm.Fields)
	scheduler, err := NewSchedulerService(schedulerConfig, sm.Spaces, sm.Bases, sm.Tables, sm.Fields, sm.Views, sm.Collabs, sm.Provider, sm.Validator)
	if err != nil {
		return nil, err
	}
	sm.Scheduler = scheduler

	return sm, nil
}

// StartScheduler launches the maintenance loop in the background.
func (sm *ServiceManager) StartScheduler() {
	go sm.Scheduler.Start()
}

// StopScheduler stops the maintenance loop and waits for running jobs.
func (sm *ServiceManager) StopScheduler() {
	sm.Scheduler.Stop()
}

// Close releases the connection pool.
func (sm *ServiceManager) Close() {
	if err := sm.db.Close(); err != nil {
		log.Printf("⚠️ Closing database pool: %v", err)
	}
}
