package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
)

// SchedulerConfig carries the cron expressions and retention window for the
// maintenance jobs.
type SchedulerConfig struct {
	PurgeCron          string
	AuditCron          string
	SpaceRetentionDays int
}

// DefaultSchedulerConfig returns the built-in maintenance timetable.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PurgeCron:          constants.DefaultPurgeCron,
		AuditCron:          constants.DefaultAuditCron,
		SpaceRetentionDays: constants.DefaultSpaceRetentionDays,
	}
}

// SchedulerService runs the background maintenance jobs: purging spaces
// whose soft-delete retention has lapsed, and auditing physical schemas
// against field metadata.
type SchedulerService struct {
	config    SchedulerConfig
	spaces    *persistence.SpaceRepository
	bases     *persistence.BaseRepository
	tables    *persistence.TableRepository
	fields    *persistence.FieldRepository
	views     *persistence.ViewRepository
	collabs   *persistence.CollaboratorRepository
	provider  persistence.SchemaProvider
	validator *SchemaValidator

	purgeSchedule cron.Schedule
	auditSchedule cron.Schedule
	nextPurge     time.Time
	nextAudit     time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopped  bool // Prevents double-close of stopChan
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(config SchedulerConfig, spaces *persistence.SpaceRepository, bases *persistence.BaseRepository, tables *persistence.TableRepository, fields *persistence.FieldRepository, views *persistence.ViewRepository, collabs *persistence.CollaboratorRepository, provider persistence.SchemaProvider, validator *SchemaValidator) (*SchedulerService, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	purgeSchedule, err := parser.Parse(config.PurgeCron)
	if err != nil {
		return nil, err
	}
	auditSchedule, err := parser.Parse(config.AuditCron)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &SchedulerService{
		config:        config,
		spaces:        spaces,
		bases:         bases,
		tables:        tables,
		fields:        fields,
		views:         views,
		collabs:       collabs,
		provider:      provider,
		validator:     validator,
		purgeSchedule: purgeSchedule,
		auditSchedule: auditSchedule,
		nextPurge:     purgeSchedule.Next(now),
		nextAudit:     auditSchedule.Next(now),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the scheduler background loop
func (s *SchedulerService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Println("⏰ Maintenance scheduler starting...")

	ticker := time.NewTicker(time.Duration(constants.MaintenanceCheckIntervalSecs) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runDueJobs()
		case <-s.stopChan:
			log.Println("⏰ Maintenance scheduler stopping...")
			s.wg.Wait() // Wait for running jobs to complete
			log.Println("⏰ Maintenance scheduler stopped")
			return
		}
	}
}

// Stop gracefully stops the scheduler
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	s.mu.Unlock()

	close(s.stopChan)
}

// runDueJobs fires any job whose schedule has come around.
func (s *SchedulerService) runDueJobs() {
	now := time.Now()

	s.mu.Lock()
	duePurge := !now.Before(s.nextPurge)
	dueAudit := !now.Before(s.nextAudit)
	if duePurge {
		s.nextPurge = s.purgeSchedule.Next(now)
	}
	if dueAudit {
		s.nextAudit = s.auditSchedule.Next(now)
	}
	s.mu.Unlock()

	if duePurge {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJob("space purge", s.purgeExpiredSpaces)
		}()
	}
	if dueAudit {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJob("schema audit", s.auditAllBases)
		}()
	}
}

// runJob executes one maintenance job with panic recovery and a runtime
// ceiling.
func (s *SchedulerService) runJob(name string, job func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 Panic in maintenance job %s: %v", name, r)
		}
	}()

	timeout := time.Duration(constants.MaintenanceMaxRuntimeMins) * time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Printf("⏰ Starting maintenance job: %s", name)
	startTime := time.Now()
	if err := job(ctx); err != nil {
		log.Printf("❌ Maintenance job %s failed after %v: %v", name, time.Since(startTime), err)
		return
	}
	log.Printf("✅ Maintenance job %s completed in %v", name, time.Since(startTime))
}

// purgeExpiredSpaces hard-deletes spaces whose soft-delete stamp is older
// than the retention window, together with their bases and schemas.
func (s *SchedulerService) purgeExpiredSpaces(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.config.SpaceRetentionDays)
	ids, err := s.spaces.ListDeletedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, spaceID := range ids {
		if err := s.purgeSpace(ctx, spaceID); err != nil {
			log.Printf("⚠️ Purge of space %s failed: %v", spaceID, err)
		}
	}
	if len(ids) > 0 {
		log.Printf("🔥 Purged %d expired spaces", len(ids))
	}
	return nil
}

func (s *SchedulerService) purgeSpace(ctx context.Context, spaceID string) error {
	bases, err := s.bases.ListBySpace(ctx, spaceID)
	if err != nil {
		return err
	}
	for _, base := range bases {
		tables, err := s.tables.ListByBase(ctx, base.ID)
		if err != nil {
			return err
		}
		for _, table := range tables {
			if err := s.views.DeleteByTable(ctx, table.ID); err != nil {
				return err
			}
			if err := s.fields.DeleteByTable(ctx, table.ID); err != nil {
				return err
			}
			if err := s.tables.Delete(ctx, table.ID); err != nil {
				return err
			}
		}
		if err := s.collabs.DeleteByResource(ctx, constants.ResourceBase, base.ID); err != nil {
			log.Printf("⚠️ Collaborator cleanup for base %s failed: %v", base.ID, err)
		}
		if err := s.bases.Delete(ctx, base.ID); err != nil {
			return err
		}
		if err := s.provider.DropSchema(ctx, base.ID); err != nil {
			return err
		}
	}
	if err := s.collabs.DeleteByResource(ctx, constants.ResourceSpace, spaceID); err != nil {
		log.Printf("⚠️ Collaborator cleanup for space %s failed: %v", spaceID, err)
	}
	return s.spaces.Purge(ctx, spaceID)
}

// auditAllBases runs the schema drift audit, with repair, over every base.
func (s *SchedulerService) auditAllBases(ctx context.Context) error {
	bases, err := s.bases.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, base := range bases {
		report, err := s.validator.AuditBase(ctx, base.ID, true)
		if err != nil {
			log.Printf("⚠️ Schema audit of base %s failed: %v", base.ID, err)
			continue
		}
		if len(report.Drifts) == 0 {
			continue
		}
		for _, d := range report.Drifts {
			log.Printf("📝 Drift in %s/%s: %s (%s)", base.ID, d.TableID, d.Kind, d.Detail)
		}
	}
	return nil
}
