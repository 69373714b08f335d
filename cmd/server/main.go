package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/easyspace-ai/easygrid/internal/application/services"
	"github.com/easyspace-ai/easygrid/internal/bootstrap"
	"github.com/easyspace-ai/easygrid/internal/infrastructure/database"
	"github.com/easyspace-ai/easygrid/internal/interfaces/middleware"
	"github.com/easyspace-ai/easygrid/internal/interfaces/rest"
	"github.com/easyspace-ai/easygrid/pkg/constants"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("📦 Loaded environment from .env")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3030"
	}

	ctx := context.Background()
	db, err := database.Open(ctx, database.ConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	svcMgr, err := services.NewServiceManager(db, nil, schedulerConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to wire services: %v", err)
	}
	defer svcMgr.Close()
	log.Println("🔧 Service manager initialized")

	if err := bootstrap.InitializeSchema(ctx, svcMgr.Provider); err != nil {
		log.Fatalf("Failed to initialize registry schema: %v", err)
	}

	router := gin.Default()
	router.Use(middleware.Cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "server": "easygrid"})
	})

	spaceHandler := rest.NewSpaceHandler(svcMgr.SpaceSvc)
	tableHandler := rest.NewTableHandler(svcMgr.TableSvc)
	fieldHandler := rest.NewFieldHandler(svcMgr.FieldSvc)
	recordHandler := rest.NewRecordHandler(svcMgr.RecordSvc)
	realtimeHandler := rest.NewRealtimeHandler(svcMgr.Channel)

	requireAuth := middleware.RequireAuth()

	router.GET("/ws", requireAuth, realtimeHandler.Serve)

	api := router.Group("/api")
	api.Use(requireAuth)
	{
		spaces := api.Group("/spaces")
		{
			spaces.POST("", spaceHandler.CreateSpace)
			spaces.GET("", spaceHandler.ListSpaces)
			spaces.GET("/:spaceId", spaceHandler.GetSpace)
			spaces.PATCH("/:spaceId", spaceHandler.RenameSpace)
			spaces.DELETE("/:spaceId", spaceHandler.DeleteSpace)
			spaces.POST("/:spaceId/bases", spaceHandler.CreateBase)
			spaces.GET("/:spaceId/bases", spaceHandler.ListBases)
			spaces.POST("/:spaceId/collaborators", spaceHandler.AddCollaborator(constants.ResourceSpace))
			spaces.GET("/:spaceId/collaborators", spaceHandler.ListCollaborators(constants.ResourceSpace))
			spaces.DELETE("/:spaceId/collaborators/:principalId", spaceHandler.RemoveCollaborator(constants.ResourceSpace))
		}

		bases := api.Group("/bases")
		{
			bases.GET("/:baseId", spaceHandler.GetBase)
			bases.PATCH("/:baseId", spaceHandler.UpdateBase)
			bases.DELETE("/:baseId", spaceHandler.DeleteBase)
			bases.POST("/:baseId/tables", tableHandler.CreateTable)
			bases.GET("/:baseId/tables", tableHandler.ListTables)
			bases.POST("/:baseId/collaborators", spaceHandler.AddCollaborator(constants.ResourceBase))
			bases.GET("/:baseId/collaborators", spaceHandler.ListCollaborators(constants.ResourceBase))
			bases.DELETE("/:baseId/collaborators/:principalId", spaceHandler.RemoveCollaborator(constants.ResourceBase))
		}

		tables := api.Group("/tables")
		{
			tables.GET("/:tableId", tableHandler.GetTable)
			tables.PATCH("/:tableId", tableHandler.UpdateTable)
			tables.DELETE("/:tableId", tableHandler.DeleteTable)

			tables.POST("/:tableId/fields", fieldHandler.CreateField)
			tables.GET("/:tableId/fields", fieldHandler.ListFields)

			tables.POST("/:tableId/views", tableHandler.CreateView)
			tables.GET("/:tableId/views", tableHandler.ListViews)

			tables.GET("/:tableId/records", recordHandler.ListRecords)
			tables.POST("/:tableId/records", recordHandler.CreateRecord)
			tables.PATCH("/:tableId/records", recordHandler.BatchUpdateRecords)
			tables.POST("/:tableId/records/batch", recordHandler.CreateRecords)
			tables.POST("/:tableId/records/delete", recordHandler.DeleteRecords)
			tables.GET("/:tableId/records/:recordId", recordHandler.GetRecord)
			tables.PATCH("/:tableId/records/:recordId", recordHandler.UpdateRecord)
			tables.DELETE("/:tableId/records/:recordId", recordHandler.DeleteRecord)
		}

		fields := api.Group("/fields")
		{
			fields.GET("/:fieldId", fieldHandler.GetField)
			fields.PATCH("/:fieldId", fieldHandler.UpdateField)
			fields.DELETE("/:fieldId", fieldHandler.DeleteField)
		}

		views := api.Group("/views")
		{
			views.PATCH("/:viewId", tableHandler.UpdateView)
			views.DELETE("/:viewId", tableHandler.DeleteView)
		}
	}

	svcMgr.StartScheduler()
	log.Println("⏰ Maintenance scheduler started")

	log.Printf("🚀 easygrid listening on http://localhost:%s", port)
	log.Printf("💚 Health check:  http://localhost:%s/health", port)
	log.Printf("🔌 Realtime:      ws://localhost:%s/ws", port)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	svcMgr.StopScheduler()
	log.Println("🛑 Scheduler stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}

func schedulerConfigFromEnv() services.SchedulerConfig {
	cfg := services.DefaultSchedulerConfig()
	if v := os.Getenv("EASYGRID_PURGE_CRON"); v != "" {
		cfg.PurgeCron = v
	}
	if v := os.Getenv("EASYGRID_AUDIT_CRON"); v != "" {
		cfg.AuditCron = v
	}
	if v := os.Getenv("EASYGRID_SPACE_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.SpaceRetentionDays = days
		}
	}
	return cfg
}
