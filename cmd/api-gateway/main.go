package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-merit-api/api/swagger"
	"github.com/noah-isme/sma-merit-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-merit-api/internal/middleware"
	"github.com/noah-isme/sma-merit-api/internal/repository"
	"github.com/noah-isme/sma-merit-api/internal/service"
	"github.com/noah-isme/sma-merit-api/migrations"
	"github.com/noah-isme/sma-merit-api/pkg/cache"
	"github.com/noah-isme/sma-merit-api/pkg/config"
	"github.com/noah-isme/sma-merit-api/pkg/database"
	"github.com/noah-isme/sma-merit-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-merit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-merit-api/pkg/middleware/requestid"
)

// @title SMA Merit API
// @version 1.0.0
// @description Merit point ledger, quests, appeals and leaderboards
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(context.Background(), db, migrations.FS)
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied", zap.Strings("files", applied))
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	ledgerRepo := repository.NewLedgerRepository(db)
	questRepo := repository.NewQuestRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	appealRepo := repository.NewAppealRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	presetRepo := repository.NewPresetRepository(db)
	awardRepo := repository.NewAwardRepository(db)
	reportRepo := repository.NewTeacherReportRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.SummaryTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	authz, err := service.NewAuthorizer(cfg.Authorization.ExtraGrants, logr)
	if err != nil {
		logr.Fatal("invalid capability grants", zap.Error(err))
	}
	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	validate := validator.New()

	ledgerSvc := service.NewLedgerService(service.LedgerServiceParams{
		Repo:       ledgerRepo,
		Authorizer: authz,
		Cache:      cacheSvc,
		Metrics:    metricsSvc,
		Audit:      auditRepo,
		Validator:  validate,
		Logger:     logr,
		Config: service.LedgerServiceConfig{
			MaxPoints:    cfg.Ledger.MaxPoints,
			AcademicYear: cfg.Ledger.AcademicYear,
		},
	})
	questSvc := service.NewQuestService(questRepo, authz, auditRepo, validate, logr)
	participationSvc := service.NewParticipationService(service.ParticipationServiceParams{
		Participants:        participantRepo,
		Quests:              questRepo,
		Authorizer:          authz,
		Cache:               cacheSvc,
		Metrics:             metricsSvc,
		Audit:               auditRepo,
		Logger:              logr,
		DefaultAcademicYear: cfg.Ledger.AcademicYear,
	})
	bulkSvc := service.NewBulkActionService(studentRepo, presetRepo, ledgerSvc, authz, logr)
	aggregationSvc := service.NewAggregationService(service.AggregationServiceParams{
		Ledger:       ledgerRepo,
		Awards:       awardRepo,
		Quests:       questRepo,
		Participants: participantRepo,
		Appeals:      appealRepo,
		Authorizer:   authz,
		Cache:        cacheSvc,
		Logger:       logr,
		Config: service.AggregationServiceConfig{
			MaxPoints:      cfg.Ledger.MaxPoints,
			RecentPageSize: cfg.Ledger.RecentPageSize,
			TopStudents:    cfg.Ledger.TopStudents,
			Location:       cfg.Ledger.Location(),
			SummaryTTL:     cfg.Cache.SummaryTTL,
			BoardTTL:       cfg.Cache.BoardTTL,
			DashboardTTL:   cfg.Cache.DashboardTTL,
			ExportTitle:    cfg.Exports.Title,
		},
	})
	appealSvc := service.NewAppealService(service.AppealServiceParams{
		Appeals:    appealRepo,
		Ledger:     ledgerRepo,
		Authorizer: authz,
		Cache:      cacheSvc,
		Metrics:    metricsSvc,
		Audit:      auditRepo,
		Validator:  validate,
		Logger:     logr,
	})
	reportSvc := service.NewTeacherReportService(reportRepo, authz, auditRepo, validate, logr)

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = redisPinger{client: redisClient}
	}

	ledgerHandler := handler.NewLedgerHandler(ledgerSvc)
	meritHandler := handler.NewMeritHandler(aggregationSvc)
	bulkHandler := handler.NewBulkActionHandler(bulkSvc)
	questHandler := handler.NewQuestHandler(questSvc, participationSvc)
	appealHandler := handler.NewAppealHandler(appealSvc)
	reportHandler := handler.NewTeacherReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics"))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireCap := func(c service.Capability) gin.HandlerFunc {
		return internalmiddleware.RequireCapability(authz, c)
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(tokens))

	api.GET("/metrics/summary", requireCap(service.CapMetricsView), metricsHandler.Summary)

	ledger := api.Group("/ledger")
	ledger.POST("", requireCap(service.CapLedgerAppend), ledgerHandler.Append)
	ledger.GET("", ledgerHandler.List)
	ledger.GET("/:id", ledgerHandler.Get)
	ledger.DELETE("/:id", requireCap(service.CapLedgerHardDelete), ledgerHandler.Delete)

	api.POST("/classes/:classId/bulk-actions", requireCap(service.CapLedgerBulkApply), bulkHandler.Apply)
	api.GET("/presets", requireCap(service.CapLedgerBulkApply), bulkHandler.Presets)

	students := api.Group("/students/:id")
	students.GET("/summary", meritHandler.Summary)
	students.GET("/quests", questHandler.StudentQuests)

	api.GET("/leaderboard", meritHandler.Leaderboard)
	api.GET("/leaderboard/class", meritHandler.ClassLeaderboard)
	api.GET("/dashboard", requireCap(service.CapLedgerViewAny), meritHandler.Dashboard)

	if cfg.Exports.Enabled {
		students.GET("/summary.pdf",
			internalmiddleware.Audit(auditRepo, logr, "EXPORT_SUMMARY_PDF", "student_summary", "id"),
			meritHandler.SummaryPDF)
		api.GET("/leaderboard.csv",
			requireCap(service.CapLedgerViewAny),
			internalmiddleware.Audit(auditRepo, logr, "EXPORT_LEADERBOARD_CSV", "leaderboard", ""),
			meritHandler.LeaderboardCSV)
	}

	quests := api.Group("/quests")
	quests.POST("", requireCap(service.CapQuestManage), questHandler.Create)
	quests.GET("", questHandler.List)
	quests.GET("/:id", questHandler.Get)
	quests.PUT("/:id", requireCap(service.CapQuestManage), questHandler.Update)
	quests.DELETE("/:id", requireCap(service.CapQuestManage), questHandler.Delete)
	quests.POST("/:id/join", questHandler.Join)
	quests.POST("/:id/submit", questHandler.Submit)
	quests.GET("/:id/participants", requireCap(service.CapLedgerViewAny), questHandler.Participants)
	quests.POST("/:id/participants/:studentId/review", questHandler.Review)

	appeals := api.Group("/appeals")
	appeals.POST("", appealHandler.Create)
	appeals.GET("", appealHandler.List)
	appeals.GET("/:id", appealHandler.Get)
	appeals.PATCH("/:id", requireCap(service.CapAppealReview), appealHandler.Update)

	reports := api.Group("/teacher-reports")
	reports.POST("", requireCap(service.CapReportCreate), reportHandler.Create)
	reports.GET("", reportHandler.List)
	reports.GET("/:id", reportHandler.Get)
	reports.PATCH("/:id", reportHandler.UpdateStatus)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
