package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/twistedwarden/attendance-api/api/swagger"
	"github.com/twistedwarden/attendance-api/internal/handler"
	"github.com/twistedwarden/attendance-api/internal/middleware"
	"github.com/twistedwarden/attendance-api/internal/models"
	"github.com/twistedwarden/attendance-api/internal/repository"
	"github.com/twistedwarden/attendance-api/internal/service"
	"github.com/twistedwarden/attendance-api/pkg/cache"
	"github.com/twistedwarden/attendance-api/pkg/config"
	"github.com/twistedwarden/attendance-api/pkg/database"
	"github.com/twistedwarden/attendance-api/pkg/logger"
	"github.com/twistedwarden/attendance-api/pkg/mail"
	corsmiddleware "github.com/twistedwarden/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/twistedwarden/attendance-api/pkg/middleware/requestid"
)

// @title Attendance API
// @version 0.1.0
// @description Schedule validation and biometric attendance processing
// @BasePath /
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The scan path works without the cache, just slower.
		logr.Sugar().Warnw("redis unavailable, schedule cache disabled", "error", err)
		redisClient = nil
	}

	var mailer mail.Mailer
	if cfg.Mail.Enabled {
		mailer = mail.NewSendgridMailer(cfg.Mail)
	} else {
		mailer = mail.NewConsoleMailer(logr)
	}

	scheduleRepo := repository.NewScheduleRepository(db)
	studentScheduleRepo := repository.NewStudentScheduleRepository(db)
	dayRepo := repository.NewDayAttendanceRepository(db)
	subjectRepo := repository.NewSubjectAttendanceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     "attendance-api",
	})
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, mailer, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, studentScheduleRepo, cacheRepo, metricsSvc, cfg.Attendance.DefaultGraceMinutes, nil, logr)
	attendanceSvc := service.NewAttendanceService(dayRepo, subjectRepo, studentRepo, deviceRepo, studentScheduleRepo, cacheRepo, notificationSvc, metricsSvc, cfg.Attendance.ScheduleCacheTTL, nil, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		}

		schedules := api.Group("/schedules", middleware.JWT(authSvc))
		{
			schedules.POST("", middleware.RequireRoles(models.RoleAdmin), scheduleHandler.Create)
			schedules.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), scheduleHandler.Update)
			schedules.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), scheduleHandler.Delete)
			schedules.GET("/teacher/:teacherId", scheduleHandler.ListByTeacher)
			schedules.POST("/links", middleware.RequireRoles(models.RoleAdmin), scheduleHandler.LinkStudent)
			schedules.DELETE("/links", middleware.RequireRoles(models.RoleAdmin), scheduleHandler.UnlinkStudent)
		}

		attendance := api.Group("/attendance", middleware.JWT(authSvc))
		{
			attendance.POST("/scans", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.RecordScan)
			attendance.GET("/students/:studentId/day", attendanceHandler.DayRecord)
			attendance.GET("/students/:studentId/subjects", attendanceHandler.SubjectStatuses)
			attendance.GET("/students/:studentId/history", attendanceHandler.History)
			attendance.POST("/overrides", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.OverrideSubject)
		}

		notifications := api.Group("/notifications", middleware.JWT(authSvc))
		{
			notifications.GET("", notificationHandler.List)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
