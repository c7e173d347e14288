package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-course-api/internal/config"
	"github.com/noah-isme/gema-course-api/internal/database"
	"github.com/noah-isme/gema-course-api/internal/handler"
	"github.com/noah-isme/gema-course-api/internal/middleware"
	"github.com/noah-isme/gema-course-api/internal/observability"
	"github.com/noah-isme/gema-course-api/internal/repository"
	"github.com/noah-isme/gema-course-api/internal/router"
	"github.com/noah-isme/gema-course-api/internal/service"
	cloud "github.com/noah-isme/gema-course-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}

	redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured; analytics cache and redis events disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	var uploader service.FileUploader
	if cfg.UploadsEnabled() {
		cld, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryUploadSecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploader = cld
	} else {
		logger.Warn().Msg("cloudinary not configured; attachment uploads disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	events := service.NewEventPublisher(redisClient, natsConn, cfg.EventChannelBase, logger)

	courseRepo := repository.NewCourseRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	assignmentRepo := repository.NewPublishedAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	stream := service.NewEventStream(courseRepo, service.EventStreamSources{
		Redis:        redisClient,
		RedisChannel: events.Channel(),
		NATS:         natsConn,
		NATSSubject:  events.Subject(),
		SkipSource:   events.NodeID(),
	}, logger)
	streamCtx, stopStream := context.WithCancel(context.Background())
	defer stopStream()
	stream.Start(streamCtx)
	notifier := service.Notifiers{events, stream}

	activityService := service.NewActivityService(activityRepo, validate, logger)
	gradebookService := service.NewGradebookService(courseRepo, assignmentRepo, submissionRepo, analyticsRepo, redisClient, cfg.AnalyticsCacheTTL, logger)
	criteriaService := service.NewGradingCriteriaService(courseRepo, templateRepo, validate, logger)
	publisherService := service.NewAssignmentPublisherService(courseRepo, assignmentRepo, validate, activityService, notifier, logger)
	submissionService := service.NewSubmissionService(assignmentRepo, submissionRepo, validate, service.SubmissionServiceOptions{
		Uploader:           uploader,
		Activity:           activityService,
		Notifier:           notifier,
		Analytics:          gradebookService,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
	}, logger)
	enrollmentService := service.NewEnrollmentService(courseRepo, enrollmentRepo, gradebookService, validate, activityService, notifier, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.MaxAttachmentBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	app.Get("/metrics", observability.MetricsHandler())
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler: handler.NewAssignmentHandler(publisherService, validate, logger),
		TemplateHandler:   handler.NewTemplateHandler(criteriaService, validate, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		EnrollmentHandler: handler.NewEnrollmentHandler(enrollmentService, gradebookService, logger),
		GradebookHandler:  handler.NewGradebookHandler(gradebookService, logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		EventStream:       handler.NewEventStreamHandler(stream, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		EnrollLimiter:     middleware.RateLimit("enroll", cfg.EnrollRateLimitMax, cfg.EnrollRateLimitWindow, "id"),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
