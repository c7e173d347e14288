package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-course-api/internal/config"
	"github.com/noah-isme/gema-course-api/internal/database"
	"github.com/noah-isme/gema-course-api/internal/repository"
	"github.com/noah-isme/gema-course-api/internal/service"
)

// publisher sweeps scheduled assignments whose publish time has passed.
// With -once it runs a single sweep, otherwise it repeats on the configured interval.
func main() {
	once := flag.Bool("once", false, "run a single auto-publish sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "auto-publisher").Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName+"-publisher")
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), validate, logger)
	events := service.NewEventPublisher(redisClient, natsConn, cfg.EventChannelBase, logger)
	publisher := service.NewAssignmentPublisherService(
		repository.NewCourseRepository(db),
		repository.NewPublishedAssignmentRepository(db),
		validate,
		activity,
		events,
		logger,
	)

	sweep := func() {
		result, err := publisher.PublishDue(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("auto-publish sweep failed")
			return
		}
		logger.Info().Int("published", len(result.Published)).Time("ran_at", result.RanAt).Msg("auto-publish sweep finished")
	}

	sweep()
	if *once {
		return
	}

	interval := cfg.AutoPublishInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("auto-publisher stopped")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
