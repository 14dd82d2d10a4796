package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/domain/patient"
	"github.com/clinicflow/clinicflow/internal/domain/reminder"
	"github.com/clinicflow/clinicflow/internal/domain/visit"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/internal/platform/blobstore"
	"github.com/clinicflow/clinicflow/internal/platform/db"
	"github.com/clinicflow/clinicflow/internal/platform/events"
	"github.com/clinicflow/clinicflow/internal/platform/middleware"
	"github.com/clinicflow/clinicflow/internal/platform/notification"
	"github.com/clinicflow/clinicflow/internal/platform/validate"
	"github.com/clinicflow/clinicflow/internal/platform/websocket"
)

const version = "0.1.0"

// app holds the wired services shared by the server and the CLI.
type app struct {
	patients     *patient.Handler
	appointments *appointment.Handler
	queue        *visit.Handler
	reminders    *reminder.Handler
	live         *websocket.Handler
	dispatcher   *reminder.Dispatcher
	publisher    events.Publisher
	log          zerolog.Logger
}

func buildApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	policy, err := reminder.ParsePolicy(cfg.ReminderPolicy)
	if err != nil {
		return nil, err
	}

	var awsCfg *aws.Config
	if cfg.AWSRegion != "" {
		c, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		awsCfg = &c
	}

	hub := websocket.NewHub(logger.With().Str("component", "live-feed").Logger())
	pub := events.Fanout{newPublisher(cfg, logger), hub}
	tx := db.NewTransactor(pool)

	patientRepo := patient.NewRepoPG(pool)
	apptRepo := appointment.NewAppointmentRepoPG(pool)
	reminderRepo := reminder.NewRepoPG(pool)

	scheduler := reminder.NewScheduler(reminderRepo, apptRepo, tx, policy, loc, pub,
		logger.With().Str("component", "reminder-scheduler").Logger())

	var archive blobstore.Store
	if cfg.ReportBucket != "" && awsCfg != nil {
		archive = blobstore.NewS3Store(newS3Client(*awsCfg, cfg.AWSEndpointURL), cfg.ReportBucket)
	}
	dispatcher := reminder.NewDispatcher(
		reminderRepo, apptRepo, patientRepo,
		newSMSSender(cfg, logger),
		newEmailSender(cfg, awsCfg, logger),
		notification.NewTemplateEngine(),
		archive, pub,
		logger.With().Str("component", "reminder-dispatcher").Logger(),
		reminder.DispatcherConfig{
			Workers:           cfg.ReminderDispatchWorkers,
			BatchSize:         cfg.ReminderBatchSize,
			ClaimLease:        cfg.ReminderClaimLease,
			StaleAttemptAfter: cfg.ReminderStaleAttempt,
			Location:          loc,
		},
	)

	apptSvc := appointment.NewService(apptRepo, appointment.NewTemplateRepoPG(pool), appointment.NewSeriesRepoPG(pool),
		patientRepo, tx, scheduler, pub, logger.With().Str("component", "appointments").Logger())
	visitSvc := visit.NewService(visit.NewQueueRepoPG(pool), apptRepo, tx, pub,
		logger.With().Str("component", "queue").Logger(), loc)

	logger.Info().
		Str("reminder_policy", policy.String()).
		Str("timezone", loc.String()).
		Bool("report_archive", archive != nil).
		Msg("services wired")

	return &app{
		patients:     patient.NewHandler(patient.NewService(patientRepo)),
		appointments: appointment.NewHandler(apptSvc),
		queue:        visit.NewHandler(visitSvc),
		reminders:    reminder.NewHandler(scheduler, dispatcher),
		live:         websocket.NewHandler(hub, cfg.CORSOrigins, logger),
		dispatcher:   dispatcher,
		publisher:    pub,
		log:          logger,
	}, nil
}

func (a *app) registerRoutes(api *echo.Group) {
	a.patients.RegisterRoutes(api)
	a.appointments.RegisterRoutes(api)
	a.queue.RegisterRoutes(api)
	a.reminders.RegisterRoutes(api)
	a.live.RegisterRoutes(api)
}

func (a *app) close() {
	if err := a.publisher.Close(); err != nil {
		a.log.Warn().Err(err).Msg("event publisher close failed")
	}
}

// newEcho builds the server with global middleware and the liveness route,
// and returns the authenticated, rate-limited /api/v1 group.
func newEcho(cfg *config.Config, logger zerolog.Logger) (*echo.Echo, *echo.Group) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	authMW := auth.DevAuthMiddleware()
	if !cfg.IsDev() {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}
	api := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg), authMW)
	return e, api
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	c, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return c, nil
}

func newS3Client(c aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(c, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info().Msg("KAFKA_BROKERS not set; domain events are not published")
		return events.NopPublisher{}
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}

// newSMSSender picks the gateway when configured, the log sender in
// development, and a sender that always fails otherwise.
func newSMSSender(cfg *config.Config, logger zerolog.Logger) notification.SMSSender {
	switch {
	case cfg.SMSGatewayURL != "":
		return notification.NewHTTPSMSGateway(cfg.SMSGatewayURL, cfg.SMSAPIKey, cfg.SMSSenderID, cfg.SMSTimeout)
	case cfg.IsDev():
		return notification.LogSender{Logger: logger}
	default:
		logger.Warn().Msg("SMS_GATEWAY_URL not set; sms reminders will fail")
		return notification.Unconfigured{Channel: notification.ChannelSMS}
	}
}

func newEmailSender(cfg *config.Config, awsCfg *aws.Config, logger zerolog.Logger) notification.EmailSender {
	switch {
	case cfg.EmailQueueURL != "" && awsCfg != nil:
		client := sqs.NewFromConfig(*awsCfg, func(o *sqs.Options) {
			if cfg.AWSEndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			}
		})
		return notification.NewSQSEmailSender(client, cfg.EmailQueueURL)
	case cfg.IsDev():
		return notification.LogSender{Logger: logger}
	default:
		logger.Warn().Msg("EMAIL_QUEUE_URL not set; email reminders will fail")
		return notification.Unconfigured{Channel: notification.ChannelEmail}
	}
}
