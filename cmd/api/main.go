package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_api "coachkit/internal/common/api"
	"coachkit/internal/config"
	"coachkit/internal/database"
	"coachkit/internal/features/automation"
	"coachkit/internal/features/booking"
	"coachkit/internal/features/client"
	"coachkit/internal/features/jobs"
	"coachkit/internal/features/messaging"
	"coachkit/internal/features/organization"
	"coachkit/internal/features/push"
	"coachkit/internal/features/settings"
	"coachkit/internal/features/sms"
	"coachkit/internal/logger"
	"coachkit/internal/middleware"
	"coachkit/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
	log.Printf("Registered %d route groups\n", len(routes))
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			utils.SetSecret(cfg.JWTSecret)
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(
	lc fx.Lifecycle,
	runRepo automation.RunRepository,
	messageRepo sms.MessageRepository,
	suppressionRepo sms.SuppressionRepository,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := runRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure automation run indexes: %v", err)
				}
				if err := messageRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure sms message indexes: %v", err)
				}
				if err := suppressionRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure sms suppression indexes: %v", err)
				}
			}()
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,

			// Initialize Repository
			client.NewClientRepository,
			organization.NewOrganizationRepository,
			booking.NewBookingRepository,
			messaging.NewMessagingRepository,
			push.NewPushTokenRepository,
			settings.NewSettingsRepository,
			automation.NewRuleRepository,
			automation.NewRunRepository,
			sms.NewMessageRepository,
			sms.NewSuppressionRepository,
			sms.NewScheduleRepository,
			jobs.NewJobRunRepository,

			// Initialize Service
			messaging.NewMessagingService,
			push.NewPushService,
			automation.NewContextGatherer,
			automation.NewGuardrailChecker,
			automation.NewActionExecutor,
			automation.NewAutomationService,
			sms.NewTwilioProvider,
			sms.NewSmsService,
			sms.NewSmsWorker,
			sms.NewReminderService,
			jobs.NewJobService,

			// Initialize Controller
			automation.NewAutomationController,
			sms.NewSmsController,
			jobs.NewJobsController,

			// Initialize API Routes
			AsRoute(automation.NewAutomationApi),
			AsRoute(sms.NewSmsApi),
			AsRoute(jobs.NewJobsApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(lc fx.Lifecycle, jobService jobs.JobService) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return jobService.InitializeScheduler(ctx)
					},
					OnStop: func(ctx context.Context) error {
						return jobService.StopScheduler()
					},
				})
			},
			InitializeIndexes,
		),
	)

	app.Run()
}
