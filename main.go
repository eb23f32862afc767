package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jjnnsslimaye/seedling-backend/handlers"
	"github.com/jjnnsslimaye/seedling-backend/ledger"
	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/models"
	"github.com/jjnnsslimaye/seedling-backend/services"
	"github.com/jjnnsslimaye/seedling-backend/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading environment variables directly")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Competition{},
		&models.Submission{},
		&models.JudgeAssignment{},
		&models.Payment{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := utils.InitStorage(); err != nil {
		log.Fatal("failed to initialize object storage:", err)
	}

	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeKey == "" {
		log.Fatal("STRIPE_SECRET_KEY environment variable not set")
	}
	ledgerClient := ledger.NewStripeClient(stripeKey, os.Getenv("STRIPE_WEBHOOK_SECRET"))

	notifier := services.NewNotificationService(
		os.Getenv("NOTIFICATION_SERVICE_URL"),
		os.Getenv("NOTIFICATION_SERVICE_TOKEN"),
	)

	competitionService := services.NewCompetitionService(db, notifier)
	submissionService := services.NewSubmissionService(db, ledgerClient)
	judgingService := services.NewJudgingService(db)
	adminService := services.NewAdminService(db, ledgerClient, notifier)
	paymentService := services.NewPaymentService(db, ledgerClient, notifier)
	userService := services.NewUserService(db)

	app := fiber.New(fiber.Config{
		BodyLimit: 100 * 1024 * 1024, // 100MB for pitch decks and demo videos
	})

	app.Use(middleware.GatewayAuthMiddleware())

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-User-ID, X-User-Roles, Stripe-Signature",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupCompetitionRoutes(app, competitionService)
	handlers.SetupSubmissionRoutes(app, submissionService)
	handlers.SetupJudgingRoutes(app, judgingService)
	handlers.SetupAdminRoutes(app, adminService, userService)
	handlers.SetupPaymentRoutes(app, paymentService, userService)

	competitionService.StartLifecycleScheduler()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	log.Printf("server running on http://localhost:%s", port)
	log.Println("lifecycle scheduler running (every 1m)")

	<-ctx.Done()
	log.Println("shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
