package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"emi_billing_app/internal/config"
	"emi_billing_app/internal/handlers"
	appmw "emi_billing_app/internal/middleware"
	"emi_billing_app/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	cfg := config.Load()
	cfg.MustGateway()

	// Initialize Firebase
	authClient, err := services.InitFirebase(cfg.FirebaseCredentialsPath)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed: %v", err)
		log.Println("Auth features will not work until valid credentials are provided")
	}

	// Initialize Database
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Redis is optional; without it course details are fetched per request
	var cache *services.RedisCache
	if cfg.RedisURL != "" {
		cache, err = services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: Redis initialization failed: %v", err)
			cache = nil
		}
	}

	// Wire services
	gateway := services.NewRazorpayService(cfg)
	emailService := services.NewEmailService(cfg)
	wahaService := services.NewWahaService(cfg)
	notifier := services.NewNotificationService(db, emailService, wahaService)
	emiService := services.NewEmiService(db, notifier)
	paymentService := services.NewPaymentService(db, gateway, emiService, notifier)
	accessService := services.NewAccessService(db)

	// Create Echo instance
	e := echo.New()
	e.HTTPErrorHandler = appmw.CustomErrorHandler

	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	webhookHandler := handlers.NewWebhookHandler(paymentService)
	courseHandler := handlers.NewCourseHandler(db, cache, accessService)
	planHandler := handlers.NewEmiPlanHandler(db, emiService)
	adminHandler := handlers.NewAdminHandler(emiService)
	prefHandler := handlers.NewUserPreferenceHandler(db)

	// Public routes
	e.GET("/api/courses/:courseID/emi-details", courseHandler.GetEmiDetails)
	e.POST("/api/webhooks/razorpay", webhookHandler.HandleWebhook)

	// Authenticated routes
	api := e.Group("/api")
	api.Use(appmw.RequireAuth(authClient, db))

	api.POST("/payments/orders", paymentHandler.CreateOrder)
	api.POST("/payments/installment-orders", paymentHandler.CreateInstallmentOrder)
	api.POST("/payments/verify", paymentHandler.VerifyPayment)
	api.GET("/payments", paymentHandler.ListPayments)
	api.GET("/payments/:paymentID", paymentHandler.GetPayment)

	api.GET("/emi-plans", planHandler.ListPlans)
	api.GET("/courses/:courseID/emi-plan", planHandler.GetPlanForCourse)
	api.GET("/courses/:courseID/access", courseHandler.CheckAccess)

	content := api.Group("/courses/:courseID/content")
	content.Use(appmw.RequireCourseAccess(accessService))
	content.GET("", courseHandler.GetContent)

	api.GET("/preferences/notifications", prefHandler.GetPreference)
	api.PUT("/preferences/notifications", prefHandler.UpdatePreference)

	// Operational endpoints
	admin := api.Group("/admin")
	admin.POST("/emi/repair", adminHandler.RepairEmiStatus)
	admin.POST("/emi/repair-all", adminHandler.RepairAllEmiStatuses)
	admin.POST("/emi/sweep", adminHandler.RunOverdueSweep)

	log.Printf("Server starting on port %s", cfg.Port)
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
