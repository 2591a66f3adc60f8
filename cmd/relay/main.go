package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"artisora/internal/adapter/api"
	"artisora/internal/adapter/api/handler"
	apimiddleware "artisora/internal/adapter/api/middleware"
	"artisora/internal/adapter/api/router"
	"artisora/internal/adapter/repository"
	"artisora/internal/infrastructure/firebase"
	"artisora/internal/infrastructure/ratelimit"
	"artisora/internal/infrastructure/websocket"
	"artisora/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	limiter := ratelimit.NewRateLimiter(cfg.SendRateBurst, cfg.SendRatePerSec)
	limiter.StartCleanupRoutine()

	// Separate budget for the REST surface; 60 burst, 10/s refill per caller.
	httpLimiter := ratelimit.NewRateLimiter(60, 10)
	httpLimiter.StartCleanupRoutine()

	wsManager := websocket.NewManager(limiter)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// Firebase is optional: without a project id the relay trusts identity as
	// presented at connect time and the product endpoints are not served.
	if cfg.FirebaseProject != "" {
		var opt option.ClientOption
		if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
			opt = option.WithCredentialsJSON([]byte(serviceAccountJSON))
		} else {
			serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
			if serviceAccountPath == "" {
				log.Fatalf("FIREBASE_SERVICE_ACCOUNT_JSON or FIREBASE_SERVICE_ACCOUNT_PATH is required")
			}
			opt = option.WithCredentialsFile(serviceAccountPath)
		}

		firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}

		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}

		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		productRepo := repository.NewFirestoreProductRepository(firestoreClient)
		productHandler := handler.NewProductHandler(productRepo)
		authMiddleware := apimiddleware.NewAuthMiddleware(authClient)
		router.Setup(e, productHandler, authMiddleware, httpLimiter)

		firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient)
		wsHandler := handler.NewWebSocketHandler(wsManager, firebaseAuthClient)
		router.SetupWebSocketRouter(e, wsHandler)
	} else {
		log.Printf("FIREBASE_PROJECT_ID not set; running relay without token verification")
		wsHandler := handler.NewWebSocketHandler(wsManager, nil)
		router.SetupWebSocketRouter(e, wsHandler)
	}

	log.Printf("Starting relay on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
