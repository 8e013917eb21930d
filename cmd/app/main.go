package main

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	extstripe "github.com/sohail-eng/online-cinema/external/stripe"
	"github.com/sohail-eng/online-cinema/internal/config"
	"github.com/sohail-eng/online-cinema/internal/db"
	"github.com/sohail-eng/online-cinema/internal/logging"
	"github.com/sohail-eng/online-cinema/internal/repository"
	"github.com/sohail-eng/online-cinema/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// ======================
	// INFRA
	// ======================
	if err := db.Migrate(cfg.DatabaseDSN); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	pool, err := db.Connect(context.Background(), cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	// ======================
	// EXTERNALS
	// ======================
	checkout := extstripe.NewClient(cfg.StripeSecretKey, cfg.SuccessURL, cfg.CancelURL, cfg.StripeTimeout)
	verifier := extstripe.NewVerifier(cfg.StripeWebhookSecret)

	// ======================
	// REPOSITORIES
	// ======================
	movieRepo := repository.NewMovieRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	ownershipRepo := repository.NewOwnershipRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)

	// ======================
	// SERVICES
	// ======================
	movieSvc := services.NewMovieService(movieRepo)
	cartSvc := services.NewCartService(movieRepo, cartRepo, ownershipRepo)
	orderSvc := services.NewOrderService(orderRepo)
	paymentSvc := services.NewPaymentService(orderRepo, paymentRepo, ownershipRepo, checkout, verifier, logger)

	// ======================
	// ECHO
	// ======================
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	api := e.Group("")
	jwtSecret := []byte(cfg.JWTSecret)

	registerMovieRoutes(api, movieSvc)
	registerCartRoutes(api, jwtSecret, cartSvc)
	registerOrderRoutes(api, jwtSecret, orderSvc, paymentSvc)
	registerPaymentRoutes(api, jwtSecret, paymentSvc, logger)

	logger.Info("starting server", zap.String("port", cfg.Port))
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
