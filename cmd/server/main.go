package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/pesabridge/internal/config"
	"github.com/example/pesabridge/internal/database"
	"github.com/example/pesabridge/internal/routes"
	"github.com/example/pesabridge/internal/services"
)

func main() {
	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL)

	mpesa := services.NewMpesaService(services.MpesaConfig{
		Env:            cfg.MpesaEnv,
		ShortCode:      cfg.MpesaShortCode,
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		Passkey:        cfg.MpesaPasskey,
		CallbackURL:    cfg.MpesaCallbackURL,
	})

	escrow, err := services.NewEscrowService(services.EscrowConfig{
		RPCURL:          cfg.EscrowRPCURL,
		ContractAddress: cfg.EscrowContractAddress,
		PrivateKey:      cfg.EscrowPrivateKey,
		ChainID:         cfg.EscrowChainID,
		CountryCode:     cfg.EscrowCountryCode,
	})
	if err != nil {
		log.Fatalf("escrow client init failed: %v", err)
	}

	football := services.NewFootballService(services.FootballConfig{APIKey: cfg.FootballAPIKey})

	worker := services.NewMintWorker(services.NewSubmissionService(db), escrow, cfg.MintWorkerInterval)
	go worker.Run(context.Background())

	app := fiber.New(fiber.Config{
		AppName: "PesaBridge API",
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(compress.New())
	app.Use(limiter.New(limiter.Config{Max: 150}))

	routes.Register(app, routes.Deps{
		DB:       db,
		Mpesa:    mpesa,
		Escrow:   escrow,
		Football: football,
	})

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
