package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/pesabridge/internal/handlers"
	"github.com/example/pesabridge/internal/middleware"
	"github.com/example/pesabridge/internal/services"
)

// Deps are the constructed collaborators the routes need. They are built
// once in the composition root and injected here.
type Deps struct {
	DB       *gorm.DB
	Mpesa    handlers.StkPusher
	Escrow   handlers.EscrowClient
	Football *services.FootballService
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, deps Deps) {
	mpesaHandler := handlers.NewMpesaHandler(services.NewTransactionService(deps.DB), deps.Mpesa)
	mintHandler := handlers.NewMintHandler(deps.Escrow)
	teamsHandler := handlers.NewTeamsHandler(deps.DB, deps.Football)

	payments := app.Group("/payments")
	payments.Post("/stk/init", middleware.ValidateStkInit(), mpesaHandler.CreateStkPush)
	payments.Post("/stk/callback", mpesaHandler.StkCallback)
	payments.Get("/transactions", mpesaHandler.ListTransactions)

	mint := app.Group("/mint")
	mint.Get("/intents/:id", mintHandler.GetIntent)
	mint.Post("/intents/:id/execute", mintHandler.ExecuteMint)

	teams := app.Group("/teams")
	teams.Get("/", teamsHandler.ListTeams)
	teams.Post("/", teamsHandler.UpsertTeam)
	teams.Get("/scores", teamsHandler.GetAllScores)
	teams.Get("/:teamId/score", teamsHandler.GetTeamScore)
	teams.Get("/:teamId", teamsHandler.GetTeam)

	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "success", "message": "pong"})
	})
}
