package routes

import (
	"context"
	"log/slog"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachOps/internal/config"
	"github.com/saeid-a/CoachOps/internal/handlers"
	"github.com/saeid-a/CoachOps/internal/middleware"
	"github.com/saeid-a/CoachOps/internal/repository"
	"github.com/saeid-a/CoachOps/internal/services"
	notifyws "github.com/saeid-a/CoachOps/internal/websocket"
)

// RegisterRoutes wires the services onto repos and mounts the API. The
// notification hub runs until ctx is cancelled.
func RegisterRoutes(
	ctx context.Context,
	app *fiber.App,
	cfg *config.Config,
	logger *slog.Logger,
	repos repository.Repositories,
	tx repository.Transactor,
) error {
	hub := notifyws.NewHub(logger)
	go hub.Run(ctx)

	schedulingService := services.NewSchedulingService(repos, tx)
	goalService := services.NewGoalService(repos, tx)
	invoiceService := services.NewInvoiceService(repos, tx,
		services.WithNotifier(hub),
		services.WithDueDays(cfg.InvoiceDueDays),
		services.WithDefaultCurrency(cfg.DefaultCurrency),
	)

	sessionHandler := handlers.NewSessionHandler(schedulingService)
	goalHandler := handlers.NewGoalHandler(goalService)
	paymentHandler := handlers.NewPaymentHandler(invoiceService)
	notificationHandler := handlers.NewNotificationHandler(hub, cfg.JWTSecret)

	api := app.Group("/api")

	api.Use("/v1/ws", notificationHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(notificationHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	sessions := authProtected.Group("/sessions")
	sessions.Post("", sessionHandler.CreateSession)
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Post("/check-conflict", sessionHandler.CheckConflict)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Patch("/:id", sessionHandler.UpdateSession)
	sessions.Patch("/:id/status", sessionHandler.UpdateStatus)
	sessions.Post("/:id/rating", sessionHandler.AddRating)
	sessions.Patch("/:id/notes", sessionHandler.SetNote)

	goals := authProtected.Group("/goals")
	goals.Post("", goalHandler.CreateGoal)
	goals.Get("", goalHandler.ListGoals)
	goals.Get("/:id", goalHandler.GetGoal)
	goals.Patch("/:id", goalHandler.UpdateGoal)
	goals.Patch("/:id/progress", goalHandler.UpdateProgress)
	goals.Post("/:id/milestones", goalHandler.AddMilestone)
	goals.Patch("/:id/milestones/:milestoneId", goalHandler.UpdateMilestone)
	goals.Post("/:id/comments", goalHandler.AddComment)
	goals.Post("/:id/collaborators", goalHandler.AddCollaborator)
	goals.Post("/:id/sessions/:sessionId", goalHandler.LinkSession)

	payments := authProtected.Group("/payments")
	payments.Post("", paymentHandler.CreateInvoice)
	payments.Get("", paymentHandler.ListPayments)
	payments.Get("/:id", paymentHandler.GetPayment)
	payments.Patch("/:id", paymentHandler.UpdatePayment)
	payments.Post("/:id/mark-paid", paymentHandler.MarkPaid)
	payments.Post("/:id/send", paymentHandler.SendReminder)

	return registerDocsRoutes(app, cfg)
}
