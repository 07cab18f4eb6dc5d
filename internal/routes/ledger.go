package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wende-market/wende_market/internal/ledger"
	"github.com/wende-market/wende_market/internal/middleware"
)

// RegisterLedgerRoutes wires the payment ledger call surface. The purchase
// path carries the per-caller rate limit.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler, rateLimiter fiber.Handler) {
	ft := r.Group("/ft")
	ft.Get("/storage_minimum_balance", h.StorageMinimumBalance)
	ft.Get("/balance_of/:accountID", h.BalanceOf)
	ft.Post("/storage_deposit", h.StorageDeposit)
	ft.Post("/transfer", middleware.RequireCaller(), h.Transfer)
	ft.Post("/transfer_call", middleware.RequireCaller(), rateLimiter, h.TransferCall)
}
