package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wende-market/wende_market/internal/market"
	"github.com/wende-market/wende_market/internal/middleware"
)

// RegisterMarketRoutes wires the market coordinator call surface. The
// supported token mutation sits behind the admin key.
func RegisterMarketRoutes(r fiber.Router, h *market.Handler, adminKey fiber.Handler) {
	m := r.Group("/market")
	m.Get("/sale", h.GetSale)
	m.Get("/storage_amount", h.StorageAmount)
	m.Get("/supports_token/:tokenID", h.SupportsToken)
	m.Post("/storage_deposit", h.StorageDeposit)
	m.Post("/update_price", middleware.RequireCaller(), h.UpdatePrice)
	m.Post("/cancel", middleware.RequireCaller(), h.Cancel)
	m.Post("/add_token", adminKey, middleware.RequireCaller(), h.AddToken)
}
