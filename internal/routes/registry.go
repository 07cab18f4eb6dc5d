package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wende-market/wende_market/internal/middleware"
	"github.com/wende-market/wende_market/internal/registry"
)

// RegisterRegistryRoutes wires the asset registry call surface.
func RegisterRegistryRoutes(r fiber.Router, h *registry.Handler) {
	nft := r.Group("/nft")
	nft.Get("/token/:tokenID", h.Token)
	nft.Post("/mint", middleware.RequireCaller(), h.Mint)
	nft.Post("/approve", middleware.RequireCaller(), h.Approve)
	nft.Post("/transfer", middleware.RequireCaller(), h.Transfer)
}
