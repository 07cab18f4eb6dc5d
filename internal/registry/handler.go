package registry

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/wende-market/wende_market/internal/middleware"
	"github.com/wende-market/wende_market/internal/storagecredit"
)

// Handler exposes the asset registry call surface over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a registry HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type mintRequest struct {
	TokenID  string        `json:"token_id"`
	Metadata TokenMetadata `json:"metadata"`
	Attached int64         `json:"attached"`
}

type approveRequest struct {
	TokenID   string     `json:"token_id"`
	AccountID string     `json:"account_id"`
	Terms     *SaleTerms `json:"msg,omitempty"`
	Attached  int64      `json:"attached"`
}

type transferRequest struct {
	TokenID    string `json:"token_id"`
	ReceiverID string `json:"receiver_id"`
}

type tokenResponse struct {
	TokenID  string        `json:"token_id"`
	OwnerID  string        `json:"owner_id"`
	Metadata TokenMetadata `json:"metadata"`
}

// Mint creates a token owned by the caller.
func (h *Handler) Mint(c *fiber.Ctx) error {
	var req mintRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.TokenID == "" {
		return fiber.NewError(http.StatusBadRequest, "token_id is required")
	}
	token, err := h.service.Mint(c.UserContext(), middleware.Caller(c), req.TokenID, req.Metadata, req.Attached)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(tokenResponse{
		TokenID:  token.ID,
		OwnerID:  token.OwnerID,
		Metadata: token.Metadata,
	})
}

// Approve grants transfer rights and optionally triggers listing creation.
func (h *Handler) Approve(c *fiber.Ctx) error {
	var req approveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	result, err := h.service.Approve(c.UserContext(), middleware.Caller(c), req.TokenID, req.AccountID, req.Terms, req.Attached)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"token_id":        req.TokenID,
		"account_id":      req.AccountID,
		"approval_id":     result.ApprovalID,
		"listing_created": result.ListingCreated,
	})
}

// Transfer moves token ownership to the receiver.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.Transfer(c.UserContext(), middleware.Caller(c), req.ReceiverID, req.TokenID); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"token_id": req.TokenID, "owner_id": req.ReceiverID})
}

// Token returns a token by id.
func (h *Handler) Token(c *fiber.Ctx) error {
	token, err := h.service.Token(c.UserContext(), c.Params("tokenID"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(tokenResponse{
		TokenID:  token.ID,
		OwnerID:  token.OwnerID,
		Metadata: token.Metadata,
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateToken):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotOwnerOrApproved):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, storagecredit.ErrInsufficientDeposit):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
