package market

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/wende-market/wende_market/internal/middleware"
	"github.com/wende-market/wende_market/internal/storagecredit"
)

// Handler exposes the market coordinator call surface over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a market HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type updatePriceRequest struct {
	AssetContractID string `json:"token_contract_id"`
	TokenID         string `json:"token_id"`
	Price           int64  `json:"price"`
}

type cancelRequest struct {
	AssetContractID string `json:"token_contract_id"`
	TokenID         string `json:"token_id"`
}

type storageDepositRequest struct {
	AccountID string `json:"account_id"`
	Attached  int64  `json:"attached"`
}

type addTokenRequest struct {
	PaymentTokenID string `json:"token_contract_id"`
}

type saleResponse struct {
	AssetContractID string `json:"token_contract_id"`
	TokenID         string `json:"token_id"`
	ApprovalID      uint64 `json:"approval_id"`
	ListerID        string `json:"lister_id"`
	BeneficiaryID   string `json:"beneficiary"`
	PaymentTokenID  string `json:"ft_token_id"`
	Price           int64  `json:"price"`
}

func toSaleResponse(l Listing) saleResponse {
	return saleResponse{
		AssetContractID: l.AssetContractID,
		TokenID:         l.TokenID,
		ApprovalID:      l.ApprovalID,
		ListerID:        l.ListerID,
		BeneficiaryID:   l.BeneficiaryID,
		PaymentTokenID:  l.PaymentTokenID,
		Price:           l.Price,
	}
}

// GetSale returns the listing identified by query parameters.
func (h *Handler) GetSale(c *fiber.Ctx) error {
	listing, err := h.service.GetSale(c.UserContext(), c.Query("token_contract_id"), c.Query("token_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toSaleResponse(listing))
}

// UpdatePrice changes the caller's listing price.
func (h *Handler) UpdatePrice(c *fiber.Ctx) error {
	var req updatePriceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	listing, err := h.service.UpdatePrice(c.UserContext(), middleware.Caller(c), req.AssetContractID, req.TokenID, req.Price)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toSaleResponse(listing))
}

// Cancel removes the caller's listing.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.Cancel(c.UserContext(), middleware.Caller(c), req.AssetContractID, req.TokenID); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"token_id": req.TokenID, "cancelled": true})
}

// StorageAmount reports the deposit a lister needs per listing.
func (h *Handler) StorageAmount(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"amount": h.service.StorageAmount()})
}

// StorageDeposit credits storage allowance on the coordinator.
func (h *Handler) StorageDeposit(c *fiber.Ctx) error {
	var req storageDepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	accountID := req.AccountID
	if accountID == "" {
		accountID = middleware.Caller(c)
	}
	if accountID == "" {
		return fiber.NewError(http.StatusBadRequest, "account_id is required")
	}
	if err := h.service.StorageDeposit(c.UserContext(), accountID, req.Attached); err != nil {
		return mapError(err)
	}
	credit, err := h.service.StorageCredit(c.UserContext(), accountID)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"account_id": accountID,
		"deposited":  credit.Deposited,
		"used":       credit.Used,
	})
}

// AddToken admits a payment token to the supported set. Owner only; the admin
// key middleware guards the route, the service still checks the caller.
func (h *Handler) AddToken(c *fiber.Ctx) error {
	var req addTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.PaymentTokenID == "" {
		return fiber.NewError(http.StatusBadRequest, "token_contract_id is required")
	}
	if err := h.service.AddToken(c.UserContext(), middleware.Caller(c), req.PaymentTokenID); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"token_contract_id": req.PaymentTokenID, "supported": true})
}

// SupportsToken reports whether a payment token is accepted.
func (h *Handler) SupportsToken(c *fiber.Ctx) error {
	supported, err := h.service.SupportsToken(c.UserContext(), c.Params("tokenID"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"token_contract_id": c.Params("tokenID"), "supported": supported})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrListingNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotLister), errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrUnsupportedPaymentToken), errors.Is(err, ErrInvalidPrice):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, storagecredit.ErrInsufficientDeposit):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
