package ledger

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/wende-market/wende_market/internal/middleware"
	"github.com/wende-market/wende_market/internal/storagecredit"
)

// Handler exposes the ledger call surface over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type storageDepositRequest struct {
	AccountID string `json:"account_id"`
	Attached  int64  `json:"attached"`
}

type transferRequest struct {
	ReceiverID string `json:"receiver_id"`
	Amount     int64  `json:"amount"`
	Attached   int64  `json:"attached"`
}

type transferCallRequest struct {
	ReceiverID string          `json:"receiver_id"`
	Amount     int64           `json:"amount"`
	Attached   int64           `json:"attached"`
	Msg        TransferMessage `json:"msg"`
}

// StorageMinimumBalance reports the deposit needed to register an account.
func (h *Handler) StorageMinimumBalance(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"minimum_balance": h.service.StorageMinimumBalance()})
}

// StorageDeposit registers the account named in the body, defaulting to the caller.
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
	if err := h.service.Register(c.UserContext(), accountID, req.Attached); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"account_id": accountID, "registered": true})
}

// BalanceOf returns the account's balance, zero for unregistered accounts.
func (h *Handler) BalanceOf(c *fiber.Ctx) error {
	accountID := c.Params("accountID")
	balance, err := h.service.BalanceOf(c.UserContext(), accountID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"account_id": accountID, "balance": balance})
}

// Transfer moves value from the caller to the receiver.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sender := middleware.Caller(c)
	if err := h.service.Transfer(c.UserContext(), sender, req.ReceiverID, req.Amount, req.Attached); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"sender_id": sender, "receiver_id": req.ReceiverID, "amount": req.Amount})
}

// TransferCall moves value and dispatches the receiver's notify entry point,
// reporting how much of the amount came back unused.
func (h *Handler) TransferCall(c *fiber.Ctx) error {
	var req transferCallRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sender := middleware.Caller(c)
	unused, err := h.service.TransferCall(c.UserContext(), sender, req.ReceiverID, req.Amount, req.Msg, req.Attached)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"sender_id":   sender,
		"receiver_id": req.ReceiverID,
		"amount":      req.Amount,
		"unused":      unused,
		"used":        req.Amount - unused,
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyRegistered):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrSenderNotRegistered),
		errors.Is(err, ErrReceiverNotRegistered):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, storagecredit.ErrInsufficientDeposit):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ErrMarkerValueRequired),
		errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
