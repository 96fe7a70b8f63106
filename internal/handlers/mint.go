package handlers

import (
	"context"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/pesabridge/internal/services"
)

// EscrowClient is the slice of the escrow contract the admin path uses.
type EscrowClient interface {
	GetIntent(ctx context.Context, intentID string) (*services.MintIntent, error)
	ExecuteMint(ctx context.Context, intentID string) (string, error)
}

// MintHandler exposes the administrative mint execution path. It carries
// no reconciliation logic; it forwards to the escrow contract.
type MintHandler struct {
	escrow EscrowClient
}

func NewMintHandler(escrow EscrowClient) *MintHandler {
	return &MintHandler{escrow: escrow}
}

// GetIntent reads a mint intent from the escrow contract.
func (h *MintHandler) GetIntent(c *fiber.Ctx) error {
	intentID := c.Params("id")
	if intentID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "intent id required")
	}

	intent, err := h.escrow.GetIntent(c.UserContext(), intentID)
	if err != nil {
		log.Printf("[Mint] getIntent %s failed: %v", intentID, err)
		return fiber.NewError(fiber.StatusBadGateway, "escrow intent lookup failed")
	}

	return c.JSON(serverResponse{
		Status:  "success",
		Message: "Intent retrieved",
		Data: fiber.Map{
			"user":        intent.User.Hex(),
			"amount":      intent.Amount.String(),
			"countryCode": bytes32String(intent.CountryCode),
			"txRef":       bytes32String(intent.TxRef),
			"timestamp":   intent.Timestamp.String(),
			"status":      intent.Status,
		},
	})
}

// ExecuteMint performs the privileged mint for a pending intent.
func (h *MintHandler) ExecuteMint(c *fiber.Ctx) error {
	intentID := c.Params("id")
	if intentID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "intent id required")
	}

	hash, err := h.escrow.ExecuteMint(c.UserContext(), intentID)
	if err != nil {
		log.Printf("[Mint] executeMint %s failed: %v", intentID, err)
		return fiber.NewError(fiber.StatusBadGateway, "escrow mint execution failed")
	}

	log.Printf("[Mint] executeMint %s submitted, tx %s", intentID, hash)
	return c.JSON(serverResponse{
		Status:  "success",
		Message: "Mint execution submitted",
		Data:    fiber.Map{"tx_hash": hash},
	})
}

func bytes32String(b [32]byte) string {
	return strings.TrimRight(string(b[:]), "\x00")
}
