package handlers

import (
	"context"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/example/pesabridge/internal/models"
	"github.com/example/pesabridge/internal/services"
	"github.com/example/pesabridge/internal/utils"
)

// StkPusher initiates an STK push against the payment gateway.
type StkPusher interface {
	STKPush(ctx context.Context, phone string, amount float64) (*services.StkPushResponse, error)
}

// TransactionStore is the durable transaction record the handlers drive.
// Complete and Fail are conditional transitions: they report false when
// the transaction is unknown or already terminal.
type TransactionStore interface {
	Create(ctx context.Context, txn *models.Transaction) error
	FindByMerchantRequestID(ctx context.Context, merchantRequestID string) (*models.Transaction, error)
	Complete(ctx context.Context, merchantRequestID, mpesaCode, phoneNumber string) (*models.Transaction, bool, error)
	Fail(ctx context.Context, merchantRequestID string, reason models.TransactionFailureReason) (bool, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.Transaction, int64, error)
}

// MpesaHandler serves the STK push initiation and callback endpoints.
type MpesaHandler struct {
	store TransactionStore
	mpesa StkPusher
}

func NewMpesaHandler(store TransactionStore, mpesa StkPusher) *MpesaHandler {
	return &MpesaHandler{store: store, mpesa: mpesa}
}

type stkInitRequest struct {
	PhoneNumber string  `json:"phoneNumber"`
	Amount      float64 `json:"amount"`
}

type serverResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// CreateStkPush initiates an STK push and records the transaction. The
// transaction row is written only after the gateway has acknowledged the
// request, so a failed initiation leaves no orphaned processing record.
func (h *MpesaHandler) CreateStkPush(c *fiber.Ctx) error {
	var req stkInitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(serverResponse{
			Status:  "error",
			Message: "Invalid request body",
		})
	}

	if !utils.ValidatePhoneNumber(req.PhoneNumber) {
		return c.Status(fiber.StatusBadRequest).JSON(serverResponse{
			Status:  "error",
			Message: "Invalid phone number format",
		})
	}
	if !utils.ValidAmount(req.Amount) {
		return c.Status(fiber.StatusBadRequest).JSON(serverResponse{
			Status:  "error",
			Message: "Invalid amount provided",
		})
	}

	push, err := h.mpesa.STKPush(c.UserContext(), req.PhoneNumber, req.Amount)
	if err != nil {
		log.Printf("[Mpesa] STK push initiation failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(serverResponse{
			Status:  "error",
			Message: "Error initiating STK push",
		})
	}

	txn := models.Transaction{
		Amount: req.Amount,
		MpesaMetadata: models.MpesaMetadata{
			MerchantRequestID:   push.MerchantRequestID,
			CheckoutRequestID:   push.CheckoutRequestID,
			ResponseCode:        push.ResponseCode,
			ResponseDescription: push.ResponseDescription,
			CustomerMessage:     push.CustomerMessage,
			PhoneNumber:         req.PhoneNumber,
		},
	}
	if err := h.store.Create(c.UserContext(), &txn); err != nil {
		log.Printf("[Mpesa] failed to persist transaction for %s: %v", push.MerchantRequestID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(serverResponse{
			Status:  "error",
			Message: "Error initiating STK push",
		})
	}

	return c.JSON(serverResponse{
		Status:  "success",
		Message: "STK push initiated successfully",
		Data:    txn,
	})
}

type stkCallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

type stkCallbackPayload struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []stkCallbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback stkCallbackPayload `json:"stkCallback"`
	} `json:"Body"`
}

// StkCallback reconciles the asynchronous payment result. Daraja retries
// this webhook until it sees a 200, so the endpoint acknowledges receipt
// no matter what happened internally; failures are logged only. State
// moves through conditional updates, making duplicate and concurrent
// deliveries transition the transaction at most once and enqueue at most
// one escrow submission.
func (h *MpesaHandler) StkCallback(c *fiber.Ctx) error {
	ack := func() error {
		return c.JSON(fiber.Map{"message": "Callback received successfully!"})
	}

	var envelope stkCallbackEnvelope
	if err := c.BodyParser(&envelope); err != nil {
		log.Printf("[Mpesa] callback body parse failed: %v", err)
		return ack()
	}

	cb := envelope.Body.StkCallback
	if cb.MerchantRequestID == "" {
		log.Printf("[Mpesa] callback without MerchantRequestID, ignoring")
		return ack()
	}

	ctx := c.UserContext()

	if cb.ResultCode != 0 {
		transitioned, err := h.store.Fail(ctx, cb.MerchantRequestID, models.FailureReasonMpesaCancelledOrFailed)
		switch {
		case err != nil:
			log.Printf("[Mpesa] callback fail transition error for %s: %v", cb.MerchantRequestID, err)
		case !transitioned:
			log.Printf("[Mpesa] callback for %s matched no processing transaction (result %d: %s)",
				cb.MerchantRequestID, cb.ResultCode, cb.ResultDesc)
		default:
			log.Printf("[Mpesa] transaction %s failed: result %d: %s",
				cb.MerchantRequestID, cb.ResultCode, cb.ResultDesc)
		}
		return ack()
	}

	mpesaCode := metadataString(cb.CallbackMetadata.Item, "MpesaReceiptNumber")
	phone := metadataString(cb.CallbackMetadata.Item, "PhoneNumber")

	txn, transitioned, err := h.store.Complete(ctx, cb.MerchantRequestID, mpesaCode, phone)
	switch {
	case err != nil:
		log.Printf("[Mpesa] callback complete transition error for %s: %v", cb.MerchantRequestID, err)
	case !transitioned:
		existing, lookupErr := h.store.FindByMerchantRequestID(ctx, cb.MerchantRequestID)
		if lookupErr != nil {
			log.Printf("[Mpesa] callback lookup error for %s: %v", cb.MerchantRequestID, lookupErr)
		} else if existing == nil {
			log.Printf("[Mpesa] %s transaction not found", cb.MerchantRequestID)
		} else {
			log.Printf("[Mpesa] duplicate callback for %s ignored, status already %s",
				cb.MerchantRequestID, existing.Status)
		}
	default:
		log.Printf("[Mpesa] transaction %s completed with receipt %s, escrow submission queued",
			txn.ID, mpesaCode)
	}

	return ack()
}

// ListTransactions returns payment history, optionally filtered by status.
func (h *MpesaHandler) ListTransactions(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	txns, total, err := h.store.List(c.UserContext(), c.Query("status"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txns,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// metadataString finds a named item in the callback metadata list. Values
// arrive as either strings or JSON numbers; numbers are formatted without
// an exponent so phone numbers survive intact.
func metadataString(items []stkCallbackItem, name string) string {
	for _, item := range items {
		if item.Name != name {
			continue
		}
		switch v := item.Value.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
