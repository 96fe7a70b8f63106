package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/pesabridge/internal/handlers"
	"github.com/example/pesabridge/internal/middleware"
	"github.com/example/pesabridge/internal/models"
	"github.com/example/pesabridge/internal/services"
)

// fakeTransactionStore mimics the real store's conditional-update
// semantics: terminal transitions happen at most once per transaction and
// escrow submissions are enqueued only on the processing->completed flip.
type fakeTransactionStore struct {
	mu       sync.Mutex
	txns     map[string]*models.Transaction
	enqueued []models.EscrowSubmission
	failErr  error
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{txns: make(map[string]*models.Transaction)}
}

func (f *fakeTransactionStore) Create(_ context.Context, txn *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn.ID = uuid.New()
	txn.Status = models.TransactionStatusProcessing
	copied := *txn
	f.txns[txn.MpesaMetadata.MerchantRequestID] = &copied
	return nil
}

func (f *fakeTransactionStore) FindByMerchantRequestID(_ context.Context, merchantRequestID string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[merchantRequestID]
	if !ok {
		return nil, nil
	}
	copied := *txn
	return &copied, nil
}

func (f *fakeTransactionStore) Complete(_ context.Context, merchantRequestID, mpesaCode, phoneNumber string) (*models.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[merchantRequestID]
	if !ok || txn.Status != models.TransactionStatusProcessing {
		return nil, false, nil
	}
	txn.Status = models.TransactionStatusCompleted
	txn.MpesaCode = mpesaCode
	if phoneNumber != "" {
		txn.MpesaMetadata.PhoneNumber = phoneNumber
	}
	f.enqueued = append(f.enqueued, models.EscrowSubmission{
		TransactionID: txn.ID,
		Amount:        txn.Amount,
		TxRef:         mpesaCode,
		Status:        models.SubmissionStatusPending,
	})
	copied := *txn
	return &copied, true, nil
}

func (f *fakeTransactionStore) Fail(_ context.Context, merchantRequestID string, reason models.TransactionFailureReason) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return false, f.failErr
	}
	txn, ok := f.txns[merchantRequestID]
	if !ok || txn.Status != models.TransactionStatusProcessing {
		return false, nil
	}
	txn.Status = models.TransactionStatusFailed
	txn.FailureReason = reason
	return true, nil
}

func (f *fakeTransactionStore) List(_ context.Context, status string, limit, offset int) ([]models.Transaction, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var txns []models.Transaction
	for _, txn := range f.txns {
		if status == "" || string(txn.Status) == status {
			txns = append(txns, *txn)
		}
	}
	return txns, int64(len(txns)), nil
}

func (f *fakeTransactionStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.txns)
}

type fakePusher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakePusher) STKPush(_ context.Context, phone string, amount float64) (*services.StkPushResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &services.StkPushResponse{
		MerchantRequestID:   "29115-34620561-1",
		CheckoutRequestID:   "ws_CO_191220191020363925",
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}

func newTestApp(store handlers.TransactionStore, pusher handlers.StkPusher) *fiber.App {
	app := fiber.New()
	h := handlers.NewMpesaHandler(store, pusher)
	app.Post("/payments/stk/init", middleware.ValidateStkInit(), h.CreateStkPush)
	app.Post("/payments/stk/callback", h.StkCallback)
	app.Get("/payments/transactions", h.ListTransactions)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func successCallbackBody(merchantRequestID string, withPhone bool) string {
	items := `{"Name": "Amount", "Value": 150},
		{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
		{"Name": "TransactionDate", "Value": 20191219102115}`
	if withPhone {
		items += `, {"Name": "PhoneNumber", "Value": 254712345678}`
	}
	return fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": %q,
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {"Item": [%s]}
			}
		}
	}`, merchantRequestID, items)
}

func failureCallbackBody(merchantRequestID string) string {
	return fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": %q,
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`, merchantRequestID)
}

func seedProcessing(t *testing.T, store *fakeTransactionStore, merchantRequestID string, amount float64) {
	t.Helper()
	err := store.Create(context.Background(), &models.Transaction{
		Amount: amount,
		MpesaMetadata: models.MpesaMetadata{
			MerchantRequestID: merchantRequestID,
			CheckoutRequestID: "ws_CO_191220191020363925",
			PhoneNumber:       "+254712345678",
		},
	})
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
}

func TestCreateStkPushSuccess(t *testing.T) {
	store := newFakeTransactionStore()
	pusher := &fakePusher{}
	app := newTestApp(store, pusher)

	resp := postJSON(t, app, "/payments/stk/init", `{"phoneNumber": "+254712345678", "amount": 150}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var envelope struct {
		Status string             `json:"status"`
		Data   models.Transaction `json:"data"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Status != "success" {
		t.Errorf("status = %q, want success", envelope.Status)
	}
	if envelope.Data.Status != models.TransactionStatusProcessing {
		t.Errorf("transaction status = %q, want processing", envelope.Data.Status)
	}
	if envelope.Data.Amount != 150 {
		t.Errorf("transaction amount = %v, want 150", envelope.Data.Amount)
	}

	if pusher.calls != 1 {
		t.Errorf("gateway called %d times, want 1", pusher.calls)
	}
	if store.count() != 1 {
		t.Errorf("%d transactions stored, want 1", store.count())
	}
}

func TestCreateStkPushInvalidPhone(t *testing.T) {
	store := newFakeTransactionStore()
	pusher := &fakePusher{}
	app := newTestApp(store, pusher)

	for _, phone := range []string{"0712345678", "abc", ""} {
		resp := postJSON(t, app, "/payments/stk/init",
			fmt.Sprintf(`{"phoneNumber": %q, "amount": 150}`, phone))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("phone %q: status = %d, want 400", phone, resp.StatusCode)
		}
	}

	if pusher.calls != 0 {
		t.Errorf("gateway called %d times, want 0", pusher.calls)
	}
	if store.count() != 0 {
		t.Errorf("%d transactions stored, want 0", store.count())
	}
}

func TestCreateStkPushInvalidAmount(t *testing.T) {
	store := newFakeTransactionStore()
	pusher := &fakePusher{}
	app := newTestApp(store, pusher)

	for _, amount := range []string{"0", "-20"} {
		resp := postJSON(t, app, "/payments/stk/init",
			fmt.Sprintf(`{"phoneNumber": "+254712345678", "amount": %s}`, amount))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("amount %s: status = %d, want 400", amount, resp.StatusCode)
		}
	}

	if store.count() != 0 {
		t.Errorf("%d transactions stored, want 0", store.count())
	}
}

func TestCreateStkPushGatewayError(t *testing.T) {
	store := newFakeTransactionStore()
	pusher := &fakePusher{err: errors.New("daraja unavailable")}
	app := newTestApp(store, pusher)

	resp := postJSON(t, app, "/payments/stk/init", `{"phoneNumber": "+254712345678", "amount": 150}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if store.count() != 0 {
		t.Errorf("%d transactions stored after gateway failure, want 0", store.count())
	}
}

func TestStkCallbackSuccess(t *testing.T) {
	store := newFakeTransactionStore()
	app := newTestApp(store, &fakePusher{})
	seedProcessing(t, store, "29115-34620561-1", 150)

	resp := postJSON(t, app, "/payments/stk/callback", successCallbackBody("29115-34620561-1", true))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	txn, _ := store.FindByMerchantRequestID(context.Background(), "29115-34620561-1")
	if txn.Status != models.TransactionStatusCompleted {
		t.Errorf("transaction status = %q, want completed", txn.Status)
	}
	if txn.MpesaCode != "NLJ7RT61SV" {
		t.Errorf("mpesa code = %q, want NLJ7RT61SV", txn.MpesaCode)
	}
	if txn.MpesaMetadata.PhoneNumber != "254712345678" {
		t.Errorf("phone number = %q, want 254712345678", txn.MpesaMetadata.PhoneNumber)
	}

	if len(store.enqueued) != 1 {
		t.Fatalf("%d escrow submissions enqueued, want 1", len(store.enqueued))
	}
	if store.enqueued[0].Amount != 150 || store.enqueued[0].TxRef != "NLJ7RT61SV" {
		t.Errorf("enqueued submission = %+v", store.enqueued[0])
	}
}

func TestStkCallbackDuplicateDelivery(t *testing.T) {
	store := newFakeTransactionStore()
	app := newTestApp(store, &fakePusher{})
	seedProcessing(t, store, "29115-34620561-1", 150)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, app, "/payments/stk/callback", successCallbackBody("29115-34620561-1", true))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delivery %d: status = %d, want 200", i, resp.StatusCode)
		}
	}

	txn, _ := store.FindByMerchantRequestID(context.Background(), "29115-34620561-1")
	if txn.Status != models.TransactionStatusCompleted {
		t.Errorf("transaction status = %q, want completed", txn.Status)
	}
	if len(store.enqueued) != 1 {
		t.Fatalf("%d escrow submissions enqueued after duplicates, want exactly 1", len(store.enqueued))
	}
}

func TestStkCallbackFailureResult(t *testing.T) {
	store := newFakeTransactionStore()
	app := newTestApp(store, &fakePusher{})
	seedProcessing(t, store, "29115-34620561-1", 150)

	resp := postJSON(t, app, "/payments/stk/callback", failureCallbackBody("29115-34620561-1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	txn, _ := store.FindByMerchantRequestID(context.Background(), "29115-34620561-1")
	if txn.Status != models.TransactionStatusFailed {
		t.Errorf("transaction status = %q, want failed", txn.Status)
	}
	if txn.FailureReason != models.FailureReasonMpesaCancelledOrFailed {
		t.Errorf("failure reason = %q", txn.FailureReason)
	}
	if len(store.enqueued) != 0 {
		t.Errorf("%d escrow submissions enqueued for failed payment, want 0", len(store.enqueued))
	}
}

func TestStkCallbackUnknownMerchantRequestID(t *testing.T) {
	store := newFakeTransactionStore()
	app := newTestApp(store, &fakePusher{})

	resp := postJSON(t, app, "/payments/stk/callback", successCallbackBody("unknown-id", true))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if store.count() != 0 {
		t.Errorf("%d transactions stored, want 0", store.count())
	}
	if len(store.enqueued) != 0 {
		t.Errorf("%d escrow submissions enqueued, want 0", len(store.enqueued))
	}
}

func TestStkCallbackMissingPhoneNumberItem(t *testing.T) {
	store := newFakeTransactionStore()
	app := newTestApp(store, &fakePusher{})
	seedProcessing(t, store, "29115-34620561-1", 150)

	resp := postJSON(t, app, "/payments/stk/callback", successCallbackBody("29115-34620561-1", false))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	txn, _ := store.FindByMerchantRequestID(context.Background(), "29115-34620561-1")
	if txn.Status != models.TransactionStatusCompleted {
		t.Errorf("transaction status = %q, want completed", txn.Status)
	}
	// The phone number recorded at initiation time is preserved.
	if txn.MpesaMetadata.PhoneNumber != "+254712345678" {
		t.Errorf("phone number = %q, want the one from initiation", txn.MpesaMetadata.PhoneNumber)
	}
	if len(store.enqueued) != 1 {
		t.Errorf("%d escrow submissions enqueued, want 1", len(store.enqueued))
	}
}

func TestStkCallbackMalformedBodyStillAcknowledges(t *testing.T) {
	store := newFakeTransactionStore()
	app := newTestApp(store, &fakePusher{})

	for _, body := range []string{"not json at all", "{}", `{"Body": {}}`} {
		resp := postJSON(t, app, "/payments/stk/callback", body)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("body %q: status = %d, want 200", body, resp.StatusCode)
		}
	}
}

func TestStkCallbackInternalErrorStillAcknowledges(t *testing.T) {
	store := newFakeTransactionStore()
	store.failErr = errors.New("database down")
	app := newTestApp(store, &fakePusher{})
	seedProcessing(t, store, "29115-34620561-1", 150)

	resp := postJSON(t, app, "/payments/stk/callback", failureCallbackBody("29115-34620561-1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 even on internal error", resp.StatusCode)
	}
}
