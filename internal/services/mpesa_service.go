package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	mpesaSandboxBaseURL = "https://sandbox.safaricom.co.ke"
	mpesaLiveBaseURL    = "https://api.safaricom.co.ke"
)

// StkPushResponse carries the correlation identifiers Daraja returns when
// an STK push request is accepted.
type StkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// MpesaConfig holds Daraja credentials and callback settings.
type MpesaConfig struct {
	Env            string // "sandbox" or "live"
	ShortCode      string
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	CallbackURL    string
	BaseURL        string // overrides Env resolution when set, used in tests
}

// MpesaService talks to the Daraja API. OAuth tokens are cached on the
// instance until shortly before expiry.
type MpesaService struct {
	cfg        MpesaConfig
	baseURL    string
	httpClient *http.Client

	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// NewMpesaService constructs a Daraja client for the configured environment.
func NewMpesaService(cfg MpesaConfig) *MpesaService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Env == "live" {
			baseURL = mpesaLiveBaseURL
		} else {
			baseURL = mpesaSandboxBaseURL
		}
	}

	return &MpesaService{
		cfg:        cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type mpesaAuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (s *MpesaService) getToken(ctx context.Context) (string, error) {
	s.tokenMu.RLock()
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		t := s.token
		s.tokenMu.RUnlock()
		return t, nil
	}
	s.tokenMu.RUnlock()

	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	// Double-check after acquiring the write lock.
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("mpesa auth request build: %w", err)
	}
	req.SetBasicAuth(s.cfg.ConsumerKey, s.cfg.ConsumerSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mpesa auth request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("mpesa auth failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var authResp mpesaAuthResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		return "", fmt.Errorf("mpesa auth unmarshal: %w", err)
	}
	if authResp.AccessToken == "" {
		return "", fmt.Errorf("mpesa auth: empty access token")
	}

	// Daraja reports expires_in as a string of seconds.
	ttl := 3599
	if parsed, err := strconv.Atoi(authResp.ExpiresIn); err == nil && parsed > 0 {
		ttl = parsed
	}

	s.token = authResp.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(ttl)*time.Second - 30*time.Second)

	return s.token, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int    `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPush asks Daraja to prompt the payer's phone for the given amount.
// The returned identifiers are the only handle the asynchronous callback
// will carry, so callers must persist them before acknowledging.
func (s *MpesaService) STKPush(ctx context.Context, phone string, amount float64) (*StkPushResponse, error) {
	token, err := s.getToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(s.cfg.ShortCode + s.cfg.Passkey + timestamp))

	msisdn := strings.TrimPrefix(phone, "+")

	payload, err := json.Marshal(stkPushRequest{
		BusinessShortCode: s.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            int(math.Round(amount)),
		PartyA:            msisdn,
		PartyB:            s.cfg.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       s.cfg.CallbackURL,
		AccountReference:  "PesaBridge",
		TransactionDesc:   "Country token mint deposit",
	})
	if err != nil {
		return nil, fmt.Errorf("mpesa stk push marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("mpesa stk push request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mpesa stk push request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mpesa stk push failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var pushResp StkPushResponse
	if err := json.Unmarshal(body, &pushResp); err != nil {
		return nil, fmt.Errorf("mpesa stk push unmarshal: %w", err)
	}

	if pushResp.ResponseCode != "0" {
		return nil, fmt.Errorf("mpesa stk push rejected: code %s: %s",
			pushResp.ResponseCode, pushResp.ResponseDescription)
	}
	if pushResp.MerchantRequestID == "" {
		return nil, fmt.Errorf("mpesa stk push: empty MerchantRequestID")
	}

	return &pushResp, nil
}
