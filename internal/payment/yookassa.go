package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
)

// DefaultYooKassaBaseURL is the production API endpoint.
const DefaultYooKassaBaseURL = "https://api.yookassa.ru"

// defaultRequestTimeout bounds one gateway call when none is configured.
const defaultRequestTimeout = 10 * time.Second

// maxResponseBytes caps how much of a gateway response is read.
const maxResponseBytes = 1 << 20

// YooKassa is a client for the YooKassa payments API.
type YooKassa struct {
	baseURL   string
	shopID    string
	secretKey string
	timeout   time.Duration
	client    *http.Client
}

// NewYooKassa builds a client from configuration.
func NewYooKassa(cfg config.PaymentConfig, client *http.Client) (*YooKassa, error) {
	shopID := strings.TrimSpace(cfg.YooKassa.ShopID)
	secret := strings.TrimSpace(cfg.YooKassa.SecretKey)
	if shopID == "" || secret == "" {
		return nil, apperr.Configuration(apperr.CodeInvalidInput, "yookassa shop id and secret key are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.YooKassa.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultYooKassaBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	return &YooKassa{baseURL: baseURL, shopID: shopID, secretKey: secret, timeout: timeout, client: client}, nil
}

// Name returns the provider name.
func (y *YooKassa) Name() string { return ProviderYooKassa }

type yooAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yooConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type yooCreateRequest struct {
	Amount       yooAmount         `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation yooConfirmation   `json:"confirmation"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type yooPayment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       yooAmount         `json:"amount"`
	Confirmation *yooConfirmation  `json:"confirmation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// CreatePayment registers a redirect payment with automatic capture.
func (y *YooKassa) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentHandle, error) {
	if req.Amount <= 0 {
		return PaymentHandle{}, apperr.Validation(apperr.CodeInvalidInput, "payment amount must be positive")
	}
	body := yooCreateRequest{
		Amount:       yooAmount{Value: FormatAmount(req.Amount), Currency: strings.ToUpper(req.Currency)},
		Capture:      true,
		Confirmation: yooConfirmation{Type: "redirect", ReturnURL: req.ReturnURL},
		Description:  truncate(req.Description, 128),
		Metadata:     req.Metadata,
	}
	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return PaymentHandle{}, fmt.Errorf("payment: encode yookassa request: %w", errMarshal)
	}

	raw, errDo := y.do(ctx, http.MethodPost, "/v3/payments", payload, req.IdempotenceKey)
	if errDo != nil {
		return PaymentHandle{}, errDo
	}
	var created yooPayment
	if errDecode := json.Unmarshal(raw, &created); errDecode != nil {
		return PaymentHandle{}, fmt.Errorf("payment: decode yookassa payment: %w", errDecode)
	}
	if created.ID == "" {
		return PaymentHandle{}, errors.New("payment: yookassa returned no payment id")
	}
	handle := PaymentHandle{PaymentID: created.ID, Status: created.Status, Raw: raw}
	if created.Confirmation != nil {
		handle.ConfirmationURL = created.Confirmation.ConfirmationURL
	}
	return handle, nil
}

// GetPayment fetches a payment by id.
func (y *YooKassa) GetPayment(ctx context.Context, paymentID string) (PaymentStatus, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return PaymentStatus{}, apperr.Validation(apperr.CodeInvalidInput, "payment id is required")
	}
	raw, errDo := y.do(ctx, http.MethodGet, "/v3/payments/"+paymentID, nil, "")
	if errDo != nil {
		return PaymentStatus{}, errDo
	}
	var p yooPayment
	if errDecode := json.Unmarshal(raw, &p); errDecode != nil {
		return PaymentStatus{}, fmt.Errorf("payment: decode yookassa payment: %w", errDecode)
	}
	amount, errAmount := ParseAmount(p.Amount.Value)
	if errAmount != nil {
		return PaymentStatus{}, errAmount
	}
	return PaymentStatus{
		PaymentID: p.ID,
		Status:    p.Status,
		Amount:    amount,
		Currency:  strings.ToUpper(p.Amount.Currency),
		Metadata:  p.Metadata,
	}, nil
}

func (y *YooKassa) do(ctx context.Context, method, path string, body []byte, idempotenceKey string) (raw []byte, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, errReq := http.NewRequestWithContext(reqCtx, method, y.baseURL+path, reader)
	if errReq != nil {
		return nil, fmt.Errorf("payment: build yookassa request: %w", errReq)
	}
	req.SetBasicAuth(y.shopID, y.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotenceKey != "" {
		req.Header.Set("Idempotence-Key", idempotenceKey)
	}

	resp, errDo := y.client.Do(req)
	if errDo != nil {
		if errors.Is(errDo, context.Canceled) && ctx.Err() != nil {
			return nil, errDo
		}
		return nil, apperr.Transient(fmt.Errorf("payment: yookassa %s %s: %w", method, path, errDo))
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil && err == nil {
			err = fmt.Errorf("payment: close yookassa response: %w", errClose)
		}
	}()

	raw, errRead := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if errRead != nil {
		return nil, apperr.Transient(fmt.Errorf("payment: read yookassa response: %w", errRead))
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.NotFound(apperr.CodeNotFound, "payment not found at gateway")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, apperr.Transient(fmt.Errorf("payment: yookassa returned status %d", resp.StatusCode))
	default:
		return nil, apperr.Wrap(apperr.KindConfiguration, apperr.CodeInvalidInput, "payment gateway rejected the request",
			fmt.Errorf("yookassa returned status %d: %s", resp.StatusCode, truncate(string(raw), 256)))
	}
}

// Notification is a YooKassa webhook body.
type Notification struct {
	Type   string     `json:"type"`
	Event  string     `json:"event"`
	Object yooPayment `json:"object"`
}

// ParseNotification decodes a YooKassa webhook body into a confirmation.
func ParseNotification(body []byte) (Confirmation, error) {
	var n Notification
	if errDecode := json.Unmarshal(body, &n); errDecode != nil {
		return Confirmation{}, apperr.Validation(apperr.CodeInvalidFormat, "invalid notification body")
	}
	if n.Type != "notification" || n.Object.ID == "" {
		return Confirmation{}, apperr.Validation(apperr.CodeInvalidFormat, "unsupported notification")
	}
	amount, errAmount := ParseAmount(n.Object.Amount.Value)
	if errAmount != nil {
		return Confirmation{}, apperr.Validation(apperr.CodeInvalidFormat, "invalid notification amount")
	}
	status, ok := strings.CutPrefix(n.Event, "payment.")
	if !ok || status == "" {
		return Confirmation{}, apperr.Validation(apperr.CodeInvalidFormat, "unsupported notification event")
	}
	return Confirmation{
		PaymentID: n.Object.ID,
		Amount:    amount,
		Currency:  strings.ToUpper(n.Object.Amount.Currency),
		Status:    status,
		Metadata:  n.Object.Metadata,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
