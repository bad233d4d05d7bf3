package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
)

func TestFormatAndParseAmount(t *testing.T) {
	if got := FormatAmount(50000); got != "500.00" {
		t.Fatalf("expected 500.00, got %s", got)
	}
	if got := FormatAmount(5); got != "0.05" {
		t.Fatalf("expected 0.05, got %s", got)
	}
	cases := map[string]int64{"500.00": 50000, "500": 50000, "12.5": 1250, "0.05": 5}
	for in, want := range cases {
		got, errParse := ParseAmount(in)
		if errParse != nil || got != want {
			t.Fatalf("parse %q: expected %d, got %d err=%v", in, want, got, errParse)
		}
	}
	for _, bad := range []string{"", "1.234", "abc", "1."} {
		if _, errParse := ParseAmount(bad); errParse == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func newYooKassa(t *testing.T, url string) *YooKassa {
	t.Helper()
	gw, errNew := NewYooKassa(config.PaymentConfig{YooKassa: config.YooKassaConfig{ShopID: "shop", SecretKey: "secret", BaseURL: url}}, nil)
	if errNew != nil {
		t.Fatalf("new yookassa: %v", errNew)
	}
	return gw
}

func TestYooKassaCreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/payments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "shop" || pass != "secret" {
			t.Errorf("expected basic auth shop:secret, got %s:%s", user, pass)
		}
		if r.Header.Get("Idempotence-Key") != "key-1" {
			t.Errorf("expected idempotence key, got %q", r.Header.Get("Idempotence-Key"))
		}
		var body yooCreateRequest
		if errDecode := json.NewDecoder(r.Body).Decode(&body); errDecode != nil {
			t.Errorf("decode body: %v", errDecode)
		}
		if body.Amount.Value != "500.00" || body.Amount.Currency != "RUB" || !body.Capture || body.Confirmation.Type != "redirect" {
			t.Errorf("unexpected body %+v", body)
		}
		if body.Metadata["purchase_id"] != "7" {
			t.Errorf("expected metadata purchase_id=7, got %v", body.Metadata)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"pay-1","status":"pending","amount":{"value":"500.00","currency":"RUB"},"confirmation":{"type":"redirect","confirmation_url":"https://pay.example/1"}}`)
	}))
	defer srv.Close()

	handle, errCreate := newYooKassa(t, srv.URL).CreatePayment(context.Background(), PaymentRequest{
		Amount:         50000,
		Currency:       "rub",
		Description:    "Openings",
		ReturnURL:      "https://t.me/bot",
		Metadata:       map[string]string{"purchase_id": "7"},
		IdempotenceKey: "key-1",
	})
	if errCreate != nil {
		t.Fatalf("create payment: %v", errCreate)
	}
	if handle.PaymentID != "pay-1" || handle.ConfirmationURL != "https://pay.example/1" || handle.Status != StatusPending {
		t.Fatalf("unexpected handle %+v", handle)
	}
}

func TestYooKassaClassifiesErrors(t *testing.T) {
	var status atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = io.WriteString(w, `{"type":"error"}`)
	}))
	defer srv.Close()
	gw := newYooKassa(t, srv.URL)

	status.Store(http.StatusServiceUnavailable)
	if _, errGet := gw.GetPayment(context.Background(), "pay-1"); apperr.KindOf(errGet) != apperr.KindTransient {
		t.Fatalf("expected transient for 503, got %v", errGet)
	}
	status.Store(http.StatusNotFound)
	if _, errGet := gw.GetPayment(context.Background(), "pay-1"); apperr.KindOf(errGet) != apperr.KindNotFound {
		t.Fatalf("expected not found for 404, got %v", errGet)
	}
	status.Store(http.StatusUnauthorized)
	if _, errGet := gw.GetPayment(context.Background(), "pay-1"); apperr.KindOf(errGet) != apperr.KindConfiguration {
		t.Fatalf("expected configuration error for 401, got %v", errGet)
	}
}

func TestYooKassaGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/payments/pay-9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"id":"pay-9","status":"succeeded","paid":true,"amount":{"value":"500.00","currency":"RUB"},"metadata":{"purchase_id":"3"}}`)
	}))
	defer srv.Close()

	status, errGet := newYooKassa(t, srv.URL).GetPayment(context.Background(), "pay-9")
	if errGet != nil {
		t.Fatalf("get payment: %v", errGet)
	}
	if status.Status != StatusSucceeded || status.Amount != 50000 || status.Currency != "RUB" || status.Metadata["purchase_id"] != "3" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestNewYooKassaRequiresCredentials(t *testing.T) {
	if _, errNew := NewYooKassa(config.PaymentConfig{}, nil); apperr.KindOf(errNew) != apperr.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", errNew)
	}
}

func TestParseNotification(t *testing.T) {
	body := `{"type":"notification","event":"payment.succeeded","object":{"id":"pay-1","status":"succeeded","amount":{"value":"500.00","currency":"rub"},"metadata":{"purchase_id":"1"}}}`
	conf, errParse := ParseNotification([]byte(body))
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if conf.PaymentID != "pay-1" || conf.Amount != 50000 || conf.Currency != "RUB" || !conf.Succeeded() {
		t.Fatalf("unexpected confirmation %+v", conf)
	}

	canceled := strings.Replace(body, "payment.succeeded", "payment.canceled", 1)
	conf, errParse = ParseNotification([]byte(canceled))
	if errParse != nil || !conf.Canceled() {
		t.Fatalf("expected canceled confirmation, got %+v err=%v", conf, errParse)
	}

	for _, bad := range []string{`not json`, `{"type":"notification","event":"refund.succeeded","object":{"id":"r1","amount":{"value":"1.00","currency":"RUB"}}}`, `{"type":"notification","event":"payment.succeeded","object":{"id":""}}`} {
		if _, errParse := ParseNotification([]byte(bad)); apperr.KindOf(errParse) != apperr.KindValidation {
			t.Fatalf("expected validation error for %s, got %v", bad, errParse)
		}
	}
}

func TestTelegramInvoicesIssueUniqueIDs(t *testing.T) {
	gw, errNew := NewTelegramInvoices(1)
	if errNew != nil {
		t.Fatalf("new telegram invoices: %v", errNew)
	}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		handle, errCreate := gw.CreatePayment(context.Background(), PaymentRequest{Amount: 100, Currency: "RUB"})
		if errCreate != nil {
			t.Fatalf("create: %v", errCreate)
		}
		if !IsTelegramPaymentID(handle.PaymentID) || seen[handle.PaymentID] {
			t.Fatalf("unexpected payment id %q", handle.PaymentID)
		}
		seen[handle.PaymentID] = true
	}
	if _, errGet := gw.GetPayment(context.Background(), "tg_1"); errGet != ErrLookupUnsupported {
		t.Fatalf("expected lookup unsupported, got %v", errGet)
	}
}
