// Package payment contains the payment gateway clients.
package payment

import (
	"context"
	"encoding/json"
	"errors"
)

// Provider names.
const (
	ProviderYooKassa = "yookassa"
	ProviderTelegram = "telegram"
)

// Gateway payment statuses.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// ErrLookupUnsupported is returned by gateways without a remote payment lookup.
var ErrLookupUnsupported = errors.New("payment: gateway does not support payment lookup")

// Gateway creates and looks up payments at a payment provider.
type Gateway interface {
	// Name returns the provider name stored on purchases.
	Name() string
	// CreatePayment registers a payment and returns its handle.
	CreatePayment(ctx context.Context, req PaymentRequest) (PaymentHandle, error)
	// GetPayment fetches the current state of a payment.
	GetPayment(ctx context.Context, paymentID string) (PaymentStatus, error)
}

// PaymentRequest describes a payment to create.
type PaymentRequest struct {
	Amount         int64             // Minor currency units.
	Currency       string            // ISO currency code.
	Description    string            // Shown to the payer.
	ReturnURL      string            // Where the payer returns after paying.
	Metadata       map[string]string // Echoed back in notifications.
	IdempotenceKey string            // Stable across retries of the same request.
}

// PaymentHandle is the gateway's answer to CreatePayment.
type PaymentHandle struct {
	PaymentID       string
	Status          string
	ConfirmationURL string          // Redirect URL, empty for in-chat invoices.
	Raw             json.RawMessage // Gateway response snapshot.
}

// PaymentStatus is the gateway's view of an existing payment.
type PaymentStatus struct {
	PaymentID string
	Status    string
	Amount    int64
	Currency  string
	Metadata  map[string]string
}

// Confirmation is a payment outcome reported by a gateway.
type Confirmation struct {
	PaymentID string
	Amount    int64
	Currency  string
	Status    string
	Metadata  map[string]string
}

// Succeeded reports whether the confirmation is a successful payment.
func (c Confirmation) Succeeded() bool { return c.Status == StatusSucceeded }

// Canceled reports whether the payment was canceled at the gateway.
func (c Confirmation) Canceled() bool { return c.Status == StatusCanceled }
