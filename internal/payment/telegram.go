package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// TelegramPaymentPrefix marks payment ids issued for in-chat invoices.
const TelegramPaymentPrefix = "tg_"

// TelegramInvoices issues payment ids for Telegram in-chat invoices.
// The bot sends the invoice; the SuccessfulPayment update confirms it.
type TelegramInvoices struct {
	node *snowflake.Node
}

// NewTelegramInvoices builds the gateway with the given snowflake node id.
func NewTelegramInvoices(nodeID int64) (*TelegramInvoices, error) {
	node, errNode := snowflake.NewNode(nodeID)
	if errNode != nil {
		return nil, fmt.Errorf("payment: snowflake node: %w", errNode)
	}
	return &TelegramInvoices{node: node}, nil
}

// Name returns the provider name.
func (t *TelegramInvoices) Name() string { return ProviderTelegram }

// CreatePayment allocates an invoice payload. No remote call is made.
func (t *TelegramInvoices) CreatePayment(_ context.Context, req PaymentRequest) (PaymentHandle, error) {
	id := TelegramPaymentPrefix + t.node.Generate().String()
	raw, errMarshal := json.Marshal(map[string]any{
		"invoice_payload": id,
		"amount":          req.Amount,
		"currency":        strings.ToUpper(req.Currency),
		"metadata":        req.Metadata,
	})
	if errMarshal != nil {
		return PaymentHandle{}, errMarshal
	}
	return PaymentHandle{PaymentID: id, Status: StatusPending, Raw: raw}, nil
}

// GetPayment is not available for in-chat invoices.
func (t *TelegramInvoices) GetPayment(context.Context, string) (PaymentStatus, error) {
	return PaymentStatus{}, ErrLookupUnsupported
}

// IsTelegramPaymentID reports whether id was issued by TelegramInvoices.
func IsTelegramPaymentID(id string) bool {
	return strings.HasPrefix(id, TelegramPaymentPrefix)
}
