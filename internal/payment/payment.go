// Package payment adapts the Snap-style payment gateway to the order
// lifecycle: it opens payment sessions, maps notifications onto status
// transitions and answers status polls.
package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"tokopos/backend/internal/domain"
)

// ErrGateway wraps transport, protocol and breaker failures talking to the
// gateway.
var ErrGateway = errors.New("payment gateway error")

// Notification is the subset of the gateway's HTTP notification we act on.
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// MapStatus translates a gateway transaction status into a payment status.
// Unknown statuses map to PENDING, which never changes an order.
func MapStatus(transactionStatus string, fraudStatus string) domain.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(transactionStatus)) {
	case "capture":
		if strings.EqualFold(strings.TrimSpace(fraudStatus), "accept") {
			return domain.StatusPaid
		}
		return domain.StatusFailed
	case "settlement":
		return domain.StatusPaid
	case "pending":
		return domain.StatusPending
	case "deny", "cancel":
		return domain.StatusFailed
	case "expire":
		return domain.StatusExpired
	default:
		return domain.StatusPending
	}
}

// Signature computes sha512(order_id + status_code + gross_amount + server_key).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature reports whether n carries the signature for serverKey.
func (n Notification) VerifySignature(serverKey string) bool {
	if n.SignatureKey == "" {
		return false
	}
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(n.SignatureKey)), []byte(want)) == 1
}
