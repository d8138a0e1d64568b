package domain

import (
	"fmt"
	"strings"
)

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "CASH"
	PaymentGateway PaymentMethod = "GATEWAY"
)

// ParsePaymentMethod accepts the canonical names plus the register labels
// the front end still sends (tunai, non_tunai, qris).
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CASH", "TUNAI":
		return PaymentCash, nil
	case "GATEWAY", "NON_TUNAI", "QRIS":
		return PaymentGateway, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrValidation, raw)
}

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentGateway
}

func (m PaymentMethod) String() string { return string(m) }

type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	StatusPaid    PaymentStatus = "PAID"
	StatusFailed  PaymentStatus = "FAILED"
	StatusExpired PaymentStatus = "EXPIRED"
)

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown payment status %q", ErrValidation, raw)
	}
	return status, nil
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusExpired
}

func (s PaymentStatus) String() string { return string(s) }

type LedgerEntryType string

const (
	LedgerIncome  LedgerEntryType = "INCOME"
	LedgerExpense LedgerEntryType = "EXPENSE"
)

func ParseLedgerEntryType(raw string) (LedgerEntryType, error) {
	switch t := LedgerEntryType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case LedgerIncome, LedgerExpense:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown ledger entry type %q", ErrValidation, raw)
}

type LedgerSource string

const (
	SourceManual        LedgerSource = "MANUAL"
	SourceStockPurchase LedgerSource = "STOCK_PURCHASE"
)

type Role string

const (
	RoleCashier Role = "cashier"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleCashier, RoleManager, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, raw)
}
