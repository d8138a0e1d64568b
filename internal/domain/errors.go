package domain

import "errors"

var (
	ErrValidation           = errors.New("validation failed")
	ErrInvalidState         = errors.New("invalid order state")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrApprovalRequired     = errors.New("manager approval required")
	ErrForbidden            = errors.New("forbidden")
)
