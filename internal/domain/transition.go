package domain

import "fmt"

type StockEffect int

const (
	StockUnchanged StockEffect = iota
	StockDecrement
	StockRestore
)

func (e StockEffect) String() string {
	switch e {
	case StockDecrement:
		return "decrement"
	case StockRestore:
		return "restore"
	default:
		return "none"
	}
}

// Transition is a planned status change and the inventory effect that must
// be applied in the same unit of work.
type Transition struct {
	From   PaymentStatus
	To     PaymentStatus
	Effect StockEffect
}

func (t Transition) Changed() bool { return t.From != t.To }

// PlanTransition derives the stock effect from the (current, next) pair.
// Requesting the current status is a no-op, which is what makes repeated
// webhooks and retries harmless.
func PlanTransition(current, next PaymentStatus) (Transition, error) {
	if !current.Valid() || !next.Valid() {
		return Transition{}, fmt.Errorf("%w: unknown status %q -> %q", ErrValidation, current, next)
	}

	t := Transition{From: current, To: next}
	if current == next {
		return t, nil
	}

	switch current {
	case StatusPending:
		switch next {
		case StatusPaid:
			t.Effect = StockDecrement
			return t, nil
		case StatusFailed, StatusExpired:
			return t, nil
		}
	case StatusPaid:
		switch next {
		case StatusFailed, StatusExpired:
			t.Effect = StockRestore
			return t, nil
		}
	}

	return Transition{}, fmt.Errorf("%w: cannot move %s order to %s", ErrInvalidState, current, next)
}
