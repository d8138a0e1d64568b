package domain

import (
	"fmt"
	"time"
)

const ReferencePrefix = "TRX"

// NewReferenceCode formats the human-facing receipt number TRX-YYYYMMDD-NNN.
// The counter wraps into 0..999; uniqueness is enforced by storage.
func NewReferenceCode(now time.Time, n int) string {
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf("%s-%s-%03d", ReferencePrefix, now.Format("20060102"), n%1000)
}
