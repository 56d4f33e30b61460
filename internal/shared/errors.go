// Package shared holds cross-cutting primitives: the error taxonomy and
// the audit trail used by every posting path.
package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine's taxonomy. Domain packages wrap these
// with the specific account, field, or invariant so callers can both match
// with errors.Is and surface the concrete reason.
var (
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrUnbalancedEntry indicates the double-entry invariant was violated.
	ErrUnbalancedEntry = errors.New("journal entry debits do not equal credits")
	// ErrInactiveAccount indicates a posting referenced a deactivated account.
	ErrInactiveAccount = errors.New("account is inactive")
	// ErrAlreadyFiled guards the one-shot VAT return filing transition.
	ErrAlreadyFiled = errors.New("vat return already filed")
	// ErrAlreadyProcessed guards the one-shot payroll processing transition.
	ErrAlreadyProcessed = errors.New("payroll run already processed")
	// ErrConflict indicates a concurrent state transition lost the race.
	ErrConflict = errors.New("conflicting concurrent update")
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
)

// Invalidf wraps ErrValidation with a formatted reason.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}
