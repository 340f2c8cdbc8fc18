package escrow

import "errors"

// Error taxonomy for the property escrow engine. Every violation aborts the
// call; callers can classify failures with errors.Is.
var (
	// ErrUnauthorizedCaller is returned when the caller lacks the role the
	// attempted operation requires.
	ErrUnauthorizedCaller = errors.New("escrow: unauthorized caller")
	// ErrInvalidState is returned when the property status is outside the
	// set the operation accepts.
	ErrInvalidState = errors.New("escrow: invalid property state")
	// ErrListingExpired is returned for purchase or bid attempts after the
	// listing expiry has passed.
	ErrListingExpired = errors.New("escrow: listing expired")
	// ErrInspectionPeriodExpired is returned when an inspection update
	// arrives after the inspection window closed.
	ErrInspectionPeriodExpired = errors.New("escrow: inspection period expired")
	// ErrFinancingPeriodExpired is returned when lender funding arrives
	// after the financing window closed.
	ErrFinancingPeriodExpired = errors.New("escrow: financing period expired")
	// ErrTransferNotAllowed is returned when the buyer is not allowlisted.
	ErrTransferNotAllowed = errors.New("escrow: transfer not allowed")
	// ErrMissingCredential is returned when the buyer has no credential
	// hash on record.
	ErrMissingCredential = errors.New("escrow: missing credential")
	// ErrLockupActive is returned while the property's unlock timestamp is
	// still in the future.
	ErrLockupActive = errors.New("escrow: lockup active")
	// ErrIncorrectValue is returned when the attached value does not match
	// the exact or minimum amount the operation requires.
	ErrIncorrectValue = errors.New("escrow: incorrect value")
	// ErrInvalidConfiguration is returned for malformed listings or admin
	// parameters (fee out of bounds, escrow above price, bad conditions).
	ErrInvalidConfiguration = errors.New("escrow: invalid configuration")
	// ErrReentrantCall is returned when a value-moving operation is invoked
	// while another one is still executing on the same engine.
	ErrReentrantCall = errors.New("escrow: reentrant call")
	// ErrPropertyNotFound is returned when no sale record exists for the id.
	ErrPropertyNotFound = errors.New("escrow: property not found")
	// ErrBidNotFound is returned when the caller has no active bid.
	ErrBidNotFound = errors.New("escrow: bid not found")
)
