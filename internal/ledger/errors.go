package ledger

import "errors"

// Errors returned by ledger operations. A call that fails with one of these
// has not changed any state.
var (
	ErrProductNotFound           = errors.New("product not found")
	ErrNotAuthorizedManufacturer = errors.New("caller is not an authorized manufacturer")
	ErrNotCurrentHolder          = errors.New("caller is not the current holder")
	ErrOnlyOwner                 = errors.New("only the ledger owner can perform this action")

	// ErrProductAlreadyExists is reserved. Registration does not check for
	// duplicate batch numbers.
	ErrProductAlreadyExists = errors.New("product already exists")

	// ErrInvalidTransfer is only returned for a transfer to the zero account.
	ErrInvalidTransfer = errors.New("invalid transfer")
)
