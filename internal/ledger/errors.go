package ledger

import "errors"

// Errors returned by Ledger operations. Callers match them with errors.Is;
// the returned error usually wraps one of these with the market id or the
// underlying transfer failure.
var (
	ErrUnauthorized    = errors.New("caller is not the resolution authority")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("market not found")
	ErrMarketExpired   = errors.New("market betting window has closed")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrNotYetExpired   = errors.New("market has not reached its deadline")
	ErrNotResolved     = errors.New("market not resolved")
	ErrNothingToClaim  = errors.New("nothing to claim")
	ErrTransferFailed  = errors.New("asset transfer failed")
	ErrNotRecorded     = errors.New("ledger event not recorded")
)
