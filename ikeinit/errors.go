package ikeinit

import "github.com/pkg/errors"

var (
	ErrNonceAllocationFailed = errors.New("nonce allocation failed")
	ErrUnsupportedKeMethod   = errors.New("unsupported key exchange method")
	ErrProposalMismatch      = errors.New("no acceptable ike proposal")
	ErrWrongKeGroup          = errors.New("key exchange group does not match selection")
	ErrKeApplyFailed         = errors.New("failed to apply peer key exchange value")
	ErrCookieChallenge       = errors.New("responder requested a cookie")
	ErrInvalidKeRetry        = errors.New("responder requested a different key exchange group")
	ErrDuplicateCookie       = errors.New("responder echoed the same cookie twice")
	ErrRedirectRequested     = errors.New("responder requested redirect")
	ErrInvalidRedirect       = errors.New("redirect notify was malformed or echoed the wrong nonce")
	ErrRetryLimitReached     = errors.New("retry limit reached")
	ErrUnknownNotifyError    = errors.New("peer sent an unrecognised error notify")
)
