package common

import "errors"

// Error taxonomy shared by every service. Handlers map these to envelope
// codes with errors.Is; services wrap them with context via fmt.Errorf %w.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrProviderUnavailable = errors.New("llm provider unavailable")
	ErrProvider            = errors.New("llm provider error")
	ErrChainNotConfigured  = errors.New("chain not configured")
	ErrNonceFetchFailed    = errors.New("nonce fetch failed")
	ErrSigningFailed       = errors.New("signing failed")
	ErrBroadcastFailed     = errors.New("broadcast failed")
	ErrRateLimited         = errors.New("rate limited")
	ErrTimeout             = errors.New("transport timeout")
)
