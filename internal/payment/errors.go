package payment

import (
	"errors"
	"fmt"

	"github.com/MrJamesThe3rd/stkpush/internal/daraja"
)

// Every error returned by Initiator wraps exactly one of these.
var (
	ErrValidation        = errors.New("invalid payment request")
	ErrConfiguration     = errors.New("payment provider not configured")
	ErrUpstreamAuth      = errors.New("payment provider authentication failed")
	ErrUpstreamRequest   = errors.New("payment provider rejected the request")
	ErrMalformedCallback = errors.New("malformed callback")
	ErrStorage           = errors.New("storage failure")
)

func tokenError(err error) error {
	if errors.Is(err, daraja.ErrMissingCredentials) {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return fmt.Errorf("%w: %w", ErrUpstreamAuth, err)
}

// ProviderMessage returns the provider's own explanation for a rejected push request, if any.
func ProviderMessage(err error) (string, bool) {
	rej, ok := daraja.IsRejection(err)
	if !ok || rej.Message == "" {
		return "", false
	}

	return rej.Message, true
}
