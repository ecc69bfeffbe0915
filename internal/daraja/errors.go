package daraja

import "errors"

var (
	ErrMissingCredentials = errors.New("daraja: consumer key or secret not configured")
	ErrAuthFailed         = errors.New("daraja: access token request failed")
	ErrTokenRejected      = errors.New("daraja: access token rejected")
	ErrRequestRejected    = errors.New("daraja: request rejected")
	ErrMalformedCallback  = errors.New("daraja: malformed callback")
	ErrInvalidAmount      = errors.New("daraja: invalid amount")
)
