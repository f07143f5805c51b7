package auth

import (
	"errors"

	"github.com/geocoder89/taskhub/internal/apperr"
)

const (
	CodeMissingToken     = "missing_token"
	CodeTokenExpired     = "token_expired"
	CodeTokenInvalid     = "token_invalid"
	CodeTokenNotYetValid = "token_not_yet_valid"
	CodeTokenUnknown     = "token_unverifiable"
)

// Unauthenticated maps a token verification failure to an apperr with a
// reason specific code and message.
func Unauthenticated(err error) *apperr.Error {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return apperr.Wrap(apperr.KindUnauthenticated, CodeTokenExpired,
			"Your session has expired. Please log in again.", err)
	case errors.Is(err, ErrTokenInvalid):
		return apperr.Wrap(apperr.KindUnauthenticated, CodeTokenInvalid,
			"Invalid token. Check your authentication.", err)
	case errors.Is(err, ErrTokenNotYetValid):
		return apperr.Wrap(apperr.KindUnauthenticated, CodeTokenNotYetValid,
			"The token is not valid yet.", err)
	default:
		return apperr.Wrap(apperr.KindUnauthenticated, CodeTokenUnknown,
			"Authentication error.", err)
	}
}

func MissingToken() *apperr.Error {
	return apperr.New(apperr.KindUnauthenticated, CodeMissingToken,
		"Missing or invalid Authorization header")
}
