package connect

import "errors"

var (
	ErrConnectDisabled            = errors.New("connect: account connect is disabled")
	ErrNotAuthenticated           = errors.New("connect: user is not authenticated")
	ErrInvalidRegistrationAttempt = errors.New("connect: invalid registration attempt")
	ErrNoAuthenticatedUser        = errors.New("connect: no authenticated user")
	ErrConfirmationNotFound       = errors.New("connect: no pending confirmation for key")
)
