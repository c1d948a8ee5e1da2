package auth

import (
	"fmt"

	"github.com/sociodev/sociodev/internal/app/system/apperr"
)

// All of these satisfy errors.Is(err, apperr.ErrAuth).
var (
	ErrMissingField       = fmt.Errorf("%w: email, password and username are required", apperr.ErrAuth)
	ErrBadEmail           = fmt.Errorf("%w: email address is not valid", apperr.ErrAuth)
	ErrWeakPassword       = fmt.Errorf("%w: password must be at least %d characters", apperr.ErrAuth, MinPasswordLen)
	ErrEmailInUse         = fmt.Errorf("%w: email already in use", apperr.ErrAuth)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", apperr.ErrAuth)
	ErrBadToken           = fmt.Errorf("%w: invalid session token", apperr.ErrAuth)
	ErrSessionEnded       = fmt.Errorf("%w: session has ended", apperr.ErrAuth)
)

// Sign-in failure causes, both wrapping ErrInvalidCredentials. Callers
// outside the audit log should only report ErrInvalidCredentials.
var (
	ErrUnknownEmail  = fmt.Errorf("%w (unknown email)", ErrInvalidCredentials)
	ErrWrongPassword = fmt.Errorf("%w (wrong password)", ErrInvalidCredentials)
)
