package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
	"github.com/bh-premnath-git/bhadminui/transport"
)

// Status is the position of the session in its lifecycle.
type Status int

const (
	StatusUnauthenticated Status = iota
	StatusAuthenticating
	StatusExchanging
	StatusReady
	StatusRefreshing
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticating:
		return "authenticating"
	case StatusExchanging:
		return "exchanging"
	case StatusReady:
		return "ready"
	case StatusRefreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// TokenState is the state of the backend access token.
type TokenState int

const (
	TokenIdle TokenState = iota
	TokenLoading
	TokenReady
	TokenError
)

func (s TokenState) String() string {
	switch s {
	case TokenLoading:
		return "loading"
	case TokenReady:
		return "ready"
	case TokenError:
		return "error"
	default:
		return "idle"
	}
}

// Session is a snapshot of the authentication state.
type Session struct {
	IsAuthenticated    bool
	RawIdentityToken   string
	ParsedClaims       map[string]any
	BackendAccessToken string
	TokenState         TokenState
	Status             Status
	Err                error
}

func (s Session) clone() Session {
	s.ParsedClaims = maps.Clone(s.ParsedClaims)
	return s
}

// AuthExchangeError reports a failed identity to backend token exchange.
// Status is the HTTP status of the exchange response, or 0 for transport
// failures. It matches ErrAuthExchange with errors.Is.
type AuthExchangeError struct {
	Status int
	Data   json.RawMessage
	Err    error
}

func newAuthExchangeError(err error) *AuthExchangeError {
	e := &AuthExchangeError{Err: err}
	var resp *transport.ErrorResponse
	if errors.As(err, &resp) {
		e.Status = resp.Status
		e.Data = resp.Data
	}
	return e
}

func (e *AuthExchangeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", apperrors.ErrAuthExchange, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", apperrors.ErrAuthExchange, e.Err)
}

func (e *AuthExchangeError) Unwrap() []error {
	return []error{apperrors.ErrAuthExchange, e.Err}
}
