package backend

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bh-premnath-git/bhadminui/internal/config"
	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
)

// TokenResponse is the token issuance payload. The access token object is
// nested under access_token, as the identity provider returns it.
type TokenResponse struct {
	AccessToken IssuedToken `json:"access_token"`
}

type IssuedToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

type accessClaims struct {
	Realm    string `json:"realm"`
	ClientID string `json:"azp"`
	jwt.RegisteredClaims
}

// IssueToken signs a backend access token for the service account.
func (b *Backend) IssueToken() (string, error) {
	now := b.now()
	claims := accessClaims{
		Realm:    b.account.Realm,
		ClientID: b.account.ClientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   b.account.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.tokenTTL)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signingKey)
}

func (b *Backend) verifyToken(raw string) (*accessClaims, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return b.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil {
		return nil, errors.Join(apperrors.ErrUnauthorized, err)
	}
	return claims, nil
}

// generateToken exchanges the service-account credential for an access token.
// The caller's identity token is required but not inspected.
func (b *Backend) generateToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bearer(r) == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		var creds config.ServiceAccount
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid request body.")
			return
		}
		if !b.validAccount(creds) {
			b.log.Info().Str("username", creds.Username).Msg("rejected service account credentials")
			writeDetail(w, http.StatusUnauthorized, "Invalid user credentials")
			return
		}

		token, err := b.IssueToken()
		if err != nil {
			b.log.Err(err).Msg("failed to sign access token")
			writeDetail(w, http.StatusInternalServerError, "Token generation failed.")
			return
		}
		writeJSON(w, http.StatusOK, TokenResponse{AccessToken: IssuedToken{
			AccessToken: token,
			ExpiresIn:   int(b.tokenTTL.Seconds()),
			TokenType:   "Bearer",
			Scope:       "profile email",
		}})
	}
}

func (b *Backend) validAccount(c config.ServiceAccount) bool {
	want := b.account
	return c.Realm == want.Realm &&
		c.ClientID == want.ClientID &&
		c.Username == want.Username &&
		subtle.ConstantTimeCompare([]byte(c.Password), []byte(want.Password)) == 1
}

func (b *Backend) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearer(r)
		if raw == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		if _, err := b.verifyToken(raw); err != nil {
			b.log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected access token")
			writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		next(w, r)
	}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
