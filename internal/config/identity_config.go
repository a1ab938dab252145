package config

import (
	"fmt"
	"strings"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
)

const (
	IdentityURLEnvVar      = "KEYCLOAK_URL"
	IdentityRealmEnvVar    = "KEYCLOAK_REALM"
	IdentityClientIDEnvVar = "KEYCLOAK_CLIENT_ID"
	IdentityRedirectEnvVar = "UI_REDIRECT_URL"
	identityPKCEEnvVar     = "KEYCLOAK_PKCE_METHOD"
)

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetIdentityProviderURL() string {
	return strings.TrimSuffix(GetEnv(IdentityURLEnvVar, ""), "/")
}

func (Identity) GetRealm() string {
	return GetEnv(IdentityRealmEnvVar, "")
}

func (Identity) GetClientID() string {
	return GetEnv(IdentityClientIDEnvVar, "")
}

func (Identity) GetRedirectURI() string {
	return GetEnv(IdentityRedirectEnvVar, "")
}

func (Identity) GetPKCEMethod() string {
	return GetEnv(identityPKCEEnvVar, "S256")
}

// StaticIdentity is an IdentityConfig with fixed values, used when the
// settings do not come from the environment.
type StaticIdentity struct {
	ProviderURL string
	Realm       string
	ClientID    string
	RedirectURI string
	PKCEMethod  string
}

var _ IdentityConfig = StaticIdentity{}

func (s StaticIdentity) GetIdentityProviderURL() string { return strings.TrimSuffix(s.ProviderURL, "/") }
func (s StaticIdentity) GetRealm() string               { return s.Realm }
func (s StaticIdentity) GetClientID() string            { return s.ClientID }
func (s StaticIdentity) GetRedirectURI() string         { return s.RedirectURI }

func (s StaticIdentity) GetPKCEMethod() string {
	if s.PKCEMethod == "" {
		return "S256"
	}
	return s.PKCEMethod
}

// ValidateIdentity fails when any required identity provider value is absent.
// The returned error names every missing variable.
func ValidateIdentity(c IdentityConfig) error {
	var missing []string
	if c.GetIdentityProviderURL() == "" {
		missing = append(missing, IdentityURLEnvVar)
	}
	if c.GetRealm() == "" {
		missing = append(missing, IdentityRealmEnvVar)
	}
	if c.GetClientID() == "" {
		missing = append(missing, IdentityClientIDEnvVar)
	}
	if c.GetRedirectURI() == "" {
		missing = append(missing, IdentityRedirectEnvVar)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// IssuerURL returns the realm issuer, e.g. https://sso.example.com/realms/admin
func IssuerURL(c IdentityConfig) string {
	return c.GetIdentityProviderURL() + "/realms/" + c.GetRealm()
}
