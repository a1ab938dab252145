// Package oidctest runs an in-process OpenID Connect provider laid out like a
// Keycloak realm, for exercising the identity client without a real server.
package oidctest

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// User is the account that every authorization request logs in as.
type User struct {
	Subject  string
	Username string
	Email    string
	Name     string
	Roles    []string
}

type authRequest struct {
	redirectURI string
	challenge   string
	nonce       string
}

// Provider approves every authorization request for User.
type Provider struct {
	Realm    string
	ClientID string
	User     User

	server *httptest.Server
	keys   *keyPair

	mu             sync.Mutex
	accessTTL      time.Duration
	codes          map[string]authRequest
	refreshTokens  map[string]string // refresh token -> nonce
	failRefresh    bool
	tokenRequests  map[string]int
	logouts        int
	lastLogoutHint string
}

// New starts a provider for realm accepting the public client clientID.
func New(realm, clientID string) (*Provider, error) {
	keys, err := generateRSAKeyPair("oidctest-" + realm)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		Realm:    realm,
		ClientID: clientID,
		User: User{
			Subject:  "7d1a5f0e-0000-4000-8000-000000000001",
			Username: "admin",
			Email:    "admin@example.com",
			Name:     "Admin User",
			Roles:    []string{"admin"},
		},
		keys:          keys,
		accessTTL:     5 * time.Minute,
		codes:         make(map[string]authRequest),
		refreshTokens: make(map[string]string),
		tokenRequests: make(map[string]int),
	}

	mux := http.NewServeMux()
	base := "/realms/" + realm
	mux.HandleFunc("GET "+base+"/.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("GET "+base+"/protocol/openid-connect/auth", p.authorize)
	mux.HandleFunc("POST "+base+"/protocol/openid-connect/token", p.token)
	mux.HandleFunc("GET "+base+"/protocol/openid-connect/certs", p.certs)
	mux.HandleFunc(base+"/protocol/openid-connect/logout", p.logout)
	p.server = httptest.NewServer(mux)
	return p, nil
}

// URL is the provider base URL, without the realm path.
func (p *Provider) URL() string { return p.server.URL }

func (p *Provider) Issuer() string { return p.server.URL + "/realms/" + p.Realm }

func (p *Provider) Close() { p.server.Close() }

// SetAccessTokenTTL sets the lifetime of tokens issued from now on.
func (p *Provider) SetAccessTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTTL = d
}

// SetFailRefresh makes refresh_token grants fail with invalid_grant.
func (p *Provider) SetFailRefresh(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRefresh = fail
}

// TokenRequests counts token endpoint calls for grantType.
func (p *Provider) TokenRequests(grantType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests[grantType]
}

func (p *Provider) Logouts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logouts
}

// LastLogoutHint is the id_token_hint of the most recent logout request.
func (p *Provider) LastLogoutHint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLogoutHint
}

// Approve plays the browser: it follows authURL and returns the callback URL
// the provider redirected to.
func (p *Provider) Approve(authURL string) (*url.URL, error) {
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get(authURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		return nil, fmt.Errorf("authorization request rejected: %s", resp.Status)
	}
	return url.Parse(resp.Header.Get("Location"))
}

func (p *Provider) discovery(w http.ResponseWriter, r *http.Request) {
	issuer := p.Issuer()
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/protocol/openid-connect/auth",
		"token_endpoint":                        issuer + "/protocol/openid-connect/token",
		"jwks_uri":                              issuer + "/protocol/openid-connect/certs",
		"end_session_endpoint":                  issuer + "/protocol/openid-connect/logout",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{jwt.SigningMethodRS256.Alg()},
		"code_challenge_methods_supported":      []string{"S256"},
		"grant_types_supported":                 []string{GrantAuthorizationCode, GrantRefreshToken},
	})
}

func (p *Provider) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != p.ClientID {
		http.Error(w, "Client not found.", http.StatusBadRequest)
		return
	}
	if q.Get("response_type") != "code" {
		http.Error(w, "Unsupported response type.", http.StatusBadRequest)
		return
	}
	redirectURI, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirectURI.Scheme == "" {
		http.Error(w, "Invalid parameter: redirect_uri", http.StatusBadRequest)
		return
	}
	if m := q.Get("code_challenge_method"); m != "" && m != "S256" {
		http.Error(w, "Invalid parameter: code challenge method is not supported.", http.StatusBadRequest)
		return
	}

	code := randomString(24)
	p.mu.Lock()
	p.codes[code] = authRequest{
		redirectURI: q.Get("redirect_uri"),
		challenge:   q.Get("code_challenge"),
		nonce:       q.Get("nonce"),
	}
	p.mu.Unlock()

	cb := redirectURI.Query()
	cb.Set("code", code)
	cb.Set("state", q.Get("state"))
	cb.Set("session_state", randomString(8))
	redirectURI.RawQuery = cb.Encode()
	http.Redirect(w, r, redirectURI.String(), http.StatusFound)
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tokenError(w, "invalid_request", err.Error())
		return
	}
	clientID := r.PostForm.Get("client_id")
	if id, _, ok := r.BasicAuth(); ok {
		clientID = id
	}
	if clientID != p.ClientID {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	grant := r.PostForm.Get("grant_type")
	p.mu.Lock()
	p.tokenRequests[grant]++
	p.mu.Unlock()

	var nonce string
	switch grant {
	case GrantAuthorizationCode:
		p.mu.Lock()
		req, ok := p.codes[r.PostForm.Get("code")]
		delete(p.codes, r.PostForm.Get("code"))
		p.mu.Unlock()
		if !ok {
			tokenError(w, "invalid_grant", "Code not valid")
			return
		}
		if r.PostForm.Get("redirect_uri") != "" && r.PostForm.Get("redirect_uri") != req.redirectURI {
			tokenError(w, "invalid_grant", "Incorrect redirect_uri")
			return
		}
		if req.challenge != "" && challengeS256(r.PostForm.Get("code_verifier")) != req.challenge {
			tokenError(w, "invalid_grant", "PKCE verification failed")
			return
		}
		nonce = req.nonce
	case GrantRefreshToken:
		rt := r.PostForm.Get("refresh_token")
		p.mu.Lock()
		n, ok := p.refreshTokens[rt]
		fail := p.failRefresh
		if ok && !fail {
			delete(p.refreshTokens, rt)
		}
		p.mu.Unlock()
		if !ok || fail {
			tokenError(w, "invalid_grant", "Token is not active")
			return
		}
		nonce = n
	default:
		tokenError(w, "unsupported_grant_type", grant)
		return
	}

	resp, err := p.issue(nonce)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (p *Provider) issue(nonce string) (map[string]any, error) {
	p.mu.Lock()
	ttl := p.accessTTL
	p.mu.Unlock()

	now := time.Now()
	exp := now.Add(ttl)
	access, err := p.keys.sign(jwt.MapClaims{
		"iss":                p.Issuer(),
		"sub":                p.User.Subject,
		"aud":                "account",
		"azp":                p.ClientID,
		"typ":                "Bearer",
		"iat":                now.Unix(),
		"exp":                exp.Unix(),
		"jti":                randomString(12),
		"preferred_username": p.User.Username,
		"email":              p.User.Email,
		"name":               p.User.Name,
		"realm_access":       map[string]any{"roles": p.User.Roles},
	})
	if err != nil {
		return nil, err
	}
	idClaims := jwt.MapClaims{
		"iss":                p.Issuer(),
		"sub":                p.User.Subject,
		"aud":                p.ClientID,
		"azp":                p.ClientID,
		"typ":                "ID",
		"iat":                now.Unix(),
		"exp":                exp.Unix(),
		"preferred_username": p.User.Username,
		"email":              p.User.Email,
		"name":               p.User.Name,
	}
	if nonce != "" {
		idClaims["nonce"] = nonce
	}
	idToken, err := p.keys.sign(idClaims)
	if err != nil {
		return nil, err
	}

	refresh := randomString(32)
	p.mu.Lock()
	p.refreshTokens[refresh] = nonce
	p.mu.Unlock()

	return map[string]any{
		"access_token":  access,
		"token_type":    "Bearer",
		"expires_in":    int(ttl.Seconds()),
		"refresh_token": refresh,
		"id_token":      idToken,
		"scope":         "openid profile email",
	}, nil
}

func (p *Provider) certs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, p.keys.jwks())
}

func (p *Provider) logout(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	p.mu.Lock()
	p.logouts++
	p.lastLogoutHint = r.Form.Get("id_token_hint")
	p.refreshTokens = make(map[string]string)
	p.mu.Unlock()

	if target := r.Form.Get("post_logout_redirect_uri"); target != "" {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func tokenError(w http.ResponseWriter, code, desc string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code, "error_description": desc})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func challengeS256(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

func randomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
