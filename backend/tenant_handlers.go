package backend

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
	"github.com/bh-premnath-git/bhadminui/tenants"
	"github.com/bh-premnath-git/bhadminui/users"
)

// tenantCreateBody is the tenant creation payload as the proxy forwards it,
// with the tags wrapped in {"data": [...]}.
type tenantCreateBody struct {
	tenants.CreateRequest
	BhTags struct {
		Data []tenants.Tag `json:"data"`
	} `json:"bh_tags"`
}

func (b *Backend) listTenants() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := b.repos.Tenants.List(tenants.FiltersFromQuery(r.URL.Query()))
		if err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (b *Backend) getTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := b.repos.Tenants.Get(r.PathValue("id"))
		if err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// createTenant onboards a tenant: it provisions the realm and client names,
// stores the tenant and creates its admin user with a generated password.
func (b *Backend) createTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body tenantCreateBody
		if !decodeBody(w, r, &body) {
			return
		}
		req := body.CreateRequest
		key := tenants.Key(req.TenantName)
		if key == "" || strings.TrimSpace(req.Email) == "" {
			writeDetail(w, http.StatusBadRequest, "tenant_name and email are required.")
			return
		}
		if _, err := b.repos.Tenants.GetByKey(key); err == nil {
			writeDetail(w, http.StatusConflict, fmt.Sprintf("Tenant %q already exists.", key))
			return
		}
		if _, err := b.repos.Users.GetByEmail(req.Email); err == nil {
			writeDetail(w, http.StatusConflict, fmt.Sprintf("User %q already exists.", req.Email))
			return
		}

		tenant := &tenants.Tenant{
			TenantName:        strings.TrimSpace(req.TenantName),
			TenantKey:         key,
			TenantDescription: req.TenantDescription,
			BhTags:            body.BhTags.Data,
			TenantStatus:      tenants.StatusActive,
			KCRealmID:         key,
			KCClientID:        key + "-client",
			ClientKey:         uuid.NewString(),
		}
		if tenant.BhTags == nil {
			tenant.BhTags = []tenants.Tag{}
		}
		tenant.LoginURL = b.loginURL(tenant.KCRealmID, tenant.KCClientID)
		if err := b.repos.Tenants.Upsert(tenant); err != nil {
			b.writeRepoError(w, err)
			return
		}

		password, err := b.onboardAdmin(tenant.ID, req)
		if err != nil {
			b.log.Err(err).Str("tenant", tenant.TenantKey).Msg("tenant admin onboarding failed")
			_ = b.repos.Tenants.Delete(tenant.ID)
			writeDetail(w, http.StatusInternalServerError, "Tenant onboarding failed.")
			return
		}

		b.log.Info().Str("tenant", tenant.TenantKey).Str("admin", req.Email).Msg("tenant onboarded")
		writeJSON(w, http.StatusCreated, tenants.OnboardingResult{
			Success:  true,
			Username: req.Email,
			Password: password,
			RealmID:  tenant.KCRealmID,
			ClientID: tenant.KCClientID,
			LoginURL: tenant.LoginURL,
			TenantID: tenant.ID,
		})
	}
}

func (b *Backend) updateTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := b.repos.Tenants.Get(r.PathValue("id"))
		if err != nil {
			b.writeRepoError(w, err)
			return
		}
		var req tenants.UpdateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.TenantName != nil {
			t.TenantName = *req.TenantName
		}
		if req.TenantDescription != nil {
			t.TenantDescription = *req.TenantDescription
		}
		if req.TenantStatus != nil {
			t.TenantStatus = *req.TenantStatus
		}
		if req.BhTags != nil {
			t.BhTags = req.BhTags
		}
		if err := b.repos.Tenants.Upsert(t); err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// deleteTenant removes the tenant and every user that belongs to it.
func (b *Backend) deleteTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := b.repos.Tenants.Delete(id); err != nil {
			b.writeRepoError(w, err)
			return
		}
		if n, err := b.repos.Users.DeleteByTenant(id); err != nil {
			b.log.Err(err).Str("tenant", id).Msg("failed to delete tenant users")
		} else if n > 0 {
			b.log.Debug().Str("tenant", id).Int("users", n).Msg("deleted tenant users")
		}
		writeDeleted(w, id)
	}
}

// onboardAdmin creates the tenant's first admin user and returns the
// generated password in clear text.
func (b *Backend) onboardAdmin(tenantID string, req tenants.CreateRequest) (string, error) {
	password, err := generatePassword()
	if err != nil {
		return "", err
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	admin := &users.User{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         users.RoleAdmin,
		TenantID:     tenantID,
		Status:       users.StatusActive,
		PasswordHash: hash,
	}
	if err := b.repos.Users.Upsert(admin); err != nil {
		return "", fmt.Errorf("failed to create admin user: %w", err)
	}
	return password, nil
}

func (b *Backend) loginURL(realm, clientID string) string {
	if b.loginBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/auth?client_id=%s&response_type=code",
		strings.TrimSuffix(b.loginBaseURL, "/"), realm, clientID)
}

var errWeakPassword = errors.New("could not generate a password meeting the strength rules")

// generatePassword returns a random password that passes
// users.ValidatePasswordStrength.
func generatePassword() (string, error) {
	for range 16 {
		buf := make([]byte, 12)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		password := base64.RawURLEncoding.EncodeToString(buf)
		if users.ValidatePasswordStrength(password) == nil {
			return password, nil
		}
	}
	return "", fmt.Errorf("%w: %w", apperrors.ErrInternal, errWeakPassword)
}
