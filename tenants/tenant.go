package tenants

import (
	"net/url"
	"strings"
	"time"

	"github.com/bh-premnath-git/bhadminui/pagination"
)

// EntityType is the cache tag type for tenants.
const EntityType = "Tenant"

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Tag is a free-form label attached to a tenant.
type Tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// Tenant is an onboarded organisation with its own identity provider realm
// and client.
type Tenant struct {
	ID                string    `json:"id"`
	TenantName        string    `json:"tenant_name"`
	TenantKey         string    `json:"tenant_key"`
	TenantDescription string    `json:"tenant_description"`
	TenantLogoPath    string    `json:"tenant_logo_path"`
	BhTags            []Tag     `json:"bh_tags"`
	TenantStatus      Status    `json:"tenant_status"`
	KCRealmID         string    `json:"kc_realm_id"`
	KCClientID        string    `json:"kc_client_id"`
	LoginURL          string    `json:"login_url,omitempty"`
	ClientKey         string    `json:"client_key"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// CreateRequest onboards a tenant together with its first admin user.
type CreateRequest struct {
	TenantName        string `json:"tenant_name"`
	TenantDescription string `json:"tenant_description"`
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	BhTags            []Tag  `json:"bh_tags"`
}

// UpdateRequest changes the non-nil fields of tenant ID.
type UpdateRequest struct {
	ID                string  `json:"-"`
	TenantName        *string `json:"tenant_name,omitempty"`
	TenantDescription *string `json:"tenant_description,omitempty"`
	TenantStatus      *Status `json:"tenant_status,omitempty"`
	BhTags            []Tag   `json:"bh_tags,omitempty"`
}

// OnboardingResult is returned by tenant creation. Password is the generated
// password of the tenant's admin user and is only shown once.
type OnboardingResult struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	RealmID  string `json:"realm_id"`
	ClientID string `json:"client_id"`
	LoginURL string `json:"login_url"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Filters selects a page of tenants. Tags entries are "Key=Value" pairs and
// a tenant must carry all of them.
type Filters struct {
	Search string   `json:"search,omitempty"`
	Status Status   `json:"tenant_status,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	pagination.Params
}

// Query encodes the filters as list query parameters.
func (f Filters) Query() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Status != "" {
		q.Set("tenant_status", string(f.Status))
	}
	for _, t := range f.Tags {
		q.Add("tags", t)
	}
	f.Params.Encode(q)
	return q
}

func FiltersFromQuery(q url.Values) Filters {
	return Filters{
		Search: q.Get("search"),
		Status: Status(q.Get("tenant_status")),
		Tags:   q["tags"],
		Params: pagination.ParamsFromQuery(q),
	}
}

// Matches reports whether t passes every filter except pagination.
func (f Filters) Matches(t *Tenant) bool {
	if f.Status != "" && t.TenantStatus != f.Status {
		return false
	}
	if f.Search != "" {
		search := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.TenantName), search) &&
			!strings.Contains(strings.ToLower(t.TenantDescription), search) &&
			!strings.Contains(strings.ToLower(t.TenantKey), search) {
			return false
		}
	}
	for _, want := range f.Tags {
		if !t.HasTag(want) {
			return false
		}
	}
	return true
}

// HasTag reports whether t carries tag, given as "Key=Value" or a bare key.
func (t *Tenant) HasTag(tag string) bool {
	key, value, withValue := strings.Cut(tag, "=")
	for _, bt := range t.BhTags {
		if bt.Key == key && (!withValue || bt.Value == value) {
			return true
		}
	}
	return false
}

// Key derives the tenant key from a display name, e.g. "Acme Corp" -> "acme-corp".
func Key(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
