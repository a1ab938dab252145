package roles

import (
	"net/url"
	"strings"
	"time"

	"github.com/bh-premnath-git/bhadminui/pagination"
)

const EntityType = "Role"

// GlobalTenant is the tenant filter value selecting roles with no tenant.
const GlobalTenant = "global"

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type TenantRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Role is a named permission set. Tenant is nil for global roles.
type Role struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Permissions []string   `json:"permissions"`
	UserCount   int        `json:"userCount"`
	Status      Status     `json:"status"`
	Tenant      *TenantRef `json:"tenant"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (r *Role) Global() bool { return r.Tenant == nil }

type CreateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	TenantID    string   `json:"tenant_id,omitempty"`
}

type UpdateRequest struct {
	ID          string   `json:"-"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Status      *Status  `json:"status,omitempty"`
}

// Filters selects a page of roles. TenantID may be GlobalTenant.
type Filters struct {
	Status   Status `json:"status,omitempty"`
	Search   string `json:"search,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	pagination.Params
}

func (f Filters) Query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.TenantID != "" {
		q.Set("tenant_id", f.TenantID)
	}
	f.Params.Encode(q)
	return q
}

func FiltersFromQuery(q url.Values) Filters {
	return Filters{
		Status:   Status(q.Get("status")),
		Search:   q.Get("search"),
		TenantID: q.Get("tenant_id"),
		Params:   pagination.ParamsFromQuery(q),
	}
}

func (f Filters) Matches(r *Role) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	switch f.TenantID {
	case "":
	case GlobalTenant:
		if !r.Global() {
			return false
		}
	default:
		if r.Global() || r.Tenant.ID != f.TenantID {
			return false
		}
	}
	if f.Search != "" {
		search := strings.ToLower(f.Search)
		return strings.Contains(strings.ToLower(r.Name), search) ||
			strings.Contains(strings.ToLower(r.Description), search)
	}
	return true
}
