package backend

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bh-premnath-git/bhadminui/roles"
)

// defaultRoles are the global roles every backend starts with.
var defaultRoles = []roles.Role{
	{Name: "Administrator", Description: "Full access to tenant resources", Permissions: []string{"tenants:*", "users:*", "roles:*"}},
	{Name: "Operator", Description: "Manage users", Permissions: []string{"users:read", "users:write"}},
	{Name: "Viewer", Description: "Read-only access", Permissions: []string{"tenants:read", "users:read", "roles:read"}},
}

func (b *Backend) seedRoles() error {
	existing, err := b.repos.Roles.List(roles.Filters{TenantID: roles.GlobalTenant})
	if err != nil {
		return fmt.Errorf("failed to list roles: %w", err)
	}
	if existing.Total > 0 {
		return nil
	}
	for _, r := range defaultRoles {
		r.Status = roles.StatusActive
		if err := b.repos.Roles.Upsert(&r); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", r.Name, err)
		}
	}
	b.log.Debug().Int("roles", len(defaultRoles)).Msg("seeded global roles")
	return nil
}

func (b *Backend) listRoles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := b.repos.Roles.List(roles.FiltersFromQuery(r.URL.Query()))
		if err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (b *Backend) getRole() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, err := b.repos.Roles.Get(r.PathValue("id"))
		if err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	}
}

func (b *Backend) createRole() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roles.CreateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeDetail(w, http.StatusBadRequest, "name is required.")
			return
		}
		role := &roles.Role{
			Name:        strings.TrimSpace(req.Name),
			Description: req.Description,
			Permissions: req.Permissions,
			Status:      roles.StatusActive,
		}
		if role.Permissions == nil {
			role.Permissions = []string{}
		}
		if req.TenantID != "" {
			t, err := b.repos.Tenants.Get(req.TenantID)
			if err != nil {
				writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Tenant %q does not exist.", req.TenantID))
				return
			}
			role.Tenant = &roles.TenantRef{ID: t.ID, Name: t.TenantName}
		}
		if err := b.repos.Roles.Upsert(role); err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, role)
	}
}

func (b *Backend) updateRole() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, err := b.repos.Roles.Get(r.PathValue("id"))
		if err != nil {
			b.writeRepoError(w, err)
			return
		}
		var req roles.UpdateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name != nil {
			role.Name = *req.Name
		}
		if req.Description != nil {
			role.Description = *req.Description
		}
		if req.Permissions != nil {
			role.Permissions = req.Permissions
		}
		if req.Status != nil {
			role.Status = *req.Status
		}
		if err := b.repos.Roles.Upsert(role); err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	}
}

func (b *Backend) deleteRole() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := b.repos.Roles.Delete(id); err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeDeleted(w, id)
	}
}
