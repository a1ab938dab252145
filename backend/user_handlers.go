package backend

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bh-premnath-git/bhadminui/users"
)

func (b *Backend) listUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := b.repos.Users.List(users.FiltersFromQuery(r.URL.Query()))
		if err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (b *Backend) getUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := b.repos.Users.GetByID(r.PathValue("id"))
		if err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// createUser adds an invited user. The user stays pending until first login.
func (b *Backend) createUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req users.CreateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if msg := b.validateUser(req.Email, req.Role, req.TenantID); msg != "" {
			writeDetail(w, http.StatusBadRequest, msg)
			return
		}
		if _, err := b.repos.Users.GetByEmail(req.Email); err == nil {
			writeDetail(w, http.StatusConflict, fmt.Sprintf("User %q already exists.", req.Email))
			return
		}

		u := &users.User{
			Email:     strings.TrimSpace(req.Email),
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Role:      req.Role,
			TenantID:  req.TenantID,
			Status:    users.StatusPending,
		}
		if err := b.repos.Users.Upsert(u); err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

func (b *Backend) updateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := b.repos.Users.GetByID(r.PathValue("id"))
		if err != nil {
			b.writeRepoError(w, err)
			return
		}
		var req users.UpdateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Email != nil {
			u.Email = *req.Email
		}
		if req.FirstName != nil {
			u.FirstName = *req.FirstName
		}
		if req.LastName != nil {
			u.LastName = *req.LastName
		}
		if req.Role != nil {
			u.Role = *req.Role
		}
		if req.TenantID != nil {
			u.TenantID = *req.TenantID
		}
		if req.Status != nil {
			u.Status = *req.Status
		}
		if msg := b.validateUser(u.Email, u.Role, u.TenantID); msg != "" {
			writeDetail(w, http.StatusBadRequest, msg)
			return
		}
		if err := b.repos.Users.Upsert(u); err != nil {
			writeDetail(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func (b *Backend) deleteUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := b.repos.Users.Delete(id); err != nil {
			b.writeRepoError(w, err)
			return
		}
		writeDeleted(w, id)
	}
}

func (b *Backend) validateUser(email string, role users.Role, tenantID string) string {
	if !strings.Contains(email, "@") {
		return "Enter a valid email address."
	}
	if !role.Valid() {
		return fmt.Sprintf("%q is not a valid role.", role)
	}
	if tenantID != "" {
		if _, err := b.repos.Tenants.Get(tenantID); err != nil {
			return fmt.Sprintf("Tenant %q does not exist.", tenantID)
		}
	}
	return ""
}
