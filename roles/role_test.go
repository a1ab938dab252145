package roles_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bh-premnath-git/bhadminui/query"
	"github.com/bh-premnath-git/bhadminui/roles"
	rolerepofakes "github.com/bh-premnath-git/bhadminui/roles/repofakes"
)

func TestFilters_TenantScope(t *testing.T) {
	global := &roles.Role{Name: "Auditor", Status: roles.StatusActive}
	scoped := &roles.Role{Name: "Editor", Status: roles.StatusActive, Tenant: &roles.TenantRef{ID: "t1", Name: "Acme"}}

	tests := []struct {
		name    string
		filters roles.Filters
		global  bool
		scoped  bool
	}{
		{"all", roles.Filters{}, true, true},
		{"global only", roles.Filters{TenantID: roles.GlobalTenant}, true, false},
		{"one tenant", roles.Filters{TenantID: "t1"}, false, true},
		{"other tenant", roles.Filters{TenantID: "t2"}, false, false},
		{"search", roles.Filters{Search: "edit"}, false, true},
		{"status", roles.Filters{Status: roles.StatusInactive}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.global, tt.filters.Matches(global))
			require.Equal(t, tt.scoped, tt.filters.Matches(scoped))
		})
	}
}

func TestFakeRoleRepo_List(t *testing.T) {
	repo := rolerepofakes.NewFakeRoleRepo()
	require.NoError(t, repo.Upsert(&roles.Role{Name: "Viewer"}))
	require.NoError(t, repo.Upsert(&roles.Role{Name: "Admin"}))
	require.NoError(t, repo.Upsert(&roles.Role{Name: "Editor", Tenant: &roles.TenantRef{ID: "t1"}}))

	page, err := repo.List(roles.Filters{TenantID: roles.GlobalTenant})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	require.Equal(t, "Admin", page.Data[0].Name)
	require.Equal(t, "Viewer", page.Data[1].Name)
}

func TestRegister_UpdateInvalidatesEntityAndLists(t *testing.T) {
	r := query.NewRegistry()
	ep := roles.Register(r)

	op, err := r.Lookup(ep.Update.Name(), query.KindMutation)
	require.NoError(t, err)
	require.Equal(t, query.EntityTags(roles.EntityType, "r1"), op.Tags(nil, roles.UpdateRequest{ID: "r1"}))

	req, err := op.Build(roles.UpdateRequest{ID: "r1"})
	require.NoError(t, err)
	require.Equal(t, "PATCH", req.Method)
	require.Equal(t, roles.BasePath+"/r1", req.Path)

	_, err = op.Build("wrong type")
	require.Error(t, err)
}
