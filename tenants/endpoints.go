package tenants

import (
	"net/http"
	"net/url"

	"github.com/bh-premnath-git/bhadminui/pagination"
	"github.com/bh-premnath-git/bhadminui/query"
	"github.com/bh-premnath-git/bhadminui/transport"
	"github.com/bh-premnath-git/bhadminui/users"
)

// BasePath is the proxy route for tenants.
const BasePath = "/api/tenants"

// Endpoints are the tenant operations registered with a query.Registry.
type Endpoints struct {
	List   query.QueryDef[Filters, pagination.Envelope[Tenant]]
	Get    query.QueryDef[string, Tenant]
	Create query.MutationDef[CreateRequest, OnboardingResult]
	Update query.MutationDef[UpdateRequest, Tenant]
	Delete query.MutationDef[string, struct{}]
}

// Register defines the tenant operations. A list provides a tag per returned
// tenant plus the LIST tag; update invalidates the tenant and every tenant
// list. Onboarding creates the tenant admin and delete removes the tenant's
// users, so create and delete also invalidate every user list.
func Register(r *query.Registry) Endpoints {
	return Endpoints{
		List: query.DefineQuery(r, "tenants.list",
			func(f Filters) transport.Request {
				return transport.Request{Method: http.MethodGet, Path: BasePath, Query: f.Query()}
			},
			func(page pagination.Envelope[Tenant], _ Filters) []query.Tag {
				ids := make([]string, 0, len(page.Data))
				for _, t := range page.Data {
					ids = append(ids, t.ID)
				}
				return query.ListTags(EntityType, ids)
			}),
		Get: query.DefineQuery(r, "tenants.get",
			func(id string) transport.Request {
				return transport.Request{Method: http.MethodGet, Path: itemPath(id)}
			},
			func(_ Tenant, id string) []query.Tag {
				return []query.Tag{query.IDTag(EntityType, id)}
			}),
		Create: query.DefineMutation[CreateRequest, OnboardingResult](r, "tenants.create",
			func(req CreateRequest) transport.Request {
				return transport.Request{Method: http.MethodPost, Path: BasePath, Body: req}
			},
			func(CreateRequest) []query.Tag {
				return []query.Tag{query.ListTag(EntityType), query.ListTag(users.EntityType)}
			}),
		Update: query.DefineMutation[UpdateRequest, Tenant](r, "tenants.update",
			func(req UpdateRequest) transport.Request {
				return transport.Request{Method: http.MethodPatch, Path: itemPath(req.ID), Body: req}
			},
			func(req UpdateRequest) []query.Tag {
				return query.EntityTags(EntityType, req.ID)
			}),
		Delete: query.DefineMutation[string, struct{}](r, "tenants.delete",
			func(id string) transport.Request {
				return transport.Request{Method: http.MethodDelete, Path: itemPath(id)}
			},
			func(id string) []query.Tag {
				return append(query.EntityTags(EntityType, id), query.ListTag(users.EntityType))
			}),
	}
}

func itemPath(id string) string {
	return BasePath + "/" + url.PathEscape(id)
}
