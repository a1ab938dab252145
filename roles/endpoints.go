package roles

import (
	"net/http"
	"net/url"

	"github.com/bh-premnath-git/bhadminui/pagination"
	"github.com/bh-premnath-git/bhadminui/query"
	"github.com/bh-premnath-git/bhadminui/transport"
)

const BasePath = "/api/roles"

type Endpoints struct {
	List   query.QueryDef[Filters, pagination.Envelope[Role]]
	Get    query.QueryDef[string, Role]
	Create query.MutationDef[CreateRequest, Role]
	Update query.MutationDef[UpdateRequest, Role]
	Delete query.MutationDef[string, struct{}]
}

func Register(r *query.Registry) Endpoints {
	return Endpoints{
		List: query.DefineQuery(r, "roles.list",
			func(f Filters) transport.Request {
				return transport.Request{Method: http.MethodGet, Path: BasePath, Query: f.Query()}
			},
			func(page pagination.Envelope[Role], _ Filters) []query.Tag {
				ids := make([]string, 0, len(page.Data))
				for _, r := range page.Data {
					ids = append(ids, r.ID)
				}
				return query.ListTags(EntityType, ids)
			}),
		Get: query.DefineQuery(r, "roles.get",
			func(id string) transport.Request {
				return transport.Request{Method: http.MethodGet, Path: itemPath(id)}
			},
			func(_ Role, id string) []query.Tag {
				return []query.Tag{query.IDTag(EntityType, id)}
			}),
		Create: query.DefineMutation[CreateRequest, Role](r, "roles.create",
			func(req CreateRequest) transport.Request {
				return transport.Request{Method: http.MethodPost, Path: BasePath, Body: req}
			},
			func(CreateRequest) []query.Tag {
				return []query.Tag{query.ListTag(EntityType)}
			}),
		Update: query.DefineMutation[UpdateRequest, Role](r, "roles.update",
			func(req UpdateRequest) transport.Request {
				return transport.Request{Method: http.MethodPatch, Path: itemPath(req.ID), Body: req}
			},
			func(req UpdateRequest) []query.Tag {
				return query.EntityTags(EntityType, req.ID)
			}),
		Delete: query.DefineMutation[string, struct{}](r, "roles.delete",
			func(id string) transport.Request {
				return transport.Request{Method: http.MethodDelete, Path: itemPath(id)}
			},
			func(id string) []query.Tag {
				return query.EntityTags(EntityType, id)
			}),
	}
}

func itemPath(id string) string {
	return BasePath + "/" + url.PathEscape(id)
}
