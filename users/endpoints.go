package users

import (
	"net/http"
	"net/url"

	"github.com/bh-premnath-git/bhadminui/pagination"
	"github.com/bh-premnath-git/bhadminui/query"
	"github.com/bh-premnath-git/bhadminui/transport"
)

const BasePath = "/api/users"

type Endpoints struct {
	List   query.QueryDef[Filters, pagination.Envelope[User]]
	Get    query.QueryDef[string, User]
	Create query.MutationDef[CreateRequest, User]
	Update query.MutationDef[UpdateRequest, User]
	Delete query.MutationDef[string, struct{}]
}

func Register(r *query.Registry) Endpoints {
	return Endpoints{
		List: query.DefineQuery(r, "users.list",
			func(f Filters) transport.Request {
				return transport.Request{Method: http.MethodGet, Path: BasePath, Query: f.Query()}
			},
			func(page pagination.Envelope[User], _ Filters) []query.Tag {
				ids := make([]string, 0, len(page.Data))
				for _, u := range page.Data {
					ids = append(ids, u.ID)
				}
				return query.ListTags(EntityType, ids)
			}),
		Get: query.DefineQuery(r, "users.get",
			func(id string) transport.Request {
				return transport.Request{Method: http.MethodGet, Path: itemPath(id)}
			},
			func(_ User, id string) []query.Tag {
				return []query.Tag{query.IDTag(EntityType, id)}
			}),
		Create: query.DefineMutation[CreateRequest, User](r, "users.create",
			func(req CreateRequest) transport.Request {
				return transport.Request{Method: http.MethodPost, Path: BasePath, Body: req}
			},
			func(CreateRequest) []query.Tag {
				return []query.Tag{query.ListTag(EntityType)}
			}),
		Update: query.DefineMutation[UpdateRequest, User](r, "users.update",
			func(req UpdateRequest) transport.Request {
				return transport.Request{Method: http.MethodPatch, Path: itemPath(req.ID), Body: req}
			},
			func(req UpdateRequest) []query.Tag {
				return query.EntityTags(EntityType, req.ID)
			}),
		Delete: query.DefineMutation[string, struct{}](r, "users.delete",
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
