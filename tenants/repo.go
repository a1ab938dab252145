package tenants

import "github.com/bh-premnath-git/bhadminui/pagination"

type Repo interface {
	Upsert(tenant *Tenant) error
	Delete(tenantID string) error
	Get(tenantID string) (*Tenant, error)
	GetByKey(tenantKey string) (*Tenant, error)
	List(filters Filters) (pagination.Envelope[Tenant], error)
}
