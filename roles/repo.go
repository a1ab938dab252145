package roles

import "github.com/bh-premnath-git/bhadminui/pagination"

type Repo interface {
	Upsert(role *Role) error
	Delete(roleID string) error
	Get(roleID string) (*Role, error)
	List(filters Filters) (pagination.Envelope[Role], error)
}
