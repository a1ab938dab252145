package users

import "github.com/bh-premnath-git/bhadminui/pagination"

type UserRepo interface {
	Upsert(user *User) error
	Delete(id string) error
	GetByEmail(email string) (*User, error)
	GetByID(ID string) (*User, error)
	List(filters Filters) (pagination.Envelope[User], error)
	// DeleteByTenant removes every user of tenantID and reports how many.
	DeleteByTenant(tenantID string) (int, error)
}
