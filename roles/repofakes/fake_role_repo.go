package rolerepofakes

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
	"github.com/bh-premnath-git/bhadminui/pagination"
	"github.com/bh-premnath-git/bhadminui/roles"
)

var _ roles.Repo = (*FakeRoleRepo)(nil)

type FakeRoleRepo struct {
	roles map[string]*roles.Role
	lock  sync.RWMutex
}

func NewFakeRoleRepo() *FakeRoleRepo {
	return &FakeRoleRepo{roles: make(map[string]*roles.Role)}
}

func (rr *FakeRoleRepo) Upsert(role *roles.Role) error {
	rr.lock.Lock()
	defer rr.lock.Unlock()
	now := time.Now().UTC()
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.UpdatedAt = now
	stored := *role
	rr.roles[role.ID] = &stored
	return nil
}

func (rr *FakeRoleRepo) Delete(roleID string) error {
	rr.lock.Lock()
	defer rr.lock.Unlock()
	if _, ok := rr.roles[roleID]; !ok {
		return fmt.Errorf("role %s: %w", roleID, apperrors.ErrNotFound)
	}
	delete(rr.roles, roleID)
	return nil
}

func (rr *FakeRoleRepo) Get(roleID string) (*roles.Role, error) {
	rr.lock.RLock()
	defer rr.lock.RUnlock()
	r, ok := rr.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, apperrors.ErrNotFound)
	}
	out := *r
	return &out, nil
}

// List returns matching roles ordered by name.
func (rr *FakeRoleRepo) List(filters roles.Filters) (pagination.Envelope[roles.Role], error) {
	rr.lock.RLock()
	defer rr.lock.RUnlock()

	matched := make([]roles.Role, 0, len(rr.roles))
	for _, r := range rr.roles {
		if filters.Matches(r) {
			matched = append(matched, *r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ID < matched[j].ID
	})
	return pagination.Paginate(matched, filters.Params), nil
}
