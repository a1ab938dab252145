package fakeuserrepo

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
	"github.com/bh-premnath-git/bhadminui/pagination"
	"github.com/bh-premnath-git/bhadminui/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // email to user id
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	email := strings.ToLower(user.Email)
	if id, ok := ur.emailIds[email]; ok && id != user.ID {
		return fmt.Errorf("user with email %s already exists", user.Email)
	}

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if prev, ok := ur.users[user.ID]; ok {
		delete(ur.emailIds, strings.ToLower(prev.Email))
	}
	stored := *user
	ur.users[user.ID] = &stored
	ur.emailIds[email] = user.ID
	return nil
}

func (ur *FakeUserRepo) Delete(id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	delete(ur.emailIds, strings.ToLower(u.Email))
	delete(ur.users, id)
	return nil
}

func (ur *FakeUserRepo) DeleteByTenant(tenantID string) (int, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	n := 0
	for id, u := range ur.users {
		if u.TenantID == tenantID {
			delete(ur.emailIds, strings.ToLower(u.Email))
			delete(ur.users, id)
			n++
		}
	}
	return n, nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, apperrors.ErrNotFound)
	}
	out := *ur.users[id]
	return &out, nil
}

func (ur *FakeUserRepo) GetByID(id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	out := *u
	return &out, nil
}

// List returns matching users ordered by email.
func (ur *FakeUserRepo) List(filters users.Filters) (pagination.Envelope[users.User], error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]users.User, 0, len(ur.users))
	for _, v := range ur.users {
		if filters.Matches(v) {
			userList = append(userList, *v)
		}
	}

	sort.Slice(userList, func(i, j int) bool {
		return userList[i].Email < userList[j].Email
	})
	return pagination.Paginate(userList, filters.Params), nil
}
