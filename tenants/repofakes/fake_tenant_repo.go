package tenantrepofakes

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
	"github.com/bh-premnath-git/bhadminui/pagination"
	"github.com/bh-premnath-git/bhadminui/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	tenants map[string]*tenants.Tenant
	lock    sync.RWMutex
}

func NewFakeTenantRepo() *FakeTenantRepo {
	return &FakeTenantRepo{
		tenants: make(map[string]*tenants.Tenant),
	}
}

func (tr *FakeTenantRepo) Upsert(tenantData *tenants.Tenant) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	now := time.Now().UTC()
	if tenantData.ID == "" {
		tenantData.ID = uuid.New().String()
	}
	if tenantData.CreatedAt.IsZero() {
		tenantData.CreatedAt = now
	}
	tenantData.UpdatedAt = now
	stored := *tenantData
	tr.tenants[tenantData.ID] = &stored
	return nil
}

func (tr *FakeTenantRepo) Delete(tenantID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if _, ok := tr.tenants[tenantID]; !ok {
		return fmt.Errorf("tenant %s: %w", tenantID, apperrors.ErrNotFound)
	}
	delete(tr.tenants, tenantID)
	return nil
}

func (tr *FakeTenantRepo) Get(tenantID string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	t, ok := tr.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, apperrors.ErrNotFound)
	}
	out := *t
	return &out, nil
}

func (tr *FakeTenantRepo) GetByKey(tenantKey string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	for _, t := range tr.tenants {
		if t.TenantKey == tenantKey {
			out := *t
			return &out, nil
		}
	}
	return nil, fmt.Errorf("tenant key %s: %w", tenantKey, apperrors.ErrNotFound)
}

// List returns matching tenants, newest first.
func (tr *FakeTenantRepo) List(filters tenants.Filters) (pagination.Envelope[tenants.Tenant], error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	matched := make([]tenants.Tenant, 0, len(tr.tenants))
	for _, t := range tr.tenants {
		if filters.Matches(t) {
			matched = append(matched, *t)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return pagination.Paginate(matched, filters.Params), nil
}
