package users

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/bh-premnath-git/bhadminui/pagination"
)

// EntityType is the cache tag type for users.
const EntityType = "User"

// Role is the console role of a user within its tenant.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleViewer:
		return true
	}
	return false
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPending  Status = "pending"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         Role       `json:"role"`
	TenantID     string     `json:"tenant_id,omitempty"`
	Status       Status     `json:"status"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	PasswordHash string     `json:"-"` // never serialized
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type CreateRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
	TenantID  string `json:"tenant_id,omitempty"`
}

// UpdateRequest changes the non-nil fields of user ID.
type UpdateRequest struct {
	ID        string  `json:"-"`
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Role      *Role   `json:"role,omitempty"`
	TenantID  *string `json:"tenant_id,omitempty"`
	Status    *Status `json:"status,omitempty"`
}

type Filters struct {
	Role     Role   `json:"role,omitempty"`
	Status   Status `json:"status,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	Search   string `json:"search,omitempty"`
	pagination.Params
}

func (f Filters) Query() url.Values {
	q := url.Values{}
	if f.Role != "" {
		q.Set("role", string(f.Role))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.TenantID != "" {
		q.Set("tenant_id", f.TenantID)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	f.Params.Encode(q)
	return q
}

func FiltersFromQuery(q url.Values) Filters {
	return Filters{
		Role:     Role(q.Get("role")),
		Status:   Status(q.Get("status")),
		TenantID: q.Get("tenant_id"),
		Search:   q.Get("search"),
		Params:   pagination.ParamsFromQuery(q),
	}
}

func (f Filters) Matches(u *User) bool {
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.Status != "" && u.Status != f.Status {
		return false
	}
	if f.TenantID != "" && u.TenantID != f.TenantID {
		return false
	}
	if f.Search != "" {
		search := strings.ToLower(f.Search)
		return strings.Contains(strings.ToLower(u.Email), search) ||
			strings.Contains(strings.ToLower(u.FullName()), search)
	}
	return true
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks password against the user's stored hash.
func (u *User) CheckPassword(password string) bool {
	return u.PasswordHash != "" && CheckPasswordHash(password, u.PasswordHash)
}
