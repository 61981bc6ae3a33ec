package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Role is the closed set of principal roles.
type Role uint8

const (
	RoleCustomer Role = iota + 1
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// ParseRole converts the persisted or wire form of a role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "customer":
		return RoleCustomer, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	switch r {
	case RoleCustomer, RoleAdmin:
		return []byte(r.String()), nil
	default:
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) Value() (driver.Value, error) {
	b, err := r.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("scan role: unsupported type %T", src)
	}
}

// Principal is an account that can hold a session. ID never leaves the
// process; PublicID is the shareable identifier.
type Principal struct {
	ID        int64     `json:"-"`
	PublicID  string    `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	Role      Role      `json:"role"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
