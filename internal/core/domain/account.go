package domain

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleRegular Role = "REGULAR"
	RoleAdmin   Role = "ADMIN"
)

// Legacy role names kept in the store.
const (
	storedRoleRegular = "USUARIO"
	storedRoleAdmin   = "ADMINISTRADOR"
)

func (r Role) StorageValue() string {
	switch r {
	case RoleRegular:
		return storedRoleRegular
	case RoleAdmin:
		return storedRoleAdmin
	}

	return string(r)
}

func (r Role) Valid() bool {
	switch r {
	case RoleRegular, RoleAdmin:
		return true
	}

	return false
}

func ParseStoredRole(value string) (Role, error) {
	switch value {
	case storedRoleRegular, string(RoleRegular):
		return RoleRegular, nil
	case storedRoleAdmin, string(RoleAdmin):
		return RoleAdmin, nil
	}

	return "", fmt.Errorf("unknown stored role %q", value)
}

type AccountState int

const (
	AccountUnconfirmed AccountState = iota
	AccountActive
	AccountDisabled
)

func (s AccountState) String() string {
	switch s {
	case AccountUnconfirmed:
		return "UNCONFIRMED"
	case AccountActive:
		return "ACTIVE"
	case AccountDisabled:
		return "DISABLED"
	}

	return "UNKNOWN"
}

// Account is the identity and credential record. Empty ConfirmToken and
// RecoveryToken mean the store holds null for them.
type Account struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Password      string    `json:"-"`
	ConfirmToken  string    `json:"-"`
	RecoveryToken string    `json:"-"`
	Role          Role      `json:"role"`
	Status        bool      `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (a *Account) HasPendingConfirmation() bool {
	return a.ConfirmToken != ""
}

func (a *Account) State() AccountState {
	if a.Status {
		return AccountActive
	}

	if a.HasPendingConfirmation() {
		return AccountUnconfirmed
	}

	return AccountDisabled
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// AccountChanges describes a partial update. Nil fields are left untouched;
// a pointer to "" clears a token.
type AccountChanges struct {
	Username      *string
	Name          *string
	Email         *string
	Password      *string
	ConfirmToken  *string
	RecoveryToken *string
	Status        *bool
}

func (c AccountChanges) IsEmpty() bool {
	return c.Username == nil &&
		c.Name == nil &&
		c.Email == nil &&
		c.Password == nil &&
		c.ConfirmToken == nil &&
		c.RecoveryToken == nil &&
		c.Status == nil
}

func StringPtr(s string) *string {
	return &s
}

func BoolPtr(b bool) *bool {
	return &b
}
