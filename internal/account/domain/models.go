package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleAdmin                Role = "admin"
	RoleCompanyAdministrator Role = "companyAdministrator"
	RoleCampaignManager      Role = "campaignManager"
	RoleEmployee             Role = "employee"
	RoleUser                 Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCompanyAdministrator, RoleCampaignManager, RoleEmployee, RoleUser:
		return true
	}
	return false
}

type Company struct {
	ID        snowflake.ID `json:"id"`
	Name      string       `json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// User is the authenticated actor. CompanyID is nil for platform users.
type User struct {
	ID        snowflake.ID  `json:"id"`
	CompanyID *snowflake.ID `json:"company_id,omitempty"`
	Role      Role          `json:"role"`
	Email     string        `json:"email"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// BelongsTo reports whether the user is a member of the given company.
func (u User) BelongsTo(companyID snowflake.ID) bool {
	return u.CompanyID != nil && *u.CompanyID == companyID
}

type CompanyUserGroup struct {
	ID        snowflake.ID `json:"id"`
	CompanyID snowflake.ID `json:"company_id"`
	Name      string       `json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
