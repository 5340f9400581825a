package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateCompanyRequest struct {
	Name string
}

type CreateUserRequest struct {
	CompanyID *snowflake.ID
	Role      Role
	Email     string
}

type CreateGroupRequest struct {
	CompanyID snowflake.ID
	Name      string
}

type Service interface {
	CreateCompany(ctx context.Context, req CreateCompanyRequest) (Company, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (User, error)
	CreateGroup(ctx context.Context, req CreateGroupRequest) (CompanyUserGroup, error)
	AddGroupMember(ctx context.Context, groupID, userID snowflake.ID) error
	RemoveGroupMember(ctx context.Context, groupID, userID snowflake.ID) error

	GetUser(ctx context.Context, id snowflake.ID) (User, error)
	GetCompany(ctx context.Context, id snowflake.ID) (Company, error)
	GetGroup(ctx context.Context, id snowflake.ID) (CompanyUserGroup, error)
	// GroupIDsForUser returns the user's live groups inside the user's own company.
	GroupIDsForUser(ctx context.Context, user User) ([]snowflake.ID, error)
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrInvalidRole    = errors.New("invalid_role")
	ErrInvalidCompany = errors.New("invalid_company")
	ErrCrossTenant    = errors.New("cross_tenant_membership")
)
