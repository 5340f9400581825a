package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
)

type CreateGroupRequest struct {
	// CompanyID scopes the group; only platform admins may leave it empty.
	CompanyID   *snowflake.ID
	Name        string
	Description string
}

type GroupDetail struct {
	Group
	Members []MemberRef `json:"members"`
}

type Service interface {
	// ResolveVisibleTags returns the category tags the user may see. It never fails for lack of grants.
	ResolveVisibleTags(ctx context.Context, user accountdomain.User) (TagSet, error)

	CreateGroup(ctx context.Context, actor accountdomain.User, req CreateGroupRequest) (Group, error)
	GetGroup(ctx context.Context, actor accountdomain.User, id snowflake.ID) (GroupDetail, error)
	ListGroups(ctx context.Context, actor accountdomain.User) ([]Group, error)
	AddMember(ctx context.Context, actor accountdomain.User, groupID snowflake.ID, ref MemberRef) (pkgdb.UpsertResult, error)
	RemoveMember(ctx context.Context, actor accountdomain.User, groupID snowflake.ID, ref MemberRef) error
	GrantTag(ctx context.Context, actor accountdomain.User, groupID, tagID snowflake.ID) (pkgdb.UpsertResult, error)
	RevokeTag(ctx context.Context, actor accountdomain.User, groupID, tagID snowflake.ID) error
}

var (
	ErrNotFound      = errors.New("not_found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidMember = errors.New("invalid_member")
	ErrCrossTenant   = errors.New("cross_tenant_reference")
	ErrAlreadyExists = errors.New("already_exists")
)
