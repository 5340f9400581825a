package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"gorm.io/gorm"
)

type Repository interface {
	// FindGroupsForMembers returns live groups with a live member matching any ref.
	FindGroupsForMembers(ctx context.Context, db *gorm.DB, refs []MemberRef) ([]Group, error)
	// FindGrantedTagIDs returns live tags granted to any of the groups.
	FindGrantedTagIDs(ctx context.Context, db *gorm.DB, groupIDs []snowflake.ID) ([]snowflake.ID, error)

	InsertGroup(ctx context.Context, db *gorm.DB, group *Group) error
	FindGroupByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Group, error)
	// ListGroups lists live groups; a nil companyID lists every group.
	ListGroups(ctx context.Context, db *gorm.DB, companyID *snowflake.ID) ([]Group, error)
	FindTagByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tag, error)
	ListMembers(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]MemberRef, error)

	UpsertMember(ctx context.Context, db *gorm.DB, groupID snowflake.ID, ref MemberRef, now time.Time) (pkgdb.UpsertResult, error)
	SoftDeleteMember(ctx context.Context, db *gorm.DB, groupID snowflake.ID, ref MemberRef, now time.Time) (bool, error)
	UpsertTag(ctx context.Context, db *gorm.DB, groupID, tagID snowflake.ID, now time.Time) (pkgdb.UpsertResult, error)
	SoftDeleteTag(ctx context.Context, db *gorm.DB, groupID, tagID snowflake.ID, now time.Time) (bool, error)
}
