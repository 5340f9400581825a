package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertCompany(ctx context.Context, db *gorm.DB, company *Company) error
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	InsertGroup(ctx context.Context, db *gorm.DB, group *CompanyUserGroup) error
	// UpsertGroupMember inserts the membership or clears its deleted_at. It reports whether a row changed.
	UpsertGroupMember(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID, now time.Time) (bool, error)
	SoftDeleteGroupMember(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID, now time.Time) (bool, error)

	FindCompanyByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Company, error)
	FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindGroupByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CompanyUserGroup, error)
	// FindGroupIDsForUser lists live groups of companyID the user is a live member of.
	FindGroupIDsForUser(ctx context.Context, db *gorm.DB, userID, companyID snowflake.ID) ([]snowflake.ID, error)
}
