package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/merchline/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertCompany(ctx context.Context, db *gorm.DB, company *domain.Company) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO companies (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		company.ID,
		company.Name,
		company.CreatedAt,
		company.UpdatedAt,
	).Error
}

func (r *repo) InsertUser(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, company_id, role, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.CompanyID,
		string(user.Role),
		user.Email,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) InsertGroup(ctx context.Context, db *gorm.DB, group *domain.CompanyUserGroup) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO company_user_groups (id, company_id, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		group.ID,
		group.CompanyID,
		group.Name,
		group.CreatedAt,
		group.UpdatedAt,
	).Error
}

func (r *repo) UpsertGroupMember(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE company_user_group_members SET deleted_at = NULL, updated_at = ?
		 WHERE group_id = ? AND user_id = ? AND deleted_at IS NOT NULL`,
		now, groupID, userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var existing int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM company_user_group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	).Scan(&existing).Error; err != nil {
		return false, err
	}
	if existing > 0 {
		return false, nil
	}

	err := db.WithContext(ctx).Exec(
		`INSERT INTO company_user_group_members (group_id, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		groupID, userID, now, now,
	).Error
	return err == nil, err
}

func (r *repo) SoftDeleteGroupMember(ctx context.Context, db *gorm.DB, groupID, userID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE company_user_group_members SET deleted_at = ?, updated_at = ?
		 WHERE group_id = ? AND user_id = ? AND deleted_at IS NULL`,
		now, now, groupID, userID,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) FindCompanyByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Company, error) {
	var company domain.Company
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, created_at, updated_at FROM companies WHERE id = ?`,
		id,
	).Scan(&company).Error
	if err != nil {
		return nil, err
	}
	if company.ID == 0 {
		return nil, nil
	}
	return &company, nil
}

func (r *repo) FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, role, email, created_at, updated_at FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindGroupByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CompanyUserGroup, error) {
	var group domain.CompanyUserGroup
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, name, created_at, updated_at
		 FROM company_user_groups WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&group).Error
	if err != nil {
		return nil, err
	}
	if group.ID == 0 {
		return nil, nil
	}
	return &group, nil
}

func (r *repo) FindGroupIDsForUser(ctx context.Context, db *gorm.DB, userID, companyID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT g.id
		 FROM company_user_group_members m
		 JOIN company_user_groups g ON g.id = m.group_id
		 WHERE m.user_id = ?
		   AND g.company_id = ?
		   AND m.deleted_at IS NULL
		   AND g.deleted_at IS NULL
		 ORDER BY g.id`,
		userID, companyID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
