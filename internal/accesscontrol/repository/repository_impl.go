package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/merchline/internal/accesscontrol/domain"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const groupColumns = `g.id, g.company_id, g.name, g.slug, g.description, g.created_at, g.updated_at`

func (r *repo) FindGroupsForMembers(ctx context.Context, db *gorm.DB, refs []domain.MemberRef) ([]domain.Group, error) {
	byKind := make(map[domain.MemberKind][]snowflake.ID)
	for _, ref := range refs {
		if !ref.Valid() {
			continue
		}
		byKind[ref.Kind] = append(byKind[ref.Kind], ref.ID)
	}
	if len(byKind) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(byKind))
	args := make([]any, 0, len(byKind)*2)
	for _, kind := range []domain.MemberKind{domain.MemberUser, domain.MemberCompany, domain.MemberCompanyUserGroup} {
		ids, ok := byKind[kind]
		if !ok {
			continue
		}
		clauses = append(clauses, "(m.member_type = ? AND m.member_id IN ?)")
		args = append(args, string(kind), ids)
	}

	var groups []domain.Group
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT `+groupColumns+`
		 FROM product_access_control_groups g
		 JOIN product_access_control_group_members m ON m.acg_id = g.id
		 WHERE g.deleted_at IS NULL
		   AND m.deleted_at IS NULL
		   AND (`+strings.Join(clauses, " OR ")+`)
		 ORDER BY g.id`,
		args...,
	).Scan(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *repo) FindGrantedTagIDs(ctx context.Context, db *gorm.DB, groupIDs []snowflake.ID) ([]snowflake.ID, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT t.id
		 FROM product_access_control_group_tags gt
		 JOIN product_category_tags t ON t.id = gt.product_category_tag_id
		 WHERE gt.acg_id IN ?
		   AND gt.deleted_at IS NULL
		   AND t.deleted_at IS NULL
		 ORDER BY t.id`,
		groupIDs,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) InsertGroup(ctx context.Context, db *gorm.DB, group *domain.Group) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_access_control_groups (id, company_id, name, slug, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		group.ID,
		group.CompanyID,
		group.Name,
		group.Slug,
		group.Description,
		group.CreatedAt,
		group.UpdatedAt,
	).Error
}

func (r *repo) FindGroupByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Group, error) {
	var group domain.Group
	err := db.WithContext(ctx).Raw(
		`SELECT `+groupColumns+` FROM product_access_control_groups g WHERE g.id = ? AND g.deleted_at IS NULL`,
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

func (r *repo) ListGroups(ctx context.Context, db *gorm.DB, companyID *snowflake.ID) ([]domain.Group, error) {
	stmt := `SELECT ` + groupColumns + ` FROM product_access_control_groups g WHERE g.deleted_at IS NULL`
	args := []any{}
	if companyID != nil {
		stmt += ` AND g.company_id = ?`
		args = append(args, *companyID)
	}
	stmt += ` ORDER BY g.name, g.id`

	var groups []domain.Group
	if err := db.WithContext(ctx).Raw(stmt, args...).Scan(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *repo) FindTagByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tag, error) {
	var tag domain.Tag
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id FROM product_category_tags WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&tag).Error
	if err != nil {
		return nil, err
	}
	if tag.ID == 0 {
		return nil, nil
	}
	return &tag, nil
}

func (r *repo) ListMembers(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]domain.MemberRef, error) {
	var rows []struct {
		MemberType string
		MemberID   snowflake.ID
	}
	err := db.WithContext(ctx).Raw(
		`SELECT member_type, member_id
		 FROM product_access_control_group_members
		 WHERE acg_id = ? AND deleted_at IS NULL
		 ORDER BY member_type, member_id`,
		groupID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	refs := make([]domain.MemberRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, domain.MemberRef{Kind: domain.MemberKind(row.MemberType), ID: row.MemberID})
	}
	return refs, nil
}

type liveness struct {
	Found     bool
	DeletedAt *time.Time
}

func (r *repo) UpsertMember(ctx context.Context, db *gorm.DB, groupID snowflake.ID, ref domain.MemberRef, now time.Time) (pkgdb.UpsertResult, error) {
	var state liveness
	err := db.WithContext(ctx).Raw(
		`SELECT TRUE AS found, deleted_at
		 FROM product_access_control_group_members
		 WHERE acg_id = ? AND member_type = ? AND member_id = ?`,
		groupID, string(ref.Kind), ref.ID,
	).Scan(&state).Error
	if err != nil {
		return "", err
	}

	switch {
	case !state.Found:
		err := db.WithContext(ctx).Exec(
			`INSERT INTO product_access_control_group_members (acg_id, member_type, member_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			groupID, string(ref.Kind), ref.ID, now, now,
		).Error
		if pkgdb.IsDuplicateKeyErr(err) {
			return pkgdb.UpsertUnchanged, nil
		}
		if err != nil {
			return "", err
		}
		return pkgdb.UpsertCreated, nil
	case state.DeletedAt != nil:
		err := db.WithContext(ctx).Exec(
			`UPDATE product_access_control_group_members SET deleted_at = NULL, updated_at = ?
			 WHERE acg_id = ? AND member_type = ? AND member_id = ?`,
			now, groupID, string(ref.Kind), ref.ID,
		).Error
		if err != nil {
			return "", err
		}
		return pkgdb.UpsertRestored, nil
	default:
		return pkgdb.UpsertUnchanged, nil
	}
}

func (r *repo) SoftDeleteMember(ctx context.Context, db *gorm.DB, groupID snowflake.ID, ref domain.MemberRef, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE product_access_control_group_members SET deleted_at = ?, updated_at = ?
		 WHERE acg_id = ? AND member_type = ? AND member_id = ? AND deleted_at IS NULL`,
		now, now, groupID, string(ref.Kind), ref.ID,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) UpsertTag(ctx context.Context, db *gorm.DB, groupID, tagID snowflake.ID, now time.Time) (pkgdb.UpsertResult, error) {
	var state liveness
	err := db.WithContext(ctx).Raw(
		`SELECT TRUE AS found, deleted_at
		 FROM product_access_control_group_tags
		 WHERE acg_id = ? AND product_category_tag_id = ?`,
		groupID, tagID,
	).Scan(&state).Error
	if err != nil {
		return "", err
	}

	switch {
	case !state.Found:
		err := db.WithContext(ctx).Exec(
			`INSERT INTO product_access_control_group_tags (acg_id, product_category_tag_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?)`,
			groupID, tagID, now, now,
		).Error
		if pkgdb.IsDuplicateKeyErr(err) {
			return pkgdb.UpsertUnchanged, nil
		}
		if err != nil {
			return "", err
		}
		return pkgdb.UpsertCreated, nil
	case state.DeletedAt != nil:
		err := db.WithContext(ctx).Exec(
			`UPDATE product_access_control_group_tags SET deleted_at = NULL, updated_at = ?
			 WHERE acg_id = ? AND product_category_tag_id = ?`,
			now, groupID, tagID,
		).Error
		if err != nil {
			return "", err
		}
		return pkgdb.UpsertRestored, nil
	default:
		return pkgdb.UpsertUnchanged, nil
	}
}

func (r *repo) SoftDeleteTag(ctx context.Context, db *gorm.DB, groupID, tagID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE product_access_control_group_tags SET deleted_at = ?, updated_at = ?
		 WHERE acg_id = ? AND product_category_tag_id = ? AND deleted_at IS NULL`,
		now, now, groupID, tagID,
	)
	return res.RowsAffected > 0, res.Error
}
