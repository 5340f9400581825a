package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	"github.com/smallbiznis/merchline/internal/campaign/domain"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const campaignColumns = `id, company_id, name, status, type, quota, created_at, updated_at`

func (r *repo) InsertCampaign(ctx context.Context, db *gorm.DB, campaign *domain.Campaign) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO campaigns (id, company_id, name, status, type, quota, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		campaign.ID,
		campaign.CompanyID,
		campaign.Name,
		string(campaign.Status),
		campaign.Type,
		campaign.Quota,
		campaign.CreatedAt,
		campaign.UpdatedAt,
	).Error
}

func (r *repo) FindCampaignByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Campaign, error) {
	return r.findCampaign(ctx, db, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
}

func (r *repo) LockCampaign(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Campaign, error) {
	return r.findCampaign(ctx, tx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) findCampaign(ctx context.Context, db *gorm.DB, stmt string, id snowflake.ID) (*domain.Campaign, error) {
	var campaign domain.Campaign
	if err := db.WithContext(ctx).Raw(stmt, id).Scan(&campaign).Error; err != nil {
		return nil, err
	}
	if campaign.ID == 0 {
		return nil, nil
	}
	return &campaign, nil
}

func (r *repo) SumQuota(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(ordered_quota), 0) FROM campaign_quotas
		 WHERE campaign_id = ? AND deleted_at IS NULL`,
		campaignID,
	).Scan(&total).Error
	return total, err
}

func (r *repo) CountOrders(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, role accountdomain.Role) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM campaign_quotas
		 WHERE campaign_id = ? AND role = ? AND deleted_at IS NULL`,
		campaignID, string(role),
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountOrdersByRole(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) ([]domain.RoleCount, error) {
	var rows []domain.RoleCount
	err := db.WithContext(ctx).Raw(
		`SELECT role, COUNT(*) AS orders FROM campaign_quotas
		 WHERE campaign_id = ? AND deleted_at IS NULL
		 GROUP BY role
		 ORDER BY role`,
		campaignID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) AppendQuota(ctx context.Context, db *gorm.DB, entry *domain.QuotaEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO campaign_quotas (id, campaign_id, role, ordered_quota, ordered_date, created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.CampaignID,
		string(entry.Role),
		entry.OrderedQuota,
		entry.OrderedDate,
		entry.CreatedBy,
		entry.UpdatedBy,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Error
}

const limitColumns = `id, campaign_id, role, order_limit, created_at, updated_at`

func (r *repo) FindOrderLimit(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, role accountdomain.Role) (*domain.OrderLimit, error) {
	var limit domain.OrderLimit
	err := db.WithContext(ctx).Raw(
		`SELECT `+limitColumns+` FROM campaign_order_limits
		 WHERE campaign_id = ? AND role = ? AND deleted_at IS NULL`,
		campaignID, string(role),
	).Scan(&limit).Error
	if err != nil {
		return nil, err
	}
	if limit.ID == 0 {
		return nil, nil
	}
	return &limit, nil
}

func (r *repo) ListOrderLimits(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) ([]domain.OrderLimit, error) {
	var limits []domain.OrderLimit
	err := db.WithContext(ctx).Raw(
		`SELECT `+limitColumns+` FROM campaign_order_limits
		 WHERE campaign_id = ? AND deleted_at IS NULL
		 ORDER BY role`,
		campaignID,
	).Scan(&limits).Error
	if err != nil {
		return nil, err
	}
	return limits, nil
}

type limitState struct {
	ID         snowflake.ID
	OrderLimit int64
	DeletedAt  *time.Time
}

func (r *repo) UpsertOrderLimit(ctx context.Context, db *gorm.DB, limit *domain.OrderLimit) (pkgdb.UpsertResult, error) {
	var state limitState
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_limit, deleted_at FROM campaign_order_limits WHERE campaign_id = ? AND role = ?`,
		limit.CampaignID, string(limit.Role),
	).Scan(&state).Error
	if err != nil {
		return "", err
	}

	switch {
	case state.ID == 0:
		err := db.WithContext(ctx).Exec(
			`INSERT INTO campaign_order_limits (id, campaign_id, role, order_limit, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			limit.ID, limit.CampaignID, string(limit.Role), limit.Limit, limit.CreatedAt, limit.UpdatedAt,
		).Error
		if err != nil {
			return "", err
		}
		return pkgdb.UpsertCreated, nil
	case state.DeletedAt != nil:
		limit.ID = state.ID
		err := db.WithContext(ctx).Exec(
			`UPDATE campaign_order_limits SET order_limit = ?, deleted_at = NULL, updated_at = ? WHERE id = ?`,
			limit.Limit, limit.UpdatedAt, state.ID,
		).Error
		if err != nil {
			return "", err
		}
		return pkgdb.UpsertRestored, nil
	case state.OrderLimit != limit.Limit:
		limit.ID = state.ID
		err := db.WithContext(ctx).Exec(
			`UPDATE campaign_order_limits SET order_limit = ?, updated_at = ? WHERE id = ?`,
			limit.Limit, limit.UpdatedAt, state.ID,
		).Error
		if err != nil {
			return "", err
		}
		return pkgdb.UpsertUpdated, nil
	default:
		limit.ID = state.ID
		return pkgdb.UpsertUnchanged, nil
	}
}

func (r *repo) InsertNotificationRule(ctx context.Context, db *gorm.DB, rule *domain.NotificationRule) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO campaign_quota_notifications (id, campaign_id, threshold, threshold_type, recipients,
			frequency, frequency_unit, is_active, last_sent_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.CampaignID,
		rule.Threshold,
		string(rule.ThresholdType),
		rule.Recipients,
		rule.Frequency,
		string(rule.FrequencyUnit),
		rule.IsActive,
		rule.LastSentAt,
		rule.CreatedAt,
		rule.UpdatedAt,
	).Error
}

func (r *repo) ListActiveNotificationRules(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) ([]domain.NotificationRule, error) {
	var rules []domain.NotificationRule
	err := db.WithContext(ctx).Raw(
		`SELECT id, campaign_id, threshold, threshold_type, recipients, frequency, frequency_unit,
			is_active, last_sent_at, created_at, updated_at
		 FROM campaign_quota_notifications
		 WHERE campaign_id = ? AND is_active = ?
		 ORDER BY threshold, id`,
		campaignID, true,
	).Scan(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) ListCampaignsWithActiveRules(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT campaign_id
		 FROM campaign_quota_notifications
		 WHERE is_active = ? AND campaign_id > ?
		 ORDER BY campaign_id
		 LIMIT ?`,
		true, afterID, limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ClaimNotification(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, now, cutoff time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE campaign_quota_notifications
		 SET last_sent_at = ?, updated_at = ?
		 WHERE id = ? AND is_active = ? AND (last_sent_at IS NULL OR last_sent_at <= ?)`,
		now, now, ruleID, true, cutoff,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
