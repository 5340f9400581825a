package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"gorm.io/gorm"
)

type RoleCount struct {
	Role   accountdomain.Role
	Orders int64
}

type Repository interface {
	InsertCampaign(ctx context.Context, db *gorm.DB, campaign *Campaign) error
	FindCampaignByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Campaign, error)
	// LockCampaign loads the campaign row with SELECT ... FOR UPDATE. Call it inside a transaction.
	LockCampaign(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Campaign, error)

	SumQuota(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) (int64, error)
	CountOrders(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, role accountdomain.Role) (int64, error)
	CountOrdersByRole(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) ([]RoleCount, error)
	AppendQuota(ctx context.Context, db *gorm.DB, entry *QuotaEntry) error

	FindOrderLimit(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, role accountdomain.Role) (*OrderLimit, error)
	ListOrderLimits(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) ([]OrderLimit, error)
	UpsertOrderLimit(ctx context.Context, db *gorm.DB, limit *OrderLimit) (pkgdb.UpsertResult, error)

	InsertNotificationRule(ctx context.Context, db *gorm.DB, rule *NotificationRule) error
	ListActiveNotificationRules(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) ([]NotificationRule, error)
	// ListCampaignsWithActiveRules pages campaign ids in ascending order, starting after afterID.
	ListCampaignsWithActiveRules(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error)
	// ClaimNotification stamps last_sent_at = now when the rule is outside its window.
	// It reports whether this caller won the claim.
	ClaimNotification(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, now, cutoff time.Time) (bool, error)
}

// Message is a rendered quota notification.
type Message struct {
	CampaignID    snowflake.ID
	CampaignName  string
	Consumed      int64
	Quota         int64
	Threshold     int64
	ThresholdType ThresholdType
}

// Dispatcher delivers quota notifications to their recipients.
type Dispatcher interface {
	Send(ctx context.Context, recipients []string, msg Message) error
}
